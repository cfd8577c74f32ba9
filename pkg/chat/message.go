package chat

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Role is the conversation role of a chat message sender, as understood by
// chat-completion backends.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is either a *ChatMessage or an *ErrorMessage. Messages are
// immutable once published and shared by pointer between subscribers.
type Message interface {
	MessageID() uuid.UUID
	isMessage()
}

// ChatMessage is a participant's utterance. The envelope is immutable, the
// Content grows while the sender is still generating.
type ChatMessage struct {
	ID           uuid.UUID
	FromUserID   string
	FromUsername string
	Role         Role
	Content      *Content
	CreatedAt    time.Time
}

// NewChatMessage builds a chat message around an existing content.
func NewChatMessage(fromUserID, fromUsername string, role Role, content *Content) *ChatMessage {
	return &ChatMessage{
		ID:           uuid.New(),
		FromUserID:   fromUserID,
		FromUsername: fromUsername,
		Role:         role,
		Content:      content,
		CreatedAt:    time.Now(),
	}
}

// NewUserMessage builds an already-complete chat message from human input.
func NewUserMessage(userID, username, text string) *ChatMessage {
	return NewChatMessage(userID, username, RoleUser, NewCompletedContent(text))
}

func (m *ChatMessage) MessageID() uuid.UUID { return m.ID }
func (m *ChatMessage) isMessage()           {}

// Speaker renders the sender as "name(@id)".
func (m *ChatMessage) Speaker() string {
	return fmt.Sprintf("%s(@%s)", m.FromUsername, m.FromUserID)
}

// ErrorMessage is a user-visible failure broadcast to the room.
type ErrorMessage struct {
	ID        uuid.UUID
	Msg       string
	CreatedAt time.Time
}

func NewErrorMessage(msg string) *ErrorMessage {
	return &ErrorMessage{ID: uuid.New(), Msg: msg, CreatedAt: time.Now()}
}

func (m *ErrorMessage) MessageID() uuid.UUID { return m.ID }
func (m *ErrorMessage) isMessage()           {}
