package eventtap

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/go-go-golems/chorus/pkg/chat"
	"github.com/pkg/errors"
)

type EventType string

const (
	EventChat  EventType = "chat"
	EventError EventType = "error"
)

// Event is the wire form of a settled room message.
type Event struct {
	ID           string    `json:"id"`
	Type         EventType `json:"type"`
	FromUserID   string    `json:"from_user_id,omitempty"`
	FromUsername string    `json:"from_username,omitempty"`
	Role         string    `json:"role,omitempty"`
	Text         string    `json:"text"`
	Aborted      bool      `json:"aborted,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// EventFromMessage waits for a chat message's content to settle and converts
// it. Aborted contents are reported with their partial text.
func EventFromMessage(ctx context.Context, msg chat.Message) (Event, error) {
	switch m := msg.(type) {
	case *chat.ChatMessage:
		snap, err := m.Content.WaitForCompletion(ctx)
		aborted := false
		if err != nil {
			if !errors.Is(err, chat.ErrContentClosed) {
				return Event{}, err
			}
			aborted = true
		}
		return Event{
			ID:           m.ID.String(),
			Type:         EventChat,
			FromUserID:   m.FromUserID,
			FromUsername: m.FromUsername,
			Role:         string(m.Role),
			Text:         snap.Text(),
			Aborted:      aborted,
			CreatedAt:    m.CreatedAt,
		}, nil
	case *chat.ErrorMessage:
		return Event{
			ID:        m.ID.String(),
			Type:      EventError,
			Text:      m.Msg,
			CreatedAt: m.CreatedAt,
		}, nil
	default:
		return Event{}, errors.Errorf("unknown message type %T", msg)
	}
}

// ToMessage encodes the event as a watermill message. The event id is
// reused as the message uuid.
func (e Event) ToMessage() (*message.Message, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, errors.Wrap(err, "could not encode event")
	}
	msg := message.NewMessage(e.ID, b)
	msg.Metadata.Set("type", string(e.Type))
	return msg, nil
}

// DecodeEvent parses a payload produced by ToMessage.
func DecodeEvent(payload []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(payload, &e); err != nil {
		return Event{}, errors.Wrap(err, "could not decode event")
	}
	if e.Type != EventChat && e.Type != EventError {
		return Event{}, errors.Errorf("unknown event type %q", e.Type)
	}
	return e, nil
}
