package ui

import (
	"context"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-go-golems/chorus/pkg/chat"
	"github.com/stretchr/testify/require"
)

func TestModel_EnterPublishesUserMessage(t *testing.T) {
	room := chat.NewRoom(nil, 4)
	sub := room.Subscribe()
	m := NewModel(room, User{ID: "u1", Name: "You"}, make(chan tea.Msg))

	updated, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	m = updated.(Model)

	m.input.SetValue("  hello room  ")
	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = updated.(Model)
	require.Equal(t, "", m.input.Value())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, err := sub.Receive(ctx)
	require.NoError(t, err)
	cm := msg.(*chat.ChatMessage)
	require.Equal(t, "u1", cm.FromUserID)
	require.Equal(t, chat.RoleUser, cm.Role)
	require.Equal(t, "hello room", cm.Content.Current().Text())

	// blank input is not sent
	_, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	_, err = sub.TryReceive()
	require.ErrorIs(t, err, chat.ErrEmpty)
}

func TestModel_RendersStreamingReply(t *testing.T) {
	room := chat.NewRoom(nil, 4)
	m := NewModel(room, User{ID: "u1", Name: "You"}, make(chan tea.Msg))

	content := chat.NewContent()
	msg := chat.NewChatMessage("a", "Ann", chat.RoleAssistant, content)
	updated, cmd := m.Update(chatMsg{msg: msg})
	m = updated.(Model)
	require.NotNil(t, cmd)

	require.NoError(t, content.Append("Hello"))
	updated, _ = m.Update(contentMsg{id: msg.ID, snap: content.Current()})
	m = updated.(Model)

	view := m.View()
	require.Contains(t, view, "Ann(@a)")
	require.Contains(t, view, "Hello")
	require.Contains(t, view, "typing")

	updated, _ = m.Update(errorMsg{text: "Failed to handle message: boom"})
	m = updated.(Model)
	require.Contains(t, m.View(), "Failed to handle message: boom")
}

func TestModel_QuitAndRoomClosed(t *testing.T) {
	room := chat.NewRoom(nil, 4)
	m := NewModel(room, User{ID: "u1", Name: "You"}, make(chan tea.Msg))

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	require.NotNil(t, cmd)
	require.IsType(t, tea.QuitMsg{}, cmd())

	updated, cmd := m.Update(roomClosedMsg{err: chat.ErrClosed})
	require.NotNil(t, cmd)
	require.IsType(t, tea.QuitMsg{}, cmd())
	require.ErrorIs(t, updated.(Model).Err(), chat.ErrClosed)
}
