package eventtap

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/go-go-golems/chorus/pkg/chat"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

const topic = "chorus.room"

func nextEvent(t *testing.T, ch <-chan *message.Message) Event {
	t.Helper()
	select {
	case msg := <-ch:
		msg.Ack()
		ev, err := DecodeEvent(msg.Payload)
		require.NoError(t, err)
		require.Equal(t, ev.ID, msg.UUID)
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for event")
		return Event{}
	}
}

func newTapFixture(t *testing.T) (*chat.Room, *Tap, <-chan *message.Message) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	pubsub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 16}, watermill.NopLogger{})
	t.Cleanup(func() { _ = pubsub.Close() })
	ch, err := pubsub.Subscribe(ctx, topic)
	require.NoError(t, err)

	room := chat.NewRoom(nil, 10)
	tap := NewTap(room, pubsub, topic)
	t.Cleanup(tap.Close)
	require.NoError(t, tap.Start(ctx))
	require.NoError(t, tap.Start(ctx))
	return room, tap, ch
}

func TestTap_MirrorsSettledMessages(t *testing.T) {
	room, _, ch := newTapFixture(t)

	require.NoError(t, room.PublishChat(chat.NewUserMessage("u1", "You", "hi")))
	ev := nextEvent(t, ch)
	require.Equal(t, EventChat, ev.Type)
	require.Equal(t, "u1", ev.FromUserID)
	require.Equal(t, "You", ev.FromUsername)
	require.Equal(t, "user", ev.Role)
	require.Equal(t, "hi", ev.Text)
	require.False(t, ev.Aborted)

	content := chat.NewContent()
	reply := chat.NewChatMessage("a", "Ann", chat.RoleAssistant, content)
	require.NoError(t, room.PublishChat(reply))
	require.NoError(t, content.Append("Hello"))

	select {
	case <-ch:
		t.Fatal("a streaming message must not be mirrored before it settles")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, content.Append(" there"))
	require.NoError(t, content.Complete())
	ev = nextEvent(t, ch)
	require.Equal(t, reply.ID.String(), ev.ID)
	require.Equal(t, "Hello there", ev.Text)
	require.Equal(t, "assistant", ev.Role)

	require.NoError(t, room.PublishError(chat.NewErrorMessage("Failed to handle message: boom")))
	ev = nextEvent(t, ch)
	require.Equal(t, EventError, ev.Type)
	require.Equal(t, "Failed to handle message: boom", ev.Text)
}

func TestTap_AbortedContent(t *testing.T) {
	room, _, ch := newTapFixture(t)

	content := chat.NewContent()
	require.NoError(t, room.PublishChat(chat.NewChatMessage("a", "Ann", chat.RoleAssistant, content)))
	require.NoError(t, content.Append("Hel"))
	require.NoError(t, content.Abort(errors.New("connection reset")))

	ev := nextEvent(t, ch)
	require.True(t, ev.Aborted)
	require.Equal(t, "Hel", ev.Text)
}

func TestTap_StopsWhenRoomCloses(t *testing.T) {
	room, tap, _ := newTapFixture(t)
	room.Close()
	require.NoError(t, tap.Wait())
}

func TestDecodeEvent_Rejects(t *testing.T) {
	_, err := DecodeEvent([]byte("not json"))
	require.Error(t, err)
	_, err = DecodeEvent([]byte(`{"id":"1","type":"presence"}`))
	require.ErrorContains(t, err, "unknown event type")
}
