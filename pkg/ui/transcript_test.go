package ui

import (
	"strings"
	"testing"

	"github.com/go-go-golems/chorus/pkg/chat"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestTranscript_StreamingThenComplete(t *testing.T) {
	tr := NewTranscript()
	content := chat.NewContent()
	msg := chat.NewChatMessage("a", "Ann", chat.RoleAssistant, content)
	tr.AddChat(msg)
	tr.AddChat(msg)
	require.Len(t, tr.entries, 1)
	require.True(t, tr.Streaming())

	_, ok := tr.LastSettled()
	require.False(t, ok)

	require.NoError(t, content.Append("Hello"))
	older := content.Current()
	require.NoError(t, content.Append(" there"))
	require.True(t, tr.UpdateContent(msg.ID, content.Current()))
	// an out-of-date snapshot never rolls the display back
	require.False(t, tr.UpdateContent(msg.ID, older))

	out := tr.RenderMessages(nil)
	require.Contains(t, out, "Ann(@a)")
	require.Contains(t, out, "Hello there")
	require.Contains(t, out, "typing")

	require.NoError(t, content.Complete())
	require.True(t, tr.UpdateContent(msg.ID, content.Current()))
	require.False(t, tr.Streaming())
	text, ok := tr.LastSettled()
	require.True(t, ok)
	require.Equal(t, "Hello there", text)

	out = tr.RenderMessages(func(s string) string { return "**" + s + "**" })
	require.Contains(t, out, "**Hello there**")
	require.NotContains(t, out, "typing")
}

func TestTranscript_AbortedAndNotices(t *testing.T) {
	tr := NewTranscript()
	tr.AddChat(chat.NewUserMessage("u1", "You", "hi"))

	content := chat.NewContent()
	msg := chat.NewChatMessage("a", "Ann", chat.RoleAssistant, content)
	tr.AddChat(msg)
	require.NoError(t, content.Append("Hel"))
	require.NoError(t, content.Abort(errors.New("reset")))
	tr.UpdateContent(msg.ID, content.Current())
	tr.AddNotice(laggedNotice(3))
	tr.AddError("Failed to handle message: reset")

	out := tr.RenderMessages(nil)
	require.Less(t, strings.Index(out, "You(@u1)"), strings.Index(out, "Ann(@a)"))
	require.Contains(t, out, "Hel")
	require.Contains(t, out, "interrupted")
	require.Contains(t, out, "3 messages were skipped")
	require.Contains(t, tr.RenderErrors(), "Failed to handle message: reset")

	text, ok := tr.LastSettled()
	require.True(t, ok)
	require.Equal(t, "Hel", text)
}

func TestTranscript_MarkdownRenderedOncePerVersion(t *testing.T) {
	tr := NewTranscript()
	settled := chat.NewUserMessage("u1", "You", "hi")
	tr.AddChat(settled)

	content := chat.NewContent()
	msg := chat.NewChatMessage("a", "Ann", chat.RoleAssistant, content)
	tr.AddChat(msg)

	calls := map[string]int{}
	render := func(s string) string {
		calls[s]++
		return "<" + s + ">"
	}

	for _, chunk := range []string{"one", " two", " three"} {
		require.NoError(t, content.Append(chunk))
		tr.UpdateContent(msg.ID, content.Current())
		tr.RenderMessages(render)
	}
	require.Equal(t, map[string]int{"hi": 1}, calls)

	require.NoError(t, content.Complete())
	tr.UpdateContent(msg.ID, content.Current())
	tr.RenderMessages(render)
	out := tr.RenderMessages(render)
	require.Contains(t, out, "<one two three>")
	require.Equal(t, map[string]int{"hi": 1, "one two three": 1}, calls)

	tr.InvalidateRendered()
	tr.RenderMessages(render)
	require.Equal(t, map[string]int{"hi": 2, "one two three": 2}, calls)
}
