package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/go-go-golems/chorus/pkg/chat"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

var (
	speakerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6"))
	typingStyle  = lipgloss.NewStyle().Faint(true).Italic(true)
	noticeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	statusStyle  = lipgloss.NewStyle().Faint(true)
)

type entryKind int

const (
	entryChat entryKind = iota
	entryNotice
)

type entry struct {
	kind     entryKind
	id       uuid.UUID
	speaker  string
	text     string
	complete bool
	aborted  bool
	version  uint64

	// markdown output for renderedVersion, empty until first rendered
	rendered        string
	renderedVersion uint64
}

// Transcript is the rendered state of a room as seen by the UI. Chat entries
// are kept in arrival order and updated in place as their content grows.
type Transcript struct {
	entries []*entry
	index   map[uuid.UUID]*entry
	errors  []string
}

func NewTranscript() *Transcript {
	return &Transcript{index: map[uuid.UUID]*entry{}}
}

// AddChat appends a chat message with whatever content it currently has.
func (t *Transcript) AddChat(msg *chat.ChatMessage) {
	if _, ok := t.index[msg.ID]; ok {
		return
	}
	e := &entry{kind: entryChat, id: msg.ID, speaker: msg.Speaker()}
	t.entries = append(t.entries, e)
	t.index[msg.ID] = e
	t.UpdateContent(msg.ID, msg.Content.Current())
}

// UpdateContent applies a content snapshot. Snapshots older than the one
// already shown are ignored.
func (t *Transcript) UpdateContent(id uuid.UUID, snap chat.Snapshot) bool {
	e, ok := t.index[id]
	if !ok || snap.Version < e.version {
		return false
	}
	e.version = snap.Version
	e.text = snap.Text()
	e.complete = snap.Complete
	e.aborted = snap.Err != nil
	return true
}

func (t *Transcript) AddNotice(text string) {
	t.entries = append(t.entries, &entry{kind: entryNotice, text: text})
}

func (t *Transcript) AddError(msg string) {
	t.errors = append(t.errors, msg)
}

// LastSettled returns the text of the most recent completed chat message.
func (t *Transcript) LastSettled() (string, bool) {
	e, _, ok := lo.FindLastIndexOf(t.entries, func(e *entry) bool {
		return e.kind == entryChat && e.complete
	})
	if !ok {
		return "", false
	}
	return e.text, true
}

// Streaming reports whether any chat message is still being generated.
func (t *Transcript) Streaming() bool {
	return lo.ContainsBy(t.entries, func(e *entry) bool {
		return e.kind == entryChat && !e.complete
	})
}

// InvalidateRendered drops cached markdown, e.g. after the renderer's wrap
// width changed.
func (t *Transcript) InvalidateRendered() {
	for _, e := range t.entries {
		e.rendered = ""
	}
}

func (e *entry) markdown(render func(string) string) string {
	if e.rendered == "" || e.renderedVersion != e.version {
		e.rendered = strings.TrimRight(render(e.text), "\n")
		e.renderedVersion = e.version
	}
	return e.rendered
}

// RenderMessages renders the chat pane. Completed messages go through
// markdown when a renderer is given, once per content version; streaming
// ones are shown raw.
func (t *Transcript) RenderMessages(markdown func(string) string) string {
	var sb strings.Builder
	for i, e := range t.entries {
		if i > 0 {
			sb.WriteString("\n")
		}
		switch e.kind {
		case entryNotice:
			sb.WriteString(noticeStyle.Render(e.text))
			sb.WriteString("\n")
		case entryChat:
			sb.WriteString(speakerStyle.Render(e.speaker))
			sb.WriteString("\n")
			switch {
			case !e.complete:
				sb.WriteString(e.text)
				sb.WriteString(typingStyle.Render(" ▍typing…"))
				sb.WriteString("\n")
			case markdown != nil && !e.aborted:
				sb.WriteString(e.markdown(markdown))
				sb.WriteString("\n")
			default:
				sb.WriteString(e.text)
				if e.aborted {
					sb.WriteString(typingStyle.Render(" (interrupted)"))
				}
				sb.WriteString("\n")
			}
		}
	}
	return sb.String()
}

func (t *Transcript) RenderErrors() string {
	return strings.Join(lo.Map(t.errors, func(s string, _ int) string {
		return errorStyle.Render(s)
	}), "\n")
}

func laggedNotice(n uint64) string {
	return fmt.Sprintf("… %d messages were skipped because the display fell behind", n)
}
