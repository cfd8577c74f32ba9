package ui

import (
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/go-go-golems/chorus/pkg/chat"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// User is the human participant at the keyboard.
type User struct {
	ID   string
	Name string
}

var paneStyle = lipgloss.NewStyle().
	BorderStyle(lipgloss.RoundedBorder()).
	BorderForeground(lipgloss.Color("62"))

// Model is the chat TUI: messages on top, errors below them, input at the
// bottom (60/10/30).
type Model struct {
	room   *chat.Room
	user   User
	events <-chan tea.Msg

	transcript *Transcript
	messages   viewport.Model
	errs       viewport.Model
	input      textarea.Model
	markdown   *glamour.TermRenderer

	width  int
	height int
	status string
	err    error
}

func NewModel(room *chat.Room, user User, events <-chan tea.Msg) Model {
	ta := textarea.New()
	ta.Placeholder = "Type a message, Enter to send, Esc to quit"
	ta.ShowLineNumbers = false
	ta.CharLimit = 0
	ta.KeyMap.InsertNewline.SetEnabled(false)
	ta.Focus()

	m := Model{
		room:       room,
		user:       user,
		events:     events,
		transcript: NewTranscript(),
		messages:   viewport.New(80, 12),
		errs:       viewport.New(80, 2),
		input:      ta,
	}
	m.resize(80, 24)
	return m
}

// Err is the reason the program ended, nil on a normal quit.
func (m Model) Err() error {
	return m.err
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, waitForEvent(m.events))
}

func (m *Model) resize(width, height int) {
	m.width, m.height = width, height
	// each pane has a border of 2 rows and 2 columns
	inner := height - 6 - 1
	if inner < 3 {
		inner = 3
	}
	msgH := inner * 60 / 100
	errH := inner * 10 / 100
	if errH < 1 {
		errH = 1
	}
	inH := inner - msgH - errH
	if inH < 1 {
		inH = 1
	}
	w := width - 2
	if w < 10 {
		w = 10
	}

	m.messages.Width, m.messages.Height = w, msgH
	m.errs.Width, m.errs.Height = w, errH
	m.input.SetWidth(w)
	m.input.SetHeight(inH)

	r, err := glamour.NewTermRenderer(glamour.WithStylePath("dark"), glamour.WithWordWrap(w))
	if err != nil {
		log.Warn().Err(err).Str("component", "ui").Msg("could not create markdown renderer")
		m.markdown = nil
	} else {
		m.markdown = r
	}
	m.transcript.InvalidateRendered()
	m.refresh()
}

func (m *Model) renderMarkdown(s string) string {
	if m.markdown == nil {
		return s
	}
	out, err := m.markdown.Render(s)
	if err != nil {
		return s
	}
	return out
}

func (m *Model) refresh() {
	follow := m.messages.AtBottom()
	m.messages.SetContent(m.transcript.RenderMessages(m.renderMarkdown))
	if follow {
		m.messages.GotoBottom()
	}
	m.errs.SetContent(m.transcript.RenderErrors())
	m.errs.GotoBottom()
}

func (m Model) send() (Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return m, nil
	}
	m.input.Reset()
	if err := m.room.PublishChat(chat.NewUserMessage(m.user.ID, m.user.Name, text)); err != nil {
		if errors.Is(err, chat.ErrClosed) {
			m.err = err
			return m, tea.Quit
		}
		m.transcript.AddError(errors.Wrap(err, "could not send message").Error())
		m.refresh()
	}
	m.messages.GotoBottom()
	return m, nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch ev := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(ev.Width, ev.Height)
		return m, nil

	case tea.KeyMsg:
		switch ev.Type {
		case tea.KeyEsc, tea.KeyCtrlC:
			return m, tea.Quit
		case tea.KeyEnter:
			return m.send()
		case tea.KeyCtrlY:
			text, ok := m.transcript.LastSettled()
			switch {
			case !ok:
				m.status = "nothing to copy yet"
			case clipboard.WriteAll(text) != nil:
				m.status = "clipboard is not available"
			default:
				m.status = "copied last message"
			}
			return m, nil
		case tea.KeyUp, tea.KeyDown, tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.messages, cmd = m.messages.Update(msg)
			return m, cmd
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd

	case chatMsg:
		m.transcript.AddChat(ev.msg)
		m.refresh()
		return m, waitForEvent(m.events)

	case contentMsg:
		if m.transcript.UpdateContent(ev.id, ev.snap) {
			m.refresh()
		}
		return m, waitForEvent(m.events)

	case errorMsg:
		m.transcript.AddError(ev.text)
		m.refresh()
		return m, waitForEvent(m.events)

	case laggedMsg:
		m.transcript.AddNotice(laggedNotice(ev.n))
		m.refresh()
		return m, waitForEvent(m.events)

	case roomClosedMsg:
		m.err = ev.err
		return m, tea.Quit
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	status := m.status
	if status == "" && m.transcript.Streaming() {
		status = "someone is typing…"
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		paneStyle.Render(m.messages.View()),
		paneStyle.Render(m.errs.View()),
		paneStyle.Render(m.input.View()),
		statusStyle.Render(status),
	)
}
