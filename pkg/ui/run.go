package ui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-go-golems/chorus/pkg/chat"
	"github.com/pkg/errors"
)

// Run shows the chat TUI until the user quits (nil) or the room is closed
// (chat.ErrClosed).
func Run(ctx context.Context, room *chat.Room, user User, opts ...tea.ProgramOption) error {
	sub := room.Subscribe()
	defer sub.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := make(chan tea.Msg, 256)
	go listen(ctx, sub, events)

	opts = append([]tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}, opts...)
	p := tea.NewProgram(NewModel(room, user, events), opts...)
	final, err := p.Run()
	if err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.Wrap(err, "chat ui failed")
	}
	if m, ok := final.(Model); ok && m.Err() != nil {
		return m.Err()
	}
	return nil
}
