package ui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-go-golems/chorus/pkg/chat"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type chatMsg struct {
	msg *chat.ChatMessage
}

type contentMsg struct {
	id   uuid.UUID
	snap chat.Snapshot
}

type errorMsg struct {
	text string
}

type laggedMsg struct {
	n uint64
}

type roomClosedMsg struct {
	err error
}

// listen turns room receives into tea messages. Each chat message gets its
// own watcher that forwards content snapshots until the content settles.
func listen(ctx context.Context, sub *chat.Subscription, out chan<- tea.Msg) {
	send := func(m tea.Msg) bool {
		select {
		case out <- m:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for {
		msg, err := sub.Receive(ctx)
		if err != nil {
			var lagged *chat.LaggedError
			if errors.As(err, &lagged) {
				if !send(laggedMsg{n: lagged.N}) {
					return
				}
				continue
			}
			if ctx.Err() == nil {
				send(roomClosedMsg{err: err})
			}
			return
		}

		switch m := msg.(type) {
		case *chat.ChatMessage:
			if !send(chatMsg{msg: m}) {
				return
			}
			go watchContent(ctx, m, send)
		case *chat.ErrorMessage:
			if !send(errorMsg{text: m.Msg}) {
				return
			}
		}
	}
}

func watchContent(ctx context.Context, msg *chat.ChatMessage, send func(tea.Msg) bool) {
	r := msg.Content.Subscribe()
	for {
		snap, err := r.Next(ctx)
		if err != nil {
			if !errors.Is(err, chat.ErrContentComplete) && ctx.Err() == nil {
				log.Debug().Err(err).Str("component", "ui").Str("message_id", msg.ID.String()).Msg("content watcher stopped")
			}
			return
		}
		if !send(contentMsg{id: msg.ID, snap: snap}) || snap.Complete {
			return
		}
	}
}

func waitForEvent(ch <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		return <-ch
	}
}
