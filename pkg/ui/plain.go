package ui

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/go-go-golems/chorus/pkg/chat"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

var errInputDone = errors.New("input closed")

// RunPlain is the line-mode UI: every line read from in is sent to the room,
// and every settled room message is printed to out. It returns nil when in
// reaches EOF and chat.ErrClosed when the room is closed.
func RunPlain(ctx context.Context, room *chat.Room, user User, in io.Reader, out io.Writer) error {
	sub := room.Subscribe()
	defer sub.Close()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			log.Warn().Err(err).Str("component", "ui").Msg("could not read input")
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for {
			select {
			case line, ok := <-lines:
				if !ok {
					return errInputDone
				}
				text := strings.TrimSpace(line)
				if text == "" {
					continue
				}
				if err := room.PublishChat(chat.NewUserMessage(user.ID, user.Name, text)); err != nil {
					return errors.Wrap(err, "could not send message")
				}
			case <-gctx.Done():
				return gctx.Err()
			}
		}
	})
	g.Go(func() error {
		return printRoom(gctx, sub, out)
	})

	err := g.Wait()
	if errors.Is(err, errInputDone) {
		return nil
	}
	return err
}

func printRoom(ctx context.Context, sub *chat.Subscription, out io.Writer) error {
	for {
		msg, err := sub.Receive(ctx)
		if err != nil {
			var lagged *chat.LaggedError
			if errors.As(err, &lagged) {
				_, _ = fmt.Fprintln(out, laggedNotice(lagged.N))
				continue
			}
			return err
		}
		switch m := msg.(type) {
		case *chat.ChatMessage:
			snap, err := m.Content.WaitForCompletion(ctx)
			if err != nil && !errors.Is(err, chat.ErrContentClosed) {
				return err
			}
			_, _ = fmt.Fprintf(out, "%s: %s\n", m.Speaker(), snap.Text())
		case *chat.ErrorMessage:
			_, _ = fmt.Fprintf(out, "ERROR: %s\n", m.Msg)
		}
	}
}
