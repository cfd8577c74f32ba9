package eventtap

import (
	"context"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/go-go-golems/chorus/pkg/chat"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Tap mirrors a room to a watermill publisher. It only observes: nothing it
// does is published back to the room.
type Tap struct {
	sub       *chat.Subscription
	publisher message.Publisher
	topic     string

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
	err     error
}

// NewTap subscribes to room right away.
func NewTap(room *chat.Room, publisher message.Publisher, topic string) *Tap {
	return &Tap{
		sub:       room.Subscribe(),
		publisher: publisher,
		topic:     topic,
		done:      make(chan struct{}),
	}
}

// Start launches the mirror loop. Calling it again is a no-op.
func (t *Tap) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.started = true
	t.mu.Unlock()

	go func() {
		err := t.run(runCtx)
		t.mu.Lock()
		t.err = err
		t.mu.Unlock()
		close(t.done)
	}()
	return nil
}

func (t *Tap) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		t.cancel()
	}
}

// Wait returns once the loop has exited. A closed room is a normal exit.
func (t *Tap) Wait() error {
	<-t.done
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func (t *Tap) Close() {
	t.Stop()
	t.sub.Close()
}

func (t *Tap) run(ctx context.Context) error {
	log.Info().Str("component", "eventtap").Str("topic", t.topic).Msg("event tap started")
	defer log.Info().Str("component", "eventtap").Str("topic", t.topic).Msg("event tap stopped")
	for {
		msg, err := t.sub.Receive(ctx)
		if err != nil {
			var lagged *chat.LaggedError
			if errors.As(err, &lagged) {
				log.Warn().Str("component", "eventtap").Uint64("skipped", lagged.N).Msg("event tap lagged behind the room")
				continue
			}
			if errors.Is(err, chat.ErrClosed) {
				return nil
			}
			return err
		}

		ev, err := EventFromMessage(ctx, msg)
		if err != nil {
			return err
		}
		wm, err := ev.ToMessage()
		if err != nil {
			return err
		}
		if err := t.publisher.Publish(t.topic, wm); err != nil {
			// the mirror is best effort, the room keeps going
			log.Warn().Err(err).Str("component", "eventtap").Str("event_id", ev.ID).Msg("could not publish event")
			continue
		}
		log.Debug().Str("component", "eventtap").Str("event_id", ev.ID).Str("type", string(ev.Type)).Msg("published event")
	}
}
