package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/go-go-golems/chorus/pkg/chat"
	"github.com/go-go-golems/chorus/pkg/llm"
	"github.com/go-go-golems/chorus/pkg/profiles"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type State int32

const (
	StateIdle State = iota
	StateAwaitEvent
	StateDeciding
	StateReplying
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitEvent:
		return "await-event"
	case StateDeciding:
		return "deciding"
	case StateReplying:
		return "replying"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Planner watches a room and, after every chat message, asks the backend
// which persona of the roster should speak next. The chosen persona's reply
// is streamed into the room.
//
// One Planner serves the whole roster of a room.
type Planner struct {
	room    *chat.Room
	backend llm.Backend
	sub     *chat.Subscription
	summary string

	// history is only touched by the run goroutine.
	history []settledMessage

	state atomic.Int32

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
	err     error
}

// NewPlanner subscribes to room right away, so messages published before
// Start are not lost.
func NewPlanner(room *chat.Room, backend llm.Backend) *Planner {
	return &Planner{
		room:    room,
		backend: backend,
		sub:     room.Subscribe(),
		summary: SummarizeProfiles(room.Profiles()),
		done:    make(chan struct{}),
	}
}

func (p *Planner) State() State {
	return State(p.state.Load())
}

// Start launches the planner loop. Calling it again is a no-op.
func (p *Planner) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.started = true
	p.mu.Unlock()

	go func() {
		err := p.run(runCtx)
		p.state.Store(int32(StateStopped))
		p.mu.Lock()
		p.err = err
		p.mu.Unlock()
		close(p.done)
	}()
	return nil
}

// Stop cancels the loop. Wait returns once it has exited.
func (p *Planner) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
	}
}

// Wait blocks until the loop has exited and returns the reason. It must only
// be called after Start.
func (p *Planner) Wait() error {
	<-p.done
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Done is closed once the loop has exited.
func (p *Planner) Done() <-chan struct{} {
	return p.done
}

// Close stops the loop and drops the room subscription.
func (p *Planner) Close() {
	p.Stop()
	p.sub.Close()
}

func (p *Planner) run(ctx context.Context) error {
	for {
		p.state.Store(int32(StateAwaitEvent))
		msg, err := p.sub.Receive(ctx)
		if err != nil {
			var lagged *chat.LaggedError
			if errors.As(err, &lagged) {
				log.Warn().Str("component", "planner").Uint64("skipped", lagged.N).Msg("planner lagged behind the room")
				continue
			}
			return err
		}

		cm, ok := msg.(*chat.ChatMessage)
		if !ok {
			continue
		}

		err = p.handleChat(ctx, cm)
		if err == nil {
			log.Debug().Str("component", "planner").Str("message_id", cm.ID.String()).Msg("handled message")
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn().Err(err).Str("component", "planner").Msg("turn failed")
		if perr := p.room.PublishError(chat.NewErrorMessage(fmt.Sprintf("Failed to handle message: %v", err))); perr != nil {
			return errors.Wrap(perr, "could not publish error message")
		}
	}
}

func (p *Planner) handleChat(ctx context.Context, msg *chat.ChatMessage) error {
	p.history = append(p.history, settledMessage{msg: msg})

	p.state.Store(int32(StateDeciding))
	if err := p.settle(ctx); err != nil {
		return err
	}

	raw, err := p.backend.Complete(ctx, llm.SingleTurn(decisionPrompt(p.summary, p.history)))
	if err != nil {
		return asBackendError("complete", err)
	}
	next, err := ParseDecision(raw, p.room.Profiles())
	if err != nil {
		return err
	}
	if next == nil {
		log.Info().Str("component", "planner").Msg("no reply needed")
		return nil
	}

	log.Info().Str("component", "planner").Str("profile", next.ID).Msg("selected next speaker")
	p.state.Store(int32(StateReplying))
	return p.reply(ctx, next)
}

// settle waits for every history entry to finish streaming. Entries that were
// aborted contribute the text they had.
func (p *Planner) settle(ctx context.Context) error {
	for i := range p.history {
		h := &p.history[i]
		if h.settled || h.msg.Content == nil {
			continue
		}
		snap, err := h.msg.Content.WaitForCompletion(ctx)
		if err != nil && !errors.Is(err, chat.ErrContentClosed) {
			return errors.Wrap(err, "waiting for message to settle")
		}
		h.text = StripEcho(snap.Text(), EchoPrefix(h.msg.FromUsername, h.msg.FromUserID))
		h.settled = true
	}
	return nil
}

// backendFor resolves a profile's provider hint. Backends that cannot route
// only serve the default provider.
func (p *Planner) backendFor(profile *profiles.Profile) (llm.Backend, error) {
	if sel, ok := p.backend.(llm.Selector); ok {
		return sel.Select(profile.LLMProvider)
	}
	if provider := profile.LLMProvider; provider != "" && !strings.EqualFold(provider, profiles.DefaultProvider) {
		return nil, &llm.BackendError{Op: "stream", Err: errors.Errorf("unsupported llm provider %q", provider)}
	}
	return p.backend, nil
}

func (p *Planner) reply(ctx context.Context, profile *profiles.Profile) error {
	backend, err := p.backendFor(profile)
	if err != nil {
		return err
	}

	content := chat.NewContent()
	msg := chat.NewChatMessage(profile.ID, profile.Name, chat.RoleAssistant, content)
	if err := p.room.PublishChat(msg); err != nil {
		_ = content.Abort(err)
		return errors.Wrap(err, "could not announce reply")
	}

	if err := p.streamInto(ctx, backend, profile, content); err != nil {
		_ = content.Abort(err)
		return err
	}
	return content.Complete()
}

func (p *Planner) streamInto(ctx context.Context, backend llm.Backend, profile *profiles.Profile, content *chat.Content) error {
	stream, err := backend.Stream(ctx, replyRequest(profile, p.history))
	if err != nil {
		return asBackendError("stream", err)
	}
	defer func() {
		_ = stream.Close()
	}()

	stripper := newEchoStripper(EchoPrefix(profile.Name, profile.ID))
	for stream.Next() {
		if out := stripper.Feed(stream.Current()); out != "" {
			if err := content.Append(out); err != nil {
				return err
			}
		}
	}
	if err := stream.Err(); err != nil {
		return asBackendError("stream", err)
	}
	if out := stripper.Flush(); out != "" {
		return content.Append(out)
	}
	return nil
}

func asBackendError(op string, err error) error {
	var be *llm.BackendError
	if errors.As(err, &be) {
		return err
	}
	return &llm.BackendError{Op: op, Err: err}
}
