package llm

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/go-go-golems/geppetto/pkg/events"
	"github.com/go-go-golems/geppetto/pkg/inference/engine"
	"github.com/go-go-golems/geppetto/pkg/inference/engine/factory"
	"github.com/go-go-golems/geppetto/pkg/steps/ai/settings"
	"github.com/go-go-golems/geppetto/pkg/steps/ai/types"
	"github.com/go-go-golems/geppetto/pkg/turns"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// EngineBuilder returns the engine serving model.
type EngineBuilder func(model string) (engine.Engine, error)

// GeppettoBackend runs requests through geppetto inference engines. Streamed
// chunks are the partial-completion events the engine publishes to the sinks
// attached to the run context.
type GeppettoBackend struct {
	provider     string
	defaultModel string
	build        EngineBuilder

	mu      sync.Mutex
	engines map[string]engine.Engine
}

var _ Backend = (*GeppettoBackend)(nil)

func NewGeppettoBackend(provider, defaultModel string, build EngineBuilder) *GeppettoBackend {
	return &GeppettoBackend{
		provider:     provider,
		defaultModel: defaultModel,
		build:        build,
		engines:      map[string]engine.Engine{},
	}
}

// NewGeppettoBackendFromSettings configures geppetto step settings for the
// provider's api type and builds one engine per model on first use.
func NewGeppettoBackendFromSettings(provider string, s ProviderSettings) (*GeppettoBackend, error) {
	base, err := stepSettingsFor(provider, s)
	if err != nil {
		return nil, err
	}
	build := func(model string) (engine.Engine, error) {
		ss := base.Clone()
		ss.Chat.Engine = &model
		return factory.NewEngineFromStepSettings(ss)
	}
	return NewGeppettoBackend(provider, s.Model, build), nil
}

func stepSettingsFor(provider string, s ProviderSettings) (*settings.StepSettings, error) {
	ss, err := settings.NewStepSettings()
	if err != nil {
		return nil, errors.Wrap(err, "could not create step settings")
	}
	apiType := types.ApiType(s.APIType)
	if apiType == "" {
		apiType = types.ApiType(provider)
	}
	ss.Chat.ApiType = &apiType
	ss.Chat.Stream = true
	temperature := s.Temperature
	ss.Chat.Temperature = &temperature
	if s.MaxTokens > 0 {
		maxTokens := s.MaxTokens
		ss.Chat.MaxResponseTokens = &maxTokens
	}
	if ss.API.APIKeys == nil {
		ss.API.APIKeys = map[string]string{}
	}
	if ss.API.BaseUrls == nil {
		ss.API.BaseUrls = map[string]string{}
	}
	ss.API.APIKeys[string(apiType)+"-api-key"] = s.APIKey
	if s.BaseURL != "" {
		ss.API.BaseUrls[string(apiType)+"-base-url"] = s.BaseURL
	}
	return ss, nil
}

func (b *GeppettoBackend) engineFor(model string) (engine.Engine, error) {
	if model == "" {
		model = b.defaultModel
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if eng, ok := b.engines[model]; ok {
		return eng, nil
	}
	eng, err := b.build(model)
	if err != nil {
		return nil, errors.Wrapf(err, "could not build %s engine for model %s", b.provider, model)
	}
	b.engines[model] = eng
	log.Debug().Str("component", "llm").Str("provider", b.provider).Str("model", model).Msg("built inference engine")
	return eng, nil
}

func requestTurn(req Request) *turns.Turn {
	t := &turns.Turn{}
	if req.SystemPrompt != "" {
		turns.AppendBlock(t, turns.NewSystemTextBlock(req.SystemPrompt))
	}
	for _, c := range req.Conversation {
		switch c.Role {
		case RoleAssistant:
			turns.AppendBlock(t, turns.NewAssistantTextBlock(c.Content))
		case RoleSystem:
			turns.AppendBlock(t, turns.NewSystemTextBlock(c.Content))
		default:
			turns.AppendBlock(t, turns.NewUserTextBlock(c.Content))
		}
	}
	return t
}

// assistantText returns the text of the assistant blocks appended after the
// first n blocks.
func assistantText(t *turns.Turn, n int) string {
	if t == nil {
		return ""
	}
	var sb strings.Builder
	for i := n; i < len(t.Blocks); i++ {
		b := t.Blocks[i]
		if b.Role != turns.RoleAssistant {
			continue
		}
		if s, ok := b.Payload[turns.PayloadKeyText].(string); ok {
			sb.WriteString(s)
		}
	}
	return sb.String()
}

func (b *GeppettoBackend) Complete(ctx context.Context, req Request) (string, error) {
	eng, err := b.engineFor(req.Model)
	if err != nil {
		return "", &BackendError{Op: "complete", Err: err}
	}
	log.Info().Str("component", "llm").Str("provider", b.provider).Str("model", req.Model).Msg("inference request")
	logPayload(req)

	seed := requestTurn(req)
	n := len(seed.Blocks)
	out, err := eng.RunInference(ctx, seed)
	if err != nil {
		return "", &BackendError{Op: "complete", Err: err}
	}
	return assistantText(out, n), nil
}

func (b *GeppettoBackend) Stream(ctx context.Context, req Request) (Stream, error) {
	eng, err := b.engineFor(req.Model)
	if err != nil {
		return nil, &BackendError{Op: "stream", Err: err}
	}
	log.Info().Str("component", "llm").Str("provider", b.provider).Str("model", req.Model).Msg("streaming inference request")
	logPayload(req)

	runCtx, cancel := context.WithCancel(ctx)
	s := &engineStream{
		chunks: make(chan string),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	sink := &deltaSink{ctx: runCtx, out: s.chunks}
	seed := requestTurn(req)
	n := len(seed.Blocks)

	go func() {
		defer close(s.done)
		defer close(s.chunks)
		out, err := eng.RunInference(events.WithEventSinks(runCtx, sink), seed)
		if err != nil {
			s.err = &BackendError{Op: "stream", Err: err}
			return
		}
		// engines that do not stream only report the final turn
		if !sink.sent.Load() {
			if text := assistantText(out, n); text != "" {
				select {
				case s.chunks <- text:
				case <-runCtx.Done():
				}
			}
		}
	}()
	return s, nil
}

// deltaSink forwards partial-completion deltas of one inference run.
type deltaSink struct {
	ctx  context.Context
	out  chan<- string
	sent atomic.Bool
}

var _ events.EventSink = (*deltaSink)(nil)

func (d *deltaSink) PublishEvent(ev events.Event) error {
	partial, ok := ev.(*events.EventPartialCompletion)
	if !ok || partial.Delta == "" {
		return nil
	}
	select {
	case d.out <- partial.Delta:
		d.sent.Store(true)
		return nil
	case <-d.ctx.Done():
		return d.ctx.Err()
	}
}

type engineStream struct {
	chunks   chan string
	cancel   context.CancelFunc
	done     chan struct{}
	current  string
	finished bool
	// err is written by the inference goroutine before chunks is closed.
	err error
}

var _ Stream = (*engineStream)(nil)

func (s *engineStream) Next() bool {
	c, ok := <-s.chunks
	if !ok {
		s.current = ""
		s.finished = true
		return false
	}
	s.current = c
	return true
}

func (s *engineStream) Current() string {
	return s.current
}

func (s *engineStream) Err() error {
	if !s.finished {
		return nil
	}
	return s.err
}

func (s *engineStream) Close() error {
	s.cancel()
	<-s.done
	return nil
}
