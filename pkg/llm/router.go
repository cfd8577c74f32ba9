package llm

import (
	"context"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// DefaultProvider is the provider served by the OpenAI-compatible backend.
const DefaultProvider = "openai"

// Selector picks the backend for a profile's provider hint.
type Selector interface {
	Select(provider string) (Backend, error)
}

// Router is a Backend that answers with its default backend and hands out
// provider-specific backends through Select.
type Router struct {
	def      Backend
	backends map[string]Backend
}

var (
	_ Backend  = (*Router)(nil)
	_ Selector = (*Router)(nil)
)

func NewRouter(def Backend) *Router {
	return &Router{
		def:      def,
		backends: map[string]Backend{DefaultProvider: def},
	}
}

// NewRouterFromSettings serves the default provider with the openai-go
// backend and every configured extra provider with a geppetto engine.
func NewRouterFromSettings(s *Settings) (*Router, error) {
	r := NewRouter(NewOpenAIBackend(s))
	for name, ps := range s.Providers {
		b, err := NewGeppettoBackendFromSettings(name, ps)
		if err != nil {
			return nil, errors.Wrapf(err, "could not configure provider %s", name)
		}
		r.Register(name, b)
	}
	return r, nil
}

// Register serves provider with b, replacing any earlier registration.
func (r *Router) Register(provider string, b Backend) {
	r.backends[strings.ToLower(provider)] = b
}

// Providers lists the registered provider names.
func (r *Router) Providers() []string {
	ret := make([]string, 0, len(r.backends))
	for name := range r.backends {
		ret = append(ret, name)
	}
	sort.Strings(ret)
	return ret
}

// Select returns the backend for provider. An empty provider selects the
// default backend.
func (r *Router) Select(provider string) (Backend, error) {
	if provider == "" {
		return r.def, nil
	}
	b, ok := r.backends[strings.ToLower(provider)]
	if !ok {
		return nil, &BackendError{Op: "stream", Err: errors.Errorf("unsupported llm provider %q", provider)}
	}
	return b, nil
}

func (r *Router) Complete(ctx context.Context, req Request) (string, error) {
	return r.def.Complete(ctx, req)
}

func (r *Router) Stream(ctx context.Context, req Request) (Stream, error) {
	return r.def.Stream(ctx, req)
}
