package llm

import (
	"context"
	"fmt"
	"strings"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Turn is one entry of the conversation sent to a backend.
type Turn struct {
	Role    string
	Content string
}

// Request is a single generation request.
type Request struct {
	SystemPrompt string
	Conversation []Turn
	// Model overrides the backend's configured model when set.
	Model string
}

// SingleTurn builds a request with no system prompt and prompt as the only
// user turn.
func SingleTurn(prompt string) Request {
	return Request{Conversation: []Turn{{Role: RoleUser, Content: prompt}}}
}

// Stream is a finite, lazily produced sequence of text chunks.
//
//	for s.Next() {
//		chunk := s.Current()
//	}
//	if err := s.Err(); err != nil { ... }
type Stream interface {
	Next() bool
	Current() string
	Err() error
	Close() error
}

//go:generate mockgen -source=backend.go -destination=mocks/backend.go -package=mocks

// Backend is a text-generation capability.
type Backend interface {
	// Complete returns the whole generated text.
	Complete(ctx context.Context, req Request) (string, error)
	// Stream returns the generated text chunk by chunk.
	Stream(ctx context.Context, req Request) (Stream, error)
}

// BackendError wraps a failure of the generation backend (transport, HTTP
// status, decoding).
type BackendError struct {
	Op  string
	Err error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("llm %s: %v", e.Op, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// Collect drains a stream into a single string.
func Collect(s Stream) (string, error) {
	defer func() {
		_ = s.Close()
	}()
	var sb strings.Builder
	for s.Next() {
		sb.WriteString(s.Current())
	}
	return sb.String(), s.Err()
}

// SliceStream replays fixed chunks, optionally failing after the last one.
type SliceStream struct {
	chunks []string
	fail   error
	idx    int
}

var _ Stream = (*SliceStream)(nil)

func NewSliceStream(chunks []string, fail error) *SliceStream {
	return &SliceStream{chunks: chunks, fail: fail, idx: -1}
}

func (s *SliceStream) Next() bool {
	if s.idx+1 >= len(s.chunks) {
		s.idx = len(s.chunks)
		return false
	}
	s.idx++
	return true
}

func (s *SliceStream) Current() string {
	if s.idx < 0 || s.idx >= len(s.chunks) {
		return ""
	}
	return s.chunks[s.idx]
}

func (s *SliceStream) Err() error {
	if s.idx >= len(s.chunks) {
		return s.fail
	}
	return nil
}

func (s *SliceStream) Close() error {
	return nil
}
