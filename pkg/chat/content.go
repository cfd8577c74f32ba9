package chat

import (
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// Snapshot is the visible state of a Content at one version.
type Snapshot struct {
	Chunks   []string
	Complete bool
	// Err is set when the writer aborted the content. Complete is true in
	// that case as well: an aborted content never changes again.
	Err     error
	Version uint64
}

// Text joins all chunks.
func (s Snapshot) Text() string {
	return strings.Join(s.Chunks, "")
}

// Content is a single-writer, multi-reader observable buffer of text chunks
// backing one streamed reply.
//
// Readers only ever see the latest published state. A reader that is not
// waiting while several chunks arrive observes the accumulated result once,
// never an intermediate state out of order. Once Complete (or Abort) has been
// called the chunk sequence is frozen.
type Content struct {
	mu       sync.Mutex
	chunks   []string
	complete bool
	err      error
	version  uint64
	// notify is closed and replaced on every state change.
	notify chan struct{}
}

// NewContent announces an empty, incomplete content. The returned value is
// the write handle; readers are minted with Subscribe.
func NewContent() *Content {
	return &Content{notify: make(chan struct{})}
}

// NewCompletedContent returns a content holding text as its only chunk,
// already complete.
func NewCompletedContent(text string) *Content {
	c := NewContent()
	c.chunks = []string{text}
	c.complete = true
	c.version = 1
	return c
}

// Append publishes a new chunk to all readers.
func (c *Content) Append(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.complete {
		return ErrContentComplete
	}
	c.chunks = append(c.chunks, text)
	c.bumpLocked()
	return nil
}

// Complete freezes the chunk sequence. It may only be called once.
func (c *Content) Complete() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.complete {
		return ErrContentComplete
	}
	c.complete = true
	c.bumpLocked()
	return nil
}

// Abort freezes the content in an errored terminal state, keeping whatever
// chunks were already published.
func (c *Content) Abort(cause error) error {
	if cause == nil {
		cause = errors.New("aborted")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.complete {
		return ErrContentComplete
	}
	c.complete = true
	c.err = cause
	c.bumpLocked()
	return nil
}

func (c *Content) bumpLocked() {
	c.version++
	close(c.notify)
	c.notify = make(chan struct{})
}

// Current returns the instantaneous state without blocking.
func (c *Content) Current() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Content) snapshotLocked() Snapshot {
	return Snapshot{
		// the full slice expression keeps later appends out of reach of the
		// caller's copy of the header
		Chunks:   c.chunks[:len(c.chunks):len(c.chunks)],
		Complete: c.complete,
		Err:      c.err,
		Version:  c.version,
	}
}

// Subscribe returns a reader positioned at the current state. A reader
// subscribing after completion observes the completed state immediately.
func (c *Content) Subscribe() *ContentReader {
	return &ContentReader{content: c}
}

// WaitForCompletion blocks until the content is settled.
func (c *Content) WaitForCompletion(ctx context.Context) (Snapshot, error) {
	return c.Subscribe().WaitForCompletion(ctx)
}

// ContentReader tracks the last version of a Content observed by one reader.
type ContentReader struct {
	content *Content
	seen    uint64
}

// Current returns the latest visible state and marks it as observed.
func (r *ContentReader) Current() Snapshot {
	s := r.content.Current()
	r.seen = s.Version
	return s
}

// Changed returns a channel that is closed once a state newer than the last
// observed one exists. It is already closed if that is the case now.
func (r *ContentReader) Changed() <-chan struct{} {
	c := r.content
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.version > r.seen {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return c.notify
}

// Next blocks until a state newer than the last observed one is available
// and returns the latest state. Intermediate states may be skipped.
func (r *ContentReader) Next(ctx context.Context) (Snapshot, error) {
	c := r.content
	for {
		c.mu.Lock()
		if c.version > r.seen {
			s := c.snapshotLocked()
			c.mu.Unlock()
			r.seen = s.Version
			return s, nil
		}
		if c.complete {
			s := c.snapshotLocked()
			c.mu.Unlock()
			return s, ErrContentComplete
		}
		notify := c.notify
		c.mu.Unlock()

		select {
		case <-notify:
		case <-ctx.Done():
			return r.content.Current(), ctx.Err()
		}
	}
}

// WaitForCompletion blocks until the content is complete. If the writer
// aborted, the partial snapshot is returned together with ErrContentClosed.
func (r *ContentReader) WaitForCompletion(ctx context.Context) (Snapshot, error) {
	c := r.content
	for {
		c.mu.Lock()
		if c.complete {
			s := c.snapshotLocked()
			c.mu.Unlock()
			r.seen = s.Version
			if s.Err != nil {
				return s, errors.Wrapf(ErrContentClosed, "%v", s.Err)
			}
			return s, nil
		}
		notify := c.notify
		c.mu.Unlock()

		select {
		case <-notify:
		case <-ctx.Done():
			return r.content.Current(), ctx.Err()
		}
	}
}
