package chat

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrClosed is returned by Receive once the room is closed and the
	// subscriber has drained its backlog, and by Publish after Close.
	ErrClosed = errors.New("room closed")
	// ErrNoSubscribers is returned by Publish when no subscription is alive.
	ErrNoSubscribers = errors.New("room has no subscribers")
	// ErrEmpty is returned by TryReceive when nothing is pending.
	ErrEmpty = errors.New("no pending message")

	// ErrContentComplete is returned when writing to a settled content cell.
	ErrContentComplete = errors.New("content already complete")
	// ErrContentClosed is returned by WaitForCompletion when the writer
	// aborted the content before completing it.
	ErrContentClosed = errors.New("content closed before completion")
)

// LaggedError reports that a subscriber fell behind the room's retention
// window and N messages were skipped for it.
type LaggedError struct {
	N uint64
}

func (e *LaggedError) Error() string {
	return fmt.Sprintf("subscriber lagged behind, %d messages skipped", e.N)
}

// IsLagged reports whether err is a *LaggedError.
func IsLagged(err error) bool {
	var lagged *LaggedError
	return errors.As(err, &lagged)
}
