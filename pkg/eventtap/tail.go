package eventtap

import (
	"context"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Cursor locates an event in the stream it was read from.
type Cursor struct {
	StreamID string
	Seq      uint64
}

// Tailer reads events mirrored by a Tap back from a subscriber and hands
// them to a callback in order.
type Tailer struct {
	subscriber message.Subscriber
	topic      string
	onEvent    func(Event, Cursor)

	seq atomic.Uint64
}

func NewTailer(subscriber message.Subscriber, topic string, onEvent func(Event, Cursor)) *Tailer {
	return &Tailer{
		subscriber: subscriber,
		topic:      topic,
		onEvent:    onEvent,
	}
}

// Run consumes until ctx is cancelled or the subscription ends.
func (t *Tailer) Run(ctx context.Context) error {
	ch, err := t.subscriber.Subscribe(ctx, t.topic)
	if err != nil {
		return errors.Wrapf(err, "could not subscribe to %s", t.topic)
	}
	log.Info().Str("component", "eventtap").Str("topic", t.topic).Msg("tailer started")
	for msg := range ch {
		ev, err := DecodeEvent(msg.Payload)
		if err != nil {
			log.Warn().Err(err).Str("component", "eventtap").Msg("tailer: failed to decode event")
			msg.Ack()
			continue
		}
		streamID := extractStreamID(msg)
		if t.onEvent != nil {
			t.onEvent(ev, Cursor{StreamID: streamID, Seq: t.nextSeq(streamID)})
		}
		msg.Ack()
	}
	log.Info().Str("component", "eventtap").Str("topic", t.topic).Msg("tailer stopped")
	return ctx.Err()
}

// nextSeq derives a monotonic sequence number from the redis stream id when
// there is one, and from a local counter otherwise.
func (t *Tailer) nextSeq(streamID string) uint64 {
	derived, ok := deriveSeqFromStreamID(streamID)
	for {
		current := t.seq.Load()
		// without a stream id the last seq is simply counted up
		candidate := derived
		if !ok || candidate <= current {
			candidate = current + 1
		}
		if t.seq.CompareAndSwap(current, candidate) {
			return candidate
		}
	}
}

func extractStreamID(msg *message.Message) string {
	if msg == nil || msg.Metadata == nil {
		return ""
	}
	for _, k := range []string{"xid", "redis_xid"} {
		if v := msg.Metadata.Get(k); v != "" {
			return v
		}
	}
	return ""
}

// deriveSeqFromStreamID turns a "<ms>-<n>" redis stream id into ms*1e6+n.
func deriveSeqFromStreamID(streamID string) (uint64, bool) {
	parts := strings.Split(streamID, "-")
	if len(parts) != 2 {
		return 0, false
	}
	ms, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return 0, false
	}
	n, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return ms*1_000_000 + n, true
}
