package chat

import (
	"context"
	"sync"

	"github.com/go-go-golems/chorus/pkg/profiles"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

const DefaultCapacity = 100

// Room is the broadcast hub of a chat session. Every subscription present at
// publish time receives the message, in one global order shared by all
// publishers.
//
// Messages are kept in a ring of fixed capacity. A subscriber that falls more
// than capacity messages behind loses the oldest ones and gets a
// *LaggedError; publishers never wait for slow subscribers.
type Room struct {
	profiles []*profiles.Profile
	capacity uint64

	mu          sync.Mutex
	ring        []Message
	tail        uint64
	notify      chan struct{}
	closed      bool
	subscribers int
}

func NewRoom(roster []*profiles.Profile, capacity int) *Room {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Room{
		profiles: append([]*profiles.Profile(nil), roster...),
		capacity: uint64(capacity),
		ring:     make([]Message, capacity),
		notify:   make(chan struct{}),
	}
}

// Profiles returns the roster. Callers must not modify it.
func (r *Room) Profiles() []*profiles.Profile {
	return r.profiles
}

// Profile looks up a roster member by id.
func (r *Room) Profile(id string) (*profiles.Profile, bool) {
	return lo.Find(r.profiles, func(p *profiles.Profile) bool {
		return p.ID == id
	})
}

func (r *Room) Capacity() int {
	return int(r.capacity)
}

// Subscribe returns a subscription that starts with the next published
// message. Nothing published earlier is replayed.
func (r *Room) Subscribe() *Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscribers++
	log.Debug().Str("component", "room").Int("subscribers", r.subscribers).Msg("subscribed")
	return &Subscription{room: r, next: r.tail}
}

// SubscriberCount returns the number of live subscriptions.
func (r *Room) SubscriberCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.subscribers
}

func (r *Room) PublishChat(msg *ChatMessage) error {
	return r.publish(msg)
}

func (r *Room) PublishError(msg *ErrorMessage) error {
	return r.publish(msg)
}

func (r *Room) publish(msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	if r.subscribers == 0 {
		return ErrNoSubscribers
	}
	r.ring[r.tail%r.capacity] = msg
	r.tail++
	close(r.notify)
	r.notify = make(chan struct{})
	log.Debug().
		Str("component", "room").
		Str("message_id", msg.MessageID().String()).
		Uint64("seq", r.tail-1).
		Msg("published")
	return nil
}

// Close stops the room from accepting messages. Subscribers drain what is
// still buffered for them and then receive ErrClosed.
func (r *Room) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	close(r.notify)
	r.notify = make(chan struct{})
	log.Debug().Str("component", "room").Msg("closed")
}

// Subscription is one reader position in a Room. It is meant to be used from
// a single goroutine.
type Subscription struct {
	room   *Room
	next   uint64
	closed bool
}

// Receive blocks until the next message is available.
//
// It returns a *LaggedError if messages were dropped for this subscriber;
// the subscription has then skipped ahead and the next call continues with
// the oldest retained message. ErrClosed is terminal.
func (s *Subscription) Receive(ctx context.Context) (Message, error) {
	for {
		msg, notify, err := s.poll()
		if err != ErrEmpty {
			return msg, err
		}
		select {
		case <-notify:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// TryReceive is the non-blocking variant of Receive. It returns ErrEmpty when
// nothing is pending.
func (s *Subscription) TryReceive() (Message, error) {
	msg, _, err := s.poll()
	return msg, err
}

func (s *Subscription) poll() (Message, <-chan struct{}, error) {
	r := s.room
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.closed {
		return nil, nil, ErrClosed
	}

	var oldest uint64
	if r.tail > r.capacity {
		oldest = r.tail - r.capacity
	}
	if s.next < oldest {
		skipped := oldest - s.next
		s.next = oldest
		log.Warn().Str("component", "room").Uint64("skipped", skipped).Msg("subscriber lagged")
		return nil, nil, &LaggedError{N: skipped}
	}
	if s.next == r.tail {
		if r.closed {
			return nil, nil, ErrClosed
		}
		return nil, r.notify, ErrEmpty
	}
	msg := r.ring[s.next%r.capacity]
	s.next++
	return msg, nil, nil
}

// Close drops the subscription. Once every subscription is closed the room
// refuses publishes with ErrNoSubscribers.
func (s *Subscription) Close() {
	r := s.room
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	r.subscribers--
	log.Debug().Str("component", "room").Int("subscribers", r.subscribers).Msg("unsubscribed")
}
