package redisstream

import (
	"context"
	"strings"

	"github.com/ThreeDotsLabs/watermill/message"
	rstream "github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/go-go-golems/geppetto/pkg/helpers"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Publisher is a watermill publisher writing to Redis Streams. Closing it
// also closes the underlying client.
type Publisher struct {
	message.Publisher
	client *redis.Client
}

func (p *Publisher) Close() error {
	err := p.Publisher.Close()
	if cerr := p.client.Close(); err == nil {
		err = cerr
	}
	return err
}

// Subscriber is the consumer-group counterpart of Publisher.
type Subscriber struct {
	message.Subscriber
	client *redis.Client
}

func (s *Subscriber) Close() error {
	err := s.Subscriber.Close()
	if cerr := s.client.Close(); err == nil {
		err = cerr
	}
	return err
}

func newClient(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "could not reach redis at %s", addr)
	}
	return client, nil
}

// BuildPublisher connects to Redis and returns a Redis Streams publisher.
func BuildPublisher(ctx context.Context, s Settings) (*Publisher, error) {
	client, err := newClient(ctx, s.Addr)
	if err != nil {
		return nil, err
	}
	pub, err := rstream.NewPublisher(rstream.PublisherConfig{
		Client:     client,
		Marshaller: rstream.DefaultMarshallerUnmarshaller{},
	}, helpers.NewWatermill(log.Logger))
	if err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "could not create redis publisher")
	}
	log.Info().Str("component", "redisstream").Str("addr", s.Addr).Str("stream", s.Stream).Msg("redis publisher ready")
	return &Publisher{Publisher: pub, client: client}, nil
}

// BuildGroupSubscriber returns a Redis Streams subscriber bound to the
// settings' consumer group and name. The group is created at the tail of the
// stream if it does not exist yet, so a new group does not replay history.
func BuildGroupSubscriber(ctx context.Context, s Settings) (*Subscriber, error) {
	client, err := newClient(ctx, s.Addr)
	if err != nil {
		return nil, err
	}
	if err := ensureGroupAtTail(ctx, client, s.Stream, s.Group); err != nil {
		_ = client.Close()
		return nil, err
	}
	sub, err := rstream.NewSubscriber(rstream.SubscriberConfig{
		Client:        client,
		Unmarshaller:  rstream.DefaultMarshallerUnmarshaller{},
		ConsumerGroup: s.Group,
		Consumer:      s.Consumer,
	}, helpers.NewWatermill(log.Logger))
	if err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "could not create redis subscriber")
	}
	return &Subscriber{Subscriber: sub, client: client}, nil
}

func ensureGroupAtTail(ctx context.Context, client *redis.Client, stream, group string) error {
	err := client.XGroupCreateMkStream(ctx, stream, group, "$").Err()
	if err != nil {
		// BUSYGROUP: the group already exists
		if strings.Contains(err.Error(), "BUSYGROUP") {
			return nil
		}
		return errors.Wrapf(err, "could not create consumer group %s on %s", group, stream)
	}
	log.Info().Str("component", "redisstream").Str("stream", stream).Str("group", group).Msg("created redis consumer group at $ (tail)")
	return nil
}
