package server

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	rstream "github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Bus topics. Room topics carry fully-encoded envelope frames ready for
// websocket fanout; the other topics carry internal JSON payloads.
const (
	topicSessionsChanged = "sessions-changed"
	topicBotInbox        = "bot-inbox"
)

func roomTopic(sessionID string) string { return "room:" + sessionID }

// Bus is the server's internal pub/sub fabric. The default transport is
// in-process go channels; with Redis Streams enabled, multiple server
// instances share one fabric and room fanout crosses instances.
type Bus struct {
	pub message.Publisher
	sub message.Subscriber
}

func BuildBus(s RedisSettings) (*Bus, error) {
	logger := newWatermillLogger(log.Logger)

	if !s.Enabled {
		ch := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, logger)
		return &Bus{pub: ch, sub: ch}, nil
	}

	if s.Addr == "" {
		return nil, errors.New("bus: redis enabled but no addr")
	}
	client := redis.NewClient(&redis.Options{Addr: s.Addr})
	marshaler := rstream.DefaultMarshallerUnmarshaller{}

	pub, err := rstream.NewPublisher(rstream.PublisherConfig{
		Client:     client,
		Marshaller: marshaler,
	}, logger)
	if err != nil {
		return nil, errors.Wrap(err, "bus: redis publisher")
	}
	sub, err := rstream.NewSubscriber(rstream.SubscriberConfig{
		Client:        client,
		Unmarshaller:  marshaler,
		ConsumerGroup: s.Group,
		Consumer:      s.Consumer,
	}, logger)
	if err != nil {
		return nil, errors.Wrap(err, "bus: redis subscriber")
	}
	return &Bus{pub: pub, sub: sub}, nil
}

// Publish sends payload to topic with a fresh message uuid.
func (b *Bus) Publish(topic string, payload []byte) error {
	if b == nil || b.pub == nil {
		return errors.New("bus: not initialized")
	}
	return b.pub.Publish(topic, message.NewMessage(watermill.NewUUID(), payload))
}

// Subscribe returns the message stream for topic.
func (b *Bus) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	if b == nil || b.sub == nil {
		return nil, errors.New("bus: not initialized")
	}
	return b.sub.Subscribe(ctx, topic)
}

func (b *Bus) Close() error {
	if b == nil {
		return nil
	}
	var firstErr error
	if b.pub != nil {
		if err := b.pub.Close(); err != nil {
			firstErr = err
		}
	}
	// With the gochannel transport pub and sub are the same object.
	if b.sub != nil && any(b.sub) != any(b.pub) {
		if err := b.sub.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
