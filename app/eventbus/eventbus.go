// Package eventbus carries domain events between modules. With a NATS URL it
// runs on JetStream through watermill-nats; without one it falls back to an
// in-process channel bus so a single server can run without a broker.
package eventbus

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	nc "github.com/nats-io/nats.go"
)

// EventBus publishes and subscribes watermill messages.
type EventBus interface {
	message.Publisher
	message.Subscriber
}

// Bus is the concrete EventBus.
type Bus struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	logger     *slog.Logger
	backend    string
}

// NewEventBus connects to NATS JetStream, or builds an in-process bus when
// natsURL is empty.
func NewEventBus(ctx context.Context, natsURL string, logger *slog.Logger) (*Bus, error) {
	wmLogger := watermill.NewSlogLogger(logger)

	if natsURL == "" {
		logger.InfoContext(ctx, "No NATS URL configured, using in-process event bus")
		ch := gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: 256,
			Persistent:          false,
		}, wmLogger)
		return &Bus{publisher: ch, subscriber: ch, logger: logger, backend: "gochannel"}, nil
	}

	natsOptions := []nc.Option{
		nc.RetryOnFailedConnect(true),
		nc.MaxReconnects(-1),
		nc.ReconnectWait(2 * time.Second),
		nc.Name("judgeboard"),
	}
	marshaler := &nats.NATSMarshaler{}

	publisher, err := nats.NewPublisher(nats.PublisherConfig{
		URL:         natsURL,
		NatsOptions: natsOptions,
		Marshaler:   marshaler,
		JetStream: nats.JetStreamConfig{
			Disabled:      false,
			AutoProvision: true,
			TrackMsgId:    true,
		},
	}, wmLogger)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to create Watermill publisher", slog.Any("error", err))
		return nil, fmt.Errorf("failed to create Watermill publisher: %w", err)
	}

	subscriber, err := nats.NewSubscriber(nats.SubscriberConfig{
		URL:              natsURL,
		NatsOptions:      natsOptions,
		Unmarshaler:      marshaler,
		QueueGroupPrefix: "judgeboard",
		SubscribersCount: 2,
		AckWaitTimeout:   30 * time.Second,
		CloseTimeout:     10 * time.Second,
		JetStream: nats.JetStreamConfig{
			Disabled:      false,
			AutoProvision: true,
			DurablePrefix: "judgeboard",
			SubscribeOptions: []nc.SubOpt{
				nc.DeliverAll(),
				nc.AckExplicit(),
			},
		},
	}, wmLogger)
	if err != nil {
		publisher.Close()
		logger.ErrorContext(ctx, "Failed to create Watermill subscriber", slog.Any("error", err))
		return nil, fmt.Errorf("failed to create Watermill subscriber: %w", err)
	}

	logger.InfoContext(ctx, "Connected event bus to NATS JetStream", slog.String("url", natsURL))
	return &Bus{publisher: publisher, subscriber: subscriber, logger: logger, backend: "nats"}, nil
}

// Publish sends messages to a topic.
func (b *Bus) Publish(topic string, messages ...*message.Message) error {
	for _, msg := range messages {
		if msg.UUID == "" {
			msg.UUID = watermill.NewUUID()
		}
	}
	if err := b.publisher.Publish(topic, messages...); err != nil {
		b.logger.Error("Failed to publish message",
			slog.String("topic", topic),
			slog.Any("error", err),
		)
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	b.logger.Debug("Published messages", slog.String("topic", topic), slog.Int("count", len(messages)))
	return nil
}

// Subscribe returns the message stream for a topic.
func (b *Bus) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	messages, err := b.subscriber.Subscribe(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}
	b.logger.InfoContext(ctx, "Subscription started", slog.String("topic", topic), slog.String("backend", b.backend))
	return messages, nil
}

// Backend names the transport in use.
func (b *Bus) Backend() string { return b.backend }

// Close shuts down the publisher and subscriber.
func (b *Bus) Close() error {
	var firstErr error
	if err := b.publisher.Close(); err != nil {
		firstErr = err
	}
	// gochannel uses one value for both sides.
	if b.backend != "gochannel" {
		if err := b.subscriber.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
