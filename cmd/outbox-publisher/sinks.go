package main

import (
	"context"
	"fmt"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/furnique/furnique-backend/pkg/config"
	"github.com/furnique/furnique-backend/pkg/kafka"
	"github.com/furnique/furnique-backend/pkg/logger"
	"github.com/furnique/furnique-backend/pkg/pubsub"
)

type publishResult interface {
	Get(context.Context) (string, error)
}

type topicPublisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type pubSubSink struct {
	client   *pubsub.Client
	topicFor func(string) topicPublisher
}

func newPubSubSink(client *pubsub.Client) *pubSubSink {
	return &pubSubSink{
		client: client,
		topicFor: func(name string) topicPublisher {
			return gcpPublisher{client.Publisher(name)}
		},
	}
}

func (s *pubSubSink) Name() string { return "pubsub" }

func (s *pubSubSink) Ping(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Ping(ctx)
}

// Send ignores key; subscriptions are not created with message ordering.
func (s *pubSubSink) Send(ctx context.Context, topic, _ string, data []byte, attributes map[string]string) error {
	pub := s.topicFor(topic)
	if pub == nil {
		return fmt.Errorf("no publisher for topic %q", topic)
	}
	_, err := pub.Publish(ctx, &gcppubsub.Message{
		Data:       data,
		Attributes: attributes,
	}).Get(ctx)
	return err
}

type gcpPublisher struct {
	pub *gcppubsub.Publisher
}

func (p gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return p.pub.Publish(ctx, msg)
}

type kafkaProducer interface {
	Publish(ctx context.Context, topic, key string, value []byte, headers map[string]string) error
	Ping(context.Context) error
}

type kafkaSink struct {
	producer kafkaProducer
}

func (s kafkaSink) Name() string { return "kafka" }

func (s kafkaSink) Ping(ctx context.Context) error { return s.producer.Ping(ctx) }

func (s kafkaSink) Send(ctx context.Context, topic, key string, data []byte, attributes map[string]string) error {
	return s.producer.Publish(ctx, topic, key, data, attributes)
}

// openSink connects the broker selected by cfg.Eventing.Broker. The returned
// closer releases the connection.
func openSink(ctx context.Context, cfg *config.Config, logg *logger.Logger) (sink, func() error, error) {
	if cfg.Eventing.Broker == config.BrokerKafka {
		producer, err := kafka.NewProducer(cfg.Kafka, logg)
		if err != nil {
			return nil, nil, err
		}
		return kafkaSink{producer: producer}, producer.Close, nil
	}
	client, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, pubsub.PublisherResources(cfg.PubSub), logg)
	if err != nil {
		return nil, nil, err
	}
	return newPubSubSink(client), client.Close, nil
}
