package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
	"github.com/rs/zerolog/log"
)

type Publishable interface {
	GetEventTopicName() string
}

type Publisher interface {
	Publish(ctx context.Context, message Publishable) error
}

// GooglePublisher publishes domain events to Google Cloud Pub/Sub topics.
type GooglePublisher struct {
	client *pubsub.Client
}

func NewGooglePublisher(ctx context.Context, projectId string) (*GooglePublisher, error) {
	if projectId == "" {
		return nil, fmt.Errorf("pub sub missing projectID to initialize")
	}
	client, err := pubsub.NewClient(ctx, projectId)
	if err != nil {
		return nil, fmt.Errorf("initializing pub sub connection: %w", err)
	}
	log.Info().Str("projectId", projectId).Msg("Successful pubsub init")
	return &GooglePublisher{client: client}, nil
}

// Publish blocks until the server acknowledges the message or ctx ends.
func (p *GooglePublisher) Publish(ctx context.Context, message Publishable) error {
	t := p.client.Topic(message.GetEventTopicName())
	defer t.Stop()

	data, err := encodeMessage(message)
	if err != nil {
		return err
	}

	result := t.Publish(ctx, &pubsub.Message{Data: data})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish to %s: %w", message.GetEventTopicName(), err)
	}
	return nil
}

func (p *GooglePublisher) Close() error {
	return p.client.Close()
}

// NoopPublisher drops events. Used when no Pub/Sub project is configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(_ context.Context, message Publishable) error {
	log.Debug().Str("topic", message.GetEventTopicName()).Msg("Pub sub disabled, dropping event")
	return nil
}

func encodeMessage(message any) ([]byte, error) {
	switch m := message.(type) {
	case string:
		return []byte(m), nil
	default:
		return json.Marshal(message)
	}
}
