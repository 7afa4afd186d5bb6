package events

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
)

type pubsubSink struct {
	id     string
	client *pubsub.Client
	topic  *pubsub.Topic
}

func newPubSubSink(ctx context.Context, id string, cfg *PubSubConfig) (Sink, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := pubsub.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	return &pubsubSink{id: id, client: client, topic: client.Topic(cfg.Topic)}, nil
}

func (s *pubsubSink) ID() string { return s.id }

func (s *pubsubSink) Send(ctx context.Context, evt Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	res := s.topic.Publish(ctx, &pubsub.Message{
		Data:       payload,
		Attributes: map[string]string{"status": evt.Status},
	})
	if _, err := res.Get(ctx); err != nil {
		return fmt.Errorf("send message to pubsub: %w", err)
	}
	return nil
}

func (s *pubsubSink) Close() error {
	s.topic.Stop()
	return s.client.Close()
}
