// Package events fans item outcomes out to external sinks (SQS, SNS,
// Pub/Sub, HTTP). Delivery is best effort and never affects the scan loop.
package events

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/deusflow/pagepost/internal/httpclient"
	"github.com/deusflow/pagepost/internal/logger"
)

// Event describes what happened to one item.
type Event struct {
	ItemID     string    `json:"item_id"`
	Title      string    `json:"title"`
	URL        string    `json:"url,omitempty"`
	Status     string    `json:"status"`
	Stage      string    `json:"stage,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	Topic      string    `json:"topic,omitempty"`
	PostURL    string    `json:"post_url,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Sink delivers one event.
type Sink interface {
	ID() string
	Send(ctx context.Context, evt Event) error
}

// Emitter sends every event to all sinks and only logs failures.
// A nil Emitter is valid and does nothing.
type Emitter struct {
	sinks []Sink
	log   *zap.SugaredLogger
}

func NewEmitter(sinks []Sink, log *zap.SugaredLogger) *Emitter {
	return &Emitter{sinks: sinks, log: logger.OrNop(log)}
}

func (e *Emitter) Emit(ctx context.Context, evt Event) {
	if e == nil {
		return
	}
	for _, s := range e.sinks {
		if err := s.Send(ctx, evt); err != nil {
			e.log.Warnw("event delivery failed", "sink", s.ID(), "item_id", evt.ItemID, "error", err)
			continue
		}
		e.log.Debugw("event delivered", "sink", s.ID(), "item_id", evt.ItemID, "status", evt.Status)
	}
}

// Len returns the number of configured sinks.
func (e *Emitter) Len() int {
	if e == nil {
		return 0
	}
	return len(e.sinks)
}

// Build instantiates every enabled sink in cfg. http is used by webhook sinks.
func Build(ctx context.Context, cfg *Config, http httpclient.Client, log *zap.SugaredLogger) ([]Sink, error) {
	var sinks []Sink
	for _, sc := range cfg.Enabled() {
		var (
			s   Sink
			err error
		)
		switch sc.Type {
		case TypeSQS:
			s, err = newSQSSink(ctx, sc.ID, sc.SQS)
		case TypeSNS:
			s, err = newSNSSink(ctx, sc.ID, sc.SNS)
		case TypePubSub:
			s, err = newPubSubSink(ctx, sc.ID, sc.PubSub)
		case TypeHTTP:
			s = newHTTPSink(sc.ID, sc.HTTP, http)
		default:
			err = fmt.Errorf("sink type %q is not supported", sc.Type)
		}
		if err != nil {
			closeAll(sinks)
			return nil, fmt.Errorf("build sink %q: %w", sc.ID, err)
		}
		logger.OrNop(log).Infow("event sink ready", "sink", sc.ID, "type", sc.Type)
		sinks = append(sinks, s)
	}
	return sinks, nil
}

// Close stops sinks that hold background resources.
func (e *Emitter) Close() {
	if e != nil {
		closeAll(e.sinks)
	}
}

type closer interface{ Close() error }

func closeAll(sinks []Sink) {
	for _, s := range sinks {
		if c, ok := s.(closer); ok {
			_ = c.Close()
		}
	}
}
