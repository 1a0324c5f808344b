package redisstream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oshokin/sos-engine/internal/domain/alert"
	"github.com/oshokin/sos-engine/internal/logger"
)

// Sink is the label under which published events are counted.
const Sink = "redis"

// Observer counts forwarded events.
type Observer interface {
	EventPublished(sink string, err error)
}

// Publisher appends alert events to a stream with XADD.
type Publisher struct {
	client  redis.UniversalClient
	stream  string
	maxLen  int64
	timeout time.Duration
	obs     Observer
}

// New creates a publisher. A positive maxLen trims the stream approximately.
func New(client redis.UniversalClient, stream string, maxLen int64, obs Observer) *Publisher {
	return &Publisher{
		client:  client,
		stream:  stream,
		maxLen:  maxLen,
		timeout: 5 * time.Second,
		obs:     obs,
	}
}

// Publish appends one event and returns the stream entry id.
func (p *Publisher) Publish(ctx context.Context, event alert.Event) (string, error) {
	data, err := json.Marshal(event.Alert)
	if err != nil {
		return "", fmt.Errorf("encode event: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]any{
			"type":     string(event.Type),
			"alert_id": event.Alert.ID,
			"state":    string(event.Alert.State),
			"at":       event.At.UTC().Format(time.RFC3339Nano),
			"data":     string(data),
		},
	}

	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}

	id, err := p.client.XAdd(ctx, args).Result()
	if p.obs != nil {
		p.obs.EventPublished(Sink, err)
	}

	if err != nil {
		return "", fmt.Errorf("xadd %s: %w", p.stream, err)
	}

	return id, nil
}

// Run forwards events until the channel closes or ctx is done.
// A failed append is logged and the next event is processed.
func (p *Publisher) Run(ctx context.Context, events <-chan alert.Event) {
	ctx = logger.WithName(ctx, "redis-stream")

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}

			publishCtx, cancel := context.WithTimeout(ctx, p.timeout)
			_, err := p.Publish(publishCtx, event)

			cancel()

			if err != nil {
				logger.WarnKV(ctx, "Failed to publish event",
					"alert_id", event.Alert.ID,
					"type", event.Type,
					"error", err,
				)
			}
		}
	}
}
