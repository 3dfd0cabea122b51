package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/mmsim/internal/domain"
)

// fillStreamMaxLen is the approximate maximum length for fill streams,
// enforced via XADD MAXLEN ~.
const fillStreamMaxLen int64 = 10000

// FillBus publishes simulated fills as they happen in stream mode: Pub/Sub
// for live listeners and a capped Redis stream for replayable history.
//
// Key schema:
//
//	fills:{security}        - Pub/Sub channel, JSON-serialized fill
//	fills:stream:{security} - stream, field "payload" holds the same JSON
type FillBus struct {
	rdb *redis.Client
}

// NewFillBus creates a FillBus backed by the given Client.
func NewFillBus(c *Client) *FillBus {
	return &FillBus{rdb: c.Underlying()}
}

func fillChannel(security string) string { return "fills:" + security }
func fillStream(security string) string  { return "fills:stream:" + security }

// Publish sends one fill to the security's channel and appends it to the
// capped stream.
func (fb *FillBus) Publish(ctx context.Context, security string, fill domain.Fill) error {
	data, err := json.Marshal(fill)
	if err != nil {
		return fmt.Errorf("redis: marshal fill %s: %w", fill.ID, err)
	}

	pipe := fb.rdb.TxPipeline()
	pipe.Publish(ctx, fillChannel(security), data)
	pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: fillStream(security),
		MaxLen: fillStreamMaxLen,
		Approx: true,
		Values: map[string]interface{}{"payload": data},
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: publish fill %s: %w", security, err)
	}
	return nil
}

// Subscribe returns a channel of fills for one security. The subscription
// closes when ctx is cancelled.
func (fb *FillBus) Subscribe(ctx context.Context, security string) (<-chan domain.Fill, error) {
	pubsub := fb.rdb.Subscribe(ctx, fillChannel(security))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe fills %s: %w", security, err)
	}

	out := make(chan domain.Fill, 128)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var fill domain.Fill
				if err := json.Unmarshal([]byte(msg.Payload), &fill); err != nil {
					continue
				}
				select {
				case out <- fill:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
