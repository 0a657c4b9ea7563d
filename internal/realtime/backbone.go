package realtime

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/labstack/gommon/log"
	"github.com/redis/go-redis/v9"
)

// Backbone is the process-independent broadcast medium.  Publish sends a
// payload to a room on every process; Subscribe delivers every payload
// published on any room until ctx is done.
type Backbone interface {
	Publish(ctx context.Context, room string, payload []byte) error
	Subscribe(ctx context.Context, deliver func(room string, payload []byte)) error
}

const maxResubscribeBackoff = 30 * time.Second

// RedisBackbone uses Redis PUBLISH on one channel per room and a single
// PSUBSCRIBE per process.
type RedisBackbone struct {
	rdb     *redis.Client
	prefix  string
	logger  *log.Logger
	backoff time.Duration // first retry delay of Subscribe
}

// NewRedisBackbone returns a backbone publishing on seats:room:<eventID>.
func NewRedisBackbone(rdb *redis.Client, logger *log.Logger) *RedisBackbone {
	return &RedisBackbone{rdb: rdb, prefix: "seats:room:", logger: logger, backoff: time.Second}
}

func (b *RedisBackbone) Publish(ctx context.Context, room string, payload []byte) error {
	if err := b.rdb.Publish(ctx, b.prefix+room, payload).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", room, err)
	}
	return nil
}

// Subscribe runs a resubscribe loop until ctx is done, so a process that
// starts while Redis is down joins the fan-out once Redis answers.
// Messages published while disconnected are lost; clients recover by
// re-fetching.
func (b *RedisBackbone) Subscribe(ctx context.Context, deliver func(room string, payload []byte)) error {
	backoff := b.backoff
	for {
		subscribed, err := b.listen(ctx, deliver)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if subscribed {
			backoff = b.backoff
		}
		b.logger.Warnf("broadcast: %v; resubscribing in %s", err, backoff)
		if !sleepCtx(ctx, backoff) {
			return ctx.Err()
		}
		if backoff *= 2; backoff > maxResubscribeBackoff {
			backoff = maxResubscribeBackoff
		}
	}
}

// listen holds one PSUBSCRIBE until it fails.  subscribed reports whether
// the subscription was confirmed before the failure.
func (b *RedisBackbone) listen(ctx context.Context, deliver func(room string, payload []byte)) (subscribed bool, err error) {
	ps := b.rdb.PSubscribe(ctx, b.prefix+"*")
	defer ps.Close()

	// Wait for the confirmation so publishes after this point are observed.
	if _, err := ps.Receive(ctx); err != nil {
		return false, fmt.Errorf("redis psubscribe: %w", err)
	}

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return true, ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return true, errors.New("redis pubsub channel closed")
			}
			deliver(strings.TrimPrefix(msg.Channel, b.prefix), []byte(msg.Payload))
		}
	}
}
