// Package redis keeps the latest curve per source in a hash and announces
// updates on a pub/sub channel, so sibling processes (dashboards, bots) can
// pick up fresh curves without polling the hub's HTTP API.
package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"curvehub/internal/application/port"
)

type Cache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func New(addr, password string, db int, prefix string, ttl time.Duration) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	if prefix == "" {
		prefix = "curvehub"
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Cache{client: client, prefix: prefix, ttl: ttl}, nil
}

func (c *Cache) Close() error { return c.client.Close() }

// StoreLatest writes the serialized curve under the source's hash field and
// publishes it on "<prefix>:updates". One pipeline round-trip per call.
func (c *Cache) StoreLatest(ctx context.Context, source string, payload []byte) error {
	key := c.prefix + ":curves"

	pipe := c.client.Pipeline()
	pipe.HSet(ctx, key, source, payload)
	pipe.Expire(ctx, key, c.ttl)
	pipe.Publish(ctx, c.prefix+":updates", payload)
	_, err := pipe.Exec(ctx)
	return err
}

var _ port.CurveCache = (*Cache)(nil)
