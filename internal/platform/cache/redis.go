// Package cache wires the Redis client used by the report cache.
package cache

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// New connects a Redis client. A ping failure is returned to the caller
// so it can decide between failing hard and running cache-less.
func New(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		return client, err
	}
	return client, nil
}
