// Package broker wraps the Redis list operations the original system
// uses as its shared message broker (LPUSH producer side, BRPOP
// consumer side with a short poll timeout), grounded on the
// interface-around-a-client idiom of etalazz-vsa's ratelimiter
// persistence layer.
package broker

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client is the minimal surface fusion components need from Redis; real
// callers construct one with New, tests can fake it directly.
type Client interface {
	Push(ctx context.Context, queue string, payload string) error
	Pop(ctx context.Context, queue string, timeout time.Duration) (string, bool, error)
	TryPop(ctx context.Context, queue string) (string, bool, error)
	Close() error
}

type redisClient struct {
	rdb *redis.Client
}

// New dials a Redis broker at addr (host:port) with the given password
// and logical DB index.
func New(addr, password string, db int) Client {
	return &redisClient{rdb: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

// Push inserts payload at the head (left end) of queue (LPUSH). Pop and
// TryPop take from the tail (right end), so each queue is FIFO.
func (c *redisClient) Push(ctx context.Context, queue string, payload string) error {
	return c.rdb.LPush(ctx, queue, payload).Err()
}

// Pop blocks up to timeout waiting for an entry at the tail (right end)
// of queue (BRPOP), i.e. the oldest one pushed. It returns ok=false, not
// an error, on a plain timeout.
func (c *redisClient) Pop(ctx context.Context, queue string, timeout time.Duration) (string, bool, error) {
	res, err := c.rdb.BRPop(ctx, timeout, queue).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	// BRPOP returns [queue, value]; we only ever pass one queue name.
	if len(res) != 2 {
		return "", false, nil
	}
	return res[1], true, nil
}

// TryPop does a single non-blocking RPOP, returning ok=false immediately
// when queue is empty rather than waiting on the broker.
func (c *redisClient) TryPop(ctx context.Context, queue string) (string, bool, error) {
	v, err := c.rdb.RPop(ctx, queue).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (c *redisClient) Close() error {
	return c.rdb.Close()
}
