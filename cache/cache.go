package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/syeddawoodsleekhive/kogents-replit-version-sub003/config"
)

// Cache fronts every Redis operation with the circuit breaker. Callers get
// (value, ok) instead of errors: ok=false means "cache unavailable or key
// absent, proceed without it". The durable store is the source of truth, so
// a cache outage degrades freshness, never correctness.
type Cache struct {
	client  *redis.Client
	breaker *Breaker
	log     zerolog.Logger
}

func New(client *redis.Client, breaker *Breaker, log zerolog.Logger) *Cache {
	return &Cache{
		client:  client,
		breaker: breaker,
		log:     log.With().Str("component", "cache").Logger(),
	}
}

// NewClient connects a Redis client with the pool and timeout settings the
// engine expects, and verifies the connection with a PING.
func NewClient(cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("redis connection test failed: %w", err)
	}
	return client, nil
}

// do runs one cache operation under the breaker. A redis.Nil from the
// operation is a miss, not a failure.
func (c *Cache) do(ctx context.Context, op func(context.Context) error) bool {
	if !c.breaker.Allow() {
		return false
	}
	if err := op(ctx); err != nil && !errors.Is(err, redis.Nil) {
		c.breaker.Failure()
		c.log.Warn().Err(err).Msg("cache operation failed")
		return false
	}
	c.breaker.Success()
	return true
}

func (c *Cache) Get(ctx context.Context, key string) (string, bool) {
	var val string
	miss := false
	ok := c.do(ctx, func(ctx context.Context) error {
		v, err := c.client.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			miss = true
			return nil
		}
		val = v
		return err
	})
	if !ok || miss {
		return "", false
	}
	return val, true
}

func (c *Cache) Set(ctx context.Context, key, value string, ttl time.Duration) bool {
	return c.do(ctx, func(ctx context.Context) error {
		return c.client.Set(ctx, key, value, ttl).Err()
	})
}

func (c *Cache) Del(ctx context.Context, keys ...string) bool {
	return c.do(ctx, func(ctx context.Context) error {
		return c.client.Del(ctx, keys...).Err()
	})
}

func (c *Cache) SAdd(ctx context.Context, key string, ttl time.Duration, members ...string) bool {
	return c.do(ctx, func(ctx context.Context) error {
		args := make([]interface{}, len(members))
		for i, m := range members {
			args[i] = m
		}
		_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SAdd(ctx, key, args...)
			pipe.Expire(ctx, key, ttl)
			return nil
		})
		return err
	})
}

func (c *Cache) SRem(ctx context.Context, key string, members ...string) bool {
	return c.do(ctx, func(ctx context.Context) error {
		args := make([]interface{}, len(members))
		for i, m := range members {
			args[i] = m
		}
		return c.client.SRem(ctx, key, args...).Err()
	})
}

func (c *Cache) SMembers(ctx context.Context, key string) ([]string, bool) {
	var members []string
	ok := c.do(ctx, func(ctx context.Context) error {
		m, err := c.client.SMembers(ctx, key).Result()
		members = m
		return err
	})
	if !ok {
		return nil, false
	}
	return members, true
}

func (c *Cache) SIsMember(ctx context.Context, key, member string) (bool, bool) {
	var found bool
	ok := c.do(ctx, func(ctx context.Context) error {
		f, err := c.client.SIsMember(ctx, key, member).Result()
		found = f
		return err
	})
	return found, ok
}

// LPushTrim prepends a value and trims the list to max entries, bounding
// memory per room. Push, trim and TTL refresh run in one MULTI.
func (c *Cache) LPushTrim(ctx context.Context, key, value string, max int64, ttl time.Duration) bool {
	return c.do(ctx, func(ctx context.Context) error {
		_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.LPush(ctx, key, value)
			pipe.LTrim(ctx, key, 0, max-1)
			pipe.Expire(ctx, key, ttl)
			return nil
		})
		return err
	})
}

func (c *Cache) LRange(ctx context.Context, key string, start, stop int64) ([]string, bool) {
	var vals []string
	ok := c.do(ctx, func(ctx context.Context) error {
		v, err := c.client.LRange(ctx, key, start, stop).Result()
		vals = v
		return err
	})
	if !ok {
		return nil, false
	}
	return vals, true
}

// ZAdd sets a member's score in a sorted set, refreshing the key's TTL.
func (c *Cache) ZAdd(ctx context.Context, key, member string, score float64, ttl time.Duration) bool {
	return c.do(ctx, func(ctx context.Context) error {
		_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.ZAdd(ctx, key, redis.Z{Score: score, Member: member})
			pipe.Expire(ctx, key, ttl)
			return nil
		})
		return err
	})
}

// HSet writes hash fields and refreshes the key's TTL.
func (c *Cache) HSet(ctx context.Context, key string, ttl time.Duration, pairs ...string) bool {
	return c.do(ctx, func(ctx context.Context) error {
		args := make([]interface{}, len(pairs))
		for i, p := range pairs {
			args[i] = p
		}
		_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, args...)
			pipe.Expire(ctx, key, ttl)
			return nil
		})
		return err
	})
}

func (c *Cache) HGetAll(ctx context.Context, key string) (map[string]string, bool) {
	var vals map[string]string
	ok := c.do(ctx, func(ctx context.Context) error {
		v, err := c.client.HGetAll(ctx, key).Result()
		vals = v
		return err
	})
	if !ok {
		return nil, false
	}
	return vals, true
}
