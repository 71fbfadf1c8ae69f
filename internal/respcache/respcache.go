// Package respcache is a short-TTL Redis response cache for the hub's
// hottest GET endpoints (order listings, order events), grounded on
// explorer/indexer/internal/cache/redis.go's prefix+hit/miss/error
// counter pattern.
package respcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var ErrMiss = errors.New("respcache: miss")

var (
	hits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bridge_hub_respcache_hits_total",
		Help: "Total response cache hits.",
	})
	misses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bridge_hub_respcache_misses_total",
		Help: "Total response cache misses.",
	})
	errs = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bridge_hub_respcache_errors_total",
		Help: "Total response cache backend errors.",
	})
)

// Config mirrors cache.Config.
type Config struct {
	Address  string
	Password string
	DB       int
	Prefix   string
}

// Cache wraps a Redis client with a fixed key prefix.
type Cache struct {
	client *redis.Client
	prefix string
}

func New(cfg Config) (*Cache, error) {
	if cfg.Address == "" {
		cfg.Address = "localhost:6379"
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "bridge-hub:"
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to respcache redis: %w", err)
	}
	return &Cache{client: client, prefix: cfg.Prefix}, nil
}

func (c *Cache) Close() error { return c.client.Close() }

func (c *Cache) GetJSON(ctx context.Context, key string, dest interface{}) error {
	val, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		misses.Inc()
		return ErrMiss
	}
	if err != nil {
		errs.Inc()
		return fmt.Errorf("respcache get: %w", err)
	}
	hits.Inc()
	return json.Unmarshal(val, dest)
}

func (c *Cache) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("respcache marshal: %w", err)
	}
	if err := c.client.Set(ctx, c.prefix+key, data, ttl).Err(); err != nil {
		errs.Inc()
		return fmt.Errorf("respcache set: %w", err)
	}
	return nil
}

func (c *Cache) Invalidate(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.prefix+key).Err(); err != nil {
		errs.Inc()
		return fmt.Errorf("respcache delete: %w", err)
	}
	return nil
}

// WithJSON serves dest from cache when present; on a miss it calls
// compute, caches the result for ttl, and writes it into dest. compute
// must populate the same value dest points at.
func WithJSON(ctx context.Context, c *Cache, key string, ttl time.Duration, dest interface{}, compute func() error) error {
	if c == nil {
		return compute()
	}
	if err := c.GetJSON(ctx, key, dest); err == nil {
		return nil
	} else if !errors.Is(err, ErrMiss) {
		// Cache backend trouble shouldn't fail the request; fall through
		// to computing it live.
		_ = err
	}

	if err := compute(); err != nil {
		return err
	}
	_ = c.SetJSON(ctx, key, dest, ttl)
	return nil
}
