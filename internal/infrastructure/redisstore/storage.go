package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/minishop-cart/internal/observability"
	"github.com/go-redis/redis/extra/redisotel/v8"
	"github.com/go-redis/redis/v8"
)

const (
	pingAttempts   = 10
	maxPingBackoff = 5 * time.Second
)

// Storage keeps cart values as plain Redis strings.
type Storage struct {
	client *redis.Client
	log    observability.Logger
}

// New connects to addr, which may be "host:port" or a redis:// URL.
func New(addr string, logger observability.Logger) *Storage {
	opts, err := redis.ParseURL(addr)
	if err != nil {
		opts = &redis.Options{
			Addr:         addr,
			MinIdleConns: 1,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
			PoolSize:     10,
		}
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	client := redis.NewClient(opts)
	client.AddHook(redisotel.NewTracingHook())

	return &Storage{
		client: client,
		log:    logger.With(observability.F("component", "redis_storage")),
	}
}

// Initialize waits for Redis to answer PING, backing off between attempts.
func (s *Storage) Initialize(ctx context.Context) error {
	backoff := 200 * time.Millisecond
	for attempt := 1; attempt <= pingAttempts; attempt++ {
		err := s.client.Ping(ctx).Err()
		if err == nil {
			s.log.Info("redis_ready", observability.F("attempt", attempt))
			return nil
		}
		s.log.Warn("redis_ping_failed",
			observability.F("attempt", attempt),
			observability.F("error", err),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxPingBackoff)
	}
	return fmt.Errorf("redisstore: no answer after %d attempts", pingAttempts)
}

func (s *Storage) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redisstore: get %q: %w", key, err)
	}
	return v, true, nil
}

func (s *Storage) Set(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("redisstore: set %q: %w", key, err)
	}
	return nil
}

func (s *Storage) Close() error {
	return s.client.Close()
}
