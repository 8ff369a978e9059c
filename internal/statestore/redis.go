package statestore

import (
	"context"
	"time"

	"github.com/meshcall/controlplane/internal/apperror"
	"github.com/meshcall/controlplane/internal/resilience"
	"github.com/meshcall/controlplane/internal/logging"
	"github.com/meshcall/controlplane/internal/metrics"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisStore is the remote Store implementation (spec §4.3: "a remote
// implementation wrapping a network store with a circuit breaker"),
// grounded on bus/redis.go Service — same client
// construction shape, same breaker-wraps-every-op idiom, generalized from
// pub/sub to a generic KV surface.
type RedisStore struct {
	client  *redis.Client
	breaker *resilience.Breaker
	prefix  string
}

// NewRedisStore dials addr and verifies connectivity with a PING.
func NewRedisStore(ctx context.Context, addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  10 * time.Second,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, apperror.Wrap(apperror.StateStoreError, "ping state store", err)
	}

	breaker := resilience.NewBreaker("state-store", func(name, from, to string) {
		metrics.CircuitBreakerState.WithLabelValues(name).Set(breakerStateValue(to))
		logging.Info(ctx, "state store circuit breaker state change", zap.String("from", from), zap.String("to", to))
	})

	return &RedisStore{client: client, breaker: breaker, prefix: "state:"}, nil
}

// Client exposes the underlying redis.Client so other components that
// need a direct Redis connection (the rate limiter's shared-counter
// store) can reuse this process's single connection pool instead of
// opening a second one.
func (r *RedisStore) Client() *redis.Client {
	return r.client
}

func breakerStateValue(state string) float64 {
	switch state {
	case "open":
		return 1
	case "half-open":
		return 0.5
	default:
		return 0
	}
}

func (s *RedisStore) key(k string) string { return s.prefix + k }

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := resilience.Execute(s.breaker, func() (struct{}, error) {
		return struct{}{}, s.client.Set(ctx, s.key(key), value, ttl).Err()
	})
	return wrapRedisErr(err, "set")
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	type result struct {
		value []byte
		found bool
	}
	r, err := resilience.Execute(s.breaker, func() (result, error) {
		b, err := s.client.Get(ctx, s.key(key)).Bytes()
		if err == redis.Nil {
			return result{}, nil
		}
		if err != nil {
			return result{}, err
		}
		return result{value: b, found: true}, nil
	})
	if err != nil {
		return nil, false, wrapRedisErr(err, "get")
	}
	return r.value, r.found, nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	_, err := resilience.Execute(s.breaker, func() (struct{}, error) {
		return struct{}{}, s.client.Del(ctx, s.key(key)).Err()
	})
	return wrapRedisErr(err, "delete")
}

func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := resilience.Execute(s.breaker, func() (int64, error) {
		return s.client.Exists(ctx, s.key(key)).Result()
	})
	if err != nil {
		return false, wrapRedisErr(err, "exists")
	}
	return n > 0, nil
}

func (s *RedisStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	keys, err := resilience.Execute(s.breaker, func() ([]string, error) {
		var out []string
		iter := s.client.Scan(ctx, 0, s.key(pattern), 0).Iterator()
		for iter.Next(ctx) {
			out = append(out, iter.Val()[len(s.prefix):])
		}
		return out, iter.Err()
	})
	if err != nil {
		return nil, wrapRedisErr(err, "keys")
	}
	return keys, nil
}

// Clear deletes every key under this store's namespace prefix, not the
// whole remote database — the prefix may be shared with other services.
func (s *RedisStore) Clear(ctx context.Context) error {
	_, err := resilience.Execute(s.breaker, func() (struct{}, error) {
		var cursor uint64
		for {
			keys, next, err := s.client.Scan(ctx, cursor, s.prefix+"*", 100).Result()
			if err != nil {
				return struct{}{}, err
			}
			if len(keys) > 0 {
				if err := s.client.Del(ctx, keys...).Err(); err != nil {
					return struct{}{}, err
				}
			}
			cursor = next
			if cursor == 0 {
				break
			}
		}
		return struct{}{}, nil
	})
	return wrapRedisErr(err, "clear")
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func wrapRedisErr(err error, op string) error {
	if err == nil {
		return nil
	}
	if apperror.Is(err, apperror.CircuitOpen) {
		return err
	}
	return apperror.Wrap(apperror.StateStoreError, "state store "+op+" failed", err)
}
