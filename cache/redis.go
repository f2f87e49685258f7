package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisStore is the remote backend. Values are serialized to canonical
// JSON before storage and parsed back on read; expiry is delegated to
// Redis's native TTL. The namespace is realized as a key prefix, which
// makes Clear the one operation whose cost scales with namespace size:
// it has to SCAN the prefix.
type redisStore struct {
	client     *redis.Client
	ownsClient bool
	prefix     string
	defaultTTL time.Duration
	log        *slog.Logger
}

const clearScanBatch = 100

// NewWithClient wraps an injected shared Redis client in a Store scoped to
// cfg.Namespace. The client's lifecycle stays with the caller; Close on
// the returned Store does not close it.
func NewWithClient(client *redis.Client, cfg Config, log *slog.Logger) (Store, error) {
	if client == nil {
		return nil, errors.New("cache: nil redis client")
	}
	return newRedisStore(client, cfg, log)
}

func newRedisStore(client *redis.Client, cfg Config, log *slog.Logger) (*redisStore, error) {
	if log == nil {
		log = slog.Default()
	}
	owns := false
	if client == nil {
		client = redis.NewClient(&redis.Options{
			Addr:        fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			DialTimeout: cfg.Redis.DialTimeout,
		})
		owns = true
	}
	return &redisStore{
		client:     client,
		ownsClient: owns,
		prefix:     namespacePrefix(cfg.Namespace),
		defaultTTL: cfg.Redis.DefaultTTL,
		log:        log,
	}, nil
}

func (s *redisStore) Get(ctx context.Context, key string, dest any) (bool, error) {
	full := s.prefix + key
	payload, err := s.client.Get(ctx, full).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: get %s: %v", ErrUnavailable, full, err)
	}
	if err := json.Unmarshal([]byte(payload), dest); err != nil {
		// Poisoned entry: purge it so the miss does not repeat forever.
		s.log.Warn("cache value failed to decode, purging", "key", full, "error", err)
		if delErr := s.client.Del(ctx, full).Err(); delErr != nil {
			s.log.Error("purge of corrupt cache entry failed", "key", full, "error", delErr)
		}
		return false, nil
	}
	return true, nil
}

func (s *redisStore) GetOrLoad(ctx context.Context, key string, dest any, load Loader) (bool, error) {
	found, err := s.Get(ctx, key, dest)
	if err != nil || found {
		return found, err
	}

	// Not coordinated across concurrent misses: two cold readers may both
	// load. Loaders are assumed idempotent.
	value, err := load()
	if err != nil {
		return false, err
	}
	if value == nil {
		return false, nil
	}
	if err := s.Put(ctx, key, value, 0); err != nil {
		return false, err
	}
	if assign(dest, value) {
		return true, nil
	}
	// Loader returned a shape that is JSON-compatible with dest but not
	// directly assignable; round-trip it the way a later Get would.
	payload, _ := json.Marshal(value)
	if err := json.Unmarshal(payload, dest); err != nil {
		return false, nil
	}
	return true, nil
}

func (s *redisStore) Put(ctx context.Context, key string, value any, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	if ttl < 0 {
		ttl = 0
	}
	full := s.prefix + key
	if err := s.client.Set(ctx, full, payload, ttl).Err(); err != nil {
		return fmt.Errorf("%w: set %s: %v", ErrUnavailable, full, err)
	}
	return nil
}

func (s *redisStore) Delete(ctx context.Context, key string) (bool, error) {
	full := s.prefix + key
	deleted, err := s.client.Del(ctx, full).Result()
	if err != nil {
		return false, fmt.Errorf("%w: del %s: %v", ErrUnavailable, full, err)
	}
	return deleted > 0, nil
}

func (s *redisStore) DeleteAll(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, key := range keys {
		full[i] = s.prefix + key
	}
	if err := s.client.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("%w: del batch: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *redisStore) Clear(ctx context.Context) error {
	var cursor uint64
	pattern := s.prefix + "*"
	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, clearScanBatch).Result()
		if err != nil {
			return fmt.Errorf("%w: scan %s: %v", ErrUnavailable, pattern, err)
		}
		if len(keys) > 0 {
			if err := s.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("%w: clear: %v", ErrUnavailable, err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

func (s *redisStore) Renew(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	full := s.prefix + key
	renewed, err := s.client.Expire(ctx, full, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: expire %s: %v", ErrUnavailable, full, err)
	}
	return renewed, nil
}

func (s *redisStore) Close() error {
	if s.ownsClient {
		return s.client.Close()
	}
	return nil
}
