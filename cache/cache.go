package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Backend selects a Store implementation.
type Backend string

const (
	// BackendMemory is the bounded in-process cache.
	BackendMemory Backend = "memory"
	// BackendRedis is the remote Redis-backed store.
	BackendRedis Backend = "redis"
)

var (
	// ErrSerialization is returned when a value cannot be encoded for
	// storage. It is fatal to the write that triggered it.
	ErrSerialization = errors.New("cache serialization failed")
	// ErrUnavailable wraps backend I/O failures.
	ErrUnavailable = errors.New("cache backend unavailable")
	// ErrUnknownBackend is returned by New for an unrecognized Backend.
	ErrUnknownBackend = errors.New("unknown cache backend")
)

// Loader produces a value for GetOrLoad on a cache miss.
type Loader func() (any, error)

// Store is the uniform contract over both backends. All methods may block
// on network I/O in the Redis backend; callers must not hold exclusive
// locks across a Store call.
type Store interface {
	// Get retrieves the value at key into dest (a non-nil pointer).
	// It reports whether a usable value was found. A stored value that
	// does not fit dest is a miss, not an error.
	Get(ctx context.Context, key string, dest any) (bool, error)

	// GetOrLoad behaves like Get, but on a miss invokes load, stores its
	// non-nil result with the backend default TTL, and yields it into
	// dest. Concurrent misses on the same key may invoke load more than
	// once; the contract assumes idempotent loaders.
	GetOrLoad(ctx context.Context, key string, dest any, load Loader) (bool, error)

	// Put upserts value at key. A ttl of zero or less selects the backend
	// default, which may mean no expiry.
	Put(ctx context.Context, key string, value any, ttl time.Duration) error

	// Delete removes key and reports whether an entry existed.
	Delete(ctx context.Context, key string) (bool, error)

	// DeleteAll removes every listed key.
	DeleteAll(ctx context.Context, keys []string) error

	// Clear removes all entries in this store's namespace only.
	Clear(ctx context.Context) error

	// Renew extends the expiry of an existing key without touching its
	// value. Renewing an absent key is a no-op reported as false.
	Renew(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Close releases backend resources.
	Close() error
}

// Config selects and parameterizes a backend.
type Config struct {
	Backend   Backend
	Namespace string
	Memory    MemoryConfig
	Redis     RedisConfig
}

// MemoryConfig tunes the bounded in-process backend.
type MemoryConfig struct {
	MaxEntries      int
	DefaultTTL      time.Duration
	EvictionWorkers int
}

// RedisConfig tunes the Redis backend. Client construction is skipped when
// a shared *redis.Client is injected through NewWithClient.
type RedisConfig struct {
	Host        string
	Port        int
	Password    string
	DB          int
	DialTimeout time.Duration
	DefaultTTL  time.Duration
}

// Validate checks backend-specific invariants.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendMemory:
		if c.Memory.MaxEntries <= 0 {
			return errors.New("cache: memory MaxEntries must be positive")
		}
		if c.Memory.EvictionWorkers <= 0 {
			return errors.New("cache: memory EvictionWorkers must be positive")
		}
	case BackendRedis:
		if c.Redis.Host == "" {
			return errors.New("cache: redis Host must be set")
		}
		if c.Redis.Port <= 0 {
			return errors.New("cache: redis Port must be positive")
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, c.Backend)
	}
	return nil
}

// constructor table keyed by backend; built once, no reflection.
var builders = map[Backend]func(Config, *slog.Logger) (Store, error){
	BackendMemory: func(cfg Config, log *slog.Logger) (Store, error) {
		return newMemoryStore(cfg, log)
	},
	BackendRedis: func(cfg Config, log *slog.Logger) (Store, error) {
		return newRedisStore(nil, cfg, log)
	},
}

// New builds the Store selected by cfg.Backend. A nil log falls back to
// slog.Default.
func New(cfg Config, log *slog.Logger) (Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	build, ok := builders[cfg.Backend]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
	return build(cfg, log)
}

// namespacePrefix normalizes a configured namespace into a key prefix with
// a single trailing colon. An empty namespace means no prefix.
func namespacePrefix(namespace string) string {
	if namespace == "" {
		return ""
	}
	if strings.HasSuffix(namespace, ":") {
		return namespace
	}
	return namespace + ":"
}
