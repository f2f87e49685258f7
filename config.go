package pulseauth

import (
	"errors"
	"strings"
	"time"

	"github.com/pulsefit/pulseauth/cache"
)

// Config carries everything the builder needs. It is copied at Build time
// and treated as immutable afterwards; there is no package-level state to
// mutate.
type Config struct {
	Token TokenConfig
	Cache cache.Config
}

// TokenConfig parameterizes the signed-token codec and the paired
// lifetimes. Secret may be base64-encoded key material or a raw
// passphrase; the codec tries base64 first.
type TokenConfig struct {
	Secret     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// DefaultConfig returns the production defaults: 30-minute access tokens,
// 90-day refresh tokens, and a bounded in-process store under the
// pulse:auth namespace.
func DefaultConfig() Config {
	return Config{
		Token: TokenConfig{
			AccessTTL:  1800 * time.Second,
			RefreshTTL: 7776000 * time.Second,
		},
		Cache: cache.Config{
			Backend:   cache.BackendMemory,
			Namespace: "pulse:auth",
			Memory: cache.MemoryConfig{
				MaxEntries:      10000,
				EvictionWorkers: 2,
			},
			Redis: cache.RedisConfig{
				Host:        "127.0.0.1",
				Port:        6379,
				DialTimeout: 5 * time.Second,
			},
		},
	}
}

// Validate rejects configurations the subsystem cannot run with.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Token.Secret) == "" {
		return errors.New("token secret must be set")
	}
	if c.Token.AccessTTL <= 0 {
		return errors.New("access TTL must be positive")
	}
	if c.Token.RefreshTTL <= c.Token.AccessTTL {
		return errors.New("refresh TTL must exceed access TTL")
	}
	return c.Cache.Validate()
}
