package pulseauth

import (
	"errors"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/pulsefit/pulseauth/cache"
	"github.com/pulsefit/pulseauth/token"
)

// Builder assembles a Manager. Construction is allocation-only until
// Build, which validates the configuration and wires the codec and store.
type Builder struct {
	cfg      Config
	redis    *redis.Client
	resolver PrincipalResolver
	log      *slog.Logger
	built    bool
}

// New returns a Builder preloaded with DefaultConfig.
func New() *Builder {
	return &Builder{cfg: DefaultConfig()}
}

// WithConfig replaces the builder's configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.cfg = cfg
	return b
}

// WithSecret sets the token signing secret without touching the rest of
// the configuration.
func (b *Builder) WithSecret(secret string) *Builder {
	b.cfg.Token.Secret = secret
	return b
}

// WithRedis injects a shared Redis client for the store. It forces the
// Redis backend; the client's lifecycle stays with the caller.
func (b *Builder) WithRedis(client *redis.Client) *Builder {
	b.redis = client
	return b
}

// WithResolver sets the principal resolver used by the refresh flow.
func (b *Builder) WithResolver(r PrincipalResolver) *Builder {
	b.resolver = r
	return b
}

// WithLogger sets the structured logger. A nil logger falls back to
// slog.Default at Build time.
func (b *Builder) WithLogger(log *slog.Logger) *Builder {
	b.log = log
	return b
}

// Build validates the configuration and returns a ready Manager. A
// Builder is single-use.
func (b *Builder) Build() (*Manager, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	b.built = true

	if b.resolver == nil {
		return nil, errors.New("principal resolver required")
	}

	log := b.log
	if log == nil {
		log = slog.Default()
	}

	cfg := b.cfg
	if b.redis != nil {
		cfg.Cache.Backend = cache.BackendRedis
		// Host/port checks do not apply to an injected client.
		if cfg.Cache.Redis.Host == "" {
			cfg.Cache.Redis.Host = "127.0.0.1"
		}
		if cfg.Cache.Redis.Port <= 0 {
			cfg.Cache.Redis.Port = 6379
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	codec, err := token.NewCodec(cfg.Token.Secret)
	if err != nil {
		return nil, err
	}

	var store cache.Store
	if b.redis != nil {
		store, err = cache.NewWithClient(b.redis, cfg.Cache, log)
	} else {
		store, err = cache.New(cfg.Cache, log)
	}
	if err != nil {
		return nil, err
	}

	log.Info("session manager initialized",
		"backend", string(cfg.Cache.Backend),
		"access_ttl", cfg.Token.AccessTTL,
		"refresh_ttl", cfg.Token.RefreshTTL)

	return &Manager{
		cfg:      cfg,
		codec:    codec,
		store:    store,
		resolver: b.resolver,
		log:      log,
	}, nil
}
