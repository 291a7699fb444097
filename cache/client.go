package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lunarbank/funds/log"
)

const maxPoolSize = 1000

// ErrInvalidConfig indicates the provided cache configuration is invalid.
var ErrInvalidConfig = errors.New("invalid cache config")

// Config defines Redis connection settings and cache TTLs.
type Config struct {
	Address      string
	Password     string
	DB           int
	PoolSize     int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	DialTimeout  time.Duration

	// AccountTTL bounds how long a cached account snapshot may serve reads.
	AccountTTL time.Duration
	// IdempotencyTTL bounds how long a committed idempotency key resolves
	// from the cache fast path before falling back to the store.
	IdempotencyTTL time.Duration

	Logger log.Logger
}

func normalizeConfig(cfg Config) Config {
	if cfg.PoolSize == 0 {
		cfg.PoolSize = 10
	}

	if cfg.PoolSize > maxPoolSize {
		cfg.PoolSize = maxPoolSize
	}

	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 3 * time.Second
	}

	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 3 * time.Second
	}

	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 5 * time.Second
	}

	if cfg.AccountTTL == 0 {
		cfg.AccountTTL = 5 * time.Minute
	}

	if cfg.IdempotencyTTL == 0 {
		cfg.IdempotencyTTL = 24 * time.Hour
	}

	if cfg.Logger == nil {
		cfg.Logger = log.NewNop()
	}

	return cfg
}

func (cfg Config) validate() error {
	if strings.TrimSpace(cfg.Address) == "" {
		return fmt.Errorf("%w: address is required", ErrInvalidConfig)
	}

	return nil
}

// dial connects to Redis and verifies the connection with a ping.
func dial(ctx context.Context, cfg Config) (redis.UniversalClient, error) {
	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:        []string{cfg.Address},
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		DialTimeout:  cfg.DialTimeout,
	})

	if _, err := rdb.Ping(ctx).Result(); err != nil {
		_ = rdb.Close()

		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return rdb, nil
}
