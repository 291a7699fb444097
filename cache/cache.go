package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"github.com/lunarbank/funds/ledger"
	"github.com/lunarbank/funds/log"
)

const (
	accountKeyPrefix      = "account:"
	idempotencyKeyPrefix  = "idem:"
	userAccountsKeyPrefix = "accounts:user:"

	scanBatchSize = 100
)

func accountKey(accountNumber string) string {
	return accountKeyPrefix + accountNumber
}

func idempotencyKey(key string) string {
	return idempotencyKeyPrefix + key
}

func userAccountsPattern(userID string) string {
	return userAccountsKeyPrefix + userID + "*"
}

// AccountCache caches account snapshots and idempotency markers in Redis.
//
// Every method is best-effort: failures are logged and absorbed, never
// surfaced to the caller. A breaker trips after consecutive Redis failures
// so a dead cache costs one rejection instead of one timeout per call.
type AccountCache struct {
	rdb     redis.UniversalClient
	breaker *gobreaker.CircuitBreaker
	logger  log.Logger

	accountTTL     time.Duration
	idempotencyTTL time.Duration
}

// New dials Redis and returns a ready cache.
func New(ctx context.Context, cfg Config) (*AccountCache, error) {
	cfg = normalizeConfig(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	rdb, err := dial(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return NewWithClient(rdb, cfg), nil
}

// NewWithClient wraps an existing Redis client. The cache takes ownership of
// the client and closes it on Close.
func NewWithClient(rdb redis.UniversalClient, cfg Config) *AccountCache {
	cfg = normalizeConfig(cfg)

	logger := cfg.Logger

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "cache",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Log(context.Background(), log.LevelWarn, "cache breaker state changed",
				log.String("from", from.String()),
				log.String("to", to.String()))
		},
	})

	return &AccountCache{
		rdb:            rdb,
		breaker:        breaker,
		logger:         logger,
		accountTTL:     cfg.AccountTTL,
		idempotencyTTL: cfg.IdempotencyTTL,
	}
}

// Close releases the underlying Redis connection.
func (c *AccountCache) Close() error {
	return c.rdb.Close()
}

// Ping checks Redis availability.
func (c *AccountCache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// GetAccount returns the cached snapshot for an account number, if present.
// Undecodable entries are evicted and reported as misses.
func (c *AccountCache) GetAccount(ctx context.Context, accountNumber string) (*ledger.Account, bool) {
	key := accountKey(accountNumber)

	raw, ok := c.get(ctx, key)
	if !ok {
		return nil, false
	}

	var account ledger.Account
	if err := json.Unmarshal(raw, &account); err != nil {
		c.logger.Log(ctx, log.LevelWarn, "evicting undecodable cache entry",
			log.String("key", key), log.Err(err))
		c.delete(ctx, key)

		return nil, false
	}

	return &account, true
}

// SetAccount stores an account snapshot under its account number.
func (c *AccountCache) SetAccount(ctx context.Context, account *ledger.Account) {
	if account == nil {
		return
	}

	raw, err := json.Marshal(account)
	if err != nil {
		c.logger.Log(ctx, log.LevelWarn, "failed to encode account for cache",
			log.String("account", account.AccountNumber), log.Err(err))

		return
	}

	c.set(ctx, accountKey(account.AccountNumber), raw, c.accountTTL)
}

// Invalidate drops cached snapshots for the given accounts along with any
// derived per-user entries, so the next read goes to the store.
func (c *AccountCache) Invalidate(ctx context.Context, accounts ...*ledger.Account) {
	seenUsers := map[string]struct{}{}

	for _, account := range accounts {
		if account == nil {
			continue
		}

		c.delete(ctx, accountKey(account.AccountNumber))

		if account.UserID == "" {
			continue
		}

		if _, seen := seenUsers[account.UserID]; seen {
			continue
		}

		seenUsers[account.UserID] = struct{}{}
		c.deletePattern(ctx, userAccountsPattern(account.UserID))
	}
}

// GetIdempotencyMarker returns the transaction id committed under an
// idempotency key, if the marker is still cached.
func (c *AccountCache) GetIdempotencyMarker(ctx context.Context, key string) (string, bool) {
	raw, ok := c.get(ctx, idempotencyKey(key))
	if !ok {
		return "", false
	}

	return string(raw), true
}

// SetIdempotencyMarker records the transaction id committed under an
// idempotency key.
func (c *AccountCache) SetIdempotencyMarker(ctx context.Context, key, txID string) {
	c.set(ctx, idempotencyKey(key), []byte(txID), c.idempotencyTTL)
}

// ---------------------------------------------------------------------------
// Breaker-guarded Redis primitives
// ---------------------------------------------------------------------------

func (c *AccountCache) get(ctx context.Context, key string) ([]byte, bool) {
	result, err := c.breaker.Execute(func() (any, error) {
		raw, err := c.rdb.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			// A miss is a valid answer, not a cache failure.
			return []byte(nil), nil
		}

		return raw, err
	})
	if err != nil {
		c.observe(ctx, "get", key, err)

		return nil, false
	}

	raw, _ := result.([]byte)
	if raw == nil {
		return nil, false
	}

	return raw, true
}

func (c *AccountCache) set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	_, err := c.breaker.Execute(func() (any, error) {
		return nil, c.rdb.Set(ctx, key, value, ttl).Err()
	})
	if err != nil {
		c.observe(ctx, "set", key, err)
	}
}

func (c *AccountCache) delete(ctx context.Context, keys ...string) {
	_, err := c.breaker.Execute(func() (any, error) {
		return nil, c.rdb.Del(ctx, keys...).Err()
	})
	if err != nil {
		c.observe(ctx, "delete", fmt.Sprint(keys), err)
	}
}

// deletePattern removes all keys matching pattern using incremental SCAN,
// never KEYS, so a large keyspace cannot stall the server.
func (c *AccountCache) deletePattern(ctx context.Context, pattern string) {
	_, err := c.breaker.Execute(func() (any, error) {
		var cursor uint64

		for {
			keys, next, err := c.rdb.Scan(ctx, cursor, pattern, scanBatchSize).Result()
			if err != nil {
				return nil, err
			}

			if len(keys) > 0 {
				if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
					return nil, err
				}
			}

			if next == 0 {
				return nil, nil
			}

			cursor = next
		}
	})
	if err != nil {
		c.observe(ctx, "delete_pattern", pattern, err)
	}
}

// observe logs a degraded cache operation. Breaker rejections are logged at
// debug to avoid flooding while the breaker is open.
func (c *AccountCache) observe(ctx context.Context, operation, key string, err error) {
	level := log.LevelWarn
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		level = log.LevelDebug
	}

	c.logger.Log(ctx, level, "cache operation degraded",
		log.String("operation", operation),
		log.String("key", key),
		log.Err(err))
}
