// Package store provides the shared key/value state VEIL keeps outside the
// process: consumed nonces and cached judge verdicts. The Redis adapter
// wraps go-redis v9; the in-memory variant backs tests and dev fallback.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bhagyabanghadai/VEIL-MVP/internal/core"
)

const (
	noncePrefix = "veil:nonce:"
	judgePrefix = "veil:l4:judge:"
)

// RedisStore is the production NonceStore and VerdictCache, backed by a
// single go-redis client.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore connects to the store at url (redis://host:port/db).
// The connection is verified with a short ping; callers decide whether a
// failure here is fatal (prod) or a warning (dev).
func NewRedisStore(url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse kv url %s: %w", url, err)
	}
	opts.DialTimeout = 3 * time.Second
	opts.ReadTimeout = 2 * time.Second
	opts.WriteTimeout = 2 * time.Second

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed (%s): %w", opts.Addr, err)
	}

	slog.Info("KV store connected", "addr", opts.Addr)
	return &RedisStore{rdb: rdb}, nil
}

// NewRedisStoreFromClient wraps an existing client (used by miniredis tests).
func NewRedisStoreFromClient(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

// Close shuts down the underlying client.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

// ClaimNonce marks the nonce as consumed iff it has not been seen within
// the TTL window. SET NX carries the expiry in the same command, so two
// concurrent claims on one nonce admit exactly one caller.
func (s *RedisStore) ClaimNonce(ctx context.Context, nonce string, ttl time.Duration) (bool, error) {
	fresh, err := s.rdb.SetNX(ctx, noncePrefix+nonce, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("nonce claim: %w", err)
	}
	return fresh, nil
}

// GetJudgement returns the cached judge outcome for a content fingerprint,
// or nil on a miss.
func (s *RedisStore) GetJudgement(ctx context.Context, fingerprint string) (*core.Judgement, error) {
	data, err := s.rdb.Get(ctx, judgePrefix+fingerprint).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("judgement read: %w", err)
	}
	var j core.Judgement
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("judgement decode: %w", err)
	}
	return &j, nil
}

// PutJudgement caches a judge outcome under its fingerprint with a TTL.
func (s *RedisStore) PutJudgement(ctx context.Context, fingerprint string, j core.Judgement, ttl time.Duration) error {
	data, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("judgement encode: %w", err)
	}
	if err := s.rdb.SetEx(ctx, judgePrefix+fingerprint, data, ttl).Err(); err != nil {
		return fmt.Errorf("judgement write: %w", err)
	}
	return nil
}
