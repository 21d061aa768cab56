package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bhagyabanghadai/VEIL-MVP/internal/core"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisStoreFromClient(rdb)
	t.Cleanup(func() { s.Close() })
	return s, mr
}

func TestRedisStore_ClaimNonceOnce(t *testing.T) {
	s, _ := newTestRedisStore(t)
	ctx := context.Background()

	fresh, err := s.ClaimNonce(ctx, "nonce-1", 300*time.Second)
	require.NoError(t, err)
	assert.True(t, fresh)

	fresh, err = s.ClaimNonce(ctx, "nonce-1", 300*time.Second)
	require.NoError(t, err)
	assert.False(t, fresh, "second claim of the same nonce must lose")

	fresh, err = s.ClaimNonce(ctx, "nonce-2", 300*time.Second)
	require.NoError(t, err)
	assert.True(t, fresh, "different nonces are independent")
}

func TestRedisStore_NonceExpiresAfterTTL(t *testing.T) {
	s, mr := newTestRedisStore(t)
	ctx := context.Background()

	fresh, err := s.ClaimNonce(ctx, "nonce-ttl", 300*time.Second)
	require.NoError(t, err)
	require.True(t, fresh)

	mr.FastForward(301 * time.Second)

	fresh, err = s.ClaimNonce(ctx, "nonce-ttl", 300*time.Second)
	require.NoError(t, err)
	assert.True(t, fresh, "expired nonce may be claimed again")
}

func TestRedisStore_ConcurrentClaimsAdmitOne(t *testing.T) {
	s, _ := newTestRedisStore(t)
	ctx := context.Background()

	const workers = 32
	var wins int64
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fresh, err := s.ClaimNonce(ctx, "contested", 300*time.Second)
			if err == nil && fresh {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), wins)
}

func TestRedisStore_JudgementRoundTrip(t *testing.T) {
	s, _ := newTestRedisStore(t)
	ctx := context.Background()

	miss, err := s.GetJudgement(ctx, "fp-1")
	require.NoError(t, err)
	assert.Nil(t, miss)

	want := core.Judgement{Verdict: true, Confidence: 0.92, Reason: "evidence matches"}
	require.NoError(t, s.PutJudgement(ctx, "fp-1", want, 3600*time.Second))

	got, err := s.GetJudgement(ctx, "fp-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want, *got)
}

func TestRedisStore_JudgementExpires(t *testing.T) {
	s, mr := newTestRedisStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutJudgement(ctx, "fp-ttl",
		core.Judgement{Verdict: false, Confidence: 0.9, Reason: "blocked"}, 3600*time.Second))

	mr.FastForward(3601 * time.Second)

	got, err := s.GetJudgement(ctx, "fp-ttl")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestNewRedisStore_RejectsBadURL(t *testing.T) {
	_, err := NewRedisStore("not-a-url")
	assert.Error(t, err)
}
