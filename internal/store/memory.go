package store

import (
	"context"
	"sync"
	"time"

	"github.com/bhagyabanghadai/VEIL-MVP/internal/core"
)

// MemoryStore is an in-process NonceStore and VerdictCache with the same
// TTL semantics as the Redis adapter. Used by tests and as the dev
// fallback when no KV store is reachable at startup.
type MemoryStore struct {
	mu         sync.Mutex
	nonces     map[string]time.Time // nonce -> expiry
	judgements map[string]memEntry
	now        func() time.Time
}

type memEntry struct {
	j       core.Judgement
	expires time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nonces:     make(map[string]time.Time),
		judgements: make(map[string]memEntry),
		now:        time.Now,
	}
}

// SetClock overrides the time source, for TTL tests.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemoryStore) ClaimNonce(_ context.Context, nonce string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if exp, seen := s.nonces[nonce]; seen && s.now().Before(exp) {
		return false, nil
	}
	s.nonces[nonce] = s.now().Add(ttl)
	return true, nil
}

func (s *MemoryStore) GetJudgement(_ context.Context, fingerprint string) (*core.Judgement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.judgements[fingerprint]
	if !ok || s.now().After(entry.expires) {
		return nil, nil
	}
	j := entry.j
	return &j, nil
}

func (s *MemoryStore) PutJudgement(_ context.Context, fingerprint string, j core.Judgement, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.judgements[fingerprint] = memEntry{j: j, expires: s.now().Add(ttl)}
	return nil
}
