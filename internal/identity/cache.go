package identity

import (
	"sync"
	"time"
)

// addressCache is a bounded, per-process LRU of address -> fingerprint
// resolutions. Container IPs churn slowly, so a small cache absorbs almost
// all inspection traffic.
type addressCache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	maxSize int
}

type cacheEntry struct {
	fingerprint string
	lastAccess  time.Time
}

func newAddressCache(maxSize int) *addressCache {
	return &addressCache{
		entries: make(map[string]*cacheEntry),
		maxSize: maxSize,
	}
}

func (c *addressCache) Get(addr string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[addr]
	if !ok {
		return "", false
	}
	entry.lastAccess = time.Now()
	return entry.fingerprint, true
}

func (c *addressCache) Set(addr, fingerprint string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.maxSize {
		c.evictLRU()
	}
	c.entries[addr] = &cacheEntry{
		fingerprint: fingerprint,
		lastAccess:  time.Now(),
	}
}

func (c *addressCache) evictLRU() {
	var oldestAddr string
	oldestTime := time.Now()

	for addr, entry := range c.entries {
		if entry.lastAccess.Before(oldestTime) {
			oldestTime = entry.lastAccess
			oldestAddr = addr
		}
	}

	if oldestAddr != "" {
		delete(c.entries, oldestAddr)
	}
}

func (c *addressCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
