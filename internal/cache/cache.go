// Package cache provides the TTL response cache shared by the basic
// and advanced request paths.
//
// Keys are deterministic fingerprints: the SHA-256 of the canonical
// JSON of the request fields that affect the provider output. Both
// paths use the same fingerprint policy, so a response cached by one
// is visible to the other.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/easygenie/orchestrator/pkg/models"
)

// fingerprintInput is the canonical key shape. Field order is fixed by
// the struct, so marshaling is deterministic.
type fingerprintInput struct {
	Provider    models.Provider      `json:"provider"`
	Model       string               `json:"model"`
	Messages    []models.ChatMessage `json:"messages"`
	System      string               `json:"system"`
	Temperature float64              `json:"temperature"`
}

// Fingerprint computes the cache key for one provider call.
func Fingerprint(provider models.Provider, model string, messages []models.ChatMessage, system string, temperature float64) string {
	data, _ := json.Marshal(fingerprintInput{
		Provider:    provider,
		Model:       model,
		Messages:    messages,
		System:      system,
		Temperature: temperature,
	})
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

type entry struct {
	content  string
	provider models.Provider
	model    string
	storedAt time.Time
}

// Cached is a cache lookup result.
type Cached struct {
	Content  string
	Provider models.Provider
	Model    string
	StoredAt time.Time
}

// Stats is a point-in-time cache snapshot.
type Stats struct {
	Size   int   `json:"size"`
	Max    int   `json:"max"`
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

// Cache is a mutex-guarded TTL cache with oldest-first trimming.
type Cache struct {
	mu      sync.Mutex
	entries map[string]entry
	ttl     time.Duration
	max     int
	trimTo  int
	hits    int64
	misses  int64

	now func() time.Time // test hook
}

// New creates a cache. When the entry count exceeds max, the oldest
// entries are dropped until trimTo remain. trimTo <= 0 means trim to
// max-1 (evict exactly one).
func New(ttl time.Duration, max, trimTo int) *Cache {
	if trimTo <= 0 || trimTo >= max {
		trimTo = max - 1
	}
	return &Cache{
		entries: make(map[string]entry),
		ttl:     ttl,
		max:     max,
		trimTo:  trimTo,
		now:     time.Now,
	}
}

// Get returns the cached response for the key, if fresh.
func (c *Cache) Get(key string) (*Cached, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || c.now().Sub(e.storedAt) > c.ttl {
		if ok {
			delete(c.entries, key)
		}
		c.misses++
		return nil, false
	}
	c.hits++
	return &Cached{Content: e.content, Provider: e.provider, Model: e.model, StoredAt: e.storedAt}, true
}

// Put stores a response, trimming oldest entries past capacity.
func (c *Cache) Put(key, content string, provider models.Provider, model string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = entry{content: content, provider: provider, model: model, storedAt: c.now()}
	if len(c.entries) <= c.max {
		return
	}

	type aged struct {
		key      string
		storedAt time.Time
	}
	all := make([]aged, 0, len(c.entries))
	for k, e := range c.entries {
		all = append(all, aged{key: k, storedAt: e.storedAt})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].storedAt.Before(all[j].storedAt) })
	for _, a := range all[:len(all)-c.trimTo] {
		delete(c.entries, a.key)
	}
}

// Clear drops everything.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
}

// Sweep removes expired entries; the retention janitor calls this.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	cutoff := c.now().Add(-c.ttl)
	for k, e := range c.entries {
		if e.storedAt.Before(cutoff) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// Stats returns a snapshot of cache counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Size: len(c.entries), Max: c.max, Hits: c.hits, Misses: c.misses}
}
