package services

import (
	"sync"
	"time"

	model "github.com/visaeagle/VisaEagle-backend/models"
)

// ResultCache abstracts per-student result caching so a bounded or
// distributed cache can replace the in-memory one without touching the
// engine. A nil return from Get means miss or expired.
type ResultCache interface {
	Get(studentID string) *model.RuleEngineResult
	Set(studentID string, result *model.RuleEngineResult)
	Invalidate(studentID string)
	Clear()
}

type cachedResult struct {
	result   *model.RuleEngineResult
	cachedAt time.Time
}

// InMemoryResultCache is a map+TTL implementation of ResultCache. Entries are
// advisory: a stale read before expiry is acceptable and concurrent writes
// for the same student are last-writer-wins.
type InMemoryResultCache struct {
	entries map[string]cachedResult
	ttl     time.Duration
	mu      sync.RWMutex
}

func NewInMemoryResultCache(ttl time.Duration) *InMemoryResultCache {
	return &InMemoryResultCache{
		entries: make(map[string]cachedResult),
		ttl:     ttl,
	}
}

func (c *InMemoryResultCache) Get(studentID string) *model.RuleEngineResult {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.entries[studentID]
	if !exists {
		return nil
	}
	if c.ttl > 0 && time.Since(entry.cachedAt) > c.ttl {
		return nil
	}
	return entry.result
}

func (c *InMemoryResultCache) Set(studentID string, result *model.RuleEngineResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[studentID] = cachedResult{result: result, cachedAt: time.Now()}
}

func (c *InMemoryResultCache) Invalidate(studentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, studentID)
}

func (c *InMemoryResultCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]cachedResult)
}
