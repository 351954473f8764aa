package indexcache

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// DefaultMemorySize bounds the in-process cache.
const DefaultMemorySize = 4096

// Memory is a process-local cache. It lives as long as the process unless ttl is set.
type Memory struct {
	cache *lru.LRU[string, struct{}]
}

// NewMemory creates an in-process cache holding up to size names. ttl <= 0 keeps
// entries until eviction or restart.
func NewMemory(size int, ttl time.Duration) *Memory {
	if size <= 0 {
		size = DefaultMemorySize
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Memory{cache: lru.NewLRU[string, struct{}](size, nil, ttl)}
}

// Contains reports whether index was confirmed before.
func (m *Memory) Contains(_ context.Context, index string) bool {
	_, ok := m.cache.Get(index)
	return ok
}

// Add records index as existing.
func (m *Memory) Add(_ context.Context, index string) {
	m.cache.Add(index, struct{}{})
}

// Remove forgets index.
func (m *Memory) Remove(_ context.Context, index string) {
	m.cache.Remove(index)
}

// Len returns the number of remembered indices.
func (m *Memory) Len() int { return m.cache.Len() }
