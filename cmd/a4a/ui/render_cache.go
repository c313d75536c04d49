// Package ui rendering cache for finalized chat messages.
package ui

import (
	"hash/fnv"
	"sync"
)

// RenderCache provides hash-based caching for rendered content.
// Markdown rendering through glamour is expensive enough that re-rendering
// every finalized message on each frame makes long transcripts sluggish.
type RenderCache struct {
	cache sync.Map
}

// cacheEntry stores cached render output with metadata.
type cacheEntry struct {
	content string
	hits    int
}

// NewRenderCache creates a new render cache.
func NewRenderCache() *RenderCache {
	return &RenderCache{}
}

// computeHash computes a FNV-1a hash for cache keys.
//
// Supported types are intentionally limited to avoid allocations in hot paths.
func computeHash(inputs ...any) uint64 {
	h := fnv.New64a()
	var b [8]byte

	for _, input := range inputs {
		switch v := input.(type) {
		case string:
			h.Write([]byte(v))
		case int:
			u := uint64(v)
			b[0] = byte(u)
			b[1] = byte(u >> 8)
			b[2] = byte(u >> 16)
			b[3] = byte(u >> 24)
			b[4] = byte(u >> 32)
			b[5] = byte(u >> 40)
			b[6] = byte(u >> 48)
			b[7] = byte(u >> 56)
			h.Write(b[:])
		case bool:
			if v {
				h.Write([]byte{1})
			} else {
				h.Write([]byte{0})
			}
		}
	}

	return h.Sum64()
}

// Get retrieves cached content if available.
func (rc *RenderCache) Get(key uint64) (string, bool) {
	if val, ok := rc.cache.Load(key); ok {
		entry := val.(*cacheEntry)
		entry.hits++
		return entry.content, true
	}
	return "", false
}

// Set stores rendered content in the cache.
func (rc *RenderCache) Set(key uint64, content string) {
	rc.cache.Store(key, &cacheEntry{content: content, hits: 1})
}

// Clear empties the cache.
func (rc *RenderCache) Clear() {
	rc.cache = sync.Map{}
}

// GetOrCompute retrieves from cache or computes if missing.
func (rc *RenderCache) GetOrCompute(key uint64, compute func() string) string {
	if content, ok := rc.Get(key); ok {
		return content
	}

	content := compute()
	rc.Set(key, content)
	return content
}

// ComputeKey generates a cache key from multiple inputs.
func ComputeKey(inputs ...any) uint64 {
	return computeHash(inputs...)
}
