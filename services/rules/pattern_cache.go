package rules

import (
	"container/list"
	"regexp"
	"sync"
)

// DefaultPatternCacheSize bounds the number of compiled naming overrides kept
const DefaultPatternCacheSize = 128

// patternEntry is a compiled expression tracked in the LRU list
type patternEntry struct {
	expr    string
	re      *regexp.Regexp
	element *list.Element
}

// PatternCache is an in-memory LRU cache of compiled regular expressions.
// Rule documents are re-read on every check, but the expressions they carry
// rarely change, so compiling them once per distinct expression is enough.
type PatternCache struct {
	mu      sync.Mutex
	entries map[string]*patternEntry
	lruList *list.List
	maxSize int
	hits    uint64
	misses  uint64
}

// NewPatternCache creates a PatternCache holding at most maxSize expressions
func NewPatternCache(maxSize int) *PatternCache {
	if maxSize <= 0 {
		maxSize = DefaultPatternCacheSize
	}
	return &PatternCache{
		entries: make(map[string]*patternEntry),
		lruList: list.New(),
		maxSize: maxSize,
	}
}

// Compile returns the compiled form of expr, compiling and caching it on a miss.
// Compile errors are not cached.
func (c *PatternCache) Compile(expr string) (*regexp.Regexp, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[expr]; ok {
		c.lruList.MoveToFront(entry.element)
		c.hits++
		return entry.re, nil
	}
	c.misses++

	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, err
	}

	if c.lruList.Len() >= c.maxSize {
		c.evictLRU()
	}

	entry := &patternEntry{expr: expr, re: re}
	entry.element = c.lruList.PushFront(expr)
	c.entries[expr] = entry
	return re, nil
}

// Clear removes all entries from the cache
func (c *PatternCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*patternEntry)
	c.lruList.Init()
}

// Stats returns cache statistics
func (c *PatternCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := CacheStats{
		Size:    c.lruList.Len(),
		MaxSize: c.maxSize,
		Hits:    c.hits,
		Misses:  c.misses,
	}
	if total := c.hits + c.misses; total > 0 {
		stats.HitRate = float64(c.hits) / float64(total)
	}
	return stats
}

// CacheStats represents cache statistics
type CacheStats struct {
	Size    int
	MaxSize int
	Hits    uint64
	Misses  uint64
	HitRate float64
}

// evictLRU removes the least recently used entry (caller must hold lock)
func (c *PatternCache) evictLRU() {
	element := c.lruList.Back()
	if element == nil {
		return
	}
	expr := element.Value.(string)
	c.lruList.Remove(element)
	delete(c.entries, expr)
}
