package cache

import (
	"log/slog"
	"sync"
	"time"

	"github.com/calder/lectio/internal/domain"
)

// Cost heuristic constants. These approximate in-memory footprint without
// measuring actual allocation.
const (
	entryOverhead   = 1024 // fixed per-entry overhead
	segmentOverhead = 64   // fixed per-segment overhead
	styleSpanCost   = 32   // fixed per-style-span overhead
)

// entry is a node in the doubly-linked LRU list
type entry struct {
	chapterID string
	content   *domain.ChapterContent
	cost      int64
	cachedAt  time.Time
	prev      *entry
	next      *entry
}

// ContentCache is a bounded, cost-limited cache of fetched chapter content.
// It is bounded by both an entry-count limit and a total cost budget;
// eviction removes least-recently-used entries until both bounds hold.
//
// This uses a doubly-linked list for ordering and a hashmap for lookups:
// head.next is the most recently used, tail.prev the least.
type ContentCache struct {
	mu sync.Mutex

	maxEntries int
	maxCost    int64
	totalCost  int64

	items map[string]*entry
	head  *entry
	tail  *entry

	logger *slog.Logger

	prefetchMu sync.Mutex
	prefetches map[string]*prefetchTask
}

// NewContentCache creates a cache bounded by maxEntries and maxCost bytes
func NewContentCache(maxEntries int, maxCost int64, logger *slog.Logger) *ContentCache {
	if maxEntries <= 0 {
		maxEntries = 10
	}
	if maxCost <= 0 {
		maxCost = 50 * 1024 * 1024
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &ContentCache{
		maxEntries: maxEntries,
		maxCost:    maxCost,
		items:      make(map[string]*entry, maxEntries),
		head:       &entry{},
		tail:       &entry{},
		logger:     logger,
		prefetches: make(map[string]*prefetchTask),
	}
	c.head.next = c.tail
	c.tail.prev = c.head
	return c
}

// EstimateCost approximates the in-memory footprint of chapter content
func EstimateCost(content *domain.ChapterContent) int64 {
	cost := int64(entryOverhead)
	for _, seg := range content.Segments {
		cost += int64(len(seg.Text))*2 + segmentOverhead
		cost += int64(len(seg.Styles)) * styleSpanCost
	}
	return cost
}

// Get retrieves cached content, promoting it to most recently used
func (c *ContentCache) Get(chapterID string) (*domain.ChapterContent, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[chapterID]
	if !ok {
		return nil, false
	}
	c.moveToFront(e)
	return e.content, true
}

// Contains checks for a key without updating access order
func (c *ContentCache) Contains(chapterID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.items[chapterID]
	return ok
}

// Set stores content, evicting least-recently-used entries while either
// the count limit or the cost budget is exceeded
func (c *ContentCache) Set(chapterID string, content *domain.ChapterContent) {
	cost := EstimateCost(content)

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.items[chapterID]; ok {
		c.totalCost += cost - e.cost
		e.content = content
		e.cost = cost
		e.cachedAt = time.Now()
		c.moveToFront(e)
	} else {
		e := &entry{
			chapterID: chapterID,
			content:   content,
			cost:      cost,
			cachedAt:  time.Now(),
		}
		c.items[chapterID] = e
		c.totalCost += cost
		c.pushFront(e)
	}

	for len(c.items) > c.maxEntries || c.totalCost > c.maxCost {
		lru := c.tail.prev
		if lru == c.head {
			break
		}
		c.logger.Debug("evicting chapter", "chapterId", lru.chapterID, "cost", lru.cost)
		c.removeEntry(lru)
	}
}

// Remove drops a single entry
func (c *ContentCache) Remove(chapterID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.items[chapterID]; ok {
		c.removeEntry(e)
	}
}

// Clear drops all entries
func (c *ContentCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*entry, c.maxEntries)
	c.totalCost = 0
	c.head.next = c.tail
	c.tail.prev = c.head
}

// Len returns the number of cached chapters
func (c *ContentCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Cost returns the current total cost estimate
func (c *ContentCache) Cost() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalCost
}

// === Linked list internals (caller holds c.mu) ===

func (c *ContentCache) pushFront(e *entry) {
	e.prev = c.head
	e.next = c.head.next
	c.head.next.prev = e
	c.head.next = e
}

func (c *ContentCache) unlink(e *entry) {
	e.prev.next = e.next
	e.next.prev = e.prev
	e.prev = nil
	e.next = nil
}

func (c *ContentCache) moveToFront(e *entry) {
	c.unlink(e)
	c.pushFront(e)
}

func (c *ContentCache) removeEntry(e *entry) {
	c.unlink(e)
	delete(c.items, e.chapterID)
	c.totalCost -= e.cost
}
