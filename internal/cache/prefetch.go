package cache

import (
	"context"

	"github.com/calder/lectio/internal/domain"
)

// prefetchTask tracks one cancellable background fetch
type prefetchTask struct {
	cancel context.CancelFunc
}

// Prefetch fetches chapter content in the background and caches it on
// completion. Prefetch is single-flight per key: starting a prefetch for a
// chapter already being prefetched cancels the prior attempt first, and a
// fetch that completes after cancellation discards its result without
// mutating the cache or surfacing an error. Chapters already cached are
// never re-fetched.
func (c *ContentCache) Prefetch(chapterID string, fetch domain.ChapterFetcher) {
	if c.Contains(chapterID) {
		return
	}

	c.prefetchMu.Lock()
	if prior, ok := c.prefetches[chapterID]; ok {
		prior.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	task := &prefetchTask{cancel: cancel}
	c.prefetches[chapterID] = task
	c.prefetchMu.Unlock()

	go func() {
		defer cancel()

		content, err := fetch(ctx, chapterID)

		// Commit only if this task is still the current one for the key
		c.prefetchMu.Lock()
		current := c.prefetches[chapterID] == task
		if current {
			delete(c.prefetches, chapterID)
		}
		c.prefetchMu.Unlock()

		if !current || ctx.Err() != nil {
			c.logger.Debug("prefetch discarded", "chapterId", chapterID)
			return
		}
		if err != nil {
			c.logger.Warn("prefetch failed", "chapterId", chapterID, "error", err)
			return
		}
		if content != nil {
			c.Set(chapterID, content)
			c.logger.Debug("prefetched chapter", "chapterId", chapterID)
		}
	}()
}

// CancelPrefetch cancels an in-flight prefetch for a single chapter
func (c *ContentCache) CancelPrefetch(chapterID string) {
	c.prefetchMu.Lock()
	defer c.prefetchMu.Unlock()
	if task, ok := c.prefetches[chapterID]; ok {
		task.cancel()
		delete(c.prefetches, chapterID)
	}
}

// CancelAll cancels every in-flight prefetch
func (c *ContentCache) CancelAll() {
	c.prefetchMu.Lock()
	defer c.prefetchMu.Unlock()
	for chapterID, task := range c.prefetches {
		task.cancel()
		delete(c.prefetches, chapterID)
	}
}
