package auth

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RefreshFunc performs the actual credential refresh network call.
// A nil error means the refresh succeeded.
type RefreshFunc func(ctx context.Context) error

// flight is one in-progress refresh that concurrent callers can await
type flight struct {
	done chan struct{}
	ok   bool
}

// Coordinator deduplicates and rate-limits credential refresh attempts.
// It guarantees at most one refresh network call per rate window and
// exactly one in-flight refresh at a time, regardless of caller
// concurrency. Failures surface as false, never as an error, so callers
// cannot mistake "could not refresh" for a crash.
type Coordinator struct {
	mu       sync.Mutex
	limiter  *rate.Limiter
	inflight *flight
	logger   *slog.Logger
}

// NewCoordinator creates a refresh coordinator. window is the minimum gap
// between refresh dispatches (default 10s).
func NewCoordinator(window time.Duration, logger *slog.Logger) *Coordinator {
	if window <= 0 {
		window = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		limiter: rate.NewLimiter(rate.Every(window), 1),
		logger:  logger,
	}
}

// PerformRefresh executes refresh at most once per rate window. If a
// refresh is already in flight, the caller awaits its outcome instead of
// dispatching a second one. Attempts inside the rate window return false
// without a network call.
func (c *Coordinator) PerformRefresh(ctx context.Context, refresh RefreshFunc) bool {
	c.mu.Lock()
	if f := c.inflight; f != nil {
		c.mu.Unlock()
		select {
		case <-f.done:
			return f.ok
		case <-ctx.Done():
			return false
		}
	}

	if !c.limiter.Allow() {
		c.mu.Unlock()
		c.logger.Debug("refresh attempt suppressed by rate limit")
		return false
	}

	f := &flight{done: make(chan struct{})}
	c.inflight = f
	c.mu.Unlock()

	f.ok = c.run(ctx, refresh)

	c.mu.Lock()
	c.inflight = nil
	c.mu.Unlock()
	close(f.done)

	return f.ok
}

// run executes the refresh, converting errors and panics to false
func (c *Coordinator) run(ctx context.Context, refresh RefreshFunc) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("credential refresh panicked", "panic", r)
			ok = false
		}
	}()

	if err := refresh(ctx); err != nil {
		c.logger.Warn("credential refresh failed", "error", err)
		return false
	}
	return true
}
