package auth

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calder/lectio/internal/log"
)

func TestPerformRefreshSingleFlight(t *testing.T) {
	c := NewCoordinator(time.Nanosecond, log.Null())

	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})

	refresh := func(ctx context.Context) error {
		calls.Add(1)
		close(started)
		<-release
		return nil
	}

	var wg sync.WaitGroup
	results := make([]bool, 10)

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0] = c.PerformRefresh(context.Background(), refresh)
	}()
	<-started

	// Everyone else joins the in-flight refresh instead of dispatching
	for i := 1; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = c.PerformRefresh(context.Background(), refresh)
		}(i)
	}

	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for i, ok := range results {
		assert.True(t, ok, "caller %d", i)
	}
}

func TestPerformRefreshRateLimited(t *testing.T) {
	c := NewCoordinator(time.Hour, log.Null())

	var calls atomic.Int32
	refresh := func(ctx context.Context) error {
		calls.Add(1)
		return nil
	}

	require.True(t, c.PerformRefresh(context.Background(), refresh))

	// Second attempt inside the window fails without a network call
	assert.False(t, c.PerformRefresh(context.Background(), refresh))
	assert.Equal(t, int32(1), calls.Load())
}

func TestPerformRefreshFailureReturnsFalse(t *testing.T) {
	c := NewCoordinator(time.Nanosecond, log.Null())

	ok := c.PerformRefresh(context.Background(), func(ctx context.Context) error {
		return errors.New("server unreachable")
	})
	assert.False(t, ok)
}

func TestPerformRefreshRecoversPanic(t *testing.T) {
	c := NewCoordinator(time.Nanosecond, log.Null())

	ok := c.PerformRefresh(context.Background(), func(ctx context.Context) error {
		panic("boom")
	})
	assert.False(t, ok)

	// Coordinator remains usable after the panic
	ok = c.PerformRefresh(context.Background(), func(ctx context.Context) error {
		return nil
	})
	assert.True(t, ok)
}

func TestPerformRefreshContextCancelledWhileWaiting(t *testing.T) {
	c := NewCoordinator(time.Nanosecond, log.Null())

	started := make(chan struct{})
	release := make(chan struct{})
	go c.PerformRefresh(context.Background(), func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	})
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ok := c.PerformRefresh(ctx, func(ctx context.Context) error { return nil })
	assert.False(t, ok)

	close(release)
}
