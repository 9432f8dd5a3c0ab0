package service

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/calder/lectio/internal/domain"
)

// Tracker timing constants
const (
	trackerTickInterval = 100 * time.Millisecond

	// maxTickDelta bounds a single tick's wall-clock delta; anything at or
	// above this indicates a clock jump or suspend and is discarded
	maxTickDelta = time.Second
)

// ErrSessionCapReached indicates the continuous-session cap was hit; a new
// Start is required to continue tracking.
var ErrSessionCapReached = errors.New("reading session cap reached")

// TrackerState is the tracker lifecycle state
type TrackerState int

const (
	TrackerStopped TrackerState = iota
	TrackerActive
	TrackerPaused
)

// BackupStore is the durable slot that makes unflushed time survive an
// unclean termination.
type BackupStore interface {
	SaveTrackerBackup(backup domain.TrackerBackup) error
	LoadTrackerBackup() (domain.TrackerBackup, bool)
	ClearTrackerBackup() error
}

// FlushSink receives accumulated reading time. Persisting the delta (and
// validating it) is the sink's responsibility.
type FlushSink func(novelID string, elapsed time.Duration)

// TimeTracker accumulates active reading time on a 100ms tick. Spurious
// tick deltas (clock jumps, suspend) are discarded, a hard session cap
// bounds any single session's contribution, and the unflushed accumulator
// is mirrored to durable storage on every tick so a crash loses nothing.
type TimeTracker struct {
	mu sync.Mutex

	backup BackupStore
	sink   FlushSink
	logger *slog.Logger

	flushInterval time.Duration
	sessionCap    time.Duration
	now           func() time.Time

	state         TrackerState
	novelID       string
	accumulated   time.Duration // unflushed active time
	sessionActive time.Duration // total active time this session
	lastTick      time.Time
	capped        bool
	stopCh        chan struct{}
}

// NewTimeTracker creates a reading time tracker. flushInterval defaults to
// 30s and sessionCap to 2h.
func NewTimeTracker(backup BackupStore, sink FlushSink, flushInterval, sessionCap time.Duration, logger *slog.Logger) *TimeTracker {
	if flushInterval <= 0 {
		flushInterval = 30 * time.Second
	}
	if sessionCap <= 0 {
		sessionCap = 2 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TimeTracker{
		backup:        backup,
		sink:          sink,
		logger:        logger,
		flushInterval: flushInterval,
		sessionCap:    sessionCap,
		now:           time.Now,
	}
}

// State returns the current tracker state
func (t *TimeTracker) State() TrackerState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Unflushed returns the accumulated time not yet handed to the sink
func (t *TimeTracker) Unflushed() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.accumulated
}

// Start begins a tracking session for novelID. If a crash backup exists
// for the same novel, its unflushed time is adopted as the starting
// accumulator and the backup cleared, recovering the lost time exactly once.
func (t *TimeTracker) Start(novelID string) error {
	if err := t.begin(novelID); err != nil {
		return err
	}

	t.mu.Lock()
	ch := make(chan struct{})
	t.stopCh = ch
	t.mu.Unlock()

	go t.loop(ch)
	return nil
}

// begin initializes session state without launching the tick loop
func (t *TimeTracker) begin(novelID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != TrackerStopped {
		return fmt.Errorf("tracker already running")
	}

	t.novelID = novelID
	t.accumulated = 0
	t.sessionActive = 0
	t.capped = false

	if backup, ok := t.backup.LoadTrackerBackup(); ok {
		if backup.NovelID == novelID && backup.UnflushedMs > 0 {
			t.accumulated = time.Duration(backup.UnflushedMs) * time.Millisecond
			t.logger.Info("recovered unflushed reading time",
				"novelId", novelID, "recoveredMs", backup.UnflushedMs)
		}
		if err := t.backup.ClearTrackerBackup(); err != nil {
			t.logger.Warn("failed to clear tracker backup", "error", err)
		}
	}

	t.state = TrackerActive
	t.lastTick = t.now()
	return nil
}

// Pause flushes current accumulation and suspends ticking
func (t *TimeTracker) Pause() {
	t.mu.Lock()
	if t.state != TrackerActive {
		t.mu.Unlock()
		return
	}
	novelID, elapsed := t.drainLocked()
	t.state = TrackerPaused
	t.stopLoopLocked()
	t.mu.Unlock()

	t.emit(novelID, elapsed)
}

// Resume continues a paused session. A session that hit the cap cannot be
// resumed; it needs a fresh Start.
func (t *TimeTracker) Resume() error {
	t.mu.Lock()
	if t.state != TrackerPaused {
		t.mu.Unlock()
		return fmt.Errorf("tracker is not paused")
	}
	if t.capped {
		t.mu.Unlock()
		return ErrSessionCapReached
	}
	t.state = TrackerActive
	t.lastTick = t.now()
	ch := make(chan struct{})
	t.stopCh = ch
	t.mu.Unlock()

	go t.loop(ch)
	return nil
}

// Stop flushes and ends the session
func (t *TimeTracker) Stop() {
	t.mu.Lock()
	if t.state == TrackerStopped {
		t.mu.Unlock()
		return
	}
	novelID, elapsed := t.drainLocked()
	if err := t.backup.ClearTrackerBackup(); err != nil {
		t.logger.Warn("failed to clear tracker backup", "error", err)
	}
	t.state = TrackerStopped
	t.novelID = ""
	t.stopLoopLocked()
	t.mu.Unlock()

	t.emit(novelID, elapsed)
}

func (t *TimeTracker) loop(stopCh chan struct{}) {
	ticker := time.NewTicker(trackerTickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			t.tick(t.now())
		}
	}
}

// tick accounts the wall-clock delta since the previous tick
func (t *TimeTracker) tick(now time.Time) {
	t.mu.Lock()

	if t.state != TrackerActive {
		t.mu.Unlock()
		return
	}

	delta := now.Sub(t.lastTick)
	t.lastTick = now

	if delta <= 0 || delta >= maxTickDelta {
		t.logger.Debug("discarding spurious tick delta", "deltaMs", delta.Milliseconds())
		t.mu.Unlock()
		return
	}

	t.accumulated += delta
	t.sessionActive += delta

	// Mirror the unflushed accumulator so a crash loses nothing
	if err := t.backup.SaveTrackerBackup(domain.TrackerBackup{
		NovelID:     t.novelID,
		UnflushedMs: t.accumulated.Milliseconds(),
	}); err != nil {
		t.logger.Warn("failed to back up tracker state", "error", err)
	}

	var (
		novelID string
		elapsed time.Duration
	)
	switch {
	case t.sessionActive >= t.sessionCap:
		t.logger.Info("session cap reached, pausing", "novelId", t.novelID)
		novelID, elapsed = t.drainLocked()
		t.capped = true
		t.state = TrackerPaused
		t.stopLoopLocked()
	case t.accumulated >= t.flushInterval:
		novelID, elapsed = t.drainLocked()
	}
	t.mu.Unlock()

	t.emit(novelID, elapsed)
}

// drainLocked takes the accumulator for handoff to the sink and clears the
// backup slot. Caller holds t.mu; the sink itself must run unlocked so it
// can call back into the tracker.
func (t *TimeTracker) drainLocked() (string, time.Duration) {
	if t.accumulated <= 0 {
		return "", 0
	}
	elapsed := t.accumulated
	t.accumulated = 0
	if err := t.backup.ClearTrackerBackup(); err != nil {
		t.logger.Warn("failed to clear tracker backup", "error", err)
	}
	return t.novelID, elapsed
}

// emit hands drained time to the sink, outside the tracker lock
func (t *TimeTracker) emit(novelID string, elapsed time.Duration) {
	if elapsed > 0 && t.sink != nil {
		t.sink(novelID, elapsed)
	}
}

// stopLoopLocked stops the tick goroutine. Caller holds t.mu.
func (t *TimeTracker) stopLoopLocked() {
	if t.stopCh != nil {
		close(t.stopCh)
		t.stopCh = nil
	}
}
