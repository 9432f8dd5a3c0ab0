package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/calder/lectio/internal/domain"
)

// Authorizer reports whether a usable (non-expired) credential exists
type Authorizer interface {
	Authenticated() bool
}

// Syncer reconciles local progress records against the remote store.
// A full sync runs three strictly sequential phases: upload local deltas,
// download the authoritative record set, merge into local storage.
type Syncer struct {
	api   domain.SyncAPI
	store domain.ProgressStore
	authz Authorizer

	logger    *slog.Logger
	pageLimit int

	syncing atomic.Bool

	mu      sync.Mutex
	state   domain.SyncState
	onState func(domain.SyncState)
}

// NewSyncer creates a progress sync engine
func NewSyncer(api domain.SyncAPI, store domain.ProgressStore, authz Authorizer, pageLimit int, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	if pageLimit <= 0 {
		pageLimit = 1000
	}
	return &Syncer{
		api:       api,
		store:     store,
		authz:     authz,
		logger:    logger,
		pageLimit: pageLimit,
		state:     domain.SyncIdle,
	}
}

// State returns the current sync state
func (s *Syncer) State() domain.SyncState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetStateListener registers a callback invoked on every state transition
func (s *Syncer) SetStateListener(fn func(domain.SyncState)) {
	s.mu.Lock()
	s.onState = fn
	s.mu.Unlock()
}

func (s *Syncer) setState(state domain.SyncState) {
	s.mu.Lock()
	s.state = state
	fn := s.onState
	s.mu.Unlock()
	if fn != nil {
		fn(state)
	}
}

// FullSync uploads pending deltas, downloads the remote record set, and
// merges it into local storage. Overlapping invocations are rejected with
// ErrSyncInProgress. A failure in any phase aborts the remaining phases;
// work committed by earlier phases is not rolled back.
func (s *Syncer) FullSync(ctx context.Context) (*domain.SyncResult, error) {
	if !s.syncing.CompareAndSwap(false, true) {
		return nil, domain.ErrSyncInProgress
	}
	defer s.syncing.Store(false)

	// No network touch without a valid credential
	if !s.authz.Authenticated() {
		s.setState(domain.SyncFailed)
		s.setState(domain.SyncIdle)
		return nil, domain.ErrNotAuthenticated
	}

	s.setState(domain.SyncRunning)

	result, err := s.run(ctx)
	if err != nil {
		s.logger.Error("full sync failed", "error", err)
		s.setState(domain.SyncFailed)
		s.setState(domain.SyncIdle)
		return nil, err
	}

	s.logger.Info("full sync complete",
		"uploaded", result.Uploaded, "downloaded", result.Downloaded,
		"merged", result.Merged, "failed", result.Failed)
	s.setState(domain.SyncSucceeded)
	s.setState(domain.SyncIdle)
	return result, nil
}

func (s *Syncer) run(ctx context.Context) (*domain.SyncResult, error) {
	result := &domain.SyncResult{}

	// Phase 1: upload
	locals, err := s.store.List()
	if err != nil {
		return nil, fmt.Errorf("loading local records: %w", err)
	}
	if len(locals) > 0 {
		synced, failed, err := s.api.UploadProgress(ctx, locals)
		if err != nil {
			return nil, fmt.Errorf("upload phase: %w", err)
		}
		result.Uploaded = synced
		result.Failed = failed
	}

	// Phase 2: download
	remotes, err := s.api.FetchHistory(ctx, s.pageLimit, 0)
	if err != nil {
		return nil, fmt.Errorf("download phase: %w", err)
	}
	result.Downloaded = len(remotes)

	// Phase 3: merge, atomically against concurrent tracker flushes
	if err := s.store.Reconcile(remotes, mergeRecord); err != nil {
		return nil, fmt.Errorf("merge phase: %w", err)
	}
	result.Merged = len(remotes)

	return result, nil
}

// mergeRecord reconciles one remote record with its local counterpart.
// Position fields follow last-write-wins on lastReadTime. The accumulator
// does not: totalReadingTime is always taken from the remote record (the
// server owns the running total) and unsyncedDelta is always reset, since
// the server has folded the previously sent delta into its total.
func mergeRecord(local *domain.ProgressRecord, remote *domain.ProgressRecord) *domain.ProgressRecord {
	if local == nil {
		merged := *remote
		merged.UnsyncedDelta = 0
		return &merged
	}

	merged := *local

	if remote.LastReadDate.After(local.LastReadDate) {
		merged.CurrentChapterID = remote.CurrentChapterID
		merged.CurrentChapterOrder = remote.CurrentChapterOrder
		merged.CurrentChapterTitle = remote.CurrentChapterTitle
		merged.CurrentPosition = remote.CurrentPosition
		merged.ScrollPercentage = remote.ScrollPercentage
		merged.SegmentIndex = remote.SegmentIndex
		merged.TotalChaptersRead = remote.TotalChaptersRead
		merged.LastReadDate = remote.LastReadDate
	}

	// Denormalized novel metadata is refreshed whenever the server has it
	if remote.NovelTitle != "" {
		merged.NovelTitle = remote.NovelTitle
	}
	if remote.CoverURL != "" {
		merged.CoverURL = remote.CoverURL
	}
	if remote.AuthorName != "" {
		merged.AuthorName = remote.AuthorName
	}
	if remote.TotalChapters > 0 {
		merged.TotalChapters = remote.TotalChapters
	}

	merged.TotalReadingTime = remote.TotalReadingTime
	merged.UnsyncedDelta = 0

	return &merged
}
