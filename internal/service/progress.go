package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/calder/lectio/internal/domain"
)

// Position is a navigation update for a single novel
type Position struct {
	ChapterID        string
	ChapterOrder     int
	ChapterTitle     string
	Offset           float64
	ScrollPercentage *float64
	SegmentIndex     int
	TotalChapters    int
}

// ProgressService applies local mutations to progress records: tracker
// flushes and navigation updates. All mutations go through the store's
// per-record critical section.
type ProgressService struct {
	store  domain.ProgressStore
	api    domain.SyncAPI
	logger *slog.Logger
}

// NewProgressService creates a progress mutation service
func NewProgressService(store domain.ProgressStore, api domain.SyncAPI, logger *slog.Logger) *ProgressService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProgressService{store: store, api: api, logger: logger}
}

// ApplyReadingTime folds a tracker flush into the novel's pending delta.
// The delta is validated against the chapter's word count first: a
// fraudulent reading speed drops the delta with diagnostic logging only,
// never an error, since rejected data is non-actionable for the user.
func (s *ProgressService) ApplyReadingTime(novelID string, elapsed time.Duration, wordCount int) error {
	switch ValidateReadingSpeed(elapsed, wordCount) {
	case SpeedRejected:
		s.logger.Warn("rejecting implausible reading speed",
			"novelId", novelID, "elapsedMs", elapsed.Milliseconds(), "words", wordCount)
		return nil
	case SpeedSuspicious:
		s.logger.Info("suspicious reading speed",
			"novelId", novelID, "elapsedMs", elapsed.Milliseconds(), "words", wordCount)
	}

	return s.store.Update(novelID, func(r *domain.ProgressRecord) {
		r.UnsyncedDelta += elapsed.Milliseconds()
		r.LastReadDate = time.Now()
	})
}

// UpdatePosition records a navigation event. The record is created on the
// first read event for a novel.
func (s *ProgressService) UpdatePosition(novelID string, pos Position) error {
	return s.store.Update(novelID, func(r *domain.ProgressRecord) {
		r.CurrentChapterID = pos.ChapterID
		r.CurrentChapterOrder = pos.ChapterOrder
		r.CurrentChapterTitle = pos.ChapterTitle
		r.CurrentPosition = pos.Offset
		r.ScrollPercentage = pos.ScrollPercentage
		r.SegmentIndex = pos.SegmentIndex
		if pos.TotalChapters > 0 {
			r.TotalChapters = pos.TotalChapters
		}
		if pos.ChapterOrder > r.TotalChaptersRead {
			r.TotalChaptersRead = pos.ChapterOrder
		}
		r.LastReadDate = time.Now()
	})
}

// Delete removes a novel's progress. The local delete is immediate and
// authoritative; the remote delete is fired in the background and failure
// is logged, not surfaced.
func (s *ProgressService) Delete(novelID string) error {
	if err := s.store.Delete(novelID); err != nil {
		return err
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.api.DeleteProgress(ctx, novelID); err != nil {
			s.logger.Warn("remote delete failed", "novelId", novelID, "error", err)
		}
	}()

	return nil
}
