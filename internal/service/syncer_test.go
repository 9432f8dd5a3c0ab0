package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calder/lectio/internal/domain"
	"github.com/calder/lectio/internal/log"
	"github.com/calder/lectio/internal/store"
)

// fakeSyncAPI implements domain.SyncAPI with function hooks
type fakeSyncAPI struct {
	upload  func(ctx context.Context, records []*domain.ProgressRecord) (int, int, error)
	fetch   func(ctx context.Context, limit, offset int) ([]*domain.ProgressRecord, error)
	deleted chan string
}

func (f *fakeSyncAPI) UploadProgress(ctx context.Context, records []*domain.ProgressRecord) (int, int, error) {
	if f.upload == nil {
		return len(records), 0, nil
	}
	return f.upload(ctx, records)
}

func (f *fakeSyncAPI) FetchHistory(ctx context.Context, limit, offset int) ([]*domain.ProgressRecord, error) {
	if f.fetch == nil {
		return nil, nil
	}
	return f.fetch(ctx, limit, offset)
}

func (f *fakeSyncAPI) DeleteProgress(ctx context.Context, novelID string) error {
	if f.deleted != nil {
		f.deleted <- novelID
	}
	return nil
}

type fakeAuthz bool

func (f fakeAuthz) Authenticated() bool { return bool(f) }

func newMemStore(t *testing.T) *store.ProgressStore {
	t.Helper()
	s, err := store.NewProgressStore("")
	require.NoError(t, err)
	return s
}

func TestMergeRecordNewerRemoteWinsPosition(t *testing.T) {
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	local := &domain.ProgressRecord{
		NovelID:             "n1",
		CurrentChapterID:    "c5",
		CurrentChapterOrder: 5,
		CurrentPosition:     0.2,
		TotalChaptersRead:   5,
		LastReadDate:        base,
		TotalReadingTime:    1000,
		UnsyncedDelta:       500,
	}
	remote := &domain.ProgressRecord{
		NovelID:             "n1",
		CurrentChapterID:    "c8",
		CurrentChapterOrder: 8,
		CurrentPosition:     0.7,
		TotalChaptersRead:   8,
		LastReadDate:        base.Add(time.Hour),
		TotalReadingTime:    9000,
	}

	merged := mergeRecord(local, remote)
	assert.Equal(t, "c8", merged.CurrentChapterID)
	assert.Equal(t, 8, merged.CurrentChapterOrder)
	assert.Equal(t, 0.7, merged.CurrentPosition)
	assert.Equal(t, 8, merged.TotalChaptersRead)
	assert.True(t, merged.LastReadDate.Equal(remote.LastReadDate))
	assert.Equal(t, int64(9000), merged.TotalReadingTime)
	assert.Equal(t, int64(0), merged.UnsyncedDelta)
}

func TestMergeRecordStaleRemoteKeepsLocalPosition(t *testing.T) {
	// Local read at t=1000 with 3s pending; remote last seen at t=500 but
	// with a larger server-side total. Position must stay local while the
	// accumulator follows the server.
	local := &domain.ProgressRecord{
		NovelID:          "n1",
		CurrentChapterID: "c10",
		CurrentPosition:  0.9,
		LastReadDate:     time.UnixMilli(1000),
		TotalReadingTime: 5000,
		UnsyncedDelta:    3000,
	}
	remote := &domain.ProgressRecord{
		NovelID:          "n1",
		CurrentChapterID: "c2",
		CurrentPosition:  0.1,
		LastReadDate:     time.UnixMilli(500),
		TotalReadingTime: 8000,
	}

	merged := mergeRecord(local, remote)
	assert.Equal(t, "c10", merged.CurrentChapterID)
	assert.Equal(t, 0.9, merged.CurrentPosition)
	assert.True(t, merged.LastReadDate.Equal(time.UnixMilli(1000)))
	assert.Equal(t, int64(8000), merged.TotalReadingTime)
	assert.Equal(t, int64(0), merged.UnsyncedDelta)
}

func TestMergeRecordEqualTimestampKeepsLocal(t *testing.T) {
	at := time.UnixMilli(1000)
	local := &domain.ProgressRecord{NovelID: "n1", CurrentChapterID: "c3", LastReadDate: at}
	remote := &domain.ProgressRecord{NovelID: "n1", CurrentChapterID: "c9", LastReadDate: at}

	// Strictly-newer wins; a tie is not an overwrite
	merged := mergeRecord(local, remote)
	assert.Equal(t, "c3", merged.CurrentChapterID)
}

func TestMergeRecordNoLocal(t *testing.T) {
	remote := &domain.ProgressRecord{
		NovelID:          "n1",
		CurrentChapterID: "c1",
		TotalReadingTime: 100,
		UnsyncedDelta:    42, // should never survive a download
	}
	merged := mergeRecord(nil, remote)
	assert.Equal(t, "c1", merged.CurrentChapterID)
	assert.Equal(t, int64(0), merged.UnsyncedDelta)
}

func TestMergeRecordIdempotent(t *testing.T) {
	local := &domain.ProgressRecord{
		NovelID:          "n1",
		CurrentChapterID: "c5",
		LastReadDate:     time.UnixMilli(1000),
		TotalReadingTime: 5000,
		UnsyncedDelta:    3000,
	}
	remote := &domain.ProgressRecord{
		NovelID:          "n1",
		CurrentChapterID: "c7",
		LastReadDate:     time.UnixMilli(2000),
		TotalReadingTime: 8000,
		NovelTitle:       "The Long Road",
	}

	once := mergeRecord(local, remote)
	twice := mergeRecord(once, remote)
	assert.Equal(t, once, twice)
}

func TestMergeRecordRefreshesMetadata(t *testing.T) {
	local := &domain.ProgressRecord{
		NovelID:      "n1",
		NovelTitle:   "Old Title",
		LastReadDate: time.UnixMilli(2000),
	}
	remote := &domain.ProgressRecord{
		NovelID:       "n1",
		NovelTitle:    "New Title",
		AuthorName:    "A. Writer",
		TotalChapters: 40,
		LastReadDate:  time.UnixMilli(1000),
	}

	// Metadata refreshes even when the position block stays local
	merged := mergeRecord(local, remote)
	assert.Equal(t, "New Title", merged.NovelTitle)
	assert.Equal(t, "A. Writer", merged.AuthorName)
	assert.Equal(t, 40, merged.TotalChapters)
}

func TestFullSync(t *testing.T) {
	s := newMemStore(t)
	defer s.Close()

	require.NoError(t, s.Put(&domain.ProgressRecord{
		NovelID:       "n1",
		LastReadDate:  time.UnixMilli(1000),
		UnsyncedDelta: 3000,
	}))

	api := &fakeSyncAPI{
		upload: func(ctx context.Context, records []*domain.ProgressRecord) (int, int, error) {
			require.Len(t, records, 1)
			return 1, 0, nil
		},
		fetch: func(ctx context.Context, limit, offset int) ([]*domain.ProgressRecord, error) {
			return []*domain.ProgressRecord{
				{NovelID: "n1", LastReadDate: time.UnixMilli(500), TotalReadingTime: 8000},
				{NovelID: "n2", CurrentChapterID: "c1", LastReadDate: time.UnixMilli(100), TotalReadingTime: 250},
			}, nil
		},
	}

	syncer := NewSyncer(api, s, fakeAuthz(true), 100, log.Null())

	var states []domain.SyncState
	syncer.SetStateListener(func(st domain.SyncState) { states = append(states, st) })

	result, err := syncer.FullSync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Uploaded)
	assert.Equal(t, 2, result.Downloaded)
	assert.Equal(t, 2, result.Merged)
	assert.Equal(t, 0, result.Failed)

	n1, ok := s.Get("n1")
	require.True(t, ok)
	assert.Equal(t, int64(8000), n1.TotalReadingTime)
	assert.Equal(t, int64(0), n1.UnsyncedDelta)

	_, ok = s.Get("n2")
	assert.True(t, ok)

	assert.Equal(t, []domain.SyncState{
		domain.SyncRunning, domain.SyncSucceeded, domain.SyncIdle,
	}, states)
}

func TestFullSyncNotAuthenticated(t *testing.T) {
	s := newMemStore(t)
	defer s.Close()

	syncer := NewSyncer(&fakeSyncAPI{}, s, fakeAuthz(false), 100, log.Null())
	_, err := syncer.FullSync(context.Background())
	assert.ErrorIs(t, err, domain.ErrNotAuthenticated)
	assert.Equal(t, domain.SyncIdle, syncer.State())
}

func TestFullSyncUploadFailureAborts(t *testing.T) {
	s := newMemStore(t)
	defer s.Close()
	require.NoError(t, s.Put(&domain.ProgressRecord{NovelID: "n1", UnsyncedDelta: 100}))

	fetched := false
	api := &fakeSyncAPI{
		upload: func(ctx context.Context, records []*domain.ProgressRecord) (int, int, error) {
			return 0, 0, errors.New("server down")
		},
		fetch: func(ctx context.Context, limit, offset int) ([]*domain.ProgressRecord, error) {
			fetched = true
			return nil, nil
		},
	}

	syncer := NewSyncer(api, s, fakeAuthz(true), 100, log.Null())
	_, err := syncer.FullSync(context.Background())
	require.Error(t, err)
	assert.False(t, fetched, "download phase must not run after a failed upload")

	// The pending delta survives for the next sync
	n1, ok := s.Get("n1")
	require.True(t, ok)
	assert.Equal(t, int64(100), n1.UnsyncedDelta)
}

func TestFullSyncRejectsOverlap(t *testing.T) {
	s := newMemStore(t)
	defer s.Close()

	entered := make(chan struct{})
	release := make(chan struct{})
	api := &fakeSyncAPI{
		fetch: func(ctx context.Context, limit, offset int) ([]*domain.ProgressRecord, error) {
			close(entered)
			<-release
			return nil, nil
		},
	}

	syncer := NewSyncer(api, s, fakeAuthz(true), 100, log.Null())

	done := make(chan error, 1)
	go func() {
		_, err := syncer.FullSync(context.Background())
		done <- err
	}()
	<-entered

	_, err := syncer.FullSync(context.Background())
	assert.ErrorIs(t, err, domain.ErrSyncInProgress)

	close(release)
	require.NoError(t, <-done)
}
