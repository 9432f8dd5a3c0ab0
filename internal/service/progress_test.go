package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calder/lectio/internal/domain"
	"github.com/calder/lectio/internal/log"
)

func TestApplyReadingTime(t *testing.T) {
	s := newMemStore(t)
	defer s.Close()

	svc := NewProgressService(s, &fakeSyncAPI{}, log.Null())

	require.NoError(t, svc.ApplyReadingTime("n1", 30*time.Second, 200))
	require.NoError(t, svc.ApplyReadingTime("n1", 45*time.Second, 300))

	record, ok := s.Get("n1")
	require.True(t, ok)
	assert.Equal(t, int64(75000), record.UnsyncedDelta)
	assert.False(t, record.LastReadDate.IsZero())
}

func TestApplyReadingTimeRejectsFraudulentDelta(t *testing.T) {
	s := newMemStore(t)
	defer s.Close()

	svc := NewProgressService(s, &fakeSyncAPI{}, log.Null())

	// 5000 words in 30 seconds is 10000 WPM; dropped without an error
	require.NoError(t, svc.ApplyReadingTime("n1", 30*time.Second, 5000))

	_, ok := s.Get("n1")
	assert.False(t, ok)
}

func TestUpdatePosition(t *testing.T) {
	s := newMemStore(t)
	defer s.Close()

	svc := NewProgressService(s, &fakeSyncAPI{}, log.Null())

	scroll := 0.35
	require.NoError(t, svc.UpdatePosition("n1", Position{
		ChapterID:        "c7",
		ChapterOrder:     7,
		ChapterTitle:     "A Turn in the Road",
		Offset:           1234,
		ScrollPercentage: &scroll,
		SegmentIndex:     4,
		TotalChapters:    40,
	}))

	record, ok := s.Get("n1")
	require.True(t, ok)
	assert.Equal(t, "c7", record.CurrentChapterID)
	assert.Equal(t, 7, record.CurrentChapterOrder)
	assert.Equal(t, 7, record.TotalChaptersRead)
	assert.Equal(t, 40, record.TotalChapters)
	require.NotNil(t, record.ScrollPercentage)
	assert.Equal(t, 0.35, *record.ScrollPercentage)

	// Navigating backwards keeps the high-water chapter count
	require.NoError(t, svc.UpdatePosition("n1", Position{ChapterID: "c3", ChapterOrder: 3}))
	record, ok = s.Get("n1")
	require.True(t, ok)
	assert.Equal(t, "c3", record.CurrentChapterID)
	assert.Equal(t, 7, record.TotalChaptersRead)
	assert.Equal(t, 40, record.TotalChapters)
}

func TestDeleteRemovesLocallyAndRemotely(t *testing.T) {
	s := newMemStore(t)
	defer s.Close()
	require.NoError(t, s.Put(&domain.ProgressRecord{NovelID: "n1"}))

	api := &fakeSyncAPI{deleted: make(chan string, 1)}
	svc := NewProgressService(s, api, log.Null())

	require.NoError(t, svc.Delete("n1"))

	_, ok := s.Get("n1")
	assert.False(t, ok)

	select {
	case novelID := <-api.deleted:
		assert.Equal(t, "n1", novelID)
	case <-time.After(2 * time.Second):
		t.Fatal("remote delete was never issued")
	}
}
