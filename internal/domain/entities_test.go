package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWordCount(t *testing.T) {
	content := ChapterContent{Segments: []Segment{
		{Text: "The quick brown fox"},
		{Text: "  jumps\tover\nthe lazy dog  "},
		{Text: ""},
	}}
	assert.Equal(t, 9, content.WordCount())

	assert.Equal(t, 0, ChapterContent{}.WordCount())
}

func TestPercentComplete(t *testing.T) {
	assert.Equal(t, 0.0, ProgressRecord{}.PercentComplete())
	assert.Equal(t, 0.25, ProgressRecord{TotalChaptersRead: 10, TotalChapters: 40}.PercentComplete())
}

func TestFormattedReadingTime(t *testing.T) {
	assert.Equal(t, "0m", ProgressRecord{}.FormattedReadingTime())
	assert.Equal(t, "45m", ProgressRecord{TotalReadingTime: 45 * 60 * 1000}.FormattedReadingTime())
	assert.Equal(t, "2h 5m", ProgressRecord{TotalReadingTime: 125 * 60 * 1000}.FormattedReadingTime())
}

func TestHasPendingDelta(t *testing.T) {
	assert.False(t, ProgressRecord{}.HasPendingDelta())
	assert.True(t, ProgressRecord{UnsyncedDelta: 1}.HasPendingDelta())
}

func TestSyncStateString(t *testing.T) {
	assert.Equal(t, "idle", SyncIdle.String())
	assert.Equal(t, "syncing", SyncRunning.String())
	assert.Equal(t, "success", SyncSucceeded.String())
	assert.Equal(t, "error", SyncFailed.String())
}
