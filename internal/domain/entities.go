package domain

import (
	"fmt"
	"time"
)

// ProgressRecord tracks reading progress for a single novel.
// Exactly one record exists per NovelID.
type ProgressRecord struct {
	NovelID string `json:"novelId"`

	// Position fields (subject to last-write-wins on merge)
	CurrentChapterID    string   `json:"currentChapterId"`
	CurrentChapterOrder int      `json:"currentChapterOrder"`
	CurrentChapterTitle string   `json:"currentChapterTitle"`
	CurrentPosition     float64  `json:"currentPosition"`            // Scroll offset within the chapter
	ScrollPercentage    *float64 `json:"scrollPercentage,omitempty"` // 0.0-1.0, nil = unknown
	SegmentIndex        int      `json:"segmentIndex"`

	TotalChaptersRead int `json:"totalChaptersRead"`
	TotalChapters     int `json:"totalChapters"`

	// LastReadDate is the instant of the last local mutation
	LastReadDate time.Time `json:"lastReadDate"`

	// TotalReadingTime is the authoritative cumulative reading time in
	// milliseconds. The server owns this value; it is only ever overwritten
	// wholesale from a successful download, never incremented locally.
	TotalReadingTime int64 `json:"totalReadingTime"`

	// UnsyncedDelta holds locally accumulated reading milliseconds that the
	// server has not yet absorbed. Reset to 0 only after the server confirms
	// absorption.
	UnsyncedDelta int64 `json:"unsyncedDelta"`

	// Denormalized novel metadata from the download phase
	NovelTitle string `json:"novelTitle,omitempty"`
	CoverURL   string `json:"coverUrl,omitempty"`
	AuthorName string `json:"authorName,omitempty"`
}

// PercentComplete returns chapter completion as a fraction, 0 when unknown.
func (r ProgressRecord) PercentComplete() float64 {
	if r.TotalChapters <= 0 {
		return 0
	}
	return float64(r.TotalChaptersRead) / float64(r.TotalChapters)
}

// FormattedReadingTime returns the cumulative reading time in a
// human-readable format.
func (r ProgressRecord) FormattedReadingTime() string {
	d := time.Duration(r.TotalReadingTime) * time.Millisecond
	h := int(d.Hours())
	mins := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh %dm", h, mins)
	}
	return fmt.Sprintf("%dm", mins)
}

// HasPendingDelta reports whether there is reading time awaiting upload.
func (r ProgressRecord) HasPendingDelta() bool {
	return r.UnsyncedDelta > 0
}

// StyleSpan marks a styled run of text within a segment.
type StyleSpan struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	Kind  string `json:"kind"` // "em", "strong", "ruby", ...
}

// Segment is one paragraph-level unit of chapter text.
type Segment struct {
	Text   string      `json:"text"`
	Styles []StyleSpan `json:"styles,omitempty"`
}

// ChapterContent is the fetched body of a single chapter.
type ChapterContent struct {
	ChapterID string    `json:"chapterId"`
	Title     string    `json:"title"`
	Segments  []Segment `json:"segments"`
}

// WordCount returns an approximate word count across all segments.
// Used by reading-speed validation.
func (c ChapterContent) WordCount() int {
	count := 0
	for _, seg := range c.Segments {
		inWord := false
		for _, r := range seg.Text {
			if r == ' ' || r == '\t' || r == '\n' {
				inWord = false
				continue
			}
			if !inWord {
				count++
				inWord = true
			}
		}
	}
	return count
}

// SyncResult summarizes what happened during a full sync.
type SyncResult struct {
	Uploaded   int // records sent to the server
	Downloaded int // records received from the server
	Merged     int // local records created or updated
	Failed     int // upload entries the server rejected
}

// SyncState is the observable state of the sync engine.
type SyncState int

const (
	SyncIdle SyncState = iota
	SyncRunning
	SyncSucceeded
	SyncFailed
)

// String returns a human-readable representation of the sync state.
func (s SyncState) String() string {
	switch s {
	case SyncIdle:
		return "idle"
	case SyncRunning:
		return "syncing"
	case SyncSucceeded:
		return "success"
	case SyncFailed:
		return "error"
	default:
		return "unknown"
	}
}

// TrackerBackup is the crash-recovery slot mirrored on every tracker tick.
type TrackerBackup struct {
	NovelID     string `json:"novelId"`
	UnflushedMs int64  `json:"unflushedMs"`
}
