package api

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/calder/lectio/internal/domain"
)

// envelope wraps every successful API response
type envelope struct {
	OK      bool            `json:"ok"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data"`
}

// errorEnvelope is the optional body of 4xx/5xx responses
type errorEnvelope struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ProgressDelta is one entry of the upload batch. TotalReadingTime carries
// the locally accumulated delta, never the cumulative total; the server is
// responsible for summation.
type ProgressDelta struct {
	NovelID           string   `json:"novelId"`
	CurrentChapter    int      `json:"currentChapter"`
	CurrentPosition   float64  `json:"currentPosition"`
	TotalChaptersRead int      `json:"totalChaptersRead"`
	LastReadTime      int64    `json:"lastReadTime"` // ms since epoch
	TotalReadingTime  int64    `json:"totalReadingTime"`
	CurrentChapterID  string   `json:"currentChapterId"`
	ScrollPercentage  *float64 `json:"scrollPercentage,omitempty"`
	SegmentIndex      int      `json:"segmentIndex"`
}

type syncUploadRequest struct {
	History []ProgressDelta `json:"history"`
}

// SyncUploadResponse reports per-batch upload counts
type SyncUploadResponse struct {
	Synced  int                `json:"synced"`
	Failed  int                `json:"failed"`
	Details []SyncUploadDetail `json:"details,omitempty"`
}

// SyncUploadDetail explains the fate of a single uploaded entry
type SyncUploadDetail struct {
	NovelID string `json:"novelId"`
	Status  string `json:"status"`
	Reason  string `json:"reason,omitempty"`
}

// HistoryEntry is one downloaded record, enriched with denormalized novel
// metadata so the client avoids a second round trip.
type HistoryEntry struct {
	NovelID             string   `json:"novelId"`
	CurrentChapter      int      `json:"currentChapter"`
	CurrentChapterTitle string   `json:"currentChapterTitle,omitempty"`
	CurrentPosition     float64  `json:"currentPosition"`
	LastReadTime        string   `json:"lastReadTime"`     // ISO-8601
	TotalReadingTime    string   `json:"totalReadingTime"` // string-encoded integer ms
	CurrentChapterID    string   `json:"currentChapterId"`
	ScrollPercentage    *float64 `json:"scrollPercentage,omitempty"`
	SegmentIndex        int      `json:"segmentIndex"`
	TotalChaptersRead   int      `json:"totalChaptersRead"`
	TotalChapters       int      `json:"totalChapters"`
	NovelTitle          string   `json:"novelTitle,omitempty"`
	NovelCoverImage     string   `json:"novelCoverImage,omitempty"`
	AuthorName          string   `json:"authorName,omitempty"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
	DeviceID     string `json:"deviceId,omitempty"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	DeviceID string `json:"deviceId,omitempty"`
}

// tokenResponse is the data payload of /auth/refresh and /auth/login
type tokenResponse struct {
	AccessToken  string   `json:"accessToken"`
	RefreshToken string   `json:"refreshToken,omitempty"`
	User         userInfo `json:"user"`
}

type userInfo struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

// mapDelta builds an upload entry from a local record
func mapDelta(r *domain.ProgressRecord) ProgressDelta {
	return ProgressDelta{
		NovelID:           r.NovelID,
		CurrentChapter:    r.CurrentChapterOrder,
		CurrentPosition:   r.CurrentPosition,
		TotalChaptersRead: r.TotalChaptersRead,
		LastReadTime:      r.LastReadDate.UnixMilli(),
		TotalReadingTime:  r.UnsyncedDelta,
		CurrentChapterID:  r.CurrentChapterID,
		ScrollPercentage:  r.ScrollPercentage,
		SegmentIndex:      r.SegmentIndex,
	}
}

// mapHistoryEntry converts a downloaded entry to a domain record
func mapHistoryEntry(e HistoryEntry) (*domain.ProgressRecord, error) {
	lastRead, err := time.Parse(time.RFC3339, e.LastReadTime)
	if err != nil {
		return nil, fmt.Errorf("bad lastReadTime %q: %w", e.LastReadTime, err)
	}

	totalMs := int64(0)
	if e.TotalReadingTime != "" {
		totalMs, err = strconv.ParseInt(e.TotalReadingTime, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad totalReadingTime %q: %w", e.TotalReadingTime, err)
		}
	}

	return &domain.ProgressRecord{
		NovelID:             e.NovelID,
		CurrentChapterID:    e.CurrentChapterID,
		CurrentChapterOrder: e.CurrentChapter,
		CurrentChapterTitle: e.CurrentChapterTitle,
		CurrentPosition:     e.CurrentPosition,
		ScrollPercentage:    e.ScrollPercentage,
		SegmentIndex:        e.SegmentIndex,
		TotalChaptersRead:   e.TotalChaptersRead,
		TotalChapters:       e.TotalChapters,
		LastReadDate:        lastRead,
		TotalReadingTime:    totalMs,
		NovelTitle:          e.NovelTitle,
		CoverURL:            e.NovelCoverImage,
		AuthorName:          e.AuthorName,
	}, nil
}
