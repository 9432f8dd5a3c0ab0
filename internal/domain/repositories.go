package domain

import "context"

// ProgressStore handles local persistence of progress records plus the
// tracker crash-recovery slot. Implementations must treat per-record
// read-modify-write as a critical section.
type ProgressStore interface {
	// === Records ===
	Get(novelID string) (*ProgressRecord, bool)
	Put(record *ProgressRecord) error
	List() ([]*ProgressRecord, error)
	Delete(novelID string) error

	// Update applies fn to the record for novelID under the store's write
	// lock, creating the record first if absent.
	Update(novelID string, fn func(*ProgressRecord)) error

	// Reconcile pairs each remote record with its local counterpart,
	// applies merge, and commits the results atomically. The full
	// read-merge-commit cycle shares Update's critical section so a flush
	// and a merge on the same novel cannot interleave.
	Reconcile(remotes []*ProgressRecord, merge func(local, remote *ProgressRecord) *ProgressRecord) error

	// === Tracker backup slot ===
	SaveTrackerBackup(backup TrackerBackup) error
	LoadTrackerBackup() (TrackerBackup, bool)
	ClearTrackerBackup() error

	// === Lifecycle ===
	Close() error
}

// SyncAPI is the remote side of progress synchronization.
type SyncAPI interface {
	// UploadProgress sends local deltas as one batch.
	// Returns counts of entries the server synced and rejected.
	UploadProgress(ctx context.Context, records []*ProgressRecord) (synced, failed int, err error)

	// FetchHistory downloads the remote record set, enriched with novel
	// metadata. Entries without a usable chapter identifier are excluded.
	FetchHistory(ctx context.Context, limit, offset int) ([]*ProgressRecord, error)

	// DeleteProgress removes the remote record for a novel. Best-effort.
	DeleteProgress(ctx context.Context, novelID string) error
}

// ChapterFetcher retrieves chapter content for caching/prefetch.
type ChapterFetcher func(ctx context.Context, chapterID string) (*ChapterContent, error)
