package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/calder/lectio/internal/domain"
)

// Bucket names
var (
	bucketProgress = []byte("progress")
	bucketTracker  = []byte("tracker")
)

const trackerBackupKey = "backup"

// ProgressStore implements domain.ProgressStore using BoltDB with an
// in-memory cache for hot-path reads (promoted on access).
type ProgressStore struct {
	db *bolt.DB
	mu sync.RWMutex // Protects memory cache

	// updateMu serializes read-modify-write cycles so a tracker flush and a
	// sync merge on the same novel cannot interleave a partial write.
	updateMu sync.Mutex

	cache map[string][]byte
}

// NewProgressStore opens (or creates) the progress database under dataDir.
// An empty dataDir yields a memory-only store (no persistence).
func NewProgressStore(dataDir string) (*ProgressStore, error) {
	if dataDir == "" {
		return &ProgressStore{cache: make(map[string][]byte)}, nil
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, err
	}

	dbPath := filepath.Join(dataDir, "lectio.db")
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketProgress, bucketTracker} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &ProgressStore{db: db, cache: make(map[string][]byte)}, nil
}

func (s *ProgressStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// === Generic helpers ===

func (s *ProgressStore) get(bucket []byte, key string, dest interface{}) bool {
	cacheKey := string(bucket) + ":" + key

	// Check memory cache first
	s.mu.RLock()
	if data, ok := s.cache[cacheKey]; ok {
		s.mu.RUnlock()
		return json.Unmarshal(data, dest) == nil
	}
	s.mu.RUnlock()

	if s.db == nil {
		return false
	}

	var data []byte
	s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(key)); v != nil {
			data = make([]byte, len(v))
			copy(data, v)
		}
		return nil
	})

	if data == nil {
		return false
	}

	// Promote to memory cache
	s.mu.Lock()
	s.cache[cacheKey] = data
	s.mu.Unlock()

	return json.Unmarshal(data, dest) == nil
}

func (s *ProgressStore) set(bucket []byte, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	cacheKey := string(bucket) + ":" + key

	s.mu.Lock()
	s.cache[cacheKey] = data
	s.mu.Unlock()

	if s.db == nil {
		return nil // Memory-only mode
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		return b.Put([]byte(key), data)
	})
}

func (s *ProgressStore) delete(bucket []byte, key string) error {
	cacheKey := string(bucket) + ":" + key

	s.mu.Lock()
	delete(s.cache, cacheKey)
	s.mu.Unlock()

	if s.db == nil {
		return nil
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b != nil {
			return b.Delete([]byte(key))
		}
		return nil
	})
}

// === Records ===

func (s *ProgressStore) Get(novelID string) (*domain.ProgressRecord, bool) {
	var record domain.ProgressRecord
	if !s.get(bucketProgress, novelID, &record) {
		return nil, false
	}
	return &record, true
}

func (s *ProgressStore) Put(record *domain.ProgressRecord) error {
	return s.set(bucketProgress, record.NovelID, record)
}

func (s *ProgressStore) Delete(novelID string) error {
	return s.delete(bucketProgress, novelID)
}

// List returns all progress records ordered by novel id
func (s *ProgressStore) List() ([]*domain.ProgressRecord, error) {
	var records []*domain.ProgressRecord

	if s.db == nil {
		// Memory-only mode: scan the cache
		prefix := string(bucketProgress) + ":"
		s.mu.RLock()
		for k, data := range s.cache {
			if !strings.HasPrefix(k, prefix) {
				continue
			}
			var record domain.ProgressRecord
			if err := json.Unmarshal(data, &record); err == nil {
				records = append(records, &record)
			}
		}
		s.mu.RUnlock()
	} else {
		err := s.db.View(func(tx *bolt.Tx) error {
			b := tx.Bucket(bucketProgress)
			if b == nil {
				return nil
			}
			return b.ForEach(func(k, v []byte) error {
				var record domain.ProgressRecord
				if err := json.Unmarshal(v, &record); err != nil {
					return fmt.Errorf("corrupt record %q: %w", k, err)
				}
				records = append(records, &record)
				return nil
			})
		})
		if err != nil {
			return nil, err
		}
	}

	sort.Slice(records, func(i, j int) bool { return records[i].NovelID < records[j].NovelID })
	return records, nil
}

// PutAll persists records in a single transaction so a sync merge commits
// atomically. Serialized against Update.
func (s *ProgressStore) PutAll(records []*domain.ProgressRecord) error {
	s.updateMu.Lock()
	defer s.updateMu.Unlock()
	return s.putAll(records)
}

func (s *ProgressStore) putAll(records []*domain.ProgressRecord) error {
	encoded := make(map[string][]byte, len(records))
	for _, record := range records {
		data, err := json.Marshal(record)
		if err != nil {
			return err
		}
		encoded[record.NovelID] = data
	}

	s.mu.Lock()
	for novelID, data := range encoded {
		s.cache[string(bucketProgress)+":"+novelID] = data
	}
	s.mu.Unlock()

	if s.db == nil {
		return nil
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketProgress)
		for novelID, data := range encoded {
			if err := b.Put([]byte(novelID), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// Update applies fn to the record for novelID under the store's write
// lock, creating the record first if absent.
func (s *ProgressStore) Update(novelID string, fn func(*domain.ProgressRecord)) error {
	s.updateMu.Lock()
	defer s.updateMu.Unlock()

	record, ok := s.Get(novelID)
	if !ok {
		record = &domain.ProgressRecord{NovelID: novelID}
	}
	fn(record)
	return s.Put(record)
}

// Reconcile merges remote records into local storage: each remote is
// paired with its current local counterpart, passed through merge, and the
// results committed in one transaction. The whole read-merge-commit cycle
// runs inside the same critical section Update uses, so a concurrent
// tracker flush cannot slip between the read and the commit and write back
// a stale snapshot.
func (s *ProgressStore) Reconcile(remotes []*domain.ProgressRecord, merge func(local, remote *domain.ProgressRecord) *domain.ProgressRecord) error {
	s.updateMu.Lock()
	defer s.updateMu.Unlock()

	merged := make([]*domain.ProgressRecord, 0, len(remotes))
	for _, remote := range remotes {
		local, _ := s.Get(remote.NovelID)
		merged = append(merged, merge(local, remote))
	}
	return s.putAll(merged)
}

// === Tracker backup slot ===

func (s *ProgressStore) SaveTrackerBackup(backup domain.TrackerBackup) error {
	return s.set(bucketTracker, trackerBackupKey, backup)
}

func (s *ProgressStore) LoadTrackerBackup() (domain.TrackerBackup, bool) {
	var backup domain.TrackerBackup
	if !s.get(bucketTracker, trackerBackupKey, &backup) {
		return domain.TrackerBackup{}, false
	}
	if backup.NovelID == "" && backup.UnflushedMs == 0 {
		return domain.TrackerBackup{}, false
	}
	return backup, true
}

func (s *ProgressStore) ClearTrackerBackup() error {
	return s.delete(bucketTracker, trackerBackupKey)
}
