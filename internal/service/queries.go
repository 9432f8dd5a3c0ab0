package service

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/calder/lectio/internal/domain"
	"github.com/lithammer/fuzzysearch/fuzzy"
)

// HistoryQuery answers read queries over the local progress store
type HistoryQuery struct {
	store  domain.ProgressStore
	logger *slog.Logger
}

// NewHistoryQuery creates a history query service
func NewHistoryQuery(store domain.ProgressStore, logger *slog.Logger) *HistoryQuery {
	if logger == nil {
		logger = slog.Default()
	}
	return &HistoryQuery{store: store, logger: logger}
}

// SearchByTitle performs fuzzy matching over novel titles in the local
// history, ranked best match first
func (q *HistoryQuery) SearchByTitle(query string) ([]*domain.ProgressRecord, error) {
	if query == "" {
		return nil, nil
	}

	records, err := q.store.List()
	if err != nil {
		return nil, err
	}

	titles := make([]string, len(records))
	for i, r := range records {
		titles[i] = strings.ToLower(r.NovelTitle)
	}

	matches := fuzzy.RankFindNormalizedFold(strings.ToLower(query), titles)
	sort.Sort(matches)

	results := make([]*domain.ProgressRecord, 0, len(matches))
	for _, match := range matches {
		results = append(results, records[match.OriginalIndex])
	}

	q.logger.Debug("title search", "query", query, "results", len(results))
	return results, nil
}

// RecentlyRead returns up to limit records ordered by most recent activity
func (q *HistoryQuery) RecentlyRead(limit int) ([]*domain.ProgressRecord, error) {
	records, err := q.store.List()
	if err != nil {
		return nil, err
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].LastReadDate.After(records[j].LastReadDate)
	})

	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}
