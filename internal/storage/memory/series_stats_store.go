package memory

import (
	"context"
	"sort"
	"sync"

	"puzzle-mint/internal/domain"
	"puzzle-mint/internal/storage"
)

// SeriesStatsStore is an in-memory implementation of storage.SeriesStatsStore.
type SeriesStatsStore struct {
	mu   sync.RWMutex
	data map[string]*domain.SeriesStats // keyed by series_id
}

// NewSeriesStatsStore creates a new in-memory series stats store.
func NewSeriesStatsStore() *SeriesStatsStore {
	return &SeriesStatsStore{
		data: make(map[string]*domain.SeriesStats),
	}
}

// Insert adds a new row. Returns ErrDuplicateKey if series_id exists.
func (s *SeriesStatsStore) Insert(_ context.Context, st *domain.SeriesStats) error {
	if st == nil || st.SeriesID == "" || st.Outcome == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[st.SeriesID]; exists {
		return storage.ErrDuplicateKey
	}

	statsCopy := *st
	s.data[st.SeriesID] = &statsCopy
	return nil
}

// GetBySeriesID retrieves a row by series ID. Returns ErrNotFound if not exists.
func (s *SeriesStatsStore) GetBySeriesID(_ context.Context, seriesID string) (*domain.SeriesStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, exists := s.data[seriesID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	statsCopy := *st
	return &statsCopy, nil
}

// GetByTimeRange retrieves rows finished within [start, end] (inclusive), ordered by finished_at ASC.
func (s *SeriesStatsStore) GetByTimeRange(_ context.Context, start, end int64) ([]*domain.SeriesStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.SeriesStats
	for _, st := range s.data {
		if st.FinishedAt >= start && st.FinishedAt <= end {
			statsCopy := *st
			result = append(result, &statsCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].FinishedAt != result[j].FinishedAt {
			return result[i].FinishedAt < result[j].FinishedAt
		}
		return result[i].SeriesID < result[j].SeriesID
	})
	return result, nil
}

// CountByOutcome returns the number of series per outcome.
func (s *SeriesStatsStore) CountByOutcome(_ context.Context) (map[domain.SeriesOutcome]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[domain.SeriesOutcome]int)
	for _, st := range s.data {
		counts[st.Outcome]++
	}
	return counts, nil
}

var _ storage.SeriesStatsStore = (*SeriesStatsStore)(nil)
