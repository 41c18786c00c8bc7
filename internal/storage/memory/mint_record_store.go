package memory

import (
	"context"
	"sort"
	"sync"

	"puzzle-mint/internal/domain"
	"puzzle-mint/internal/storage"
)

// MintRecordStore is an in-memory implementation of storage.MintRecordStore.
type MintRecordStore struct {
	mu       sync.RWMutex
	bySeries map[string]*domain.MintRecord // keyed by series_id
	byToken  map[string]*domain.MintRecord // keyed by token_address (unique)
}

// NewMintRecordStore creates a new in-memory mint record store.
func NewMintRecordStore() *MintRecordStore {
	return &MintRecordStore{
		bySeries: make(map[string]*domain.MintRecord),
		byToken:  make(map[string]*domain.MintRecord),
	}
}

// Insert adds a new record. Returns ErrDuplicateKey if series_id or token_address exists.
func (s *MintRecordStore) Insert(_ context.Context, r *domain.MintRecord) error {
	if r == nil || r.SeriesID == "" || r.TokenAddress == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.bySeries[r.SeriesID]; exists {
		return storage.ErrDuplicateKey
	}
	if _, exists := s.byToken[r.TokenAddress]; exists {
		return storage.ErrDuplicateKey
	}

	recCopy := copyRecord(r)
	s.bySeries[r.SeriesID] = recCopy
	s.byToken[r.TokenAddress] = recCopy
	return nil
}

// GetBySeriesID retrieves a record by series ID. Returns ErrNotFound if not exists.
func (s *MintRecordStore) GetBySeriesID(_ context.Context, seriesID string) (*domain.MintRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, exists := s.bySeries[seriesID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return copyRecord(r), nil
}

// GetByTokenAddress retrieves a record by token address. Returns ErrNotFound if not exists.
func (s *MintRecordStore) GetByTokenAddress(_ context.Context, tokenAddress string) (*domain.MintRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, exists := s.byToken[tokenAddress]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return copyRecord(r), nil
}

// GetByPuzzleID retrieves all records for a puzzle, ordered by minted_at ASC.
func (s *MintRecordStore) GetByPuzzleID(_ context.Context, puzzleID int) ([]*domain.MintRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.MintRecord
	for _, r := range s.bySeries {
		if r.PuzzleID != nil && *r.PuzzleID == puzzleID {
			result = append(result, copyRecord(r))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].MintedAt != result[j].MintedAt {
			return result[i].MintedAt < result[j].MintedAt
		}
		return result[i].SeriesID < result[j].SeriesID
	})
	return result, nil
}

// List retrieves the most recent records, ordered by minted_at DESC.
func (s *MintRecordStore) List(_ context.Context, limit int) ([]*domain.MintRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.MintRecord, 0, len(s.bySeries))
	for _, r := range s.bySeries {
		result = append(result, copyRecord(r))
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].MintedAt != result[j].MintedAt {
			return result[i].MintedAt > result[j].MintedAt
		}
		return result[i].SeriesID < result[j].SeriesID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func copyRecord(r *domain.MintRecord) *domain.MintRecord {
	recCopy := *r
	if r.PuzzleID != nil {
		id := *r.PuzzleID
		recCopy.PuzzleID = &id
	}
	return &recCopy
}

var _ storage.MintRecordStore = (*MintRecordStore)(nil)
