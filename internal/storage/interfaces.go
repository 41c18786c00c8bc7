package storage

import (
	"context"

	"puzzle-mint/internal/domain"
)

// MintRecordStore provides access to mint_records storage.
// Only successful series are recorded; per-attempt data is never persisted.
type MintRecordStore interface {
	// Insert adds a new record. Returns ErrDuplicateKey if series_id or
	// token_address exists.
	Insert(ctx context.Context, r *domain.MintRecord) error

	// GetBySeriesID retrieves a record by series ID. Returns ErrNotFound if not exists.
	GetBySeriesID(ctx context.Context, seriesID string) (*domain.MintRecord, error)

	// GetByTokenAddress retrieves a record by token address. Returns ErrNotFound if not exists.
	GetByTokenAddress(ctx context.Context, tokenAddress string) (*domain.MintRecord, error)

	// GetByPuzzleID retrieves all records for a puzzle, ordered by minted_at ASC.
	GetByPuzzleID(ctx context.Context, puzzleID int) ([]*domain.MintRecord, error)

	// List retrieves the most recent records, ordered by minted_at DESC.
	// limit <= 0 returns all records.
	List(ctx context.Context, limit int) ([]*domain.MintRecord, error)
}

// SeriesStatsStore provides access to mint_series_stats storage.
type SeriesStatsStore interface {
	// Insert adds a new row. Returns ErrDuplicateKey if series_id exists.
	Insert(ctx context.Context, s *domain.SeriesStats) error

	// GetBySeriesID retrieves a row by series ID. Returns ErrNotFound if not exists.
	GetBySeriesID(ctx context.Context, seriesID string) (*domain.SeriesStats, error)

	// GetByTimeRange retrieves rows finished within [start, end] (inclusive), ordered by finished_at ASC.
	GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.SeriesStats, error)

	// CountByOutcome returns the number of series per outcome.
	CountByOutcome(ctx context.Context) (map[domain.SeriesOutcome]int, error)
}
