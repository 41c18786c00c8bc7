package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"puzzle-mint/internal/domain"
	"puzzle-mint/internal/observability"
	"puzzle-mint/internal/storage"
)

// MintRecordStore implements storage.MintRecordStore using PostgreSQL.
type MintRecordStore struct {
	pool *Pool
}

// NewMintRecordStore creates a new MintRecordStore.
func NewMintRecordStore(pool *Pool) *MintRecordStore {
	return &MintRecordStore{pool: pool}
}

// Compile-time interface check.
var _ storage.MintRecordStore = (*MintRecordStore)(nil)

const mintRecordColumns = `
	series_id, puzzle_id, name, symbol, metadata_uri, image_uri,
	token_address, signature, attempts, minted_at, created_at
`

// Insert adds a new record. Returns ErrDuplicateKey if series_id or token_address exists.
func (s *MintRecordStore) Insert(ctx context.Context, r *domain.MintRecord) (err error) {
	if r == nil || r.SeriesID == "" || r.TokenAddress == "" {
		return storage.ErrInvalidInput
	}
	defer observeQuery("insert_mint_record", time.Now(), &err)

	query := `
		INSERT INTO mint_records (
			series_id, puzzle_id, name, symbol, metadata_uri, image_uri,
			token_address, signature, attempts, minted_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err = s.pool.Exec(ctx, query,
		r.SeriesID,
		r.PuzzleID,
		r.Name,
		r.Symbol,
		r.MetadataURI,
		r.ImageURI,
		r.TokenAddress,
		r.Signature,
		r.Attempts,
		r.MintedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert mint record: %w", err)
	}
	return nil
}

// GetBySeriesID retrieves a record by series ID. Returns ErrNotFound if not exists.
func (s *MintRecordStore) GetBySeriesID(ctx context.Context, seriesID string) (_ *domain.MintRecord, err error) {
	defer observeQuery("get_mint_record", time.Now(), &err)

	query := `SELECT ` + mintRecordColumns + ` FROM mint_records WHERE series_id = $1`

	r, err := scanMintRecord(s.pool.QueryRow(ctx, query, seriesID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get mint record by series id: %w", err)
	}
	return r, nil
}

// GetByTokenAddress retrieves a record by token address. Returns ErrNotFound if not exists.
func (s *MintRecordStore) GetByTokenAddress(ctx context.Context, tokenAddress string) (_ *domain.MintRecord, err error) {
	defer observeQuery("get_mint_record", time.Now(), &err)

	query := `SELECT ` + mintRecordColumns + ` FROM mint_records WHERE token_address = $1`

	r, err := scanMintRecord(s.pool.QueryRow(ctx, query, tokenAddress))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get mint record by token address: %w", err)
	}
	return r, nil
}

// GetByPuzzleID retrieves all records for a puzzle, ordered by minted_at ASC.
func (s *MintRecordStore) GetByPuzzleID(ctx context.Context, puzzleID int) (_ []*domain.MintRecord, err error) {
	defer observeQuery("list_mint_records", time.Now(), &err)

	query := `
		SELECT ` + mintRecordColumns + `
		FROM mint_records
		WHERE puzzle_id = $1
		ORDER BY minted_at ASC, series_id ASC
	`

	rows, err := s.pool.Query(ctx, query, puzzleID)
	if err != nil {
		return nil, fmt.Errorf("query mint records by puzzle: %w", err)
	}
	defer rows.Close()

	return scanMintRecords(rows)
}

// List retrieves the most recent records, ordered by minted_at DESC.
func (s *MintRecordStore) List(ctx context.Context, limit int) (_ []*domain.MintRecord, err error) {
	defer observeQuery("list_mint_records", time.Now(), &err)

	query := `
		SELECT ` + mintRecordColumns + `
		FROM mint_records
		ORDER BY minted_at DESC, series_id ASC
	`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query mint records: %w", err)
	}
	defer rows.Close()

	return scanMintRecords(rows)
}

// scanMintRecord scans a single row into MintRecord.
func scanMintRecord(row pgx.Row) (*domain.MintRecord, error) {
	var r domain.MintRecord

	err := row.Scan(
		&r.SeriesID,
		&r.PuzzleID,
		&r.Name,
		&r.Symbol,
		&r.MetadataURI,
		&r.ImageURI,
		&r.TokenAddress,
		&r.Signature,
		&r.Attempts,
		&r.MintedAt,
		&r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &r, nil
}

func scanMintRecords(rows pgx.Rows) ([]*domain.MintRecord, error) {
	var records []*domain.MintRecord
	for rows.Next() {
		r, err := scanMintRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan mint record: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mint records: %w", err)
	}
	return records, nil
}

func observeQuery(operation string, start time.Time, errp *error) {
	var err error
	if errp != nil {
		err = *errp
	}
	observability.RecordDBQuery("postgres", operation, time.Since(start).Seconds(), err)
}
