package clickhouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"puzzle-mint/internal/domain"
	"puzzle-mint/internal/observability"
	"puzzle-mint/internal/storage"
)

// SeriesStatsStore implements storage.SeriesStatsStore using ClickHouse.
type SeriesStatsStore struct {
	conn *Conn
}

// NewSeriesStatsStore creates a new SeriesStatsStore.
func NewSeriesStatsStore(conn *Conn) *SeriesStatsStore {
	return &SeriesStatsStore{conn: conn}
}

// Compile-time interface check.
var _ storage.SeriesStatsStore = (*SeriesStatsStore)(nil)

const seriesStatsColumns = `
	series_id, outcome, error_class, attempts, duration_ms, commitment, finished_at
`

// Insert adds a new row. Returns ErrDuplicateKey if series_id exists.
func (s *SeriesStatsStore) Insert(ctx context.Context, st *domain.SeriesStats) (err error) {
	if st == nil || st.SeriesID == "" || st.Outcome == "" {
		return storage.ErrInvalidInput
	}
	defer observeQuery("insert_series_stats", time.Now(), &err)

	// ReplacingMergeTree would silently replace; keep append-only semantics.
	exists, err := s.exists(ctx, st.SeriesID)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	query := `INSERT INTO mint_series_stats (` + seriesStatsColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?)`

	err = s.conn.Exec(ctx, query,
		st.SeriesID,
		string(st.Outcome),
		st.ErrorClass,
		uint8(st.Attempts),
		st.DurationMs,
		string(st.Commitment),
		st.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert series stats: %w", err)
	}
	return nil
}

// GetBySeriesID retrieves a row by series ID. Returns ErrNotFound if not exists.
func (s *SeriesStatsStore) GetBySeriesID(ctx context.Context, seriesID string) (_ *domain.SeriesStats, err error) {
	defer observeQuery("get_series_stats", time.Now(), &err)

	query := `
		SELECT ` + seriesStatsColumns + `
		FROM mint_series_stats FINAL
		WHERE series_id = ?
		LIMIT 1
	`

	st, err := scanSeriesStats(s.conn.QueryRow(ctx, query, seriesID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get series stats: %w", err)
	}
	return st, nil
}

// GetByTimeRange retrieves rows finished within [start, end] (inclusive), ordered by finished_at ASC.
func (s *SeriesStatsStore) GetByTimeRange(ctx context.Context, start, end int64) (_ []*domain.SeriesStats, err error) {
	defer observeQuery("range_series_stats", time.Now(), &err)

	query := `
		SELECT ` + seriesStatsColumns + `
		FROM mint_series_stats FINAL
		WHERE finished_at >= ? AND finished_at <= ?
		ORDER BY finished_at ASC, series_id ASC
	`

	rows, err := s.conn.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	var result []*domain.SeriesStats
	for rows.Next() {
		st, err := scanSeriesStats(rows)
		if err != nil {
			return nil, fmt.Errorf("scan series stats row: %w", err)
		}
		result = append(result, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate series stats rows: %w", err)
	}
	return result, nil
}

// CountByOutcome returns the number of series per outcome.
func (s *SeriesStatsStore) CountByOutcome(ctx context.Context) (_ map[domain.SeriesOutcome]int, err error) {
	defer observeQuery("count_series_stats", time.Now(), &err)

	query := `
		SELECT outcome, count() AS n
		FROM mint_series_stats FINAL
		GROUP BY outcome
	`

	rows, err := s.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query outcome counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.SeriesOutcome]int)
	for rows.Next() {
		var (
			outcome string
			n       uint64
		)
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("scan outcome count: %w", err)
		}
		counts[domain.SeriesOutcome(outcome)] = int(n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outcome counts: %w", err)
	}
	return counts, nil
}

// exists checks if a row with the given series ID exists.
func (s *SeriesStatsStore) exists(ctx context.Context, seriesID string) (bool, error) {
	query := `SELECT count(*) FROM mint_series_stats FINAL WHERE series_id = ?`

	var count uint64
	if err := s.conn.QueryRow(ctx, query, seriesID).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// rowScanner is satisfied by driver.Row and driver.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSeriesStats(row rowScanner) (*domain.SeriesStats, error) {
	var (
		st         domain.SeriesStats
		outcome    string
		attempts   uint8
		commitment string
	)
	err := row.Scan(
		&st.SeriesID,
		&outcome,
		&st.ErrorClass,
		&attempts,
		&st.DurationMs,
		&commitment,
		&st.FinishedAt,
	)
	if err != nil {
		return nil, err
	}
	st.Outcome = domain.SeriesOutcome(outcome)
	st.Attempts = int(attempts)
	st.Commitment = domain.Commitment(commitment)
	return &st, nil
}

func observeQuery(operation string, start time.Time, errp *error) {
	var err error
	if errp != nil {
		err = *errp
	}
	observability.RecordDBQuery("clickhouse", operation, time.Since(start).Seconds(), err)
}
