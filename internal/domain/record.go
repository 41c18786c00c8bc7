package domain

// MintRecord is a successfully minted token.
// Corresponds to mint_records table in PostgreSQL.
type MintRecord struct {
	SeriesID     string // PK, one per Mint call
	PuzzleID     *int   // catalog entry (nullable)
	Name         string
	Symbol       string
	MetadataURI  string
	ImageURI     string
	TokenAddress string
	Signature    string
	Attempts     int
	MintedAt     int64 // ms
	CreatedAt    int64 // record creation timestamp (ms)
}

// SeriesOutcome classifies how a mint series ended.
type SeriesOutcome string

const (
	SeriesSucceeded    SeriesOutcome = "SUCCEEDED"
	SeriesFatal        SeriesOutcome = "FATAL"
	SeriesExhausted    SeriesOutcome = "EXHAUSTED"
	SeriesUploadFailed SeriesOutcome = "UPLOAD_FAILED"
)

// SeriesStats is an aggregate row per mint series.
// Corresponds to mint_series_stats table in ClickHouse.
type SeriesStats struct {
	SeriesID   string
	Outcome    SeriesOutcome
	ErrorClass string // empty on success
	Attempts   int
	DurationMs int64
	Commitment Commitment
	FinishedAt int64 // ms
}
