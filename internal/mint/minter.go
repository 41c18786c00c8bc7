package mint

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"puzzle-mint/internal/domain"
	"puzzle-mint/internal/observability"
	"puzzle-mint/internal/storage"
	"puzzle-mint/internal/upload"
	"puzzle-mint/internal/wallet"
)

// DefaultSymbol is used when MintInput.Symbol is empty.
const DefaultSymbol = "TSHOGI"

// Stage identifies a progress event.
type Stage string

const (
	StageUploadComplete   Stage = "UPLOAD_COMPLETE"
	StageMetadataComplete Stage = "METADATA_COMPLETE"
	StageMintComplete     Stage = "MINT_COMPLETE"
	StageFailed           Stage = "FAILED"
)

// Progress is delivered to a ProgressFunc as a mint advances.
type Progress struct {
	Stage    Stage
	Locator  string             // UploadComplete, MetadataComplete
	Outcome  domain.MintOutcome // MintComplete
	Message  string             // Failed: user-facing text
	Err      error              // Failed
	SeriesID string
}

// ProgressFunc receives progress events. It is called synchronously.
type ProgressFunc func(Progress)

// Image is the artifact picture.
type Image struct {
	Filename    string
	ContentType string
	Data        []byte
}

// MintInput describes one artifact to mint.
type MintInput struct {
	PuzzleID    *int
	Name        string
	Description string
	Symbol      string
	Image       Image
	Attributes  []domain.Attribute
}

// Validate checks required fields.
func (in MintInput) Validate() error {
	if in.Name == "" {
		return errors.New("name is required")
	}
	if len(in.Image.Data) == 0 {
		return errors.New("image is required")
	}
	return nil
}

// MinterOptions configures a Minter.
type MinterOptions struct {
	Uploader     upload.Uploader
	Orchestrator *Orchestrator
	Signer       wallet.Signer

	// MintStore records successful mints. Optional.
	MintStore storage.MintRecordStore

	// StatsStore records one row per finished series. Optional.
	StatsStore storage.SeriesStatsStore

	Logger *log.Logger
}

// Minter uploads artifacts and mints them.
type Minter struct {
	uploader     upload.Uploader
	metadata     *upload.MetadataBuilder
	orchestrator *Orchestrator
	signer       wallet.Signer
	mintStore    storage.MintRecordStore
	statsStore   storage.SeriesStatsStore
	logger       *log.Logger
	now          func() time.Time
}

// NewMinter creates a minter.
func NewMinter(opts MinterOptions) *Minter {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Minter{
		uploader:     opts.Uploader,
		metadata:     upload.NewMetadataBuilder(opts.Uploader),
		orchestrator: opts.Orchestrator,
		signer:       opts.Signer,
		mintStore:    opts.MintStore,
		statsStore:   opts.StatsStore,
		logger:       logger,
		now:          time.Now,
	}
}

// Mint uploads the image and metadata, then runs a mint series. It emits
// UploadComplete, MetadataComplete and MintComplete in order, or Failed
// once. progress may be nil.
func (m *Minter) Mint(ctx context.Context, in MintInput, progress ProgressFunc) (domain.MintOutcome, error) {
	if progress == nil {
		progress = func(Progress) {}
	}
	done := observability.MintStarted()
	defer done()

	started := m.now()

	fail := func(seriesID string, outcome domain.SeriesOutcome, attempts int, err error) (domain.MintOutcome, error) {
		progress(Progress{Stage: StageFailed, Message: UserMessage(err), Err: err, SeriesID: seriesID})
		m.recordStats(ctx, seriesID, outcome, attempts, started, err)
		return domain.MintOutcome{}, err
	}

	if err := in.Validate(); err != nil {
		return domain.MintOutcome{}, fmt.Errorf("invalid mint input: %w", err)
	}
	if err := wallet.CheckReady(m.signer); err != nil {
		return fail(uuid.NewString(), domain.SeriesFatal, 0, fmt.Errorf("%w: %w", ErrSignerUnavailable, err))
	}

	imageLocator, err := m.uploader.Upload(ctx, upload.Payload{
		Kind:        upload.KindFile,
		Filename:    in.Image.Filename,
		ContentType: in.Image.ContentType,
		Data:        in.Image.Data,
	})
	if err != nil {
		return fail(uuid.NewString(), domain.SeriesUploadFailed, 0, fmt.Errorf("upload image: %w", err))
	}
	progress(Progress{Stage: StageUploadComplete, Locator: imageLocator})

	metadataLocator, err := m.metadata.Build(ctx, in.Name, in.Description, imageLocator, in.Attributes)
	if err != nil {
		return fail(uuid.NewString(), domain.SeriesUploadFailed, 0, fmt.Errorf("upload metadata: %w", err))
	}
	progress(Progress{Stage: StageMetadataComplete, Locator: metadataLocator})

	symbol := in.Symbol
	if symbol == "" {
		symbol = DefaultSymbol
	}
	req := domain.NewMintRequest(metadataLocator, in.Name, symbol)

	series, err := m.orchestrator.Run(ctx, req, m.signer)
	if err != nil {
		outcome := domain.SeriesFatal
		if errors.Is(err, ErrExhausted) {
			outcome = domain.SeriesExhausted
		}
		return fail(series.ID, outcome, series.Attempts, err)
	}

	m.logger.Printf("minted %q: token %s, signature %s, %d attempt(s)", in.Name, series.Outcome.TokenAddress, series.Outcome.Signature, series.Attempts)
	m.recordMint(ctx, series, in, req, imageLocator)
	m.recordStats(ctx, series.ID, domain.SeriesSucceeded, series.Attempts, started, nil)
	progress(Progress{Stage: StageMintComplete, Outcome: series.Outcome, SeriesID: series.ID})

	return series.Outcome, nil
}

func (m *Minter) recordMint(ctx context.Context, series *Series, in MintInput, req domain.MintRequest, imageLocator string) {
	if m.mintStore == nil {
		return
	}
	rec := &domain.MintRecord{
		SeriesID:     series.ID,
		PuzzleID:     in.PuzzleID,
		Name:         req.Name,
		Symbol:       req.Symbol,
		MetadataURI:  req.LocatorURI,
		ImageURI:     imageLocator,
		TokenAddress: series.Outcome.TokenAddress,
		Signature:    series.Outcome.Signature,
		Attempts:     series.Attempts,
		MintedAt:     series.FinishedAt.UnixMilli(),
	}
	if err := m.mintStore.Insert(context.WithoutCancel(ctx), rec); err != nil {
		m.logger.Printf("WARNING: record mint %s: %v", series.ID, err)
	}
}

func (m *Minter) recordStats(ctx context.Context, seriesID string, outcome domain.SeriesOutcome, attempts int, started time.Time, err error) {
	finished := m.now()
	observability.RecordSeries(string(outcome), finished.Sub(started).Seconds())

	if m.statsStore == nil {
		return
	}
	st := &domain.SeriesStats{
		SeriesID:   seriesID,
		Outcome:    outcome,
		ErrorClass: errorClass(err),
		Attempts:   attempts,
		DurationMs: finished.Sub(started).Milliseconds(),
		Commitment: m.orchestrator.Policy().Commitment,
		FinishedAt: finished.UnixMilli(),
	}
	// The outcome is already decided; a cancelled caller must not drop the row.
	if insertErr := m.statsStore.Insert(context.WithoutCancel(ctx), st); insertErr != nil {
		m.logger.Printf("WARNING: record series stats %s: %v", seriesID, insertErr)
	}
}
