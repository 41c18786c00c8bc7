package app

import (
	"context"
	"fmt"
	"log"

	"puzzle-mint/internal/catalog"
	"puzzle-mint/internal/mint"
	"puzzle-mint/internal/solana"
	"puzzle-mint/internal/storage"
	chstore "puzzle-mint/internal/storage/clickhouse"
	"puzzle-mint/internal/storage/memory"
	"puzzle-mint/internal/storage/migrations"
	pgstore "puzzle-mint/internal/storage/postgres"
	"puzzle-mint/internal/upload"
	"puzzle-mint/internal/wallet"
)

// App holds the wired components.
type App struct {
	Catalog    *catalog.Catalog
	Minter     *mint.Minter
	Signer     *wallet.KeypairSigner
	MintStore  storage.MintRecordStore
	StatsStore storage.SeriesStatsStore

	closers []func()
}

// Close releases connections in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// New builds the application from cfg. The caller must Close it.
func New(ctx context.Context, cfg *Config, logger *log.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &App{}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	var err error
	if cfg.CatalogPath != "" {
		a.Catalog, err = catalog.Load(cfg.CatalogPath)
	} else {
		a.Catalog, err = catalog.Default(cfg.ImageDir)
	}
	if err != nil {
		return nil, err
	}

	a.Signer, err = wallet.LoadKeypairFile(cfg.KeypairPath)
	if err != nil {
		return nil, fmt.Errorf("load keypair: %w", err)
	}
	logger.Printf("Payer: %s", a.Signer.Identity())

	if err := a.openStores(ctx, cfg, logger); err != nil {
		return nil, err
	}

	rpc := solana.NewHTTPClient(cfg.RPCEndpoint)

	// A nil *WSClientImpl must not reach the poller as a non-nil interface.
	var watcher solana.WSClient
	if cfg.WSEndpoint != "" {
		wsCfg := solana.DefaultWSConfig()
		wsCfg.Logger = logger
		ws, err := solana.NewWSClient(ctx, cfg.WSEndpoint, &wsCfg)
		if err != nil {
			return nil, fmt.Errorf("connect websocket: %w", err)
		}
		a.closers = append(a.closers, func() { ws.Close() })
		watcher = ws
	}

	orchestrator := mint.NewDefaultOrchestrator(mint.DefaultOrchestratorOptions{
		RPC:           rpc,
		Watcher:       watcher,
		Policy:        cfg.Policy(),
		SkipPreflight: cfg.SkipPreflight,
		Logger:        logger,
	})

	a.Minter = mint.NewMinter(mint.MinterOptions{
		Uploader:     upload.NewHTTPUploader(cfg.UploadEndpoint),
		Orchestrator: orchestrator,
		Signer:       a.Signer,
		MintStore:    a.MintStore,
		StatsStore:   a.StatsStore,
		Logger:       logger,
	})

	ok = true
	return a, nil
}

// openStores connects PostgreSQL and ClickHouse and applies migrations, or
// falls back to in-memory stores.
func (a *App) openStores(ctx context.Context, cfg *Config, logger *log.Logger) error {
	if cfg.UseMemory {
		logger.Println("Using in-memory storage")
		a.MintStore = memory.NewMintRecordStore()
		a.StatsStore = memory.NewSeriesStatsStore()
		return nil
	}

	pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, pool.Close)

	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		return fmt.Errorf("postgres migrations: %w", err)
	}

	chConn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN)
	if err != nil {
		return fmt.Errorf("clickhouse migrations: %w", err)
	}
	a.closers = append(a.closers, func() { chConn.Close() })

	a.MintStore = pgstore.NewMintRecordStore(pool)
	a.StatsStore = chstore.NewSeriesStatsStore(chConn)
	return nil
}
