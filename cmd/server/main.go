// Package main serves the puzzle minting HTTP API:
// - GET  /health, /metrics, /status
// - GET  /puzzles
// - POST /puzzles/{id}/mint
// - GET  /mints
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"puzzle-mint/internal/app"
)

func main() {
	// Load .env file if exists
	app.LoadEnvFile(".env")

	cfg := app.RegisterFlags(flag.CommandLine)
	addr := flag.String("addr", envOr("HTTP_ADDR", ":8080"), "HTTP listen address")
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize: %v", err)
	}
	defer a.Close()

	server := &Server{
		catalog:    a.Catalog,
		minter:     a.Minter,
		mintStore:  a.MintStore,
		statsStore: a.StatsStore,
		logger:     logger,
		started:    time.Now(),
	}

	httpServer := &http.Server{
		Addr:              *addr,
		Handler:           server.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)

		// In-flight mints may need a full retry series to finish.
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer shutdownCancel()

		go func() {
			sig := <-sigCh
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		}()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Printf("HTTP shutdown: %v", err)
		}
		cancel()
	}()

	logger.Printf("Starting HTTP server on %s (%d puzzles)", *addr, len(a.Catalog.Puzzles))
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("HTTP server error: %v", err)
	}

	<-ctx.Done()
	logger.Println("Shutdown complete")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
