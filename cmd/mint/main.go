// Package main mints catalog puzzles as NFTs.
//
// Usage:
//
//	mint --puzzle 1     mint a single puzzle
//	mint --all          mint every catalog puzzle concurrently
//	mint --list         print the catalog
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"puzzle-mint/internal/app"
	"puzzle-mint/internal/domain"
	"puzzle-mint/internal/mint"
)

func main() {
	os.Exit(run())
}

// run holds main's body so deferred cleanup runs before the process exits.
func run() int {
	// Load .env file if exists
	app.LoadEnvFile(".env")

	cfg := app.RegisterFlags(flag.CommandLine)
	puzzleID := flag.Int("puzzle", 0, "Catalog puzzle ID to mint")
	all := flag.Bool("all", false, "Mint every puzzle in the catalog")
	list := flag.Bool("list", false, "List catalog puzzles and exit")
	concurrency := flag.Int("concurrency", 2, "Concurrent mints with --all")

	flag.Parse()

	logger := log.New(os.Stdout, "[mint] ", log.LstdFlags|log.Lshortfile)

	if !*list && !*all && *puzzleID == 0 {
		logger.Println("one of --puzzle, --all or --list is required")
		return 2
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Printf("Failed to initialize: %v", err)
		return 1
	}
	defer a.Close()

	if *list {
		for _, p := range a.Catalog.Puzzles {
			fmt.Printf("%d\t%s\t%s\t%d moves\n", p.ID, p.Name, p.Difficulty, p.Moves)
		}
		return 0
	}

	puzzles := a.Catalog.Puzzles
	if !*all {
		p, err := a.Catalog.Get(*puzzleID)
		if err != nil {
			logger.Printf("%v", err)
			return 1
		}
		puzzles = []domain.Puzzle{p}
	}

	err = mintAll(ctx, puzzles, *concurrency, func(ctx context.Context, p domain.Puzzle) error {
		return mintOne(ctx, a, p, logger)
	})
	if err != nil {
		logger.Printf("Minting finished with errors: %v", err)
		return 1
	}
	logger.Println("Minting complete")
	return 0
}

// mintAll runs mintFn over puzzles with at most limit in flight. One failure
// does not stop the others; all failures are returned together.
func mintAll(ctx context.Context, puzzles []domain.Puzzle, limit int, mintFn func(context.Context, domain.Puzzle) error) error {
	if limit <= 0 {
		limit = 1
	}

	var g errgroup.Group
	g.SetLimit(limit)

	errs := make([]error, len(puzzles))
	for i, p := range puzzles {
		g.Go(func() error {
			errs[i] = mintFn(ctx, p)
			return nil
		})
	}
	g.Wait()

	var result *multierror.Error
	for _, err := range errs {
		if err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func mintOne(ctx context.Context, a *app.App, p domain.Puzzle, logger *log.Logger) error {
	in, err := a.Catalog.MintInput(p)
	if err != nil {
		return err
	}

	outcome, err := a.Minter.Mint(ctx, in, progressLogger(p.ID, logger))
	if err != nil {
		return fmt.Errorf("puzzle %d: %w", p.ID, err)
	}

	logger.Printf("puzzle %d minted: token %s signature %s", p.ID, outcome.TokenAddress, outcome.Signature)
	return nil
}

func progressLogger(id int, logger *log.Logger) mint.ProgressFunc {
	return func(pr mint.Progress) {
		switch pr.Stage {
		case mint.StageUploadComplete:
			logger.Printf("puzzle %d: image uploaded %s", id, pr.Locator)
		case mint.StageMetadataComplete:
			logger.Printf("puzzle %d: metadata uploaded %s", id, pr.Locator)
		case mint.StageMintComplete:
			logger.Printf("puzzle %d: series %s complete", id, pr.SeriesID)
		case mint.StageFailed:
			logger.Printf("puzzle %d: %s (%v)", id, pr.Message, pr.Err)
		}
	}
}
