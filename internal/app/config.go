// Package app wires the minting components from flags and environment.
package app

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"puzzle-mint/internal/domain"
	"puzzle-mint/internal/mint"
)

// Config holds settings shared by the commands.
type Config struct {
	RPCEndpoint    string
	WSEndpoint     string
	UploadEndpoint string
	KeypairPath    string
	PostgresDSN    string
	ClickhouseDSN  string
	UseMemory      bool
	CatalogPath    string
	ImageDir       string

	Commitment     string
	MaxAttempts    int
	Backoff        time.Duration
	ConfirmTimeout time.Duration
	SkipPreflight  bool
}

// RegisterFlags binds Config fields to fs with environment variables as defaults.
func RegisterFlags(fs *flag.FlagSet) *Config {
	cfg := &Config{}
	fs.StringVar(&cfg.RPCEndpoint, "rpc-endpoint", os.Getenv("SOLANA_RPC_ENDPOINT"), "Solana RPC HTTP endpoint")
	fs.StringVar(&cfg.WSEndpoint, "ws-endpoint", os.Getenv("SOLANA_WS_ENDPOINT"), "Solana WebSocket endpoint (optional, enables signature subscriptions)")
	fs.StringVar(&cfg.UploadEndpoint, "upload-endpoint", os.Getenv("UPLOAD_ENDPOINT"), "IPFS upload endpoint URL")
	fs.StringVar(&cfg.KeypairPath, "keypair", os.Getenv("KEYPAIR_PATH"), "Path to solana-keygen keypair JSON")
	fs.StringVar(&cfg.PostgresDSN, "postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	fs.StringVar(&cfg.ClickhouseDSN, "clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string")
	fs.BoolVar(&cfg.UseMemory, "use-memory", envBool("USE_MEMORY", false), "Use in-memory storage instead of PostgreSQL/ClickHouse")
	fs.StringVar(&cfg.CatalogPath, "catalog", os.Getenv("CATALOG_PATH"), "Puzzle catalog YAML (default: built-in catalog)")
	fs.StringVar(&cfg.ImageDir, "image-dir", envString("IMAGE_DIR", "."), "Base directory for images of the built-in catalog")
	fs.StringVar(&cfg.Commitment, "commitment", envString("COMMITMENT", string(domain.CommitmentConfirmed)), "Commitment level (processed, confirmed, finalized)")
	fs.IntVar(&cfg.MaxAttempts, "max-attempts", envInt("MAX_ATTEMPTS", mint.DefaultMaxAttempts), "Maximum mint attempts per series")
	fs.DurationVar(&cfg.Backoff, "backoff", envDuration("BACKOFF", mint.DefaultBackoff), "Wait between attempts")
	fs.DurationVar(&cfg.ConfirmTimeout, "confirm-timeout", envDuration("CONFIRM_TIMEOUT", mint.DefaultConfirmTimeout), "Per-attempt confirmation deadline")
	fs.BoolVar(&cfg.SkipPreflight, "skip-preflight", envBool("SKIP_PREFLIGHT", false), "Skip preflight simulation on send")
	return cfg
}

// Validate checks required settings.
func (c *Config) Validate() error {
	if c.RPCEndpoint == "" {
		return fmt.Errorf("--rpc-endpoint is required")
	}
	if c.UploadEndpoint == "" {
		return fmt.Errorf("--upload-endpoint is required")
	}
	if c.KeypairPath == "" {
		return fmt.Errorf("--keypair is required")
	}
	if !domain.Commitment(c.Commitment).IsValid() {
		return fmt.Errorf("invalid --commitment %q", c.Commitment)
	}
	if !c.UseMemory && (c.PostgresDSN == "" || c.ClickhouseDSN == "") {
		return fmt.Errorf("--postgres-dsn and --clickhouse-dsn are required (use --use-memory for in-memory storage)")
	}
	return nil
}

// Policy returns the retry policy described by the config.
func (c *Config) Policy() mint.Policy {
	return mint.Policy{
		MaxAttempts:    c.MaxAttempts,
		Backoff:        c.Backoff,
		ConfirmTimeout: c.ConfirmTimeout,
		Commitment:     domain.Commitment(c.Commitment),
	}
}

// LoadEnvFile loads environment variables from path if it exists.
// Variables already set in the environment are not overridden.
func LoadEnvFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return // File doesn't exist, use system env vars
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.Trim(strings.TrimSpace(parts[1]), `"`)

		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return def
}

func envBool(key string, def bool) bool {
	if b, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return b
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return d
	}
	return def
}
