package storage

import (
	"context"

	"github.com/atim-assistant/atim/internal/storage/sqlite"
	"github.com/atim-assistant/atim/internal/types"
)

// Ledger is the durable record of published issues. It is the only state
// shared between requests, so writes must be race-free across processes.
type Ledger interface {
	// Lookup returns the record for key, or nil if none exists.
	Lookup(ctx context.Context, repository string, key types.DedupKey) (*types.PublishedIssue, error)

	// RecordPublished stores rec unless a record with the same key already
	// exists. It returns the stored record and whether rec was the one
	// inserted; when another writer got there first, its record is returned.
	RecordPublished(ctx context.Context, rec *types.PublishedIssue) (*types.PublishedIssue, bool, error)

	// ListPublished returns the newest records first. limit <= 0 returns all.
	ListPublished(ctx context.Context, repository string, limit int) ([]*types.PublishedIssue, error)

	Close() error
}

// Config holds database configuration
type Config struct {
	// Path is the SQLite database file path
	// Default: ".atim/atim.db"
	// Special value ":memory:" creates an in-memory database (useful for tests)
	Path string
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Path: ".atim/atim.db",
	}
}

// NewLedger opens the SQLite ledger.
func NewLedger(ctx context.Context, cfg *Config) (Ledger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Path == "" {
		cfg.Path = DefaultConfig().Path
	}
	return sqlite.New(ctx, cfg.Path)
}
