package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/steveyegge/medic/internal/storage/memory"
	"github.com/steveyegge/medic/internal/storage/postgres"
	"github.com/steveyegge/medic/internal/storage/sqlite"
	"github.com/steveyegge/medic/internal/types"
)

// AnalysisStore is the durable record store used by the diagnosis
// coordinator. Get, Update and Delete wrap types.ErrNotFound for missing ids.
type AnalysisStore interface {
	// Insert persists a new record. Inserting an existing id is an error.
	Insert(ctx context.Context, rec *types.AnalysisRecord) error
	// Update applies a status change. Transition rules are enforced by the
	// caller.
	Update(ctx context.Context, id string, upd types.StatusUpdate) error
	Get(ctx context.Context, id string) (*types.AnalysisRecord, error)
	List(ctx context.Context, filter types.HistoryFilter) ([]*types.AnalysisRecord, error)

	// FindRelated returns summaries of prior records sharing a keyword or
	// the classification, newest first, excluding excludeID
	FindRelated(ctx context.Context, keywords []string, classification types.Classification, excludeID string, limit int) ([]types.RelatedIssue, error)

	Stats(ctx context.Context, days int) (*types.Stats, error)
	Trend(ctx context.Context, days int) ([]types.TrendPoint, error)

	Delete(ctx context.Context, id string) error
	// CleanupOlderThan deletes records created before cutoff and returns
	// how many were removed
	CleanupOlderThan(ctx context.Context, cutoff time.Time) (int, error)

	Close() error
}

// Compile-time checks that the adapters implement AnalysisStore
var (
	_ AnalysisStore = (*sqlite.SQLiteStorage)(nil)
	_ AnalysisStore = (*postgres.PostgresStorage)(nil)
	_ AnalysisStore = (*memory.Store)(nil)
)

// Backend names
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Config holds database configuration
type Config struct {
	// Backend is one of sqlite, postgres, memory. Default: sqlite.
	Backend string
	// Path is the SQLite database file path.
	// Special value ":memory:" creates an in-memory database (useful for tests)
	Path     string
	Postgres *postgres.Config
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Backend: BackendSQLite,
		Path:    DefaultDBPath,
	}
}

// NewStorage opens the configured backend
func NewStorage(ctx context.Context, cfg *Config) (AnalysisStore, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	switch cfg.Backend {
	case "", BackendSQLite:
		path := cfg.Path
		if path == "" {
			path = DefaultDBPath
		}
		return sqlite.New(path)
	case BackendPostgres:
		return postgres.New(ctx, cfg.Postgres)
	case BackendMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unsupported storage backend: %q", cfg.Backend)
	}
}
