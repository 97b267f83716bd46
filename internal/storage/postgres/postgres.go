package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/steveyegge/medic/internal/storage/codec"
	"github.com/steveyegge/medic/internal/types"
)

// PostgresStorage implements the analysis store using PostgreSQL
type PostgresStorage struct {
	pool *pgxpool.Pool
}

// Config holds PostgreSQL connection configuration
type Config struct {
	URL             string `mapstructure:"url"` // Full connection string; overrides the fields below
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Database        string `mapstructure:"database"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"sslmode"`
	MaxConns        int32  `mapstructure:"max_conns"`
	MinConns        int32  `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	HealthCheck     time.Duration
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Host:            "localhost",
		Port:            5432,
		Database:        "medic",
		User:            "medic",
		SSLMode:         "prefer",
		MaxConns:        10,
		MinConns:        1,
		MaxConnLifetime: 1 * time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
		HealthCheck:     1 * time.Minute,
	}
}

// ConnString builds the connection string
func (c *Config) ConnString() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.Database,
		c.SSLMode,
	)
}

// New creates a PostgreSQL store with connection pooling
func New(ctx context.Context, cfg *Config) (*PostgresStorage, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.ConnString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.HealthCheck > 0 {
		poolConfig.HealthCheckPeriod = cfg.HealthCheck
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &PostgresStorage{pool: pool}, nil
}

// Close closes the connection pool
func (s *PostgresStorage) Close() error {
	s.pool.Close()
	return nil
}

// Ping verifies the database is reachable
func (s *PostgresStorage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const selectColumns = `id, error_id, message, stack, classification, severity, context::text, keywords::text,
	remediation_attempted, remediation_success, remediation_result::text, ai_enabled, ai_diagnosis::text,
	related_issues::text, related_count, recommendations::text, status, resolution,
	created_at, updated_at, resolved_at`

// Insert persists a new analysis record
func (s *PostgresStorage) Insert(ctx context.Context, rec *types.AnalysisRecord) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("invalid analysis record: %w", err)
	}
	row, err := codec.FromRecord(rec)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO error_analyses (
			id, error_id, message, stack, classification, severity, context, keywords,
			remediation_attempted, remediation_success, remediation_result, ai_enabled, ai_diagnosis,
			related_issues, related_count, recommendations, status, resolution,
			created_at, updated_at, resolved_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8::jsonb, $9, $10, $11::jsonb, $12, $13::jsonb,
			$14::jsonb, $15, $16::jsonb, $17, $18, $19, $20, $21)
	`,
		row.ID, row.ErrorID, row.Message, row.Stack, row.Classification, row.Severity,
		row.Context, row.Keywords, row.RemediationAttempted, row.RemediationSuccess,
		row.RemediationResult, row.AIEnabled, row.AIDiagnosis, row.RelatedIssues,
		row.RelatedCount, row.Recommendations, row.Status, row.Resolution,
		row.CreatedAt, row.UpdatedAt, row.ResolvedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("analysis %s already exists: %w", rec.ID, err)
		}
		return fmt.Errorf("failed to insert analysis %s: %w", rec.ID, err)
	}
	return nil
}

// Update applies a status change
func (s *PostgresStorage) Update(ctx context.Context, id string, upd types.StatusUpdate) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE error_analyses
		SET status = $1, resolution = $2, updated_at = $3, resolved_at = $4
		WHERE id = $5
	`, string(upd.Status), upd.Resolution, upd.At, codec.ResolvedAt(upd), id)
	if err != nil {
		return fmt.Errorf("failed to update analysis %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("analysis %s: %w", id, types.ErrNotFound)
	}
	return nil
}

// Get retrieves an analysis by id
func (s *PostgresStorage) Get(ctx context.Context, id string) (*types.AnalysisRecord, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM error_analyses WHERE id = $1`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("analysis %s: %w", id, types.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// List returns history matching filter, newest first
func (s *PostgresStorage) List(ctx context.Context, filter types.HistoryFilter) ([]*types.AnalysisRecord, error) {
	var where []string
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Classification != "" {
		where = append(where, "classification = "+arg(string(filter.Classification)))
	}
	if filter.Severity != "" {
		where = append(where, "severity = "+arg(string(filter.Severity)))
	}
	if filter.Status != "" {
		where = append(where, "status = "+arg(string(filter.Status)))
	}
	if filter.Search != "" {
		p := arg(codec.ContainsPattern(filter.Search))
		where = append(where, "(message ILIKE "+p+` ESCAPE '\' OR stack ILIKE `+p+` ESCAPE '\')`)
	}

	query := `SELECT ` + selectColumns + ` FROM error_analyses`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = types.DefaultHistoryLimit
	}
	query += " ORDER BY created_at DESC, id LIMIT " + arg(limit) + " OFFSET " + arg(max(filter.Offset, 0))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list analyses: %w", err)
	}
	defer rows.Close()

	var out []*types.AnalysisRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// FindRelated returns prior analyses sharing a keyword or the classification
func (s *PostgresStorage) FindRelated(ctx context.Context, keywords []string, classification types.Classification, excludeID string, limit int) ([]types.RelatedIssue, error) {
	if limit <= 0 {
		return []types.RelatedIssue{}, nil
	}
	if keywords == nil {
		keywords = []string{}
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, classification, severity, message, status, resolution, created_at
		FROM error_analyses
		WHERE id <> $1 AND (classification = $2 OR keywords ?| $3::text[])
		ORDER BY created_at DESC
		LIMIT $4
	`, excludeID, string(classification), keywords, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query related analyses: %w", err)
	}
	defer rows.Close()

	related := []types.RelatedIssue{}
	for rows.Next() {
		var ri types.RelatedIssue
		var message string
		if err := rows.Scan(&ri.ID, &ri.Classification, &ri.Severity, &message, &ri.Status, &ri.Resolution, &ri.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan related analysis: %w", err)
		}
		ri.Message = types.ErrorEvent{Message: message}.Summary()
		related = append(related, ri)
	}
	return related, rows.Err()
}

// Stats aggregates analyses created in the last days days
func (s *PostgresStorage) Stats(ctx context.Context, days int) (*types.Stats, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT classification, severity, status, remediation_attempted, remediation_success, COUNT(*)
		FROM error_analyses
		WHERE created_at >= $1
		GROUP BY classification, severity, status, remediation_attempted, remediation_success
	`, windowStart(days))
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate stats: %w", err)
	}
	defer rows.Close()

	stats := types.NewStats(days)
	for rows.Next() {
		var (
			c                    string
			sev, st              string
			attempted, succeeded bool
			n                    int64
		)
		if err := rows.Scan(&c, &sev, &st, &attempted, &succeeded, &n); err != nil {
			return nil, fmt.Errorf("failed to scan stats row: %w", err)
		}
		stats.Observe(types.Classification(c), types.Severity(sev), types.Status(st), attempted, succeeded, int(n))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return stats.Finish(), nil
}

// Trend returns per-day totals (UTC days, ascending)
func (s *PostgresStorage) Trend(ctx context.Context, days int) ([]types.TrendPoint, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day,
		       COUNT(*),
		       COUNT(*) FILTER (WHERE severity = 'critical'),
		       COUNT(*) FILTER (WHERE severity = 'high')
		FROM error_analyses
		WHERE created_at >= $1
		GROUP BY day
		ORDER BY day
	`, windowStart(days))
	if err != nil {
		return nil, fmt.Errorf("failed to query trend: %w", err)
	}
	defer rows.Close()

	points := []types.TrendPoint{}
	for rows.Next() {
		var p types.TrendPoint
		var total, critical, high int64
		if err := rows.Scan(&p.Day, &total, &critical, &high); err != nil {
			return nil, fmt.Errorf("failed to scan trend row: %w", err)
		}
		p.Total, p.Critical, p.High = int(total), int(critical), int(high)
		points = append(points, p)
	}
	return points, rows.Err()
}

// Delete removes an analysis by id
func (s *PostgresStorage) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM error_analyses WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete analysis %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("analysis %s: %w", id, types.ErrNotFound)
	}
	return nil
}

// CleanupOlderThan deletes analyses created before cutoff
func (s *PostgresStorage) CleanupOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM error_analyses WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old analyses: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func windowStart(days int) time.Time {
	if days <= 0 {
		return time.Unix(0, 0).UTC()
	}
	return time.Now().AddDate(0, 0, -days)
}

func scanRecord(row pgx.Row) (*types.AnalysisRecord, error) {
	var r codec.Row
	err := row.Scan(
		&r.ID, &r.ErrorID, &r.Message, &r.Stack, &r.Classification, &r.Severity,
		&r.Context, &r.Keywords, &r.RemediationAttempted, &r.RemediationSuccess,
		&r.RemediationResult, &r.AIEnabled, &r.AIDiagnosis, &r.RelatedIssues,
		&r.RelatedCount, &r.Recommendations, &r.Status, &r.Resolution,
		&r.CreatedAt, &r.UpdatedAt, &r.ResolvedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan analysis: %w", err)
	}
	return r.Record()
}
