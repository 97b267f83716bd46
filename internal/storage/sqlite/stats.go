package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/steveyegge/medic/internal/types"
)

// windowStart returns the cutoff for a day window; days <= 0 means all time
func windowStart(days int) int64 {
	if days <= 0 {
		return 0
	}
	return toMillis(time.Now().AddDate(0, 0, -days))
}

// Stats aggregates analyses created in the last days days
func (s *SQLiteStorage) Stats(ctx context.Context, days int) (*types.Stats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT classification, severity, status, remediation_attempted, remediation_success, COUNT(*)
		FROM error_analyses
		WHERE created_at >= ?
		GROUP BY classification, severity, status, remediation_attempted, remediation_success
	`, windowStart(days))
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate stats: %w", err)
	}
	defer rows.Close()

	stats := types.NewStats(days)
	for rows.Next() {
		var (
			c                    types.Classification
			sev                  types.Severity
			st                   types.Status
			attempted, succeeded bool
			n                    int
		)
		if err := rows.Scan(&c, &sev, &st, &attempted, &succeeded, &n); err != nil {
			return nil, fmt.Errorf("failed to scan stats row: %w", err)
		}
		stats.Observe(c, sev, st, attempted, succeeded, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return stats.Finish(), nil
}

// Trend returns per-day totals (UTC days, ascending) for the last days days
func (s *SQLiteStorage) Trend(ctx context.Context, days int) ([]types.TrendPoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT strftime('%Y-%m-%d', created_at / 1000, 'unixepoch') AS day,
		       COUNT(*),
		       SUM(CASE WHEN severity = 'critical' THEN 1 ELSE 0 END),
		       SUM(CASE WHEN severity = 'high' THEN 1 ELSE 0 END)
		FROM error_analyses
		WHERE created_at >= ?
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
		if err := rows.Scan(&p.Day, &p.Total, &p.Critical, &p.High); err != nil {
			return nil, fmt.Errorf("failed to scan trend row: %w", err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}
