package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/steveyegge/medic/internal/storage/codec"
	"github.com/steveyegge/medic/internal/types"
)

const selectColumns = `id, error_id, message, stack, classification, severity, context, keywords,
	remediation_attempted, remediation_success, remediation_result, ai_enabled, ai_diagnosis,
	related_issues, related_count, recommendations, status, resolution,
	created_at, updated_at, resolved_at`

// Insert persists a new analysis record
func (s *SQLiteStorage) Insert(ctx context.Context, rec *types.AnalysisRecord) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("invalid analysis record: %w", err)
	}
	row, err := codec.FromRecord(rec)
	if err != nil {
		return err
	}

	var resolvedAt sql.NullInt64
	if row.ResolvedAt != nil {
		resolvedAt = sql.NullInt64{Int64: toMillis(*row.ResolvedAt), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO error_analyses (`+selectColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		row.ID, row.ErrorID, row.Message, row.Stack, row.Classification, row.Severity,
		row.Context, row.Keywords, row.RemediationAttempted, row.RemediationSuccess,
		row.RemediationResult, row.AIEnabled, row.AIDiagnosis, row.RelatedIssues,
		row.RelatedCount, row.Recommendations, row.Status, row.Resolution,
		toMillis(row.CreatedAt), toMillis(row.UpdatedAt), resolvedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert analysis %s: %w", rec.ID, err)
	}
	return nil
}

// Update applies a status change
func (s *SQLiteStorage) Update(ctx context.Context, id string, upd types.StatusUpdate) error {
	var resolvedAt sql.NullInt64
	if at := codec.ResolvedAt(upd); at != nil {
		resolvedAt = sql.NullInt64{Int64: toMillis(*at), Valid: true}
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE error_analyses
		SET status = ?, resolution = ?, updated_at = ?, resolved_at = ?
		WHERE id = ?
	`, string(upd.Status), upd.Resolution, toMillis(upd.At), resolvedAt, id)
	if err != nil {
		return fmt.Errorf("failed to update analysis %s: %w", id, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("analysis %s: %w", id, types.ErrNotFound)
	}
	return nil
}

// Get retrieves an analysis by id
func (s *SQLiteStorage) Get(ctx context.Context, id string) (*types.AnalysisRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM error_analyses WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("analysis %s: %w", id, types.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// List returns history matching filter, newest first
func (s *SQLiteStorage) List(ctx context.Context, filter types.HistoryFilter) ([]*types.AnalysisRecord, error) {
	var where []string
	var args []interface{}

	if filter.Classification != "" {
		where = append(where, "classification = ?")
		args = append(args, string(filter.Classification))
	}
	if filter.Severity != "" {
		where = append(where, "severity = ?")
		args = append(args, string(filter.Severity))
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Search != "" {
		where = append(where, `(message LIKE ? ESCAPE '\' OR stack LIKE ? ESCAPE '\')`)
		pattern := codec.ContainsPattern(filter.Search)
		args = append(args, pattern, pattern)
	}

	query := `SELECT ` + selectColumns + ` FROM error_analyses`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = types.DefaultHistoryLimit
	}
	query += " ORDER BY created_at DESC, id LIMIT ? OFFSET ?"
	args = append(args, limit, max(filter.Offset, 0))

	rows, err := s.db.QueryContext(ctx, query, args...)
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
func (s *SQLiteStorage) FindRelated(ctx context.Context, keywords []string, classification types.Classification, excludeID string, limit int) ([]types.RelatedIssue, error) {
	if limit <= 0 {
		return []types.RelatedIssue{}, nil
	}

	match := "classification = ?"
	args := []interface{}{excludeID, string(classification)}
	if len(keywords) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(keywords)), ", ")
		match += " OR EXISTS (SELECT 1 FROM json_each(error_analyses.keywords) AS kw WHERE kw.value IN (" + placeholders + "))"
		for _, k := range keywords {
			args = append(args, k)
		}
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, classification, severity, message, status, resolution, created_at
		FROM error_analyses
		WHERE id != ? AND (`+match+`)
		ORDER BY created_at DESC
		LIMIT ?
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query related analyses: %w", err)
	}
	defer rows.Close()

	related := []types.RelatedIssue{}
	for rows.Next() {
		var (
			ri        types.RelatedIssue
			message   string
			createdAt int64
		)
		if err := rows.Scan(&ri.ID, &ri.Classification, &ri.Severity, &message, &ri.Status, &ri.Resolution, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan related analysis: %w", err)
		}
		ri.Message = types.ErrorEvent{Message: message}.Summary()
		ri.CreatedAt = fromMillis(createdAt)
		related = append(related, ri)
	}
	return related, rows.Err()
}

// Delete removes an analysis by id
func (s *SQLiteStorage) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM error_analyses WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete analysis %s: %w", id, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("analysis %s: %w", id, types.ErrNotFound)
	}
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(sc scanner) (*types.AnalysisRecord, error) {
	var (
		row                  codec.Row
		createdAt, updatedAt int64
		resolvedAt           sql.NullInt64
	)
	err := sc.Scan(
		&row.ID, &row.ErrorID, &row.Message, &row.Stack, &row.Classification, &row.Severity,
		&row.Context, &row.Keywords, &row.RemediationAttempted, &row.RemediationSuccess,
		&row.RemediationResult, &row.AIEnabled, &row.AIDiagnosis, &row.RelatedIssues,
		&row.RelatedCount, &row.Recommendations, &row.Status, &row.Resolution,
		&createdAt, &updatedAt, &resolvedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan analysis: %w", err)
	}
	row.CreatedAt = fromMillis(createdAt)
	row.UpdatedAt = fromMillis(updatedAt)
	if resolvedAt.Valid {
		t := fromMillis(resolvedAt.Int64)
		row.ResolvedAt = &t
	}
	return row.Record()
}
