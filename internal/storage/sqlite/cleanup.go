package sqlite

import (
	"context"
	"fmt"
	"time"
)

// cleanupBatchSize is the number of analyses deleted per statement
const cleanupBatchSize = 500

// CleanupOlderThan deletes analyses created before cutoff, oldest first, in
// batches so the write lock is released between statements
func (s *SQLiteStorage) CleanupOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	totalDeleted := 0

	for {
		select {
		case <-ctx.Done():
			return totalDeleted, ctx.Err()
		default:
		}

		result, err := s.db.ExecContext(ctx, `
			DELETE FROM error_analyses
			WHERE id IN (
				SELECT id FROM error_analyses
				WHERE created_at < ?
				ORDER BY created_at ASC
				LIMIT ?
			)
		`, toMillis(cutoff), cleanupBatchSize)
		if err != nil {
			return totalDeleted, fmt.Errorf("failed to execute delete: %w", err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return totalDeleted, fmt.Errorf("failed to get rows affected: %w", err)
		}
		totalDeleted += int(rowsAffected)

		if rowsAffected < cleanupBatchSize {
			return totalDeleted, nil
		}
	}
}
