package diagnosis

import (
	"context"
	"fmt"
	"time"

	"github.com/steveyegge/medic/internal/types"
)

func (c *Coordinator) requireStore() error {
	if c.store == nil {
		return types.ErrNotConfigured
	}
	return nil
}

// Get retrieves one analysis
func (c *Coordinator) Get(ctx context.Context, id string) (*types.AnalysisRecord, error) {
	if err := c.requireStore(); err != nil {
		return nil, err
	}
	return c.store.Get(ctx, id)
}

// History lists analyses matching filter, newest first
func (c *Coordinator) History(ctx context.Context, filter types.HistoryFilter) ([]*types.AnalysisRecord, error) {
	if err := c.requireStore(); err != nil {
		return nil, err
	}
	if filter.Limit <= 0 {
		filter.Limit = types.DefaultHistoryLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return c.store.List(ctx, filter)
}

// Stats aggregates analyses from the last days days (0 = all time)
func (c *Coordinator) Stats(ctx context.Context, days int) (*types.Stats, error) {
	if err := c.requireStore(); err != nil {
		return nil, err
	}
	return c.store.Stats(ctx, days)
}

// Trend returns daily totals for the last days days
func (c *Coordinator) Trend(ctx context.Context, days int) ([]types.TrendPoint, error) {
	if err := c.requireStore(); err != nil {
		return nil, err
	}
	return c.store.Trend(ctx, days)
}

// Delete removes one analysis
func (c *Coordinator) Delete(ctx context.Context, id string) error {
	if err := c.requireStore(); err != nil {
		return err
	}
	return c.store.Delete(ctx, id)
}

// Cleanup deletes analyses older than olderThanDays days
func (c *Coordinator) Cleanup(ctx context.Context, olderThanDays int) (int, error) {
	if err := c.requireStore(); err != nil {
		return 0, err
	}
	if olderThanDays < 0 {
		return 0, fmt.Errorf("older-than days cannot be negative (got %d)", olderThanDays)
	}
	cutoff := c.now().AddDate(0, 0, -olderThanDays)
	deleted, err := c.store.CleanupOlderThan(ctx, cutoff)
	if err != nil {
		return deleted, fmt.Errorf("cleanup failed: %w", err)
	}
	c.logger.Info("cleaned up old analyses", "deleted", deleted, "cutoff", cutoff.Format(time.RFC3339))
	return deleted, nil
}

// Transition moves an analysis to status, recording resolution. Moving into
// fixed or ignored stamps resolved_at.
func (c *Coordinator) Transition(ctx context.Context, id string, status types.Status, resolution string) (*types.AnalysisRecord, error) {
	if err := c.requireStore(); err != nil {
		return nil, err
	}
	if !status.IsValid() {
		return nil, fmt.Errorf("%w: unknown status %q", types.ErrInvalidTransition, status)
	}

	rec, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !types.CanTransition(rec.Status, status) {
		return nil, fmt.Errorf("%w: %s -> %s", types.ErrInvalidTransition, rec.Status, status)
	}

	if err := c.store.Update(ctx, id, types.StatusUpdate{
		Status:     status,
		Resolution: resolution,
		At:         c.now(),
	}); err != nil {
		return nil, fmt.Errorf("failed to update analysis %s: %w", id, err)
	}
	c.logger.Info("analysis status changed", "analysis_id", id, "from", rec.Status, "to", status)
	return c.store.Get(ctx, id)
}
