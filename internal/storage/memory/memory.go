// Package memory is an in-process analysis store for tests and hosts that
// do not need durable history
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/steveyegge/medic/internal/storage/codec"
	"github.com/steveyegge/medic/internal/types"
)

// Store keeps records in a map. Records are copied on the way in and out so
// callers cannot mutate stored state.
type Store struct {
	mu      sync.RWMutex
	records map[string]*types.AnalysisRecord
	closed  bool
}

// New creates an empty store
func New() *Store {
	return &Store{records: make(map[string]*types.AnalysisRecord)}
}

func clone(rec *types.AnalysisRecord) (*types.AnalysisRecord, error) {
	row, err := codec.FromRecord(rec)
	if err != nil {
		return nil, err
	}
	return row.Record()
}

// Insert persists a new analysis record
func (s *Store) Insert(ctx context.Context, rec *types.AnalysisRecord) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("invalid analysis record: %w", err)
	}
	cp, err := clone(rec)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}
	if _, exists := s.records[rec.ID]; exists {
		return fmt.Errorf("analysis %s already exists", rec.ID)
	}
	s.records[rec.ID] = cp
	return nil
}

// Update applies a status change
func (s *Store) Update(ctx context.Context, id string, upd types.StatusUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return fmt.Errorf("analysis %s: %w", id, types.ErrNotFound)
	}
	rec.Status = upd.Status
	rec.Resolution = upd.Resolution
	rec.UpdatedAt = upd.At
	rec.ResolvedAt = codec.ResolvedAt(upd)
	return nil
}

// Get retrieves an analysis by id
func (s *Store) Get(ctx context.Context, id string) (*types.AnalysisRecord, error) {
	s.mu.RLock()
	rec, ok := s.records[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("analysis %s: %w", id, types.ErrNotFound)
	}
	return clone(rec)
}

// sorted returns records newest first; caller holds the lock
func (s *Store) sorted() []*types.AnalysisRecord {
	out := make([]*types.AnalysisRecord, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// List returns history matching filter, newest first
func (s *Store) List(ctx context.Context, filter types.HistoryFilter) ([]*types.AnalysisRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := filter.Limit
	if limit <= 0 {
		limit = types.DefaultHistoryLimit
	}
	search := strings.ToLower(filter.Search)

	var out []*types.AnalysisRecord
	skipped := 0
	for _, r := range s.sorted() {
		if filter.Classification != "" && r.Classification != filter.Classification {
			continue
		}
		if filter.Severity != "" && r.Severity != filter.Severity {
			continue
		}
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(r.Event.Text()), search) {
			continue
		}
		if skipped < filter.Offset {
			skipped++
			continue
		}
		cp, err := clone(r)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// FindRelated returns prior analyses sharing a keyword or the classification
func (s *Store) FindRelated(ctx context.Context, keywords []string, classification types.Classification, excludeID string, limit int) ([]types.RelatedIssue, error) {
	related := []types.RelatedIssue{}
	if limit <= 0 {
		return related, nil
	}
	want := make(map[string]bool, len(keywords))
	for _, k := range keywords {
		want[k] = true
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.sorted() {
		if r.ID == excludeID {
			continue
		}
		match := r.Classification == classification
		for _, k := range r.Keywords {
			if match {
				break
			}
			match = want[k]
		}
		if !match {
			continue
		}
		related = append(related, r.Summary())
		if len(related) == limit {
			break
		}
	}
	return related, nil
}

func windowStart(days int) time.Time {
	if days <= 0 {
		return time.Time{}
	}
	return time.Now().AddDate(0, 0, -days)
}

// Stats aggregates analyses created in the last days days
func (s *Store) Stats(ctx context.Context, days int) (*types.Stats, error) {
	cutoff := windowStart(days)
	stats := types.NewStats(days)

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.records {
		if r.CreatedAt.Before(cutoff) {
			continue
		}
		stats.Observe(r.Classification, r.Severity, r.Status, r.Remediation.Attempted, r.Remediation.Success, 1)
	}
	return stats.Finish(), nil
}

// Trend returns per-day totals (UTC days, ascending)
func (s *Store) Trend(ctx context.Context, days int) ([]types.TrendPoint, error) {
	cutoff := windowStart(days)
	byDay := make(map[string]*types.TrendPoint)

	s.mu.RLock()
	for _, r := range s.records {
		if r.CreatedAt.Before(cutoff) {
			continue
		}
		day := r.CreatedAt.UTC().Format("2006-01-02")
		p, ok := byDay[day]
		if !ok {
			p = &types.TrendPoint{Day: day}
			byDay[day] = p
		}
		p.Total++
		switch r.Severity {
		case types.SeverityCritical:
			p.Critical++
		case types.SeverityHigh:
			p.High++
		}
	}
	s.mu.RUnlock()

	points := make([]types.TrendPoint, 0, len(byDay))
	for _, p := range byDay {
		points = append(points, *p)
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Day < points[j].Day })
	return points, nil
}

// Delete removes an analysis by id
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return fmt.Errorf("analysis %s: %w", id, types.ErrNotFound)
	}
	delete(s.records, id)
	return nil
}

// CleanupOlderThan deletes analyses created before cutoff
func (s *Store) CleanupOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for id, r := range s.records {
		if r.CreatedAt.Before(cutoff) {
			delete(s.records, id)
			deleted++
		}
	}
	return deleted, nil
}

// Close marks the store closed; later inserts fail
func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

