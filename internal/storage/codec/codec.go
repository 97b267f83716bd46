// Package codec converts analysis records to and from the flat column set
// shared by the SQL adapters.
package codec

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/steveyegge/medic/internal/types"
)

// Row is the column-level form of an AnalysisRecord. JSON columns hold
// marshalled text.
type Row struct {
	ID                   string
	ErrorID              string
	Message              string
	Stack                string
	Classification       string
	Severity             string
	Context              string // event kind, native code, occurrence time, process snapshot
	Keywords             string
	RemediationAttempted bool
	RemediationSuccess   bool
	RemediationResult    string
	AIEnabled            bool
	AIDiagnosis          string // "null" when absent
	RelatedIssues        string
	RelatedCount         int
	Recommendations      string
	Status               string
	Resolution           string
	CreatedAt            time.Time
	UpdatedAt            time.Time
	ResolvedAt           *time.Time
}

type eventContext struct {
	Kind       types.EventKind      `json:"kind"`
	NativeCode *int                 `json:"native_code,omitempty"`
	OccurredAt time.Time            `json:"occurred_at"`
	Process    types.ProcessContext `json:"process"`
}

// FromRecord flattens rec into a Row
func FromRecord(rec *types.AnalysisRecord) (*Row, error) {
	ctxJSON, err := json.Marshal(eventContext{
		Kind:       rec.Event.Kind,
		NativeCode: rec.Event.NativeCode,
		OccurredAt: rec.Event.OccurredAt,
		Process:    rec.Event.ProcessContext,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal context: %w", err)
	}

	row := &Row{
		ID:                   rec.ID,
		ErrorID:              rec.ErrorID,
		Message:              rec.Event.Message,
		Stack:                rec.Event.StackTrace,
		Classification:       string(rec.Classification),
		Severity:             string(rec.Severity),
		Context:              string(ctxJSON),
		RemediationAttempted: rec.Remediation.Attempted,
		RemediationSuccess:   rec.Remediation.Success,
		AIEnabled:            rec.AIEnabled,
		RelatedCount:         len(rec.RelatedIssues),
		Status:               string(rec.Status),
		Resolution:           rec.Resolution,
		CreatedAt:            rec.CreatedAt,
		UpdatedAt:            rec.UpdatedAt,
		ResolvedAt:           rec.ResolvedAt,
	}

	fields := []struct {
		name string
		v    any
		dst  *string
	}{
		{"keywords", nonNil(rec.Keywords), &row.Keywords},
		{"remediation", rec.Remediation, &row.RemediationResult},
		{"ai diagnosis", rec.AIDiagnosis, &row.AIDiagnosis},
		{"related issues", nonNil(rec.RelatedIssues), &row.RelatedIssues},
		{"recommendations", nonNil(rec.Recommendations), &row.Recommendations},
	}
	for _, f := range fields {
		data, err := json.Marshal(f.v)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s: %w", f.name, err)
		}
		*f.dst = string(data)
	}
	return row, nil
}

// Record rebuilds the AnalysisRecord
func (row *Row) Record() (*types.AnalysisRecord, error) {
	rec := &types.AnalysisRecord{
		ID:             row.ID,
		ErrorID:        row.ErrorID,
		Classification: types.Classification(row.Classification),
		Severity:       types.Severity(row.Severity),
		AIEnabled:      row.AIEnabled,
		Status:         types.Status(row.Status),
		Resolution:     row.Resolution,
		CreatedAt:      row.CreatedAt,
		UpdatedAt:      row.UpdatedAt,
		ResolvedAt:     row.ResolvedAt,
	}

	var ec eventContext
	fields := []struct {
		name string
		src  string
		dst  any
	}{
		{"context", row.Context, &ec},
		{"keywords", row.Keywords, &rec.Keywords},
		{"remediation", row.RemediationResult, &rec.Remediation},
		{"ai diagnosis", row.AIDiagnosis, &rec.AIDiagnosis},
		{"related issues", row.RelatedIssues, &rec.RelatedIssues},
		{"recommendations", row.Recommendations, &rec.Recommendations},
	}
	for _, f := range fields {
		if f.src == "" {
			continue
		}
		if err := json.Unmarshal([]byte(f.src), f.dst); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s for %s: %w", f.name, row.ID, err)
		}
	}

	rec.Event = types.ErrorEvent{
		ID:             row.ErrorID,
		Kind:           ec.Kind,
		Message:        row.Message,
		StackTrace:     row.Stack,
		NativeCode:     ec.NativeCode,
		OccurredAt:     ec.OccurredAt,
		ProcessContext: ec.Process,
	}
	if rec.Keywords == nil {
		rec.Keywords = []string{}
	}
	if rec.RelatedIssues == nil {
		rec.RelatedIssues = []types.RelatedIssue{}
	}
	if rec.Recommendations == nil {
		rec.Recommendations = []types.Recommendation{}
	}
	return rec, nil
}

// nonNil keeps nil slices out of the JSON columns so they decode as []
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// ResolvedAt returns the resolution timestamp implied by an update
func ResolvedAt(upd types.StatusUpdate) *time.Time {
	if !upd.Status.IsTerminal() {
		return nil
	}
	at := upd.At
	return &at
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// ContainsPattern returns a LIKE pattern matching text as a literal
// substring. Queries using it must declare ESCAPE '\'.
func ContainsPattern(text string) string {
	return "%" + likeEscaper.Replace(text) + "%"
}
