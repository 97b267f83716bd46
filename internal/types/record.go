package types

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of an analysis record
type Status string

const (
	StatusNew       Status = "new"
	StatusAnalyzing Status = "analyzing"
	StatusAnalyzed  Status = "analyzed"
	StatusFixing    Status = "fixing"
	StatusFixed     Status = "fixed"
	StatusIgnored   Status = "ignored"
)

// IsValid checks if the status value is valid
func (s Status) IsValid() bool {
	switch s {
	case StatusNew, StatusAnalyzing, StatusAnalyzed, StatusFixing, StatusFixed, StatusIgnored:
		return true
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed
func (s Status) IsTerminal() bool {
	return s == StatusFixed || s == StatusIgnored
}

var transitions = map[Status][]Status{
	StatusNew:       {StatusAnalyzing, StatusIgnored},
	StatusAnalyzing: {StatusAnalyzed, StatusIgnored},
	StatusAnalyzed:  {StatusFixing, StatusFixed, StatusIgnored},
	StatusFixing:    {StatusFixed, StatusIgnored, StatusAnalyzed},
}

// CanTransition reports whether from -> to is an allowed status change
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// AIAnalysis holds the parsed sections of an AI root-cause response.
// Sections the model did not produce stay empty.
type AIAnalysis struct {
	Available     bool     `json:"available"`
	Provider      string   `json:"provider,omitempty"`
	Model         string   `json:"model,omitempty"`
	RootCause     string   `json:"root_cause,omitempty"`
	Fixes         []string `json:"fixes,omitempty"`
	BestPractices []string `json:"best_practices,omitempty"`
	References    []string `json:"references,omitempty"`
	Raw           string   `json:"raw,omitempty"`
	Error         string   `json:"error,omitempty"`
}

// Unavailable returns the degraded AI analysis used when the call fails
func Unavailable(reason string) *AIAnalysis {
	return &AIAnalysis{Available: false, Error: reason}
}

// RelatedIssue summarizes a prior analysis that overlaps the current one
type RelatedIssue struct {
	ID             string         `json:"id"`
	Classification Classification `json:"classification"`
	Severity       Severity       `json:"severity"`
	Message        string         `json:"message"`
	Status         Status         `json:"status"`
	Resolution     string         `json:"resolution,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// Priority of a recommendation
type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Rank orders priorities: urgent=3 ... low=0
func (p Priority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 3
	case PriorityHigh:
		return 2
	case PriorityMedium:
		return 1
	default:
		return 0
	}
}

// Recommendation is advisory and never executed automatically
type Recommendation struct {
	Priority    Priority `json:"priority"`
	Category    string   `json:"category"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Action      string   `json:"action,omitempty"`
}

// AnalysisRecord is the persisted outcome of one diagnosis pass
type AnalysisRecord struct {
	ID              string            `json:"id"`
	ErrorID         string            `json:"error_id"`
	Event           ErrorEvent        `json:"event"`
	Classification  Classification    `json:"classification"`
	Severity        Severity          `json:"severity"`
	Keywords        []string          `json:"keywords"`
	Remediation     RemediationResult `json:"remediation"`
	AIEnabled       bool              `json:"ai_enabled"`
	AIDiagnosis     *AIAnalysis       `json:"ai_diagnosis,omitempty"`
	RelatedIssues   []RelatedIssue    `json:"related_issues"`
	Recommendations []Recommendation  `json:"recommendations"`
	Status          Status            `json:"status"`
	Resolution      string            `json:"resolution,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
	ResolvedAt      *time.Time        `json:"resolved_at,omitempty"`
}

// Validate checks the record before it is inserted
func (r *AnalysisRecord) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("id is required")
	}
	if !r.Classification.IsValid() {
		return fmt.Errorf("invalid classification: %s", r.Classification)
	}
	if !r.Severity.IsValid() {
		return fmt.Errorf("invalid severity: %s", r.Severity)
	}
	if !r.Status.IsValid() {
		return fmt.Errorf("invalid status: %s", r.Status)
	}
	return nil
}

// Summary converts the record into a RelatedIssue for correlation output
func (r *AnalysisRecord) Summary() RelatedIssue {
	return RelatedIssue{
		ID:             r.ID,
		Classification: r.Classification,
		Severity:       r.Severity,
		Message:        r.Event.Summary(),
		Status:         r.Status,
		Resolution:     r.Resolution,
		CreatedAt:      r.CreatedAt,
	}
}

// StatusUpdate describes an explicit status transition
type StatusUpdate struct {
	Status     Status
	Resolution string
	At         time.Time
}

// HistoryFilter narrows list-history queries. Zero values match everything.
type HistoryFilter struct {
	Classification Classification
	Severity       Severity
	Status         Status
	Search         string // Free text matched against message and stack
	Limit          int
	Offset         int
}

// DefaultHistoryLimit caps history queries that do not set a limit
const DefaultHistoryLimit = 50

// Stats aggregates analyses over a day window
type Stats struct {
	Days                   int                    `json:"days"`
	Total                  int                    `json:"total"`
	BySeverity             map[Severity]int       `json:"by_severity"`
	ByClassification       map[Classification]int `json:"by_classification"`
	ByStatus               map[Status]int         `json:"by_status"`
	Remediated             int                    `json:"remediated"` // Records where remediation was attempted
	RemediationSucceeded   int                    `json:"remediation_succeeded"`
	RemediationSuccessRate float64                `json:"remediation_success_rate"`
}

// Observe adds n records sharing the given attributes
func (s *Stats) Observe(c Classification, sev Severity, st Status, attempted, succeeded bool, n int) {
	s.Total += n
	s.BySeverity[sev] += n
	s.ByClassification[c] += n
	s.ByStatus[st] += n
	if attempted {
		s.Remediated += n
		if succeeded {
			s.RemediationSucceeded += n
		}
	}
}

// Finish computes the derived success rate
func (s *Stats) Finish() *Stats {
	if s.Remediated > 0 {
		s.RemediationSuccessRate = float64(s.RemediationSucceeded) / float64(s.Remediated)
	}
	return s
}

// NewStats returns Stats with initialized maps
func NewStats(days int) *Stats {
	return &Stats{
		Days:             days,
		BySeverity:       make(map[Severity]int),
		ByClassification: make(map[Classification]int),
		ByStatus:         make(map[Status]int),
	}
}

// TrendPoint is one day of the daily trend
type TrendPoint struct {
	Day      string `json:"day"` // YYYY-MM-DD, UTC
	Total    int    `json:"total"`
	Critical int    `json:"critical"`
	High     int    `json:"high"`
}
