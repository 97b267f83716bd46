package diagnosis

import (
	"fmt"
	"sort"

	"github.com/steveyegge/medic/internal/types"
)

// recurringThreshold is the related-issue count that marks a pattern
const recurringThreshold = 3

// classificationActions holds operator guidance for failures no strategy
// can repair in-process
var classificationActions = map[types.Classification]string{
	types.DatabaseCorrupt:       "Restore the database from backup and run PRAGMA integrity_check",
	types.DatabaseReadonly:      "Check file ownership and mount options of the database directory",
	types.DatabaseConstraint:    "Inspect the failing write for duplicate keys or missing references",
	types.DiskFull:              "Free disk space or grow the volume",
	types.TLSError:              "Check certificate validity, hostname and trust chain",
	types.StackOverflow:         "Look for unbounded recursion near the top of the stack trace",
	types.AuthFailed:            "Verify or rotate the credentials used by the caller",
	types.AccessForbidden:       "Grant the caller the required role or scope",
	types.ResourceNotFound:      "Check the requested path or identifier",
	types.ProcessCrash:          "Collect the crash dump and inspect the exit signal",
	types.Deadlock:              "Dump goroutines and review lock ordering",
	types.ModelNotFound:         "Pull the model or configure one the provider lists",
	types.ContextLengthExceeded: "Shrink the prompt or switch to a longer-context model",
	types.ValidationError:       "Fix the invalid input at its source",
	types.NilReference:          "Guard the nil value named in the stack trace",
	types.TypeError:             "Check the type assertion or conversion at the failing frame",
	types.IndexOutOfRange:       "Bounds-check the slice access at the failing frame",
	types.TooManyOpenFiles:      "Raise the file descriptor limit or close leaked handles",
}

// Recommend derives advisory actions from a completed analysis, highest
// priority first. Ties keep insertion order.
func Recommend(rec *types.AnalysisRecord) []types.Recommendation {
	var out []types.Recommendation
	add := func(p types.Priority, category, title, description, action string) {
		out = append(out, types.Recommendation{
			Priority:    p,
			Category:    category,
			Title:       title,
			Description: description,
			Action:      action,
		})
	}

	switch rec.Severity {
	case types.SeverityCritical:
		add(types.PriorityUrgent, "severity", "Critical failure",
			fmt.Sprintf("%s failures can take the service down", rec.Classification),
			"Escalate to the owning team now")
	case types.SeverityHigh:
		add(types.PriorityHigh, "severity", "High-severity failure",
			fmt.Sprintf("%s failures degrade the service", rec.Classification),
			"Investigate before the next deploy")
	}

	rem := rec.Remediation
	switch {
	case rem.Attempted && rem.Success:
		add(types.PriorityLow, "remediation", "Automatic remediation succeeded",
			rem.Message, "Monitor for recurrence")
	case rem.Attempted:
		add(remediationFailedPriority(rec.Severity), "remediation", "Automatic remediation failed",
			rem.Message, "Apply the fix manually")
	default:
		add(types.PriorityMedium, "remediation", "Manual intervention required",
			fmt.Sprintf("No automatic remediation exists for %s", rec.Classification), "")
	}

	if action, ok := classificationActions[rec.Classification]; ok {
		add(priorityFor(rec.Severity), "classification", "Suggested fix", string(rec.Classification), action)
	}

	if ai := rec.AIDiagnosis; ai != nil {
		if ai.Available && len(ai.Fixes) > 0 {
			add(types.PriorityHigh, "ai", "Apply AI-suggested fix", ai.Fixes[0], "")
		} else if !ai.Available {
			add(types.PriorityLow, "ai", "AI diagnosis unavailable", ai.Error,
				"Check AI provider configuration and connectivity")
		}
	}

	if n := len(rec.RelatedIssues); n >= recurringThreshold {
		add(types.PriorityHigh, "pattern", "Recurring failure",
			fmt.Sprintf("%d similar incidents found in history", n),
			"Fix the underlying cause rather than the symptom")
	} else if n > 0 {
		add(types.PriorityMedium, "pattern", "Related incidents found",
			fmt.Sprintf("%d similar incident(s) found in history", n), "")
	}
	for _, r := range rec.RelatedIssues {
		if r.Status == types.StatusFixed && r.Resolution != "" {
			add(types.PriorityMedium, "pattern", "Previously resolved",
				fmt.Sprintf("Analysis %s was fixed before", r.ID), r.Resolution)
			break
		}
	}

	if out == nil {
		return []types.Recommendation{}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority.Rank() > out[j].Priority.Rank()
	})
	return out
}

func priorityFor(sev types.Severity) types.Priority {
	switch sev {
	case types.SeverityCritical:
		return types.PriorityUrgent
	case types.SeverityHigh:
		return types.PriorityHigh
	case types.SeverityMedium:
		return types.PriorityMedium
	default:
		return types.PriorityLow
	}
}

func remediationFailedPriority(sev types.Severity) types.Priority {
	if sev == types.SeverityCritical {
		return types.PriorityUrgent
	}
	return types.PriorityHigh
}
