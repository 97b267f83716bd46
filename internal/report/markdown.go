// Package report renders analysis records as Markdown
package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/steveyegge/medic/internal/types"
)

// Markdown renders rec as a standalone Markdown document
func Markdown(rec *types.AnalysisRecord) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Error Analysis %s\n\n", rec.ID)

	b.WriteString("## Summary\n\n")
	b.WriteString("| Field | Value |\n|---|---|\n")
	row(&b, "Message", rec.Event.Summary())
	row(&b, "Kind", string(rec.Event.Kind))
	row(&b, "Classification", string(rec.Classification))
	row(&b, "Severity", string(rec.Severity))
	row(&b, "Status", string(rec.Status))
	if rec.Event.NativeCode != nil {
		row(&b, "Native code", fmt.Sprintf("%d", *rec.Event.NativeCode))
	}
	if len(rec.Keywords) > 0 {
		row(&b, "Keywords", strings.Join(rec.Keywords, ", "))
	}
	row(&b, "Occurred", formatTime(rec.Event.OccurredAt))
	row(&b, "Analyzed", formatTime(rec.CreatedAt))
	if rec.ResolvedAt != nil {
		row(&b, "Resolved", formatTime(*rec.ResolvedAt))
	}
	if rec.Resolution != "" {
		row(&b, "Resolution", rec.Resolution)
	}
	b.WriteString("\n")

	if rec.Event.Message != rec.Event.Summary() {
		b.WriteString("## Message\n\n")
		fence(&b, "", rec.Event.Message)
	}

	if rec.Event.StackTrace != "" {
		b.WriteString("## Stack Trace\n\n")
		fence(&b, "", rec.Event.StackTrace)
	}

	writeRemediation(&b, rec.Remediation)
	writeAI(&b, rec)
	writeRelated(&b, rec.RelatedIssues)
	writeRecommendations(&b, rec.Recommendations)

	b.WriteString("## Runtime Context\n\n")
	ctx, err := yaml.Marshal(rec.Event.ProcessContext)
	if err != nil {
		fmt.Fprintf(&b, "_unavailable: %v_\n", err)
	} else {
		fence(&b, "yaml", string(ctx))
	}

	return b.String()
}

func writeRemediation(b *strings.Builder, rem types.RemediationResult) {
	b.WriteString("## Remediation\n\n")
	if !rem.Attempted {
		fmt.Fprintf(b, "Not attempted: %s\n\n", rem.Message)
		return
	}
	outcome := "failed"
	if rem.Success {
		outcome = "succeeded"
	}
	fmt.Fprintf(b, "Strategy `%s` %s after %d retries.\n\n", rem.Strategy, outcome, rem.Retries)
	if rem.Message != "" {
		fmt.Fprintf(b, "> %s\n\n", rem.Message)
	}
	if len(rem.Extra) > 0 {
		keys := make([]string, 0, len(rem.Extra))
		for k := range rem.Extra {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(b, "- **%s**: %v\n", k, rem.Extra[k])
		}
		b.WriteString("\n")
	}
}

func writeAI(b *strings.Builder, rec *types.AnalysisRecord) {
	b.WriteString("## AI Diagnosis\n\n")
	ai := rec.AIDiagnosis
	switch {
	case !rec.AIEnabled || ai == nil:
		b.WriteString("_AI diagnosis disabled._\n\n")
		return
	case !ai.Available:
		fmt.Fprintf(b, "_AI diagnosis unavailable: %s_\n\n", ai.Error)
		return
	}

	if ai.Model != "" {
		fmt.Fprintf(b, "Model: `%s` (%s)\n\n", ai.Model, ai.Provider)
	}
	if ai.RootCause != "" {
		b.WriteString("### Root Cause\n\n")
		b.WriteString(ai.RootCause)
		b.WriteString("\n\n")
	}
	list(b, "Fixes", ai.Fixes, true)
	list(b, "Best Practices", ai.BestPractices, false)
	list(b, "References", ai.References, false)
}

func writeRelated(b *strings.Builder, related []types.RelatedIssue) {
	b.WriteString("## Related Issues\n\n")
	if len(related) == 0 {
		b.WriteString("None found.\n\n")
		return
	}
	b.WriteString("| ID | Classification | Severity | Status | Message |\n|---|---|---|---|---|\n")
	for _, r := range related {
		fmt.Fprintf(b, "| %s | %s | %s | %s | %s |\n",
			r.ID, r.Classification, r.Severity, r.Status, escape(r.Message))
	}
	b.WriteString("\n")
}

func writeRecommendations(b *strings.Builder, recs []types.Recommendation) {
	b.WriteString("## Recommendations\n\n")
	if len(recs) == 0 {
		b.WriteString("None.\n\n")
		return
	}
	for _, r := range recs {
		fmt.Fprintf(b, "- **[%s] %s** (%s)", strings.ToUpper(string(r.Priority)), r.Title, r.Category)
		if r.Description != "" {
			fmt.Fprintf(b, ": %s", r.Description)
		}
		b.WriteString("\n")
		if r.Action != "" {
			fmt.Fprintf(b, "  - Action: %s\n", r.Action)
		}
	}
	b.WriteString("\n")
}

func row(b *strings.Builder, field, value string) {
	fmt.Fprintf(b, "| %s | %s |\n", field, escape(value))
}

func list(b *strings.Builder, title string, items []string, numbered bool) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "### %s\n\n", title)
	for i, item := range items {
		if numbered {
			fmt.Fprintf(b, "%d. %s\n", i+1, item)
		} else {
			fmt.Fprintf(b, "- %s\n", item)
		}
	}
	b.WriteString("\n")
}

func fence(b *strings.Builder, lang, body string) {
	fmt.Fprintf(b, "```%s\n%s\n```\n\n", lang, strings.TrimRight(body, "\n"))
}

// escape keeps table cells on one line
func escape(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
