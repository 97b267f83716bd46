package ai

import (
	"fmt"
	"strings"

	"github.com/steveyegge/medic/internal/types"
)

// SystemPrompt instructs the model to answer under the headings
// ParseSections recognizes
const SystemPrompt = `You are a senior site reliability engineer diagnosing a runtime failure in a Go service.
Answer in markdown using exactly these headings, omitting any you cannot answer:

## Root Cause
## Fixes
## Best Practices
## References

Use bullet lists under Fixes, Best Practices and References. Do not invent references.`

const maxStackLines = 40

// PromptInput is everything the diagnosis prompt embeds
type PromptInput struct {
	Event          types.ErrorEvent
	Classification types.Classification
	Severity       types.Severity
	Remediation    types.RemediationResult
}

// BuildPrompt renders the user prompt for a diagnosis request
func BuildPrompt(in PromptInput) string {
	var b strings.Builder
	e := in.Event

	b.WriteString("Diagnose the following failure.\n\n")
	fmt.Fprintf(&b, "Kind: %s\n", e.Kind)
	fmt.Fprintf(&b, "Classification: %s\n", in.Classification)
	fmt.Fprintf(&b, "Severity: %s\n", in.Severity)
	if e.NativeCode != nil {
		fmt.Fprintf(&b, "Native code: %d\n", *e.NativeCode)
	}

	b.WriteString("\nError message:\n```\n")
	b.WriteString(e.Message)
	b.WriteString("\n```\n")

	if e.StackTrace != "" {
		b.WriteString("\nStack trace:\n```\n")
		b.WriteString(truncateLines(e.StackTrace, maxStackLines))
		b.WriteString("\n```\n")
	}

	pc := e.ProcessContext
	b.WriteString("\nRuntime context:\n")
	fmt.Fprintf(&b, "- platform: %s/%s\n", pc.Platform, pc.Arch)
	fmt.Fprintf(&b, "- go: %s\n", pc.GoVersion)
	fmt.Fprintf(&b, "- uptime: %s\n", pc.Uptime)
	fmt.Fprintf(&b, "- heap: %d bytes allocated of %d reserved\n", pc.HeapAlloc, pc.HeapSys)
	fmt.Fprintf(&b, "- goroutines: %d\n", pc.NumGoroutine)

	r := in.Remediation
	b.WriteString("\nAutomatic remediation:\n")
	if !r.Attempted {
		b.WriteString("- not attempted\n")
	} else {
		fmt.Fprintf(&b, "- strategy: %s\n", r.Strategy)
		fmt.Fprintf(&b, "- success: %t\n", r.Success)
		fmt.Fprintf(&b, "- retries: %d\n", r.Retries)
		fmt.Fprintf(&b, "- outcome: %s\n", r.Message)
	}

	return b.String()
}

// Messages builds the chat for a diagnosis request
func Messages(in PromptInput) []Message {
	return []Message{
		{Role: RoleSystem, Content: SystemPrompt},
		{Role: RoleUser, Content: BuildPrompt(in)},
	}
}

func truncateLines(s string, n int) string {
	lines := strings.Split(s, "\n")
	if len(lines) <= n {
		return s
	}
	return strings.Join(lines[:n], "\n") + fmt.Sprintf("\n... (%d more lines)", len(lines)-n)
}
