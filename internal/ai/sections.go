package ai

import (
	"regexp"
	"strings"
)

// Sections are the labeled parts of a diagnosis response. Sections the
// response did not contain stay empty.
type Sections struct {
	RootCause     string
	Fixes         []string
	BestPractices []string
	References    []string
}

type sectionKind int

const (
	sectionNone sectionKind = iota
	sectionRootCause
	sectionFixes
	sectionBestPractices
	sectionReferences
)

var (
	headingRe = regexp.MustCompile(`(?i)^\s*(#{1,6}\s*)?(\*\*)?\s*(?:\d+[.)]\s*)?` +
		`(root\s+cause(?:\s+analysis)?|probable\s+cause|cause|suggested\s+fix(?:es)?|fix(?:es)?|solutions?|` +
		`best\s+practices?|prevention|references?|resources|further\s+reading)` +
		`\s*(\*\*)?\s*(:)?\s*(\*\*)?\s*(.*)$`)
	bulletRe = regexp.MustCompile(`^\s*(?:[-*+•]|\d+[.)])\s+(.*)$`)
)

func kindOf(name string) sectionKind {
	n := strings.ToLower(name)
	switch {
	case strings.Contains(n, "cause"):
		return sectionRootCause
	case strings.Contains(n, "fix"), strings.HasPrefix(n, "solution"):
		return sectionFixes
	case strings.HasPrefix(n, "best"), n == "prevention":
		return sectionBestPractices
	default:
		return sectionReferences
	}
}

// matchHeading reports whether line opens a section. A recognized name
// needs a heading marker, bold, or a trailing colon; inline content after
// the name requires the colon.
func matchHeading(line string) (sectionKind, string, bool) {
	m := headingRe.FindStringSubmatch(line)
	if m == nil {
		return sectionNone, "", false
	}
	hashes, bold, name, colon, rest := m[1], m[2], m[3], m[5], strings.TrimSpace(m[7])
	if rest != "" && colon == "" {
		return sectionNone, "", false
	}
	if hashes == "" && bold == "" && colon == "" {
		return sectionNone, "", false
	}
	return kindOf(name), rest, true
}

// ParseSections extracts sections from a markdown-like response by heading.
// It never fabricates content: text outside any recognized section is
// ignored.
func ParseSections(text string) Sections {
	bodies := make(map[sectionKind][]string)
	current := sectionNone

	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		if kind, rest, ok := matchHeading(line); ok {
			current = kind
			if rest != "" {
				bodies[current] = append(bodies[current], rest)
			}
			continue
		}
		// Any other markdown heading closes the section
		if strings.HasPrefix(strings.TrimSpace(line), "#") {
			current = sectionNone
			continue
		}
		if current != sectionNone {
			bodies[current] = append(bodies[current], line)
		}
	}

	return Sections{
		RootCause:     strings.TrimSpace(strings.Join(bodies[sectionRootCause], "\n")),
		Fixes:         listItems(bodies[sectionFixes]),
		BestPractices: listItems(bodies[sectionBestPractices]),
		References:    listItems(bodies[sectionReferences]),
	}
}

// listItems splits section lines into items. Bulleted or numbered lines
// start items and indented lines continue them; a section without bullets
// yields one item per paragraph.
func listItems(lines []string) []string {
	var items []string
	var cur strings.Builder
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			items = append(items, s)
		}
		cur.Reset()
	}

	hasBullets := false
	for _, l := range lines {
		if bulletRe.MatchString(l) {
			hasBullets = true
			break
		}
	}

	for _, l := range lines {
		trimmed := strings.TrimSpace(l)
		if trimmed == "" || strings.HasPrefix(trimmed, "```") {
			if !hasBullets {
				flush()
			}
			continue
		}
		if m := bulletRe.FindStringSubmatch(l); m != nil {
			flush()
			cur.WriteString(m[1])
			continue
		}
		if hasBullets && cur.Len() == 0 {
			// Prose before the first bullet
			continue
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(trimmed)
	}
	flush()
	return items
}
