// Package classify maps normalized error events to a failure classification
// and a classification to a severity.
//
// Both functions are pure. Classify walks an ordered rule table and returns
// the first match; Assess is a static table lookup.
package classify

import (
	"log/slog"
	"strings"

	"github.com/steveyegge/medic/internal/types"
)

// Classifier evaluates an ordered rule table. The zero value is not usable;
// use New or Default.
type Classifier struct {
	rules []Rule
}

var defaultClassifier = &Classifier{rules: defaultRules}

// Default returns the classifier built from the built-in rule table
func Default() *Classifier {
	return defaultClassifier
}

// New creates a classifier with a custom rule table. Rules are evaluated in
// the order given.
func New(rules []Rule) *Classifier {
	cp := make([]Rule, len(rules))
	copy(cp, rules)
	return &Classifier{rules: cp}
}

// Classify returns the classification of an event using the default rules
func Classify(event types.ErrorEvent) types.Classification {
	return defaultClassifier.Classify(event)
}

// ClassifyText classifies raw message text using the default rules
func ClassifyText(text string) types.Classification {
	return defaultClassifier.ClassifyText(text)
}

// Classify returns the classification of an event
func (c *Classifier) Classify(event types.ErrorEvent) types.Classification {
	return c.ClassifyText(event.Text())
}

// ClassifyText returns the first matching classification for text, or
// types.Unknown when nothing matches.
func (c *Classifier) ClassifyText(text string) types.Classification {
	lower := strings.ToLower(text)
	for i := range c.rules {
		if c.matches(&c.rules[i], text, lower) {
			return c.rules[i].Classification
		}
	}
	return types.Unknown
}

// matches evaluates one rule. A panicking rule counts as a non-match.
func (c *Classifier) matches(rule *Rule, text, lower string) (matched bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("classification rule failed", "classification", rule.Classification, "panic", r)
			matched = false
		}
	}()

	for _, s := range rule.Substrings {
		if strings.Contains(lower, s) {
			return true
		}
	}
	for _, p := range rule.Patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// Rules returns a copy of the rule table in evaluation order
func (c *Classifier) Rules() []Rule {
	out := make([]Rule, len(c.rules))
	copy(out, c.rules)
	return out
}
