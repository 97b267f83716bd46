package types

import (
	"fmt"
	"time"
)

// RemediationPolicy governs retry delay and timeout growth for one
// remediation attempt. It is a value object; strategies build their own.
type RemediationPolicy struct {
	MaxRetries    int           `json:"max_retries"`
	BaseDelay     time.Duration `json:"base_delay"`
	MaxDelay      time.Duration `json:"max_delay"`
	GrowthFactor  float64       `json:"growth_factor"`
	TimeoutGrowth float64       `json:"timeout_growth"` // 1 keeps the per-attempt timeout constant
	Timeout       time.Duration `json:"timeout"`        // Initial per-attempt timeout
}

// DefaultAttemptTimeout is used when a policy leaves Timeout unset
const DefaultAttemptTimeout = 30 * time.Second

// WithDefaults fills zero-valued growth and timeout fields
func (p RemediationPolicy) WithDefaults() RemediationPolicy {
	if p.GrowthFactor <= 0 {
		p.GrowthFactor = 2.0
	}
	if p.TimeoutGrowth <= 0 {
		p.TimeoutGrowth = 1.0
	}
	if p.Timeout <= 0 {
		p.Timeout = DefaultAttemptTimeout
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = p.BaseDelay
	}
	return p
}

// Validate checks if the policy has usable values
func (p RemediationPolicy) Validate() error {
	if p.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative (got %d)", p.MaxRetries)
	}
	if p.BaseDelay < 0 || p.MaxDelay < 0 {
		return fmt.Errorf("delays cannot be negative")
	}
	if p.MaxDelay > 0 && p.BaseDelay > p.MaxDelay {
		return fmt.Errorf("base_delay (%v) must be <= max_delay (%v)", p.BaseDelay, p.MaxDelay)
	}
	return nil
}

// RemediationResult is produced exactly once per remediation attempt.
// Success=true means the originating operation must not be retried again.
type RemediationResult struct {
	Attempted      bool           `json:"attempted"`
	Classification Classification `json:"classification"`
	Strategy       string         `json:"strategy,omitempty"`
	Success        bool           `json:"success"`
	Message        string         `json:"message"`
	Retries        int            `json:"retries"`
	Extra          map[string]any `json:"extra,omitempty"`
}

// NotAttempted is the result for classifications without a strategy
func NotAttempted(c Classification) RemediationResult {
	return RemediationResult{
		Attempted:      false,
		Classification: c,
		Message:        fmt.Sprintf("no remediation strategy for %s", c),
	}
}
