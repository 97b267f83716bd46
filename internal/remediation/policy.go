package remediation

import (
	"time"

	"github.com/steveyegge/medic/internal/types"
)

// Backoff policies used by the built-in strategies
var (
	LockPolicy = types.RemediationPolicy{
		MaxRetries:   5,
		BaseDelay:    100 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		GrowthFactor: 2,
	}

	ReconnectPolicy = types.RemediationPolicy{
		MaxRetries:   3,
		BaseDelay:    1 * time.Second,
		MaxDelay:     10 * time.Second,
		GrowthFactor: 2,
	}

	ParsePolicy = types.RemediationPolicy{
		MaxRetries:   3,
		BaseDelay:    50 * time.Millisecond,
		MaxDelay:     200 * time.Millisecond,
		GrowthFactor: 2,
	}

	ThrottlePolicy = types.RemediationPolicy{
		MaxRetries:   3,
		BaseDelay:    2 * time.Second,
		MaxDelay:     30 * time.Second,
		GrowthFactor: 2,
	}

	NetworkPolicy = types.RemediationPolicy{
		MaxRetries:   3,
		BaseDelay:    500 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		GrowthFactor: 2,
	}

	// TimeoutPolicy grows the per-attempt timeout so slow endpoints get
	// more room on each retry
	TimeoutPolicy = types.RemediationPolicy{
		MaxRetries:    3,
		BaseDelay:     500 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		GrowthFactor:  2,
		TimeoutGrowth: 1.5,
		Timeout:       10 * time.Second,
	}

	// singleShot runs an operation once without delay
	singleShot = types.RemediationPolicy{MaxRetries: 1}
)

// GenericRetryClassifications are the classifications handled by plain
// retry with a tuned policy
func GenericRetryClassifications() []types.Classification {
	return []types.Classification{
		types.ConnectionReset,
		types.NetworkUnreachable,
		types.DNSFailure,
		types.RequestTimeout,
		types.ServerError,
		types.RateLimited,
		types.ProviderOverloaded,
		types.ParseError,
		types.TooManyOpenFiles,
	}
}

// PolicyFor returns the generic-retry policy for c
func PolicyFor(c types.Classification) types.RemediationPolicy {
	switch c {
	case types.ParseError:
		return ParsePolicy
	case types.RateLimited, types.ProviderOverloaded:
		return ThrottlePolicy
	case types.RequestTimeout:
		return TimeoutPolicy
	default:
		return NetworkPolicy
	}
}
