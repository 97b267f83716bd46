package classify

import "github.com/steveyegge/medic/internal/types"

// severityTable must have a row for every classification. The completeness
// test in severity_test.go fails when a classification is added without one.
var severityTable = map[types.Classification]types.Severity{
	// critical: data loss or process death is imminent
	types.DiskFull:        types.SeverityCritical,
	types.DatabaseCorrupt: types.SeverityCritical,
	types.OutOfMemory:     types.SeverityCritical,
	types.StackOverflow:   types.SeverityCritical,

	// high: lock contention, auth, TLS, dependent service unreachable
	types.DatabaseLocked:     types.SeverityHigh,
	types.DatabaseBusy:       types.SeverityHigh,
	types.Deadlock:           types.SeverityHigh,
	types.AuthFailed:         types.SeverityHigh,
	types.AccessForbidden:    types.SeverityHigh,
	types.TLSError:           types.SeverityHigh,
	types.ConnectionRefused:  types.SeverityHigh,
	types.NetworkUnreachable: types.SeverityHigh,
	types.DNSFailure:         types.SeverityHigh,
	types.ProcessCrash:       types.SeverityHigh,

	// medium: missing resources, permissions, timeouts, rate limits,
	// server/provider errors, validation and type errors
	types.FileNotFound:          types.SeverityMedium,
	types.ResourceNotFound:      types.SeverityMedium,
	types.ModelNotFound:         types.SeverityMedium,
	types.PermissionDenied:      types.SeverityMedium,
	types.DatabaseReadonly:      types.SeverityMedium,
	types.DatabaseConstraint:    types.SeverityMedium,
	types.TooManyOpenFiles:      types.SeverityMedium,
	types.ConnectionTimeout:     types.SeverityMedium,
	types.RequestTimeout:        types.SeverityMedium,
	types.RateLimited:           types.SeverityMedium,
	types.ServerError:           types.SeverityMedium,
	types.ProviderOverloaded:    types.SeverityMedium,
	types.ContextLengthExceeded: types.SeverityMedium,
	types.ValidationError:       types.SeverityMedium,
	types.ParseError:            types.SeverityMedium,
	types.TypeError:             types.SeverityMedium,
	types.NilReference:          types.SeverityMedium,

	// low
	types.ConnectionReset: types.SeverityLow,
	types.AddressInUse:    types.SeverityLow,
	types.IndexOutOfRange: types.SeverityLow,
	types.Unknown:         types.SeverityLow,
}

// Assess returns the severity of a classification. Values outside the
// taxonomy are low.
func Assess(c types.Classification) types.Severity {
	if s, ok := severityTable[c]; ok {
		return s
	}
	return types.SeverityLow
}
