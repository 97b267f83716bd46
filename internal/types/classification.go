package types

// Classification is a taxonomy tag identifying the failure family of an event.
// The set is closed: every ErrorEvent maps to exactly one of these values.
type Classification string

// Storage
const (
	DatabaseLocked     Classification = "DATABASE_LOCKED"
	DatabaseBusy       Classification = "DATABASE_BUSY"
	DatabaseCorrupt    Classification = "DATABASE_CORRUPT"
	DatabaseReadonly   Classification = "DATABASE_READONLY"
	DatabaseConstraint Classification = "DATABASE_CONSTRAINT"
	DiskFull           Classification = "DISK_FULL"
)

// Network
const (
	AddressInUse       Classification = "ADDRESS_IN_USE"
	ConnectionRefused  Classification = "CONNECTION_REFUSED"
	ConnectionReset    Classification = "CONNECTION_RESET"
	ConnectionTimeout  Classification = "CONNECTION_TIMEOUT"
	DNSFailure         Classification = "DNS_FAILURE"
	NetworkUnreachable Classification = "NETWORK_UNREACHABLE"
	TLSError           Classification = "TLS_ERROR"
)

// Filesystem
const (
	PermissionDenied Classification = "PERMISSION_DENIED"
	FileNotFound     Classification = "FILE_NOT_FOUND"
	TooManyOpenFiles Classification = "TOO_MANY_OPEN_FILES"
)

// Memory
const (
	OutOfMemory   Classification = "OUT_OF_MEMORY"
	StackOverflow Classification = "STACK_OVERFLOW"
)

// API / HTTP
const (
	AuthFailed       Classification = "AUTH_FAILED"
	AccessForbidden  Classification = "ACCESS_FORBIDDEN"
	RateLimited      Classification = "RATE_LIMITED"
	ServerError      Classification = "SERVER_ERROR"
	ResourceNotFound Classification = "RESOURCE_NOT_FOUND"
	RequestTimeout   Classification = "REQUEST_TIMEOUT"
)

// Host runtime
const (
	ProcessCrash Classification = "PROCESS_CRASH"
	Deadlock     Classification = "DEADLOCK"
)

// AI provider
const (
	ModelNotFound         Classification = "MODEL_NOT_FOUND"
	ContextLengthExceeded Classification = "CONTEXT_LENGTH_EXCEEDED"
	ProviderOverloaded    Classification = "PROVIDER_OVERLOADED"
)

// Validation
const (
	ValidationError Classification = "VALIDATION_ERROR"
	ParseError      Classification = "PARSE_ERROR"
)

// Language runtime
const (
	NilReference    Classification = "NIL_REFERENCE"
	TypeError       Classification = "TYPE_ERROR"
	IndexOutOfRange Classification = "INDEX_OUT_OF_RANGE"
)

// Unknown is the catch-all for events no rule matches
const Unknown Classification = "UNKNOWN"

// Family groups classifications. Families are matched in declaration order.
type Family string

const (
	FamilyStorage    Family = "storage"
	FamilyNetwork    Family = "network"
	FamilyFilesystem Family = "filesystem"
	FamilyMemory     Family = "memory"
	FamilyAPI        Family = "api"
	FamilyRuntime    Family = "runtime"
	FamilyAI         Family = "ai"
	FamilyValidation Family = "validation"
	FamilyLanguage   Family = "language"
	FamilyUnknown    Family = "unknown"
)

var allClassifications = []Classification{
	DatabaseLocked, DatabaseBusy, DatabaseCorrupt, DatabaseReadonly, DatabaseConstraint, DiskFull,
	AddressInUse, ConnectionRefused, ConnectionReset, ConnectionTimeout, DNSFailure, NetworkUnreachable, TLSError,
	PermissionDenied, FileNotFound, TooManyOpenFiles,
	OutOfMemory, StackOverflow,
	AuthFailed, AccessForbidden, RateLimited, ServerError, ResourceNotFound, RequestTimeout,
	ProcessCrash, Deadlock,
	ModelNotFound, ContextLengthExceeded, ProviderOverloaded,
	ValidationError, ParseError,
	NilReference, TypeError, IndexOutOfRange,
	Unknown,
}

var classificationFamily = map[Classification]Family{
	DatabaseLocked: FamilyStorage, DatabaseBusy: FamilyStorage, DatabaseCorrupt: FamilyStorage,
	DatabaseReadonly: FamilyStorage, DatabaseConstraint: FamilyStorage, DiskFull: FamilyStorage,
	AddressInUse: FamilyNetwork, ConnectionRefused: FamilyNetwork, ConnectionReset: FamilyNetwork,
	ConnectionTimeout: FamilyNetwork, DNSFailure: FamilyNetwork, NetworkUnreachable: FamilyNetwork,
	TLSError: FamilyNetwork,
	PermissionDenied: FamilyFilesystem, FileNotFound: FamilyFilesystem, TooManyOpenFiles: FamilyFilesystem,
	OutOfMemory: FamilyMemory, StackOverflow: FamilyMemory,
	AuthFailed: FamilyAPI, AccessForbidden: FamilyAPI, RateLimited: FamilyAPI, ServerError: FamilyAPI,
	ResourceNotFound: FamilyAPI, RequestTimeout: FamilyAPI,
	ProcessCrash: FamilyRuntime, Deadlock: FamilyRuntime,
	ModelNotFound: FamilyAI, ContextLengthExceeded: FamilyAI, ProviderOverloaded: FamilyAI,
	ValidationError: FamilyValidation, ParseError: FamilyValidation,
	NilReference: FamilyLanguage, TypeError: FamilyLanguage, IndexOutOfRange: FamilyLanguage,
	Unknown: FamilyUnknown,
}

// AllClassifications returns every classification in precedence order.
// The returned slice is a copy.
func AllClassifications() []Classification {
	out := make([]Classification, len(allClassifications))
	copy(out, allClassifications)
	return out
}

// IsValid checks if the classification is a member of the taxonomy
func (c Classification) IsValid() bool {
	_, ok := classificationFamily[c]
	return ok
}

// Family returns the failure family of the classification
func (c Classification) Family() Family {
	if f, ok := classificationFamily[c]; ok {
		return f
	}
	return FamilyUnknown
}

// Severity is the ordinal urgency of a classification
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// IsValid checks if the severity value is valid
func (s Severity) IsValid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return true
	}
	return false
}

// Rank orders severities: critical=3, high=2, medium=1, low=0
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityHigh:
		return 2
	case SeverityMedium:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether s is as urgent as other or more
func (s Severity) AtLeast(other Severity) bool {
	return s.Rank() >= other.Rank()
}

// AllSeverities returns severities from most to least urgent
func AllSeverities() []Severity {
	return []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}
}
