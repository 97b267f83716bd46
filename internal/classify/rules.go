package classify

import (
	"regexp"

	"github.com/steveyegge/medic/internal/types"
)

// Rule matches a classification by case-insensitive substrings or regular
// expressions. Substrings must be lowercase; patterns are compiled with (?i).
type Rule struct {
	Classification types.Classification
	Substrings     []string
	Patterns       []*regexp.Regexp
}

func re(expr string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)` + expr)
}

// defaultRules is ordered by family (storage, network, filesystem, memory,
// api, runtime, ai, validation, language). The first match wins, so within a
// family the more specific rule comes first.
var defaultRules = []Rule{
	// Storage
	{
		Classification: types.DatabaseLocked,
		Substrings:     []string{"database is locked", "database table is locked", "sqlite_locked"},
	},
	{
		Classification: types.DatabaseBusy,
		Substrings:     []string{"sqlite_busy", "database is busy", "lock wait timeout exceeded"},
	},
	{
		Classification: types.DatabaseCorrupt,
		Substrings:     []string{"sqlite_corrupt", "database disk image is malformed", "file is not a database", "sqlite_notadb"},
	},
	{
		Classification: types.DatabaseReadonly,
		Substrings:     []string{"sqlite_readonly", "readonly database", "read-only database"},
	},
	{
		Classification: types.DatabaseConstraint,
		Substrings:     []string{"sqlite_constraint", "unique constraint", "foreign key constraint", "constraint failed", "violates not-null constraint"},
	},
	{
		Classification: types.DiskFull,
		Substrings:     []string{"enospc", "no space left on device", "sqlite_full", "database or disk is full", "disk full", "disk quota exceeded"},
	},

	// Network
	{
		Classification: types.AddressInUse,
		Substrings:     []string{"eaddrinuse", "address already in use", "only one usage of each socket address"},
	},
	{
		Classification: types.ConnectionRefused,
		Substrings:     []string{"econnrefused", "connection refused", "actively refused"},
	},
	{
		Classification: types.ConnectionReset,
		Substrings:     []string{"econnreset", "connection reset", "epipe", "broken pipe", "socket hang up"},
	},
	{
		Classification: types.ConnectionTimeout,
		Substrings:     []string{"etimedout", "connection timed out", "connect timeout"},
		Patterns:       []*regexp.Regexp{re(`dial tcp \S+: i/o timeout`)},
	},
	{
		Classification: types.DNSFailure,
		Substrings:     []string{"enotfound", "eai_again", "no such host", "getaddrinfo", "name resolution"},
	},
	{
		Classification: types.NetworkUnreachable,
		Substrings:     []string{"enetunreach", "ehostunreach", "network is unreachable", "no route to host", "host is unreachable"},
	},
	{
		Classification: types.TLSError,
		Substrings:     []string{"x509:", "tls: ", "certificate has expired", "self signed certificate", "self-signed certificate", "unable to verify the first certificate"},
		Patterns:       []*regexp.Regexp{re(`\bcert_[a-z_]+\b`)},
	},

	// Filesystem
	{
		Classification: types.PermissionDenied,
		Substrings:     []string{"eacces", "eperm", "permission denied", "operation not permitted", "access is denied"},
	},
	{
		Classification: types.FileNotFound,
		Substrings:     []string{"enoent", "no such file or directory", "cannot find the path", "cannot find the file", "file not found"},
	},
	{
		Classification: types.TooManyOpenFiles,
		Substrings:     []string{"emfile", "enfile", "too many open files"},
	},

	// Memory
	{
		Classification: types.OutOfMemory,
		Substrings:     []string{"out of memory", "enomem", "cannot allocate memory", "heap out of memory", "allocation failed"},
	},
	{
		Classification: types.StackOverflow,
		Substrings:     []string{"stack overflow", "maximum call stack size exceeded", "goroutine stack exceeds"},
	},

	// API / HTTP
	{
		Classification: types.AuthFailed,
		Substrings:     []string{"unauthorized", "invalid api key", "invalid x-api-key", "authentication failed", "authentication_error", "invalid token"},
		Patterns:       []*regexp.Regexp{re(`\b401\b`)},
	},
	{
		Classification: types.AccessForbidden,
		Substrings:     []string{"forbidden", "permission_error"},
		Patterns:       []*regexp.Regexp{re(`\b403\b`)},
	},
	{
		Classification: types.RateLimited,
		Substrings:     []string{"rate limit", "rate_limit", "too many requests", "quota exceeded"},
		Patterns:       []*regexp.Regexp{re(`\b429\b`)},
	},
	{
		Classification: types.ServerError,
		Substrings:     []string{"internal server error", "bad gateway", "service unavailable", "gateway timeout"},
		Patterns:       []*regexp.Regexp{re(`\b50[0-4]\b`)},
	},
	{
		Classification: types.ResourceNotFound,
		Substrings:     []string{"resource not found", "endpoint not found", "route not found", "status code 404"},
		Patterns:       []*regexp.Regexp{re(`\b404\b`)},
	},
	{
		Classification: types.RequestTimeout,
		Substrings:     []string{"context deadline exceeded", "esockettimedout", "timed out", "timeout"},
	},

	// Host runtime
	{
		Classification: types.ProcessCrash,
		Substrings:     []string{"segmentation fault", "sigsegv", "sigabrt", "sigbus", "core dumped", "unexpected signal"},
	},
	{
		Classification: types.Deadlock,
		Substrings:     []string{"all goroutines are asleep", "deadlock"},
	},

	// AI provider
	{
		Classification: types.ModelNotFound,
		Substrings:     []string{"model_not_found", "unknown model"},
		Patterns:       []*regexp.Regexp{re(`model\s+['"]?[\w.:/-]+['"]?\s+(?:was\s+)?not\s+found`)},
	},
	{
		Classification: types.ContextLengthExceeded,
		Substrings:     []string{"context length", "context_length_exceeded", "maximum context", "prompt is too long", "too many tokens"},
	},
	{
		Classification: types.ProviderOverloaded,
		Substrings:     []string{"overloaded", "overloaded_error", "model is loading"},
		Patterns:       []*regexp.Regexp{re(`\b529\b`)},
	},

	// Validation
	{
		Classification: types.ValidationError,
		Substrings:     []string{"validation failed", "validation error", "invalid argument", "invalid input", "invalid parameter", "is required"},
	},
	{
		Classification: types.ParseError,
		Substrings:     []string{"unexpected end of json", "invalid character", "cannot unmarshal", "syntax error", "parse error", "malformed", "unexpected token"},
	},

	// Language runtime
	{
		Classification: types.NilReference,
		Substrings:     []string{"nil pointer dereference", "null pointer", "nullpointerexception", "cannot read propert", "undefined is not an object", "nil map"},
	},
	{
		Classification: types.TypeError,
		Substrings:     []string{"interface conversion", "type assertion", "typeerror", "is not a function", "cannot convert"},
	},
	{
		Classification: types.IndexOutOfRange,
		Substrings:     []string{"index out of range", "out of bounds", "rangeerror", "slice bounds out of range"},
	},
}
