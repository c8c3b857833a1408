package types

import "errors"

// Semantic error kinds from spec §7. These are sentinels, not a type
// hierarchy: handlers wrap them with fmt.Errorf("...: %w", ErrX) and callers
// check with errors.Is, the same idiom internal/beam/activities.go uses for
// its own classified failures.
var (
	// ErrIngestionRejected: input lacks required fields; never enqueued.
	ErrIngestionRejected = errors.New("ingestion rejected")
	// ErrGuardrailDenied: mode, rate limit, or parameter bound violated.
	ErrGuardrailDenied = errors.New("guardrail denied")
	// ErrActionFailed: an action's apply returned failure.
	ErrActionFailed = errors.New("action failed")
	// ErrValidationFailed: a validation probe failed.
	ErrValidationFailed = errors.New("validation failed")
	// ErrGateFailed: one or more promotion gates returned false.
	ErrGateFailed = errors.New("promotion gate failed")
	// ErrTransientStorage: disk/DB I/O error likely to succeed on retry.
	ErrTransientStorage = errors.New("transient storage error")
)

// TransientMessages lists substrings that mark an error as retry-worthy at
// the storage boundary (spec §7, Open Questions: retry must be applied
// uniformly at the storage boundary, not left to scattered call sites).
var TransientMessages = []string{
	"database is locked",
	"disk i/o error",
	"resource temporarily unavailable",
	"connection reset",
}
