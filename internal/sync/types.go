// Package sync implements the local/remote reconciliation core: conflict
// resolution, the conflict audit log, the retry and upload queues, and the
// coordinator that drives a sync cycle against the maintenance backend.
package sync

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ResolutionRule selects how a divergent field is merged
type ResolutionRule string

const (
	// RuleCompletionWins prefers the side that represents forward progress:
	// a terminal status from either side beats a non-terminal one.
	RuleCompletionWins ResolutionRule = "completion_wins"
	// RuleLatestTimestampWins prefers the most recent writer.
	RuleLatestTimestampWins ResolutionRule = "latest_timestamp_wins"
	// RuleServerWins prefers the server unconditionally (authoritative
	// values such as meter readings applied server-side).
	RuleServerWins ResolutionRule = "server_wins"
)

// ValueSource identifies where a final field value came from
type ValueSource string

const (
	SourceLocal  ValueSource = "local"
	SourceServer ValueSource = "server"
	SourceMerged ValueSource = "merged"
)

// Escalation trigger names recorded on audit entries
const (
	EscalationCompletionConflict  = "completion_conflict"
	EscalationBackdatedCompletion = "backdated_completion"
)

// ErrorCategory classifies sync failures for retry policy and diagnostics
type ErrorCategory string

const (
	CategoryTransient  ErrorCategory = "transient"  // network/timeout, retryable
	CategoryAuth       ErrorCategory = "auth"       // requires re-authentication before retry
	CategoryValidation ErrorCategory = "validation" // rejected payload, needs local correction
	CategoryConflict   ErrorCategory = "conflict"   // handled by the resolver
	CategoryUnknown    ErrorCategory = "unknown"
)

// RemoteError wraps a backend failure with its category
type RemoteError struct {
	Category ErrorCategory
	Op       string
	Err      error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// Categorize maps an error onto the failure taxonomy. Typed remote errors
// carry their category; anything else is matched on message text.
func Categorize(err error) ErrorCategory {
	if err == nil {
		return CategoryUnknown
	}

	var re *RemoteError
	if errors.As(err, &re) {
		return re.Category
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"),
		strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "no such host"),
		strings.Contains(msg, "network is unreachable"),
		strings.Contains(msg, "temporary failure"):
		return CategoryTransient
	case strings.Contains(msg, "unauthorized"),
		strings.Contains(msg, "authentication"),
		strings.Contains(msg, "session expired"),
		strings.Contains(msg, "access denied"):
		return CategoryAuth
	case strings.Contains(msg, "validation"),
		strings.Contains(msg, "invalid field"),
		strings.Contains(msg, "required field"):
		return CategoryValidation
	}
	return CategoryUnknown
}

// CollectionStore is the durable home of the ordered JSON logs. The GORM
// implementation lives in internal/store; tests substitute an in-memory one.
type CollectionStore interface {
	Load(namespace string) ([]byte, error)
	Save(namespace string, entries []byte) error
	Delete(namespace string) error
}

// nowMillis converts a clock reading to epoch milliseconds
func nowMillis(t time.Time) int64 {
	return t.UnixMilli()
}
