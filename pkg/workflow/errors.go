package workflow

import (
	"fmt"
	"strings"
)

// Activity errors travel through history as short strings. Two prefixes
// mark errors that must not be retried; everything else is transient.
const (
	conflictPrefix = "conflict: "
	fatalPrefix    = "fatal: "

	// TimeoutError is recorded by the runtime when an activity's overall
	// retry budget expires before a completion arrives.
	TimeoutError = "timeout"
)

// Conflictf builds a non-retryable conflict error, e.g. a DNS name that is
// already reserved by another instance.
func Conflictf(format string, args ...any) error {
	return fmt.Errorf(conflictPrefix+format, args...)
}

// Fatalf builds a non-retryable error for misconfiguration and other
// conditions that no amount of retrying will fix.
func Fatalf(format string, args ...any) error {
	return fmt.Errorf(fatalPrefix+format, args...)
}

// IsConflict reports whether an activity error string carries the conflict
// marker.
func IsConflict(msg string) bool {
	return strings.HasPrefix(msg, conflictPrefix)
}

// IsFatal reports whether an activity error string carries the fatal marker.
func IsFatal(msg string) bool {
	return strings.HasPrefix(msg, fatalPrefix)
}

// IsRetryable reports whether a failed activity may be attempted again.
func IsRetryable(msg string) bool {
	return !IsConflict(msg) && !IsFatal(msg) && msg != TimeoutError
}
