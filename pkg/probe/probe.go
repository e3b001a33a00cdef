// Package probe checks the health of provisioned PostgreSQL instances.
// PostgresChecker opens a real connection and runs SELECT version();
// TCPChecker only dials, for instances whose credentials are not at hand.
package probe

import (
	"context"
	"time"
)

// CheckType identifies the kind of probe that produced a Result.
type CheckType string

const (
	CheckTypePostgres CheckType = "postgres"
	CheckTypeTCP      CheckType = "tcp"
)

// Result is the outcome of one probe attempt.
type Result struct {
	Healthy   bool
	Message   string
	Version   string // PostgreSQL server version when the probe spoke SQL
	CheckedAt time.Time
	Latency   time.Duration
}

// Checker is implemented by every probe type.
type Checker interface {
	// Check performs one probe attempt and returns the result.
	Check(ctx context.Context) Result

	// Type returns the kind of probe.
	Type() CheckType
}
