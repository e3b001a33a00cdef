package probe

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// PostgresChecker verifies that a PostgreSQL instance accepts connections
// and answers SQL. It connects with the given connection string and runs
// SELECT version().
type PostgresChecker struct {
	// ConnString is a postgresql:// URL including credentials.
	ConnString string

	// Timeout bounds the connect plus query round trip (default: 10 seconds).
	Timeout time.Duration
}

// NewPostgresChecker creates a PostgreSQL prober for the given connection
// string.
func NewPostgresChecker(connString string) *PostgresChecker {
	return &PostgresChecker{
		ConnString: connString,
		Timeout:    10 * time.Second,
	}
}

// WithTimeout sets the probe timeout.
func (p *PostgresChecker) WithTimeout(timeout time.Duration) *PostgresChecker {
	p.Timeout = timeout
	return p
}

// Check connects and queries the server version.
func (p *PostgresChecker) Check(ctx context.Context) Result {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	conn, err := pgx.Connect(ctx, p.ConnString)
	if err != nil {
		return Result{
			Healthy:   false,
			Message:   fmt.Sprintf("connection failed: %v", err),
			CheckedAt: start,
			Latency:   time.Since(start),
		}
	}
	defer conn.Close(ctx)

	var version string
	if err := conn.QueryRow(ctx, "SELECT version()").Scan(&version); err != nil {
		return Result{
			Healthy:   false,
			Message:   fmt.Sprintf("version query failed: %v", err),
			CheckedAt: start,
			Latency:   time.Since(start),
		}
	}

	return Result{
		Healthy:   true,
		Message:   fmt.Sprintf("connected, server reports %s", version),
		Version:   version,
		CheckedAt: start,
		Latency:   time.Since(start),
	}
}

// Type returns the probe kind.
func (p *PostgresChecker) Type() CheckType {
	return CheckTypePostgres
}
