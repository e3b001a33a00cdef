package probe

import (
	"context"
	"fmt"
	"net"
	"time"
)

// TCPChecker verifies that a TCP endpoint accepts connections. It is the
// fallback when a SQL handshake is not wanted, e.g. checking reachability
// of port 5432 before credentials exist.
type TCPChecker struct {
	// Address is the host:port to dial.
	Address string

	// Timeout is the connection timeout (default: 5 seconds).
	Timeout time.Duration
}

// NewTCPChecker creates a TCP prober for the given address.
func NewTCPChecker(address string) *TCPChecker {
	return &TCPChecker{
		Address: address,
		Timeout: 5 * time.Second,
	}
}

// WithTimeout sets the connection timeout.
func (t *TCPChecker) WithTimeout(timeout time.Duration) *TCPChecker {
	t.Timeout = timeout
	return t
}

// Check dials the address once.
func (t *TCPChecker) Check(ctx context.Context) Result {
	start := time.Now()

	dialer := &net.Dialer{Timeout: t.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", t.Address)
	if err != nil {
		return Result{
			Healthy:   false,
			Message:   fmt.Sprintf("connection failed: %v", err),
			CheckedAt: start,
			Latency:   time.Since(start),
		}
	}
	defer conn.Close()

	return Result{
		Healthy:   true,
		Message:   fmt.Sprintf("TCP connection to %s successful", t.Address),
		CheckedAt: start,
		Latency:   time.Since(start),
	}
}

// Type returns the probe kind.
func (t *TCPChecker) Type() CheckType {
	return CheckTypeTCP
}
