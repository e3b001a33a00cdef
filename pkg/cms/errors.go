package cms

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a lookup matches no catalog row.
var ErrNotFound = errors.New("instance not found")

// DNSConflictError reports that a requested DNS name is held by a live
// instance owned by a different orchestration. Callers surface it to
// users verbatim; retrying cannot succeed until the owner releases the
// name.
type DNSConflictError struct {
	DNSName  string
	K8sName  string
	UserName string
}

func (e *DNSConflictError) Error() string {
	return fmt.Sprintf("DNS name '%s' is already reserved by instance '%s' (user: %s)", e.DNSName, e.K8sName, e.UserName)
}

// IsDNSConflict reports whether err wraps a DNSConflictError.
func IsDNSConflict(err error) bool {
	var conflict *DNSConflictError
	return errors.As(err, &conflict)
}
