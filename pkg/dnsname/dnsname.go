// Package dnsname derives and validates the RFC 1123 DNS labels under
// which instances are exposed: sanitizing user input, appending unique
// suffixes for Kubernetes names, and building the public Azure FQDN.
package dnsname

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// MaxLabelLength is the RFC 1123 limit for a single DNS label.
const MaxLabelLength = 63

// DefaultRegion is assumed when the cluster's region cannot be read from
// node labels.
const DefaultRegion = "westus3"

// azureDNSSuffix is the public suffix Azure appends to LoadBalancer DNS
// labels.
const azureDNSSuffix = "cloudapp.azure.com"

// Validate checks that name is a legal RFC 1123 DNS label: 1-63 characters,
// lowercase alphanumerics and hyphens, starting and ending alphanumeric.
func Validate(name string) error {
	if name == "" {
		return fmt.Errorf("name is empty")
	}
	if len(name) > MaxLabelLength {
		return fmt.Errorf("name %q exceeds %d characters", name, MaxLabelLength)
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		case c == '-':
			if i == 0 || i == len(name)-1 {
				return fmt.Errorf("name %q must start and end with an alphanumeric character", name)
			}
		default:
			return fmt.Errorf("name %q contains invalid character %q; use lowercase alphanumerics and hyphens", name, string(c))
		}
	}
	return nil
}

// Sanitize rewrites s into a legal DNS label: lowercased, invalid runs
// collapsed to single hyphens, leading/trailing hyphens trimmed, truncated
// to 63 characters. An input with no usable characters comes back empty.
//
// Example: Sanitize("My_DB Server!") -> "my-db-server"
func Sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	lastHyphen := true // suppress a leading hyphen
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	out := strings.TrimRight(b.String(), "-")
	if len(out) > MaxLabelLength {
		out = strings.TrimRight(out[:MaxLabelLength], "-")
	}
	return out
}

// Unique appends a random 8-character suffix so that repeated creates of
// the same user-facing name never collide in Kubernetes.
//
// Example: Unique("mydb") -> "mydb-3f8a91c2"
func Unique(base string) string {
	suffix := uuid.New().String()[:8]
	if base == "" {
		return suffix
	}
	// leave room for "-" + 8 suffix chars
	if len(base) > MaxLabelLength-9 {
		base = strings.TrimRight(base[:MaxLabelLength-9], "-")
	}
	return base + "-" + suffix
}

// FQDN builds the public Azure DNS name for a LoadBalancer label.
//
// Example: FQDN("mydb", "westus3") -> "mydb.westus3.cloudapp.azure.com"
func FQDN(label, region string) string {
	if region == "" {
		region = DefaultRegion
	}
	return label + "." + region + "." + azureDNSSuffix
}
