// Package ingest defines the core types shared across the packet-ingest
// core: URIs, flags, reference-counted action sets, the scheme registry,
// the error taxonomy, and the configuration knobs. It has no dependency on
// any of the other packages in this module, the same way rclone's fs
// package is imported by its subpackages and backends but imports none of
// them.
package ingest

import (
	"fmt"
	"strings"
)

// MaxSchemeLen is the longest legal scheme prefix, per the URI grammar.
const MaxSchemeLen = 29

// DefaultScheme is used when a URI carries no "scheme://" prefix.
const DefaultScheme = "file"

// Uri is a parsed capture-source handle: either "scheme://rest" or a bare
// path, which implies the default file scheme.
type Uri struct {
	Raw    string
	Scheme string
	Opaque string
}

func (u Uri) String() string {
	if u.Scheme == DefaultScheme && !strings.Contains(u.Raw, "://") {
		return u.Opaque
	}
	return u.Scheme + "://" + u.Opaque
}

// ParseURI splits raw into scheme and opaque parts. An absent "scheme://"
// prefix implies the default "file" scheme. A scheme prefix longer than
// MaxSchemeLen is an error.
func ParseURI(raw string) (Uri, error) {
	idx := strings.Index(raw, "://")
	if idx < 0 {
		return Uri{Raw: raw, Scheme: DefaultScheme, Opaque: raw}, nil
	}
	scheme := raw[:idx]
	if len(scheme) > MaxSchemeLen {
		return Uri{}, fmt.Errorf("ingest: scheme prefix %q exceeds %d bytes", scheme, MaxSchemeLen)
	}
	if !isValidSchemeName(scheme) {
		return Uri{}, fmt.Errorf("ingest: invalid scheme prefix %q", scheme)
	}
	return Uri{Raw: raw, Scheme: scheme, Opaque: raw[idx+3:]}, nil
}

func isValidSchemeName(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		case r == '+' || r == '-' || r == '.':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}
