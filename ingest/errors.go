package ingest

import "fmt"

// ErrorKind classifies the error taxonomy from the error-handling design:
// which of these are fatal depends on the active policy flags, not on the
// kind alone, so callers set Fatal explicitly at the construction site.
type ErrorKind int

const (
	// UnknownScheme: no loader registered for a URI's scheme prefix.
	UnknownScheme ErrorKind = iota
	// UnknownFormat: capture-file magic matched none of the four accepted values.
	UnknownFormat
	// TruncatedRecord: captured_len != original_len under a strict policy.
	TruncatedRecord
	// OversizePacket: captured_len > 0xFFFF.
	OversizePacket
	// LoaderFailure: a scheme loader returned a non-nil error.
	LoaderFailure
	// BpfCompileFailure: the operator-supplied filter failed to compile.
	BpfCompileFailure
	// OpParseFailure: a --op argument was rejected by the ActionSet parser.
	OpParseFailure
)

func (k ErrorKind) String() string {
	switch k {
	case UnknownScheme:
		return "UnknownScheme"
	case UnknownFormat:
		return "UnknownFormat"
	case TruncatedRecord:
		return "TruncatedRecord"
	case OversizePacket:
		return "OversizePacket"
	case LoaderFailure:
		return "LoaderFailure"
	case BpfCompileFailure:
		return "BpfCompileFailure"
	case OpParseFailure:
		return "OpParseFailure"
	default:
		return "Unknown"
	}
}

// Error is the concrete error type produced anywhere in the ingest core.
// Fatal reflects whether this particular occurrence should abort the
// worker, given the policy flags active at the time it was raised — the
// same UnknownFormat error is fatal with tolerate_errors unset and
// non-fatal with it set (§7).
type Error struct {
	Kind  ErrorKind
	URI   string
	Fatal bool
	Err   error
}

func (e *Error) Error() string {
	if e.Err != nil {
		if e.URI != "" {
			return fmt.Sprintf("%s: %s: %v", e.Kind, e.URI, e.Err)
		}
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	if e.URI != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.URI)
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

// NewError constructs an *Error. fatal is decided by the caller, which
// knows which policy flag (tolerate_errors, allow_truncated_packets, ...)
// governs this occurrence.
func NewError(kind ErrorKind, uri string, fatal bool, cause error) *Error {
	return &Error{Kind: kind, URI: uri, Fatal: fatal, Err: cause}
}
