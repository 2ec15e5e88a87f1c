// Package garland implements the "garland" scheme (§4, Supplemented
// features): identical to scheme/file's directory/file/monitor handling,
// except every StreamParser it builds has garland.Unwrap (the
// package github.com/flowcap/ingest/garland) applied to each packet body
// before it reaches the filter stage or batcher.
package garland

import (
	"log/slog"

	"github.com/flowcap/ingest"
	"github.com/flowcap/ingest/pcapformat"
	schemefile "github.com/flowcap/ingest/scheme/file"
)

// schemeName is the scheme this loader registers under and the value every
// FileSlot it creates records as SchemeName, so a garland-ingested file is
// never misattributed to "file" (§4.C).
const schemeName = "garland"

// New builds a Loader registered as "garland". deps is the same factory
// shape scheme/file uses; the returned loader forces Options.GarlandUnwrap
// regardless of what opts.GarlandUnwrap was set to, since every source
// reached through this scheme is known in full to be tap-wrapped, unlike
// the per-packet opts.SchemeEthertype gate scheme/file also applies.
func New(deps schemefile.DepsFactory, opts pcapformat.Options, log *slog.Logger) *schemefile.Loader {
	opts.GarlandUnwrap = true
	return schemefile.New(deps, opts, log, schemeName)
}

// RegInfo returns the ingest.RegInfo to register this loader under
// "garland", sharing scheme/file's Load/Exit but under the garland name.
func RegInfo(deps schemefile.DepsFactory, opts pcapformat.Options, log *slog.Logger) *ingest.RegInfo {
	l := New(deps, opts, log)
	return &ingest.RegInfo{Name: schemeName, Load: l.Load, Exit: l.Exit}
}
