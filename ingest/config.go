package ingest

import "fmt"

// Config holds every read-only-after-startup knob from §6. It is a plain
// struct-of-knobs (rclone's fs/config.ConfigInfo pattern), not a process
// singleton — it is constructed once by the outer program and passed to
// whatever needs it.
type Config struct {
	InitialFiles       []string // individual files or URIs to ingest at startup
	FileListFiles      []string // files containing one path/URI per line; "-" means stdin
	InitialDirs        []string // directories to ingest at startup

	Monitor       bool
	Recursive     bool
	SkipProcessed bool
	DeleteAfter   bool

	BpfExpr string

	MaxInQueue     int // in-flight packet watermark ceiling
	DispatchAfter  int // headroom below MaxInQueue before the gate opens; may exceed MaxInQueue by up to 1000 (verbatim from the source)
	DiskWriterMark int // default 10
	IndexSinkMark  int // default 30

	FlushBetweenFiles bool
	TolerateErrors    bool
	AllowTruncated    bool
	DryRun            bool
	CopyOnly          bool

	SchemeEthertype uint16 // default 0xFF12; gates pcapformat.Options.SchemeEthertype, the per-packet garland link-layer shim (§6)

	MaxRecursionDepth int // default 20, inline-execution bound (§4.J, §9)
}

// DefaultConfig returns a Config with every documented default applied.
func DefaultConfig() Config {
	return Config{
		DiskWriterMark:    10,
		IndexSinkMark:     30,
		MaxInQueue:        1000,
		DispatchAfter:     900,
		SchemeEthertype:   0xFF12,
		MaxRecursionDepth: 20,
	}
}

// Validate checks the load-bearing invariants documented in §9: the
// dispatch_after headroom above max_in_queue is capped at 1000, verbatim.
// This runs once at configuration time; failures here are fatal by
// construction (§9 "re-architect as fallible constructors").
func (c Config) Validate() error {
	if c.MaxInQueue <= 0 {
		return fmt.Errorf("ingest: max_in_queue must be positive, got %d", c.MaxInQueue)
	}
	if c.DispatchAfter < 0 {
		return fmt.Errorf("ingest: dispatch_after must be non-negative, got %d", c.DispatchAfter)
	}
	if c.DispatchAfter > c.MaxInQueue+1000 {
		return fmt.Errorf("ingest: dispatch_after (%d) exceeds max_in_queue+1000 (%d)", c.DispatchAfter, c.MaxInQueue+1000)
	}
	if c.MaxRecursionDepth <= 0 {
		return fmt.Errorf("ingest: max_recursion_depth must be positive, got %d", c.MaxRecursionDepth)
	}
	return nil
}
