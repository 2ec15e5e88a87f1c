package ingest

// Flags is a bitset composed from configuration and per-request overrides.
// Once attached to a PendingItem it is immutable.
type Flags uint8

const (
	// Monitor keeps a directory/garland source alive, polling for new files.
	Monitor Flags = 1 << iota
	// Recursive expands nested directories.
	Recursive
	// SkipProcessed skips files already recorded as ingested.
	SkipProcessed
	// DeleteAfter removes a source file once it has been fully ingested.
	DeleteAfter
	// DirHint marks a request as known in advance to be a directory.
	DirHint
)

// Has reports whether all bits in want are set.
func (f Flags) Has(want Flags) bool { return f&want == want }

// With returns f with the given bits set.
func (f Flags) With(bits Flags) Flags { return f | bits }

// Without returns f with the given bits cleared.
func (f Flags) Without(bits Flags) Flags { return f &^ bits }

func (f Flags) String() string {
	names := []struct {
		bit  Flags
		name string
	}{
		{Monitor, "monitor"},
		{Recursive, "recursive"},
		{SkipProcessed, "skip_processed"},
		{DeleteAfter, "delete_after"},
		{DirHint, "dir_hint"},
	}
	out := ""
	for _, n := range names {
		if f.Has(n.bit) {
			if out != "" {
				out += "|"
			}
			out += n.name
		}
	}
	if out == "" {
		return "none"
	}
	return out
}
