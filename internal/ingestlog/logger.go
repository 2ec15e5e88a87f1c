package ingestlog

import (
	"io"
	"log/slog"
	"os"
)

// New builds a logger writing text-formatted records to w at minLevel or
// above, with LevelBackpressure/LevelLifecycle/LevelNotice rendered under
// their own names instead of numeric offsets from the nearest stdlib level.
func New(w io.Writer, minLevel slog.Level) *slog.Logger {
	h := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       minLevel,
		ReplaceAttr: replaceLevelName,
	})
	return slog.New(h)
}

// Default returns a logger writing to stderr at LevelNotice and above.
// Constructors elsewhere in the module (worker.New, pcapformat.New,
// scheme/file.New, ...) fall back to slog.Default, not to this logger,
// when no logger is supplied.
func Default() *slog.Logger {
	return New(os.Stderr, LevelNotice)
}
