// Package ingestlog wraps log/slog with the severity levels and level-name
// rendering the worker's lifecycle and backpressure events need beyond the
// four stdlib levels, the same way the teacher's fs/log package extends
// slog with its own Notice/Critical/Alert/Emergency levels (fs/log/slog_test.go).
package ingestlog

import "log/slog"

// Custom levels, interleaved with the stdlib four the way syslog severities
// are: Debug(-4) < Backpressure(-2) < Info(0) < Lifecycle(1) < Notice(2) <
// Warn(4) < Error(8). Backpressure is deliberately between Debug and Info
// since it is a diagnostic, not an operator-facing event.
const (
	// LevelBackpressure marks BackpressureGate's "still closed" notices
	// (§4.G) — more notable than Debug but not an operator action item.
	LevelBackpressure = slog.LevelDebug + 2
	// LevelLifecycle marks per-file start/abandon/finish events (§7: "every
	// per-file lifecycle event ... is logged with its URI").
	LevelLifecycle = slog.LevelInfo + 1
	// LevelNotice marks operator-relevant events that are not warnings:
	// scheme registration, shutdown sequencing.
	LevelNotice = slog.LevelInfo + 2
)

var levelNames = map[slog.Level]string{
	LevelBackpressure: "BACKPRESSURE",
	LevelLifecycle:    "LIFECYCLE",
	LevelNotice:       "NOTICE",
}

// levelString renders lvl using the custom names above, falling back to
// slog's own String() for the four stdlib levels and anything unmapped.
func levelString(lvl slog.Level) string {
	if name, ok := levelNames[lvl]; ok {
		return name
	}
	return lvl.String()
}

// replaceLevelName is a slog.HandlerOptions.ReplaceAttr function that
// substitutes the custom level names above for slog.LevelKey attrs,
// mirroring fs/log's mapLogLevelNames.
func replaceLevelName(groups []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey {
		return a
	}
	lvl, ok := a.Value.Any().(slog.Level)
	if !ok {
		return a
	}
	return slog.String(slog.LevelKey, levelString(lvl))
}
