package ingestlog

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevelStringCustomLevels(t *testing.T) {
	assert.Equal(t, "BACKPRESSURE", levelString(LevelBackpressure))
	assert.Equal(t, "LIFECYCLE", levelString(LevelLifecycle))
	assert.Equal(t, "NOTICE", levelString(LevelNotice))
}

func TestLevelStringFallsBackToStdlib(t *testing.T) {
	assert.Equal(t, slog.LevelWarn.String(), levelString(slog.LevelWarn))
	assert.Equal(t, slog.Level(1234).String(), levelString(slog.Level(1234)))
}

func TestLevelOrdering(t *testing.T) {
	assert.True(t, slog.LevelDebug < LevelBackpressure)
	assert.True(t, LevelBackpressure < slog.LevelInfo)
	assert.True(t, slog.LevelInfo < LevelLifecycle)
	assert.True(t, LevelLifecycle < LevelNotice)
	assert.True(t, LevelNotice < slog.LevelWarn)
}

func TestNewLoggerRendersCustomLevelName(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, LevelBackpressure)
	log.Log(context.Background(), LevelLifecycle, "file opened", "uri", "file:///a.pcap")
	assert.Contains(t, buf.String(), "level=LIFECYCLE")
	assert.Contains(t, buf.String(), "uri=file:///a.pcap")
}

func TestNewLoggerFiltersBelowMinLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, slog.LevelInfo)
	log.Log(context.Background(), LevelBackpressure, "should be filtered")
	assert.Empty(t, buf.String())
}
