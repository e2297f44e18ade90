package logger

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferLogger(level Level) (*DefaultLogger, *bytes.Buffer) {
	var buf bytes.Buffer
	l := NewWithOutput(level, &buf)
	l.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return l, &buf
}

func TestDefaultLogger_Format(t *testing.T) {
	l, buf := newBufferLogger(LevelInfo)

	l.Info("Executing SPARQL query on %s", "http://localhost:7200")

	assert.Equal(t, "2026-01-02T03:04:05Z [INFO] Executing SPARQL query on http://localhost:7200\n", buf.String())
}

func TestDefaultLogger_LevelFiltering(t *testing.T) {
	l, buf := newBufferLogger(LevelWarn)

	l.Debug("debug")
	l.Info("info")
	assert.Empty(t, buf.String())

	l.Warn("warn")
	l.Error("error")
	assert.Contains(t, buf.String(), "[WARN] warn")
	assert.Contains(t, buf.String(), "[ERROR] error")
}

func TestDefaultLogger_SetLevel(t *testing.T) {
	l, buf := newBufferLogger(LevelInfo)
	assert.Equal(t, LevelInfo, l.GetLevel())

	l.SetLevel(LevelDebug)
	assert.Equal(t, LevelDebug, l.GetLevel())

	l.Debug("now visible")
	assert.Contains(t, buf.String(), "[DEBUG] now visible")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"error", LevelError},
		{"WARN", LevelWarn},
		{"warning", LevelWarn},
		{"", LevelInfo},
		{" info ", LevelInfo},
		{"Debug", LevelDebug},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}

func TestNoOpLogger(t *testing.T) {
	var l Logger = NewNoOp()
	l.Error("ignored %d", 1)
	l.SetLevel(LevelDebug)
	assert.Equal(t, LevelInfo, l.GetLevel())
}
