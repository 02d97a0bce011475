package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
		ok   bool
	}{
		{"DEBUG", zapcore.DebugLevel, true},
		{"info", zapcore.InfoLevel, true},
		{"WARNING", zapcore.WarnLevel, true},
		{"warn", zapcore.WarnLevel, true},
		{"ERROR", zapcore.ErrorLevel, true},
		{"CRITICAL", zapcore.DPanicLevel, true},
		{"verbose", zapcore.WarnLevel, false},
		{"", zapcore.WarnLevel, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseLevel(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestNewAppendsToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	require.NoError(t, os.WriteFile(path, []byte("previous run\n"), 0644))

	logger, closeFn, err := New(Config{File: path, Level: "WARNING"})
	require.NoError(t, err)

	logger.Info("Request", zap.String("url", "http://h/fast"))
	logger.Warn("At least a second", zap.String("url", "http://h/slow"))
	logger.Error("FAILURE", zap.String("url", "http://h/broken"))
	require.NoError(t, closeFn())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)

	assert.True(t, strings.HasPrefix(out, "previous run\n"))
	assert.NotContains(t, out, "http://h/fast")
	assert.Contains(t, out, "WARN - iiifload - At least a second")
	assert.Contains(t, out, "ERROR - iiifload - FAILURE")
}

func TestNewJSONLinesAreNotInterleaved(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.json")
	logger, closeFn, err := New(Config{File: path, Level: "INFO", Format: FormatJSON})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := range 50 {
				logger.Info("Request", zap.Int("client", i), zap.Int("seq", j), zap.String("pad", strings.Repeat("x", 512)))
			}
		}(i)
	}
	wg.Wait()
	require.NoError(t, closeFn())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1000)
	for _, line := range lines {
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry), line)
		assert.Equal(t, "Request", entry["msg"])
	}
}

func TestNewRejectsBadInput(t *testing.T) {
	_, _, err := New(Config{File: filepath.Join(t.TempDir(), "missing", "dir", "x.log")})
	assert.Error(t, err)

	_, _, err = New(Config{File: filepath.Join(t.TempDir(), "x.log"), Format: "xml"})
	assert.ErrorContains(t, err, "invalid format")
}

func TestDiagnostics(t *testing.T) {
	var buf bytes.Buffer
	Diagnostics(&buf).Warn("skipping url", zap.String("url", "bad"))
	assert.Contains(t, buf.String(), "skipping url")
	assert.Contains(t, buf.String(), "bad")
}
