package outcome

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		elapsed time.Duration
		err     error
		want    Outcome
	}{
		{"very slow", 25000 * time.Millisecond, nil, VerySlow},
		{"slow", 1500 * time.Millisecond, nil, Slow},
		{"success", 500 * time.Millisecond, nil, Success},
		{"exactly one second", time.Second, nil, Success},
		{"exactly twenty seconds", 20 * time.Second, nil, Slow},
		{"fast failure", 10 * time.Millisecond, errors.New("connection refused"), Failure},
		{"slow failure", 25 * time.Second, errors.New("timeout"), Failure},
		{"status failure", 100 * time.Millisecond, &StatusError{Code: 404}, Failure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.elapsed, tt.err))
		})
	}
}

func TestStatusError(t *testing.T) {
	var err error = &StatusError{Code: 503}
	assert.Equal(t, "HTTP 503 Service Unavailable", err.Error())

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 503, se.Code)
}

func TestRecorderLogsBySeverity(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	var seen []Outcome
	rec := NewRecorder(zap.New(core), &bytes.Buffer{}, ObserverFunc(func(_ Event, o Outcome) {
		seen = append(seen, o)
	}))

	base := Event{Task: "fullImage", Name: "Full/full image request", Method: "GET", URL: "http://h/x/full/full/0/default.jpg", Start: time.Now()}

	ev := base
	ev.Elapsed = 200 * time.Millisecond
	assert.Equal(t, Success, rec.Record(ev))

	ev.Elapsed = 1500 * time.Millisecond
	assert.Equal(t, Slow, rec.Record(ev))

	ev.Elapsed = 21 * time.Second
	assert.Equal(t, VerySlow, rec.Record(ev))

	ev.Elapsed = 5 * time.Millisecond
	ev.Err = errors.New("connection reset")
	assert.Equal(t, Failure, rec.Record(ev))

	entries := logs.All()
	require.Len(t, entries, 4)

	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, "Request", entries[0].Message)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, "At least a second", entries[1].Message)
	assert.Equal(t, zapcore.WarnLevel, entries[2].Level)
	assert.Equal(t, "Long Request", entries[2].Message)
	assert.Equal(t, zapcore.ErrorLevel, entries[3].Level)
	assert.Equal(t, "FAILURE", entries[3].Message)

	fields := entries[3].ContextMap()
	assert.Equal(t, "fullImage", fields["task"])
	assert.Equal(t, int64(5), fields["elapsed_ms"])
	assert.Equal(t, "connection reset", fields["error"])
	assert.Equal(t, base.URL, fields["url"])
	assert.Contains(t, fields, "start")

	assert.Equal(t, []Outcome{Success, Slow, VerySlow, Failure}, seen)
}

func TestRecorderRespectsLevelThreshold(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	rec := NewRecorder(zap.New(core), nil)

	rec.Record(Event{Elapsed: time.Millisecond})
	rec.Record(Event{Elapsed: 2 * time.Second})

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "At least a second", logs.All()[0].Message)
}

type panicWriter struct{}

func (panicWriter) Write([]byte) (int, error) { panic("disk on fire") }

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("no space left on device") }

func TestRecorderSurvivesLoggingFailures(t *testing.T) {
	enc := zapcore.NewConsoleEncoder(zap.NewProductionEncoderConfig())

	t.Run("panicking sink", func(t *testing.T) {
		var fallback bytes.Buffer
		logger := zap.New(zapcore.NewCore(enc, zapcore.AddSync(panicWriter{}), zapcore.DebugLevel))
		rec := NewRecorder(logger, &fallback)

		assert.NotPanics(t, func() {
			assert.Equal(t, Success, rec.Record(Event{URL: "http://h/a", Elapsed: time.Millisecond}))
		})
		assert.Contains(t, fallback.String(), "Logging error: disk on fire for http://h/a")
	})

	t.Run("failing sink", func(t *testing.T) {
		var fallback bytes.Buffer
		logger := zap.New(
			zapcore.NewCore(enc, zapcore.AddSync(failingWriter{}), zapcore.DebugLevel),
			zap.ErrorOutput(zapcore.AddSync(&fallback)),
		)
		rec := NewRecorder(logger, &fallback)

		assert.NotPanics(t, func() { rec.Record(Event{URL: "http://h/b"}) })
		assert.Contains(t, fallback.String(), "no space left on device")
	})

	t.Run("panicking observer", func(t *testing.T) {
		var fallback bytes.Buffer
		rec := NewRecorder(zap.NewNop(), &fallback, ObserverFunc(func(Event, Outcome) { panic("boom") }))

		assert.NotPanics(t, func() { rec.Record(Event{URL: "http://h/c"}) })
		assert.Contains(t, fallback.String(), "Observer error: boom")
	})
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "success", Success.String())
	assert.Equal(t, "slow", Slow.String())
	assert.Equal(t, "very_slow", VerySlow.String())
	assert.Equal(t, "failure", Failure.String())
	assert.Equal(t, "unknown", Outcome(99).String())
}
