package outcome

import (
	"fmt"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"
)

// Observer receives every classified event after it has been logged.
type Observer interface {
	Observe(ev Event, o Outcome)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ev Event, o Outcome)

func (f ObserverFunc) Observe(ev Event, o Outcome) { f(ev, o) }

// Recorder classifies events, logs them at the matching severity and fans
// them out to observers. It is safe for concurrent use.
type Recorder struct {
	logger    *zap.Logger
	observers []Observer

	fallbackMu sync.Mutex
	fallback   io.Writer
}

// NewRecorder creates a Recorder. Problems while logging are reported on
// fallback, os.Stderr when nil.
func NewRecorder(logger *zap.Logger, fallback io.Writer, observers ...Observer) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if fallback == nil {
		fallback = os.Stderr
	}
	return &Recorder{
		logger:    logger,
		observers: observers,
		fallback:  fallback,
	}
}

// Record classifies ev and returns its outcome. It never panics.
func (r *Recorder) Record(ev Event) Outcome {
	o := Classify(ev.Elapsed, ev.Err)
	r.log(ev, o)
	for _, obs := range r.observers {
		r.notify(obs, ev, o)
	}
	return o
}

func (r *Recorder) log(ev Event, o Outcome) {
	defer func() {
		if p := recover(); p != nil {
			r.reportf("Logging error: %v for %s\n", p, ev.URL)
		}
	}()

	fields := []zap.Field{
		zap.String("task", ev.Task),
		zap.String("name", ev.Name),
		zap.Int64("elapsed_ms", ev.Elapsed.Milliseconds()),
		zap.String("url", ev.URL),
	}

	switch o {
	case Failure:
		r.logger.Error("FAILURE", append(fields,
			zap.String("method", ev.Method),
			zap.Error(ev.Err),
			zap.Time("start", ev.Start),
			zap.String("client", ev.Client),
		)...)
	case VerySlow:
		r.logger.Warn("Long Request", append(fields, zap.Time("start", ev.Start))...)
	case Slow:
		r.logger.Warn("At least a second", append(fields, zap.Time("start", ev.Start))...)
	default:
		r.logger.Info("Request", append(fields,
			zap.String("method", ev.Method),
			zap.Int("status", ev.Status),
			zap.Int64("bytes", ev.Bytes),
		)...)
	}
}

func (r *Recorder) notify(obs Observer, ev Event, o Outcome) {
	defer func() {
		if p := recover(); p != nil {
			r.reportf("Observer error: %v for %s\n", p, ev.URL)
		}
	}()
	obs.Observe(ev, o)
}

func (r *Recorder) reportf(format string, args ...any) {
	r.fallbackMu.Lock()
	defer r.fallbackMu.Unlock()
	_, _ = fmt.Fprintf(r.fallback, format, args...)
}

// Sync flushes the underlying logger.
func (r *Recorder) Sync() error {
	return r.logger.Sync()
}
