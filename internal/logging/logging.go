// Package logging builds the zap loggers used for the request log and for
// operator diagnostics.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log formats
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// StdoutFile selects stdout instead of a file.
const StdoutFile = "-"

// Config configures the request log.
type Config struct {
	File     string
	Level    string
	Format   string
	Fallback io.Writer
}

// ParseLevel maps a level name to a zap level. Both the classic names
// (DEBUG, INFO, WARNING, ERROR, CRITICAL) and zap's names are accepted, case
// insensitively. Unknown names yield WarnLevel and ok=false.
func ParseLevel(name string) (zapcore.Level, bool) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBUG":
		return zapcore.DebugLevel, true
	case "INFO":
		return zapcore.InfoLevel, true
	case "WARNING", "WARN":
		return zapcore.WarnLevel, true
	case "ERROR":
		return zapcore.ErrorLevel, true
	case "CRITICAL", "FATAL":
		// Nothing is logged above error, so this silences the request log.
		return zapcore.DPanicLevel, true
	default:
		return zapcore.WarnLevel, false
	}
}

// New opens the request log in append mode. Concurrent writes are serialized
// and write errors are reported on cfg.Fallback. The returned close function
// flushes and closes the file.
func New(cfg Config) (*zap.Logger, func() error, error) {
	fallback := cfg.Fallback
	if fallback == nil {
		fallback = os.Stderr
	}

	level, _ := ParseLevel(cfg.Level)

	var (
		sink      zapcore.WriteSyncer
		closeFile = func() error { return nil }
	)
	if cfg.File == "" || cfg.File == StdoutFile {
		sink = zapcore.Lock(zapcore.AddSync(os.Stdout))
	} else {
		f, err := os.OpenFile(cfg.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("logging: open log file: %w", err)
		}
		sink = zapcore.Lock(f)
		closeFile = f.Close
	}

	encoder, err := newEncoder(cfg.Format)
	if err != nil {
		_ = closeFile()
		return nil, nil, err
	}

	logger := zap.New(
		zapcore.NewCore(encoder, sink, zap.NewAtomicLevelAt(level)),
		zap.ErrorOutput(zapcore.Lock(zapcore.AddSync(fallback))),
	).Named("iiifload")

	return logger, func() error {
		_ = logger.Sync()
		return closeFile()
	}, nil
}

func newEncoder(format string) (zapcore.Encoder, error) {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "time"
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	encCfg.ConsoleSeparator = " - "

	switch format {
	case "", FormatConsole:
		return zapcore.NewConsoleEncoder(encCfg), nil
	case FormatJSON:
		return zapcore.NewJSONEncoder(encCfg), nil
	default:
		return nil, fmt.Errorf("logging: invalid format: %s", format)
	}
}

// Diagnostics returns the operator facing logger used for start-up messages
// and skipped input.
func Diagnostics(w io.Writer) *zap.Logger {
	if w == nil {
		w = os.Stderr
	}
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
	return zap.New(zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.Lock(zapcore.AddSync(w)),
		zapcore.InfoLevel,
	))
}
