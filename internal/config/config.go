// Package config turns flags, environment variables and the optional yaml
// file into a validated run configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"iiifload/internal/logging"
	"iiifload/internal/runner"
	"iiifload/internal/scheduler"
)

// Keys shared by flags, environment variables and the config file.
const (
	KeyURLList     = "url-list"
	KeyLogFile     = "log-file"
	KeyLogLevel    = "log-level"
	KeyLogFormat   = "log-format"
	KeyTasks       = "tasks"
	KeyWeights     = "weights"
	KeyUsers       = "users"
	KeySpawnRate   = "spawn-rate"
	KeyDuration    = "duration"
	KeyMaxRequests = "max-requests"
	KeyRate        = "rate"
	KeyThinkTime   = "think-time"
	KeyTimeout     = "timeout"
	KeySeed        = "seed"
	KeyMetricsAddr = "metrics-addr"
	KeyTUI         = "tui"
	KeyCSVLog      = "csv-log"
)

// DefaultTimeout is the per request timeout when none is configured.
const DefaultTimeout = 60 * time.Second

// EnvPrefix prefixes environment variables without a legacy name.
const EnvPrefix = "IIIFLOAD"

// legacyEnv are the variable names the tool has always read.
var legacyEnv = map[string]string{
	KeyURLList:  "URL_LIST",
	KeyLogFile:  "LOG_FILE",
	KeyLogLevel: "LOG_LEVEL",
	KeyTasks:    "TASKS",
}

var (
	ErrNoURLList      = errors.New("config: --url-list is required")
	ErrInvalidWeights = errors.New("config: invalid weights")
	ErrInvalidFormat  = errors.New("config: invalid log format")
)

// Config is everything a run needs.
type Config struct {
	URLList   string
	LogFile   string
	LogLevel  string
	LogFormat string
	Tasks     []string
	Weights   map[string]int

	Users       int
	SpawnRate   float64
	Duration    time.Duration
	MaxRequests uint64
	Rate        float64
	ThinkTime   time.Duration
	Timeout     time.Duration
	Seed        int64

	MetricsAddr string
	TUI         bool
	// CSVLog receives one CSV row per request. Empty disables it.
	CSVLog      string
}

// SetDefaults registers the default of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyURLList, "")
	v.SetDefault(KeyLogFile, "default.log")
	v.SetDefault(KeyLogLevel, "WARNING")
	v.SetDefault(KeyLogFormat, logging.FormatConsole)
	v.SetDefault(KeyTasks, "")
	v.SetDefault(KeyWeights, "")
	v.SetDefault(KeyUsers, 10)
	v.SetDefault(KeySpawnRate, 1.0)
	v.SetDefault(KeyDuration, time.Duration(0))
	v.SetDefault(KeyMaxRequests, 0)
	v.SetDefault(KeyRate, 0.0)
	v.SetDefault(KeyThinkTime, time.Duration(0))
	v.SetDefault(KeyTimeout, DefaultTimeout)
	v.SetDefault(KeySeed, 0)
	v.SetDefault(KeyMetricsAddr, "")
	v.SetDefault(KeyTUI, false)
	v.SetDefault(KeyCSVLog, "")
}

// BindEnv makes v read the legacy variables and IIIFLOAD_* for the rest.
func BindEnv(v *viper.Viper) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for key, env := range legacyEnv {
		prefixed := EnvPrefix + "_" + strings.ReplaceAll(strings.ToUpper(key), "-", "_")
		if err := v.BindEnv(key, prefixed, env); err != nil {
			return fmt.Errorf("config: bind %s: %w", env, err)
		}
	}
	return nil
}

// ReadFile loads the yaml config file. An explicit path must exist; the
// default $HOME/.iiifload.yaml is optional.
func ReadFile(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("config: read %s: %w", path, err)
		}
		return nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	v.AddConfigPath(home)
	v.SetConfigType("yaml")
	v.SetConfigName(".iiifload")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("config: read config file: %w", err)
	}
	return nil
}

// Load builds a Config from v and validates it.
func Load(v *viper.Viper) (Config, error) {
	weights, err := ParseWeights(v.GetString(KeyWeights))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		URLList:     v.GetString(KeyURLList),
		LogFile:     v.GetString(KeyLogFile),
		LogLevel:    v.GetString(KeyLogLevel),
		LogFormat:   v.GetString(KeyLogFormat),
		Tasks:       scheduler.ParseList(v.GetString(KeyTasks)),
		Weights:     weights,
		Users:       v.GetInt(KeyUsers),
		SpawnRate:   v.GetFloat64(KeySpawnRate),
		Duration:    v.GetDuration(KeyDuration),
		MaxRequests: v.GetUint64(KeyMaxRequests),
		Rate:        v.GetFloat64(KeyRate),
		ThinkTime:   v.GetDuration(KeyThinkTime),
		Timeout:     v.GetDuration(KeyTimeout),
		Seed:        v.GetInt64(KeySeed),
		MetricsAddr: v.GetString(KeyMetricsAddr),
		TUI:         v.GetBool(KeyTUI),
		CSVLog:      v.GetString(KeyCSVLog),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration. An unknown log level is not an error;
// it falls back to WARNING.
func (c Config) Validate() error {
	if strings.TrimSpace(c.URLList) == "" {
		return ErrNoURLList
	}
	switch c.LogFormat {
	case "", logging.FormatConsole, logging.FormatJSON:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidFormat, c.LogFormat)
	}
	return c.Runner().Validate()
}

// Runner returns the runner settings.
func (c Config) Runner() runner.Config {
	return runner.Config{
		Users:       c.Users,
		SpawnRate:   c.SpawnRate,
		Duration:    c.Duration,
		MaxRequests: c.MaxRequests,
		Rate:        c.Rate,
		ThinkTime:   c.ThinkTime,
		Timeout:     c.Timeout,
		Seed:        c.Seed,
	}
}

// Logging returns the request log settings.
func (c Config) Logging() logging.Config {
	return logging.Config{
		File:   c.LogFile,
		Level:  c.LogLevel,
		Format: c.LogFormat,
	}
}

// Catalog narrows base to the configured tasks and applies weight overrides.
func Catalog[T any](c Config, base *scheduler.Catalog[T]) (*scheduler.Catalog[T], error) {
	catalog := base
	if len(c.Tasks) > 0 {
		restricted, err := catalog.Restrict(c.Tasks)
		if err != nil {
			return nil, fmt.Errorf("config: tasks: %w", err)
		}
		catalog = restricted
	}
	if len(c.Weights) > 0 {
		reweighted, err := catalog.Reweight(c.Weights)
		if err != nil {
			return nil, fmt.Errorf("config: weights: %w", err)
		}
		catalog = reweighted
	}
	return catalog, nil
}

// WeightsExample is the --weights value shown in help. Weights must be at
// least 1; use --tasks to leave tasks out.
const WeightsExample = "grayScale=3,fullImage=1"

// ParseWeights parses "name=n,name=n".
func ParseWeights(s string) (map[string]int, error) {
	items := scheduler.ParseList(s)
	if len(items) == 0 {
		return nil, nil
	}
	weights := make(map[string]int, len(items))
	for _, item := range items {
		name, value, ok := strings.Cut(item, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("%w: %q is not name=weight", ErrInvalidWeights, item)
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidWeights, item, err)
		}
		weights[name] = n
	}
	return weights, nil
}
