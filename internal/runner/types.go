package runner

import (
	"errors"
	"fmt"
	"time"

	"iiifload/internal/iiif"
)

// Config controls how many simulated clients run and for how long.
type Config struct {
	Users     int
	SpawnRate float64 // users started per second, <= 0 starts all at once

	// Stop conditions. Zero means unlimited.
	Duration    time.Duration
	MaxRequests uint64

	// Rate caps task starts per second across all clients. Zero disables it.
	Rate      float64
	ThinkTime time.Duration
	Timeout   time.Duration

	// Seed for the per-client random sources. Zero picks one from the clock.
	Seed int64
}

// ErrInvalidConfig is wrapped by Config.Validate failures.
var ErrInvalidConfig = errors.New("runner: invalid config")

// Validate checks value ranges.
func (c Config) Validate() error {
	switch {
	case c.Users < 1:
		return fmt.Errorf("%w: users must be at least 1, got %d", ErrInvalidConfig, c.Users)
	case c.SpawnRate < 0:
		return fmt.Errorf("%w: spawn rate must not be negative", ErrInvalidConfig)
	case c.Duration < 0:
		return fmt.Errorf("%w: duration must not be negative", ErrInvalidConfig)
	case c.Rate < 0:
		return fmt.Errorf("%w: rate must not be negative", ErrInvalidConfig)
	case c.ThinkTime < 0:
		return fmt.Errorf("%w: think time must not be negative", ErrInvalidConfig)
	case c.Timeout < 0:
		return fmt.Errorf("%w: timeout must not be negative", ErrInvalidConfig)
	}
	return nil
}

// Geometry turns a parsed descriptor into viewer style requests.
// iiif.Builder is the production implementation.
type Geometry interface {
	BoundedFit(info *iiif.Info, targetWidth, targetHeight int) (int, int)
	URL(info *iiif.Info, region string, hint iiif.SizeHint) string
	ZoomSequence(info *iiif.Info, x, y int) []iiif.Request
	LevelsWithTiles(info *iiif.Info) []int
	TileGrid(info *iiif.Info, sf int) [][]iiif.Request
}

// Gauges is notified when clients and requests start and finish.
// metrics.Collector implements it.
type Gauges interface {
	UserStarted()
	UserStopped()
	RequestStarted()
	RequestDone()
}

type nopGauges struct{}

func (nopGauges) UserStarted()    {}
func (nopGauges) UserStopped()    {}
func (nopGauges) RequestStarted() {}
func (nopGauges) RequestDone()    {}
