// Package outcome classifies completed requests and writes one log line per request.
package outcome

import (
	"fmt"
	"net/http"
	"time"
)

// Outcome is the severity class of a completed request.
type Outcome int

const (
	Success Outcome = iota
	Slow
	VerySlow
	Failure
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Slow:
		return "slow"
	case VerySlow:
		return "very_slow"
	case Failure:
		return "failure"
	default:
		return "unknown"
	}
}

// All lists every outcome in severity order.
var All = []Outcome{Success, Slow, VerySlow, Failure}

const (
	// SlowThreshold is the response time above which a request is Slow.
	SlowThreshold = time.Second
	// VerySlowThreshold is the response time above which a request is VerySlow.
	VerySlowThreshold = 20 * time.Second
)

// Classify maps a finished request to its outcome. Any error wins over timing.
func Classify(elapsed time.Duration, err error) Outcome {
	switch {
	case err != nil:
		return Failure
	case elapsed > VerySlowThreshold:
		return VerySlow
	case elapsed > SlowThreshold:
		return Slow
	default:
		return Success
	}
}

// StatusError marks a response whose status code is treated as a protocol failure.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d %s", e.Code, http.StatusText(e.Code))
}

// Event describes one completed HTTP request.
type Event struct {
	Task    string
	Name    string
	Method  string
	URL     string
	Client  string
	Start   time.Time
	Elapsed time.Duration
	Status  int
	Bytes   int64
	Err     error
}
