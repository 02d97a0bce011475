package stats

import (
	"sort"
	"sync"
	"sync/atomic"

	"iiifload/internal/outcome"
)

// Stats holds real-time aggregated metrics. It is an outcome.Observer.
type Stats struct {
	Requests uint64
	Success  uint64
	Slow     uint64
	VerySlow uint64
	Fail     uint64
	Bytes    uint64

	// Latency histogram (microseconds)
	ServiceTime *SafeHistogram

	mu     sync.Mutex
	tasks  map[string]*taskStats
	errors map[string]uint64
}

type taskStats struct {
	requests uint64
	fail     uint64
	slow     uint64
	latency  *SafeHistogram
}

// TaskSnapshot is a point in time view of one task's requests.
type TaskSnapshot struct {
	Task     string
	Requests uint64
	Fail     uint64
	Slow     uint64
	P50Ms    float64
	P99Ms    float64
	MaxMs    float64
}

func NewStats() *Stats {
	return &Stats{
		ServiceTime: NewSafeHistogram(),
		tasks:       make(map[string]*taskStats),
		errors:      make(map[string]uint64),
	}
}

// Observe implements outcome.Observer.
func (s *Stats) Observe(ev outcome.Event, o outcome.Outcome) {
	atomic.AddUint64(&s.Requests, 1)
	switch o {
	case outcome.Success:
		atomic.AddUint64(&s.Success, 1)
	case outcome.Slow:
		atomic.AddUint64(&s.Slow, 1)
	case outcome.VerySlow:
		atomic.AddUint64(&s.VerySlow, 1)
	case outcome.Failure:
		atomic.AddUint64(&s.Fail, 1)
	}
	if ev.Bytes > 0 {
		atomic.AddUint64(&s.Bytes, uint64(ev.Bytes))
	}
	if o != outcome.Failure {
		_ = s.ServiceTime.RecordDuration(ev.Elapsed)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ts, ok := s.tasks[ev.Task]
	if !ok {
		ts = &taskStats{latency: NewSafeHistogram()}
		s.tasks[ev.Task] = ts
	}
	ts.requests++
	switch o {
	case outcome.Failure:
		ts.fail++
		if ev.Err != nil {
			s.errors[ev.Err.Error()]++
		}
	case outcome.Slow, outcome.VerySlow:
		ts.slow++
	}
	_ = ts.latency.RecordDuration(ev.Elapsed)
}

// Count returns the number of requests classified as o.
func (s *Stats) Count(o outcome.Outcome) uint64 {
	switch o {
	case outcome.Success:
		return atomic.LoadUint64(&s.Success)
	case outcome.Slow:
		return atomic.LoadUint64(&s.Slow)
	case outcome.VerySlow:
		return atomic.LoadUint64(&s.VerySlow)
	case outcome.Failure:
		return atomic.LoadUint64(&s.Fail)
	}
	return 0
}

func (s *Stats) ErrorRate() float64 {
	reqs := atomic.LoadUint64(&s.Requests)
	if reqs == 0 {
		return 0
	}
	fails := atomic.LoadUint64(&s.Fail)
	return (float64(fails) / float64(reqs)) * 100
}

func (s *Stats) GetP50Service() float64 {
	return float64(s.ServiceTime.ValueAtQuantile(50)) / 1000.0 // ms
}

func (s *Stats) GetP90Service() float64 {
	return float64(s.ServiceTime.ValueAtQuantile(90)) / 1000.0
}

func (s *Stats) GetP95Service() float64 {
	return float64(s.ServiceTime.ValueAtQuantile(95)) / 1000.0
}

func (s *Stats) GetP99Service() float64 {
	return float64(s.ServiceTime.ValueAtQuantile(99)) / 1000.0
}

// GetErrorCounts returns failures grouped by error message.
func (s *Stats) GetErrorCounts() map[string]uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]uint64, len(s.errors))
	for k, v := range s.errors {
		out[k] = v
	}
	return out
}

// Tasks returns per-task snapshots sorted by task name.
func (s *Stats) Tasks() []TaskSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]TaskSnapshot, 0, len(s.tasks))
	for name, ts := range s.tasks {
		out = append(out, TaskSnapshot{
			Task:     name,
			Requests: ts.requests,
			Fail:     ts.fail,
			Slow:     ts.slow,
			P50Ms:    float64(ts.latency.ValueAtQuantile(50)) / 1000.0,
			P99Ms:    float64(ts.latency.ValueAtQuantile(99)) / 1000.0,
			MaxMs:    float64(ts.latency.Max()) / 1000.0,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Task < out[j].Task })
	return out
}
