package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"iiifload/internal/outcome"
)

// Collector exports request outcomes to Prometheus. It owns its registry so
// several runs in one process do not collide.
type Collector struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	responseSize    *prometheus.HistogramVec
	activeUsers     prometheus.Gauge
	inflight        prometheus.Gauge
}

// NewCollector creates a collector with a fresh registry.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "iiifload_requests_total",
				Help: "Total number of requests issued",
			},
			[]string{"task", "name", "outcome"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "iiifload_request_duration_seconds",
				Help:    "Request duration in seconds",
				Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 20, 30, 60},
			},
			[]string{"task"},
		),
		responseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "iiifload_response_size_bytes",
				Help:    "Response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"task"},
		),
		activeUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "iiifload_users_active",
			Help: "Number of running simulated clients",
		}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "iiifload_requests_inflight",
			Help: "Number of requests waiting for a response",
		}),
	}

	c.registry.MustRegister(
		c.requestsTotal,
		c.requestDuration,
		c.responseSize,
		c.activeUsers,
		c.inflight,
		collectors.NewGoCollector(),
	)
	return c
}

// Observe implements outcome.Observer.
func (c *Collector) Observe(ev outcome.Event, o outcome.Outcome) {
	c.requestsTotal.WithLabelValues(ev.Task, ev.Name, o.String()).Inc()
	c.requestDuration.WithLabelValues(ev.Task).Observe(ev.Elapsed.Seconds())
	if ev.Bytes > 0 {
		c.responseSize.WithLabelValues(ev.Task).Observe(float64(ev.Bytes))
	}
}

// UserStarted increments the active users gauge.
func (c *Collector) UserStarted() { c.activeUsers.Inc() }

// UserStopped decrements the active users gauge.
func (c *Collector) UserStopped() { c.activeUsers.Dec() }

// RequestStarted increments the in-flight gauge.
func (c *Collector) RequestStarted() { c.inflight.Inc() }

// RequestDone decrements the in-flight gauge.
func (c *Collector) RequestDone() { c.inflight.Dec() }

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (c *Collector) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
