package runner

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"iiifload/internal/corpus"
	"iiifload/internal/outcome"
	"iiifload/internal/scheduler"
	"iiifload/internal/stats"
)

// StatsSnapshot is sent over the channel
type StatsSnapshot struct {
	Requests uint64
	Success  uint64
	Slow     uint64
	VerySlow uint64
	Fail     uint64
	Bytes    uint64
	Inflight int64
	Users    int64

	// Pre-calculated percentiles for the UI (cheap copy)
	P50ServiceMs float64
	P90ServiceMs float64
	P99ServiceMs float64
	MaxServiceMs int64

	Elapsed time.Duration
}

// StatsUpdateChan is the channel type
type StatsUpdateChan chan StatsSnapshot

// Deps are the collaborators shared by every simulated client.
type Deps struct {
	Corpus   *corpus.Corpus
	Catalog  *scheduler.Catalog[TaskFunc]
	Geometry Geometry
	Recorder *outcome.Recorder
	// Stats must also be registered as an observer of Recorder.
	Stats  *stats.Stats
	Gauges Gauges
	Logger *zap.Logger
}

var errMissingDeps = errors.New("runner: corpus, catalog, geometry, recorder and stats are required")

type Runner struct {
	ID    string
	Seed  int64
	Cfg   Config
	Stats *stats.Stats

	corpus   *corpus.Corpus
	catalog  *scheduler.Catalog[TaskFunc]
	geometry Geometry
	recorder *outcome.Recorder
	gauges   Gauges
	logger   *zap.Logger

	http    *http.Client
	limiter *rate.Limiter

	inflight int64
	users    int64
	issued   uint64
	// UnixNano of the start and end of Run, zero until set.
	started  atomic.Int64
	finished atomic.Int64

	stopMu sync.Mutex
	stop   context.CancelFunc

	// Event Channel
	Updates StatsUpdateChan
}

func NewRunner(cfg Config, deps Deps, updates StatsUpdateChan) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Corpus == nil || deps.Catalog == nil || deps.Geometry == nil || deps.Recorder == nil || deps.Stats == nil {
		return nil, errMissingDeps
	}
	if deps.Gauges == nil {
		deps.Gauges = nopGauges{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConns = 2000
	t.MaxConnsPerHost = 2000
	t.MaxIdleConnsPerHost = 2000
	t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}

	client := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: t,
	}

	if updates == nil {
		// Avoid nil panics if not provided
		updates = make(StatsUpdateChan, 10)
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	r := &Runner{
		ID:       uuid.NewString(),
		Seed:     seed,
		Cfg:      cfg,
		Stats:    deps.Stats,
		corpus:   deps.Corpus,
		catalog:  deps.Catalog,
		geometry: deps.Geometry,
		recorder: deps.Recorder,
		gauges:   deps.Gauges,
		logger:   deps.Logger,
		http:     client,
		Updates:  updates,
	}
	if cfg.Rate > 0 {
		r.limiter = rate.NewLimiter(rate.Limit(cfg.Rate), max(1, int(cfg.Rate)))
	}
	return r, nil
}

// StartTickLoop starts a goroutine that pushes stats updates
func (r *Runner) StartTickLoop(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.sendUpdate()
			}
		}
	}()
}

// Snapshot returns the current counters.
func (r *Runner) Snapshot() StatsSnapshot {
	s := r.Stats
	snap := StatsSnapshot{
		Requests:     atomic.LoadUint64(&s.Requests),
		Success:      atomic.LoadUint64(&s.Success),
		Slow:         atomic.LoadUint64(&s.Slow),
		VerySlow:     atomic.LoadUint64(&s.VerySlow),
		Fail:         atomic.LoadUint64(&s.Fail),
		Bytes:        atomic.LoadUint64(&s.Bytes),
		Inflight:     atomic.LoadInt64(&r.inflight),
		Users:        atomic.LoadInt64(&r.users),
		P50ServiceMs: s.GetP50Service(),
		P90ServiceMs: s.GetP90Service(),
		P99ServiceMs: s.GetP99Service(),
		MaxServiceMs: s.ServiceTime.Max() / 1000,
	}
	snap.Elapsed = r.Elapsed()
	return snap
}

// Elapsed is the time since Run started, or the length of the run once it
// has finished.
func (r *Runner) Elapsed() time.Duration {
	start := r.started.Load()
	if start == 0 {
		return 0
	}
	end := r.finished.Load()
	if end == 0 {
		end = time.Now().UnixNano()
	}
	return time.Duration(end - start)
}

func (r *Runner) sendUpdate() {
	// Non-blocking send
	select {
	case r.Updates <- r.Snapshot():
	default:
		// Drop update if channel full, UI acts as backpressure
	}
}

// Run starts the simulated clients and blocks until ctx is done, the
// duration elapsed or the request budget is spent.
func (r *Runner) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if r.Cfg.Duration > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, r.Cfg.Duration)
		defer cancelTimeout()
	}
	r.stopMu.Lock()
	r.stop = cancel
	r.stopMu.Unlock()

	r.finished.Store(0)
	r.started.Store(time.Now().UnixNano())
	r.logger.Info("starting run",
		zap.String("run", r.ID),
		zap.Int("users", r.Cfg.Users),
		zap.Float64("spawn_rate", r.Cfg.SpawnRate),
		zap.Int64("seed", r.Seed),
		zap.Strings("tasks", r.catalog.Names()),
	)

	// Start Tick Loop for UI
	r.StartTickLoop(ctx, 200*time.Millisecond)

	r.runUsers(ctx)
	r.finished.Store(time.Now().UnixNano())
	r.sendUpdate()

	r.logger.Info("run finished",
		zap.String("run", r.ID),
		zap.Uint64("requests", atomic.LoadUint64(&r.Stats.Requests)),
		zap.Duration("elapsed", r.Elapsed()),
	)
}

// Stop ends a running Run.
func (r *Runner) Stop() {
	r.stopMu.Lock()
	defer r.stopMu.Unlock()
	if r.stop != nil {
		r.stop()
	}
}

func (r *Runner) runUsers(ctx context.Context) {
	var wg sync.WaitGroup
	defer wg.Wait()

	var spawnEvery time.Duration
	if r.Cfg.SpawnRate > 0 {
		spawnEvery = time.Duration(float64(time.Second) / r.Cfg.SpawnRate)
	}

	for i := 0; i < r.Cfg.Users; i++ {
		if i > 0 && spawnEvery > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(spawnEvery):
			}
		}
		if ctx.Err() != nil {
			return
		}

		c := &client{
			id:  uuid.NewString(),
			rng: clientRNG(r.Seed, i),
			r:   r,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.runClient(ctx, c)
		}()
	}
}

func (r *Runner) runClient(ctx context.Context, c *client) {
	atomic.AddInt64(&r.users, 1)
	r.gauges.UserStarted()
	defer func() {
		atomic.AddInt64(&r.users, -1)
		r.gauges.UserStopped()
	}()

	for ctx.Err() == nil {
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return
			}
		}

		task := r.catalog.Pick(c.rng)
		c.task = task.Name
		task.Value(ctx, c)

		if r.Cfg.ThinkTime > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(r.Cfg.ThinkTime):
			}
		}
	}
}

func (r *Runner) record(ev outcome.Event) outcome.Outcome {
	o := r.recorder.Record(ev)
	n := atomic.AddUint64(&r.issued, 1)
	if r.Cfg.MaxRequests > 0 && n >= r.Cfg.MaxRequests {
		r.Stop()
	}
	return o
}

func (r *Runner) requestStarted() {
	atomic.AddInt64(&r.inflight, 1)
	r.gauges.RequestStarted()
}

func (r *Runner) requestDone() {
	atomic.AddInt64(&r.inflight, -1)
	r.gauges.RequestDone()
}

func (r *Runner) GetInflight() int64 {
	return atomic.LoadInt64(&r.inflight)
}

// Issued returns the number of recorded requests.
func (r *Runner) Issued() uint64 {
	return atomic.LoadUint64(&r.issued)
}
