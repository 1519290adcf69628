// Package poll drives the refresh cycle for one monitored stop: on each
// timer tick it pulls (possibly cached) static tables and fresh vehicle
// telemetry, runs the arrival calculator, and publishes the result to its
// consumers. Fetch failures become state transitions, never panics, and
// the last successfully published list is retained through outages.
package poll

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"tranzymon.opentransit.org/internal/arrivals"
	"tranzymon.opentransit.org/internal/clock"
	"tranzymon.opentransit.org/internal/logging"
	"tranzymon.opentransit.org/internal/metrics"
	"tranzymon.opentransit.org/internal/models"
	"tranzymon.opentransit.org/internal/static"
	"tranzymon.opentransit.org/internal/tranzy"
)

const (
	// DefaultInterval is the poll cadence when none is configured.
	DefaultInterval = 30 * time.Second
	// MinInterval is the enforced floor; polling faster risks upstream
	// rate limiting for no display benefit.
	MinInterval = 10 * time.Second
)

// State is the coordinator's cycle state.
type State int32

const (
	Idle State = iota
	Refreshing
	Degraded
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Refreshing:
		return "refreshing"
	case Degraded:
		return "degraded"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// TableSource serves the static snapshot; static.Cache satisfies this.
type TableSource interface {
	Tables(ctx context.Context) (*static.Snapshot, error)
}

// VehicleFetcher serves live telemetry; live.Fetcher satisfies this.
type VehicleFetcher interface {
	Vehicles(ctx context.Context) ([]models.Vehicle, error)
}

// Snapshot is one published result: the full attribute set the downstream
// entity/card consumes. It is immutable once published.
type Snapshot struct {
	StopID        models.ID
	StopName      string
	AgencyID      string
	Arrivals      []models.ArrivalEstimate
	Routes        map[string]models.RouteSummary
	RouteNames    []string
	TotalVehicles int
	Degraded      bool
	UpdatedAt     time.Time
}

// StateValue returns the sensor's scalar state: minutes for the most
// urgent numeric ETA, otherwise the stop count of the most urgent
// stops-away entry, with its unit. ok is false when no arrival carries
// either value.
func (s *Snapshot) StateValue() (value int, unit string, ok bool) {
	if len(s.Arrivals) == 0 {
		return 0, "", false
	}
	first := s.Arrivals[0]
	if m, isMin := first.Estimate.Minutes(); isMin {
		return m, "min", true
	}
	if st, isStops := first.Estimate.Stops(); isStops {
		return st, "stops", true
	}
	return 0, "", false
}

// Options configures a Coordinator.
type Options struct {
	StopID     models.ID
	StopName   string
	AgencyID   string
	Tables     TableSource
	Vehicles   VehicleFetcher
	Calculator *arrivals.Calculator
	Interval   time.Duration
	// CycleTimeout bounds one fetch→compute→publish cycle so a hung
	// request cannot block the next scheduled tick indefinitely.
	CycleTimeout time.Duration
	Clock        clock.Clock
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
}

// Coordinator owns the timer and refresh cycle for a single stop.
type Coordinator struct {
	stopID       models.ID
	stopName     string
	agencyID     string
	tables       TableSource
	vehicles     VehicleFetcher
	calc         *arrivals.Calculator
	interval     time.Duration
	cycleTimeout time.Duration
	clock        clock.Clock
	logger       *slog.Logger
	metrics      *metrics.Metrics

	state    atomic.Int32
	inFlight atomic.Bool

	mu        sync.RWMutex
	latest    *Snapshot
	consumers []func(*Snapshot)

	shutdownChan chan struct{}
	stopOnce     sync.Once
	wg           sync.WaitGroup
}

// New creates a coordinator. The interval is floored at MinInterval and
// defaults to DefaultInterval when unset.
func New(opts Options) *Coordinator {
	interval := opts.Interval
	if interval == 0 {
		interval = DefaultInterval
	}
	if interval < MinInterval {
		interval = MinInterval
	}
	cycleTimeout := opts.CycleTimeout
	if cycleTimeout <= 0 {
		cycleTimeout = interval
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.RealClock{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(
		slog.String("component", "poll_coordinator"),
		slog.String("stop_id", string(opts.StopID)))
	calc := opts.Calculator
	if calc == nil {
		calc = arrivals.NewCalculator(arrivals.WithLogger(logger))
	}
	return &Coordinator{
		stopID:       opts.StopID,
		stopName:     opts.StopName,
		agencyID:     opts.AgencyID,
		tables:       opts.Tables,
		vehicles:     opts.Vehicles,
		calc:         calc,
		interval:     interval,
		cycleTimeout: cycleTimeout,
		clock:        clk,
		logger:       logger,
		metrics:      opts.Metrics,
		shutdownChan: make(chan struct{}),
	}
}

// Interval returns the effective poll interval after flooring.
func (c *Coordinator) Interval() time.Duration { return c.interval }

// State returns the current cycle state.
func (c *Coordinator) State() State { return State(c.state.Load()) }

// Latest returns the most recently published snapshot, or nil before the
// first successful cycle. The snapshot is shared and must not be mutated.
func (c *Coordinator) Latest() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.latest
}

// Subscribe registers a consumer called after every publish. Consumers run
// on the coordinator's goroutine and should hand off quickly.
func (c *Coordinator) Subscribe(fn func(*Snapshot)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.consumers = append(c.consumers, fn)
}

// Start launches the refresh loop: one immediate cycle, then one per tick.
func (c *Coordinator) Start() {
	c.wg.Add(1)
	go c.run()
}

// Stop tears the coordinator down. In-flight work is abandoned and will
// not publish after Stop returns. Safe to call multiple times.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() {
		close(c.shutdownChan)
	})
	c.wg.Wait()
}

func (c *Coordinator) run() {
	defer c.wg.Done()

	c.RefreshNow(context.Background())

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.RefreshNow(context.Background())
		case <-c.shutdownChan:
			logging.LogOperation(c.logger, "shutting_down_poll_coordinator")
			return
		}
	}
}

// RefreshNow performs one guarded refresh cycle synchronously and returns
// the resulting state. A cycle already in flight makes this a no-op
// (returning the current state): the overlap guard prevents concurrent
// duplicate requests against the upstream API.
func (c *Coordinator) RefreshNow(parent context.Context) State {
	if !c.inFlight.CompareAndSwap(false, true) {
		c.logger.Debug("previous refresh cycle still in flight, skipping tick")
		return c.State()
	}
	defer c.inFlight.Store(false)

	ctx, cancel := context.WithTimeout(parent, c.cycleTimeout)
	defer cancel()
	ctx = logging.WithLogger(ctx, c.logger)

	start := c.clock.Now()
	state := c.refresh(ctx)
	c.setState(state)
	if c.metrics != nil {
		c.metrics.ObserveCycle(string(c.stopID), stateOutcome(state), c.clock.Now().Sub(start))
	}
	return state
}

func stateOutcome(s State) string {
	switch s {
	case Degraded:
		return "degraded"
	case Failed:
		return "failed"
	default:
		return "ok"
	}
}

func (c *Coordinator) refresh(ctx context.Context) State {
	c.setState(Refreshing)

	snap, staticErr := c.tables.Tables(ctx)
	if snap == nil {
		// Nothing to estimate from at all.
		c.recordFailure("static", staticErr)
		return Failed
	}
	if c.metrics != nil {
		c.metrics.SetSnapshotAge(snap.Age(c.clock.Now()))
	}
	degraded := errors.Is(staticErr, static.ErrStaleSnapshot)
	if degraded {
		c.recordFailure("static", staticErr)
	}

	vehicles, liveErr := c.vehicles.Vehicles(ctx)
	if liveErr != nil {
		// The live path failing outright blacks out this cycle; consumers
		// keep the last-known-good list.
		c.recordFailure("vehicles", liveErr)
		return Failed
	}

	now := c.clock.Now()
	estimates := c.calc.Estimate(snap, vehicles, c.stopID, now)
	routes, routeNames := arrivals.Summarize(estimates)

	stopName := c.stopName
	if stopName == "" {
		if stop, ok := snap.StopByID(c.stopID); ok {
			stopName = stop.Name
		}
	}

	published := &Snapshot{
		StopID:        c.stopID,
		StopName:      stopName,
		AgencyID:      c.agencyID,
		Arrivals:      estimates,
		Routes:        routes,
		RouteNames:    routeNames,
		TotalVehicles: len(estimates),
		Degraded:      degraded,
		UpdatedAt:     now,
	}

	// A teardown racing the cycle must not publish a late result.
	select {
	case <-c.shutdownChan:
		return c.State()
	default:
	}

	c.publish(published)
	if c.metrics != nil {
		c.metrics.SetLastSuccess(string(c.stopID), now)
	}

	if degraded {
		logging.LogOperation(c.logger, "published_degraded_arrivals",
			slog.Int("arrivals", len(estimates)),
			slog.Duration("static_age", snap.Age(now)))
		return Degraded
	}
	c.logger.Debug("published arrivals", slog.Int("arrivals", len(estimates)))
	return Idle
}

func (c *Coordinator) publish(snapshot *Snapshot) {
	c.mu.Lock()
	c.latest = snapshot
	consumers := make([]func(*Snapshot), len(c.consumers))
	copy(consumers, c.consumers)
	c.mu.Unlock()

	for _, consumer := range consumers {
		consumer(snapshot)
	}
}

func (c *Coordinator) setState(s State) {
	c.state.Store(int32(s))
	if c.metrics != nil {
		c.metrics.SetState(string(c.stopID), int(s))
	}
}

func (c *Coordinator) recordFailure(source string, err error) {
	kind := tranzy.ErrorKind(err)
	if c.metrics != nil {
		c.metrics.RecordFetchError(source, kind)
	}
	var authErr *tranzy.AuthError
	if errors.As(err, &authErr) {
		// Distinguishable from a network blip: waiting will not fix a bad
		// key/agency pairing.
		logging.LogError(c.logger, "upstream rejected credentials, reconfiguration required", err,
			slog.String("source", source))
		return
	}
	logging.LogError(c.logger, "fetch failed, retrying on next tick", err,
		slog.String("source", source),
		slog.String("kind", kind))
}
