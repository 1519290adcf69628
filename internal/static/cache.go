// Package static caches the slow-changing schedule tables (agencies,
// routes, stops, trips, stop_times) as one cross-referential snapshot.
// The tables are fetched and expire together: mixing a fresh trips table
// with a stale stop_times table would break the cross references, so a
// fetch either fully replaces the snapshot or is discarded.
package static

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"tranzymon.opentransit.org/internal/clock"
	"tranzymon.opentransit.org/internal/logging"
	"tranzymon.opentransit.org/internal/models"
)

// DefaultTTL is how long a snapshot is trusted before an opportunistic
// refetch. Schedule data changes rarely; hours-stale tables are fine.
const DefaultTTL = 4 * time.Hour

// ErrStaleSnapshot signals that tables were served from the previous
// snapshot because the refresh failed. Callers keep operating on the stale
// data and surface the condition as Degraded rather than aborting.
var ErrStaleSnapshot = errors.New("static refresh failed, serving previous snapshot")

// Fetcher is the upstream source of the five static tables.
type Fetcher interface {
	Agencies(ctx context.Context) ([]models.Agency, error)
	Routes(ctx context.Context) ([]models.Route, error)
	Stops(ctx context.Context) ([]models.Stop, error)
	Trips(ctx context.Context) ([]models.Trip, error)
	StopTimes(ctx context.Context) ([]models.StopTime, error)
}

// Snapshot is one internally consistent view of the static tables, indexed
// for the lookups the calculator makes. Snapshots are immutable once built:
// the cache replaces them wholesale, never mutates in place, so a reader
// always sees a complete table set.
type Snapshot struct {
	Agencies        []models.Agency
	Routes          map[models.ID]models.Route
	Stops           map[models.ID]models.Stop
	Trips           map[models.ID]models.Trip
	StopTimesByTrip map[models.ID][]models.StopTime // sequence-sorted per trip
	StopTimesByStop map[models.ID][]models.StopTime
	FetchedAt       time.Time
}

// Age returns how old the snapshot is.
func (s *Snapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.FetchedAt)
}

// StopByID looks up a stop, reporting whether it exists in the snapshot.
// Used to validate a configured stop id before starting a monitor.
func (s *Snapshot) StopByID(id models.ID) (models.Stop, bool) {
	stop, ok := s.Stops[id]
	return stop, ok
}

func buildSnapshot(
	agencies []models.Agency,
	routes []models.Route,
	stops []models.Stop,
	trips []models.Trip,
	stopTimes []models.StopTime,
	fetchedAt time.Time,
) *Snapshot {
	snap := &Snapshot{
		Agencies:        agencies,
		Routes:          make(map[models.ID]models.Route, len(routes)),
		Stops:           make(map[models.ID]models.Stop, len(stops)),
		Trips:           make(map[models.ID]models.Trip, len(trips)),
		StopTimesByTrip: make(map[models.ID][]models.StopTime),
		StopTimesByStop: make(map[models.ID][]models.StopTime),
		FetchedAt:       fetchedAt,
	}
	for _, r := range routes {
		snap.Routes[r.ID] = r
	}
	for _, s := range stops {
		snap.Stops[s.ID] = s
	}
	for _, t := range trips {
		snap.Trips[t.ID] = t
	}
	for _, st := range stopTimes {
		snap.StopTimesByTrip[st.TripID] = append(snap.StopTimesByTrip[st.TripID], st)
		snap.StopTimesByStop[st.StopID] = append(snap.StopTimesByStop[st.StopID], st)
	}
	// Stops-away arithmetic depends on each trip's path being in sequence
	// order; the API does not guarantee response ordering.
	for tripID := range snap.StopTimesByTrip {
		path := snap.StopTimesByTrip[tripID]
		sort.SliceStable(path, func(i, j int) bool {
			return path[i].StopSequence < path[j].StopSequence
		})
	}
	return snap
}

// Cache owns the current snapshot and its TTL. Concurrent readers are
// served the previous snapshot while a refresh is in progress; the new one
// is swapped in atomically on success.
type Cache struct {
	fetcher Fetcher
	ttl     time.Duration
	clock   clock.Clock
	logger  *slog.Logger

	mu   sync.RWMutex
	snap *Snapshot

	// refreshMu serializes refreshes so two monitors sharing this cache
	// cannot trigger duplicate fetch storms at TTL expiry.
	refreshMu sync.Mutex
}

// CacheOption customizes a Cache.
type CacheOption func(*Cache)

// WithTTL overrides the default snapshot time-to-live.
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock injects a clock for tests.
func WithClock(clk clock.Clock) CacheOption {
	return func(c *Cache) { c.clock = clk }
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) CacheOption {
	return func(c *Cache) { c.logger = logger }
}

// NewCache creates a cache over the given fetcher.
func NewCache(fetcher Fetcher, opts ...CacheOption) *Cache {
	c := &Cache{
		fetcher: fetcher,
		ttl:     DefaultTTL,
		clock:   clock.RealClock{},
		logger:  slog.Default().With(slog.String("component", "static_cache")),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Tables returns the current snapshot, refreshing it first when empty or
// older than the TTL.
//
// On refresh failure with a previous snapshot, that snapshot is returned
// together with an error wrapping ErrStaleSnapshot: the caller logs and
// keeps going on stale data. With no previous snapshot the failure is hard;
// there is nothing to estimate from.
func (c *Cache) Tables(ctx context.Context) (*Snapshot, error) {
	if snap := c.current(); snap != nil && snap.Age(c.clock.Now()) < c.ttl {
		return snap, nil
	}

	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	// Another caller may have refreshed while we waited for the lock.
	if snap := c.current(); snap != nil && snap.Age(c.clock.Now()) < c.ttl {
		return snap, nil
	}

	fresh, err := c.fetchAll(ctx)
	if err != nil {
		if prev := c.current(); prev != nil {
			logging.LogError(c.logger, "static refresh failed, keeping previous snapshot", err,
				slog.Duration("snapshot_age", prev.Age(c.clock.Now())))
			return prev, fmt.Errorf("%w: %w", ErrStaleSnapshot, err)
		}
		return nil, err
	}

	c.mu.Lock()
	c.snap = fresh
	c.mu.Unlock()

	logging.LogOperation(c.logger, "static_snapshot_refreshed",
		slog.Int("routes", len(fresh.Routes)),
		slog.Int("stops", len(fresh.Stops)),
		slog.Int("trips", len(fresh.Trips)))
	return fresh, nil
}

// Invalidate forces a refetch on the next Tables call.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snap != nil {
		c.snap.FetchedAt = time.Time{}
	}
}

// Current returns the snapshot without triggering a refresh. May be nil.
func (c *Cache) Current() *Snapshot {
	return c.current()
}

func (c *Cache) current() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

// fetchAll retrieves the five tables in parallel. Any failure discards the
// whole batch so the snapshot is never partially overwritten.
func (c *Cache) fetchAll(ctx context.Context) (*Snapshot, error) {
	var (
		wg        sync.WaitGroup
		agencies  []models.Agency
		routes    []models.Route
		stops     []models.Stop
		trips     []models.Trip
		stopTimes []models.StopTime

		agencyErr, routeErr, stopErr, tripErr, stopTimeErr error
	)

	wg.Add(5)
	go func() {
		defer wg.Done()
		agencies, agencyErr = c.fetcher.Agencies(ctx)
	}()
	go func() {
		defer wg.Done()
		routes, routeErr = c.fetcher.Routes(ctx)
	}()
	go func() {
		defer wg.Done()
		stops, stopErr = c.fetcher.Stops(ctx)
	}()
	go func() {
		defer wg.Done()
		trips, tripErr = c.fetcher.Trips(ctx)
	}()
	go func() {
		defer wg.Done()
		stopTimes, stopTimeErr = c.fetcher.StopTimes(ctx)
	}()
	wg.Wait()

	for _, err := range []error{agencyErr, routeErr, stopErr, tripErr, stopTimeErr} {
		if err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return buildSnapshot(agencies, routes, stops, trips, stopTimes, c.clock.Now()), nil
}
