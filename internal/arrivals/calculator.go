// Package arrivals turns a static snapshot plus one cycle of live vehicle
// telemetry into the ranked arrival list for a single stop.
//
// The calculator is pure: given the same snapshot, vehicles and clock
// reading it produces the same output, in the same order. All network I/O
// happens before it runs.
package arrivals

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"tranzymon.opentransit.org/internal/models"
	"tranzymon.opentransit.org/internal/static"
	"tranzymon.opentransit.org/internal/utils"
)

const (
	// DepartedCutoffMinutes is the departed-trip window: a scheduled time
	// this many minutes or less in the past means the vehicle has been and
	// gone, and the trip is dropped rather than shown as "Now". Anything
	// further in the past is treated as a past-midnight rollover instead.
	DepartedCutoffMinutes = 5

	// HorizonMinutes is the look-ahead window; arrivals further out are
	// noise on a "which vehicles are approaching" display.
	HorizonMinutes = 120

	// RealtimeStaleAfter is how old vehicle telemetry may be before an
	// estimate stops being flagged as realtime. The position fields are
	// kept; only the freshness claim is dropped.
	RealtimeStaleAfter = 5 * time.Minute

	minutesPerDay = 24 * 60
)

// DataConsistencyError records a cross-reference failure inside the static
// tables, e.g. a stop_time pointing at a trip the trips table does not
// have. The offending row is skipped, never fatal to the computation.
type DataConsistencyError struct {
	TripID models.ID
	StopID models.ID
	Reason string
}

func (e *DataConsistencyError) Error() string {
	return fmt.Sprintf("inconsistent static data for trip %q at stop %q: %s", e.TripID, e.StopID, e.Reason)
}

// Calculator computes arrival estimates for one configured stop.
type Calculator struct {
	typeFilter     map[int]struct{} // GTFS route types to keep; empty keeps all
	departedCutoff int
	horizon        int
	staleAfter     time.Duration
	logger         *slog.Logger
}

// Option customizes a Calculator.
type Option func(*Calculator)

// WithVehicleTypes restricts output to the given GTFS route type codes.
func WithVehicleTypes(types []int) Option {
	return func(c *Calculator) {
		if len(types) == 0 {
			return
		}
		c.typeFilter = make(map[int]struct{}, len(types))
		for _, t := range types {
			c.typeFilter[t] = struct{}{}
		}
	}
}

// WithDepartedCutoff overrides the departed-trip window, in minutes.
func WithDepartedCutoff(minutes int) Option {
	return func(c *Calculator) { c.departedCutoff = minutes }
}

// WithHorizon overrides the look-ahead window, in minutes.
func WithHorizon(minutes int) Option {
	return func(c *Calculator) { c.horizon = minutes }
}

// WithStaleAfter overrides the telemetry freshness threshold.
func WithStaleAfter(d time.Duration) Option {
	return func(c *Calculator) { c.staleAfter = d }
}

// WithLogger attaches a logger for data-consistency diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Calculator) { c.logger = logger }
}

// NewCalculator creates a calculator with the default tunables.
func NewCalculator(opts ...Option) *Calculator {
	c := &Calculator{
		departedCutoff: DepartedCutoffMinutes,
		horizon:        HorizonMinutes,
		staleAfter:     RealtimeStaleAfter,
		logger:         slog.Default().With(slog.String("component", "arrival_calculator")),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Estimate produces the ordered arrival list for stopID at the given time.
//
// For each trip serving the stop: a scheduled time yields a minutes ETA
// (with GTFS past-midnight rollover); otherwise a matched live vehicle
// yields a stops-away count from its nearest stop on the trip's path; with
// neither signal the trip is emitted unresolved. A live match additionally
// enriches schedule-based rows with vehicle detail and the realtime flag,
// but never produces a competing stops-away value.
func (c *Calculator) Estimate(
	snap *static.Snapshot,
	vehicles []models.Vehicle,
	stopID models.ID,
	now time.Time,
) []models.ArrivalEstimate {
	candidates := c.candidateRows(snap, stopID)
	if len(candidates) == 0 {
		return nil
	}

	vehicleByTrip := indexVehiclesByTrip(vehicles)

	estimates := make([]models.ArrivalEstimate, 0, len(candidates))
	for _, st := range candidates {
		trip, ok := snap.Trips[st.TripID]
		if !ok {
			c.reportInconsistency(&DataConsistencyError{
				TripID: st.TripID, StopID: stopID, Reason: "stop_time references unknown trip",
			})
			continue
		}
		route, ok := snap.Routes[trip.RouteID]
		if !ok {
			c.reportInconsistency(&DataConsistencyError{
				TripID: trip.ID, StopID: stopID, Reason: "trip references unknown route",
			})
			continue
		}
		if !c.typeAllowed(route.Type) {
			continue
		}

		vehicle := vehicleByTrip[st.TripID]

		estimate := models.Unresolved()
		if scheduled := st.Scheduled(); scheduled != "" {
			eta, verdict := c.scheduleETA(scheduled, now)
			switch verdict {
			case schedOK:
				estimate = models.ScheduledIn(eta)
			case schedDeparted, schedBeyondHorizon:
				continue
			case schedInvalid:
				// Malformed time: fall through to the GPS path.
			}
		}

		if estimate.Kind() == models.KindUnresolved && vehicle != nil {
			if seq, ok := nearestStopSequence(snap, st.TripID, vehicle); ok {
				away := st.StopSequence - seq
				if away < 0 {
					// Vehicle already past the target stop on this trip.
					continue
				}
				estimate = models.ApproachingBy(away)
			}
		}

		estimates = append(estimates, c.assemble(route, trip, st, estimate, vehicle, now))
	}

	sortEstimates(estimates)
	return estimates
}

// candidateRows selects the stop_time row for each trip that serves the
// stop. The rows are ordered by (trip, sequence) first so that neither the
// dedupe nor the later sort depends on API response ordering; for a trip
// visiting the stop more than once (loops), the earliest visit wins.
func (c *Calculator) candidateRows(snap *static.Snapshot, stopID models.ID) []models.StopTime {
	rows := snap.StopTimesByStop[stopID]
	if len(rows) == 0 {
		return nil
	}
	ordered := make([]models.StopTime, len(rows))
	copy(ordered, rows)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].TripID != ordered[j].TripID {
			return ordered[i].TripID < ordered[j].TripID
		}
		return ordered[i].StopSequence < ordered[j].StopSequence
	})

	seen := make(map[models.ID]struct{}, len(ordered))
	out := ordered[:0]
	for _, st := range ordered {
		if _, dup := seen[st.TripID]; dup {
			continue
		}
		seen[st.TripID] = struct{}{}
		out = append(out, st)
	}
	return out
}

// indexVehiclesByTrip keeps one vehicle per trip, preferring the freshest
// telemetry. Vehicles without a trip assignment contribute nothing.
func indexVehiclesByTrip(vehicles []models.Vehicle) map[models.ID]*models.Vehicle {
	byTrip := make(map[models.ID]*models.Vehicle)
	for i := range vehicles {
		v := &vehicles[i]
		if !v.HasTrip() {
			continue
		}
		current, exists := byTrip[v.TripID]
		if !exists {
			byTrip[v.TripID] = v
			continue
		}
		curTime, curOK := current.LastUpdate()
		newTime, newOK := v.LastUpdate()
		if newOK && (!curOK || newTime.After(curTime)) {
			byTrip[v.TripID] = v
		}
	}
	return byTrip
}

type schedVerdict int

const (
	schedOK schedVerdict = iota
	schedDeparted
	schedBeyondHorizon
	schedInvalid
)

// scheduleETA computes minutes until the scheduled time-of-day. GTFS
// permits times past 24:00:00 for post-midnight service, so the scheduled
// clock is reduced mod one day before comparing; a difference more negative
// than the departed cutoff is taken to be a midnight rollover and wrapped
// forward instead.
func (c *Calculator) scheduleETA(scheduled string, now time.Time) (int, schedVerdict) {
	schedMinutes, ok := parseTimeOfDay(scheduled)
	if !ok {
		return 0, schedInvalid
	}
	schedMinutes = math.Mod(schedMinutes, minutesPerDay)
	nowMinutes := float64(now.Hour()*60+now.Minute()) + float64(now.Second())/60

	diff := schedMinutes - nowMinutes
	if diff < -float64(c.departedCutoff) {
		diff += minutesPerDay
	}
	switch {
	case diff < 0:
		return 0, schedDeparted
	case diff > float64(c.horizon):
		return 0, schedBeyondHorizon
	}
	eta := int(math.Round(diff))
	if eta < 0 {
		return 0, schedDeparted
	}
	return eta, schedOK
}

// parseTimeOfDay parses "HH:MM:SS" (or "HH:MM") into minutes since
// midnight. Hours above 23 are legal.
func parseTimeOfDay(s string) (float64, bool) {
	var h, m, sec int
	if _, err := fmt.Sscanf(s, "%d:%d:%d", &h, &m, &sec); err != nil {
		sec = 0
		if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
			return 0, false
		}
	}
	if h < 0 || m < 0 || m > 59 || sec < 0 || sec > 59 {
		return 0, false
	}
	return float64(h*60+m) + float64(sec)/60, true
}

// nearestStopSequence finds the stop on the trip's own path closest to the
// vehicle's position. A linear scan over one trip's stops is bounded and
// small; matching against the whole stop table would pick up stops the
// trip never visits.
func nearestStopSequence(snap *static.Snapshot, tripID models.ID, v *models.Vehicle) (int, bool) {
	if !v.HasPosition() {
		return 0, false
	}
	bestSeq := -1
	bestDist := math.MaxFloat64
	for _, st := range snap.StopTimesByTrip[tripID] {
		stop, ok := snap.Stops[st.StopID]
		if !ok {
			continue
		}
		d := utils.Distance(*v.Latitude, *v.Longitude, stop.Lat, stop.Lon)
		if d < bestDist {
			bestDist = d
			bestSeq = st.StopSequence
		}
	}
	if bestSeq < 0 {
		return 0, false
	}
	return bestSeq, true
}

func (c *Calculator) assemble(
	route models.Route,
	trip models.Trip,
	st models.StopTime,
	estimate models.Estimate,
	vehicle *models.Vehicle,
	now time.Time,
) models.ArrivalEstimate {
	destination := trip.Headsign
	if destination == "" {
		destination = route.LongName
	}
	ae := models.ArrivalEstimate{
		RouteID:       route.ID,
		RouteName:     route.ShortName,
		RouteType:     route.Type,
		RouteTypeName: models.RouteTypeName(route.Type),
		Destination:   destination,
		TripID:        trip.ID,
		Estimate:      estimate,
		ScheduledTime: st.Scheduled(),
	}
	if vehicle != nil {
		ae.VehicleLabel = vehicle.Label
		ae.Speed = vehicle.Speed
		ae.Latitude = vehicle.Latitude
		ae.Longitude = vehicle.Longitude
		ae.Timestamp = vehicle.Timestamp
		ae.Realtime = c.telemetryFresh(vehicle, now)
	}
	return ae
}

// telemetryFresh reports whether the vehicle's last update is recent enough
// to advertise the row as realtime. A missing or unparseable timestamp is
// trusted; the feed omits timestamps for some agencies.
func (c *Calculator) telemetryFresh(v *models.Vehicle, now time.Time) bool {
	ts, ok := v.LastUpdate()
	if !ok {
		return true
	}
	return now.Sub(ts) <= c.staleAfter
}

func (c *Calculator) typeAllowed(routeType int) bool {
	if len(c.typeFilter) == 0 {
		return true
	}
	_, ok := c.typeFilter[routeType]
	return ok
}

func (c *Calculator) reportInconsistency(err *DataConsistencyError) {
	c.logger.Warn("skipping inconsistent record",
		slog.String("trip_id", string(err.TripID)),
		slog.String("stop_id", string(err.StopID)),
		slog.String("reason", err.Reason))
}

// groupRank orders the estimate variants by urgency class: numeric ETAs
// first, then stops-away entries, then unresolved.
func groupRank(e models.Estimate) int {
	switch e.Kind() {
	case models.KindScheduled:
		return 0
	case models.KindApproaching:
		return 1
	default:
		return 2
	}
}

// sortEstimates imposes a total order so repeated calls with identical
// inputs publish identical lists and the display never flickers. Within a
// group rows sort by their own value; remaining ties fall back to route
// label and finally trip id, which is unique.
func sortEstimates(estimates []models.ArrivalEstimate) {
	sort.SliceStable(estimates, func(i, j int) bool {
		a, b := estimates[i], estimates[j]
		ra, rb := groupRank(a.Estimate), groupRank(b.Estimate)
		if ra != rb {
			return ra < rb
		}
		switch a.Estimate.Kind() {
		case models.KindScheduled:
			ma, _ := a.Estimate.Minutes()
			mb, _ := b.Estimate.Minutes()
			if ma != mb {
				return ma < mb
			}
		case models.KindApproaching:
			sa, _ := a.Estimate.Stops()
			sb, _ := b.Estimate.Stops()
			if sa != sb {
				return sa < sb
			}
		}
		if a.RouteName != b.RouteName {
			return a.RouteName < b.RouteName
		}
		return a.TripID < b.TripID
	})
}
