package arrivals

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tranzymon.opentransit.org/internal/models"
	"tranzymon.opentransit.org/internal/static"
)

const targetStop = models.ID("s_target")

// buildSnapshot indexes the given tables the way the cache does, so the
// calculator sees realistic input.
func buildSnapshot(routes []models.Route, trips []models.Trip, stops []models.Stop, stopTimes []models.StopTime) *static.Snapshot {
	snap := &static.Snapshot{
		Routes:          make(map[models.ID]models.Route),
		Stops:           make(map[models.ID]models.Stop),
		Trips:           make(map[models.ID]models.Trip),
		StopTimesByTrip: make(map[models.ID][]models.StopTime),
		StopTimesByStop: make(map[models.ID][]models.StopTime),
		FetchedAt:       time.Date(2026, 8, 27, 8, 0, 0, 0, time.UTC),
	}
	for _, r := range routes {
		snap.Routes[r.ID] = r
	}
	for _, s := range stops {
		snap.Stops[s.ID] = s
	}
	for _, tr := range trips {
		snap.Trips[tr.ID] = tr
	}
	for _, st := range stopTimes {
		snap.StopTimesByTrip[st.TripID] = append(snap.StopTimesByTrip[st.TripID], st)
		snap.StopTimesByStop[st.StopID] = append(snap.StopTimesByStop[st.StopID], st)
	}
	for tripID := range snap.StopTimesByTrip {
		path := snap.StopTimesByTrip[tripID]
		sort.SliceStable(path, func(i, j int) bool {
			return path[i].StopSequence < path[j].StopSequence
		})
	}
	return snap
}

func busRoute(id models.ID, shortName string) models.Route {
	return models.Route{ID: id, ShortName: shortName, LongName: shortName + " terminus", Type: 3}
}

func ptr[T any](v T) *T { return &v }

func TestEstimateFromSchedule(t *testing.T) {
	snap := buildSnapshot(
		[]models.Route{busRoute("r1", "24B")},
		[]models.Trip{{ID: "t1", RouteID: "r1", Headsign: "Bucium"}},
		nil,
		[]models.StopTime{{TripID: "t1", StopID: targetStop, StopSequence: 4, ArrivalTime: "08:45:00"}},
	)
	now := time.Date(2026, 8, 27, 8, 42, 0, 0, time.UTC)

	estimates := NewCalculator().Estimate(snap, nil, targetStop, now)
	require.Len(t, estimates, 1)

	est := estimates[0]
	minutes, ok := est.Estimate.Minutes()
	require.True(t, ok)
	assert.Equal(t, 3, minutes)
	_, hasStops := est.Estimate.Stops()
	assert.False(t, hasStops)
	assert.Equal(t, models.BandSoon, est.Estimate.Band())
	assert.Equal(t, "24B", est.RouteName)
	assert.Equal(t, "Bucium", est.Destination)
	assert.False(t, est.Realtime)
}

func TestEstimateFallsBackToStopsAway(t *testing.T) {
	stops := []models.Stop{
		{ID: "s1", Lat: 46.7600, Lon: 23.5800},
		{ID: "s2", Lat: 46.7650, Lon: 23.5850},
		{ID: "s3", Lat: 46.7700, Lon: 23.5900},
		{ID: targetStop, Lat: 46.7750, Lon: 23.5950},
	}
	snap := buildSnapshot(
		[]models.Route{busRoute("r1", "24B")},
		[]models.Trip{{ID: "t1", RouteID: "r1"}},
		stops,
		[]models.StopTime{
			{TripID: "t1", StopID: "s1", StopSequence: 1},
			{TripID: "t1", StopID: "s2", StopSequence: 2},
			{TripID: "t1", StopID: "s3", StopSequence: 3},
			{TripID: "t1", StopID: targetStop, StopSequence: 4},
		},
	)
	// Vehicle sitting on s1, three stops before the target.
	vehicles := []models.Vehicle{{
		ID: "v1", TripID: "t1", Label: "CJ-401",
		Latitude: ptr(46.7601), Longitude: ptr(23.5801),
	}}
	now := time.Date(2026, 8, 27, 8, 42, 0, 0, time.UTC)

	estimates := NewCalculator().Estimate(snap, vehicles, targetStop, now)
	require.Len(t, estimates, 1)

	est := estimates[0]
	stopsAway, ok := est.Estimate.Stops()
	require.True(t, ok)
	assert.Equal(t, 3, stopsAway)
	_, hasMinutes := est.Estimate.Minutes()
	assert.False(t, hasMinutes)
	assert.Equal(t, models.BandSoon, est.Estimate.Band())
	assert.Equal(t, "CJ-401", est.VehicleLabel)
	assert.True(t, est.Realtime)
}

func TestEstimatePastMidnightRollover(t *testing.T) {
	tests := []struct {
		name      string
		scheduled string
	}{
		{"gtfs extended hours", "24:10:00"},
		{"already wrapped", "00:10:00"},
	}

	now := time.Date(2026, 8, 27, 23, 58, 0, 0, time.UTC)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := buildSnapshot(
				[]models.Route{busRoute("r1", "N1")},
				[]models.Trip{{ID: "t1", RouteID: "r1"}},
				nil,
				[]models.StopTime{{TripID: "t1", StopID: targetStop, StopSequence: 1, ArrivalTime: tt.scheduled}},
			)

			estimates := NewCalculator().Estimate(snap, nil, targetStop, now)
			require.Len(t, estimates, 1)
			minutes, ok := estimates[0].Estimate.Minutes()
			require.True(t, ok)
			assert.Equal(t, 12, minutes)
		})
	}
}

func TestEstimateDropsDepartedTrips(t *testing.T) {
	snap := buildSnapshot(
		[]models.Route{busRoute("r1", "24B")},
		[]models.Trip{{ID: "t1", RouteID: "r1"}},
		nil,
		[]models.StopTime{{TripID: "t1", StopID: targetStop, StopSequence: 1, ArrivalTime: "08:40:00"}},
	)
	now := time.Date(2026, 8, 27, 8, 42, 0, 0, time.UTC)

	estimates := NewCalculator().Estimate(snap, nil, targetStop, now)
	assert.Empty(t, estimates)
}

func TestEstimateDropsTripsBeyondHorizon(t *testing.T) {
	snap := buildSnapshot(
		[]models.Route{busRoute("r1", "24B")},
		[]models.Trip{{ID: "t1", RouteID: "r1"}},
		nil,
		[]models.StopTime{{TripID: "t1", StopID: targetStop, StopSequence: 1, ArrivalTime: "13:00:00"}},
	)
	now := time.Date(2026, 8, 27, 8, 42, 0, 0, time.UTC)

	estimates := NewCalculator().Estimate(snap, nil, targetStop, now)
	assert.Empty(t, estimates)
}

func TestEstimateIgnoresUnassignedVehicles(t *testing.T) {
	snap := buildSnapshot(
		[]models.Route{busRoute("r1", "24B")},
		[]models.Trip{{ID: "t1", RouteID: "r1"}},
		nil,
		[]models.StopTime{{TripID: "t1", StopID: targetStop, StopSequence: 1}},
	)
	// Depot-parked vehicle: no trip assignment.
	vehicles := []models.Vehicle{{
		ID: "v1", Latitude: ptr(46.77), Longitude: ptr(23.59),
	}}
	now := time.Date(2026, 8, 27, 8, 42, 0, 0, time.UTC)

	estimates := NewCalculator().Estimate(snap, vehicles, targetStop, now)
	require.Len(t, estimates, 1)
	assert.Equal(t, models.KindUnresolved, estimates[0].Estimate.Kind())
	assert.Equal(t, models.BandUnknown, estimates[0].Estimate.Band())
	assert.Equal(t, "on route", estimates[0].Estimate.Label())
}

func TestEstimateScheduleWinsOverVehiclePosition(t *testing.T) {
	stops := []models.Stop{
		{ID: "s1", Lat: 46.7600, Lon: 23.5800},
		{ID: targetStop, Lat: 46.7750, Lon: 23.5950},
	}
	snap := buildSnapshot(
		[]models.Route{busRoute("r1", "24B")},
		[]models.Trip{{ID: "t1", RouteID: "r1"}},
		stops,
		[]models.StopTime{
			{TripID: "t1", StopID: "s1", StopSequence: 1, ArrivalTime: "08:40:00"},
			{TripID: "t1", StopID: targetStop, StopSequence: 2, ArrivalTime: "08:45:00"},
		},
	)
	speed := 28.0
	vehicles := []models.Vehicle{{
		ID: "v1", TripID: "t1", Label: "CJ-401", Speed: &speed,
		Latitude: ptr(46.7601), Longitude: ptr(23.5801),
	}}
	now := time.Date(2026, 8, 27, 8, 42, 0, 0, time.UTC)

	estimates := NewCalculator().Estimate(snap, vehicles, targetStop, now)
	require.Len(t, estimates, 1)

	est := estimates[0]
	minutes, ok := est.Estimate.Minutes()
	require.True(t, ok)
	assert.Equal(t, 3, minutes)
	_, hasStops := est.Estimate.Stops()
	assert.False(t, hasStops)
	assert.True(t, est.Realtime)
	assert.Equal(t, "CJ-401", est.VehicleLabel)
	require.NotNil(t, est.Speed)
	assert.Equal(t, 28.0, *est.Speed)
}

func TestEstimateExcludesVehiclePastStop(t *testing.T) {
	stops := []models.Stop{
		{ID: targetStop, Lat: 46.7600, Lon: 23.5800},
		{ID: "s2", Lat: 46.7650, Lon: 23.5850},
		{ID: "s3", Lat: 46.7700, Lon: 23.5900},
	}
	snap := buildSnapshot(
		[]models.Route{busRoute("r1", "24B")},
		[]models.Trip{{ID: "t1", RouteID: "r1"}},
		stops,
		[]models.StopTime{
			{TripID: "t1", StopID: targetStop, StopSequence: 1},
			{TripID: "t1", StopID: "s2", StopSequence: 2},
			{TripID: "t1", StopID: "s3", StopSequence: 3},
		},
	)
	// Vehicle closest to s3, already beyond the target stop.
	vehicles := []models.Vehicle{{
		ID: "v1", TripID: "t1",
		Latitude: ptr(46.7701), Longitude: ptr(23.5901),
	}}
	now := time.Date(2026, 8, 27, 8, 42, 0, 0, time.UTC)

	estimates := NewCalculator().Estimate(snap, vehicles, targetStop, now)
	assert.Empty(t, estimates)
}

func TestEstimateStaleTelemetryDropsRealtimeFlag(t *testing.T) {
	snap := buildSnapshot(
		[]models.Route{busRoute("r1", "24B")},
		[]models.Trip{{ID: "t1", RouteID: "r1"}},
		nil,
		[]models.StopTime{{TripID: "t1", StopID: targetStop, StopSequence: 1, ArrivalTime: "08:45:00"}},
	)
	now := time.Date(2026, 8, 27, 8, 42, 0, 0, time.UTC)
	vehicles := []models.Vehicle{{
		ID: "v1", TripID: "t1", Label: "CJ-401",
		Timestamp: now.Add(-10 * time.Minute).Format(time.RFC3339),
	}}

	estimates := NewCalculator().Estimate(snap, vehicles, targetStop, now)
	require.Len(t, estimates, 1)
	assert.False(t, estimates[0].Realtime)
	assert.Equal(t, "CJ-401", estimates[0].VehicleLabel)
}

func TestEstimateFreshTelemetryKeepsRealtimeFlag(t *testing.T) {
	snap := buildSnapshot(
		[]models.Route{busRoute("r1", "24B")},
		[]models.Trip{{ID: "t1", RouteID: "r1"}},
		nil,
		[]models.StopTime{{TripID: "t1", StopID: targetStop, StopSequence: 1, ArrivalTime: "08:45:00"}},
	)
	now := time.Date(2026, 8, 27, 8, 42, 0, 0, time.UTC)
	vehicles := []models.Vehicle{{
		ID: "v1", TripID: "t1",
		Timestamp: now.Add(-time.Minute).Format(time.RFC3339),
	}}

	estimates := NewCalculator().Estimate(snap, vehicles, targetStop, now)
	require.Len(t, estimates, 1)
	assert.True(t, estimates[0].Realtime)
}

func TestEstimateSkipsInconsistentRows(t *testing.T) {
	snap := buildSnapshot(
		[]models.Route{busRoute("r1", "24B")},
		[]models.Trip{
			{ID: "t1", RouteID: "r1"},
			{ID: "t_orphan", RouteID: "r_missing"},
		},
		nil,
		[]models.StopTime{
			{TripID: "t1", StopID: targetStop, StopSequence: 1, ArrivalTime: "08:45:00"},
			{TripID: "t_ghost", StopID: targetStop, StopSequence: 1, ArrivalTime: "08:46:00"},
			{TripID: "t_orphan", StopID: targetStop, StopSequence: 1, ArrivalTime: "08:47:00"},
		},
	)
	now := time.Date(2026, 8, 27, 8, 42, 0, 0, time.UTC)

	estimates := NewCalculator().Estimate(snap, nil, targetStop, now)
	require.Len(t, estimates, 1)
	assert.Equal(t, models.ID("t1"), estimates[0].TripID)
}

func TestEstimateVehicleTypeFilter(t *testing.T) {
	snap := buildSnapshot(
		[]models.Route{
			{ID: "r_bus", ShortName: "24B", Type: 3},
			{ID: "r_tram", ShortName: "101", Type: 0},
		},
		[]models.Trip{
			{ID: "t_bus", RouteID: "r_bus"},
			{ID: "t_tram", RouteID: "r_tram"},
		},
		nil,
		[]models.StopTime{
			{TripID: "t_bus", StopID: targetStop, StopSequence: 1, ArrivalTime: "08:45:00"},
			{TripID: "t_tram", StopID: targetStop, StopSequence: 1, ArrivalTime: "08:46:00"},
		},
	)
	now := time.Date(2026, 8, 27, 8, 42, 0, 0, time.UTC)

	calc := NewCalculator(WithVehicleTypes([]int{0}))
	estimates := calc.Estimate(snap, nil, targetStop, now)
	require.Len(t, estimates, 1)
	assert.Equal(t, "101", estimates[0].RouteName)
}

func TestEstimateMalformedTimeFallsBackToVehicle(t *testing.T) {
	stops := []models.Stop{
		{ID: "s1", Lat: 46.7600, Lon: 23.5800},
		{ID: targetStop, Lat: 46.7750, Lon: 23.5950},
	}
	snap := buildSnapshot(
		[]models.Route{busRoute("r1", "24B")},
		[]models.Trip{{ID: "t1", RouteID: "r1"}},
		stops,
		[]models.StopTime{
			{TripID: "t1", StopID: "s1", StopSequence: 1},
			{TripID: "t1", StopID: targetStop, StopSequence: 2, ArrivalTime: "not-a-time"},
		},
	)
	vehicles := []models.Vehicle{{
		ID: "v1", TripID: "t1",
		Latitude: ptr(46.7601), Longitude: ptr(23.5801),
	}}
	now := time.Date(2026, 8, 27, 8, 42, 0, 0, time.UTC)

	estimates := NewCalculator().Estimate(snap, vehicles, targetStop, now)
	require.Len(t, estimates, 1)
	stopsAway, ok := estimates[0].Estimate.Stops()
	require.True(t, ok)
	assert.Equal(t, 1, stopsAway)
}

func TestEstimateOrderingIsStable(t *testing.T) {
	stops := []models.Stop{
		{ID: "s1", Lat: 46.7600, Lon: 23.5800},
		{ID: targetStop, Lat: 46.7750, Lon: 23.5950},
	}
	snap := buildSnapshot(
		[]models.Route{
			busRoute("r1", "24B"),
			busRoute("r2", "30"),
			busRoute("r3", "43"),
		},
		[]models.Trip{
			{ID: "t_sched_late", RouteID: "r1"},
			{ID: "t_sched_early", RouteID: "r2"},
			{ID: "t_gps", RouteID: "r3"},
			{ID: "t_unresolved", RouteID: "r1"},
		},
		stops,
		[]models.StopTime{
			{TripID: "t_sched_late", StopID: targetStop, StopSequence: 1, ArrivalTime: "08:55:00"},
			{TripID: "t_sched_early", StopID: targetStop, StopSequence: 1, ArrivalTime: "08:45:00"},
			{TripID: "t_gps", StopID: "s1", StopSequence: 1},
			{TripID: "t_gps", StopID: targetStop, StopSequence: 2},
			{TripID: "t_unresolved", StopID: targetStop, StopSequence: 1},
		},
	)
	vehicles := []models.Vehicle{{
		ID: "v1", TripID: "t_gps",
		Latitude: ptr(46.7601), Longitude: ptr(23.5801),
	}}
	now := time.Date(2026, 8, 27, 8, 42, 0, 0, time.UTC)
	calc := NewCalculator()

	first := calc.Estimate(snap, vehicles, targetStop, now)
	require.Len(t, first, 4)

	// Numeric ETAs first in ascending order, then stops-away, then unresolved.
	assert.Equal(t, models.ID("t_sched_early"), first[0].TripID)
	assert.Equal(t, models.ID("t_sched_late"), first[1].TripID)
	assert.Equal(t, models.ID("t_gps"), first[2].TripID)
	assert.Equal(t, models.ID("t_unresolved"), first[3].TripID)

	second := calc.Estimate(snap, vehicles, targetStop, now)
	assert.Equal(t, first, second)
}

func TestEstimateDedupesLoopTrips(t *testing.T) {
	// A loop trip visiting the stop twice contributes one row, for the
	// earliest visit.
	snap := buildSnapshot(
		[]models.Route{busRoute("r1", "25")},
		[]models.Trip{{ID: "t1", RouteID: "r1"}},
		nil,
		[]models.StopTime{
			{TripID: "t1", StopID: targetStop, StopSequence: 9, ArrivalTime: "09:20:00"},
			{TripID: "t1", StopID: targetStop, StopSequence: 2, ArrivalTime: "08:45:00"},
		},
	)
	now := time.Date(2026, 8, 27, 8, 42, 0, 0, time.UTC)

	estimates := NewCalculator().Estimate(snap, nil, targetStop, now)
	require.Len(t, estimates, 1)
	minutes, ok := estimates[0].Estimate.Minutes()
	require.True(t, ok)
	assert.Equal(t, 3, minutes)
}

func TestEstimateEmptyInputs(t *testing.T) {
	snap := buildSnapshot(nil, nil, nil, nil)
	now := time.Date(2026, 8, 27, 8, 42, 0, 0, time.UTC)

	assert.Empty(t, NewCalculator().Estimate(snap, nil, targetStop, now))
}

func TestParseTimeOfDay(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected float64
		ok       bool
	}{
		{"full form", "08:45:00", 525, true},
		{"with seconds", "08:45:30", 525.5, true},
		{"short form", "08:45", 525, true},
		{"extended hours", "25:10:00", 1510, true},
		{"empty", "", 0, false},
		{"garbage", "soon", 0, false},
		{"bad minutes", "08:75:00", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseTimeOfDay(tt.input)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.InDelta(t, tt.expected, got, 0.001)
			}
		})
	}
}
