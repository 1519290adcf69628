package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateCarriesExactlyOneValue(t *testing.T) {
	sched := ScheduledIn(7)
	m, ok := sched.Minutes()
	assert.True(t, ok)
	assert.Equal(t, 7, m)
	_, ok = sched.Stops()
	assert.False(t, ok)

	appr := ApproachingBy(3)
	s, ok := appr.Stops()
	assert.True(t, ok)
	assert.Equal(t, 3, s)
	_, ok = appr.Minutes()
	assert.False(t, ok)

	unres := Unresolved()
	_, ok = unres.Minutes()
	assert.False(t, ok)
	_, ok = unres.Stops()
	assert.False(t, ok)
}

func TestEstimateBand(t *testing.T) {
	tests := []struct {
		name     string
		estimate Estimate
		expected Band
	}{
		{"scheduled now", ScheduledIn(0), BandImminent},
		{"scheduled at imminent boundary", ScheduledIn(2), BandImminent},
		{"scheduled just past imminent", ScheduledIn(3), BandSoon},
		{"scheduled at soon boundary", ScheduledIn(5), BandSoon},
		{"scheduled just past soon", ScheduledIn(6), BandOk},
		{"scheduled far out", ScheduledIn(45), BandOk},
		{"approaching here", ApproachingBy(0), BandImminent},
		{"approaching at imminent boundary", ApproachingBy(2), BandImminent},
		{"approaching at soon boundary", ApproachingBy(5), BandSoon},
		{"approaching far", ApproachingBy(6), BandOk},
		{"unresolved", Unresolved(), BandUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.estimate.Band())
		})
	}
}

func TestEstimateLabel(t *testing.T) {
	tests := []struct {
		name     string
		estimate Estimate
		expected string
	}{
		{"scheduled minutes", ScheduledIn(3), "3 min"},
		{"scheduled zero", ScheduledIn(0), "0 min"},
		{"vehicle at stop", ApproachingBy(0), "here"},
		{"one stop away", ApproachingBy(1), "1 stop"},
		{"several stops away", ApproachingBy(4), "4 stops"},
		{"no signal", Unresolved(), "on route"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.estimate.Label())
		})
	}
}

func TestArrivalAttributesFlattening(t *testing.T) {
	lat, lon := 46.77, 23.59
	speed := 32.5

	est := ArrivalEstimate{
		RouteName:     "24B",
		RouteTypeName: "Bus",
		Destination:   "Bucium",
		Estimate:      ScheduledIn(4),
		ScheduledTime: "08:45:00",
		VehicleLabel:  "CJ-401",
		Speed:         &speed,
		Realtime:      true,
		Latitude:      &lat,
		Longitude:     &lon,
		Timestamp:     "2026-08-27T08:41:02Z",
	}

	attrs := est.Attributes()
	assert.Equal(t, "24B", attrs.Route)
	assert.Equal(t, BandSoon, attrs.Band)
	assert.Equal(t, "4 min", attrs.Label)
	if assert.NotNil(t, attrs.EtaMinutes) {
		assert.Equal(t, 4, *attrs.EtaMinutes)
	}
	assert.Nil(t, attrs.StopsAway)
	assert.Equal(t, &lat, attrs.Latitude)
	assert.Equal(t, &lon, attrs.Longitude)
	assert.Equal(t, "2026-08-27T08:41:02Z", attrs.Timestamp)
}

func TestArrivalAttributesHidePositionWhenNotRealtime(t *testing.T) {
	lat, lon := 46.77, 23.59
	est := ArrivalEstimate{
		RouteName: "101",
		Estimate:  ApproachingBy(2),
		Realtime:  false,
		Latitude:  &lat,
		Longitude: &lon,
		Timestamp: "1756281662",
	}

	attrs := est.Attributes()
	if assert.NotNil(t, attrs.StopsAway) {
		assert.Equal(t, 2, *attrs.StopsAway)
	}
	assert.Nil(t, attrs.EtaMinutes)
	assert.Nil(t, attrs.Latitude)
	assert.Nil(t, attrs.Longitude)
	assert.Empty(t, attrs.Timestamp)
}
