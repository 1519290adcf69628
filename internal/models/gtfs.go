// Package models defines the Tranzy partial-GTFS domain types and the
// derived arrival-estimate types published downstream.
package models

import (
	"strconv"
	"time"
)

// Agency is one transit operator served by the API key.
type Agency struct {
	ID       ID     `json:"agency_id"`
	Name     string `json:"agency_name"`
	URL      string `json:"agency_url"`
	Timezone string `json:"agency_timezone"`
	Language string `json:"agency_lang"`
}

// Route is a line (tram 1, bus E3, ...) identified to riders by its short name.
type Route struct {
	ID        ID     `json:"route_id"`
	AgencyID  ID     `json:"agency_id"`
	ShortName string `json:"route_short_name"`
	LongName  string `json:"route_long_name"`
	Type      int    `json:"route_type"`
	Color     string `json:"route_color"`
	Desc      string `json:"route_desc"`
}

// Stop is a physical boarding location.
type Stop struct {
	ID           ID      `json:"stop_id"`
	Name         string  `json:"stop_name"`
	Lat          float64 `json:"stop_lat"`
	Lon          float64 `json:"stop_lon"`
	LocationType int     `json:"location_type"`
}

// Trip is a single scheduled run along a route.
type Trip struct {
	ID          ID     `json:"trip_id"`
	RouteID     ID     `json:"route_id"`
	Headsign    string `json:"trip_headsign"`
	DirectionID int    `json:"direction_id"`
	ShapeID     ID     `json:"shape_id"`
}

// StopTime is one row of a trip's stop path. Sequence numbers are strictly
// increasing along a trip; "stops away" arithmetic depends on that ordering.
type StopTime struct {
	TripID        ID     `json:"trip_id"`
	StopID        ID     `json:"stop_id"`
	StopSequence  int    `json:"stop_sequence"`
	ArrivalTime   string `json:"arrival_time"`
	DepartureTime string `json:"departure_time"`
}

// Scheduled returns the scheduled time-of-day at this row, preferring the
// arrival time and falling back to the departure time. Empty when the feed
// carries neither.
func (st StopTime) Scheduled() string {
	if st.ArrivalTime != "" {
		return st.ArrivalTime
	}
	return st.DepartureTime
}

// Vehicle is one live telemetry record. TripID is empty for vehicles not
// actively assigned to a trip (depot-parked); those records are still valid
// fetch results and are filtered by the calculator, not the fetcher.
type Vehicle struct {
	ID        ID       `json:"id"`
	Label     string   `json:"label"`
	TripID    ID       `json:"trip_id"`
	RouteID   ID       `json:"route_id"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Speed     *float64 `json:"speed"`
	Type      *int     `json:"vehicle_type"`
	Timestamp string   `json:"timestamp"`
}

// HasTrip reports whether the vehicle is actively assigned to a trip.
func (v Vehicle) HasTrip() bool { return v.TripID != "" }

// HasPosition reports whether the record carries usable GPS coordinates.
func (v Vehicle) HasPosition() bool { return v.Latitude != nil && v.Longitude != nil }

// LastUpdate parses the telemetry timestamp. The feed has emitted both
// RFC3339 strings and epoch seconds, so both are accepted.
func (v Vehicle) LastUpdate() (time.Time, bool) {
	if v.Timestamp == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, v.Timestamp); err == nil {
		return t, true
	}
	if secs, err := strconv.ParseInt(v.Timestamp, 10, 64); err == nil {
		return time.Unix(secs, 0), true
	}
	return time.Time{}, false
}

// routeTypeNames maps GTFS route_type codes to rider-facing names,
// matching the vehicle types the Tranzy vehicles endpoint documents.
var routeTypeNames = map[int]string{
	0:  "Tram",
	1:  "Metro",
	2:  "Rail",
	3:  "Bus",
	4:  "Ferry",
	5:  "Cable Tram",
	6:  "Aerial Lift",
	7:  "Funicular",
	11: "Trolleybus",
	12: "Monorail",
}

// RouteTypeName converts a GTFS route_type code to a human-readable name.
func RouteTypeName(code int) string {
	if name, ok := routeTypeNames[code]; ok {
		return name
	}
	return "unknown"
}
