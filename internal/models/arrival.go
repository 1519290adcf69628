package models

// ArrivalEstimate is one ranked row of the per-stop arrival list. It is
// recomputed every poll cycle and never persisted.
type ArrivalEstimate struct {
	RouteID       ID
	RouteName     string // route short name: the line label riders know
	RouteType     int
	RouteTypeName string
	Destination   string // trip headsign
	TripID        ID
	Estimate      Estimate
	ScheduledTime string // "HH:MM:SS" time-of-day, empty if unknown
	VehicleLabel  string
	Speed         *float64
	Realtime      bool
	Latitude      *float64
	Longitude     *float64
	Timestamp     string // last telemetry update, empty without a vehicle match
}

// ArrivalAttributes is the wire form of an ArrivalEstimate for the publish
// boundary. The tagged Estimate variant flattens into the eta/stops pair
// here, and only here; at most one of the two is non-null.
type ArrivalAttributes struct {
	Route         string   `json:"route"`
	Destination   string   `json:"destination"`
	Type          string   `json:"type"`
	EtaMinutes    *int     `json:"eta_minutes"`
	StopsAway     *int     `json:"stops_away"`
	Band          Band     `json:"band"`
	Label         string   `json:"label"`
	ScheduledTime string   `json:"scheduled_time,omitempty"`
	VehicleLabel  string   `json:"vehicle_label,omitempty"`
	Speed         *float64 `json:"speed,omitempty"`
	Realtime      bool     `json:"realtime"`
	Latitude      *float64 `json:"latitude,omitempty"`
	Longitude     *float64 `json:"longitude,omitempty"`
	Timestamp     string   `json:"timestamp,omitempty"`
}

// Attributes flattens the estimate into its publishable form.
func (a ArrivalEstimate) Attributes() ArrivalAttributes {
	attrs := ArrivalAttributes{
		Route:         a.RouteName,
		Destination:   a.Destination,
		Type:          a.RouteTypeName,
		Band:          a.Estimate.Band(),
		Label:         a.Estimate.Label(),
		ScheduledTime: a.ScheduledTime,
		VehicleLabel:  a.VehicleLabel,
		Speed:         a.Speed,
		Realtime:      a.Realtime,
	}
	if m, ok := a.Estimate.Minutes(); ok {
		attrs.EtaMinutes = &m
	}
	if s, ok := a.Estimate.Stops(); ok {
		attrs.StopsAway = &s
	}
	if a.Realtime {
		attrs.Latitude = a.Latitude
		attrs.Longitude = a.Longitude
		attrs.Timestamp = a.Timestamp
	}
	return attrs
}

// RouteSummary is the per-route rollup in the published attribute set:
// the best estimate for each route plus how many vehicles feed it.
type RouteSummary struct {
	NextEta       *int   `json:"next_eta"`
	NextStopsAway *int   `json:"next_stops_away"`
	Type          string `json:"type"`
	Destination   string `json:"destination"`
	VehicleCount  int    `json:"vehicle_count"`
}
