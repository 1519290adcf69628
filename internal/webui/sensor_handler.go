package webui

import (
	"net/http"

	"tranzymon.opentransit.org/internal/models"
)

// SensorResponse is the published sensor payload for one stop: a scalar
// state plus the full attribute set a display card renders from.
type SensorResponse struct {
	State      *int                           `json:"state"`
	Unit       string                         `json:"unit,omitempty"`
	Attributes SensorAttributes               `json:"attributes"`
	Routes     map[string]models.RouteSummary `json:"routes"`
}

// SensorAttributes carries everything beyond the scalar state.
type SensorAttributes struct {
	StopID        string                    `json:"stop_id"`
	StopName      string                    `json:"stop_name,omitempty"`
	AgencyID      string                    `json:"agency_id"`
	Arrivals      []models.ArrivalAttributes `json:"arrivals"`
	RouteNames    []string                  `json:"route_names"`
	TotalVehicles int                       `json:"total_vehicles"`
	Degraded      bool                      `json:"degraded"`
	CycleState    string                    `json:"cycle_state"`
	UpdatedAt     string                    `json:"updated_at"`
}

// sensorHandler returns the latest published snapshot for a stop. Before
// the first successful cycle there is nothing to serve, so it answers 503
// rather than inventing an empty arrival list.
func (webUI *WebUI) sensorHandler(w http.ResponseWriter, r *http.Request) {
	stopID := models.ID(r.PathValue("stopID"))

	coordinator, ok := webUI.CoordinatorForStop(stopID)
	if !ok {
		webUI.sendJSON(w, http.StatusNotFound, map[string]string{
			"error": "stop is not monitored",
		})
		return
	}

	snapshot := coordinator.Latest()
	if snapshot == nil {
		webUI.sendJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "no data published yet",
		})
		return
	}

	arrivals := snapshot.Arrivals
	if stopCfg, ok := webUI.StopConfig(stopID); ok && stopCfg.MaxRows > 0 && len(arrivals) > stopCfg.MaxRows {
		arrivals = arrivals[:stopCfg.MaxRows]
	}

	attrs := make([]models.ArrivalAttributes, 0, len(arrivals))
	for _, arrival := range arrivals {
		attrs = append(attrs, arrival.Attributes())
	}

	response := SensorResponse{
		Attributes: SensorAttributes{
			StopID:        string(snapshot.StopID),
			StopName:      snapshot.StopName,
			AgencyID:      snapshot.AgencyID,
			Arrivals:      attrs,
			RouteNames:    snapshot.RouteNames,
			TotalVehicles: snapshot.TotalVehicles,
			Degraded:      snapshot.Degraded,
			CycleState:    coordinator.State().String(),
			UpdatedAt:     snapshot.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		},
		Routes: snapshot.Routes,
	}
	if value, unit, ok := snapshot.StateValue(); ok {
		response.State = &value
		response.Unit = unit
	}

	webUI.sendJSON(w, http.StatusOK, response)
}
