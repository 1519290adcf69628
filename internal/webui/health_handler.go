package webui

import (
	"net/http"

	"tranzymon.opentransit.org/internal/poll"
)

// HealthResponse represents the JSON response from the health endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// healthHandler reports readiness. The service is healthy once every
// coordinator has published at least one snapshot; a coordinator stuck in
// Failed marks the whole service unavailable so orchestration can restart
// or alert.
func (webUI *WebUI) healthHandler(w http.ResponseWriter, r *http.Request) {
	if webUI.Application == nil || len(webUI.Coordinators) == 0 {
		webUI.sendJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status: "unavailable",
			Detail: "no coordinators configured",
		})
		return
	}

	for _, coordinator := range webUI.Coordinators {
		if coordinator.Latest() == nil {
			webUI.sendJSON(w, http.StatusServiceUnavailable, HealthResponse{
				Status: "starting",
				Detail: "waiting for first refresh cycle",
			})
			return
		}
		if coordinator.State() == poll.Failed {
			webUI.sendJSON(w, http.StatusServiceUnavailable, HealthResponse{
				Status: "unavailable",
				Detail: "upstream fetches are failing",
			})
			return
		}
	}

	webUI.sendJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}
