// Package webui exposes the monitor over HTTP: a per-stop sensor
// endpoint with the published attribute set, a health probe, and a
// non-production debug dump.
package webui

import (
	"encoding/json"
	"net/http"

	"tranzymon.opentransit.org/internal/app"
	"tranzymon.opentransit.org/internal/logging"
)

// WebUI serves the monitor's HTTP surface.
type WebUI struct {
	*app.Application
}

// New creates the HTTP surface over the given application.
func New(application *app.Application) *WebUI {
	return &WebUI{Application: application}
}

// SetRoutes registers all handlers on the mux.
func (webUI *WebUI) SetRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /sensor/{stopID}", webUI.sensorHandler)
	mux.HandleFunc("GET /healthz", webUI.healthHandler)
	mux.HandleFunc("GET /debug", webUI.debugHandler)
}

func (webUI *WebUI) sendJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.LogError(webUI.Logger, "failed to encode response", err)
	}
}
