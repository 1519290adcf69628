package webui

import (
	"net/http"

	"github.com/davecgh/go-spew/spew"

	"tranzymon.opentransit.org/internal/appconf"
)

// debugHandler dumps internal state for a stop, or the static snapshot.
// Hidden in production.
func (webUI *WebUI) debugHandler(w http.ResponseWriter, r *http.Request) {
	if webUI.Config.Environment() == appconf.Production {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	dataType := r.URL.Query().Get("dataType")
	switch dataType {
	case "static":
		snapshot := webUI.StaticCache.Current()
		if snapshot == nil {
			_, _ = w.Write([]byte("no static snapshot loaded\n"))
			return
		}
		_, _ = w.Write([]byte(spew.Sdump(map[string]int{
			"agencies":   len(snapshot.Agencies),
			"routes":     len(snapshot.Routes),
			"stops":      len(snapshot.Stops),
			"trips":      len(snapshot.Trips),
			"stop_times": len(snapshot.StopTimesByStop),
		})))
	case "snapshots":
		for stopID, coordinator := range webUI.Coordinators {
			_, _ = w.Write([]byte("stop " + string(stopID) + " (" + coordinator.State().String() + ")\n"))
			_, _ = w.Write([]byte(spew.Sdump(coordinator.Latest())))
		}
	default:
		_, _ = w.Write([]byte("Please use one of the following dataType values: static, snapshots.\n"))
	}
}
