// Package app wires the long-lived pieces of the monitor together: one
// upstream client and static cache shared by every monitored stop, and
// one poll coordinator per stop.
package app

import (
	"log/slog"

	"tranzymon.opentransit.org/internal/clock"
	"tranzymon.opentransit.org/internal/config"
	"tranzymon.opentransit.org/internal/logging"
	"tranzymon.opentransit.org/internal/metrics"
	"tranzymon.opentransit.org/internal/models"
	"tranzymon.opentransit.org/internal/poll"
	"tranzymon.opentransit.org/internal/static"
)

// Application holds the shared dependencies and per-stop coordinators.
type Application struct {
	Config       *config.Config
	Logger       *slog.Logger
	Clock        clock.Clock
	Metrics      *metrics.Metrics
	StaticCache  *static.Cache
	Coordinators map[models.ID]*poll.Coordinator
}

// CoordinatorForStop returns the coordinator monitoring the given stop.
func (a *Application) CoordinatorForStop(stopID models.ID) (*poll.Coordinator, bool) {
	coordinator, ok := a.Coordinators[stopID]
	return coordinator, ok
}

// StopConfig returns the config entry for the given stop.
func (a *Application) StopConfig(stopID models.ID) (config.Stop, bool) {
	for _, stop := range a.Config.Stops {
		if stop.StopID() == stopID {
			return stop, true
		}
	}
	return config.Stop{}, false
}

// Shutdown stops every coordinator and waits for their loops to exit.
func (a *Application) Shutdown() {
	logging.LogOperation(a.Logger, "shutting_down_application",
		slog.Int("coordinators", len(a.Coordinators)))
	for _, coordinator := range a.Coordinators {
		coordinator.Stop()
	}
}
