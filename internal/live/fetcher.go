// Package live fetches current vehicle telemetry. Unlike the static
// tables there is no caching here: every call is a fresh request, and the
// results live exactly one poll cycle.
package live

import (
	"context"
	"log/slog"

	"tranzymon.opentransit.org/internal/models"
)

// VehicleSource is the upstream vehicles endpoint.
type VehicleSource interface {
	Vehicles(ctx context.Context) ([]models.Vehicle, error)
}

// Fetcher retrieves the live vehicle list for an agency. Vehicles without
// a trip assignment (depot-parked) are valid results and are kept;
// filtering them is the calculator's responsibility, not the fetcher's.
type Fetcher struct {
	source VehicleSource
	logger *slog.Logger
}

// NewFetcher creates a fetcher over the given source.
func NewFetcher(source VehicleSource, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default().With(slog.String("component", "live_fetcher"))
	}
	return &Fetcher{source: source, logger: logger}
}

// Vehicles returns the current telemetry records.
func (f *Fetcher) Vehicles(ctx context.Context) ([]models.Vehicle, error) {
	vehicles, err := f.source.Vehicles(ctx)
	if err != nil {
		return nil, err
	}
	f.logger.Debug("fetched vehicle telemetry", slog.Int("count", len(vehicles)))
	return vehicles, nil
}
