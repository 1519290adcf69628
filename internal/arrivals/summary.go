package arrivals

import (
	"sort"

	"tranzymon.opentransit.org/internal/models"
)

// Summarize rolls a ranked arrival list up by route label: the best
// estimate per route plus a vehicle count, and the sorted list of route
// names serving the stop. Both feed the published attribute set so the
// presentation layer can group rows without recomputing anything.
func Summarize(estimates []models.ArrivalEstimate) (map[string]models.RouteSummary, []string) {
	summaries := make(map[string]models.RouteSummary)
	for _, est := range estimates {
		name := est.RouteName
		if name == "" {
			continue
		}
		summary, exists := summaries[name]
		if !exists {
			// The list is already urgency-ordered, so the first row for a
			// route is its best estimate.
			summary = models.RouteSummary{
				Type:        est.RouteTypeName,
				Destination: est.Destination,
			}
			if m, ok := est.Estimate.Minutes(); ok {
				summary.NextEta = &m
			}
			if s, ok := est.Estimate.Stops(); ok {
				summary.NextStopsAway = &s
			}
		}
		summary.VehicleCount++
		summaries[name] = summary
	}

	names := make([]string, 0, len(summaries))
	for name := range summaries {
		names = append(names, name)
	}
	sort.Strings(names)

	return summaries, names
}
