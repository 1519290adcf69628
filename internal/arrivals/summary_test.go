package arrivals

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tranzymon.opentransit.org/internal/models"
)

func TestSummarizeGroupsByRoute(t *testing.T) {
	estimates := []models.ArrivalEstimate{
		{RouteName: "24B", RouteTypeName: "Bus", Destination: "Bucium", Estimate: models.ScheduledIn(3)},
		{RouteName: "43", RouteTypeName: "Bus", Destination: "Gara", Estimate: models.ScheduledIn(8)},
		{RouteName: "24B", RouteTypeName: "Bus", Destination: "Bucium", Estimate: models.ScheduledIn(15)},
		{RouteName: "101", RouteTypeName: "Tram", Destination: "Manastur", Estimate: models.ApproachingBy(2)},
	}

	summaries, names := Summarize(estimates)

	assert.Equal(t, []string{"101", "24B", "43"}, names)
	require.Len(t, summaries, 3)

	best := summaries["24B"]
	require.NotNil(t, best.NextEta)
	assert.Equal(t, 3, *best.NextEta)
	assert.Nil(t, best.NextStopsAway)
	assert.Equal(t, 2, best.VehicleCount)
	assert.Equal(t, "Bucium", best.Destination)

	tram := summaries["101"]
	assert.Nil(t, tram.NextEta)
	require.NotNil(t, tram.NextStopsAway)
	assert.Equal(t, 2, *tram.NextStopsAway)
	assert.Equal(t, 1, tram.VehicleCount)
}

func TestSummarizeSkipsUnnamedRoutes(t *testing.T) {
	estimates := []models.ArrivalEstimate{
		{RouteName: "", Estimate: models.ScheduledIn(3)},
		{RouteName: "24B", Estimate: models.Unresolved()},
	}

	summaries, names := Summarize(estimates)
	assert.Equal(t, []string{"24B"}, names)
	require.Len(t, summaries, 1)
	assert.Nil(t, summaries["24B"].NextEta)
	assert.Nil(t, summaries["24B"].NextStopsAway)
}

func TestSummarizeEmptyList(t *testing.T) {
	summaries, names := Summarize(nil)
	assert.Empty(t, summaries)
	assert.Empty(t, names)
}
