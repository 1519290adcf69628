package live

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tranzymon.opentransit.org/internal/models"
)

type stubSource struct {
	vehicles []models.Vehicle
	err      error
	calls    int
}

func (s *stubSource) Vehicles(ctx context.Context) ([]models.Vehicle, error) {
	s.calls++
	return s.vehicles, s.err
}

func TestFetcherNeverCaches(t *testing.T) {
	source := &stubSource{vehicles: []models.Vehicle{
		{ID: "v1", TripID: "t1"},
		{ID: "v2"}, // depot-parked, still a valid result
	}}
	fetcher := NewFetcher(source, nil)

	for i := 0; i < 3; i++ {
		vehicles, err := fetcher.Vehicles(context.Background())
		require.NoError(t, err)
		assert.Len(t, vehicles, 2)
	}
	assert.Equal(t, 3, source.calls)
}

func TestFetcherPropagatesErrors(t *testing.T) {
	source := &stubSource{err: errors.New("upstream down")}
	fetcher := NewFetcher(source, nil)

	vehicles, err := fetcher.Vehicles(context.Background())
	assert.Error(t, err)
	assert.Nil(t, vehicles)
}
