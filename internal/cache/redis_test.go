package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Domenick1991/bookingsaga/internal/domain"
)

func newTestCache(t *testing.T) (*FlightCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewFlightCache(client, time.Minute), mr
}

func TestFlightCache_RoundTrip(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	flights := []domain.Flight{{ID: 100, FlightNumber: "SU-1234", FromAirport: "SVO", ToAirport: "LED"}}
	require.NoError(t, c.SetFlights(ctx, flights))

	got, err := c.GetFlights(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "SU-1234", got[0].FlightNumber)

	assert.InDelta(t, 60, mr.TTL("cache:flights").Seconds(), 1)
}

func TestFlightCache_MissReturnsNil(t *testing.T) {
	c, _ := newTestCache(t)

	got, err := c.GetFlights(context.Background())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestFlightCache_ExpiresWithTTL(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.SetFlights(ctx, []domain.Flight{{ID: 100}}))
	mr.FastForward(61 * time.Second)

	got, err := c.GetFlights(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)
}
