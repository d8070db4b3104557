package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Domenick1991/bookingsaga/internal/domain"
)

// FlightCache keeps the flight list in Redis so availability queries do not
// hit postgres on every request.
type FlightCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewFlightCache(client *redis.Client, ttl time.Duration) *FlightCache {
	return &FlightCache{client: client, ttl: ttl}
}

func (c *FlightCache) GetFlights(ctx context.Context) ([]domain.Flight, error) {
	data, err := c.client.Get(ctx, flightsKey()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var flights []domain.Flight
	if err := json.Unmarshal(data, &flights); err != nil {
		return nil, err
	}
	return flights, nil
}

func (c *FlightCache) SetFlights(ctx context.Context, flights []domain.Flight) error {
	payload, err := json.Marshal(flights)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, flightsKey(), payload, c.ttl).Err()
}

func flightsKey() string {
	return "cache:flights"
}
