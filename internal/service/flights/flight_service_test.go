package flights

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Domenick1991/bookingsaga/internal/domain"
	"github.com/Domenick1991/bookingsaga/internal/repository"
)

type MockFlightRepository struct {
	mock.Mock
}

func (m *MockFlightRepository) List(ctx context.Context) ([]domain.Flight, error) {
	args := m.Called(ctx)
	return args.Get(0).([]domain.Flight), args.Error(1)
}

func (m *MockFlightRepository) GetByID(ctx context.Context, id int64) (*domain.Flight, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Flight), args.Error(1)
}

func (m *MockFlightRepository) GetInventory(ctx context.Context, flightID int64, class domain.SeatClass) (*domain.FlightInventory, error) {
	args := m.Called(ctx, flightID, class)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.FlightInventory), args.Error(1)
}

func (m *MockFlightRepository) ApplySeatChange(ctx context.Context, change repository.SeatChange) error {
	args := m.Called(ctx, change)
	return args.Error(0)
}

type MockFlightCache struct {
	mock.Mock
}

func (m *MockFlightCache) GetFlights(ctx context.Context) ([]domain.Flight, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Flight), args.Error(1)
}

func (m *MockFlightCache) SetFlights(ctx context.Context, flights []domain.Flight) error {
	args := m.Called(ctx, flights)
	return args.Error(0)
}

func sampleFlights() []domain.Flight {
	return []domain.Flight{{
		ID:            100,
		FlightNumber:  "SU-1234",
		FromAirport:   "SVO",
		ToAirport:     "LED",
		DepartureTime: time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC),
		ArrivalTime:   time.Date(2026, 9, 1, 11, 30, 0, 0, time.UTC),
	}}
}

func TestList_CacheMissFillsCache(t *testing.T) {
	repo := &MockFlightRepository{}
	cache := &MockFlightCache{}
	svc := NewFlightService(repo, cache)

	cache.On("GetFlights", mock.Anything).Return(nil, nil)
	repo.On("List", mock.Anything).Return(sampleFlights(), nil)
	cache.On("SetFlights", mock.Anything, sampleFlights()).Return(nil).Once()

	got, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, sampleFlights(), got)
	cache.AssertExpectations(t)
}

func TestList_CacheHitSkipsRepository(t *testing.T) {
	repo := &MockFlightRepository{}
	cache := &MockFlightCache{}
	svc := NewFlightService(repo, cache)

	cache.On("GetFlights", mock.Anything).Return(sampleFlights(), nil)

	got, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, sampleFlights(), got)
	repo.AssertNotCalled(t, "List", mock.Anything)
}

func TestList_CacheErrorFallsThrough(t *testing.T) {
	repo := &MockFlightRepository{}
	cache := &MockFlightCache{}
	svc := NewFlightService(repo, cache)

	cache.On("GetFlights", mock.Anything).Return(nil, assert.AnError)
	repo.On("List", mock.Anything).Return(sampleFlights(), nil)
	cache.On("SetFlights", mock.Anything, mock.Anything).Return(nil)

	got, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestList_NoCacheConfigured(t *testing.T) {
	repo := &MockFlightRepository{}
	svc := NewFlightService(repo, nil)

	repo.On("List", mock.Anything).Return(sampleFlights(), nil)

	got, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestGetInventory_BypassesCache(t *testing.T) {
	repo := &MockFlightRepository{}
	cache := &MockFlightCache{}
	svc := NewFlightService(repo, cache)

	inv := &domain.FlightInventory{FlightID: 100, SeatClass: domain.SeatClassEconomy, AvailableSeats: 40}
	repo.On("GetInventory", mock.Anything, int64(100), domain.SeatClassEconomy).Return(inv, nil)

	got, err := svc.GetInventory(context.Background(), 100, domain.SeatClassEconomy)
	require.NoError(t, err)
	assert.Equal(t, inv, got)
	cache.AssertNotCalled(t, "GetFlights", mock.Anything)
}
