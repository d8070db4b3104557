package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Domenick1991/bookingsaga/internal/domain"
	"github.com/Domenick1991/bookingsaga/pkg/logger"
)

type MockOutboxRepository struct {
	mock.Mock
}

func (m *MockOutboxRepository) Append(ctx context.Context, event *domain.OutboxEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockOutboxRepository) ClaimPending(ctx context.Context, limit int) ([]domain.OutboxEvent, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]domain.OutboxEvent), args.Error(1)
}

func (m *MockOutboxRepository) MarkPublished(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockOutboxRepository) MarkRetry(ctx context.Context, id int64, lastError string) error {
	args := m.Called(ctx, id, lastError)
	return args.Error(0)
}

func (m *MockOutboxRepository) MarkFailed(ctx context.Context, id int64, lastError string) error {
	args := m.Called(ctx, id, lastError)
	return args.Error(0)
}

func (m *MockOutboxRepository) DeletePublishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

type publishedMessage struct {
	topic   string
	key     string
	value   []byte
	headers map[string]string
}

type MockProducer struct {
	mock.Mock
	published []publishedMessage
}

func (m *MockProducer) Publish(ctx context.Context, topic, key string, value []byte, headers map[string]string) error {
	args := m.Called(ctx, topic, key, value, headers)
	if args.Error(0) == nil {
		m.published = append(m.published, publishedMessage{topic: topic, key: key, value: value, headers: headers})
	}
	return args.Error(0)
}

func newTestPublisher() (*Publisher, *MockOutboxRepository, *MockProducer) {
	repo := &MockOutboxRepository{}
	producer := &MockProducer{}
	p := NewPublisher(repo, producer, Config{
		PublishInterval:    time.Second,
		CleanupInterval:    time.Minute,
		BatchSize:          100,
		MaxRetries:         3,
		Retention:          7 * 24 * time.Hour,
		FlightEventsTopic:  "flight-events",
		BookingEventsTopic: "booking-events",
		DeadLetterTopic:    "booking-dlq",
	}, logger.NewNop())
	return p, repo, producer
}

func pendingEvent(id int64, eventType string) domain.OutboxEvent {
	return domain.OutboxEvent{
		ID:          id,
		EventID:     "evt-" + eventType,
		AggregateID: "B1",
		EventType:   eventType,
		Payload:     []byte(`{"flight_id":100}`),
		Status:      domain.OutboxStatusProcessing,
		RetryCount:  0,
		MaxRetries:  3,
		TraceID:     "trace-1",
	}
}

func TestPublishPending_RoutesByEventType(t *testing.T) {
	p, repo, producer := newTestPublisher()

	events := []domain.OutboxEvent{
		pendingEvent(1, domain.EventFlightReserveSeats),
		pendingEvent(2, domain.EventBookingConfirmed),
	}
	repo.On("ClaimPending", mock.Anything, 100).Return(events, nil)
	producer.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	repo.On("MarkPublished", mock.Anything, int64(1)).Return(nil).Once()
	repo.On("MarkPublished", mock.Anything, int64(2)).Return(nil).Once()

	require.NoError(t, p.PublishPending(context.Background()))

	require.Len(t, producer.published, 2)
	assert.Equal(t, "flight-events", producer.published[0].topic)
	assert.Equal(t, "booking-events", producer.published[1].topic)
	assert.Equal(t, "B1", producer.published[0].key)
	assert.Equal(t, events[0].EventID, producer.published[0].headers[domain.HeaderEventID])
	assert.Equal(t, domain.EventFlightReserveSeats, producer.published[0].headers[domain.HeaderEventType])
	assert.Equal(t, "trace-1", producer.published[0].headers[domain.HeaderTraceID])

	repo.AssertExpectations(t)
}

func TestPublishPending_FailureSchedulesRetry(t *testing.T) {
	p, repo, producer := newTestPublisher()

	event := pendingEvent(1, domain.EventFlightReserveSeats)
	repo.On("ClaimPending", mock.Anything, 100).Return([]domain.OutboxEvent{event}, nil)
	producer.On("Publish", mock.Anything, "flight-events", mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("broker unavailable"))
	repo.On("MarkRetry", mock.Anything, int64(1), "broker unavailable").Return(nil).Once()

	require.NoError(t, p.PublishPending(context.Background()))

	repo.AssertExpectations(t)
	repo.AssertNotCalled(t, "MarkFailed", mock.Anything, mock.Anything, mock.Anything)
	repo.AssertNotCalled(t, "MarkPublished", mock.Anything, mock.Anything)
}

func TestPublishPending_ExhaustedRetriesDeadLetters(t *testing.T) {
	p, repo, producer := newTestPublisher()

	event := pendingEvent(1, domain.EventFlightReserveSeats)
	event.RetryCount = 2 // third attempt is the last

	repo.On("ClaimPending", mock.Anything, 100).Return([]domain.OutboxEvent{event}, nil)
	producer.On("Publish", mock.Anything, "flight-events", mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("broker unavailable"))
	repo.On("MarkFailed", mock.Anything, int64(1), "broker unavailable").Return(nil).Once()
	producer.On("Publish", mock.Anything, "booking-dlq", mock.Anything, mock.Anything, mock.Anything).
		Return(nil).Once()

	require.NoError(t, p.PublishPending(context.Background()))

	repo.AssertExpectations(t)
	repo.AssertNotCalled(t, "MarkRetry", mock.Anything, mock.Anything, mock.Anything)

	require.Len(t, producer.published, 1)
	dlq := producer.published[0]
	assert.Equal(t, "booking-dlq", dlq.topic)
	assert.Equal(t, "3", dlq.headers[domain.HeaderRetryCount])
	assert.Equal(t, "broker unavailable", dlq.headers["x-last-error"])
}

func TestPublishPending_ConfiguredRetryBudgetOverridesEventDefault(t *testing.T) {
	repo := &MockOutboxRepository{}
	producer := &MockProducer{}
	p := NewPublisher(repo, producer, Config{
		PublishInterval:    time.Second,
		CleanupInterval:    time.Minute,
		BatchSize:          100,
		MaxRetries:         5,
		Retention:          7 * 24 * time.Hour,
		FlightEventsTopic:  "flight-events",
		BookingEventsTopic: "booking-events",
		DeadLetterTopic:    "booking-dlq",
	}, logger.NewNop())

	// The row carries the creation-time default of 3, but the configured
	// budget of 5 governs: the third failure still schedules a retry.
	event := pendingEvent(1, domain.EventFlightReserveSeats)
	event.RetryCount = 2

	repo.On("ClaimPending", mock.Anything, 100).Return([]domain.OutboxEvent{event}, nil).Once()
	producer.On("Publish", mock.Anything, "flight-events", mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("broker unavailable"))
	repo.On("MarkRetry", mock.Anything, int64(1), "broker unavailable").Return(nil).Once()

	require.NoError(t, p.PublishPending(context.Background()))
	repo.AssertNotCalled(t, "MarkFailed", mock.Anything, mock.Anything, mock.Anything)

	// The fifth failure exhausts the configured budget.
	exhausted := pendingEvent(1, domain.EventFlightReserveSeats)
	exhausted.RetryCount = 4
	repo.On("ClaimPending", mock.Anything, 100).Return([]domain.OutboxEvent{exhausted}, nil).Once()
	repo.On("MarkFailed", mock.Anything, int64(1), "broker unavailable").Return(nil).Once()
	producer.On("Publish", mock.Anything, "booking-dlq", mock.Anything, mock.Anything, mock.Anything).
		Return(nil).Once()

	require.NoError(t, p.PublishPending(context.Background()))
	repo.AssertExpectations(t)

	require.Len(t, producer.published, 1)
	assert.Equal(t, "5", producer.published[0].headers[domain.HeaderRetryCount])
}

func TestPublishPending_MarkPublishedFailureIsNotRetried(t *testing.T) {
	p, repo, producer := newTestPublisher()

	event := pendingEvent(1, domain.EventBookingConfirmed)
	repo.On("ClaimPending", mock.Anything, 100).Return([]domain.OutboxEvent{event}, nil)
	producer.On("Publish", mock.Anything, "booking-events", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	repo.On("MarkPublished", mock.Anything, int64(1)).Return(errors.New("connection reset"))

	// The event went out; a stale PROCESSING row is resolved by the next
	// sweep plus consumer dedup, not by marking a retry here.
	require.NoError(t, p.PublishPending(context.Background()))
	repo.AssertNotCalled(t, "MarkRetry", mock.Anything, mock.Anything, mock.Anything)
	repo.AssertNotCalled(t, "MarkFailed", mock.Anything, mock.Anything, mock.Anything)
}

func TestPublishPending_ClaimFailurePropagates(t *testing.T) {
	p, repo, _ := newTestPublisher()

	repo.On("ClaimPending", mock.Anything, 100).Return([]domain.OutboxEvent(nil), errors.New("postgres down"))

	err := p.PublishPending(context.Background())
	assert.EqualError(t, err, "postgres down")
}

func TestPublisher_StartStop(t *testing.T) {
	p, repo, _ := newTestPublisher()
	repo.On("ClaimPending", mock.Anything, 100).Return([]domain.OutboxEvent{}, nil).Maybe()
	repo.On("DeletePublishedBefore", mock.Anything, mock.Anything).Return(int64(0), nil).Maybe()

	p.Start(context.Background())
	p.Stop()
	// Stop is idempotent.
	p.Stop()
}
