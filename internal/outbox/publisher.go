package outbox

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Domenick1991/bookingsaga/internal/domain"
	"github.com/Domenick1991/bookingsaga/internal/repository"
	"github.com/Domenick1991/bookingsaga/pkg/logger"
)

// Producer is the delivery surface needed to drain the outbox.
type Producer interface {
	Publish(ctx context.Context, topic, key string, value []byte, headers map[string]string) error
}

type Config struct {
	PublishInterval time.Duration
	CleanupInterval time.Duration
	BatchSize       int
	// MaxRetries is the delivery-attempt budget per event. When zero the
	// budget recorded on the event row applies.
	MaxRetries int
	Retention  time.Duration

	FlightEventsTopic  string
	BookingEventsTopic string
	DeadLetterTopic    string
}

// Publisher drains PENDING outbox rows to Kafka on a timer, independent of
// request handling. Claiming moves rows to PROCESSING so overlapping sweeps
// never double-claim; a crash mid-sweep can at worst re-publish a claimed
// row, never lose one, which is why consumers dedup on event id.
type Publisher struct {
	repo     repository.OutboxRepository
	producer Producer
	cfg      Config
	log      logger.Logger

	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

func NewPublisher(repo repository.OutboxRepository, producer Producer, cfg Config, log logger.Logger) *Publisher {
	return &Publisher{
		repo:     repo,
		producer: producer,
		cfg:      cfg,
		log:      log,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

func (p *Publisher) Start(ctx context.Context) {
	go p.loop(ctx)
}

func (p *Publisher) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopCh)
	})
	<-p.doneCh
}

func (p *Publisher) loop(ctx context.Context) {
	publishTicker := time.NewTicker(p.cfg.PublishInterval)
	cleanupTicker := time.NewTicker(p.cfg.CleanupInterval)
	defer func() {
		publishTicker.Stop()
		cleanupTicker.Stop()
		close(p.doneCh)
	}()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-publishTicker.C:
			if err := p.PublishPending(ctx); err != nil {
				p.log.Error("outbox sweep failed", "error", err)
			}
		case <-cleanupTicker.C:
			deleted, err := p.repo.DeletePublishedBefore(ctx, time.Now().Add(-p.cfg.Retention))
			if err != nil {
				p.log.Error("outbox cleanup failed", "error", err)
			} else if deleted > 0 {
				p.log.Info("outbox cleanup removed published events", "count", deleted)
			}
		}
	}
}

// PublishPending runs one sweep: claim up to BatchSize pending events oldest
// first and attempt delivery of each.
func (p *Publisher) PublishPending(ctx context.Context) error {
	events, err := p.repo.ClaimPending(ctx, p.cfg.BatchSize)
	if err != nil {
		return err
	}

	for i := range events {
		p.publishOne(ctx, &events[i])
	}
	return nil
}

func (p *Publisher) publishOne(ctx context.Context, event *domain.OutboxEvent) {
	headers := map[string]string{
		domain.HeaderEventID:   event.EventID,
		domain.HeaderEventType: event.EventType,
		domain.HeaderTraceID:   event.TraceID,
	}

	err := p.producer.Publish(ctx, p.topicFor(event.EventType), event.AggregateID, event.Payload, headers)
	if err == nil {
		if markErr := p.repo.MarkPublished(ctx, event.ID); markErr != nil {
			// The event went out; a stale PROCESSING row means at worst a
			// duplicate publish on the next sweep, which consumers dedup.
			p.log.Error("failed to mark outbox event published", "event_id", event.EventID, "error", markErr)
		}
		return
	}

	maxRetries := p.cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = event.MaxRetries
	}
	if event.RetryCount+1 >= maxRetries {
		p.log.Error("outbox event exhausted retries, dead-lettering",
			"event_id", event.EventID, "event_type", event.EventType, "error", err)
		if markErr := p.repo.MarkFailed(ctx, event.ID, err.Error()); markErr != nil {
			p.log.Error("failed to mark outbox event failed", "event_id", event.EventID, "error", markErr)
			return
		}
		p.deadLetter(ctx, event, err)
		return
	}

	p.log.Warn("outbox publish failed, will retry",
		"event_id", event.EventID, "retry_count", event.RetryCount+1, "error", err)
	if markErr := p.repo.MarkRetry(ctx, event.ID, err.Error()); markErr != nil {
		p.log.Error("failed to mark outbox event for retry", "event_id", event.EventID, "error", markErr)
	}
}

// deadLetter is best effort: a failed dead-letter publish is logged and not
// retried.
func (p *Publisher) deadLetter(ctx context.Context, event *domain.OutboxEvent, cause error) {
	headers := map[string]string{
		domain.HeaderEventID:    event.EventID,
		domain.HeaderEventType:  event.EventType,
		domain.HeaderTraceID:    event.TraceID,
		domain.HeaderRetryCount: strconv.Itoa(event.RetryCount + 1),
		"x-last-error":          cause.Error(),
	}
	if err := p.producer.Publish(ctx, p.cfg.DeadLetterTopic, event.AggregateID, event.Payload, headers); err != nil {
		p.log.Error("dead-letter publish failed", "event_id", event.EventID, "error", err)
	}
}

func (p *Publisher) topicFor(eventType string) string {
	if strings.HasPrefix(eventType, "flight.") {
		return p.cfg.FlightEventsTopic
	}
	return p.cfg.BookingEventsTopic
}
