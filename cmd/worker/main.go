package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/Domenick1991/bookingsaga/config"
	"github.com/Domenick1991/bookingsaga/internal/domain"
	"github.com/Domenick1991/bookingsaga/internal/email"
	"github.com/Domenick1991/bookingsaga/internal/inventory"
	"github.com/Domenick1991/bookingsaga/internal/kafka"
	"github.com/Domenick1991/bookingsaga/internal/outbox"
	"github.com/Domenick1991/bookingsaga/internal/repository"
	"github.com/Domenick1991/bookingsaga/internal/seatlock"
	"github.com/Domenick1991/bookingsaga/internal/service/booking"
	"github.com/Domenick1991/bookingsaga/pkg/logger"
)

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}

	log := logger.NewLogger()

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		log.Fatal("load config", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatal("connect postgres", "error", err)
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	producer := kafka.NewProducer(cfg.Kafka.Brokers)
	defer producer.Close()

	flightRepo := repository.NewFlightRepository(pool)
	bookingRepo := repository.NewBookingRepository(pool)
	outboxRepo := repository.NewOutboxRepository(pool)
	locks := seatlock.NewManager(redisClient, cfg.Booking.SeatLockTTL())

	bookingService := booking.NewBookingService(
		bookingRepo,
		flightRepo,
		locks,
		outboxRepo,
		log.With("component", "booking_saga"),
		cfg.Booking.PaymentWindow(),
		time.Duration(cfg.Booking.ExtensionSeconds)*time.Second,
	)

	// Outbox publisher: drains pending events to kafka on its own timers.
	publisher := outbox.NewPublisher(outboxRepo, producer, outbox.Config{
		PublishInterval:    time.Duration(cfg.Outbox.PublishIntervalSeconds) * time.Second,
		CleanupInterval:    time.Duration(cfg.Outbox.CleanupIntervalMinutes) * time.Minute,
		BatchSize:          cfg.Outbox.BatchSize,
		MaxRetries:         cfg.Outbox.MaxRetries,
		Retention:          time.Duration(cfg.Outbox.RetentionDays) * 24 * time.Hour,
		FlightEventsTopic:  cfg.Kafka.FlightEventsTopic,
		BookingEventsTopic: cfg.Kafka.BookingEventsTopic,
		DeadLetterTopic:    cfg.Kafka.DeadLetterTopic,
	}, log.With("component", "outbox_publisher"))
	publisher.Start(ctx)
	defer publisher.Stop()

	// Inventory consumer: flight.* events from the main and retry topics,
	// wrapped in the ack policy. An insufficient-seats business failure
	// cancels the booking so the saga compensates.
	invConsumer := inventory.NewConsumer(flightRepo, log.With("component", "inventory_consumer"))
	ackPolicy := kafka.NewAckPolicy(producer, kafka.AckPolicyConfig{
		RetryTopic:      cfg.Kafka.RetryTopic,
		DeadLetterTopic: cfg.Kafka.DeadLetterTopic,
		MaxRedeliveries: cfg.Kafka.MaxRedeliveries,
	}, log.With("component", "ack_policy"))
	ackPolicy.OnBusinessError(func(ctx context.Context, msg kafkago.Message, handlerErr error) {
		if kafka.HeaderValue(msg, domain.HeaderEventType) != domain.EventFlightReserveSeats {
			return
		}
		var event domain.SeatEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			return
		}
		if _, err := bookingService.CancelBooking(ctx, event.BookingID, "", handlerErr.Error()); err != nil {
			log.Error("failed to cancel booking after reservation failure",
				"booking_reference", event.BookingID, "error", err)
		}
	})

	flightConsumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID,
		[]string{cfg.Kafka.FlightEventsTopic, cfg.Kafka.RetryTopic})
	defer flightConsumer.Close()

	go func() {
		if err := flightConsumer.Consume(ctx, ackPolicy.Wrap(invConsumer.Handle)); err != nil && ctx.Err() == nil {
			log.Error("inventory consumer stopped", "error", err)
			stop()
		}
	}()

	// Notification consumer: booking.confirmed / booking.cancelled fan out
	// to the email collaborator.
	sender := email.NewSender(log.With("component", "email"))
	notifyConsumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID+"-notifications",
		[]string{cfg.Kafka.BookingEventsTopic})
	defer notifyConsumer.Close()

	go func() {
		err := notifyConsumer.Consume(ctx, func(ctx context.Context, msg kafkago.Message) error {
			eventType := kafka.HeaderValue(msg, domain.HeaderEventType)
			if eventType != domain.EventBookingConfirmed && eventType != domain.EventBookingCancelled {
				return nil
			}
			var event domain.BookingEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				log.Warn("malformed booking event, skipping", "error", err)
				return nil
			}
			return sender.Send(ctx, eventType, event)
		})
		if err != nil && ctx.Err() == nil {
			log.Error("notification consumer stopped", "error", err)
		}
	}()

	// Expiry sweep: bookings whose payment window lapsed go through the
	// normal cancellation path.
	sweepTicker := time.NewTicker(time.Duration(cfg.Worker.ExpirationSweepSeconds) * time.Second)
	defer sweepTicker.Stop()

	log.Info("worker started")
	for {
		select {
		case <-sweepTicker.C:
			cancelled, err := bookingService.ExpirePendingBookings(ctx)
			if err != nil {
				log.Error("expiry sweep failed", "error", err)
				continue
			}
			if cancelled > 0 {
				log.Info("expired bookings cancelled", "count", cancelled)
			}
		case <-ctx.Done():
			log.Info("shutting down")
			return
		}
	}
}
