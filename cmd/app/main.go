package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/Domenick1991/bookingsaga/api"
	"github.com/Domenick1991/bookingsaga/config"
	"github.com/Domenick1991/bookingsaga/internal/cache"
	"github.com/Domenick1991/bookingsaga/internal/repository"
	"github.com/Domenick1991/bookingsaga/internal/seatlock"
	"github.com/Domenick1991/bookingsaga/internal/service/booking"
	"github.com/Domenick1991/bookingsaga/internal/service/flights"
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

	flightRepo := repository.NewFlightRepository(pool)
	bookingRepo := repository.NewBookingRepository(pool)
	outboxRepo := repository.NewOutboxRepository(pool)

	locks := seatlock.NewManager(redisClient, cfg.Booking.SeatLockTTL())
	flightCache := cache.NewFlightCache(redisClient, time.Duration(cfg.Booking.FlightsCacheTTLSecs)*time.Second)

	flightService := flights.NewFlightService(flightRepo, flightCache)
	bookingService := booking.NewBookingService(
		bookingRepo,
		flightRepo,
		locks,
		outboxRepo,
		log.With("component", "booking_saga"),
		cfg.Booking.PaymentWindow(),
		time.Duration(cfg.Booking.ExtensionSeconds)*time.Second,
	)

	router := gin.New()
	router.Use(gin.Recovery())
	api.NewBookingHandler(bookingService).Register(router.Group("/bookings"))
	api.NewFlightHandler(flightService).Register(router.Group("/flights"))

	srv := &http.Server{Addr: cfg.HTTP.Address, Handler: router}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "error", err)
			stop()
		}
	}()
	log.Info("booking api started", "address", cfg.HTTP.Address)

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown http server", "error", err)
	}
}
