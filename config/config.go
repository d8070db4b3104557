package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Booking  BookingConfig  `yaml:"booking"`
	Outbox   OutboxConfig   `yaml:"outbox"`
	Worker   WorkerConfig   `yaml:"worker"`
}

type HTTPConfig struct {
	Address string `yaml:"address"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s", d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Brokers            []string `yaml:"brokers"`
	FlightEventsTopic  string   `yaml:"flight_events_topic"`
	BookingEventsTopic string   `yaml:"booking_events_topic"`
	RetryTopic         string   `yaml:"retry_topic"`
	DeadLetterTopic    string   `yaml:"dead_letter_topic"`
	GroupID            string   `yaml:"group_id"`
	MaxRedeliveries    int      `yaml:"max_redeliveries"`
}

type BookingConfig struct {
	SeatLockTTLSeconds   int `yaml:"seat_lock_ttl_seconds"`
	PaymentWindowMinutes int `yaml:"payment_window_minutes"`
	ExtensionSeconds     int `yaml:"extension_seconds"`
	FlightsCacheTTLSecs  int `yaml:"flights_cache_ttl_seconds"`
}

func (b BookingConfig) SeatLockTTL() time.Duration {
	return time.Duration(b.SeatLockTTLSeconds) * time.Second
}

func (b BookingConfig) PaymentWindow() time.Duration {
	return time.Duration(b.PaymentWindowMinutes) * time.Minute
}

type OutboxConfig struct {
	PublishIntervalSeconds int `yaml:"publish_interval_seconds"`
	BatchSize              int `yaml:"batch_size"`
	MaxRetries             int `yaml:"max_retries"`
	RetentionDays          int `yaml:"retention_days"`
	CleanupIntervalMinutes int `yaml:"cleanup_interval_minutes"`
}

type WorkerConfig struct {
	ExpirationSweepSeconds int `yaml:"expiration_sweep_seconds"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyDefaults()

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Booking.SeatLockTTLSeconds == 0 {
		c.Booking.SeatLockTTLSeconds = 900
	}
	if c.Booking.PaymentWindowMinutes == 0 {
		c.Booking.PaymentWindowMinutes = 15
	}
	if c.Booking.ExtensionSeconds == 0 {
		c.Booking.ExtensionSeconds = 300
	}
	if c.Outbox.PublishIntervalSeconds == 0 {
		c.Outbox.PublishIntervalSeconds = 5
	}
	if c.Outbox.BatchSize == 0 {
		c.Outbox.BatchSize = 100
	}
	if c.Outbox.MaxRetries == 0 {
		c.Outbox.MaxRetries = 3
	}
	if c.Outbox.RetentionDays == 0 {
		c.Outbox.RetentionDays = 7
	}
	if c.Outbox.CleanupIntervalMinutes == 0 {
		c.Outbox.CleanupIntervalMinutes = 60
	}
	if c.Kafka.MaxRedeliveries == 0 {
		c.Kafka.MaxRedeliveries = 5
	}
	if c.Worker.ExpirationSweepSeconds == 0 {
		c.Worker.ExpirationSweepSeconds = 60
	}
}
