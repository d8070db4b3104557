package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
http:
  address: ":9090"
database:
  host: db
  port: 5432
  user: booking
  password: secret
  name: booking
  ssl_mode: disable
kafka:
  brokers: ["kafka:9092"]
  flight_events_topic: flight-events
booking:
  seat_lock_ttl_seconds: 600
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTP.Address)
	assert.Equal(t, "host=db port=5432 user=booking password=secret dbname=booking sslmode=disable", cfg.Database.DSN())
	assert.Equal(t, []string{"kafka:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 10*time.Minute, cfg.Booking.SeatLockTTL())
}

func TestLoadConfig_Defaults(t *testing.T) {
	path := writeConfig(t, "http:\n  address: \":8080\"\n")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 900*time.Second, cfg.Booking.SeatLockTTL())
	assert.Equal(t, 15*time.Minute, cfg.Booking.PaymentWindow())
	assert.Equal(t, 300, cfg.Booking.ExtensionSeconds)
	assert.Equal(t, 100, cfg.Outbox.BatchSize)
	assert.Equal(t, 3, cfg.Outbox.MaxRetries)
	assert.Equal(t, 7, cfg.Outbox.RetentionDays)
	assert.Equal(t, 5, cfg.Kafka.MaxRedeliveries)
	assert.Equal(t, 60, cfg.Worker.ExpirationSweepSeconds)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig("does-not-exist.yaml")
	assert.Error(t, err)
}

func TestLoadConfig_MalformedYAML(t *testing.T) {
	path := writeConfig(t, "http: [not a mapping")
	_, err := LoadConfig(path)
	assert.Error(t, err)
}
