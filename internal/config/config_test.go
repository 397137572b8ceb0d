package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, ":8081", cfg.HTTPAddr)
	assert.Equal(t, []string{"kafka:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 15*time.Minute, cfg.ReservationTTL)
	assert.True(t, cfg.TaxRate.Equal(decimal.RequireFromString("0.10")))
	assert.True(t, cfg.BaseShipping.Equal(decimal.RequireFromString("5.99")))
	assert.Equal(t, "USD", cfg.Currency)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,,")
	t.Setenv("RESERVATION_TTL", "90s")
	t.Setenv("STORAGE", "Memory")
	t.Setenv("CURRENCY", "eur")

	cfg := Load()

	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 90*time.Second, cfg.ReservationTTL)
	assert.Equal(t, "memory", cfg.Storage)
	assert.Equal(t, "EUR", cfg.Currency)
}
