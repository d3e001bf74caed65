package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, ":8080", cfg.Server.Port)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "tickets.orders.created", cfg.Kafka.Topics.OrderCreated)
	assert.Equal(t, "tickets.orders.scanned", cfg.Kafka.Topics.OrderScanned)
	assert.Equal(t, "tickets.orders.reconcile", cfg.Kafka.Topics.OrderReconcile)
	assert.True(t, cfg.Kafka.Enabled)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", ":9000")
	t.Setenv("KAFKA_ENABLED", "false")
	t.Setenv("DB_MAX_OPEN_CONNS", "50")

	cfg := Load()
	assert.Equal(t, ":9000", cfg.Server.Port)
	assert.False(t, cfg.Kafka.Enabled)
	assert.Equal(t, 50, cfg.Database.MaxOpenConns)
}

func TestValidateRequiresAProvider(t *testing.T) {
	cfg := Load()
	cfg.Providers = ProviderConfig{}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no payment provider configured")

	cfg.Providers.PaystackSecretKey = "sk_test"
	assert.NoError(t, cfg.Validate())
}

func TestEnabledProviders(t *testing.T) {
	cfg := Load()
	cfg.Providers = ProviderConfig{
		PaystackSecretKey:    "sk",
		AlatPayWebhookSecret: "secret",
	}

	assert.ElementsMatch(t, []string{"paystack", "alatpay"}, cfg.EnabledProviders())
}
