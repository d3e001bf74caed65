package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Email     EmailConfig
	Providers ProviderConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type DatabaseConfig struct {
	Host         string
	Port         string
	Username     string
	Password     string
	Database     string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
}

type RedisConfig struct {
	Addr string
}

type KafkaConfig struct {
	Brokers []string
	Topics  TopicConfig
	Enabled bool
}

type TopicConfig struct {
	OrderCreated   string
	OrderScanned   string
	OrderReconcile string
}

type EmailConfig struct {
	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	FromName     string
}

// ProviderConfig holds webhook credentials for each payment gateway.
// A provider with an empty secret is treated as disabled: its webhook
// route is registered but refuses traffic, instead of failing lazily
// on the first delivery.
type ProviderConfig struct {
	PaystackSecretKey    string
	StripeWebhookSecret  string
	FincraWebhookSecret  string
	AlatPayWebhookSecret string
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", ":8080"),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			Username:     getEnv("DB_USERNAME", "tickets_user"),
			Password:     getEnv("DB_PASSWORD", "tickets_pass"),
			Database:     getEnv("DB_NAME", "tickets"),
			MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  time.Duration(getEnvInt("DB_MAX_LIFETIME_MINUTES", 5)) * time.Minute,
		},
		Redis: RedisConfig{
			Addr: getEnv("REDIS_ADDR", "localhost:6379"),
		},
		Kafka: KafkaConfig{
			Brokers: []string{getEnv("KAFKA_BROKERS", "localhost:9092")},
			Enabled: getEnvBool("KAFKA_ENABLED", true),
			Topics: TopicConfig{
				OrderCreated:   getEnv("KAFKA_TOPIC_ORDER_CREATED", "tickets.orders.created"),
				OrderScanned:   getEnv("KAFKA_TOPIC_ORDER_SCANNED", "tickets.orders.scanned"),
				OrderReconcile: getEnv("KAFKA_TOPIC_ORDER_RECONCILE", "tickets.orders.reconcile"),
			},
		},
		Email: EmailConfig{
			SMTPHost:     getEnv("SMTP_HOST", "mail.privateemail.com"),
			SMTPPort:     getEnv("SMTP_PORT", "465"),
			SMTPUsername: getEnv("SMTP_USERNAME", ""),
			SMTPPassword: getEnv("SMTP_PASSWORD", ""),
			FromName:     getEnv("SMTP_FROM_NAME", "234 Tickets"),
		},
		Providers: ProviderConfig{
			PaystackSecretKey:    getEnv("PAYSTACK_SECRET_KEY", ""),
			StripeWebhookSecret:  getEnv("STRIPE_WEBHOOK_SECRET", ""),
			FincraWebhookSecret:  getEnv("FINCRA_WEBHOOK_SECRET", ""),
			AlatPayWebhookSecret: getEnv("ALATPAY_WEBHOOK_SECRET", ""),
		},
	}
}

// Validate checks the parts of the config that must be present before the
// service accepts traffic. Provider secrets are allowed to be absent (that
// provider is disabled), but at least one gateway must be configured.
func (c *Config) Validate() error {
	if c.Database.Host == "" || c.Database.Database == "" {
		return fmt.Errorf("database host and name are required")
	}
	if len(c.EnabledProviders()) == 0 {
		return fmt.Errorf("no payment provider configured: set at least one of PAYSTACK_SECRET_KEY, STRIPE_WEBHOOK_SECRET, FINCRA_WEBHOOK_SECRET, ALATPAY_WEBHOOK_SECRET")
	}
	return nil
}

// EnabledProviders returns the names of gateways that have credentials.
func (c *Config) EnabledProviders() []string {
	var enabled []string
	if c.Providers.PaystackSecretKey != "" {
		enabled = append(enabled, "paystack")
	}
	if c.Providers.StripeWebhookSecret != "" {
		enabled = append(enabled, "stripe")
	}
	if c.Providers.FincraWebhookSecret != "" {
		enabled = append(enabled, "fincra")
	}
	if c.Providers.AlatPayWebhookSecret != "" {
		enabled = append(enabled, "alatpay")
	}
	return enabled
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
