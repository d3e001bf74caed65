package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-fulfillment/internal/config"
	"ms-fulfillment/internal/database/migrations"
	"ms-fulfillment/internal/dispatch"
	"ms-fulfillment/internal/inventory"
	"ms-fulfillment/internal/kafka"
	"ms-fulfillment/internal/logger"
	"ms-fulfillment/internal/models"
	"ms-fulfillment/internal/order"
	"ms-fulfillment/internal/order/db"
	"ms-fulfillment/internal/order/order_api"
	rediswrap "ms-fulfillment/internal/order/redis"
	"ms-fulfillment/internal/payment/handler"
	"ms-fulfillment/internal/payment/providers"
	"ms-fulfillment/internal/promo"
)

func connectPostgres(cfg config.DatabaseConfig, log *logger.Logger) *bun.DB {
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	var sqldb *sql.DB
	var err error
	maxRetries := 5

	for i := 0; i < maxRetries; i++ {
		log.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
		sqldb, err = sql.Open("postgres", dsn)
		if err == nil {
			err = sqldb.Ping()
		}
		if err == nil {
			break
		}
		log.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
		if i < maxRetries-1 {
			time.Sleep(2 * time.Second)
		}
	}
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL after %d attempts: %v", maxRetries, err))
	}

	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.MaxLifetime)

	log.Info("DATABASE", "✅ PostgreSQL connection successful")
	return bun.NewDB(sqldb, pgdialect.New())
}

func connectRedis(ctx context.Context, cfg config.RedisConfig, log *logger.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{Addr: cfg.Addr})
	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Redis connection error: %v", err))
	}
	log.Info("DATABASE", fmt.Sprintf("✅ Redis connection successful to %s", cfg.Addr))
	return client
}

// noopPublisher stands in for Kafka when it is disabled in config.
type noopPublisher struct{}

func (noopPublisher) PublishOrderEvent(topic, eventType string, order models.Order) error {
	return nil
}

func main() {
	log := logger.NewLogger()
	defer log.Close()

	log.Info("APP", "Starting Fulfillment Service initialization")

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		log.Info("CONFIG", "Loaded environment variables from .env file")
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatal("CONFIG", err.Error())
	}
	log.Info("CONFIG", fmt.Sprintf("Enabled payment providers: %v", cfg.EnabledProviders()))

	ctx := context.Background()

	bunDB := connectPostgres(cfg.Database, log)
	defer bunDB.Close()

	migrateOpts := migrations.DefaultOptions()
	if dir := os.Getenv("MIGRATIONS_DIR"); dir != "" {
		migrateOpts.MigrationsDir = dir
	}
	migrateOpts.SeedData = os.Getenv("SEED_DEMO_DATA") == "true"

	runner := migrations.NewRunner(bunDB, migrateOpts, log)
	if err := runner.Run(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Migrations failed: %v", err))
	}

	redisClient := connectRedis(ctx, cfg.Redis, log)
	defer redisClient.Close()

	var publisher order.EventPublisher = noopPublisher{}
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka.Brokers)
		defer producer.Close()

		topics := []string{
			cfg.Kafka.Topics.OrderCreated,
			cfg.Kafka.Topics.OrderScanned,
			cfg.Kafka.Topics.OrderReconcile,
		}
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, topics); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		} else {
			log.Info("KAFKA", "Required topics ensured successfully")
		}
		publisher = producer
	} else {
		log.Warn("KAFKA", "Kafka disabled, order events will not be published")
	}

	qrSecret := os.Getenv("QR_SECRET")
	if qrSecret == "" {
		log.Warn("CONFIG", "QR_SECRET not set, using an insecure default")
		qrSecret = "dev-only-secret"
	}

	dispatcher := dispatch.NewDispatcher(
		dispatch.NewQRGenerator(qrSecret),
		dispatch.NewTicketPDFGenerator(os.Getenv("TICKET_FONT_PATH")),
		dispatch.NewMailer(cfg.Email),
		log,
	)

	orderService := order.NewService(
		&db.DB{Bun: bunDB},
		inventory.NewLedger(bunDB, log),
		promo.NewResolver(bunDB, log),
		rediswrap.NewRedis(redisClient),
		publisher,
		dispatcher,
		cfg.Kafka.Topics,
		log,
	)

	registry := providers.BuildRegistry(cfg.Providers)
	webhookHandler := handler.NewWebhookHandler(registry, orderService, log)
	apiHandler := order_api.NewHandler(orderService, promo.NewResolver(bunDB, log), log)

	log.Info("HTTP", "Setting up router")
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/webhooks/{provider}", webhookHandler.HandleWebhook)

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", apiHandler.CreateOrder)
			r.Get("/{reference}", apiHandler.GetOrder)
		})

		// Door scanners issue GET; both verbs consume the ticket. The
		// read-only preview lives on /status.
		r.Route("/scan", func(r chi.Router) {
			r.Get("/{reference}", apiHandler.Scan)
			r.Post("/{reference}", apiHandler.Scan)
			r.Get("/{reference}/status", apiHandler.ScanStatus)
		})

		r.Get("/events/{eventId}/orders", apiHandler.ListEventOrders)

		r.Route("/promos", func(r chi.Router) {
			r.Post("/", apiHandler.CreatePromo)
			r.Post("/apply", apiHandler.ApplyPromo)
			r.Get("/", apiHandler.ListPromos)
			r.Get("/orders", apiHandler.ListPromoOrders)
		})
	})
	log.Info("ROUTER", "Webhook, order, scan and promo routes registered under /api/v1")

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("🚀 Fulfillment Service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	log.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	ctxShutdown, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	} else {
		log.Info("HTTP", "✅ Fulfillment Service shutdown complete")
	}
}
