package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"ms-blindbox/internal/blindbox"
	"ms-blindbox/internal/blindbox/api"
	"ms-blindbox/internal/blindbox/db"
	"ms-blindbox/internal/config"
	appkafka "ms-blindbox/internal/kafka"
	"ms-blindbox/internal/logger"
	"ms-blindbox/internal/payments"
	"ms-blindbox/internal/random"
	"ms-blindbox/internal/ratelimit"

	"ms-blindbox/internal/database/migrations"
)

func main() {
	ctx := context.Background()

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := config.Load()
	appLogger := logger.NewLogger()
	defer appLogger.Close()

	// --- PostgreSQL Setup ---
	connector := pgdriver.NewConnector(pgdriver.WithDSN(cfg.Database.DSN))
	sqldb := sql.OpenDB(connector)
	defer sqldb.Close()

	sqldb.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.Database.MaxLifetime)

	if err := sqldb.PingContext(ctx); err != nil {
		appLogger.Fatal("DATABASE", fmt.Sprintf("Failed to connect to Postgres: %v", err))
	}
	bunDB := bun.NewDB(sqldb, pgdialect.New())

	// --- Migrations ---
	runner := migrations.NewRunner(bunDB, migrations.DefaultOptions())
	if err := runner.RunMigrations(); err != nil {
		appLogger.Fatal("DATABASE", fmt.Sprintf("Migrations failed: %v", err))
	}
	_ = runner.Close()

	// --- Redis Setup ---
	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		appLogger.Fatal("REDIS", fmt.Sprintf("Failed to connect to Redis: %v", err))
	}
	defer redisClient.Close()

	// --- Kafka Setup ---
	var events blindbox.EventPublisher
	if cfg.Kafka.Enabled {
		producer := appkafka.NewProducer(cfg.Kafka, appLogger)
		defer producer.Close()
		events = producer
	}

	// --- Stripe + Core Service ---
	gateway, err := payments.NewStripeGateway(cfg.Stripe, cfg.Pricing, appLogger)
	if err != nil {
		appLogger.Fatal("PAYMENT", fmt.Sprintf("Failed to initialise Stripe gateway: %v", err))
	}
	verifier := payments.NewVerifier(gateway, cfg.Pricing, appLogger)
	selector := random.NewSelector()

	dbLayer := &db.DB{Bun: bunDB}
	service := blindbox.NewService(dbLayer, gateway, verifier, selector, events, cfg.Pricing, appLogger)

	handler := api.NewHandler(service, appLogger)
	if cfg.RateLimit.Enabled {
		limiter := ratelimit.NewLimiter(redisClient, appLogger, cfg.RateLimit.MaxRequests, cfg.RateLimit.Window)
		handler.RateLimit = limiter.Middleware("shop")
	}

	// --- Setup Router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Route("/api/v1", handler.Routes)

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		appLogger.Info("SERVER", fmt.Sprintf("Shop service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal("SERVER", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("SERVER", "Shutdown signal received, cleaning up...")

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		appLogger.Fatal("SERVER", fmt.Sprintf("Server forced to shutdown: %v", err))
	}
	appLogger.Info("SERVER", "Server exited gracefully")
}
