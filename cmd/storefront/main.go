// cmd/storefront/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/your-org/bookstore-storefront/internal/app"
	"github.com/your-org/bookstore-storefront/internal/config"
	"github.com/your-org/bookstore-storefront/internal/infrastructure/database/postgres"
	"github.com/your-org/bookstore-storefront/internal/infrastructure/database/redis"
	"github.com/your-org/bookstore-storefront/internal/infrastructure/storage"
	"github.com/your-org/bookstore-storefront/internal/interfaces/http"
	"github.com/your-org/bookstore-storefront/internal/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	log := logger.New(cfg)
	log.WithFields(logrus.Fields{
		"name":        cfg.App.Name,
		"version":     cfg.App.Version,
		"environment": cfg.App.Environment,
		"storage":     cfg.Storage.Backend,
	}).Info("Starting storefront")

	checks := map[string]http.HealthCheck{}

	// Redis backs rate limiting whenever it is reachable, and durable
	// storage when selected.
	var redisClient *redis.Client
	if cfg.Storage.Backend == "redis" || cfg.Security.RateLimitPerMinute > 0 {
		redisClient, err = redis.NewConnection(cfg, log)
		if err != nil {
			if cfg.Storage.Backend == "redis" {
				log.Fatalf("Failed to connect to Redis: %v", err)
			}
			log.WithError(err).Warn("Redis unavailable, rate limiting disabled")
			redisClient = nil
		} else {
			defer redisClient.Close()
			checks["redis"] = redisClient.Health
		}
	}

	var durable storage.Backend
	switch cfg.Storage.Backend {
	case "redis":
		durable = storage.NewRedis(redisClient.GetClient(), cfg.Storage.KeyPrefix)
	case "postgres":
		db, err := postgres.NewConnection(cfg, log)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()

		migration := postgres.NewMigration(db.GetDB(), log)
		if err := migration.RunAutoMigrations(); err != nil {
			log.Fatalf("Database migration failed: %v", err)
		}
		if _, err := migration.CreateIndexes(); err != nil {
			log.WithError(err).Warn("Index creation failed")
		}

		durable = storage.NewGorm(db.GetDB())
		checks["database"] = db.Health
	default:
		log.Warn("Using in-memory durable storage, guest carts are lost on restart")
		durable = storage.NewMemory()
	}

	registry := app.NewRegistry(app.NewBuilder(cfg, durable, log), cfg.Session.ContextIdleTTL, log)
	registry.SetMaxContexts(cfg.Session.MaxContexts)
	defer registry.Close()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	go registry.Run(ctx, time.Minute)

	server := http.NewServer(cfg, registry, redisClient.GetClient(), checks, log)

	go func() {
		if err := server.Start(); err != nil {
			log.Fatalf("Failed to start HTTP server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Stop(shutdownCtx); err != nil {
		log.WithError(err).Error("Failed to shutdown HTTP server gracefully")
	}

	log.Info("Server shutdown completed")
}
