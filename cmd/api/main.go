// cmd/api/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/your-org/vineyard-shop/internal/config"
	"github.com/your-org/vineyard-shop/internal/domain/vat"
	"github.com/your-org/vineyard-shop/internal/infrastructure/database/postgres"
	"github.com/your-org/vineyard-shop/internal/infrastructure/database/redis"
	"github.com/your-org/vineyard-shop/internal/interfaces/http"
	"github.com/your-org/vineyard-shop/internal/pkg/logging"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.New(cfg.Logging)
	logger.WithFields(logrus.Fields{
		"app":         cfg.App.Name,
		"version":     cfg.App.Version,
		"environment": cfg.App.Environment,
	}).Info("Starting API")

	// Connect to database
	db, err := postgres.NewConnection(cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Connect to Redis
	redisClient, err := redis.NewConnection(cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()

	if err := db.Health(context.Background()); err != nil {
		logger.Fatalf("Database health check failed: %v", err)
	}

	// Run database migrations
	migration := postgres.NewMigration(db.GetDB(), logger)
	if err := migration.RunAutoMigrations(); err != nil {
		logger.Fatalf("Database migration failed: %v", err)
	}
	if err := migration.CreateIndexes(); err != nil {
		logger.Warnf("Index creation failed: %v", err)
	}

	// Seed initial data in development
	if cfg.IsDevelopment() {
		if err := migration.SeedInitialData(); err != nil {
			logger.Warnf("Data seeding failed: %v", err)
		}
		if err := migration.GetTableInfo(); err != nil {
			logger.Warnf("Table info failed: %v", err)
		}
	}

	rates, err := vat.BuildTable(cfg.VAT.RatesFile)
	if err != nil {
		logger.Fatalf("Failed to load VAT rates: %v", err)
	}
	calculator := vat.NewCalculator(cfg.VAT.SellerCountry, rates)
	logger.WithFields(logrus.Fields{
		"seller_country": calculator.SellerCountry(),
		"countries":      len(rates.Countries()),
	}).Info("VAT engine ready")

	server := http.NewServer(cfg, db.GetDB(), redisClient.GetClient(), calculator, logger)

	go func() {
		if err := server.Start(); err != nil {
			logger.Fatalf("Failed to start HTTP server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down gracefully")

	// Give server 30 seconds to shutdown gracefully
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Stop(ctx); err != nil {
		logger.Errorf("Failed to shutdown HTTP server gracefully: %v", err)
	}

	logger.Info("Server shutdown completed")
}
