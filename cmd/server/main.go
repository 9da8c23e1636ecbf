package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel"

	"github.com/otplogin/internal/config"
	"github.com/otplogin/internal/db"
	"github.com/otplogin/internal/http"
	"github.com/otplogin/internal/logger"
	"github.com/otplogin/internal/stytch"
	"github.com/otplogin/internal/telemetry"
)

func main() {
	// Load .env file if it exists (optional, won't error if missing)
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil {
		log.Printf("No %s file loaded: %v", envFile, err)
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger := logger.InitLogger(cfg.Environment, cfg.LogJSON)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := telemetry.NewProviders(ctx, cfg.Telemetry.OTLPEndpoint, cfg.Telemetry.ServiceName, cfg.Telemetry.Insecure)
	if err != nil {
		appLogger.Error("Failed to initialize telemetry", "error", err)
		os.Exit(1)
	}
	providers.SetGlobal()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			appLogger.Warn("Telemetry shutdown failed", "error", err)
		}
	}()

	metrics, err := telemetry.NewLoginMetrics(otel.Meter(telemetry.MeterName))
	if err != nil {
		appLogger.Error("Failed to create login metrics", "error", err)
		os.Exit(1)
	}

	// Initialize database (runs pending migrations)
	database, err := db.Init(cfg.DatabaseURL)
	if err != nil {
		appLogger.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	stytchClient, err := stytch.NewClient(cfg.Stytch.ProjectID, cfg.Stytch.Secret, cfg.Stytch.Env,
		stytch.WithBaseURL(cfg.Stytch.BaseURL))
	if err != nil {
		appLogger.Error("Failed to create Stytch client", "error", err)
		os.Exit(1)
	}

	localUsers, err := database.CountUsers(ctx)
	if err != nil {
		appLogger.Error("Failed to count local users", "error", err)
		os.Exit(1)
	}

	appLogger.Info("Configuration loaded",
		"environment", cfg.Environment,
		"database_driver", database.Driver(),
		"local_users", localUsers,
		"stytch_base_url", stytchClient.BaseURL(),
		"sms_countries", cfg.SMS.SupportedCountries,
		"telemetry_enabled", cfg.Telemetry.OTLPEndpoint != "",
	)

	server := http.NewServer(cfg, database, stytchClient, metrics)

	if err := server.Run(ctx); err != nil {
		appLogger.Error("Server stopped with error", "error", err)
		os.Exit(1)
	}
	appLogger.Info("Server stopped")
}
