package main

import (
	"flag"
	"os"

	"github.com/joho/godotenv"

	"github.com/otplogin/internal/config"
	"github.com/otplogin/internal/db"
	"github.com/otplogin/internal/logger"
)

func main() {
	direction := flag.String("direction", "up", "migration direction: up or down")
	flag.Parse()

	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	_ = godotenv.Load(envFile)

	environment := os.Getenv("APP_ENV")
	if environment == "" {
		environment = "production"
	}
	appLogger := logger.InitLogger(environment, os.Getenv("LOG_JSON") == "true")

	dsn := config.DatabaseURL()
	if err := db.Migrate(dsn, *direction); err != nil {
		appLogger.Error("Migration failed", "direction", *direction, "error", err)
		os.Exit(1)
	}

	appLogger.Info("Migration complete", "direction", *direction)
}
