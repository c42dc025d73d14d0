package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/bellapacxx/bingo-live/config"
	"github.com/bellapacxx/bingo-live/utils/logger"
)

func main() {
	if err := godotenv.Load(); err != nil {
		logger.Infof("no .env file found, reading environment variables")
	}

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		logger.Fatalf("DATABASE_URL is required")
	}

	if _, err := config.SetupDatabase(dsn); err != nil {
		logger.Fatalf("migration failed: %v", err)
	}
	logger.Infof("database migration completed")
}
