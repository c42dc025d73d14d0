package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/bellapacxx/bingo-live/utils/logger"
)

// Broadcast modes.
const (
	BroadcastDirect = "direct" // orchestrator publishes synchronously
	BroadcastFeed   = "feed"   // change-feed listener drives the hub
)

// Config is the typed view of the environment, decoded once at startup.
type Config struct {
	DatabaseURL    string // empty selects the in-memory store
	RedisAddr      string
	Port           string
	CardSecret     string
	JWTSecret      string
	OperatorIDs    []string
	X402URL        string
	CardPrice      float64
	ReservationTTL time.Duration
	PaymentTimeout time.Duration
	SweepInterval  time.Duration
	BroadcastMode  string
	HubWorkers     int
	FeedStream     string
	AllowedOrigins []string
}

// Load reads .env (when present) and the environment.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		logger.Infof("no .env file found, reading environment variables")
	}

	cfg := &Config{
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisAddr:      envOr("REDIS_ADDR", "127.0.0.1:6379"),
		Port:           envOr("PORT", "4000"),
		CardSecret:     envOr("CARD_SECRET", ""),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		OperatorIDs:    splitList(os.Getenv("OPERATOR_IDS")),
		X402URL:        os.Getenv("X402_FACILITATOR_URL"),
		CardPrice:      envFloat("CARD_PRICE", 1.0),
		ReservationTTL: envDuration("RESERVATION_TTL", 3*time.Minute),
		PaymentTimeout: envDuration("PAYMENT_TIMEOUT", 15*time.Second),
		SweepInterval:  envDuration("SWEEP_INTERVAL", 30*time.Second),
		BroadcastMode:  envOr("BROADCAST_MODE", BroadcastDirect),
		HubWorkers:     envInt("HUB_WORKERS", 64),
		FeedStream:     envOr("FEED_STREAM", "bingo:changes"),
		AllowedOrigins: splitList(envOr("ALLOWED_ORIGINS", "http://localhost:3000")),
	}

	if cfg.CardSecret == "" {
		logger.Fatalf("CARD_SECRET is required in .env or environment")
	}
	if cfg.BroadcastMode != BroadcastDirect && cfg.BroadcastMode != BroadcastFeed {
		logger.Fatalf("BROADCAST_MODE must be %q or %q", BroadcastDirect, BroadcastFeed)
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		logger.Warnf("invalid %s=%q, using %d", key, v, fallback)
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
		logger.Warnf("invalid %s=%q, using %g", key, v, fallback)
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		logger.Warnf("invalid %s=%q, using %s", key, v, fallback)
	}
	return fallback
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
