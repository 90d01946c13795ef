package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// Environment
	Environment string

	// Database: postgres://... or sqlite://path (sqlite://:memory: for tests)
	DatabaseURL    string
	MigrateOnStart bool

	// Redis (empty disables counters and cross-instance fan-out)
	RedisURL string

	// Server
	Port        string
	FrontendURL string

	// Boards
	PresetsFile      string
	FrameRate        int
	FrameSampleEvery int
	MaxDropHistory   int

	// Security
	JWTSecret       string
	TokenTTLMinutes int

	// Seed command
	OperatorName string
	OperatorKey  string
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	return &Config{
		// Environment
		Environment: getEnv("APP_ENV", "development"),

		// Database
		DatabaseURL:    getEnv("DATABASE_URL", "sqlite://plinko.db"),
		MigrateOnStart: getEnvBool("MIGRATE_ON_START", false),

		// Redis
		RedisURL: getEnv("REDIS_URL", ""),

		// Server
		Port:        getEnv("APP_PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:5173"),

		// Boards
		PresetsFile:      getEnv("PRESETS_FILE", ""),
		FrameRate:        getEnvInt("FRAME_RATE", 60),
		FrameSampleEvery: getEnvInt("FRAME_SAMPLE_EVERY", 4),
		MaxDropHistory:   getEnvInt("MAX_DROP_HISTORY", 100),

		// Security
		JWTSecret:       getEnv("JWT_SECRET", "change-me-in-production"),
		TokenTTLMinutes: getEnvInt("TOKEN_TTL_MINUTES", 60),

		// Seed command
		OperatorName: getEnv("OPERATOR_NAME", "house"),
		OperatorKey:  getEnv("OPERATOR_KEY", ""),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
