package main

import (
	"log"

	"github.com/joho/godotenv"

	"github.com/playmatatu/plinko/internal/config"
	"github.com/playmatatu/plinko/internal/database"
	"github.com/playmatatu/plinko/internal/migrations"
	"github.com/playmatatu/plinko/internal/operators"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Initialize configuration
	cfg := config.Load()

	// Initialize database
	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := migrations.Run(db, cfg.DatabaseURL); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	if cfg.OperatorKey == "" {
		log.Fatalf("OPERATOR_KEY is required (at least %d characters)", operators.MinKeyLength)
	}

	if err := operators.Create(db, cfg.OperatorName, cfg.OperatorKey); err != nil {
		log.Fatalf("Failed to create operator: %v", err)
	}

	log.Printf("✓ Operator created/updated successfully")
	log.Printf("  Name: %s", cfg.OperatorName)
	log.Println("\nRequest a token with:")
	log.Printf("  POST /api/v1/auth/token {\"operator\": %q, \"key\": \"<OPERATOR_KEY>\"}", cfg.OperatorName)
}
