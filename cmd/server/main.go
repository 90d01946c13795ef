package main

import (
	"context"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/playmatatu/plinko/internal/api"
	"github.com/playmatatu/plinko/internal/config"
	"github.com/playmatatu/plinko/internal/database"
	"github.com/playmatatu/plinko/internal/drops"
	"github.com/playmatatu/plinko/internal/migrations"
	"github.com/playmatatu/plinko/internal/presets"
	"github.com/playmatatu/plinko/internal/redis"
	"github.com/playmatatu/plinko/internal/ws"
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

	// SQLite schemas are bootstrapped on every start; postgres only on request.
	dialect, _, _ := database.ParseURL(cfg.DatabaseURL)
	if cfg.MigrateOnStart || dialect == database.SQLite {
		log.Println("↗ Running DB migrations on startup...")
		if err := migrations.Run(db, cfg.DatabaseURL); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
	}

	// Initialize Redis (optional)
	rdb, err := redis.Connect(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	if rdb != nil {
		defer rdb.Close()
	} else {
		log.Println("[REDIS] REDIS_URL not set - counters and drop feed stay local to this instance")
	}

	// Load board presets
	set, err := presets.Load(cfg.PresetsFile)
	if err != nil {
		log.Fatalf("Failed to load presets: %v", err)
	}
	log.Printf("[PRESETS] %d boards loaded (default %s)", len(set.Names()), set.Default().Name)

	svc := drops.NewService(set, drops.NewStore(db), rdb, cfg.FrameSampleEvery)

	// Live board hub and cross-instance drop feed
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := ws.NewHub(rdb, svc, cfg.FrameRate)
	go hub.Run(ctx)
	hub.StartDropSubscriber(ctx)

	// Set up Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()

	// Initialize API handlers
	api.SetupRoutes(router, db, svc, hub, cfg)

	// Start server
	port := cfg.Port
	if port == "" {
		port = "8080"
	}

	log.Printf("Starting plinko server on port %s", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
