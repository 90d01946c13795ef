package api

import (
	"log"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/playmatatu/plinko/internal/api/handlers"
	"github.com/playmatatu/plinko/internal/config"
	"github.com/playmatatu/plinko/internal/drops"
	"github.com/playmatatu/plinko/internal/middleware"
	"github.com/playmatatu/plinko/internal/ws"
)

// SetupRoutes configures all API routes
func SetupRoutes(router *gin.Engine, db *sqlx.DB, svc *drops.Service, hub *ws.Hub, cfg *config.Config) {
	router.Use(middleware.CORSMiddleware(cfg))
	router.Use(middleware.WebSocketCORSCheck(cfg))

	if cfg.Environment != "production" {
		router.Use(func(c *gin.Context) {
			c.Header("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
			c.Header("Pragma", "no-cache")
			c.Header("Expires", "0")
			c.Next()
		})
		log.Println("[DEV MODE] no-cache headers enabled for all routes")
	}

	health := handlers.HealthCheck(db, svc.Presets(), hub)
	router.GET("/health", health)

	// API v1 group
	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", health)
		v1.POST("/auth/token", handlers.IssueToken(db, cfg))

		boards := v1.Group("/boards")
		{
			boards.GET("", handlers.ListBoards(svc.Presets()))
			boards.GET("/:name", handlers.GetBoard(svc.Presets()))
			boards.GET("/:name/ws", handlers.HandleBoardWebSocket(hub, svc.Presets(), cfg))
		}

		authed := v1.Group("")
		authed.Use(handlers.AuthMiddleware(cfg))
		{
			authed.POST("/drops", handlers.CreateDrop(svc))
			authed.GET("/drops", handlers.ListDrops(svc, cfg))
			authed.GET("/drops/:id", handlers.GetDrop(svc))
			authed.GET("/stats", handlers.GetStats(svc))
		}
	}
}
