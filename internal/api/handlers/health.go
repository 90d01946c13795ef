package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/playmatatu/plinko/internal/presets"
	"github.com/playmatatu/plinko/internal/ws"
)

var startTime = time.Now()

const version = "1.0.0"

// HealthCheck reports whether the drop store answers and what the instance
// is serving. An unreachable store turns the check into a 503.
func HealthCheck(db *sqlx.DB, set *presets.Set, hub *ws.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		status, database := "ok", "ok"
		code := http.StatusOK

		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			status, database = "degraded", "unreachable"
			code = http.StatusServiceUnavailable
		}

		c.JSON(code, gin.H{
			"status":        status,
			"service":       "plinko-api",
			"version":       version,
			"uptime":        time.Since(startTime).String(),
			"database":      database,
			"boards":        len(set.Names()),
			"default_board": set.Default().Name,
			"live_clients":  hub.ClientCount(),
		})
	}
}
