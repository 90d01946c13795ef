package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/playmatatu/plinko/internal/config"
	"github.com/playmatatu/plinko/internal/presets"
	"github.com/playmatatu/plinko/internal/ws"
)

// HandleBoardWebSocket streams a live board. Browsers cannot set headers on
// a websocket upgrade, so the JWT comes in the token query parameter.
func HandleBoardWebSocket(hub *ws.Hub, set *presets.Set, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "token required"})
			return
		}
		operator, err := parseToken(cfg, token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		p, err := set.Get(c.Param("name"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "board not found"})
			return
		}

		hub.Serve(c, operator, p)
	}
}
