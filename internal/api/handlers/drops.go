package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/playmatatu/plinko/internal/config"
	"github.com/playmatatu/plinko/internal/drops"
	"github.com/playmatatu/plinko/internal/plinko"
)

// CreateDrop runs a server-side drop toward the requested multiplier and
// returns the stored outcome with its replayable path.
func CreateDrop(svc *drops.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req drops.Request
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid drop request"})
			return
		}

		operator := c.GetString(OperatorKey)
		out, err := svc.Drop(c.Request.Context(), operator, req)
		if err != nil {
			if drops.IsClientError(err) {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			if errors.Is(err, plinko.ErrRunActive) {
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
				return
			}
			log.Printf("[DROPS] Drop failed for %s: %v", operator, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		c.JSON(http.StatusCreated, out)
	}
}

// ListDrops returns the operator's recent drops, newest first.
func ListDrops(svc *drops.Service, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := queryInt(c, "limit", 20)
		if limit <= 0 || limit > cfg.MaxDropHistory {
			limit = cfg.MaxDropHistory
		}
		offset := queryInt(c, "offset", 0)

		rows, err := svc.Store().List(c.Request.Context(), drops.Filter{
			Operator: c.GetString(OperatorKey),
			Board:    c.Query("board"),
			Limit:    limit,
			Offset:   offset,
		})
		if err != nil {
			log.Printf("[DROPS] Failed to list drops: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"drops": rows, "limit": limit, "offset": offset})
	}
}

// GetDrop returns one of the operator's drops.
func GetDrop(svc *drops.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		d, err := svc.Store().Get(c.Request.Context(), c.Param("id"))
		if errors.Is(err, drops.ErrNotFound) || (err == nil && d.Operator != c.GetString(OperatorKey)) {
			c.JSON(http.StatusNotFound, gin.H{"error": "drop not found"})
			return
		}
		if err != nil {
			log.Printf("[DROPS] Failed to get drop: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		c.JSON(http.StatusOK, d)
	}
}

// GetStats returns drop counters for this instance, all instances and the
// operator's stored drops.
func GetStats(svc *drops.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		st, err := svc.Stats(c.Request.Context(), c.GetString(OperatorKey))
		if err != nil {
			log.Printf("[STATS] Failed to read stats: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		c.JSON(http.StatusOK, st)
	}
}
