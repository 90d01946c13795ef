package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/playmatatu/plinko/internal/plinko"
	"github.com/playmatatu/plinko/internal/presets"
)

// ListBoards returns every preset board.
func ListBoards(set *presets.Set) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"default": set.Default().Name,
			"boards":  set.List(),
		})
	}
}

// GetBoard returns the geometry of one preset for rendering.
func GetBoard(set *presets.Set) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := set.Get(c.Param("name"))
		if err != nil {
			if errors.Is(err, presets.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "board not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		sim, err := plinko.New(p.Config())
		if err != nil {
			log.Printf("[BOARDS] Failed to build %s: %v", p.Name, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		defer sim.Teardown()

		c.JSON(http.StatusOK, gin.H{
			"preset": p,
			"board":  sim.Board(),
			"bodies": sim.Bodies(),
		})
	}
}
