package handlers

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/jmoiron/sqlx"

	"github.com/playmatatu/plinko/internal/config"
	"github.com/playmatatu/plinko/internal/operators"
)

// OperatorKey is the gin context key holding the authenticated operator name.
const OperatorKey = "operator"

// IssueToken exchanges an operator name and key for a bearer JWT.
func IssueToken(db *sqlx.DB, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Operator string `json:"operator"`
			Key      string `json:"key"`
		}
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "operator and key required"})
			return
		}
		name := strings.TrimSpace(req.Operator)
		if name == "" || req.Key == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "operator and key required"})
			return
		}

		op, err := operators.Authenticate(db, name, req.Key)
		if err != nil {
			if errors.Is(err, operators.ErrInvalidCredentials) {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		ttl := time.Duration(cfg.TokenTTLMinutes) * time.Minute
		exp := time.Now().Add(ttl)
		claims := jwt.MapClaims{"operator": op.Name, "exp": jwt.NewNumericDate(exp).Unix()}
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
		signed, err := token.SignedString([]byte(cfg.JWTSecret))
		if err != nil {
			log.Printf("[AUTH] Failed to sign token: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"token": signed, "expires_at": exp.UTC(), "operator": op.Name})
	}
}

// parseToken returns the operator named by a valid token.
func parseToken(cfg *config.Config, token string) (string, error) {
	parsed, err := jwt.Parse(token, func(token *jwt.Token) (interface{}, error) {
		if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return []byte(cfg.JWTSecret), nil
	})
	if err != nil || !parsed.Valid {
		return "", errors.New("invalid token")
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid token")
	}
	name, ok := claims["operator"].(string)
	if !ok || name == "" {
		return "", errors.New("invalid token")
	}
	return name, nil
}

// AuthMiddleware validates the bearer JWT and sets the operator in context.
func AuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}

		name, err := parseToken(cfg, strings.TrimPrefix(auth, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(OperatorKey, name)
		c.Next()
	}
}
