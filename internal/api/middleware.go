package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/rongwang/library-circulation/internal/service"
	"github.com/rongwang/library-circulation/internal/utils"
)

// Context keys set by AuthMiddleware
const (
	ctxUserID = "userId"
	ctxRole   = "role"
)

// AuthMiddleware returns a Gin middleware for authentication
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Get the JWT token from the Authorization header
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortWithError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
			return
		}

		// Check if the Authorization header starts with "Bearer "
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			abortWithError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid token format")
			return
		}

		tokenString := parts[1]

		// Parse the JWT token
		jwtSecret := c.MustGet("jwtSecret").([]byte)
		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			// Validate the signing method
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("invalid signing method")
			}
			return jwtSecret, nil
		})

		if err != nil || !token.Valid {
			abortWithError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid token")
			return
		}

		// Extract claims from the token
		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			abortWithError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid token claims")
			return
		}

		// Get user ID from the token claims
		userID, ok := claims["sub"].(string)
		if !ok || userID == "" {
			abortWithError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid user ID in token")
			return
		}

		role, ok := claims["role"].(string)
		if !ok || role == "" {
			abortWithError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid role in token")
			return
		}

		// Set user ID and role in the context
		c.Set(ctxUserID, userID)
		c.Set(ctxRole, role)
		c.Next()
	}
}

// RequireRole rejects callers whose token role is not one of roles
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString(ctxRole)
		for _, allowed := range roles {
			if role == allowed {
				c.Next()
				return
			}
		}

		abortWithError(c, http.StatusForbidden, "FORBIDDEN", "Insufficient role for this operation")
	}
}

// RequestLogger logs every request with its status and duration
func RequestLogger(logger *utils.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		c.Next()

		logger.Info("Request: %s %s - Status: %d - Duration: %v",
			c.Request.Method,
			c.Request.URL.Path,
			c.Writer.Status(),
			time.Since(startTime),
		)

		for _, e := range c.Errors {
			logger.Debug("Request error: %v", e)
		}
	}
}

// callerFrom builds the service caller from the authenticated context
func callerFrom(c *gin.Context) service.Caller {
	return service.Caller{
		UserID: c.GetString(ctxUserID),
		Role:   c.GetString(ctxRole),
	}
}
