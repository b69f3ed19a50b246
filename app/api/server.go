package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// NewServer builds the read-only status server. When an access key is
// configured the post listing requires it; health and stats stay open.
func NewServer(handler *Handler, apiAccessKey string) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", handler.GetHealth)
	r.GET("/stats", handler.GetStats)

	posts := r.Group("/")
	if apiAccessKey != "" {
		posts.Use(authMiddleware(apiAccessKey))
		slog.Info("Post listing endpoint protected with access key")
	}
	posts.GET("/posts", handler.ListPosts)

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"service": "postpipe",
			"version": handler.version,
			"endpoints": map[string]string{
				"health": "/health",
				"stats":  "/stats",
				"posts":  "/posts?status=<draft|approved|posted|error>&channel=<name>",
			},
		})
	})

	r.GET("/favicon.ico", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	return r
}

// authMiddleware checks the access key in the X-API-Key header, or in an
// Authorization Bearer header.
func authMiddleware(apiAccessKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		providedKey := c.GetHeader("X-API-Key")

		if providedKey == "" {
			authHeader := c.GetHeader("Authorization")
			if strings.HasPrefix(authHeader, "Bearer ") {
				providedKey = strings.TrimPrefix(authHeader, "Bearer ")
			}
		}

		if providedKey == "" || providedKey != apiAccessKey {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "Invalid or missing API key",
				"message": "Provide the key in X-API-Key or Authorization: Bearer <key>",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
