package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AlanDaniels101/chill/pkg/chill/auth"
	"github.com/AlanDaniels101/chill/pkg/chill/metrics"
	"github.com/AlanDaniels101/chill/pkg/chill/store"
)

// NewRouter assembles the full HTTP surface: the authenticated data API,
// health, and metrics.
func NewRouter(st *store.Store) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	if auth.DevLoginEnabled() {
		slog.Warn("development login endpoint enabled")
		auth.NewHandler().RegisterRoutes(r.Group("/auth"))
	}

	apiGroup := r.Group("/api")
	apiGroup.Use(auth.AuthMiddleware())
	NewHandler(st).RegisterRoutes(apiGroup)

	return r
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Debug("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
