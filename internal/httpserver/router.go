package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"presentos/pkg/auth"
	"presentos/pkg/otel"
)

// ReadyCheck 依赖探活，例如 db.Ping
type ReadyCheck func(ctx context.Context) error

type Router struct {
	Engine *gin.Engine
}

func NewRouter(h *Handler, jwtSecret string, logger *zap.Logger, checks map[string]ReadyCheck) *Router {
	r := gin.New()
	r.Use(gin.Recovery(), otel.GinMiddleware(), RequestID(), Metrics(), AccessLog(logger))

	// Health endpoints (放在最前面)
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.HEAD("/healthz", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
		defer cancel()

		for name, check := range checks {
			if err := check(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": name + "_not_ready", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")
	v1.Use(AuthMiddleware(jwtSecret))
	{
		v1.POST("/chat", RequirePermission(auth.PermissionOrchestrate), h.Chat)
		v1.POST("/voice", RequirePermission(auth.PermissionOrchestrate), h.Voice)

		v1.GET("/notifications", RequirePermission(auth.PermissionReadNotifications), h.ListNotifications)
		v1.POST("/notifications/read-all", RequirePermission(auth.PermissionWriteNotifications), h.MarkAllRead)
		v1.POST("/notifications/:id/read", RequirePermission(auth.PermissionWriteNotifications), h.MarkRead)

		v1.GET("/experience", RequirePermission(auth.PermissionReadExperience), h.Experience)
		v1.GET("/goal", RequirePermission(auth.PermissionReadExperience), h.Goal)
	}

	return &Router{Engine: r}
}
