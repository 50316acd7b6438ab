package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/customeros/mailsync/api/middleware"
	"github.com/customeros/mailsync/api/rest/handlers"
	"github.com/customeros/mailsync/internal/logger"
	"github.com/customeros/mailsync/internal/tracing"
	"github.com/customeros/mailsync/services"
)

const appSource = "mailsync"

// RegisterRoutes sets up the control surface
func RegisterRoutes(r *gin.Engine, s *services.Services, apikey string, sseHeartbeat time.Duration, log logger.Logger) {
	if s == nil {
		panic("Services cannot be nil")
	}

	// Add recovery middlewares
	r.Use(gin.Recovery())
	r.Use(tracing.RecoveryWithJaeger(opentracing.GlobalTracer()))

	apiHandlers := handlers.InitHandlers(s, sseHeartbeat, log)

	// Health, status and metrics endpoints (no custom context needed)
	r.GET("/health", handlers.HealthCheck)
	r.GET("/status", handlers.Status(s.Scheduler, s.Pool, s.Initializer))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	apiKeyMiddleware := middleware.APIKeyMiddleware(middleware.APIKeyConfig{
		HeaderName:  middleware.APIKeyHeader,
		ValidAPIKey: apikey,
	})

	api := r.Group("/v1")
	api.Use(apiKeyMiddleware)
	api.Use(middleware.CustomContextMiddleware(appSource))
	api.Use(middleware.TracingMiddleware())
	{
		sync := api.Group("/sync")
		{
			sync.POST("/enable", apiHandlers.Sync.EnableSync())
			sync.POST("/disable", apiHandlers.Sync.DisableSync())
			sync.POST("/restart", apiHandlers.Sync.RestartSync())
			sync.GET("/report", apiHandlers.Sync.SyncReport())
		}

		accounts := api.Group("/accounts/:id")
		{
			accounts.POST("/sync/start", apiHandlers.Sync.StartAccountSync())
			accounts.POST("/sync/stop", apiHandlers.Sync.StopAccountSync())
			accounts.POST("/sync/now", apiHandlers.Sync.SyncAccountNow())
			accounts.GET("/sync/logs", apiHandlers.Sync.AccountSyncLogs())
			accounts.POST("/consistency", apiHandlers.Sync.MaintainConsistency())
			accounts.GET("/messages/body", apiHandlers.Messages.FetchBody())
			accounts.POST("/messages/read", apiHandlers.Messages.MarkRead())
		}

		api.GET("/users/:userId/notifications", apiHandlers.Notifications.Stream())
	}
}
