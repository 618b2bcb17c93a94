package api

import (
	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	"github.com/inboundly/mailcore/api/handlers"
	"github.com/inboundly/mailcore/api/middleware"
	"github.com/inboundly/mailcore/config"
	"github.com/inboundly/mailcore/internal/repository"
	"github.com/inboundly/mailcore/internal/tracing"
	"github.com/inboundly/mailcore/services"
)

// RegisterRoutes sets up all API endpoints
func RegisterRoutes(r *gin.Engine, cfg *config.Config, s *services.Services, repos *repository.Repositories) {
	if s == nil {
		panic("Services cannot be nil")
	}
	if repos == nil {
		panic("Repositories cannot be nil")
	}

	r.Use(gin.Recovery())
	r.Use(tracing.RecoveryWithJaeger(opentracing.GlobalTracer()))

	apiHandlers := handlers.InitHandlers(cfg, s, repos)

	r.GET("/health", handlers.HealthCheck)

	apiKeyMiddleware := middleware.APIKeyMiddleware(middleware.APIKeyConfig{
		HeaderName:  "X-MAILCORE-API-KEY",
		ValidAPIKey: cfg.AppConfig.APIKey,
	})

	api := r.Group("/v1")
	api.Use(apiKeyMiddleware)
	api.Use(middleware.UserIdMiddleware())
	api.Use(middleware.CustomContextMiddleware("mailcore"))
	api.Use(middleware.TracingMiddleware())
	{
		messages := api.Group("/messages")
		{
			messages.POST("/inbound", apiHandlers.Messages.IngestInbound())
			messages.POST("/outbound", apiHandlers.Messages.IngestOutbound())
			messages.GET("/:id/raw", apiHandlers.Messages.GetRawMessage())
		}

		api.POST("/dsn", apiHandlers.Messages.ClassifyDsn())
		api.POST("/backfill", apiHandlers.Messages.Backfill())

		threads := api.Group("/threads")
		{
			threads.GET("", apiHandlers.Threads.ListThreads())
			threads.GET("/:id", apiHandlers.Threads.GetThread())
		}
	}
}
