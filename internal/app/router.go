package app

import (
	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"

	"storefront/internal/handler"
	"storefront/internal/middleware"
)

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	PaymentHandler *handler.PaymentHandler
	RedisClient    *redis.Client
	NewRelicApp    *newrelic.Application
	JWTSecret      string
}

// NewRouter creates a new Gin router with all routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()

	// Global middleware.
	router.Use(gin.Recovery())
	router.Use(gin.Logger())
	router.Use(middleware.CORSMiddleware())

	// Add New Relic middleware if enabled.
	if deps.NewRelicApp != nil {
		router.Use(nrgin.Middleware(deps.NewRelicApp))
	}

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Payment routes. The webhook route carries no auth and no idempotency
	// cache: the processor authenticates with its signature and owns its
	// own retry semantics.
	payments := router.Group("/api/payments")
	{
		payments.POST("/create-payment-intent",
			middleware.AuthMiddleware(deps.JWTSecret),
			middleware.IdempotencyMiddleware(deps.RedisClient),
			deps.PaymentHandler.CreateIntent,
		)
		payments.POST("/webhook", deps.PaymentHandler.Webhook)
	}

	return router
}
