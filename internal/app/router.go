package app

import (
	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"

	"dispatch/internal/handler"
	"dispatch/internal/middleware"
)

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	OrderHandler    *handler.OrderHandler
	RiderHandler    *handler.RiderHandler
	DeliveryHandler *handler.DeliveryHandler
	CustomerHandler *handler.CustomerHandler
	WatchHandler    *handler.WatchHandler
	RedisClient     *redis.Client
	NewRelicApp     *newrelic.Application
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

	router.Use(middleware.IdempotencyMiddleware(deps.RedisClient))

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// API v1 routes.
	v1 := router.Group("/v1")
	{
		// Customer routes.
		customers := v1.Group("/customers")
		{
			customers.POST("/register", deps.CustomerHandler.Register)
		}

		// Order routes.
		orders := v1.Group("/orders")
		{
			orders.POST("", deps.OrderHandler.CreateOrder)
			orders.GET("/:id", deps.OrderHandler.GetOrder)
			orders.POST("/:id/cancel", deps.OrderHandler.CancelOrder)
			orders.POST("/:id/preparing", deps.DeliveryHandler.MarkPreparing)
			orders.GET("/:id/watch", deps.WatchHandler.WatchOrder)
		}

		// Rider routes.
		riders := v1.Group("/riders")
		{
			riders.POST("/register", deps.RiderHandler.Register)
			riders.POST("/:id/accept", deps.RiderHandler.AcceptOrder)
			riders.GET("/:id/orders", deps.RiderHandler.GetEligibleOrders)
			riders.GET("/:id/orders/watch", deps.WatchHandler.WatchEligible)
		}

		// Delivery routes.
		deliveries := v1.Group("/deliveries")
		{
			deliveries.GET("/:id", deps.DeliveryHandler.GetDelivery)
			deliveries.POST("/:id/pickup", deps.DeliveryHandler.MarkPickedUp)
			deliveries.POST("/:id/transit", deps.DeliveryHandler.MarkInTransit)
			deliveries.POST("/:id/delivered", deps.DeliveryHandler.MarkDelivered)
			deliveries.POST("/:id/complete", deps.DeliveryHandler.Complete)
		}
	}

	return router
}
