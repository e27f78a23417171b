// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"

	"stockledger/internal/domain/alerts"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/domain/purchasing"
	"stockledger/internal/infrastructure/http/v1/handlers"
	"stockledger/internal/infrastructure/http/v1/middleware"
	"stockledger/internal/infrastructure/metrics"
	"stockledger/pkg/logger"
)

// RouterConfig holds router dependencies.
type RouterConfig struct {
	Logger *logger.Logger

	// DB backs the readiness probe. Stats is optional.
	DB    handlers.Pinger
	Stats handlers.PoolStatser

	Ledger    *ledger.Service
	Purchases *purchasing.Service
	Alerts    *alerts.Service

	// Metrics is optional; without it /metrics is not mounted.
	Metrics *metrics.Metrics

	// CORSOrigins enables CORS when non-empty.
	CORSOrigins []string
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// ErrorHandler is innermost so the logger and metrics see the rendered status.
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	if cfg.Metrics != nil {
		router.Use(cfg.Metrics.Middleware())
	}
	if len(cfg.CORSOrigins) > 0 {
		router.Use(middleware.CORS(cfg.CORSOrigins))
	}
	router.Use(middleware.ErrorHandler())

	healthHandler := handlers.NewHealthHandler(cfg.DB, cfg.Stats)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
		health.GET("/info", healthHandler.Info)
	}
	if cfg.Metrics != nil {
		router.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	v1 := router.Group("/api/v1")
	v1.Use(middleware.UserContext())

	base := handlers.NewBaseHandler()
	registerLedgerRoutes(v1, handlers.NewMovementHandler(base, cfg.Ledger))
	registerPurchaseOrderRoutes(v1, handlers.NewPurchaseOrderHandler(base, cfg.Purchases))
	registerAlertRoutes(v1, handlers.NewAlertHandler(base, cfg.Alerts))

	return router
}

func registerLedgerRoutes(rg *gin.RouterGroup, h *handlers.MovementHandler) {
	products := rg.Group("/products/:id")
	{
		products.POST("/movements", h.Apply)
		products.GET("/movements", h.History)
		products.GET("/conservation", h.Conservation)
	}
	rg.POST("/movements/:id/reverse", h.Reverse)
}

func registerPurchaseOrderRoutes(rg *gin.RouterGroup, h *handlers.PurchaseOrderHandler) {
	orders := rg.Group("/purchase-orders")
	{
		orders.POST("", h.Create)
		orders.GET("", h.List)
		orders.GET("/:id", h.Get)
		orders.POST("/:id/receive", h.Receive)
	}
}

func registerAlertRoutes(rg *gin.RouterGroup, h *handlers.AlertHandler) {
	rg.POST("/products/:id/alerts/evaluate", h.Evaluate)

	group := rg.Group("/alerts")
	{
		group.GET("", h.List)
		group.POST("/sweep", h.Sweep)
		group.GET("/:id", h.Get)
		group.PATCH("/:id/read", h.MarkRead)
	}
}
