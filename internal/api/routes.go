package api

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"inapppay/internal/middleware"
	"inapppay/internal/models"
	"inapppay/internal/payment"
	"inapppay/internal/session"
)

// Store is the part of payment.Store the handlers use
type Store interface {
	FetchCatalogAwait(ctx context.Context, ids []string) ([]models.ProductDescriptor, error)
	CachedProducts(ctx context.Context) ([]models.ProductDescriptor, error)
	PurchaseAwait(ctx context.Context, req payment.PurchaseRequest) (session.Result, error)
	RestoreWithAwait(ctx context.Context, settings session.Settings) (session.Result, error)
	Defaults() session.Settings
}

// Ledger is the read side of the verification ledger
type Ledger interface {
	ListByTransactionID(ctx context.Context, transactionID string, limit int) ([]models.VerificationRecord, error)
	ListRecent(ctx context.Context, limit int) ([]models.VerificationRecord, error)
	CountByOutcome(ctx context.Context) (map[string]int64, error)
}

// Handler serves the harness API over one Store
type Handler struct {
	store Store
	// ledger may be nil when no database is configured
	ledger      Ledger
	waitTimeout time.Duration
}

func NewHandler(store Store, ledger Ledger, waitTimeout time.Duration) *Handler {
	if waitTimeout <= 0 {
		waitTimeout = 2 * time.Minute
	}
	return &Handler{store: store, ledger: ledger, waitTimeout: waitTimeout}
}

// SetupRoutes sets up all routes
func SetupRoutes(r *gin.Engine, h *Handler, apiKey string) {
	api := r.Group("/api")
	api.Use(middleware.APIKeyAuth(apiKey))
	{
		api.POST("/catalog", h.FetchCatalog)
		api.GET("/catalog", h.GetCatalog)

		api.POST("/purchase", h.Purchase)
		api.POST("/restore", h.Restore)

		api.GET("/verifications", h.ListVerifications)
		api.GET("/verifications/stats", h.VerificationStats)
	}

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"service": "inapppay",
		})
	})
}
