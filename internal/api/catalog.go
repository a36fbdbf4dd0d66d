package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"inapppay/internal/response"
	"inapppay/pkg/logging"
)

// FetchCatalogRequest represents a catalog fetch
type FetchCatalogRequest struct {
	ProductIDs []string `json:"product_ids" binding:"required,min=1"`
}

// FetchCatalog requests products and replaces the cached catalog
// POST /api/catalog
func (h *Handler) FetchCatalog(c *gin.Context) {
	var req FetchCatalogRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorJSON(c, http.StatusBadRequest, "Invalid request format: "+err.Error())
		return
	}

	ctx, cancel := h.waitContext(c)
	defer cancel()

	products, err := h.store.FetchCatalogAwait(ctx, req.ProductIDs)
	if err != nil {
		logging.Errorf("Catalog fetch for %v did not finish: %v", req.ProductIDs, err)
		response.ErrorJSON(c, http.StatusGatewayTimeout, "Catalog fetch did not finish in time")
		return
	}
	response.SuccessJSON(c, products)
}

// GetCatalog returns the cached catalog
// GET /api/catalog
func (h *Handler) GetCatalog(c *gin.Context) {
	ctx, cancel := h.waitContext(c)
	defer cancel()

	products, err := h.store.CachedProducts(ctx)
	if err != nil {
		response.ErrorJSON(c, http.StatusServiceUnavailable, "Catalog unavailable")
		return
	}
	response.SuccessJSON(c, products)
}
