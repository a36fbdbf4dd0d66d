package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"inapppay/internal/models"
	"inapppay/internal/response"
	"inapppay/pkg/logging"
)

// ListVerifications returns ledger records, filtered by transaction when
// transaction_id is given
// GET /api/verifications?transaction_id=&limit=
func (h *Handler) ListVerifications(c *gin.Context) {
	if h.ledger == nil {
		response.ErrorJSON(c, http.StatusServiceUnavailable, "Verification ledger is not configured")
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			response.ErrorJSON(c, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	var (
		records []models.VerificationRecord
		err     error
	)
	if transactionID := c.Query("transaction_id"); transactionID != "" {
		records, err = h.ledger.ListByTransactionID(c.Request.Context(), transactionID, limit)
	} else {
		records, err = h.ledger.ListRecent(c.Request.Context(), limit)
	}
	if err != nil {
		logging.Errorf("Failed to list verifications: %v", err)
		response.ErrorJSON(c, http.StatusInternalServerError, "Failed to list verifications")
		return
	}
	response.SuccessJSON(c, records)
}

// VerificationStats counts ledger records per outcome
// GET /api/verifications/stats
func (h *Handler) VerificationStats(c *gin.Context) {
	if h.ledger == nil {
		response.ErrorJSON(c, http.StatusServiceUnavailable, "Verification ledger is not configured")
		return
	}
	counts, err := h.ledger.CountByOutcome(c.Request.Context())
	if err != nil {
		logging.Errorf("Failed to count verifications: %v", err)
		response.ErrorJSON(c, http.StatusInternalServerError, "Failed to count verifications")
		return
	}
	response.SuccessJSON(c, counts)
}
