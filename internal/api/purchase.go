package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"inapppay/internal/models"
	"inapppay/internal/payment"
	"inapppay/internal/response"
	"inapppay/internal/session"
	"inapppay/pkg/logging"
)

// PurchaseRequest represents a purchase. Omitted password and test_server
// fall back to the configured defaults.
type PurchaseRequest struct {
	ProductID  string `json:"product_id" binding:"required"`
	Password   string `json:"password"`
	TestServer *bool  `json:"test_server"`
	ServerAuth bool   `json:"server_auth"`
}

// RestoreRequest represents a restore; every field is optional
type RestoreRequest struct {
	Password   string `json:"password"`
	TestServer *bool  `json:"test_server"`
	ServerAuth bool   `json:"server_auth"`
}

// ResultData is the data of a purchase or restore response
type ResultData struct {
	Outcome       models.Outcome  `json:"outcome"`
	TransactionID string          `json:"transaction_id,omitempty"`
	Environment   string          `json:"environment"`
	Response      json.RawMessage `json:"response,omitempty"`
	ReceiptData   string          `json:"receipt_data,omitempty"`
	Error         string          `json:"error,omitempty"`
}

// Purchase buys a product and waits for its verification outcome
// POST /api/purchase
func (h *Handler) Purchase(c *gin.Context) {
	var req PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorJSON(c, http.StatusBadRequest, "Invalid request format: "+err.Error())
		return
	}

	settings := h.settings(req.Password, req.TestServer, req.ServerAuth)

	ctx, cancel := h.waitContext(c)
	defer cancel()

	res, err := h.store.PurchaseAwait(ctx, payment.PurchaseRequest{
		ProductID:      req.ProductID,
		SharedSecret:   settings.SharedSecret,
		TestServer:     settings.Environment == models.EnvironmentSandbox,
		ServerAuthOnly: settings.ServerAuthOnly,
	})
	h.respond(c, "Purchase", res, err)
}

// Restore re-verifies previously completed purchases
// POST /api/restore
func (h *Handler) Restore(c *gin.Context) {
	var req RestoreRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.ErrorJSON(c, http.StatusBadRequest, "Invalid request format: "+err.Error())
			return
		}
	}

	ctx, cancel := h.waitContext(c)
	defer cancel()

	res, err := h.store.RestoreWithAwait(ctx, h.settings(req.Password, req.TestServer, req.ServerAuth))
	h.respond(c, "Restore", res, err)
}

func (h *Handler) settings(password string, testServer *bool, serverAuth bool) session.Settings {
	settings := h.store.Defaults()
	if password != "" {
		settings.SharedSecret = password
	}
	if testServer != nil {
		settings.Environment = models.EnvironmentFor(*testServer)
	}
	settings.ServerAuthOnly = serverAuth
	return settings
}

func (h *Handler) respond(c *gin.Context, operation string, res session.Result, err error) {
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			logging.Warnf("%s still running after %s", operation, h.waitTimeout)
			response.ErrorJSON(c, http.StatusGatewayTimeout, operation+" is still in progress")
			return
		}
		response.ErrorJSON(c, http.StatusServiceUnavailable, operation+" aborted: "+err.Error())
		return
	}

	data := ResultData{
		Outcome:       res.Outcome,
		TransactionID: res.TransactionID,
		Environment:   res.Environment.String(),
	}
	if res.Err != nil {
		data.Error = res.Err.Error()
	}
	if len(res.Payload) > 0 {
		if json.Valid(res.Payload) {
			data.Response = json.RawMessage(res.Payload)
		} else {
			data.ReceiptData = base64.StdEncoding.EncodeToString(res.Payload)
		}
	}

	c.JSON(http.StatusOK, response.Outcome(res.Outcome == models.OutcomeSuccess, res.Outcome.String(), data))
}

func (h *Handler) waitContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), h.waitTimeout)
}
