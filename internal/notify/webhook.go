package notify

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"inapppay/internal/models"
	"inapppay/pkg/logging"
)

const (
	SignatureHeader = "X-InAppPay-Signature"
	EventFinalized  = "transaction.finalized"
)

// DefaultRetryDelays is the wait before each retry
var DefaultRetryDelays = []time.Duration{1 * time.Second, 5 * time.Second, 30 * time.Second}

// WebhookPayload is posted to the app backend for every finalized transaction
type WebhookPayload struct {
	Event                 string          `json:"event"`
	TransactionID         string          `json:"transaction_id"`
	OriginalTransactionID string          `json:"original_transaction_id,omitempty"`
	ProductID             string          `json:"product_id"`
	SessionID             string          `json:"session_id,omitempty"`
	Outcome               models.Outcome  `json:"outcome"`
	Environment           string          `json:"environment"`
	Status                int             `json:"status"`
	Attempts              int             `json:"attempts"`
	ServerAuth            bool            `json:"server_auth"`
	Cached                bool            `json:"cached"`
	Reason                string          `json:"reason,omitempty"`
	ReceiptData           string          `json:"receipt_data,omitempty"` // base64, server-auth mode only
	Response              json.RawMessage `json:"response,omitempty"`
	Timestamp             string          `json:"timestamp"`
}

// WebhookNotifier uploads outcome events to a callback URL. In server-auth
// mode the receipt rides along so the backend can verify it itself.
type WebhookNotifier struct {
	url         string
	secret      string
	client      *resty.Client
	retryDelays []time.Duration
	pending     sync.WaitGroup
}

func NewWebhookNotifier(url, secret string) *WebhookNotifier {
	return &WebhookNotifier{
		url:         url,
		secret:      secret,
		client:      resty.New().SetTimeout(10 * time.Second),
		retryDelays: DefaultRetryDelays,
	}
}

// WithRetryDelays overrides the retry schedule; the number of delays is the
// number of retries
func (wn *WebhookNotifier) WithRetryDelays(delays ...time.Duration) *WebhookNotifier {
	wn.retryDelays = delays
	return wn
}

// OnOutcome sends the event asynchronously
func (wn *WebhookNotifier) OnOutcome(ctx context.Context, event models.OutcomeEvent) {
	if wn.url == "" {
		return
	}
	payload := NewWebhookPayload(event)
	wn.pending.Add(1)
	go func() {
		defer wn.pending.Done()
		wn.sendWithRetry(context.WithoutCancel(ctx), payload)
	}()
}

// Flush waits for in-flight deliveries
func (wn *WebhookNotifier) Flush() {
	wn.pending.Wait()
}

func NewWebhookPayload(event models.OutcomeEvent) WebhookPayload {
	payload := WebhookPayload{
		Event:                 EventFinalized,
		TransactionID:         event.TransactionID,
		OriginalTransactionID: event.OriginalTransactionID,
		ProductID:             event.ProductID,
		SessionID:             event.SessionID,
		Outcome:               event.Outcome,
		Environment:           event.Environment.String(),
		Status:                event.Status,
		Attempts:              event.Attempts,
		ServerAuth:            event.ServerAuthOnly,
		Cached:                event.Cached,
		Reason:                event.Reason,
		Timestamp:             event.FinishedAt.UTC().Format(time.RFC3339),
	}
	if event.ServerAuthOnly && len(event.Receipt) > 0 {
		payload.ReceiptData = base64.StdEncoding.EncodeToString(event.Receipt)
	}
	if !event.ServerAuthOnly && json.Valid(event.Payload) {
		payload.Response = json.RawMessage(event.Payload)
	}
	return payload
}

func (wn *WebhookNotifier) sendWithRetry(ctx context.Context, payload WebhookPayload) {
	maxAttempts := len(wn.retryDelays) + 1

	for attempt := 0; attempt < maxAttempts; attempt++ {
		err := wn.send(ctx, payload)
		if err == nil {
			logging.Infof("Webhook notification sent - url: %s, transaction: %s, attempt: %d",
				wn.url, payload.TransactionID, attempt+1)
			return
		}

		logging.Errorf("Webhook notification failed - url: %s, transaction: %s, attempt: %d, error: %v",
			wn.url, payload.TransactionID, attempt+1, err)

		if attempt < maxAttempts-1 {
			time.Sleep(wn.retryDelays[attempt])
		}
	}

	logging.Errorf("Webhook notification failed after %d attempts - url: %s, transaction: %s",
		maxAttempts, wn.url, payload.TransactionID)
}

func (wn *WebhookNotifier) send(ctx context.Context, payload WebhookPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req := wn.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", "InAppPay-Webhook/1.0").
		SetBody(body)
	if wn.secret != "" {
		req.SetHeader(SignatureHeader, Sign(body, wn.secret))
	}

	resp, err := req.Post(wn.url)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode())
	}
	return nil
}

// Sign returns the hex HMAC-SHA256 of body
func Sign(body []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}
