package verification

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"inapppay/internal/models"
	"inapppay/pkg/logging"
)

const (
	SandboxURL    = "https://sandbox.itunes.apple.com/verifyReceipt"
	ProductionURL = "https://buy.itunes.apple.com/verifyReceipt"

	DefaultMaxAttempts = 3
)

var (
	ErrTooManyRedirects     = errors.New("verification kept switching environments")
	ErrUnexpectedHTTPStatus = errors.New("unexpected HTTP status from verification endpoint")
	ErrEmptyReceipt         = errors.New("empty receipt")
	ErrMissingStatus        = errors.New("verification response has no status")
)

// Request is one verification of a receipt
type Request struct {
	Receipt        []byte
	SharedSecret   string
	Environment    models.Environment
	ServerAuthOnly bool
}

// Result of Verify. Environment is the endpoint the last attempt used, so the
// caller can carry an environment switch over to its session.
type Result struct {
	Outcome     models.Outcome
	Status      int
	Environment models.Environment
	Attempts    int
	Payload     []byte
	Cached      bool
	Err         error
}

// Options configures a Client
type Options struct {
	SandboxURL    string
	ProductionURL string
	Timeout       time.Duration
	MaxAttempts   int
	Cache         ResponseCache
	HTTPClient    *resty.Client
}

// Client posts receipts to the verifyReceipt endpoints
type Client struct {
	http          *resty.Client
	sandboxURL    string
	productionURL string
	maxAttempts   int
	cache         ResponseCache
}

type requestBody struct {
	ReceiptData string `json:"receipt-data"`
	Password    string `json:"password,omitempty"`
}

type responseBody struct {
	Status      *int   `json:"status"`
	Environment string `json:"environment,omitempty"`
}

// NewClient creates a verification client, filling unset options with defaults
func NewClient(opts Options) *Client {
	if opts.SandboxURL == "" {
		opts.SandboxURL = SandboxURL
	}
	if opts.ProductionURL == "" {
		opts.ProductionURL = ProductionURL
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = resty.New().SetLogger(restyLogger{})
		if opts.Timeout > 0 {
			httpClient.SetTimeout(opts.Timeout)
		}
	}
	return &Client{
		http:          httpClient,
		sandboxURL:    opts.SandboxURL,
		productionURL: opts.ProductionURL,
		maxAttempts:   opts.MaxAttempts,
		cache:         opts.Cache,
	}
}

// Verify runs the verification protocol for one receipt. It never returns a
// Go error: transport, HTTP and decoding problems become VerificationFailed
// with Result.Err set.
func (c *Client) Verify(ctx context.Context, req Request) Result {
	res := Result{Status: NoStatus, Environment: req.Environment}

	if req.ServerAuthOnly {
		res.Outcome = models.OutcomeSuccess
		res.Payload = req.Receipt
		return res
	}
	if len(req.Receipt) == 0 {
		res.Outcome = models.OutcomeVerificationFailed
		res.Err = ErrEmptyReceipt
		return res
	}

	key := cacheKey(req)
	if cached, ok := c.lookup(ctx, key); ok {
		res.Outcome = models.OutcomeSuccess
		res.Status = StatusOK
		res.Environment = cached.Environment
		res.Payload = cached.Payload
		res.Cached = true
		return res
	}

	body, err := json.Marshal(requestBody{
		ReceiptData: base64.StdEncoding.EncodeToString(req.Receipt),
		Password:    req.SharedSecret,
	})
	if err != nil {
		res.Outcome = models.OutcomeVerificationFailed
		res.Err = fmt.Errorf("failed to marshal request: %w", err)
		return res
	}

	for res.Attempts < c.maxAttempts {
		res.Attempts++
		status, payload, err := c.post(ctx, c.urlFor(res.Environment), body)
		if err != nil {
			logging.Errorf("Receipt verification attempt %d against %s failed: %v", res.Attempts, res.Environment, err)
			res.Outcome = models.OutcomeVerificationFailed
			res.Err = err
			return res
		}
		res.Status = status

		switch status {
		case StatusOK:
			res.Outcome = models.OutcomeSuccess
			res.Payload = payload
			c.store(ctx, key, res)
			return res
		case StatusSandboxReceipt:
			logging.Infof("Receipt is from sandbox, retrying with sandbox URL")
			res.Environment = models.EnvironmentSandbox
		case StatusProductionReceipt:
			logging.Infof("Receipt is from production, retrying with production URL")
			res.Environment = models.EnvironmentProduction
		default:
			res.Outcome = models.OutcomeVerificationFailed
			res.Err = &StatusError{Status: status}
			return res
		}
	}

	logging.Warnf("Receipt verification gave up after %d attempts, last status %d", res.Attempts, res.Status)
	res.Outcome = models.OutcomeVerificationFailed
	res.Err = fmt.Errorf("%w: %d attempts, last status %d", ErrTooManyRedirects, res.Attempts, res.Status)
	return res
}

func (c *Client) urlFor(env models.Environment) string {
	if env == models.EnvironmentSandbox {
		return c.sandboxURL
	}
	return c.productionURL
}

func (c *Client) post(ctx context.Context, url string, body []byte) (int, []byte, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(url)
	if err != nil {
		return NoStatus, nil, fmt.Errorf("failed to verify receipt: %w", err)
	}
	if !resp.IsSuccess() {
		return NoStatus, nil, fmt.Errorf("%w: %d", ErrUnexpectedHTTPStatus, resp.StatusCode())
	}

	payload := resp.Body()
	var parsed responseBody
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return NoStatus, nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if parsed.Status == nil {
		return NoStatus, nil, ErrMissingStatus
	}
	return *parsed.Status, payload, nil
}

func (c *Client) lookup(ctx context.Context, key string) (*CachedResponse, bool) {
	if c.cache == nil {
		return nil, false
	}
	cached, err := c.cache.Get(ctx, key)
	if err != nil {
		logging.Warnf("Verification cache read failed: %v", err)
		return nil, false
	}
	return cached, cached != nil
}

func (c *Client) store(ctx context.Context, key string, res Result) {
	if c.cache == nil {
		return
	}
	err := c.cache.Set(ctx, key, &CachedResponse{Environment: res.Environment, Payload: res.Payload})
	if err != nil {
		logging.Warnf("Verification cache write failed: %v", err)
	}
}

// cacheKey hashes the receipt with the secret so neither is stored in clear
func cacheKey(req Request) string {
	h := sha256.New()
	h.Write(req.Receipt)
	h.Write([]byte{0})
	h.Write([]byte(req.SharedSecret))
	return hex.EncodeToString(h.Sum(nil))
}

type restyLogger struct{}

func (restyLogger) Errorf(format string, v ...interface{}) { logging.Errorf(format, v...) }
func (restyLogger) Warnf(format string, v ...interface{})  { logging.Warnf(format, v...) }
func (restyLogger) Debugf(format string, v ...interface{}) { logging.Debugf(format, v...) }
