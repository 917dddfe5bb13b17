package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// Client talks to the order/report backend. Order ledger, fraud rules and
// webhooks live on the other side of this boundary; we only consume it.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.SugaredLogger
}

func NewClient(baseURL string, logger *zap.SugaredLogger) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// ValidationError carries the per-field detail of an HTTP 422 response.
type ValidationError struct {
	Detail map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("order rejected by backend: %v", e.Detail)
}

// NetworkError wraps transport failures and non-2xx responses that are not
// validation errors, so callers can tell the two classes apart.
type NetworkError struct {
	Cause error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("backend request failed: %v", e.Cause)
}

func (e *NetworkError) Unwrap() error { return e.Cause }

type CreateOrderRequest struct {
	SessionID        string         `json:"sessionId"`
	TestID           string         `json:"testId"`
	UserID           int64          `json:"userId"`
	FixEmail         string         `json:"fixEmail"`
	PricingTier      string         `json:"pricingTier"`
	Amount           int64          `json:"amount"`
	Currency         string         `json:"currency"`
	Gateway          string         `json:"gateway"`
	SessionStartTime time.Time      `json:"sessionStartTime"`
	IsIndia          bool           `json:"isIndia"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

type CreateOrderResponse struct {
	Success          bool   `json:"success"`
	RazorpayOrderID  string `json:"razorpayOrderId,omitempty"`
	PayPalOrderID    string `json:"paypalOrderId,omitempty"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
	PaymentSessionID string `json:"paymentSessionId"`
	Gateway          string `json:"gateway"`
	TransactionID    string `json:"transaction_id,omitempty"`
}

type PaymentData struct {
	RazorpayPaymentID string `json:"razorpay_payment_id,omitempty"`
	RazorpayOrderID   string `json:"razorpay_order_id,omitempty"`
	RazorpaySignature string `json:"razorpay_signature,omitempty"`
	PayPalOrderID     string `json:"paypal_order_id,omitempty"`
	PayPalCaptureID   string `json:"paypal_capture_id,omitempty"`
	PayerID           string `json:"payer_id,omitempty"`
	Amount            int64  `json:"amount"`
	Currency          string `json:"currency"`
	Status            string `json:"status"`
}

type CompletionMetadata struct {
	PricingTier            string    `json:"pricingTier"`
	SessionStartTime       time.Time `json:"sessionStartTime"`
	PaymentStartedAt       time.Time `json:"paymentStartedAt"`
	PaymentCompletedAt     time.Time `json:"paymentCompletedAt"`
	AuthenticationRequired bool      `json:"authenticationRequired"`
	SessionDurationMS      int64     `json:"sessionDurationMs"`
	PaymentDurationMS      int64     `json:"paymentDurationMs"`
}

type CompleteOrderRequest struct {
	UserID            int64              `json:"userId"`
	OriginalSessionID string             `json:"originalSessionId"`
	TestID            string             `json:"testId"`
	PaymentSessionID  string             `json:"paymentSessionId"`
	Gateway           string             `json:"gateway"`
	OrderID           string             `json:"orderId"`
	TransactionID     string             `json:"transactionId"`
	PaymentData       PaymentData        `json:"paymentData"`
	Metadata          CompletionMetadata `json:"metadata"`
}

// Report generation states returned by the status endpoint.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

type ReportStatus struct {
	Status    string `json:"status"`
	ReportURL string `json:"reportUrl,omitempty"`
	Message   string `json:"message,omitempty"`
}

func (s *ReportStatus) Terminal() bool {
	return s.Status == StatusCompleted || s.Status == StatusFailed
}

// PricingSnapshot is fetched fresh for every attempt. Prices can change
// between sessions, so callers must not cache it.
type PricingSnapshot struct {
	Gateway       string `json:"gateway"`
	Currency      string `json:"currency"`
	Amount        int64  `json:"amount"`
	DisplayAmount int64  `json:"displayAmount"`
	PricingTier   string `json:"pricingTier"`
	IsIndia       bool   `json:"isIndia"`
}

// CreateOrder posts the normalized order request. HTTP 422 is returned as
// *ValidationError with field detail, anything else as *NetworkError.
func (c *Client) CreateOrder(ctx context.Context, req CreateOrderRequest) (*CreateOrderResponse, error) {
	raw, status, err := c.post(ctx, "/payments/create-order", req)
	if err != nil {
		return nil, &NetworkError{Cause: err}
	}

	if status == http.StatusUnprocessableEntity {
		var body struct {
			Detail map[string]string `json:"detail"`
		}
		if err := json.Unmarshal(raw, &body); err != nil || len(body.Detail) == 0 {
			return nil, &ValidationError{Detail: map[string]string{"request": "invalid"}}
		}
		return nil, &ValidationError{Detail: body.Detail}
	}

	if status < 200 || status >= 300 {
		return nil, &NetworkError{Cause: fmt.Errorf("create-order http=%d body=%s", status, string(raw))}
	}

	var res CreateOrderResponse
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, &NetworkError{Cause: fmt.Errorf("create-order decode: %w", err)}
	}
	if !res.Success {
		return nil, &NetworkError{Cause: fmt.Errorf("create-order success=false body=%s", string(raw))}
	}

	return &res, nil
}

// CompleteOrder records a captured payment against the internal order. Called
// exactly once per capture; failure here must reach the orchestrator.
func (c *Client) CompleteOrder(ctx context.Context, req CompleteOrderRequest) error {
	raw, status, err := c.post(ctx, "/payments/complete", req)
	if err != nil {
		return &NetworkError{Cause: err}
	}
	if status < 200 || status >= 300 {
		return &NetworkError{Cause: fmt.Errorf("complete http=%d body=%s", status, string(raw))}
	}

	var res struct {
		Success bool `json:"success"`
	}
	if err := json.Unmarshal(raw, &res); err == nil && !res.Success {
		return &NetworkError{Cause: fmt.Errorf("complete success=false body=%s", string(raw))}
	}
	return nil
}

// Status returns the report generation state for a paid session.
func (c *Client) Status(ctx context.Context, sessionID, testID string) (*ReportStatus, error) {
	q := url.Values{}
	q.Set("sessionId", sessionID)
	q.Set("testId", testID)

	raw, status, err := c.get(ctx, "/payments/status?"+q.Encode())
	if err != nil {
		return nil, &NetworkError{Cause: err}
	}
	if status < 200 || status >= 300 {
		return nil, &NetworkError{Cause: fmt.Errorf("status http=%d body=%s", status, string(raw))}
	}

	var res ReportStatus
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, &NetworkError{Cause: fmt.Errorf("status decode: %w", err)}
	}
	return &res, nil
}

// Pricing fetches the per-gateway, per-locale price in minor units.
func (c *Client) Pricing(ctx context.Context, gateway string, isIndia bool) (*PricingSnapshot, error) {
	q := url.Values{}
	q.Set("gateway", gateway)
	q.Set("isIndia", strconv.FormatBool(isIndia))

	raw, status, err := c.get(ctx, "/payments/pricing?"+q.Encode())
	if err != nil {
		return nil, &NetworkError{Cause: err}
	}
	if status < 200 || status >= 300 {
		return nil, &NetworkError{Cause: fmt.Errorf("pricing http=%d body=%s", status, string(raw))}
	}

	var res PricingSnapshot
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, &NetworkError{Cause: fmt.Errorf("pricing decode: %w", err)}
	}
	return &res, nil
}

func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, fmt.Errorf("encode %s: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewBuffer(body))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req)
}

func (c *Client) get(ctx context.Context, path string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, 0, err
	}
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, int, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return raw, resp.StatusCode, nil
}
