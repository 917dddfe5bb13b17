package payments

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/plutov/paypal/v4"
	"go.uber.org/zap"

	"mindprint/internal/backend"
)

const paypalSDKTimeout = 15 * time.Second

// paypalAPI is the slice of the PayPal SDK the adapter needs. *paypal.Client
// satisfies it; tests inject a fake.
type paypalAPI interface {
	GetAccessToken(ctx context.Context) (*paypal.TokenResponse, error)
	GetOrder(ctx context.Context, orderID string) (*paypal.Order, error)
}

type PayPalAdapter struct {
	api          paypalAPI
	backend      *backend.Client
	sessions     *SessionRegistry
	loader       *sdkLoader
	checkoutWait time.Duration
	logger       *zap.SugaredLogger
}

func NewPayPalAdapter(clientID, secret, apiBase string, be *backend.Client, sessions *SessionRegistry, checkoutWait time.Duration, logger *zap.SugaredLogger) (*PayPalAdapter, error) {
	client, err := paypal.NewClient(clientID, secret, apiBase)
	if err != nil {
		return nil, fmt.Errorf("paypal client: %w", err)
	}
	return newPayPalAdapter(client, be, sessions, checkoutWait, logger), nil
}

func newPayPalAdapter(api paypalAPI, be *backend.Client, sessions *SessionRegistry, checkoutWait time.Duration, logger *zap.SugaredLogger) *PayPalAdapter {
	a := &PayPalAdapter{
		api:          api,
		backend:      be,
		sessions:     sessions,
		checkoutWait: checkoutWait,
		logger:       logger,
	}
	a.loader = newSDKLoader(paypalSDKTimeout, func(ctx context.Context) error {
		if _, err := a.api.GetAccessToken(ctx); err != nil {
			return fmt.Errorf("paypal token: %w", err)
		}
		return nil
	})
	return a
}

func (a *PayPalAdapter) Kind() Kind { return KindPayPal }

func (a *PayPalAdapter) LoadSDK(ctx context.Context) error {
	return a.loader.Load(ctx)
}

func (a *PayPalAdapter) CreateOrder(ctx context.Context, att *Attempt) (*OrderDescriptor, error) {
	if strings.TrimSpace(att.Email) == "" {
		return nil, fmt.Errorf("paypal create order: email is required")
	}

	res, err := a.backend.CreateOrder(ctx, backend.CreateOrderRequest{
		SessionID:        att.SessionID,
		TestID:           att.TestID,
		UserID:           att.UserID,
		FixEmail:         att.Email,
		PricingTier:      att.PricingTier,
		Amount:           att.Amount,
		Currency:         att.Currency,
		Gateway:          string(KindPayPal),
		SessionStartTime: att.SessionStart,
		IsIndia:          att.IsIndia,
		Metadata: map[string]any{
			"userAgent": att.UserAgent,
			"timestamp": att.StartedAt.UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return nil, err
	}
	if res.PayPalOrderID == "" {
		return nil, &backend.NetworkError{Cause: fmt.Errorf("create-order returned no paypal order id")}
	}

	return &OrderDescriptor{
		Gateway:          KindPayPal,
		ProviderOrderID:  res.PayPalOrderID,
		PaymentSessionID: res.PaymentSessionID,
		TransactionID:    res.TransactionID,
		Amount:           res.Amount,
		Currency:         res.Currency,
	}, nil
}

func (a *PayPalAdapter) OpenCheckout(ctx context.Context, order *OrderDescriptor) (CheckoutResult, error) {
	session := a.sessions.Open(order.PaymentSessionID)
	defer session.Close()

	sig, err := session.Await(ctx, a.checkoutWait)
	if err != nil {
		return CheckoutResult{}, err
	}

	if sig.Status == SignalCaptured {
		if sig.Capture == nil {
			return CheckoutResult{Status: SignalFailed, Reason: "approve signal without capture data"}, nil
		}
		if res, ok := a.recheckOrder(ctx, order.ProviderOrderID); ok && !res {
			return CheckoutResult{Status: SignalFailed, Reason: "paypal order not completed"}, nil
		}
	}

	return CheckoutResult{Status: sig.Status, Capture: sig.Capture, Reason: sig.Reason}, nil
}

// recheckOrder confirms the approved order against the PayPal API. The
// approve callback is the primary source; a lookup failure is logged and
// does not override it (second return false), a definitive non-completed
// status does.
func (a *PayPalAdapter) recheckOrder(ctx context.Context, orderID string) (completed, ok bool) {
	ord, err := a.api.GetOrder(ctx, orderID)
	if err != nil {
		a.logger.Warnw("paypal order recheck failed", "order_id", orderID, "err", err.Error())
		return false, false
	}
	switch ord.Status {
	case "COMPLETED", "APPROVED":
		return true, true
	default:
		return false, true
	}
}

func (a *PayPalAdapter) CompleteOrder(ctx context.Context, att *Attempt, order *OrderDescriptor, capture *CaptureResult) error {
	now := time.Now()
	return a.backend.CompleteOrder(ctx, backend.CompleteOrderRequest{
		UserID:            att.UserID,
		OriginalSessionID: att.SessionID,
		TestID:            att.TestID,
		PaymentSessionID:  order.PaymentSessionID,
		Gateway:           string(KindPayPal),
		OrderID:           order.ProviderOrderID,
		TransactionID:     order.TransactionID,
		PaymentData: backend.PaymentData{
			PayPalOrderID:   capture.ProviderOrderID,
			PayPalCaptureID: capture.ProviderPaymentID,
			PayerID:         capture.PayerID,
			Amount:          order.Amount,
			Currency:        order.Currency,
			Status:          "captured",
		},
		Metadata: backend.CompletionMetadata{
			PricingTier:            att.PricingTier,
			SessionStartTime:       att.SessionStart,
			PaymentStartedAt:       att.StartedAt,
			PaymentCompletedAt:     now,
			AuthenticationRequired: att.AuthFlow,
			SessionDurationMS:      now.Sub(att.SessionStart).Milliseconds(),
			PaymentDurationMS:      now.Sub(att.StartedAt).Milliseconds(),
		},
	})
}
