package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	rzpsdk "github.com/razorpay/razorpay-go"
	"go.uber.org/zap"

	"mindprint/internal/backend"
)

const razorpaySDKTimeout = 10 * time.Second

type RazorpayAdapter struct {
	keyID        string
	keySecret    string
	backend      *backend.Client
	sessions     *SessionRegistry
	loader       *sdkLoader
	checkoutWait time.Duration
	logger       *zap.SugaredLogger
}

func NewRazorpayAdapter(keyID, keySecret string, be *backend.Client, sessions *SessionRegistry, checkoutWait time.Duration, logger *zap.SugaredLogger) *RazorpayAdapter {
	a := &RazorpayAdapter{
		keyID:        keyID,
		keySecret:    keySecret,
		backend:      be,
		sessions:     sessions,
		checkoutWait: checkoutWait,
		logger:       logger,
	}

	client := rzpsdk.NewClient(keyID, keySecret)
	a.loader = newSDKLoader(razorpaySDKTimeout, func(ctx context.Context) error {
		// Cheap authenticated call; proves key validity and reachability.
		_, err := client.Order.All(map[string]interface{}{"count": 1}, nil)
		if err != nil {
			return fmt.Errorf("razorpay preflight: %w", err)
		}
		return nil
	})

	return a
}

func (a *RazorpayAdapter) Kind() Kind { return KindRazorpay }

func (a *RazorpayAdapter) LoadSDK(ctx context.Context) error {
	return a.loader.Load(ctx)
}

func (a *RazorpayAdapter) CreateOrder(ctx context.Context, att *Attempt) (*OrderDescriptor, error) {
	if strings.TrimSpace(att.Email) == "" {
		return nil, fmt.Errorf("razorpay create order: email is required")
	}

	res, err := a.backend.CreateOrder(ctx, backend.CreateOrderRequest{
		SessionID:        att.SessionID,
		TestID:           att.TestID,
		UserID:           att.UserID,
		FixEmail:         att.Email,
		PricingTier:      att.PricingTier,
		Amount:           att.Amount,
		Currency:         att.Currency,
		Gateway:          string(KindRazorpay),
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
	if res.RazorpayOrderID == "" {
		return nil, &backend.NetworkError{Cause: fmt.Errorf("create-order returned no razorpay order id")}
	}

	return &OrderDescriptor{
		Gateway:          KindRazorpay,
		ProviderOrderID:  res.RazorpayOrderID,
		PaymentSessionID: res.PaymentSessionID,
		TransactionID:    res.TransactionID,
		Amount:           res.Amount,
		Currency:         res.Currency,
	}, nil
}

func (a *RazorpayAdapter) OpenCheckout(ctx context.Context, order *OrderDescriptor) (CheckoutResult, error) {
	session := a.sessions.Open(order.PaymentSessionID)
	defer session.Close()

	sig, err := session.Await(ctx, a.checkoutWait)
	if err != nil {
		return CheckoutResult{}, err
	}

	if sig.Status == SignalCaptured {
		if sig.Capture == nil {
			return CheckoutResult{Status: SignalFailed, Reason: "capture signal without capture data"}, nil
		}
		if !a.verifyCaptureSignature(sig.Capture) {
			a.logger.Errorw("razorpay capture signature mismatch",
				"order_id", sig.Capture.ProviderOrderID,
				"payment_id", sig.Capture.ProviderPaymentID,
			)
			return CheckoutResult{Status: SignalFailed, Reason: "capture signature mismatch"}, nil
		}
	}

	return CheckoutResult{Status: sig.Status, Capture: sig.Capture, Reason: sig.Reason}, nil
}

// verifyCaptureSignature checks the canonical Razorpay checkout signature:
// HMAC-SHA256(order_id + "|" + payment_id) keyed with the key secret.
func (a *RazorpayAdapter) verifyCaptureSignature(capture *CaptureResult) bool {
	if capture.ProviderOrderID == "" || capture.ProviderPaymentID == "" || capture.ProviderSignature == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(a.keySecret))
	mac.Write([]byte(capture.ProviderOrderID + "|" + capture.ProviderPaymentID))
	want := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(want), []byte(capture.ProviderSignature))
}

func (a *RazorpayAdapter) CompleteOrder(ctx context.Context, att *Attempt, order *OrderDescriptor, capture *CaptureResult) error {
	now := time.Now()
	return a.backend.CompleteOrder(ctx, backend.CompleteOrderRequest{
		UserID:            att.UserID,
		OriginalSessionID: att.SessionID,
		TestID:            att.TestID,
		PaymentSessionID:  order.PaymentSessionID,
		Gateway:           string(KindRazorpay),
		OrderID:           order.ProviderOrderID,
		TransactionID:     order.TransactionID,
		PaymentData: backend.PaymentData{
			RazorpayPaymentID: capture.ProviderPaymentID,
			RazorpayOrderID:   capture.ProviderOrderID,
			RazorpaySignature: capture.ProviderSignature,
			Amount:            order.Amount,
			Currency:          order.Currency,
			Status:            "captured",
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
