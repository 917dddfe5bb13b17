package payments

import (
	"errors"
	"time"
)

// ErrSDKLoad marks provider warmup failures, including timeouts. The
// orchestrator maps it to the "failed to load payment gateway" user message.
var ErrSDKLoad = errors.New("payment gateway sdk failed to load")

// ErrCheckoutTimeout is returned when no terminal signal arrives for an open
// checkout session within the configured wait.
var ErrCheckoutTimeout = errors.New("checkout session timed out")

// Attempt is the transient state of one checkout. It lives for a single
// ProcessPayment call and is never persisted beyond it.
type Attempt struct {
	ID           string
	Gateway      Kind
	SessionID    string
	TestID       string
	UserID       int64
	Email        string
	FullName     string
	Amount       int64 // minor units
	Currency     string
	PricingTier  string
	IsIndia      bool
	UserAgent    string
	AuthFlow     bool
	SessionStart time.Time
	StartedAt    time.Time

	// filled in once the backend has created the order
	PaymentSessionID string
	OrderID          string
}

// OrderDescriptor is the normalized result of backend order creation.
type OrderDescriptor struct {
	Gateway          Kind
	ProviderOrderID  string
	PaymentSessionID string
	TransactionID    string
	Amount           int64
	Currency         string
}

// CaptureResult is the normalized provider confirmation that funds moved.
type CaptureResult struct {
	ProviderPaymentID string
	ProviderOrderID   string
	ProviderSignature string
	PayerID           string
	Status            string
	CapturedAt        time.Time
}

// SignalStatus is the terminal state of one checkout UI interaction.
type SignalStatus string

const (
	SignalCaptured  SignalStatus = "captured"
	SignalCancelled SignalStatus = "cancelled"
	SignalFailed    SignalStatus = "failed"
)

// CheckoutSignal is delivered by the provider return handler into the
// session that is awaiting it.
type CheckoutSignal struct {
	Status  SignalStatus
	Capture *CaptureResult
	Reason  string
}

// CheckoutResult is what OpenCheckout reports back. Cancelled is a normal
// terminal state, not an error.
type CheckoutResult struct {
	Status  SignalStatus
	Capture *CaptureResult
	Reason  string
}
