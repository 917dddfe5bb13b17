package payments

import (
	"context"
	"fmt"
)

// Kind identifies a payment provider. Exactly two are supported; call sites
// switch on Kind and handle both.
type Kind string

const (
	KindRazorpay Kind = "razorpay"
	KindPayPal   Kind = "paypal"
)

func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindRazorpay:
		return KindRazorpay, nil
	case KindPayPal:
		return KindPayPal, nil
	}
	return "", fmt.Errorf("unknown gateway: %q", s)
}

// Gateway defines a common interface for all payment providers.
type Gateway interface {
	Kind() Kind

	// LoadSDK warms up the provider client. Idempotent: once loaded it
	// returns immediately, and concurrent callers share a single in-flight
	// warmup instead of starting a second one.
	LoadSDK(ctx context.Context) error

	// CreateOrder registers the attempt with the order backend and returns
	// the provider-side order descriptor. Rejects locally on empty email.
	CreateOrder(ctx context.Context, att *Attempt) (*OrderDescriptor, error)

	// OpenCheckout drives the provider approval step and waits for exactly
	// one terminal signal: captured, cancelled or failed. Session resources
	// opened for the attempt are released on every exit path.
	OpenCheckout(ctx context.Context, order *OrderDescriptor) (CheckoutResult, error)

	// CompleteOrder posts the capture to the backend completion endpoint.
	// Must be called exactly once per capture; errors propagate.
	CompleteOrder(ctx context.Context, att *Attempt, order *OrderDescriptor, capture *CaptureResult) error
}
