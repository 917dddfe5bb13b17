package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mindprint/internal/backend"
	"mindprint/internal/mailer"
	"mindprint/internal/payments"
	"mindprint/internal/store"
)

// attempt states, in the order they advance
type state string

const (
	stateIdle            state = "idle"
	stateLoadingSDK      state = "loading_sdk"
	stateCreatingOrder   state = "creating_order"
	stateAwaitingCapture state = "awaiting_capture"
	stateCompleting      state = "completing"
)

type Status string

const (
	StatusSuccess   Status = "success"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

// Outcome is the single result of one ProcessPayment call. Cancelled
// outcomes carry no message; the UI returns to its prior state silently.
type Outcome struct {
	Status              Status `json:"status"`
	Message             string `json:"message,omitempty"`
	OrderID             string `json:"orderId,omitempty"`
	TransactionID       string `json:"transactionId,omitempty"`
	Receipt             string `json:"receipt,omitempty"`
	VerificationPending bool   `json:"verificationPending,omitempty"`
}

// User is the paying customer as known to the checkout endpoint.
type User struct {
	ID        int64
	Email     string
	FullName  string
	IsIndia   bool
	UserAgent string
	AuthFlow  bool
}

// Analytics receives attempt lifecycle events. Fire and forget: failures
// are logged, never surfaced.
type Analytics interface {
	Track(ctx context.Context, event string, props map[string]any) error
}

// Affiliates receives conversion notifications for confirmed payments.
type Affiliates interface {
	Conversion(ctx context.Context, sessionID, orderID string, amount int64, currency string) error
}

type Orchestrator struct {
	manager    *payments.Manager
	backend    *backend.Client
	storage    store.Storage
	analytics  Analytics
	affiliates Affiliates
	receipts   *ReceiptGenerator
	mail       mailer.Client
	supportTo  string
	logger     *zap.SugaredLogger
}

func New(manager *payments.Manager, be *backend.Client, storage store.Storage, analytics Analytics, affiliates Affiliates, receipts *ReceiptGenerator, mail mailer.Client, supportTo string, logger *zap.SugaredLogger) *Orchestrator {
	return &Orchestrator{
		manager:    manager,
		backend:    be,
		storage:    storage,
		analytics:  analytics,
		affiliates: affiliates,
		receipts:   receipts,
		mail:       mail,
		supportTo:  supportTo,
		logger:     logger,
	}
}

// ProcessPayment runs one checkout attempt end to end:
// LoadSDK, CreateOrder, OpenCheckout, CompleteOrder. Each step either
// advances or terminates the attempt; there is no internal retry. A retry
// means the caller invokes ProcessPayment again with a fresh attempt.
func (o *Orchestrator) ProcessPayment(ctx context.Context, kind payments.Kind, sessionID, testID string, user User) Outcome {
	gateway, err := o.manager.Gateway(kind)
	if err != nil {
		o.logger.Errorw("gateway lookup failed", "gateway", kind, "err", err.Error())
		return Outcome{Status: StatusFailed, Message: MsgPaymentFailed}
	}

	sessionStart, err := o.storage.Contexts.GetOrCreateSessionStart(ctx, sessionID)
	if err != nil {
		o.logger.Errorw("session start lookup failed", "session_id", sessionID, "err", err.Error())
		sessionStart = time.Now()
	}

	// A sign-in redirect before this call strips the request of its auth
	// flag; the timing row stored ahead of the hop carries it across.
	authFlow := user.AuthFlow
	if timing, err := o.storage.Contexts.GetTiming(ctx, sessionID); err == nil && timing != nil && timing.AuthenticationRequired {
		authFlow = true
	}

	pricing, err := o.backend.Pricing(ctx, string(kind), user.IsIndia)
	if err != nil {
		o.logger.Errorw("pricing fetch failed", "gateway", kind, "err", err.Error())
		return Outcome{Status: StatusFailed, Message: MsgNetworkError}
	}

	att := &payments.Attempt{
		ID:           uuid.NewString(),
		Gateway:      kind,
		SessionID:    sessionID,
		TestID:       testID,
		UserID:       user.ID,
		Email:        user.Email,
		FullName:     user.FullName,
		Amount:       pricing.Amount,
		Currency:     pricing.Currency,
		PricingTier:  pricing.PricingTier,
		IsIndia:      user.IsIndia,
		UserAgent:    user.UserAgent,
		AuthFlow:     authFlow,
		SessionStart: sessionStart,
		StartedAt:    time.Now(),
	}

	o.logStage(ctx, att, stateLoadingSDK, nil)
	o.emit(ctx, "payment_modal_opened", att, nil)

	if err := gateway.LoadSDK(ctx); err != nil {
		return o.fail(ctx, att, stateLoadingSDK, MsgSDKLoadFailed, err)
	}

	o.logStage(ctx, att, stateCreatingOrder, nil)

	order, err := gateway.CreateOrder(ctx, att)
	if err != nil {
		var vErr *backend.ValidationError
		if errors.As(err, &vErr) {
			// Field detail goes to the log only; the user sees the fixed
			// message, not the backend's validation text.
			return o.fail(ctx, att, stateCreatingOrder, MsgPaymentFailed, err)
		}
		return o.fail(ctx, att, stateCreatingOrder, MsgNetworkError, err)
	}
	att.OrderID = order.ProviderOrderID
	att.PaymentSessionID = order.PaymentSessionID

	// The approval step can hand control to the provider's domain. Persist
	// the checkout intent first so the attempt is resumable after the hop.
	if err := o.storage.Contexts.StoreContext(ctx, store.PaymentContext{
		OriginalSessionID: sessionID,
		TestID:            testID,
		Gateway:           string(kind),
		SessionStart:      sessionStart,
	}); err != nil {
		return o.fail(ctx, att, stateCreatingOrder, MsgPaymentFailed, err)
	}

	o.logStage(ctx, att, stateAwaitingCapture, map[string]any{"order_id": order.ProviderOrderID})

	result, err := gateway.OpenCheckout(ctx, order)
	if err != nil {
		return o.fail(ctx, att, stateAwaitingCapture, MsgPaymentFailed, err)
	}

	switch result.Status {
	case payments.SignalCancelled:
		// Cancellation is a normal terminal state, not an error: clear the
		// context, no banner, and CompleteOrder is never reached.
		_ = o.storage.Contexts.ClearContext(ctx, sessionID)
		o.logStage(ctx, att, "cancelled", nil)
		o.emit(ctx, "payment_cancelled", att, nil)
		return Outcome{Status: StatusCancelled}

	case payments.SignalFailed:
		return o.fail(ctx, att, stateAwaitingCapture, MsgPaymentFailed, errors.New(result.Reason))

	case payments.SignalCaptured:
		// fall through to completion
	}

	// The attempt must not outlive the context that authorized it. If the
	// context is gone or names a different session, fail closed rather than
	// completing under a substituted identity.
	pctx, err := o.storage.Contexts.GetContext(ctx, sessionID)
	if err != nil || pctx == nil || pctx.OriginalSessionID != sessionID {
		o.logger.Errorw("payment context missing at completion",
			"session_id", sessionID,
			"order_id", order.ProviderOrderID,
			"payment_id", result.Capture.ProviderPaymentID,
		)
		o.logStage(ctx, att, "context_lost", map[string]any{"order_id": order.ProviderOrderID})
		o.notifySupport(att, order, "captured payment with missing checkout context")
		return Outcome{Status: StatusFailed, Message: MsgSessionExpired}
	}

	o.logStage(ctx, att, stateCompleting, map[string]any{"payment_id": result.Capture.ProviderPaymentID})

	if err := gateway.CompleteOrder(ctx, att, order, result.Capture); err != nil {
		// The money moved. Reporting a generic failure here would be false
		// and retrying the checkout would risk a double charge, so the
		// outcome is success with verification pending.
		o.logger.Errorw("completion failed after capture",
			"gateway", kind,
			"order_id", order.ProviderOrderID,
			"payment_id", result.Capture.ProviderPaymentID,
			"err", err.Error(),
		)
		o.logStage(ctx, att, "completion_failed", map[string]any{"order_id": order.ProviderOrderID})
		o.emit(ctx, "payment_succeeded", att, map[string]any{"verification_pending": true})
		o.notifySupport(att, order, "capture succeeded but completion submission failed")

		return Outcome{
			Status:              StatusSuccess,
			Message:             MsgVerificationPending,
			OrderID:             order.ProviderOrderID,
			TransactionID:       order.TransactionID,
			VerificationPending: true,
		}
	}

	_ = o.storage.Contexts.ClearContext(ctx, sessionID)

	receipt := o.receipts.Generate(user.ID, time.Now())
	o.logStage(ctx, att, "confirmed", map[string]any{"receipt": receipt})
	o.emit(ctx, "payment_succeeded", att, map[string]any{"receipt": receipt})
	o.notifyConversion(att, order)
	o.sendReceipt(user, att, receipt)

	return Outcome{
		Status:        StatusSuccess,
		OrderID:       order.ProviderOrderID,
		TransactionID: order.TransactionID,
		Receipt:       receipt,
	}
}

func (o *Orchestrator) fail(ctx context.Context, att *payments.Attempt, at state, message string, cause error) Outcome {
	o.logger.Errorw("payment attempt failed",
		"gateway", att.Gateway,
		"session_id", att.SessionID,
		"state", at,
		"err", cause.Error(),
	)
	o.logStage(ctx, att, "failed", map[string]any{"state": string(at)})
	o.emit(ctx, "payment_failed", att, map[string]any{"state": string(at)})
	return Outcome{Status: StatusFailed, Message: message}
}

func (o *Orchestrator) logStage(ctx context.Context, att *payments.Attempt, stage state, payload map[string]any) {
	if payload == nil {
		payload = map[string]any{}
	}
	payload["attempt_id"] = att.ID
	payload["gateway"] = string(att.Gateway)
	if err := o.storage.AttemptLogs.Insert(ctx, att.SessionID, string(stage), payload); err != nil {
		o.logger.Warnw("attempt log write failed", "stage", stage, "err", err.Error())
	}
}

// emit sends a lifecycle event to analytics without blocking or failing the
// attempt.
func (o *Orchestrator) emit(_ context.Context, event string, att *payments.Attempt, extra map[string]any) {
	props := map[string]any{
		"gateway":    string(att.Gateway),
		"session_id": att.SessionID,
		"test_id":    att.TestID,
		"amount":     att.Amount,
		"currency":   att.Currency,
	}
	for k, v := range extra {
		props[k] = v
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := o.analytics.Track(ctx, event, props); err != nil {
			o.logger.Warnw("analytics event failed", "event", event, "err", err.Error())
		}
	}()
}

func (o *Orchestrator) notifyConversion(att *payments.Attempt, order *payments.OrderDescriptor) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := o.affiliates.Conversion(ctx, att.SessionID, order.ProviderOrderID, order.Amount, order.Currency); err != nil {
			o.logger.Warnw("affiliate notification failed", "order_id", order.ProviderOrderID, "err", err.Error())
		}
	}()
}

func (o *Orchestrator) notifySupport(att *payments.Attempt, order *payments.OrderDescriptor, reason string) {
	if o.mail == nil || o.supportTo == "" {
		return
	}
	go func() {
		_, err := o.mail.Send(mailer.VerificationAlertTemplate, "support", o.supportTo, map[string]any{
			"Reason":    reason,
			"Gateway":   string(att.Gateway),
			"SessionID": att.SessionID,
			"TestID":    att.TestID,
			"OrderID":   order.ProviderOrderID,
			"Amount":    order.Amount,
			"Currency":  order.Currency,
			"Email":     att.Email,
		})
		if err != nil {
			o.logger.Errorw("support alert failed", "order_id", order.ProviderOrderID, "err", err.Error())
		}
	}()
}

func (o *Orchestrator) sendReceipt(user User, att *payments.Attempt, receipt string) {
	if o.mail == nil {
		return
	}
	go func() {
		_, err := o.mail.Send(mailer.PaymentReceiptTemplate, user.FullName, user.Email, map[string]any{
			"Name":     user.FullName,
			"Receipt":  receipt,
			"Amount":   att.Amount,
			"Currency": att.Currency,
			"Gateway":  string(att.Gateway),
		})
		if err != nil {
			o.logger.Warnw("receipt email failed", "receipt", receipt, "err", err.Error())
		}
	}()
}
