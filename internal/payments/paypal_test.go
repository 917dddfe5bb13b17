package payments

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/plutov/paypal/v4"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type fakePayPalAPI struct {
	tokenErr    error
	tokenCalls  int32
	orderStatus string
	orderErr    error
}

func (f *fakePayPalAPI) GetAccessToken(ctx context.Context) (*paypal.TokenResponse, error) {
	atomic.AddInt32(&f.tokenCalls, 1)
	if f.tokenErr != nil {
		return nil, f.tokenErr
	}
	return &paypal.TokenResponse{Token: "token"}, nil
}

func (f *fakePayPalAPI) GetOrder(ctx context.Context, orderID string) (*paypal.Order, error) {
	if f.orderErr != nil {
		return nil, f.orderErr
	}
	return &paypal.Order{ID: orderID, Status: f.orderStatus}, nil
}

func newPayPalForTest(api *fakePayPalAPI) *PayPalAdapter {
	return newPayPalAdapter(api, nil, NewSessionRegistry(), 200*time.Millisecond, zap.NewNop().Sugar())
}

func TestPayPalLoadSDK(t *testing.T) {
	api := &fakePayPalAPI{}
	adapter := newPayPalForTest(api)

	assert.NoError(t, adapter.LoadSDK(context.Background()))
	assert.NoError(t, adapter.LoadSDK(context.Background()))
	assert.Equal(t, int32(1), atomic.LoadInt32(&api.tokenCalls))
}

func TestPayPalLoadSDKFailure(t *testing.T) {
	api := &fakePayPalAPI{tokenErr: errors.New("invalid client credentials")}
	adapter := newPayPalForTest(api)

	err := adapter.LoadSDK(context.Background())
	assert.ErrorIs(t, err, ErrSDKLoad)
}

func TestPayPalOpenCheckoutApproved(t *testing.T) {
	api := &fakePayPalAPI{orderStatus: "COMPLETED"}
	adapter := newPayPalForTest(api)
	order := &OrderDescriptor{Gateway: KindPayPal, ProviderOrderID: "PP-1", PaymentSessionID: "ps_pp"}

	go func() {
		time.Sleep(20 * time.Millisecond)
		adapter.sessions.Deliver("ps_pp", CheckoutSignal{
			Status:  SignalCaptured,
			Capture: &CaptureResult{ProviderOrderID: "PP-1", PayerID: "PAYER1", Status: "approved"},
		})
	}()

	res, err := adapter.OpenCheckout(context.Background(), order)
	assert.NoError(t, err)
	assert.Equal(t, SignalCaptured, res.Status)
	assert.Equal(t, "PAYER1", res.Capture.PayerID)
}

func TestPayPalOpenCheckoutRecheckOverridesApproval(t *testing.T) {
	api := &fakePayPalAPI{orderStatus: "VOIDED"}
	adapter := newPayPalForTest(api)
	order := &OrderDescriptor{Gateway: KindPayPal, ProviderOrderID: "PP-2", PaymentSessionID: "ps_void"}

	go func() {
		time.Sleep(20 * time.Millisecond)
		adapter.sessions.Deliver("ps_void", CheckoutSignal{
			Status:  SignalCaptured,
			Capture: &CaptureResult{ProviderOrderID: "PP-2"},
		})
	}()

	res, err := adapter.OpenCheckout(context.Background(), order)
	assert.NoError(t, err)
	assert.Equal(t, SignalFailed, res.Status)
}

func TestPayPalOpenCheckoutRecheckFailureKeepsApproval(t *testing.T) {
	api := &fakePayPalAPI{orderErr: errors.New("rate limited")}
	adapter := newPayPalForTest(api)
	order := &OrderDescriptor{Gateway: KindPayPal, ProviderOrderID: "PP-3", PaymentSessionID: "ps_flaky"}

	go func() {
		time.Sleep(20 * time.Millisecond)
		adapter.sessions.Deliver("ps_flaky", CheckoutSignal{
			Status:  SignalCaptured,
			Capture: &CaptureResult{ProviderOrderID: "PP-3"},
		})
	}()

	// The approve callback stays authoritative when the recheck itself errors.
	res, err := adapter.OpenCheckout(context.Background(), order)
	assert.NoError(t, err)
	assert.Equal(t, SignalCaptured, res.Status)
}
