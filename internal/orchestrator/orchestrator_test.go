package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"mindprint/internal/backend"
	"mindprint/internal/payments"
	"mindprint/internal/store"
)

// --- Mocks ---

type MockGateway struct {
	mock.Mock
	kind payments.Kind
}

func (m *MockGateway) Kind() payments.Kind { return m.kind }

func (m *MockGateway) LoadSDK(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockGateway) CreateOrder(ctx context.Context, att *payments.Attempt) (*payments.OrderDescriptor, error) {
	args := m.Called(ctx, att)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payments.OrderDescriptor), args.Error(1)
}

func (m *MockGateway) OpenCheckout(ctx context.Context, order *payments.OrderDescriptor) (payments.CheckoutResult, error) {
	args := m.Called(ctx, order)
	return args.Get(0).(payments.CheckoutResult), args.Error(1)
}

func (m *MockGateway) CompleteOrder(ctx context.Context, att *payments.Attempt, order *payments.OrderDescriptor, capture *payments.CaptureResult) error {
	args := m.Called(ctx, att, order, capture)
	return args.Error(0)
}

type recordingAnalytics struct {
	mu     sync.Mutex
	events []string
}

func (a *recordingAnalytics) Track(ctx context.Context, event string, props map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
	return nil
}

type recordingAffiliates struct {
	mu    sync.Mutex
	calls int
}

func (a *recordingAffiliates) Conversion(ctx context.Context, sessionID, orderID string, amount int64, currency string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	return nil
}

// --- Fixture ---

type fixture struct {
	orch     *Orchestrator
	razorpay *MockGateway
	storage  store.Storage
	srv      *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/payments/pricing" {
			json.NewEncoder(w).Encode(backend.PricingSnapshot{
				Gateway: "razorpay", Currency: "INR", Amount: 49900, PricingTier: "standard", IsIndia: true,
			})
			return
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(srv.Close)

	razorpay := &MockGateway{kind: payments.KindRazorpay}
	paypal := &MockGateway{kind: payments.KindPayPal}
	storage := store.NewMemoryStorage()

	receipts, err := NewReceiptGenerator("test-salt")
	assert.NoError(t, err)

	orch := New(
		payments.NewManager(razorpay, paypal),
		backend.NewClient(srv.URL, zap.NewNop().Sugar()),
		storage,
		&recordingAnalytics{},
		&recordingAffiliates{},
		receipts,
		nil,
		"",
		zap.NewNop().Sugar(),
	)

	return &fixture{orch: orch, razorpay: razorpay, storage: storage, srv: srv}
}

func testOrder() *payments.OrderDescriptor {
	return &payments.OrderDescriptor{
		Gateway:          payments.KindRazorpay,
		ProviderOrderID:  "order_abc",
		PaymentSessionID: "ps_1",
		TransactionID:    "txn_1",
		Amount:           49900,
		Currency:         "INR",
	}
}

func testCapture() *payments.CaptureResult {
	return &payments.CaptureResult{
		ProviderPaymentID: "pay_1",
		ProviderOrderID:   "order_abc",
		ProviderSignature: "sig",
		Status:            "captured",
	}
}

var testUser = User{ID: 42, Email: "user@example.com", FullName: "Asha Rao", IsIndia: true}

// --- Tests ---

func TestSuccessfulPayment(t *testing.T) {
	f := newFixture(t)
	f.razorpay.On("LoadSDK", mock.Anything).Return(nil)
	f.razorpay.On("CreateOrder", mock.Anything, mock.Anything).Return(testOrder(), nil)
	f.razorpay.On("OpenCheckout", mock.Anything, mock.Anything).
		Return(payments.CheckoutResult{Status: payments.SignalCaptured, Capture: testCapture()}, nil)
	f.razorpay.On("CompleteOrder", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()

	out := f.orch.ProcessPayment(context.Background(), payments.KindRazorpay, "sess_1", "test_1", testUser)

	assert.Equal(t, StatusSuccess, out.Status)
	assert.Equal(t, "order_abc", out.OrderID)
	assert.Equal(t, "txn_1", out.TransactionID)
	assert.NotEmpty(t, out.Receipt)
	assert.False(t, out.VerificationPending)
	f.razorpay.AssertNumberOfCalls(t, "CompleteOrder", 1)

	// Context is consumed by the confirmed attempt.
	pctx, err := f.storage.Contexts.GetContext(context.Background(), "sess_1")
	assert.NoError(t, err)
	assert.Nil(t, pctx)
}

func TestCancelledPayment(t *testing.T) {
	f := newFixture(t)
	f.razorpay.On("LoadSDK", mock.Anything).Return(nil)
	f.razorpay.On("CreateOrder", mock.Anything, mock.Anything).Return(testOrder(), nil)
	f.razorpay.On("OpenCheckout", mock.Anything, mock.Anything).
		Return(payments.CheckoutResult{Status: payments.SignalCancelled}, nil)

	out := f.orch.ProcessPayment(context.Background(), payments.KindRazorpay, "sess_1", "test_1", testUser)

	assert.Equal(t, StatusCancelled, out.Status)
	assert.Empty(t, out.Message, "cancellation shows no banner")
	f.razorpay.AssertNotCalled(t, "CompleteOrder", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	pctx, err := f.storage.Contexts.GetContext(context.Background(), "sess_1")
	assert.NoError(t, err)
	assert.Nil(t, pctx, "cancellation clears the stored context")
}

func TestSDKLoadFailure(t *testing.T) {
	f := newFixture(t)
	f.razorpay.On("LoadSDK", mock.Anything).Return(payments.ErrSDKLoad)

	out := f.orch.ProcessPayment(context.Background(), payments.KindRazorpay, "sess_1", "test_1", testUser)

	assert.Equal(t, StatusFailed, out.Status)
	assert.Equal(t, MsgSDKLoadFailed, out.Message)
	f.razorpay.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything)
	f.razorpay.AssertNotCalled(t, "OpenCheckout", mock.Anything, mock.Anything)
}

func TestOrderValidationRejection(t *testing.T) {
	f := newFixture(t)
	f.razorpay.On("LoadSDK", mock.Anything).Return(nil)
	f.razorpay.On("CreateOrder", mock.Anything, mock.Anything).
		Return(nil, &backend.ValidationError{Detail: map[string]string{"fixEmail": "not an email"}})

	out := f.orch.ProcessPayment(context.Background(), payments.KindRazorpay, "sess_1", "test_1", testUser)

	assert.Equal(t, StatusFailed, out.Status)
	assert.Equal(t, MsgPaymentFailed, out.Message)
	assert.NotContains(t, out.Message, "fixEmail", "backend validation text never reaches the user")
}

func TestOrderNetworkFailure(t *testing.T) {
	f := newFixture(t)
	f.razorpay.On("LoadSDK", mock.Anything).Return(nil)
	f.razorpay.On("CreateOrder", mock.Anything, mock.Anything).
		Return(nil, &backend.NetworkError{Cause: errors.New("connection refused")})

	out := f.orch.ProcessPayment(context.Background(), payments.KindRazorpay, "sess_1", "test_1", testUser)

	assert.Equal(t, StatusFailed, out.Status)
	assert.Equal(t, MsgNetworkError, out.Message)
}

func TestCheckoutFailure(t *testing.T) {
	f := newFixture(t)
	f.razorpay.On("LoadSDK", mock.Anything).Return(nil)
	f.razorpay.On("CreateOrder", mock.Anything, mock.Anything).Return(testOrder(), nil)
	f.razorpay.On("OpenCheckout", mock.Anything, mock.Anything).
		Return(payments.CheckoutResult{Status: payments.SignalFailed, Reason: "capture signature mismatch"}, nil)

	out := f.orch.ProcessPayment(context.Background(), payments.KindRazorpay, "sess_1", "test_1", testUser)

	assert.Equal(t, StatusFailed, out.Status)
	assert.Equal(t, MsgPaymentFailed, out.Message)
	f.razorpay.AssertNotCalled(t, "CompleteOrder", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCompletionFailureAfterCapture(t *testing.T) {
	f := newFixture(t)
	f.razorpay.On("LoadSDK", mock.Anything).Return(nil)
	f.razorpay.On("CreateOrder", mock.Anything, mock.Anything).Return(testOrder(), nil)
	f.razorpay.On("OpenCheckout", mock.Anything, mock.Anything).
		Return(payments.CheckoutResult{Status: payments.SignalCaptured, Capture: testCapture()}, nil)
	f.razorpay.On("CompleteOrder", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&backend.NetworkError{Cause: errors.New("backend unavailable")})

	out := f.orch.ProcessPayment(context.Background(), payments.KindRazorpay, "sess_1", "test_1", testUser)

	// The charge went through; reporting failure would be false.
	assert.Equal(t, StatusSuccess, out.Status)
	assert.True(t, out.VerificationPending)
	assert.Equal(t, MsgVerificationPending, out.Message)
	assert.Equal(t, "order_abc", out.OrderID)
	assert.Empty(t, out.Receipt, "no receipt until completion is confirmed")
}

func TestCaptureWithMissingContextFailsClosed(t *testing.T) {
	f := newFixture(t)
	f.razorpay.On("LoadSDK", mock.Anything).Return(nil)
	f.razorpay.On("CreateOrder", mock.Anything, mock.Anything).Return(testOrder(), nil)
	f.razorpay.On("OpenCheckout", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			// Simulate the context disappearing while the user is on the
			// provider's page.
			f.storage.Contexts.ClearContext(context.Background(), "sess_1")
		}).
		Return(payments.CheckoutResult{Status: payments.SignalCaptured, Capture: testCapture()}, nil)

	out := f.orch.ProcessPayment(context.Background(), payments.KindRazorpay, "sess_1", "test_1", testUser)

	assert.Equal(t, StatusFailed, out.Status)
	assert.Equal(t, MsgSessionExpired, out.Message)
	f.razorpay.AssertNotCalled(t, "CompleteOrder", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPricingFailureStopsAttempt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	razorpay := &MockGateway{kind: payments.KindRazorpay}
	receipts, err := NewReceiptGenerator("test-salt")
	assert.NoError(t, err)

	orch := New(
		payments.NewManager(razorpay, &MockGateway{kind: payments.KindPayPal}),
		backend.NewClient(srv.URL, zap.NewNop().Sugar()),
		store.NewMemoryStorage(),
		&recordingAnalytics{}, &recordingAffiliates{}, receipts, nil, "",
		zap.NewNop().Sugar(),
	)

	out := orch.ProcessPayment(context.Background(), payments.KindRazorpay, "sess_1", "test_1", testUser)

	assert.Equal(t, StatusFailed, out.Status)
	assert.Equal(t, MsgNetworkError, out.Message)
	razorpay.AssertNotCalled(t, "LoadSDK", mock.Anything)
}

func TestAttemptUsesFreshPricing(t *testing.T) {
	f := newFixture(t)
	f.razorpay.On("LoadSDK", mock.Anything).Return(nil)
	f.razorpay.On("CreateOrder", mock.Anything, mock.MatchedBy(func(att *payments.Attempt) bool {
		return att.Amount == 49900 && att.Currency == "INR" && att.PricingTier == "standard"
	})).Return(testOrder(), nil)
	f.razorpay.On("OpenCheckout", mock.Anything, mock.Anything).
		Return(payments.CheckoutResult{Status: payments.SignalCancelled}, nil)

	out := f.orch.ProcessPayment(context.Background(), payments.KindRazorpay, "sess_1", "test_1", testUser)

	assert.Equal(t, StatusCancelled, out.Status)
	f.razorpay.AssertExpectations(t)
}

func TestAuthFlowRestoredFromStoredTiming(t *testing.T) {
	f := newFixture(t)

	// The pre-redirect context write recorded that this session went
	// through sign-in; the post-redirect checkout request does not know.
	err := f.storage.Contexts.StoreTiming(context.Background(), store.SessionTiming{
		OriginalSessionID:      "sess_1",
		TestID:                 "test_1",
		AuthenticationRequired: true,
	})
	assert.NoError(t, err)

	f.razorpay.On("LoadSDK", mock.Anything).Return(nil)
	f.razorpay.On("CreateOrder", mock.Anything, mock.MatchedBy(func(att *payments.Attempt) bool {
		return att.AuthFlow
	})).Return(testOrder(), nil)
	f.razorpay.On("OpenCheckout", mock.Anything, mock.Anything).
		Return(payments.CheckoutResult{Status: payments.SignalCancelled}, nil)

	user := testUser
	user.AuthFlow = false
	out := f.orch.ProcessPayment(context.Background(), payments.KindRazorpay, "sess_1", "test_1", user)

	assert.Equal(t, StatusCancelled, out.Status)
	f.razorpay.AssertExpectations(t)
}

func TestReceiptGeneratorIsDeterministicPerInput(t *testing.T) {
	g, err := NewReceiptGenerator("salt")
	assert.NoError(t, err)

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a := g.Generate(42, at)
	b := g.Generate(42, at)
	c := g.Generate(43, at)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Contains(t, a, "MP-")
}
