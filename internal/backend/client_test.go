package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func testClient(srv *httptest.Server) *Client {
	return NewClient(srv.URL, zap.NewNop().Sugar())
}

func TestCreateOrderValidationError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/payments/create-order", r.URL.Path)
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]any{
			"detail": map[string]string{"fixEmail": "value is not a valid email address"},
		})
	}))
	defer srv.Close()

	_, err := testClient(srv).CreateOrder(context.Background(), CreateOrderRequest{})

	var vErr *ValidationError
	assert.ErrorAs(t, err, &vErr)
	assert.Equal(t, "value is not a valid email address", vErr.Detail["fixEmail"])
}

func TestCreateOrderMalformed422(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	_, err := testClient(srv).CreateOrder(context.Background(), CreateOrderRequest{})

	// A 422 without parseable detail is still a validation error, not a
	// network one.
	var vErr *ValidationError
	assert.ErrorAs(t, err, &vErr)
	assert.NotEmpty(t, vErr.Detail)
}

func TestCreateOrderServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := testClient(srv).CreateOrder(context.Background(), CreateOrderRequest{})

	var netErr *NetworkError
	assert.ErrorAs(t, err, &netErr)
}

func TestCreateOrderSuccessFalse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"success": false})
	}))
	defer srv.Close()

	_, err := testClient(srv).CreateOrder(context.Background(), CreateOrderRequest{})

	var netErr *NetworkError
	assert.ErrorAs(t, err, &netErr)
}

func TestCreateOrderUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	_, err := testClient(srv).CreateOrder(context.Background(), CreateOrderRequest{})

	var netErr *NetworkError
	assert.ErrorAs(t, err, &netErr)
}

func TestCompleteOrderSuccessFalse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/payments/complete", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{"success": false})
	}))
	defer srv.Close()

	err := testClient(srv).CompleteOrder(context.Background(), CompleteOrderRequest{})

	var netErr *NetworkError
	assert.ErrorAs(t, err, &netErr)
}

func TestStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "sess_1", r.URL.Query().Get("sessionId"))
		assert.Equal(t, "test_1", r.URL.Query().Get("testId"))
		json.NewEncoder(w).Encode(ReportStatus{Status: StatusCompleted, ReportURL: "https://cdn/report.pdf"})
	}))
	defer srv.Close()

	st, err := testClient(srv).Status(context.Background(), "sess_1", "test_1")
	assert.NoError(t, err)
	assert.True(t, st.Terminal())
	assert.Equal(t, "https://cdn/report.pdf", st.ReportURL)
}

func TestReportStatusTerminal(t *testing.T) {
	assert.False(t, (&ReportStatus{Status: StatusPending}).Terminal())
	assert.False(t, (&ReportStatus{Status: StatusProcessing}).Terminal())
	assert.True(t, (&ReportStatus{Status: StatusCompleted}).Terminal())
	assert.True(t, (&ReportStatus{Status: StatusFailed}).Terminal())
}

func TestPricing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "razorpay", r.URL.Query().Get("gateway"))
		assert.Equal(t, "true", r.URL.Query().Get("isIndia"))
		json.NewEncoder(w).Encode(PricingSnapshot{Gateway: "razorpay", Currency: "INR", Amount: 49900, PricingTier: "standard", IsIndia: true})
	}))
	defer srv.Close()

	p, err := testClient(srv).Pricing(context.Background(), "razorpay", true)
	assert.NoError(t, err)
	assert.Equal(t, int64(49900), p.Amount)
	assert.Equal(t, "INR", p.Currency)
}
