package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"mindprint/internal/store"
)

func TestStoreContextPersistsTimingWithAuthFlag(t *testing.T) {
	app := newTestApp()
	app.storage = store.NewMemoryStorage()

	body := `{"sessionId":"sess_1","testId":"test_1","gateway":"razorpay","authFlow":true}`
	rr := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/v1/payments/context", strings.NewReader(body))

	app.storeContextHandler(rr, r)

	assert.Equal(t, http.StatusCreated, rr.Code)

	pc, err := app.storage.Contexts.GetContext(context.Background(), "sess_1")
	assert.NoError(t, err)
	assert.NotNil(t, pc)
	assert.Equal(t, "razorpay", pc.Gateway)

	timing, err := app.storage.Contexts.GetTiming(context.Background(), "sess_1")
	assert.NoError(t, err)
	assert.NotNil(t, timing)
	assert.True(t, timing.AuthenticationRequired, "auth flag must survive the sign-in hop")
	assert.Equal(t, timing.SessionStart, pc.SessionStart)
}

func TestStoreContextRejectsUnknownGateway(t *testing.T) {
	app := newTestApp()
	app.storage = store.NewMemoryStorage()

	body := `{"sessionId":"sess_1","testId":"test_1","gateway":"stripe"}`
	rr := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/v1/payments/context", strings.NewReader(body))

	app.storeContextHandler(rr, r)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
