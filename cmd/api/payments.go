package main

import (
	"fmt"
	"net/http"
	"time"

	"mindprint/internal/orchestrator"
	"mindprint/internal/payments"
	"mindprint/internal/store"
)

type checkoutRequest struct {
	Gateway   string `json:"gateway" validate:"required,gateway"`
	SessionID string `json:"sessionId" validate:"required,max=128"`
	TestID    string `json:"testId" validate:"required,max=128"`
	IsIndia   bool   `json:"isIndia"`
	AuthFlow  bool   `json:"authFlow"`
}

// checkoutHandler godoc
//
//	@Summary		Run a checkout attempt
//	@Description	Orchestrates one payment attempt end to end and blocks until it settles
//	@Tags			payments
//	@Accept			json
//	@Produce		json
//	@Param			payload	body		checkoutRequest	true	"Checkout intent"
//	@Success		200		{object}	orchestrator.Outcome
//	@Security		ApiKeyAuth
//	@Router			/payments/checkout [post]
func (app *application) checkoutHandler(w http.ResponseWriter, r *http.Request) {
	var payload checkoutRequest
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}
	if err := Validate.Struct(payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	kind, err := payments.ParseKind(payload.Gateway)
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	user, ok := getUserFromContext(r)
	if !ok {
		app.unauthorizedErrorResponse(w, r, fmt.Errorf("no authenticated user"))
		return
	}

	outcome := app.orchestrator.ProcessPayment(r.Context(), kind, payload.SessionID, payload.TestID, orchestrator.User{
		ID:        user.ID,
		Email:     user.Email,
		FullName:  user.Name,
		IsIndia:   payload.IsIndia,
		UserAgent: r.UserAgent(),
		AuthFlow:  payload.AuthFlow,
	})

	app.jsonResponse(w, http.StatusOK, outcome)
}

// pricingHandler proxies the per-gateway, per-locale price. Snapshots are
// fetched fresh every call; prices can change between sessions.
func (app *application) pricingHandler(w http.ResponseWriter, r *http.Request) {
	gateway := r.URL.Query().Get("gateway")
	if _, err := payments.ParseKind(gateway); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}
	isIndia := r.URL.Query().Get("isIndia") == "true"

	snapshot, err := app.backend.Pricing(r.Context(), gateway, isIndia)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}

	app.jsonResponse(w, http.StatusOK, snapshot)
}

type storeContextRequest struct {
	SessionID string `json:"sessionId" validate:"required,max=128"`
	TestID    string `json:"testId" validate:"required,max=128"`
	Gateway   string `json:"gateway" validate:"required,gateway"`
	ReturnURL string `json:"returnUrl" validate:"omitempty,url"`
	AuthFlow  bool   `json:"authFlow"`
}

// storeContextHandler persists checkout intent ahead of a sign-in redirect
// so the attempt is resumable when the user comes back.
func (app *application) storeContextHandler(w http.ResponseWriter, r *http.Request) {
	var payload storeContextRequest
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}
	if err := Validate.Struct(payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	sessionStart, err := app.storage.Contexts.GetOrCreateSessionStart(r.Context(), payload.SessionID)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}

	// The sign-in hop loses the request body, so the auth flag rides on the
	// timing row and checkout reads it back after the redirect.
	err = app.storage.Contexts.StoreTiming(r.Context(), store.SessionTiming{
		OriginalSessionID:      payload.SessionID,
		TestID:                 payload.TestID,
		SessionStart:           sessionStart,
		AuthenticationRequired: payload.AuthFlow,
	})
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}

	err = app.storage.Contexts.StoreContext(r.Context(), store.PaymentContext{
		OriginalSessionID: payload.SessionID,
		TestID:            payload.TestID,
		Gateway:           payload.Gateway,
		SessionStart:      sessionStart,
		ReturnURL:         payload.ReturnURL,
	})
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}

	app.jsonResponse(w, http.StatusCreated, map[string]any{
		"sessionId":    payload.SessionID,
		"sessionStart": sessionStart.UTC().Format(time.RFC3339),
	})
}

func (app *application) getContextHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		app.badRequestResponse(w, r, fmt.Errorf("missing sessionId"))
		return
	}

	pc, err := app.storage.Contexts.GetContext(r.Context(), sessionID)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}
	if pc == nil {
		app.notFoundResponse(w, r, fmt.Errorf("no active payment context"))
		return
	}

	app.jsonResponse(w, http.StatusOK, map[string]any{
		"sessionId":    pc.OriginalSessionID,
		"testId":       pc.TestID,
		"gateway":      pc.Gateway,
		"sessionStart": pc.SessionStart.UTC().Format(time.RFC3339),
		"returnUrl":    pc.ReturnURL,
		"storedAt":     pc.StoredAt.UTC().Format(time.RFC3339),
	})
}

func (app *application) clearContextHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		app.badRequestResponse(w, r, fmt.Errorf("missing sessionId"))
		return
	}

	if err := app.storage.Contexts.ClearContext(r.Context(), sessionID); err != nil {
		app.internalServerError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// statusHandler is the one-shot status check used by the dashboard between
// polls.
func (app *application) statusHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	testID := r.URL.Query().Get("testId")
	if sessionID == "" || testID == "" {
		app.badRequestResponse(w, r, fmt.Errorf("missing sessionId or testId"))
		return
	}

	status, err := app.backend.Status(r.Context(), sessionID, testID)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}

	app.jsonResponse(w, http.StatusOK, status)
}
