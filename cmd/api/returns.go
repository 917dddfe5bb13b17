package main

import (
	"fmt"
	"net/http"
	"time"

	"mindprint/internal/payments"
)

// redirectAfterReturn sends the user's browser back to the frontend result
// page. The browser tab only confirms; the awaiting checkout session owns
// the authoritative outcome.
func (app *application) redirectAfterReturn(w http.ResponseWriter, r *http.Request, result string) {
	target := fmt.Sprintf("%s/payment/result?state=%s", app.config.frontendURL, result)
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// razorpayReturnHandler receives the browser redirect after a Razorpay
// checkout closes. Captured payments carry the id/signature triple that the
// adapter verifies before trusting the capture.
func (app *application) razorpayReturnHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	paymentSessionID := q.Get("payment_session_id")
	if paymentSessionID == "" {
		app.badRequestResponse(w, r, fmt.Errorf("missing payment_session_id"))
		return
	}

	if q.Get("status") == "cancelled" {
		app.sessions.Deliver(paymentSessionID, payments.CheckoutSignal{Status: payments.SignalCancelled})
		app.redirectAfterReturn(w, r, "cancelled")
		return
	}

	paymentID := q.Get("razorpay_payment_id")
	orderID := q.Get("razorpay_order_id")
	signature := q.Get("razorpay_signature")
	if paymentID == "" || orderID == "" || signature == "" {
		app.sessions.Deliver(paymentSessionID, payments.CheckoutSignal{
			Status: payments.SignalFailed,
			Reason: "incomplete provider return",
		})
		app.redirectAfterReturn(w, r, "failed")
		return
	}

	delivered := app.sessions.Deliver(paymentSessionID, payments.CheckoutSignal{
		Status: payments.SignalCaptured,
		Capture: &payments.CaptureResult{
			ProviderPaymentID: paymentID,
			ProviderOrderID:   orderID,
			ProviderSignature: signature,
			Status:            "captured",
			CapturedAt:        time.Now(),
		},
	})
	if !delivered {
		// The waiting session already timed out or was superseded. The
		// capture is real, so verification will pick it up server side.
		app.logger.Warnw("razorpay return with no awaiting session", "payment_session_id", paymentSessionID)
	}

	app.redirectAfterReturn(w, r, "processing")
}

// paypalReturnHandler receives the approval redirect (?token=<orderID>&PayerID=...).
func (app *application) paypalReturnHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	paymentSessionID := q.Get("payment_session_id")
	token := q.Get("token")
	payerID := q.Get("PayerID")
	if paymentSessionID == "" || token == "" {
		app.badRequestResponse(w, r, fmt.Errorf("missing payment_session_id or token"))
		return
	}

	delivered := app.sessions.Deliver(paymentSessionID, payments.CheckoutSignal{
		Status: payments.SignalCaptured,
		Capture: &payments.CaptureResult{
			ProviderOrderID: token,
			PayerID:         payerID,
			Status:          "approved",
			CapturedAt:      time.Now(),
		},
	})
	if !delivered {
		app.logger.Warnw("paypal return with no awaiting session", "payment_session_id", paymentSessionID)
	}

	app.redirectAfterReturn(w, r, "processing")
}

func (app *application) paypalCancelHandler(w http.ResponseWriter, r *http.Request) {
	paymentSessionID := r.URL.Query().Get("payment_session_id")
	if paymentSessionID == "" {
		app.badRequestResponse(w, r, fmt.Errorf("missing payment_session_id"))
		return
	}

	app.sessions.Deliver(paymentSessionID, payments.CheckoutSignal{Status: payments.SignalCancelled})
	app.redirectAfterReturn(w, r, "cancelled")
}
