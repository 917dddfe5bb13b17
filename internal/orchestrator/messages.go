package orchestrator

// User-facing messages form a small closed set. Raw provider and network
// error text is logged for operators, never shown to the user.
const (
	MsgNetworkError        = "network error, please check your connection and try again"
	MsgSDKLoadFailed       = "failed to load payment gateway, please refresh and try again"
	MsgPaymentFailed       = "payment failed, please try again"
	MsgSessionExpired      = "your session has expired, please start the payment again"
	MsgVerificationPending = "payment received, verification in progress. Check back shortly"
)
