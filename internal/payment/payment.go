// Package payment wraps the external checkout provider behind a small
// interface so the reconciliation path can be exercised with fakes.
package payment

// CheckoutParams describes one checkout session to create.
type CheckoutParams struct {
	EventName   string
	ItemName    string
	AmountCents int64
	Currency    string
	BuyerEmail  string
}

// CheckoutSession is the provider-side session the buyer is redirected to.
type CheckoutSession struct {
	ID  string
	URL string
}

// Webhook outcomes after normalising provider event types.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeIgnored   = "ignored"
)

// WebhookEvent is a provider notification reduced to what reconciliation
// needs. Events the core does not act on come back as OutcomeIgnored.
type WebhookEvent struct {
	Outcome       string
	SessionID     string
	PaymentID     string
	VerifiedEmail string
}

type Provider interface {
	CreateCheckoutSession(p CheckoutParams) (*CheckoutSession, error)
	// VerifyWebhook authenticates the raw payload against its signature
	// header before anything is parsed; a bad signature means no state
	// mutation is ever attempted.
	VerifyWebhook(payload []byte, signature string) (*WebhookEvent, error)
}
