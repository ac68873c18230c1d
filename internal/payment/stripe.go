package payment

import (
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/checkout/session"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/evhall/fotomatch/internal/errs"
)

// StripeProvider implements Provider against Stripe Checkout.
type StripeProvider struct {
	webhookSecret string
	successURL    string
	cancelURL     string
}

func NewStripeProvider(secretKey, webhookSecret, successURL, cancelURL string) *StripeProvider {
	stripe.Key = secretKey
	return &StripeProvider{
		webhookSecret: webhookSecret,
		successURL:    successURL,
		cancelURL:     cancelURL,
	}
}

func (s *StripeProvider) CreateCheckoutSession(p CheckoutParams) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(s.successURL + "?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:  stripe.String(s.cancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(p.Currency),
				UnitAmount: stripe.Int64(p.AmountCents),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(fmt.Sprintf("%s - %s", p.EventName, p.ItemName)),
				},
			},
		}},
	}
	if p.BuyerEmail != "" {
		params.CustomerEmail = stripe.String(p.BuyerEmail)
	}

	sess, err := session.New(params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w: %v", errs.ErrUpstream, err)
	}
	return &CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

func (s *StripeProvider) VerifyWebhook(payload []byte, signature string) (*WebhookEvent, error) {
	event, err := webhook.ConstructEvent(payload, signature, s.webhookSecret)
	if err != nil {
		return nil, fmt.Errorf("webhook signature: %w", errs.ErrUnauthorized)
	}

	switch event.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		cs, err := parseSession(event.Data.Raw)
		if err != nil {
			return nil, err
		}
		we := &WebhookEvent{Outcome: OutcomeSucceeded, SessionID: cs.ID}
		if cs.PaymentIntent != nil {
			we.PaymentID = cs.PaymentIntent.ID
		}
		if cs.CustomerDetails != nil {
			we.VerifiedEmail = cs.CustomerDetails.Email
		}
		// async payment methods complete the session before the money
		// clears; only a paid session reconciles to succeeded
		if cs.PaymentStatus == stripe.CheckoutSessionPaymentStatusUnpaid {
			we.Outcome = OutcomeIgnored
		}
		return we, nil

	case "checkout.session.expired", "checkout.session.async_payment_failed":
		cs, err := parseSession(event.Data.Raw)
		if err != nil {
			return nil, err
		}
		return &WebhookEvent{Outcome: OutcomeFailed, SessionID: cs.ID}, nil

	default:
		return &WebhookEvent{Outcome: OutcomeIgnored}, nil
	}
}

func parseSession(raw json.RawMessage) (*stripe.CheckoutSession, error) {
	cs := &stripe.CheckoutSession{}
	if err := json.Unmarshal(raw, cs); err != nil {
		return nil, fmt.Errorf("parse checkout session: %w", err)
	}
	return cs, nil
}
