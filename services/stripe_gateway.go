package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"storefront/apperrors"

	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/balance"
	"github.com/stripe/stripe-go/v80/checkout/session"
	"github.com/stripe/stripe-go/v80/webhook"
)

var shippingCountries = []string{"US", "CA", "GB", "AU", "DE", "FR", "IN"}

// StripeGateway implements PaymentGateway with Stripe Checkout.
type StripeGateway struct {
	secretKey  string
	webhookKey string
}

func NewStripeGateway(secretKey, webhookKey string) *StripeGateway {
	stripe.Key = secretKey
	return &StripeGateway{secretKey: secretKey, webhookKey: webhookKey}
}

func (g *StripeGateway) configured() error {
	if g.secretKey == "" {
		return apperrors.Internal("Payment processor not configured", errors.New("STRIPE_SECRET_KEY is empty"))
	}
	return nil
}

// stripeError surfaces processor failures as upstream errors carrying the
// processor's message.
func stripeError(op string, err error) error {
	var se *stripe.Error
	if errors.As(err, &se) {
		msg := se.Msg
		if msg == "" {
			msg = string(se.Code)
		}
		return apperrors.Upstream(fmt.Sprintf("Payment processor error: %s", msg), err)
	}
	return apperrors.Upstream("Payment processor unavailable", fmt.Errorf("%s: %w", op, err))
}

func (g *StripeGateway) CreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	if err := g.configured(); err != nil {
		return nil, err
	}

	params := &stripe.CheckoutSessionParams{
		Mode:                     stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:               stripe.String(req.SuccessURL),
		CancelURL:                stripe.String(req.CancelURL),
		BillingAddressCollection: stripe.String(string(stripe.CheckoutSessionBillingAddressCollectionRequired)),
		ShippingAddressCollection: &stripe.CheckoutSessionShippingAddressCollectionParams{
			AllowedCountries: stripe.StringSlice(shippingCountries),
		},
		ExpiresAt: stripe.Int64(req.ExpiresAt.Unix()),
	}
	if req.ClientReferenceID != "" {
		params.ClientReferenceID = stripe.String(req.ClientReferenceID)
	}
	params.Context = ctx

	for _, line := range req.Lines {
		product := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
			Name: stripe.String(line.Name),
		}
		if line.Description != "" {
			product.Description = stripe.String(line.Description)
		}
		// Stripe only accepts hosted images, not data URIs.
		if strings.HasPrefix(line.Image, "http://") || strings.HasPrefix(line.Image, "https://") {
			product.Images = stripe.StringSlice([]string{line.Image})
		}
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(req.Currency),
				ProductData: product,
				UnitAmount:  stripe.Int64(line.UnitAmount),
			},
			Quantity: stripe.Int64(line.Quantity),
		})
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	s, err := session.New(params)
	if err != nil {
		return nil, stripeError("create checkout session", err)
	}
	return toSession(s), nil
}

func (g *StripeGateway) GetSession(ctx context.Context, id string) (*Session, error) {
	if err := g.configured(); err != nil {
		return nil, err
	}
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	s, err := session.Get(id, params)
	if err != nil {
		var se *stripe.Error
		if errors.As(err, &se) && se.HTTPStatusCode == 404 {
			return nil, apperrors.NotFound("Checkout session not found")
		}
		return nil, stripeError("retrieve checkout session", err)
	}
	return toSession(s), nil
}

func (g *StripeGateway) ParseWebhook(payload []byte, signature string) (*WebhookEvent, error) {
	if g.webhookKey == "" {
		return nil, apperrors.Internal("Webhook secret not configured", errors.New("STRIPE_WEBHOOK_SECRET is empty"))
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookKey,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, apperrors.New(apperrors.KindValidation, "Invalid webhook signature", err)
	}

	out := &WebhookEvent{ID: event.ID, Type: string(event.Type)}
	if event.Data == nil {
		return out, nil
	}
	switch {
	case strings.HasPrefix(out.Type, "checkout.session."):
		var s stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &s); err != nil {
			return nil, apperrors.Validation("Malformed checkout session payload")
		}
		out.Session = toSession(&s)
	case strings.HasPrefix(out.Type, "payment_intent."):
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return nil, apperrors.Validation("Malformed payment intent payload")
		}
		out.PaymentIntentID = pi.ID
		if pi.LastPaymentError != nil {
			out.FailureMessage = pi.LastPaymentError.Msg
		}
	}
	return out, nil
}

// Status verifies the secret key by fetching the account balance.
func (g *StripeGateway) Status(ctx context.Context) (*GatewayStatus, error) {
	if err := g.configured(); err != nil {
		return nil, err
	}
	params := &stripe.BalanceParams{}
	params.Context = ctx

	b, err := balance.Get(params)
	if err != nil {
		return nil, stripeError("fetch balance", err)
	}
	status := &GatewayStatus{Connected: true, LiveMode: b.Livemode}
	for _, a := range b.Available {
		status.Available = append(status.Available, BalanceAmount{Amount: a.Amount, Currency: string(a.Currency)})
	}
	for _, a := range b.Pending {
		status.Pending = append(status.Pending, BalanceAmount{Amount: a.Amount, Currency: string(a.Currency)})
	}
	return status, nil
}

func toSession(s *stripe.CheckoutSession) *Session {
	return &Session{
		ID:            s.ID,
		URL:           s.URL,
		Status:        string(s.Status),
		PaymentStatus: string(s.PaymentStatus),
		Metadata:      s.Metadata,
	}
}
