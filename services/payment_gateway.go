package services

import (
	"context"
	"time"
)

// SessionLine is one line item of a hosted checkout session. UnitAmount is in
// minor currency units.
type SessionLine struct {
	Name        string
	Description string
	Image       string
	UnitAmount  int64
	Quantity    int64
}

type SessionRequest struct {
	Lines             []SessionLine
	Currency          string
	SuccessURL        string
	CancelURL         string
	ClientReferenceID string
	Metadata          map[string]string
	ExpiresAt         time.Time
}

type Session struct {
	ID            string
	URL           string
	Status        string
	PaymentStatus string
	Metadata      map[string]string
}

// WebhookEvent is a verified processor event. Session is set for
// checkout.session.* events.
type WebhookEvent struct {
	ID              string
	Type            string
	Session         *Session
	PaymentIntentID string
	FailureMessage  string
}

type BalanceAmount struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type GatewayStatus struct {
	Connected bool            `json:"connected"`
	LiveMode  bool            `json:"livemode"`
	Available []BalanceAmount `json:"available"`
	Pending   []BalanceAmount `json:"pending"`
}

// PaymentGateway is the hosted checkout processor.
type PaymentGateway interface {
	CreateSession(ctx context.Context, req SessionRequest) (*Session, error)
	GetSession(ctx context.Context, id string) (*Session, error)
	ParseWebhook(payload []byte, signature string) (*WebhookEvent, error)
	Status(ctx context.Context) (*GatewayStatus, error)
}
