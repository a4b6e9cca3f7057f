package models

import "time"

// OrderEvent is published when an order changes payment state.
type OrderEvent struct {
	Type        string    `json:"type"` // order.paid, order.cancelled, order.expired
	OrderID     string    `json:"order_id"`
	UserID      string    `json:"user_id"`
	SessionID   string    `json:"session_id"`
	TotalAmount float64   `json:"total_amount"`
	Currency    string    `json:"currency"`
	Items       int       `json:"items"`
	Timestamp   time.Time `json:"timestamp"`
}
