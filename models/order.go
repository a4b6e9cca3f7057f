package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type OrderStatus string
type PaymentStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusCancelled  OrderStatus = "cancelled"

	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusFailed  PaymentStatus = "failed"
	PaymentStatusExpired PaymentStatus = "expired"
)

// OrderItem is a snapshot of a product taken when the checkout session was
// created; later product edits do not change it.
type OrderItem struct {
	ProductID primitive.ObjectID `json:"productId" bson:"product_id"`
	Name      string             `json:"name" bson:"name"`
	Price     float64            `json:"price" bson:"price"`
	Quantity  int                `json:"quantity" bson:"quantity"`
	Image     string             `json:"image,omitempty" bson:"image,omitempty"`
}

type Order struct {
	ID               primitive.ObjectID  `json:"id" bson:"_id,omitempty"`
	UserID           primitive.ObjectID  `json:"userId" bson:"user_id"`
	CartID           *primitive.ObjectID `json:"cartId,omitempty" bson:"cart_id,omitempty"`
	Items            []OrderItem         `json:"items" bson:"items"`
	TotalAmount      float64             `json:"totalAmount" bson:"total_amount"`
	Currency         string              `json:"currency" bson:"currency"`
	OrderStatus      OrderStatus         `json:"orderStatus" bson:"order_status"`
	PaymentStatus    PaymentStatus       `json:"paymentStatus" bson:"payment_status"`
	PaymentSessionID string              `json:"paymentSessionId" bson:"payment_session_id"`
	Advisories       []string            `json:"advisories,omitempty" bson:"advisories,omitempty"`
	Notes            string              `json:"notes,omitempty" bson:"notes,omitempty"`
	CreatedAt        time.Time           `json:"createdAt" bson:"created_at"`
	UpdatedAt        time.Time           `json:"updatedAt" bson:"updated_at"`
	PaidAt           *time.Time          `json:"paidAt,omitempty" bson:"paid_at,omitempty"`
}

type CheckoutRequest struct {
	CartID string `json:"cartId"`
}

type BuyNowRequest struct {
	ProductID string `json:"productId" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required,min=1"`
}

type CheckoutResponse struct {
	SessionID  string   `json:"sessionId"`
	URL        string   `json:"url"`
	OrderID    string   `json:"orderId"`
	Advisories []string `json:"advisories,omitempty"`
}

type PaymentSuccessRequest struct {
	SessionID string `json:"sessionId" form:"session_id"`
}

type OrderHistoryResponse struct {
	Orders []*Order `json:"orders"`
	Meta   ListMeta `json:"meta"`
}
