package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CartLine references a product weakly; the product may disappear at any time.
type CartLine struct {
	ID        primitive.ObjectID `json:"id" bson:"_id"`
	ProductID primitive.ObjectID `json:"productId" bson:"product_id"`
	Quantity  int                `json:"quantity" bson:"quantity"`
	AddedAt   time.Time          `json:"addedAt" bson:"added_at"`
}

// Cart is the single active cart of a user. Version is bumped on every write
// and used as an optimistic concurrency token.
type Cart struct {
	ID        primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	UserID    primitive.ObjectID `json:"userId" bson:"user_id"`
	Items     []CartLine         `json:"items" bson:"items"`
	Version   int64              `json:"version" bson:"version"`
	CreatedAt time.Time          `json:"createdAt" bson:"created_at"`
	UpdatedAt time.Time          `json:"updatedAt" bson:"updated_at"`
}

// FindLine returns the index of the line with the given id, or -1.
func (c *Cart) FindLine(lineID primitive.ObjectID) int {
	for i, line := range c.Items {
		if line.ID == lineID {
			return i
		}
	}
	return -1
}

// FindProductLine returns the index of the line holding productID, or -1.
func (c *Cart) FindProductLine(productID primitive.ObjectID) int {
	for i, line := range c.Items {
		if line.ProductID == productID {
			return i
		}
	}
	return -1
}

// CartLineView is a cart line joined with its live product.
type CartLineView struct {
	ID        primitive.ObjectID `json:"id"`
	ProductID primitive.ObjectID `json:"productId"`
	Quantity  int                `json:"quantity"`
	Product   *Product           `json:"product"`
	Subtotal  float64            `json:"subtotal"`
	AddedAt   time.Time          `json:"addedAt"`
}

type CartView struct {
	ID        primitive.ObjectID `json:"id"`
	UserID    primitive.ObjectID `json:"userId"`
	Items     []CartLineView     `json:"items"`
	Summary   CartSummary        `json:"summary"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

type CartSummary struct {
	ItemCount  int     `json:"itemCount"`
	TotalItems int     `json:"totalItems"`
	TotalPrice float64 `json:"totalPrice"`
}

type AddCartItemRequest struct {
	ProductID string `json:"productId" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required,min=1"`
}

type UpdateCartItemRequest struct {
	Quantity int `json:"quantity" binding:"required,min=1"`
}

const (
	IssueProductMissing    = "product_missing"
	IssueOutOfStock        = "out_of_stock"
	IssueInsufficientStock = "insufficient_stock"
)

type CartLineIssue struct {
	LineID    primitive.ObjectID `json:"lineId"`
	ProductID primitive.ObjectID `json:"productId"`
	Name      string             `json:"name,omitempty"`
	Issue     string             `json:"issue"`
	Requested int                `json:"requested"`
	Available int                `json:"available"`
}

type CartValidation struct {
	Valid  bool            `json:"valid"`
	Issues []CartLineIssue `json:"issues"`
}

type CartStatistics struct {
	ItemCount        int            `json:"itemCount"`
	TotalItems       int            `json:"totalItems"`
	TotalPrice       float64        `json:"totalPrice"`
	AverageUnitPrice float64        `json:"averageUnitPrice"`
	Categories       map[string]int `json:"categories"`
	MostExpensive    *CartLineView  `json:"mostExpensive,omitempty"`
}

type CartBackup struct {
	ExportedAt time.Time `json:"exportedAt"`
	Cart       *CartView `json:"cart"`
}
