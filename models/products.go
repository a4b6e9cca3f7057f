package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DefaultCategory is assigned when a product is created without a category.
const DefaultCategory = "General"

// Categories is the fixed set of product categories.
var Categories = []string{
	"Electronics",
	"Clothing",
	"Books",
	"Home & Garden",
	"Sports",
	DefaultCategory,
}

// IsValidCategory reports whether c is one of Categories.
func IsValidCategory(c string) bool {
	for _, known := range Categories {
		if known == c {
			return true
		}
	}
	return false
}

type Product struct {
	ID          primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Name        string             `json:"name" bson:"name"`
	Description string             `json:"description" bson:"description"`
	Price       float64            `json:"price" bson:"price"`
	Category    string             `json:"category" bson:"category"`
	Image       string             `json:"image" bson:"image"`
	Stock       int                `json:"stock" bson:"stock"`
	CreatedAt   time.Time          `json:"createdAt" bson:"created_at"`
	UpdatedAt   time.Time          `json:"updatedAt" bson:"updated_at"`
}

// CreateProductRequest is the body of POST /api/products. Price and Stock are
// pointers so that a missing value can be told apart from zero.
type CreateProductRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Price       *float64 `json:"price"`
	Category    string   `json:"category"`
	Image       string   `json:"image"`
	Stock       *int     `json:"stock"`
}

// UpdateProductRequest carries only the fields present in the request body.
type UpdateProductRequest struct {
	Name        *string  `json:"name"`
	Description *string  `json:"description"`
	Price       *float64 `json:"price"`
	Category    *string  `json:"category"`
	Image       *string  `json:"image"`
	Stock       *int     `json:"stock"`
}

// IsEmpty reports whether the update carries no fields at all.
func (r UpdateProductRequest) IsEmpty() bool {
	return r.Name == nil && r.Description == nil && r.Price == nil &&
		r.Category == nil && r.Image == nil && r.Stock == nil
}

type ProductListParams struct {
	Search   string
	Category string
	Page     int
	Limit    int
}

type ProductListResponse struct {
	Products []*Product `json:"products"`
	Meta     ListMeta   `json:"meta"`
}

type ListMeta struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
}

// NewListMeta computes page counts for a paginated listing.
func NewListMeta(page, limit int, total int64) ListMeta {
	totalPages := 0
	if limit > 0 {
		totalPages = int((total + int64(limit) - 1) / int64(limit))
	}
	return ListMeta{Page: page, Limit: limit, Total: total, TotalPages: totalPages}
}
