package repository

import (
	"context"
	"errors"
	"time"

	"storefront/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	ErrNotFound          = errors.New("document not found")
	ErrDuplicate         = errors.New("duplicate key")
	ErrVersionConflict   = errors.New("version conflict")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// ProductQuery narrows a product listing. Empty fields do not filter.
type ProductQuery struct {
	Search   string
	Category string
	Skip     int64
	Limit    int64
}

// UserRepo defines the user persistence used by the auth service.
type UserRepo interface {
	Create(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	UpdatePassword(ctx context.Context, id primitive.ObjectID, hash string, at time.Time) error
	UpdateLastLogin(ctx context.Context, id primitive.ObjectID, at time.Time) error
}

// ProductRepo defines the catalog operations. Stock changes are conditional
// updates so concurrent checkouts cannot drive stock below zero.
type ProductRepo interface {
	Find(ctx context.Context, q ProductQuery) ([]*models.Product, error)
	Count(ctx context.Context, q ProductQuery) (int64, error)
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Product, error)
	FindByIDs(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]*models.Product, error)
	Create(ctx context.Context, product *models.Product) error
	Update(ctx context.Context, id primitive.ObjectID, updates map[string]interface{}) (*models.Product, error)
	Delete(ctx context.Context, id primitive.ObjectID) error
	DecrementStock(ctx context.Context, id primitive.ObjectID, quantity int) error
	IncrementStock(ctx context.Context, id primitive.ObjectID, quantity int) error
}

// CartRepo persists carts under optimistic concurrency: Save only succeeds
// when the stored version equals the version that was read.
type CartRepo interface {
	GetOrCreate(ctx context.Context, userID primitive.ObjectID) (*models.Cart, error)
	FindByUserID(ctx context.Context, userID primitive.ObjectID) (*models.Cart, error)
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Cart, error)
	Save(ctx context.Context, cart *models.Cart) error
	RemoveProducts(ctx context.Context, userID primitive.ObjectID, productIDs []primitive.ObjectID) error
}

// OrderRepo persists orders. Claim and Expire are compare-and-set transitions
// out of the pending payment state keyed by payment session id; Release
// undoes a Claim whose finalization could not complete.
type OrderRepo interface {
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Order, error)
	FindBySessionID(ctx context.Context, sessionID string) (*models.Order, error)
	AttachSession(ctx context.Context, id primitive.ObjectID, sessionID string) error
	Claim(ctx context.Context, sessionID string, paidAt time.Time) (*models.Order, bool, error)
	Release(ctx context.Context, id primitive.ObjectID) error
	Expire(ctx context.Context, sessionID string) (*models.Order, bool, error)
	SetStatus(ctx context.Context, id primitive.ObjectID, status models.OrderStatus, notes string) error
	FindByUser(ctx context.Context, userID primitive.ObjectID, skip, limit int64) ([]*models.Order, error)
	CountByUser(ctx context.Context, userID primitive.ObjectID) (int64, error)
}
