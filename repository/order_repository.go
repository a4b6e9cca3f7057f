package repository

import (
	"context"
	"errors"
	"time"

	"storefront/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type OrderRepository struct {
	collection *mongo.Collection
}

func NewOrderRepository(db *mongo.Database) *OrderRepository {
	return &OrderRepository{collection: db.Collection("orders")}
}

func (r *OrderRepository) Create(ctx context.Context, order *models.Order) error {
	now := time.Now().UTC()
	if order.ID.IsZero() {
		order.ID = primitive.NewObjectID()
	}
	order.CreatedAt = now
	order.UpdatedAt = now
	_, err := r.collection.InsertOne(ctx, order)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	return err
}

func (r *OrderRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Order, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *OrderRepository) FindBySessionID(ctx context.Context, sessionID string) (*models.Order, error) {
	return r.findOne(ctx, bson.M{"payment_session_id": sessionID})
}

// AttachSession records the processor session of an order created before
// its session existed. Re-attaching the same session is a no-op; an order
// already bound to a different session reports ErrNotFound.
func (r *OrderRepository) AttachSession(ctx context.Context, id primitive.ObjectID, sessionID string) error {
	filter := bson.M{
		"_id":                id,
		"payment_session_id": bson.M{"$in": bson.A{"", sessionID}},
	}
	update := bson.M{"$set": bson.M{"payment_session_id": sessionID, "updated_at": time.Now().UTC()}}
	res, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Claim moves a pending order to paid/processing. The boolean reports whether
// this call performed the transition; a false result with a nil error carries
// the order as some earlier caller left it.
func (r *OrderRepository) Claim(ctx context.Context, sessionID string, paidAt time.Time) (*models.Order, bool, error) {
	return r.transition(ctx, sessionID, bson.M{
		"payment_status": models.PaymentStatusPaid,
		"order_status":   models.OrderStatusProcessing,
		"paid_at":        paidAt,
		"updated_at":     paidAt,
	})
}

// Release puts a claimed order that is still processing back to pending so
// the next completion callback can claim it again.
func (r *OrderRepository) Release(ctx context.Context, id primitive.ObjectID) error {
	filter := bson.M{
		"_id":            id,
		"payment_status": models.PaymentStatusPaid,
		"order_status":   models.OrderStatusProcessing,
	}
	update := bson.M{
		"$set": bson.M{
			"payment_status": models.PaymentStatusPending,
			"order_status":   models.OrderStatusPending,
			"updated_at":     time.Now().UTC(),
		},
		"$unset": bson.M{"paid_at": ""},
	}
	res, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Expire marks a still-pending order as expired and cancelled.
func (r *OrderRepository) Expire(ctx context.Context, sessionID string) (*models.Order, bool, error) {
	return r.transition(ctx, sessionID, bson.M{
		"payment_status": models.PaymentStatusExpired,
		"order_status":   models.OrderStatusCancelled,
		"updated_at":     time.Now().UTC(),
	})
}

func (r *OrderRepository) transition(ctx context.Context, sessionID string, set bson.M) (*models.Order, bool, error) {
	filter := bson.M{
		"payment_session_id": sessionID,
		"payment_status":     models.PaymentStatusPending,
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var order models.Order
	err := r.collection.FindOneAndUpdate(ctx, filter, bson.M{"$set": set}, opts).Decode(&order)
	if err == nil {
		return &order, true, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, err
	}

	existing, err := r.FindBySessionID(ctx, sessionID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *OrderRepository) SetStatus(ctx context.Context, id primitive.ObjectID, status models.OrderStatus, notes string) error {
	set := bson.M{"order_status": status, "updated_at": time.Now().UTC()}
	if notes != "" {
		set["notes"] = notes
	}
	res, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *OrderRepository) FindByUser(ctx context.Context, userID primitive.ObjectID, skip, limit int64) ([]*models.Order, error) {
	findOptions := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(skip).
		SetLimit(limit)

	cursor, err := r.collection.Find(ctx, bson.M{"user_id": userID}, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	orders := []*models.Order{}
	if err = cursor.All(ctx, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *OrderRepository) CountByUser(ctx context.Context, userID primitive.ObjectID) (int64, error) {
	return r.collection.CountDocuments(ctx, bson.M{"user_id": userID})
}

func (r *OrderRepository) findOne(ctx context.Context, filter bson.M) (*models.Order, error) {
	var order models.Order
	err := r.collection.FindOne(ctx, filter).Decode(&order)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}
