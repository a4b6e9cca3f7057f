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

type CartRepository struct {
	collection *mongo.Collection
}

func NewCartRepository(db *mongo.Database) *CartRepository {
	return &CartRepository{collection: db.Collection("carts")}
}

// GetOrCreate returns the user's cart, inserting an empty one when absent.
// Two concurrent upserts may both miss; the loser hits the unique user_id
// index and reads the winner's document instead.
func (r *CartRepository) GetOrCreate(ctx context.Context, userID primitive.ObjectID) (*models.Cart, error) {
	now := time.Now().UTC()
	update := bson.M{"$setOnInsert": bson.M{
		"user_id":    userID,
		"items":      bson.A{},
		"version":    int64(0),
		"created_at": now,
		"updated_at": now,
	}}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var cart models.Cart
	err := r.collection.FindOneAndUpdate(ctx, bson.M{"user_id": userID}, update, opts).Decode(&cart)
	if mongo.IsDuplicateKeyError(err) {
		return r.FindByUserID(ctx, userID)
	}
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

func (r *CartRepository) FindByUserID(ctx context.Context, userID primitive.ObjectID) (*models.Cart, error) {
	return r.findOne(ctx, bson.M{"user_id": userID})
}

func (r *CartRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Cart, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

// Save writes the cart's items if nobody else has written since it was read.
// On success cart.Version is advanced to the stored version.
func (r *CartRepository) Save(ctx context.Context, cart *models.Cart) error {
	now := time.Now().UTC()
	items := cart.Items
	if items == nil {
		items = []models.CartLine{}
	}
	filter := bson.M{"_id": cart.ID, "version": cart.Version}
	update := bson.M{
		"$set": bson.M{"items": items, "updated_at": now},
		"$inc": bson.M{"version": 1},
	}
	res, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrVersionConflict
	}
	cart.Version++
	cart.UpdatedAt = now
	return nil
}

// RemoveProducts drops the lines for productIDs from the user's cart and
// leaves any other lines in place. A missing cart is not an error.
func (r *CartRepository) RemoveProducts(ctx context.Context, userID primitive.ObjectID, productIDs []primitive.ObjectID) error {
	if len(productIDs) == 0 {
		return nil
	}
	update := bson.M{
		"$pull": bson.M{"items": bson.M{"product_id": bson.M{"$in": productIDs}}},
		"$set":  bson.M{"updated_at": time.Now().UTC()},
		"$inc":  bson.M{"version": 1},
	}
	_, err := r.collection.UpdateOne(ctx, bson.M{"user_id": userID}, update)
	return err
}

func (r *CartRepository) findOne(ctx context.Context, filter bson.M) (*models.Cart, error) {
	var cart models.Cart
	err := r.collection.FindOne(ctx, filter).Decode(&cart)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &cart, nil
}
