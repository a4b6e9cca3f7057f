package repository

import (
	"context"
	"errors"
	"regexp"
	"time"

	"storefront/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type ProductRepository struct {
	collection *mongo.Collection
}

func NewProductRepository(db *mongo.Database) *ProductRepository {
	return &ProductRepository{collection: db.Collection("products")}
}

// productFilter builds the Mongo filter for a query. Search input is quoted
// so user text is never interpreted as a pattern.
func productFilter(q ProductQuery) bson.M {
	filter := bson.M{}
	if q.Category != "" {
		filter["category"] = q.Category
	}
	if q.Search != "" {
		pattern := primitive.Regex{Pattern: regexp.QuoteMeta(q.Search), Options: "i"}
		filter["$or"] = bson.A{
			bson.M{"name": pattern},
			bson.M{"description": pattern},
			bson.M{"category": pattern},
		}
	}
	return filter
}

func (r *ProductRepository) Find(ctx context.Context, q ProductQuery) ([]*models.Product, error) {
	findOptions := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if q.Skip > 0 {
		findOptions.SetSkip(q.Skip)
	}
	if q.Limit > 0 {
		findOptions.SetLimit(q.Limit)
	}

	cursor, err := r.collection.Find(ctx, productFilter(q), findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	products := []*models.Product{}
	if err = cursor.All(ctx, &products); err != nil {
		return nil, err
	}
	return products, nil
}

func (r *ProductRepository) Count(ctx context.Context, q ProductQuery) (int64, error) {
	return r.collection.CountDocuments(ctx, productFilter(q))
}

func (r *ProductRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Product, error) {
	var product models.Product
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&product)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// FindByIDs returns the products that still exist, keyed by id. Missing ids
// are simply absent from the map.
func (r *ProductRepository) FindByIDs(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]*models.Product, error) {
	out := make(map[primitive.ObjectID]*models.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	cursor, err := r.collection.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var products []*models.Product
	if err = cursor.All(ctx, &products); err != nil {
		return nil, err
	}
	for _, p := range products {
		out[p.ID] = p
	}
	return out, nil
}

func (r *ProductRepository) Create(ctx context.Context, product *models.Product) error {
	now := time.Now().UTC()
	if product.ID.IsZero() {
		product.ID = primitive.NewObjectID()
	}
	product.CreatedAt = now
	product.UpdatedAt = now
	_, err := r.collection.InsertOne(ctx, product)
	return err
}

// Update applies a partial $set and returns the product after the update.
func (r *ProductRepository) Update(ctx context.Context, id primitive.ObjectID, updates map[string]interface{}) (*models.Product, error) {
	set := bson.M{}
	for k, v := range updates {
		set[k] = v
	}
	set["updated_at"] = time.Now().UTC()

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var product models.Product
	err := r.collection.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set}, opts).Decode(&product)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *ProductRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	res, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// DecrementStock atomically removes quantity units, failing with
// ErrInsufficientStock when fewer remain (or the product is gone).
func (r *ProductRepository) DecrementStock(ctx context.Context, id primitive.ObjectID, quantity int) error {
	filter := bson.M{"_id": id, "stock": bson.M{"$gte": quantity}}
	update := bson.M{
		"$inc": bson.M{"stock": -quantity},
		"$set": bson.M{"updated_at": time.Now().UTC()},
	}
	res, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrInsufficientStock
	}
	return nil
}

// IncrementStock returns units to stock, used to compensate a partially
// committed order.
func (r *ProductRepository) IncrementStock(ctx context.Context, id primitive.ObjectID, quantity int) error {
	update := bson.M{
		"$inc": bson.M{"stock": quantity},
		"$set": bson.M{"updated_at": time.Now().UTC()},
	}
	res, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
