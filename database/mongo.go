package database

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

var (
	MongoClient *mongo.Client
	DB          *mongo.Database
)

// ConnectWithConfig connects to MongoDB using the provided URI and database name.
func ConnectWithConfig(mongoURL, dbName string) error {
	timeoutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(timeoutCtx, options.Client().ApplyURI(mongoURL))
	if err != nil {
		return fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(timeoutCtx, nil); err != nil {
		return fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	MongoClient = client
	DB = client.Database(dbName)
	zap.L().Info("Connected to MongoDB", zap.String("database", dbName))
	return nil
}

// Ping reports whether the primary is reachable.
func Ping(ctx context.Context) error {
	if MongoClient == nil {
		return fmt.Errorf("mongo client not initialized")
	}
	return MongoClient.Ping(ctx, nil)
}

// Close disconnects from MongoDB
func Close() error {
	if MongoClient == nil {
		return nil
	}
	disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := MongoClient.Disconnect(disconnectCtx); err != nil {
		return fmt.Errorf("failed to disconnect from MongoDB: %w", err)
	}
	zap.L().Info("Disconnected from MongoDB")
	return nil
}

// EnsureIndexes creates the indexes every collection relies on for
// uniqueness and for the list queries.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	indexes := map[string][]mongo.IndexModel{
		"users": {
			{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		"products": {
			{Keys: bson.D{{Key: "category", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "created_at", Value: -1}}},
		},
		"carts": {
			{Keys: bson.D{{Key: "user_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		"orders": {
			// Orders are inserted before their session exists, so only
			// non-empty session ids are unique.
			{
				Keys: bson.D{{Key: "payment_session_id", Value: 1}},
				Options: options.Index().
					SetName("payment_session_id_unique").
					SetUnique(true).
					SetPartialFilterExpression(bson.M{"payment_session_id": bson.M{"$gt": ""}}),
			},
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
		},
	}

	for coll, models := range indexes {
		if _, err := db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create indexes on %s: %w", coll, err)
		}
	}
	return nil
}
