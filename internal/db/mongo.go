package db

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const mongoConnectTimeout = 10 * time.Second

// Collection holding user documents
const MongoUsersCollection = "users"

// Connect to mongo and check the server is reachable
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, mongoConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("cant connect to mongo. Err: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping failed. Err: %w", err)
	}

	return client, nil
}

// Mongo counterpart of migrations: create indexes the user store relies on
// Creating an existing index is a no-op, so it is safe to run on every start
func EnsureMongoIndexes(ctx context.Context, db *mongo.Database) error {
	users := db.Collection(MongoUsersCollection)

	_, err := users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "username", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			// Sparse: users without active session have no 'refreshToken' field at all
			Keys:    bson.D{{Key: "refreshToken", Value: 1}},
			Options: options.Index().SetUnique(true).SetSparse(true),
		},
	})
	if err != nil {
		return fmt.Errorf("error while creating mongo indexes. Err: %w", err)
	}

	return nil
}
