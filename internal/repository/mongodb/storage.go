// Package mongodb keeps users in a MongoDB collection.
// Each user is one document, the active refresh token is a field of it.
package mongodb

import (
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/nkiryanov/snapgram/internal/repository"
)

type Storage struct {
	db *mongo.Database
}

func NewStorage(db *mongo.Database) repository.Storage {
	return &Storage{db: db}
}

func (s *Storage) User() repository.UserRepo {
	return &UserRepo{Collection: s.db.Collection(usersCollection)}
}
