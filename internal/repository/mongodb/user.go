package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/nkiryanov/snapgram/internal/apperrors"
	"github.com/nkiryanov/snapgram/internal/db"
	"github.com/nkiryanov/snapgram/internal/models"
	"github.com/nkiryanov/snapgram/internal/repository"
)

const usersCollection = db.MongoUsersCollection

type userDocument struct {
	ID           string    `bson:"_id"`
	CreatedAt    time.Time `bson:"createdAt"`
	Username     string    `bson:"username"`
	Email        string    `bson:"email"`
	PasswordHash string    `bson:"password"`
	RefreshToken string    `bson:"refreshToken,omitempty"`
	ProfileImage string    `bson:"profileImage,omitempty"`
}

func (d userDocument) toModel() (models.User, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return models.User{}, fmt.Errorf("malformed user id %q: %w", d.ID, err)
	}

	return models.User{
		ID:           id,
		CreatedAt:    d.CreatedAt,
		Username:     d.Username,
		Email:        d.Email,
		PasswordHash: d.PasswordHash,
		RefreshToken: d.RefreshToken,
		ProfileImage: d.ProfileImage,
	}, nil
}

type UserRepo struct {
	Collection *mongo.Collection
}

func (r *UserRepo) CreateUser(ctx context.Context, params repository.CreateUserParams) (models.User, error) {
	doc := userDocument{
		ID:           uuid.NewString(),
		CreatedAt:    time.Now().UTC().Truncate(time.Millisecond), // mongo keeps milliseconds only
		Username:     params.Username,
		Email:        params.Email,
		PasswordHash: params.PasswordHash,
		ProfileImage: params.ProfileImage,
	}

	_, err := r.Collection.InsertOne(ctx, doc)
	switch {
	case err == nil:
		return doc.toModel()
	case mongo.IsDuplicateKeyError(err):
		return models.User{}, apperrors.ErrUserAlreadyExists
	default:
		return models.User{}, fmt.Errorf("mongo error: %w", err)
	}
}

func (r *UserRepo) GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error) {
	return r.findOne(ctx, bson.M{"_id": userID.String()})
}

func (r *UserRepo) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	return r.findOne(ctx, bson.M{"username": username})
}

func (r *UserRepo) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *UserRepo) UpdateUsername(ctx context.Context, userID uuid.UUID, username string) (models.User, error) {
	var doc userDocument

	err := r.Collection.FindOneAndUpdate(
		ctx,
		bson.M{"_id": userID.String()},
		bson.M{"$set": bson.M{"username": username}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)

	switch {
	case err == nil:
		return doc.toModel()
	case errors.Is(err, mongo.ErrNoDocuments):
		return models.User{}, apperrors.ErrUserNotFound
	case mongo.IsDuplicateKeyError(err):
		return models.User{}, apperrors.ErrUserAlreadyExists
	default:
		return models.User{}, fmt.Errorf("mongo error: %w", err)
	}
}

func (r *UserRepo) SetRefreshToken(ctx context.Context, userID uuid.UUID, token string) error {
	res, err := r.Collection.UpdateOne(ctx, bson.M{"_id": userID.String()}, refreshTokenUpdate(token))
	if err != nil {
		return fmt.Errorf("mongo error: %w", err)
	}
	if res.MatchedCount == 0 {
		return apperrors.ErrUserNotFound
	}

	return nil
}

// Compare-and-swap: the filter matches only while the document still holds the old token
func (r *UserRepo) SwapRefreshToken(ctx context.Context, userID uuid.UUID, old string, new string) error {
	if old == "" {
		return apperrors.ErrRefreshTokenMismatch
	}

	res, err := r.Collection.UpdateOne(
		ctx,
		bson.M{"_id": userID.String(), "refreshToken": old},
		refreshTokenUpdate(new),
	)
	if err != nil {
		return fmt.Errorf("mongo error: %w", err)
	}
	if res.MatchedCount == 0 {
		return apperrors.ErrRefreshTokenMismatch
	}

	return nil
}

func (r *UserRepo) ClearRefreshToken(ctx context.Context, userID uuid.UUID) error {
	return r.SetRefreshToken(ctx, userID, "")
}

func (r *UserRepo) findOne(ctx context.Context, filter bson.M) (models.User, error) {
	var doc userDocument

	err := r.Collection.FindOne(ctx, filter).Decode(&doc)
	switch {
	case err == nil:
		return doc.toModel()
	case errors.Is(err, mongo.ErrNoDocuments):
		return models.User{}, apperrors.ErrUserNotFound
	default:
		return models.User{}, fmt.Errorf("mongo error: %w", err)
	}
}

// Empty token removes the field: the sparse unique index ignores documents without it
func refreshTokenUpdate(token string) bson.M {
	if token == "" {
		return bson.M{"$unset": bson.M{"refreshToken": ""}}
	}
	return bson.M{"$set": bson.M{"refreshToken": token}}
}
