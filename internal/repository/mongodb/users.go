package mongodb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/mamadbah2/equiptrack/internal/domain/models"
)

// CreateUser inserts an account. The unique email index rejects duplicates.
func (r *MongoDBRepository) CreateUser(ctx context.Context, user models.User) error {
	doc := userDoc{
		ID:           user.ID,
		Email:        strings.ToLower(user.Email),
		PasswordHash: user.PasswordHash,
		CreatedAt:    user.CreatedAt,
		LastSignInAt: user.LastSignInAt,
	}
	_, err := r.db.Collection(userCollection).InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("user %s: %w", doc.Email, models.ErrEmailTaken)
	}
	if err != nil {
		return writeFailure("insert user", err)
	}
	return nil
}

// GetUserByEmail looks an account up by email.
func (r *MongoDBRepository) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	var doc userDoc
	err := r.db.Collection(userCollection).FindOne(ctx, bson.M{"email": strings.ToLower(email)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.User{}, fmt.Errorf("user %s: %w", email, models.ErrNotFound)
	}
	if err != nil {
		return models.User{}, fmt.Errorf("failed to load user: %w", classify(err))
	}
	return doc.toDomain(), nil
}

// TouchUserSignIn records the last successful sign in.
func (r *MongoDBRepository) TouchUserSignIn(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.Collection(userCollection).UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"lastSignInAt": at}})
	if err != nil {
		return writeFailure("update user", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("user %s: %w", id, models.ErrNotFound)
	}
	return nil
}
