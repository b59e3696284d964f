package repositories

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"realtime-chat/internal/models"
)

const UserCollection = "users"

// MongoUserRepo is the document-store presence directory.
type MongoUserRepo struct {
	users *mongo.Collection
}

// NewMongoUserRepo constructs MongoUserRepo.
func NewMongoUserRepo(db *mongo.Database) *MongoUserRepo {
	return &MongoUserRepo{users: db.Collection(UserCollection)}
}

// Get fetches a user by id.
func (r *MongoUserRepo) Get(ctx context.Context, userID string) (models.User, error) {
	var user models.User
	err := r.users.FindOne(ctx, bson.M{"_id": userID}).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

// Bind upserts the user and binds it to connID, returning the connection it
// replaced.
func (r *MongoUserRepo) Bind(ctx context.Context, userID, username, connID string) (string, error) {
	update := bson.M{
		"$set": bson.M{
			"username":      username,
			"connected":     true,
			"connection_id": connID,
		},
		"$setOnInsert": bson.M{"created_at": time.Now().UTC()},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.Before)

	var previous models.User
	err := r.users.FindOneAndUpdate(ctx, bson.M{"_id": userID}, update, opts).Decode(&previous)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if prev, ok := previous.ActiveConnection(); ok && prev != connID {
		return prev, nil
	}
	return "", nil
}

// Unbind disconnects whoever is still bound to connID.
func (r *MongoUserRepo) Unbind(ctx context.Context, connID string, at time.Time) (models.User, bool, error) {
	update := bson.M{
		"$set":   bson.M{"connected": false, "last_seen_at": at},
		"$unset": bson.M{"connection_id": ""},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var user models.User
	err := r.users.FindOneAndUpdate(ctx, bson.M{"connection_id": connID}, update, opts).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.User{}, false, nil
	}
	if err != nil {
		return models.User{}, false, err
	}
	return user, true, nil
}

// SetConnected toggles the advertised availability of a user.
func (r *MongoUserRepo) SetConnected(ctx context.Context, userID string, connected bool) error {
	res, err := r.users.UpdateOne(ctx, bson.M{"_id": userID}, bson.M{"$set": bson.M{"connected": connected}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrUserNotFound
	}
	return nil
}

// List returns every known user ordered by username.
func (r *MongoUserRepo) List(ctx context.Context) ([]models.User, error) {
	cursor, err := r.users.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "username", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var users []models.User
	if err := cursor.All(ctx, &users); err != nil {
		return nil, err
	}
	return users, nil
}
