package projection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/gopinions/auth-service/internal/api"
)

var _ Repo = (*MongoProjectionRepo)(nil)

// Repo defines projection persistence. Both the synchronizer and the lazy
// create-on-miss path go through Upsert so duplicate projections cannot
// appear.
type Repo interface {
	// GetBySourceID returns api.ErrNotFound when no projection exists for
	// the authoritative id.
	GetBySourceID(ctx context.Context, sourceID string) (*ProjectedUser, error)

	// Upsert writes the projection keyed by source_id, creating it when
	// absent, overwriting the mirrored fields when present.
	Upsert(ctx context.Context, user ProjectedUser) error

	Count(ctx context.Context) (int64, error)

	// Sample returns up to limit projections, newest first. Maintenance
	// use only.
	Sample(ctx context.Context, limit int64) ([]ProjectedUser, error)
}

const userCollection = "users_mongo"

type MongoProjectionRepo struct {
	logger *slog.Logger
	db     *mongo.Database
}

// NewMongoProjectionRepo creates the repository and its indexes. The
// unique source_id index is what makes upsert-by-source-reference safe for
// both writers.
func NewMongoProjectionRepo(ctx context.Context, db *mongo.Database, logger *slog.Logger) (*MongoProjectionRepo, error) {
	collection := db.Collection(userCollection)

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "source_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "username", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "email", Value: 1}},
		},
	}
	if _, err := collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return nil, fmt.Errorf("failed to create projection indexes: %w", err)
	}

	return &MongoProjectionRepo{logger: logger, db: db}, nil
}

func (r *MongoProjectionRepo) GetBySourceID(ctx context.Context, sourceID string) (*ProjectedUser, error) {
	result := r.db.Collection(userCollection).FindOne(ctx, bson.M{"source_id": sourceID})

	var user ProjectedUser
	if err := result.Decode(&user); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, api.ErrNotFound
		}
		return nil, fmt.Errorf("failed to decode projection: %w", err)
	}
	return &user, nil
}

func (r *MongoProjectionRepo) Upsert(ctx context.Context, user ProjectedUser) error {
	now := time.Now()
	_, err := r.db.Collection(userCollection).UpdateOne(ctx,
		bson.M{"source_id": user.SourceID},
		bson.M{
			"$set": bson.M{
				"name":       user.Name,
				"surname":    user.Surname,
				"username":   user.Username,
				"email":      user.Email,
				"is_active":  user.Active,
				"updated_at": now,
			},
			"$setOnInsert": bson.M{
				"source_id":  user.SourceID,
				"created_at": now,
			},
		},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert projection for %s: %w", user.SourceID, err)
	}
	return nil
}

func (r *MongoProjectionRepo) Count(ctx context.Context) (int64, error) {
	n, err := r.db.Collection(userCollection).CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("failed to count projections: %w", err)
	}
	return n, nil
}

func (r *MongoProjectionRepo) Sample(ctx context.Context, limit int64) ([]ProjectedUser, error) {
	findOptions := options.Find().
		SetLimit(limit).
		SetSort(bson.D{{Key: "created_at", Value: -1}})

	cursor, err := r.db.Collection(userCollection).Find(ctx, bson.M{}, findOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to sample projections: %w", err)
	}
	defer cursor.Close(ctx)

	var users []ProjectedUser
	for cursor.Next(ctx) {
		var user ProjectedUser
		if err := cursor.Decode(&user); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	return users, nil
}
