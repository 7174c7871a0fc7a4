package mongodb

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

// Init connects to the projection store and verifies the connection with a
// ping. The projection database is secondary to Postgres: callers are
// expected to connect Postgres first, then Mongo, before running the
// reconciliation pass.
func Init(ctx context.Context, uri, database string, logger *slog.Logger) (*mongo.Client, *mongo.Database, error) {
	if uri == "" {
		return nil, nil, fmt.Errorf("mongo URI is not configured")
	}

	opts := options.Client().
		ApplyURI(uri).
		SetServerSelectionTimeout(10 * time.Second).
		SetMaxPoolSize(10).
		SetMinPoolSize(5)

	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create mongo client: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	logger.Info("Mongo connection established", slog.String("database", database))
	return client, client.Database(database), nil
}

// Close disconnects the client, logging rather than propagating failures.
func Close(ctx context.Context, client *mongo.Client, logger *slog.Logger) {
	if client == nil {
		return
	}
	if err := client.Disconnect(ctx); err != nil {
		logger.Error("Error disconnecting from mongo", slog.Any("error", err))
	}
}
