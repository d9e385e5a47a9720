package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/johnwmail/pastelite/config"
)

// NewStore creates a storage backend based on the configuration
func NewStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (PasteStore, error) {
	switch cfg.StorageType {
	case "memory":
		logger.Info("Using in-memory storage")
		return NewMemoryStore(), nil

	case "sqlite":
		return NewSQLiteStore(cfg.SQLitePath, logger)

	case "postgres":
		if cfg.MigrateOnStart {
			if err := MigratePostgres(cfg.PostgresDSN, logger); err != nil {
				return nil, err
			}
		}
		return NewPostgresStore(ctx, cfg.PostgresDSN, logger)

	case "mongodb":
		logger.Info("Using MongoDB storage",
			"database", cfg.MongoDatabase,
			"collection", cfg.MongoCollection)
		return NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection, logger)

	case "dynamodb":
		return NewDynamoStore(ctx, cfg.DynamoDBTable, cfg.AWSRegion, cfg.DynamoDBEndpoint, logger)

	default:
		return nil, fmt.Errorf("unsupported storage type: %s (supported: memory, sqlite, postgres, mongodb, dynamodb)", cfg.StorageType)
	}
}
