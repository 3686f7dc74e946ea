package storage

import (
	"context"
	"fmt"

	"messaging-client/internal/config"
	"messaging-client/internal/database"
)

// Open builds the backend selected by cfg.Backend.
func Open(ctx context.Context, cfg config.Storage) (Backend, error) {
	switch cfg.Backend {
	case "", config.StorageMemory:
		return NewMemoryBackend(), nil
	case config.StorageRedis:
		rb := NewRedisBackend(RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.TTL,
		})
		if err := rb.Ping(ctx); err != nil {
			rb.Close()
			return nil, fmt.Errorf("connect redis %s: %w", cfg.Redis.Addr, err)
		}
		return rb, nil
	case config.StorageDynamoDB:
		db, err := database.NewDynamoDBClient(ctx, database.Options{
			Region:          cfg.DynamoDB.Region,
			Endpoint:        cfg.DynamoDB.Endpoint,
			AccessKeyID:     cfg.DynamoDB.AccessKeyID,
			SecretAccessKey: cfg.DynamoDB.SecretAccessKey,
			SessionToken:    cfg.DynamoDB.SessionToken,
		})
		if err != nil {
			return nil, fmt.Errorf("init dynamodb client: %w", err)
		}
		return NewDynamoBackend(db, cfg.DynamoDB.Table, cfg.TTL), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
