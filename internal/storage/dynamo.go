package storage

import (
	"context"
	"errors"
	"time"

	"messaging-client/internal/database"
	"messaging-client/internal/model"
)

type DynamoBackend struct {
	db    *database.DynamoDBClient
	table string
	ttl   time.Duration
	now   func() time.Time
}

func NewDynamoBackend(db *database.DynamoDBClient, table string, ttl time.Duration) *DynamoBackend {
	return &DynamoBackend{db: db, table: table, ttl: ttl, now: time.Now}
}

func (d *DynamoBackend) Load(ctx context.Context, key string) ([]byte, error) {
	var item model.StorageItem
	err := d.db.GetItem(ctx, d.table, database.StringKey("storageKey", key), &item)
	if errors.Is(err, database.ErrItemNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if item.ExpiresAt > 0 && d.now().Unix() >= item.ExpiresAt {
		return nil, ErrNotFound
	}
	return []byte(item.Blob), nil
}

func (d *DynamoBackend) Save(ctx context.Context, key string, blob []byte) error {
	now := d.now().UTC()
	item := model.StorageItem{
		StorageKey: key,
		Blob:       string(blob),
		UpdatedAt:  now.Format(time.RFC3339),
	}
	if d.ttl > 0 {
		item.ExpiresAt = now.Add(d.ttl).Unix()
	}
	return d.db.PutItem(ctx, d.table, item)
}

func (d *DynamoBackend) Delete(ctx context.Context, key string) error {
	return d.db.DeleteItem(ctx, d.table, database.StringKey("storageKey", key))
}
