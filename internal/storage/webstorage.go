package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"messaging-client/internal/model"
)

var ErrNotInitialized = errors.New("storage: web storage not initialized")

// WebStorage keeps every session item inside a single JSON object stored
// under an organization scoped key.
type WebStorage struct {
	backend Backend

	mu  sync.Mutex
	key string
}

func NewWebStorage(backend Backend) *WebStorage {
	return &WebStorage{backend: backend}
}

// Initialize scopes the storage to orgID and creates an empty blob when none
// exists yet.
func (w *WebStorage) Initialize(ctx context.Context, orgID string) error {
	if orgID == "" {
		return errors.New("storage: organization id is required")
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	w.key = model.WebStorageKey(orgID)
	_, err := w.backend.Load(ctx, w.key)
	if errors.Is(err, ErrNotFound) {
		return w.backend.Save(ctx, w.key, []byte("{}"))
	}
	return err
}

func (w *WebStorage) Key() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.key
}

// GetItem returns the raw value for itemKey. A missing blob or item reports
// ok=false without error.
func (w *WebStorage) GetItem(ctx context.Context, itemKey string) (json.RawMessage, bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.key == "" {
		return nil, false, nil
	}
	items, err := w.load(ctx)
	if err != nil {
		return nil, false, err
	}
	raw, ok := items[itemKey]
	return raw, ok, nil
}

func (w *WebStorage) GetString(ctx context.Context, itemKey string) (string, error) {
	raw, ok, err := w.GetItem(ctx, itemKey)
	if err != nil || !ok {
		return "", err
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("storage: item %s is not a string: %w", itemKey, err)
	}
	return s, nil
}

func (w *WebStorage) SetItem(ctx context.Context, itemKey string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("storage: marshal %s: %w", itemKey, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.key == "" {
		return ErrNotInitialized
	}
	items, err := w.load(ctx)
	if err != nil {
		return err
	}
	items[itemKey] = raw
	return w.save(ctx, items)
}

func (w *WebStorage) RemoveItem(ctx context.Context, itemKey string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.key == "" {
		return nil
	}
	items, err := w.load(ctx)
	if err != nil {
		return err
	}
	if _, ok := items[itemKey]; !ok {
		return nil
	}
	delete(items, itemKey)
	return w.save(ctx, items)
}

// Clear removes the whole blob. It is safe to call repeatedly.
func (w *WebStorage) Clear(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.key == "" {
		return nil
	}
	return w.backend.Delete(ctx, w.key)
}

func (w *WebStorage) load(ctx context.Context) (map[string]json.RawMessage, error) {
	blob, err := w.backend.Load(ctx, w.key)
	if errors.Is(err, ErrNotFound) {
		return make(map[string]json.RawMessage), nil
	}
	if err != nil {
		return nil, err
	}
	items := make(map[string]json.RawMessage)
	if len(blob) == 0 {
		return items, nil
	}
	if err := json.Unmarshal(blob, &items); err != nil {
		return nil, fmt.Errorf("storage: decode %s: %w", w.key, err)
	}
	return items, nil
}

func (w *WebStorage) save(ctx context.Context, items map[string]json.RawMessage) error {
	blob, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("storage: encode %s: %w", w.key, err)
	}
	return w.backend.Save(ctx, w.key, blob)
}
