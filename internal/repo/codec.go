package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"characterlab/internal/store"
)

// ErrNotFound is returned when a referenced entity is absent from its
// collection.
var ErrNotFound = errors.New("not found")

// readList decodes the collection stored under key. A missing key or a
// document that fails to parse both read as the empty collection so a
// corrupted store never takes the whole app down.
func readList[T any](ctx context.Context, s store.Store, key string) []T {
	raw, err := s.Get(ctx, key)
	if err != nil {
		return nil
	}
	var items []T
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil
	}
	return items
}

func writeList[T any](ctx context.Context, s store.Store, key string, items []T) error {
	if items == nil {
		items = []T{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := s.Set(ctx, key, string(raw)); err != nil {
		return fmt.Errorf("store %s: %w", key, err)
	}
	return nil
}

func readRecord[T any](ctx context.Context, s store.Store, key string) (*T, error) {
	raw, err := s.Get(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load %s: %w", key, err)
	}
	record := new(T)
	if err := json.Unmarshal([]byte(raw), record); err != nil {
		return nil, ErrNotFound
	}
	return record, nil
}

func writeRecord[T any](ctx context.Context, s store.Store, key string, record T) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := s.Set(ctx, key, string(raw)); err != nil {
		return fmt.Errorf("store %s: %w", key, err)
	}
	return nil
}
