// Package store defines the record store contract the engines persist
// through, plus the in-memory backend and helpers shared by every backend.
package store

import (
	"context"
	"encoding/json"
	"fmt"

	"budget-tracker-bot/internal/logger"
)

// Entry is a key/value pair returned by ScanPrefix.
type Entry struct {
	Key   string
	Value []byte
}

// RecordStore is durable key-value persistence of JSON documents. Set
// replaces the whole value; there are no transactions, the last writer wins.
type RecordStore interface {
	// Get returns the raw value and whether the key exists.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Remove deletes key. Removing a missing key is not an error.
	Remove(ctx context.Context, key string) error

	// ScanPrefix returns every entry whose key starts with prefix, ordered by key.
	ScanPrefix(ctx context.Context, prefix string) ([]Entry, error)
}

// Load decodes the value stored under key into dst. A missing key or a value
// that is not valid JSON for T both report found=false with a nil error;
// callers fall back to their default. Only backend failures are returned.
func Load[T any](ctx context.Context, s RecordStore, key string, dst *T) (bool, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("get %s: %w", key, err)
	}
	if !ok {
		return false, nil
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Str("key", key).Msg("Malformed record treated as absent")
		return false, nil
	}
	*dst = v
	return true, nil
}

// Save encodes v as JSON and stores it under key.
func Save(ctx context.Context, s RecordStore, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	if err := s.Set(ctx, key, raw); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// LoadAll decodes every entry under prefix. Entries that fail to decode are
// skipped with a warning.
func LoadAll[T any](ctx context.Context, s RecordStore, prefix string) ([]T, error) {
	entries, err := s.ScanPrefix(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", prefix, err)
	}
	out := make([]T, 0, len(entries))
	for _, e := range entries {
		var v T
		if err := json.Unmarshal(e.Value, &v); err != nil {
			log := logger.FromContext(ctx)
			log.Warn().Err(err).Str("key", e.Key).Msg("Malformed record skipped")
			continue
		}
		out = append(out, v)
	}
	return out, nil
}
