// Package statestore implements the state store port (spec §4.3): an
// abstract KV with TTL and pattern scan, backing cross-node coordination
// when configured, with an in-memory fallback when it is not.
package statestore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/meshcall/controlplane/internal/apperror"
)

// Store is the state store port (component D). Values are stored as raw
// bytes; SetValue/GetValue below provide the typed get<T>/set<T>
// convenience spec §4.3 describes, since Go interfaces cannot carry
// generic methods.
type Store interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Keys(ctx context.Context, pattern string) ([]string, error)
	Clear(ctx context.Context) error
	Close() error
}

// SetValue JSON-encodes value and stores it under key with an optional TTL
// (ttl <= 0 means no expiry).
func SetValue[T any](ctx context.Context, s Store, key string, value T, ttl time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return apperror.Wrap(apperror.StateStoreError, "encode value", err)
	}
	return s.Set(ctx, key, b, ttl)
}

// GetValue fetches and JSON-decodes the value stored under key.
func GetValue[T any](ctx context.Context, s Store, key string) (T, bool, error) {
	var out T
	raw, found, err := s.Get(ctx, key)
	if err != nil || !found {
		return out, found, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, true, apperror.Wrap(apperror.StateStoreError, "decode value", err)
	}
	return out, true, nil
}
