// Package identity persists the device identifier across restarts.
package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Key is the name the identifier is stored under.
const Key = "deviceId"

var ErrNotFound = errors.New("identity: key not found")

// Store is a small key-value store for device secrets.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Ensure returns the stored identifier, generating and persisting a UUID when absent.
func Ensure(ctx context.Context, store Store) (string, error) {
	id, err := store.Get(ctx, Key)
	if err == nil && id != "" {
		return id, nil
	}
	if err != nil && !errors.Is(err, ErrNotFound) {
		return "", fmt.Errorf("read device identifier: %w", err)
	}

	id = uuid.NewString()
	if err := store.Set(ctx, Key, id); err != nil {
		return "", fmt.Errorf("persist device identifier: %w", err)
	}
	log.Info().Str("deviceId", id).Msg("generated new device identifier")
	return id, nil
}

// Reset forgets the identifier; the next Ensure registers the device as new.
func Reset(ctx context.Context, store Store) error {
	return store.Delete(ctx, Key)
}
