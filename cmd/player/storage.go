package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"github.com/Nixie-Tech-LLC/medusa-player/internal/config"
	"github.com/Nixie-Tech-LLC/medusa-player/internal/db"
	"github.com/Nixie-Tech-LLC/medusa-player/internal/identity"
	"github.com/Nixie-Tech-LLC/medusa-player/internal/mediacache"
	"github.com/Nixie-Tech-LLC/medusa-player/internal/storage"
)

const redisPrefix = "medusa-player:"

// InitIdentity selects the identity backend. The returned func releases it.
func InitIdentity(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (identity.Store, func(), error) {
	if cfg.IdentityBackend == config.IdentityRedis {
		store := identity.NewRedisStore(cfg.RedisAddress, cfg.RedisUsername, cfg.RedisPassword, redisPrefix)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := store.Ping(pingCtx); err != nil {
			store.Close()
			return nil, nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.RedisAddress, err)
		}
		logger.Info().Str("address", cfg.RedisAddress).Msg("using redis identity store")
		return store, func() { store.Close() }, nil
	}

	logger.Info().Str("path", cfg.IdentityPath()).Msg("using file identity store")
	return identity.NewFileStore(cfg.IdentityPath()), func() {}, nil
}

// InitStorage routes s3:// locations to Spaces when credentials are configured
// and everything else over plain HTTP.
func InitStorage(cfg *config.Config, logger zerolog.Logger) (storage.Storage, error) {
	web := storage.NewHTTPStorage(nil)
	if cfg.S3AccessKey == "" || cfg.S3SecretKey == "" {
		logger.Info().Msg("object storage credentials not set, s3 locations fall back to origin")
		return storage.NewRouter(web, nil), nil
	}

	spaces, err := storage.NewSpacesStorage(cfg.S3Endpoint, cfg.S3Region, cfg.S3AccessKey, cfg.S3SecretKey)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize object storage: %w", err)
	}
	logger.Info().Str("endpoint", cfg.S3Endpoint).Str("region", cfg.S3Region).Msg("using object storage")
	return storage.NewRouter(web, spaces), nil
}

// InitCache opens the sqlite index and the media cache on top of it.
func InitCache(cfg *config.Config, api mediacache.Backend, logger zerolog.Logger) (*mediacache.Cache, *sqlx.DB, error) {
	conn, err := db.Open(cfg.IndexPath())
	if err != nil {
		return nil, nil, err
	}
	remote, err := InitStorage(cfg, logger)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	cache, err := mediacache.New(cfg.CacheDir, api, remote, db.NewStore(conn), logger)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	return cache, conn, nil
}
