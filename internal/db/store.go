// exposes a Store interface that the media cache uses to index downloaded files
package db

import (
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/medusa-player/internal/model"
)

type Store interface {
	UpsertCacheEntry(entry model.CacheEntry) error
	GetCacheEntry(mediaID int) (*model.CacheEntry, error)
	ListCacheEntries() ([]model.CacheEntry, error)
	DeleteCacheEntry(mediaID int) error
	DeleteAllCacheEntries() (int64, error)
}

type sqliteStore struct {
	db *sqlx.DB
}

// compile-time check that sqliteStore implements Store
var _ Store = (*sqliteStore)(nil)

func NewStore(db *sqlx.DB) Store {
	return &sqliteStore{db: db}
}

func (s *sqliteStore) UpsertCacheEntry(entry model.CacheEntry) error {
	_, err := s.db.NamedExec(`
		INSERT INTO cache_entries (media_id, path, size, source, created_at)
		VALUES (:media_id, :path, :size, :source, :created_at)
		ON CONFLICT(media_id) DO UPDATE SET
		path = excluded.path,
		size = excluded.size,
		source = excluded.source,
		created_at = excluded.created_at
		`, entry)
	if err != nil {
		log.Error().Err(err).Int("media_id", entry.MediaID).Msg("failed to upsert cache entry")
	}
	return err
}

// GetCacheEntry returns nil, nil when the media id was never indexed.
func (s *sqliteStore) GetCacheEntry(mediaID int) (*model.CacheEntry, error) {
	var e model.CacheEntry
	err := s.db.Get(&e, `
		SELECT media_id, path, size, source, created_at
		FROM cache_entries
		WHERE media_id = $1
		`, mediaID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		log.Error().Err(err).Int("media_id", mediaID).Msg("failed to get cache entry")
		return nil, err
	}
	return &e, nil
}

func (s *sqliteStore) ListCacheEntries() ([]model.CacheEntry, error) {
	var out []model.CacheEntry
	err := s.db.Select(&out, `
		SELECT media_id, path, size, source, created_at
		FROM cache_entries
		ORDER BY media_id
		`)
	if err != nil {
		log.Error().Err(err).Msg("failed to list cache entries")
	}
	return out, err
}

func (s *sqliteStore) DeleteCacheEntry(mediaID int) error {
	_, err := s.db.Exec(`DELETE FROM cache_entries WHERE media_id = $1`, mediaID)
	if err != nil {
		log.Error().Err(err).Int("media_id", mediaID).Msg("failed to delete cache entry")
	}
	return err
}

func (s *sqliteStore) DeleteAllCacheEntries() (int64, error) {
	res, err := s.db.Exec(`DELETE FROM cache_entries`)
	if err != nil {
		log.Error().Err(err).Msg("failed to purge cache entries")
		return 0, err
	}
	return res.RowsAffected()
}
