package db

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Open opens (creating if needed) the sqlite index at path and applies migrations.
func Open(path string) (*sqlx.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// single writer; sqlite serializes anyway and this avoids SQLITE_BUSY
	conn, err := sqlx.Connect("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("could not open database %q: %w", path, err)
	}
	conn.SetMaxOpenConns(1)

	if err := RunMigrations(conn); err != nil {
		conn.Close()
		return nil, err
	}
	log.Info().Str("path", path).Msg("opened cache index")
	return conn, nil
}

// finds all “*.up.sql” migrations (sorted by name) and executes them in order.
// ignores “*.down.sql” files. every migration must be idempotent.
func RunMigrations(conn *sqlx.DB) error {
	files, err := fs.Glob(migrations, "migrations/*.up.sql")
	if err != nil {
		log.Error().Msg("failed to list up migrations")
		return fmt.Errorf("failed to glob migrations: %w", err)
	}

	// sort file names so that they run in deterministic order
	sort.Strings(files)

	for _, file := range files {
		sqlBytes, err := migrations.ReadFile(file)
		if err != nil {
			log.Error().Str("file", file).Msg("failed to read migration file")
			return fmt.Errorf("could not read migration %q: %w", file, err)
		}
		if len(sqlBytes) == 0 {
			continue
		}
		if _, err := conn.Exec(string(sqlBytes)); err != nil {
			return fmt.Errorf("error executing migration %q: %w", file, err)
		}
	}
	return nil
}
