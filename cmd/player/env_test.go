package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEnvironmentFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("PLAYER_API_URL=https://api.example.com\nPLAYER_LISTEN_ADDRESS=0.0.0.0:9000\n"), 0o600))
	t.Setenv("PLAYER_API_URL", "")
	t.Setenv("PLAYER_LISTEN_ADDRESS", "")
	os.Unsetenv("PLAYER_API_URL")
	os.Unsetenv("PLAYER_LISTEN_ADDRESS")

	cfg, err := LoadEnvironment(path)
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com", cfg.APIURL)
	assert.Equal(t, "0.0.0.0:9000", cfg.ListenAddress)
}

func TestLoadEnvironmentMissingFile(t *testing.T) {
	t.Setenv("PLAYER_API_URL", "https://api.example.com")
	cfg, err := LoadEnvironment(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com", cfg.APIURL)
}
