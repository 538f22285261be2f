package device

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOSRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "os-release")
	require.NoError(t, os.WriteFile(path, []byte("# comment\nNAME=\"Debian GNU/Linux\"\nVERSION_ID=\"12\"\nbogus\n"), 0o644))

	rel, err := parseOSRelease(path)
	require.NoError(t, err)
	assert.Equal(t, "Debian GNU/Linux", rel["NAME"])
	assert.Equal(t, "12", rel["VERSION_ID"])
	assert.NotContains(t, rel, "bogus")
}

func TestCollect(t *testing.T) {
	dir := t.TempDir()
	release := filepath.Join(dir, "os-release")
	require.NoError(t, os.WriteFile(release, []byte("NAME=Raspbian\nVERSION_ID=11\n"), 0o644))

	c := NewCollector(dir, zerolog.Nop())
	c.OSRelease = release
	info := c.Collect(context.Background())

	assert.Equal(t, "Raspbian", info.OSName)
	assert.Equal(t, "11", info.OSVersion)
	assert.Equal(t, DefaultDeviceType, info.DeviceType)
	assert.NotEmpty(t, info.Model)
	assert.Nil(t, info.Location)
	assert.LessOrEqual(t, info.FreeStorage, info.TotalStorage)
}

func TestCollectWithoutOSRelease(t *testing.T) {
	c := NewCollector(t.TempDir(), zerolog.Nop())
	c.OSRelease = filepath.Join(t.TempDir(), "missing")
	info := c.Collect(context.Background())
	assert.NotEmpty(t, info.OSName)
	assert.Empty(t, info.OSVersion)
}
