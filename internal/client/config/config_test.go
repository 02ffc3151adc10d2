package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, data map[string]any) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cfg.json")
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func newFlags(t *testing.T, args ...string) *Flags {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	f := RegisterFlags(fs)
	require.NoError(t, fs.Parse(args))
	return f
}

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, "library.db", c.DatabaseName)
	assert.Equal(t, 10*time.Second, c.APITimeout)
	assert.Equal(t, 30*time.Minute, c.TransferTimeout)
	assert.Equal(t, 1500*time.Millisecond, c.DebounceDelay)
	assert.Equal(t, 2*time.Minute, c.TokenLeeway)
	assert.Equal(t, 500*time.Millisecond, c.ChangePollInterval)
	assert.Equal(t, 500, c.PageLimit)
	assert.True(t, c.WatchLibrary)
	assert.False(t, c.DownloadMissing)
	assert.NotEmpty(t, c.DataDir)
}

func TestConfig_DerivedPaths(t *testing.T) {
	c := Config{DataDir: "/data", DatabaseName: "x.db"}
	assert.Equal(t, filepath.Join("/data", "x.db"), c.DatabasePath())
	assert.Equal(t, filepath.Join("/data", "shelfsync.log"), c.LogPath())
	assert.Equal(t, filepath.Join("/data", "books"), c.Library())
	assert.Equal(t, filepath.Join("/data", "sync.lock"), c.SyncLockPath())

	c.LogFile = "/var/log/s.log"
	c.LibraryDir = "/books"
	assert.Equal(t, "/var/log/s.log", c.LogPath())
	assert.Equal(t, "/books", c.Library())
}

func TestLoad_NoSources(t *testing.T) {
	cfg, err := newFlags(t).Load()
	require.NoError(t, err)

	var want Config
	want.LoadDefaults()
	assert.Equal(t, &want, cfg)
}

func TestLoad_JSONOverridesDefaults(t *testing.T) {
	path := writeTempJSON(t, map[string]any{
		"data_dir":         "/srv/shelf",
		"api_timeout":      "3s",
		"debounce_delay":   int64(time.Second),
		"page_limit":       50,
		"download_missing": true,
		"watch_library":    false,
	})

	cfg, err := newFlags(t, "--config", path).Load()
	require.NoError(t, err)

	assert.Equal(t, "/srv/shelf", cfg.DataDir)
	assert.Equal(t, 3*time.Second, cfg.APITimeout)
	assert.Equal(t, time.Second, cfg.DebounceDelay)
	assert.Equal(t, 50, cfg.PageLimit)
	assert.True(t, cfg.DownloadMissing)
	assert.False(t, cfg.WatchLibrary)
	// untouched keys keep their defaults
	assert.Equal(t, 30*time.Minute, cfg.TransferTimeout)
	assert.Equal(t, "library.db", cfg.DatabaseName)
}

func TestLoad_FlagsOverrideJSON(t *testing.T) {
	path := writeTempJSON(t, map[string]any{
		"data_dir":   "/from/json",
		"page_limit": 50,
		"log_level":  "warn",
	})

	cfg, err := newFlags(t, "-c", path, "--data-dir", "/from/flag", "--debounce", "250ms").Load()
	require.NoError(t, err)

	assert.Equal(t, "/from/flag", cfg.DataDir)
	assert.Equal(t, 250*time.Millisecond, cfg.DebounceDelay)
	assert.Equal(t, 50, cfg.PageLimit, "unset flag must not clobber the file")
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := newFlags(t, "--config", filepath.Join(t.TempDir(), "nope.json")).Load()
		require.Error(t, err)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		bad := filepath.Join(t.TempDir(), "bad.json")
		require.NoError(t, os.WriteFile(bad, []byte(`{ this is not valid json`), 0o600))
		_, err := newFlags(t, "--config", bad).Load()
		require.Error(t, err)
	})

	t.Run("invalid duration", func(t *testing.T) {
		path := writeTempJSON(t, map[string]any{"api_timeout": "soon"})
		_, err := newFlags(t, "--config", path).Load()
		require.Error(t, err)
	})
}
