package config

import (
	"os"
	"path/filepath"
	"time"
)

// Config holds runtime settings for the shelfsync client.
//
// The sync target (server, user, password, frequency) is not part of it: that
// is the device's ServerConfig, kept in the local store.
type Config struct {
	DataDir       string
	DatabaseName  string
	LibraryDir    string
	DeviceLabel   string
	ClientVersion string

	APITimeout      time.Duration
	TransferTimeout time.Duration
	DebounceDelay   time.Duration
	TokenLeeway     time.Duration
	JobPollInterval time.Duration
	// ConfigPollInterval is how often the daemon re-reads the ServerConfig
	// so that `shelfsync configure` run from another process takes effect.
	ConfigPollInterval time.Duration
	// ChangePollInterval is how often the daemon checks the database for
	// edits committed by other processes.
	ChangePollInterval time.Duration

	PageLimit         int
	RequestsPerSecond float64
	RequestBurst      int

	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	LogLevel      string

	WatchLibrary    bool
	DownloadMissing bool
}

const defaultDirName = ".shelfsync"

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return defaultDirName
	}
	return filepath.Join(home, defaultDirName)
}

func defaultDevice() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "shelfsync"
	}
	return host
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.DataDir = defaultDataDir()
	c.DatabaseName = "library.db"
	c.LibraryDir = ""
	c.DeviceLabel = defaultDevice()
	c.ClientVersion = "shelfsync/1"

	c.APITimeout = 10 * time.Second
	c.TransferTimeout = 30 * time.Minute
	c.DebounceDelay = 1500 * time.Millisecond
	c.TokenLeeway = 2 * time.Minute
	c.JobPollInterval = 30 * time.Second
	c.ConfigPollInterval = 5 * time.Second
	c.ChangePollInterval = 500 * time.Millisecond

	c.PageLimit = 500
	c.RequestsPerSecond = 10
	c.RequestBurst = 5

	c.LogFile = ""
	c.LogMaxSizeMB = 10
	c.LogMaxBackups = 3
	c.LogMaxAgeDays = 28
	c.LogLevel = "info"

	c.WatchLibrary = true
	c.DownloadMissing = false
}

// DatabasePath is the SQLite file inside DataDir.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, c.DatabaseName)
}

// SyncLockPath is the lock file held by whichever process is syncing.
func (c *Config) SyncLockPath() string {
	return filepath.Join(c.DataDir, "sync.lock")
}

// LogPath is LogFile, or shelfsync.log inside DataDir when unset.
func (c *Config) LogPath() string {
	if c.LogFile != "" {
		return c.LogFile
	}
	return filepath.Join(c.DataDir, "shelfsync.log")
}

// Library returns LibraryDir, or "books" inside DataDir when unset.
func (c *Config) Library() string {
	if c.LibraryDir != "" {
		return c.LibraryDir
	}
	return filepath.Join(c.DataDir, "books")
}
