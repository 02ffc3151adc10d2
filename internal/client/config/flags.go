package config

import (
	"github.com/spf13/pflag"
)

// Flags binds the client settings to a command's persistent flag set. Flag
// values only override the defaults and the JSON file when set explicitly.
type Flags struct {
	fs     *pflag.FlagSet
	path   string
	values Config
}

// RegisterFlags adds every client setting to fs, using the built-in
// defaults for the help text.
func RegisterFlags(fs *pflag.FlagSet) *Flags {
	f := &Flags{fs: fs}
	f.values.LoadDefaults()
	v := &f.values

	fs.StringVarP(&f.path, "config", "c", "", "path to a JSON config file")

	fs.StringVar(&v.DataDir, "data-dir", v.DataDir, "directory holding the database, key and log")
	fs.StringVar(&v.DatabaseName, "db", v.DatabaseName, "database file name inside the data dir")
	fs.StringVar(&v.LibraryDir, "library", v.LibraryDir, "directory for downloaded books (default <data-dir>/books)")
	fs.StringVar(&v.DeviceLabel, "device", v.DeviceLabel, "device label sent on login")

	fs.DurationVar(&v.APITimeout, "api-timeout", v.APITimeout, "timeout of a JSON API call")
	fs.DurationVar(&v.TransferTimeout, "transfer-timeout", v.TransferTimeout, "timeout of a book upload or download")
	fs.DurationVar(&v.DebounceDelay, "debounce", v.DebounceDelay, "quiet period before local edits trigger a sync")
	fs.DurationVar(&v.TokenLeeway, "token-leeway", v.TokenLeeway, "renew the token this long before it expires")
	fs.DurationVar(&v.JobPollInterval, "job-poll", v.JobPollInterval, "how often the job runner polls for due work")
	fs.DurationVar(&v.ConfigPollInterval, "config-poll", v.ConfigPollInterval, "how often the daemon re-reads the server settings")
	fs.DurationVar(&v.ChangePollInterval, "change-poll", v.ChangePollInterval, "how often the daemon looks for edits made by other processes")

	fs.IntVar(&v.PageLimit, "page-limit", v.PageLimit, "rows per getSince page")
	fs.Float64Var(&v.RequestsPerSecond, "rps", v.RequestsPerSecond, "request rate limit (0 disables)")
	fs.IntVar(&v.RequestBurst, "burst", v.RequestBurst, "request burst size")

	fs.StringVar(&v.LogFile, "log-file", v.LogFile, "log file (default <data-dir>/shelfsync.log)")
	fs.IntVar(&v.LogMaxSizeMB, "log-max-size", v.LogMaxSizeMB, "log file size in MB before rotation")
	fs.IntVar(&v.LogMaxBackups, "log-max-backups", v.LogMaxBackups, "rotated log files to keep")
	fs.IntVar(&v.LogMaxAgeDays, "log-max-age", v.LogMaxAgeDays, "days to keep rotated log files")
	fs.StringVar(&v.LogLevel, "log-level", v.LogLevel, "debug, info, warn or error")

	fs.BoolVar(&v.WatchLibrary, "watch", v.WatchLibrary, "tombstone books whose files are removed")
	fs.BoolVar(&v.DownloadMissing, "download-missing", v.DownloadMissing, "download books known only to the server")

	return f
}

// overlay copies the explicitly set flags into cfg.
func (f *Flags) overlay(cfg *Config) {
	v := &f.values
	apply := map[string]func(){
		"data-dir":         func() { cfg.DataDir = v.DataDir },
		"db":               func() { cfg.DatabaseName = v.DatabaseName },
		"library":          func() { cfg.LibraryDir = v.LibraryDir },
		"device":           func() { cfg.DeviceLabel = v.DeviceLabel },
		"api-timeout":      func() { cfg.APITimeout = v.APITimeout },
		"transfer-timeout": func() { cfg.TransferTimeout = v.TransferTimeout },
		"debounce":         func() { cfg.DebounceDelay = v.DebounceDelay },
		"token-leeway":     func() { cfg.TokenLeeway = v.TokenLeeway },
		"job-poll":         func() { cfg.JobPollInterval = v.JobPollInterval },
		"config-poll":      func() { cfg.ConfigPollInterval = v.ConfigPollInterval },
		"change-poll":      func() { cfg.ChangePollInterval = v.ChangePollInterval },
		"page-limit":       func() { cfg.PageLimit = v.PageLimit },
		"rps":              func() { cfg.RequestsPerSecond = v.RequestsPerSecond },
		"burst":            func() { cfg.RequestBurst = v.RequestBurst },
		"log-file":         func() { cfg.LogFile = v.LogFile },
		"log-max-size":     func() { cfg.LogMaxSizeMB = v.LogMaxSizeMB },
		"log-max-backups":  func() { cfg.LogMaxBackups = v.LogMaxBackups },
		"log-max-age":      func() { cfg.LogMaxAgeDays = v.LogMaxAgeDays },
		"log-level":        func() { cfg.LogLevel = v.LogLevel },
		"watch":            func() { cfg.WatchLibrary = v.WatchLibrary },
		"download-missing": func() { cfg.DownloadMissing = v.DownloadMissing },
	}
	f.fs.Visit(func(fl *pflag.Flag) {
		if fn, ok := apply[fl.Name]; ok {
			fn()
		}
	})
}

// Load builds the Config once the flag set has been parsed: defaults, then
// the JSON file named by --config, then explicitly set flags.
func (f *Flags) Load() (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if f.path != "" {
		if err := parseJson(cfg, f.path); err != nil {
			return nil, err
		}
	}
	f.overlay(cfg)
	return cfg, nil
}
