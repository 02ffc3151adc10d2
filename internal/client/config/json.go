package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/shelfsync/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Pointer fields
// distinguish "absent" from a zero value, so a file may set only some keys.
// Durations accept "3s" style strings or integer nanoseconds.
type JsonConfig struct {
	DataDir       *string `json:"data_dir"`
	DatabaseName  *string `json:"database_name"`
	LibraryDir    *string `json:"library_dir"`
	DeviceLabel   *string `json:"device_label"`
	ClientVersion *string `json:"client_version"`

	APITimeout         *timex.Duration `json:"api_timeout"`
	TransferTimeout    *timex.Duration `json:"transfer_timeout"`
	DebounceDelay      *timex.Duration `json:"debounce_delay"`
	TokenLeeway        *timex.Duration `json:"token_leeway"`
	JobPollInterval    *timex.Duration `json:"job_poll_interval"`
	ConfigPollInterval *timex.Duration `json:"config_poll_interval"`
	ChangePollInterval *timex.Duration `json:"change_poll_interval"`

	PageLimit         *int     `json:"page_limit"`
	RequestsPerSecond *float64 `json:"requests_per_second"`
	RequestBurst      *int     `json:"request_burst"`

	LogFile       *string `json:"log_file"`
	LogMaxSizeMB  *int    `json:"log_max_size_mb"`
	LogMaxBackups *int    `json:"log_max_backups"`
	LogMaxAgeDays *int    `json:"log_max_age_days"`
	LogLevel      *string `json:"log_level"`

	WatchLibrary    *bool `json:"watch_library"`
	DownloadMissing *bool `json:"download_missing"`
}

func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

func setDuration(dst *time.Duration, src *timex.Duration) {
	if src != nil {
		*dst = src.Duration
	}
}

// parseJson overlays cfg with the keys present in the JSON file at path.
func parseJson(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	set(&cfg.DataDir, jc.DataDir)
	set(&cfg.DatabaseName, jc.DatabaseName)
	set(&cfg.LibraryDir, jc.LibraryDir)
	set(&cfg.DeviceLabel, jc.DeviceLabel)
	set(&cfg.ClientVersion, jc.ClientVersion)

	setDuration(&cfg.APITimeout, jc.APITimeout)
	setDuration(&cfg.TransferTimeout, jc.TransferTimeout)
	setDuration(&cfg.DebounceDelay, jc.DebounceDelay)
	setDuration(&cfg.TokenLeeway, jc.TokenLeeway)
	setDuration(&cfg.JobPollInterval, jc.JobPollInterval)
	setDuration(&cfg.ConfigPollInterval, jc.ConfigPollInterval)
	setDuration(&cfg.ChangePollInterval, jc.ChangePollInterval)

	set(&cfg.PageLimit, jc.PageLimit)
	set(&cfg.RequestsPerSecond, jc.RequestsPerSecond)
	set(&cfg.RequestBurst, jc.RequestBurst)

	set(&cfg.LogFile, jc.LogFile)
	set(&cfg.LogMaxSizeMB, jc.LogMaxSizeMB)
	set(&cfg.LogMaxBackups, jc.LogMaxBackups)
	set(&cfg.LogMaxAgeDays, jc.LogMaxAgeDays)
	set(&cfg.LogLevel, jc.LogLevel)

	set(&cfg.WatchLibrary, jc.WatchLibrary)
	set(&cfg.DownloadMissing, jc.DownloadMissing)
	return nil
}
