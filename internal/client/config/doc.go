// Package config loads runtime configuration for the shelfsync client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected with --config / -c.
//  3. Command-line flags set explicitly on the command line.
//
// # JSON schema
//
// Keys are optional. Durations are strings like "3s" or integer nanoseconds:
//
//	{
//	  "data_dir": "/var/lib/shelfsync",
//	  "library_dir": "/home/reader/Books",
//	  "api_timeout": "10s",
//	  "debounce_delay": "1.5s",
//	  "page_limit": 500,
//	  "log_level": "debug",
//	  "download_missing": true
//	}
//
// The sync target itself is edited with `shelfsync configure` and stored in
// the local database, not here.
package config
