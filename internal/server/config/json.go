package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/shelfsync/internal/flagx"
	"github.com/dmitrijs2005/shelfsync/internal/timex"
)

// JsonConfig is the JSON form of Config. Durations accept "1m" style
// strings or integer nanoseconds. Keys left out keep their current value.
type JsonConfig struct {
	ListenAddr        string         `json:"listen_addr"`
	DatabaseDSN       *string        `json:"database_dsn"`
	SecretKey         string         `json:"secret_key"`
	TokenValidity     timex.Duration `json:"token_validity"`
	ShutdownTimeout   timex.Duration `json:"shutdown_timeout"`
	BlobBackend       string         `json:"blob_backend"`
	BlobDir           string         `json:"blob_dir"`
	S3RootUser        string         `json:"s3_root_user"`
	S3RootPassword    string         `json:"s3_root_password"`
	S3Bucket          string         `json:"s3_bucket"`
	S3Region          string         `json:"s3_region"`
	S3BaseEndpoint    string         `json:"s3_base_endpoint"`
	BootstrapUser     string         `json:"bootstrap_user"`
	BootstrapPassword string         `json:"bootstrap_password"`
	MaxUploadBytes    int64          `json:"max_upload_bytes"`
}

func overlay[T comparable](dst *T, v T) {
	var zero T
	if v != zero {
		*dst = v
	}
}

// parseJson loads the file named by -c / -config in args, if any, into
// config. It panics if the file cannot be read or parsed.
//
// database_dsn is a pointer so that an explicit "" can select the in-memory
// store.
func parseJson(config *Config, args []string) {
	jsonConfigFile := flagx.ConfigPath(args)
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	overlay(&config.ListenAddr, c.ListenAddr)
	if c.DatabaseDSN != nil {
		config.DatabaseDSN = *c.DatabaseDSN
	}
	overlay(&config.SecretKey, c.SecretKey)
	overlay(&config.TokenValidity, c.TokenValidity.Duration)
	overlay(&config.ShutdownTimeout, c.ShutdownTimeout.Duration)
	overlay(&config.BlobBackend, c.BlobBackend)
	overlay(&config.BlobDir, c.BlobDir)
	overlay(&config.S3RootUser, c.S3RootUser)
	overlay(&config.S3RootPassword, c.S3RootPassword)
	overlay(&config.S3Bucket, c.S3Bucket)
	overlay(&config.S3Region, c.S3Region)
	overlay(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	overlay(&config.BootstrapUser, c.BootstrapUser)
	overlay(&config.BootstrapPassword, c.BootstrapPassword)
	overlay(&config.MaxUploadBytes, c.MaxUploadBytes)
}
