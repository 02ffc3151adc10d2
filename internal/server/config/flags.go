package config

import (
	"flag"
	"time"

	"github.com/dmitrijs2005/shelfsync/internal/flagx"
)

// parseFlags populates server Config fields from command-line flags.
//
// Supported flags:
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-d string   PostgreSQL DSN, "" for the in-memory store
//	-s string   JWT HMAC secret key
//	-t int      access token validity, minutes
//	-m string   blob backend: s3 or fs
//	-f string   blob directory of the fs backend
//	-u string   S3 root user
//	-p string   S3 root password
//	-b string   S3 bucket name
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-U string   bootstrap user name
//	-P string   bootstrap user password
//	-l int      upload size limit, MiB
//
// Arguments naming other flags (such as -c) are ignored.
func parseFlags(config *Config, args []string) {
	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.ListenAddr, "a", config.ListenAddr, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	tokenValidity := fs.Int("t", int(config.TokenValidity.Minutes()), "access token validity (in minutes)")

	fs.StringVar(&config.BlobBackend, "m", config.BlobBackend, "blob backend (s3, fs or memory)")
	fs.StringVar(&config.BlobDir, "f", config.BlobDir, "blob directory for the fs backend")
	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 root bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 root region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	fs.StringVar(&config.BootstrapUser, "U", config.BootstrapUser, "user created at startup")
	fs.StringVar(&config.BootstrapPassword, "P", config.BootstrapPassword, "password of the bootstrap user")
	maxUpload := fs.Int64("l", config.MaxUploadBytes>>20, "upload size limit (in MiB)")

	if err := flagx.ParseKnown(fs, args); err != nil {
		panic(err)
	}

	config.TokenValidity = time.Duration(*tokenValidity) * time.Minute
	config.MaxUploadBytes = *maxUpload << 20
}
