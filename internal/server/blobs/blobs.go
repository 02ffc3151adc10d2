// Package blobs stores uploaded book files by opaque key.
//
// Backends:
//   - S3Store: any S3-compatible bucket (MinIO in development)
//   - FileSystemStore: a directory on local disk
//   - MemoryStore: process memory, for tests
//
// NewFromConfig picks one from the server configuration.
package blobs

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dmitrijs2005/shelfsync/internal/server/config"
	"github.com/google/uuid"
)

// Store is a flat key/value blob store. Get returns common.ErrorNotFound
// for unknown keys; Delete of an unknown key is not an error.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, size int64) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// NewKey returns a fresh storage key for a user's upload.
func NewKey(userID string) string {
	d := time.Now()
	return fmt.Sprintf("users/%s/%d/%d/%d/%v", userID, d.Year(), d.Month(), d.Day(), uuid.New())
}

// NewFromConfig creates the Store selected by cfg.BlobBackend.
func NewFromConfig(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.BlobBackend {
	case config.BlobS3:
		return NewS3Store(ctx, S3Options{
			Bucket:       cfg.S3Bucket,
			Region:       cfg.S3Region,
			BaseEndpoint: cfg.S3BaseEndpoint,
			AccessKey:    cfg.S3RootUser,
			SecretKey:    cfg.S3RootPassword,
		})
	case config.BlobFS:
		if cfg.BlobDir == "" {
			return nil, fmt.Errorf("filesystem blob store requires a blob dir")
		}
		return NewFileSystemStore(cfg.BlobDir)
	case config.BlobMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown blob backend: %s", cfg.BlobBackend)
	}
}
