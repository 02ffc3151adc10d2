package client

import (
	"context"

	"github.com/dmitrijs2005/shelfsync/internal/wire"
)

// Client talks to a shelfsync server. Methods other than Login and Ping
// read the bearer token from ctx (see WithAccessToken).
type Client interface {
	Login(ctx context.Context, req wire.LoginRequest) (*wire.LoginResponse, error)
	Ping(ctx context.Context, token string) error
	Get(ctx context.Context, req wire.GetRequest) ([]wire.Row, error)
	GetSince(ctx context.Context, req wire.GetSinceRequest) (*wire.GetSinceResponse, error)
	// Update returns the server's canonical updatedAt.
	Update(ctx context.Context, req wire.UpdateRequest) (int64, error)
	// Delete returns the server's canonical deletedAt.
	Delete(ctx context.Context, req wire.DeleteRequest) (int64, error)
	Resolve(ctx context.Context, sha256 string, filesize int64) (fileID int64, exists bool, err error)
	UploadBook(ctx context.Context, u Upload) (*wire.UploadResponse, error)
	DownloadBook(ctx context.Context, fileID int64, dest string) (*Download, error)
	Catalogue(ctx context.Context) ([]wire.CatalogueEntry, error)
	DeleteCatalogue(ctx context.Context, fileID int64) error
}

// Upload describes a book file to send.
type Upload struct {
	Path     string
	SHA256   string
	Size     int64
	FileName string
}

// Download describes a verified, stored book file.
type Download struct {
	FileID   int64
	FileName string
	SHA256   string
	Size     int64
	Path     string
}

type tokenKey struct{}

// WithAccessToken returns a context carrying the bearer token.
func WithAccessToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// AccessToken extracts the token stored by WithAccessToken.
func AccessToken(ctx context.Context) string {
	tok, _ := ctx.Value(tokenKey{}).(string)
	return tok
}
