package client

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/shelfsync/internal/filex"
	"github.com/dmitrijs2005/shelfsync/internal/netx"
	"github.com/dmitrijs2005/shelfsync/internal/wire"
)

// DownloadBook fetches a book into dest. The body is written to a temporary
// file in dest's directory and only renamed over dest once its SHA-256 and
// exact length match the response headers.
func (c *HTTPClient) DownloadBook(ctx context.Context, fileID int64, dest string) (*Download, error) {
	req, err := c.newRequest(ctx, http.MethodGet, wire.PathBook+strconv.FormatInt(fileID, 10), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(c.transfer, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, ErrUnauthorized
	case !netx.IsSuccess(resp.StatusCode):
		return nil, fmt.Errorf("%w: %v", ErrRejected, netx.StatusError(resp))
	}

	want := strings.ToLower(strings.TrimSpace(resp.Header.Get(wire.HeaderChecksum)))
	if want == "" {
		return nil, fmt.Errorf("%w: missing %s", ErrIntegrity, wire.HeaderChecksum)
	}
	if resp.ContentLength < 0 {
		return nil, fmt.Errorf("%w: missing Content-Length", ErrIntegrity)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".part-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	discard := func(e error) (*Download, error) {
		_ = os.Remove(tmp.Name())
		return nil, e
	}

	h := sha256.New()
	n, copyErr := io.Copy(io.MultiWriter(tmp, h), resp.Body)
	closeErr := tmp.Close()
	if copyErr != nil {
		return discard(fmt.Errorf("%w: %v", ErrUnavailable, copyErr))
	}
	if closeErr != nil {
		return discard(fmt.Errorf("close temp file: %w", closeErr))
	}
	if n != resp.ContentLength {
		return discard(fmt.Errorf("%w: got %d bytes, want %d", ErrIntegrity, n, resp.ContentLength))
	}
	got := hex.EncodeToString(h.Sum(nil))
	if got != want {
		return discard(fmt.Errorf("%w: checksum %s, want %s", ErrIntegrity, got, want))
	}

	if err := filex.Replace(tmp.Name(), dest); err != nil {
		return nil, err
	}

	return &Download{
		FileID:   fileID,
		FileName: resp.Header.Get(wire.HeaderFilename),
		SHA256:   got,
		Size:     n,
		Path:     dest,
	}, nil
}
