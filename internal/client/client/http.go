package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/shelfsync/internal/common"
	"github.com/dmitrijs2005/shelfsync/internal/netx"
	"github.com/dmitrijs2005/shelfsync/internal/wire"
	"golang.org/x/time/rate"
)

const maxResponseBytes = 32 << 20

// Options configures HTTPClient. Zero values select the defaults.
type Options struct {
	APITimeout        time.Duration
	TransferTimeout   time.Duration
	RequestsPerSecond float64
	RequestBurst      int
	// API and Transfer replace the default transports.
	API      *http.Client
	Transfer *http.Client
}

type HTTPClient struct {
	baseURL  string
	api      *http.Client
	transfer *http.Client
	limiter  *rate.Limiter
}

func NewHTTPClient(baseURL string, opts Options) *HTTPClient {
	if opts.APITimeout <= 0 {
		opts.APITimeout = 10 * time.Second
	}
	if opts.TransferTimeout <= 0 {
		opts.TransferTimeout = 30 * time.Minute
	}
	api := opts.API
	if api == nil {
		api = netx.NewAPIClient(opts.APITimeout)
	}
	transfer := opts.Transfer
	if transfer == nil {
		transfer = netx.NewTransferClient(opts.TransferTimeout)
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	burst := opts.RequestBurst
	if burst < 1 {
		burst = 1
	}

	return &HTTPClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		api:      api,
		transfer: transfer,
		limiter:  rate.NewLimiter(limit, burst),
	}
}

func (c *HTTPClient) BaseURL() string { return c.baseURL }

func (c *HTTPClient) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request %s: %w", path, err)
	}
	if tok := AccessToken(ctx); tok != "" {
		req.Header.Set(common.AuthorizationHeaderName, common.BearerPrefix+tok)
	}
	return req, nil
}

func (c *HTTPClient) do(hc *http.Client, req *http.Request) (*http.Response, error) {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return resp, nil
}

// call sends in as JSON (nil for no body) and decodes the reply into out.
func (c *HTTPClient) call(ctx context.Context, method, path string, in, out any) (wire.Response, error) {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return wire.Response{}, fmt.Errorf("encode %s: %w", path, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return wire.Response{}, err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.do(c.api, req)
	if err != nil {
		return wire.Response{}, err
	}
	defer resp.Body.Close()

	return decode(resp, out)
}

func decode(resp *http.Response, out any) (wire.Response, error) {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return wire.Response{}, fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
	}

	var env wire.Response
	if jerr := json.Unmarshal(raw, &env); jerr != nil {
		switch {
		case resp.StatusCode == http.StatusUnauthorized:
			return env, ErrUnauthorized
		case resp.StatusCode >= http.StatusInternalServerError:
			return env, fmt.Errorf("%w: %s", ErrUnavailable, resp.Status)
		case !netx.IsSuccess(resp.StatusCode):
			return env, fmt.Errorf("%w: %s", ErrRejected, resp.Status)
		}
		return env, fmt.Errorf("%w: %v", ErrMalformed, jerr)
	}
	if resp.StatusCode == http.StatusUnauthorized && env.Error == "" {
		env.OK = false
		env.Error = wire.CodeUnauthorized
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return env, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	}
	return env, nil
}

func (c *HTTPClient) Login(ctx context.Context, in wire.LoginRequest) (*wire.LoginResponse, error) {
	var out wire.LoginResponse
	env, err := c.call(ctx, http.MethodPost, wire.PathLogin, in, &out)
	if err != nil {
		return nil, err
	}
	if !env.OK {
		return nil, apiError(env)
	}
	if out.Token == "" {
		return nil, fmt.Errorf("%w: login without token", ErrMalformed)
	}
	return &out, nil
}

func (c *HTTPClient) Ping(ctx context.Context, token string) error {
	env, err := c.call(ctx, http.MethodGet, wire.PathRUOK+url.PathEscape(token), nil, nil)
	if err != nil {
		return err
	}
	if !env.OK {
		return ErrUnauthorized
	}
	return nil
}

func (c *HTTPClient) Get(ctx context.Context, in wire.GetRequest) ([]wire.Row, error) {
	var out wire.GetResponse
	env, err := c.call(ctx, http.MethodPost, wire.PathGet, in, &out)
	if err != nil {
		return nil, err
	}
	if !env.OK {
		return nil, apiError(env)
	}
	return out.Rows, nil
}

func (c *HTTPClient) GetSince(ctx context.Context, in wire.GetSinceRequest) (*wire.GetSinceResponse, error) {
	var out wire.GetSinceResponse
	env, err := c.call(ctx, http.MethodPost, wire.PathGetSince, in, &out)
	if err != nil {
		return nil, err
	}
	if !env.OK {
		return nil, apiError(env)
	}
	return &out, nil
}

func (c *HTTPClient) Update(ctx context.Context, in wire.UpdateRequest) (int64, error) {
	var out wire.UpdateResponse
	env, err := c.call(ctx, http.MethodPost, wire.PathUpdate, in, &out)
	if err != nil {
		return 0, err
	}
	if !env.OK {
		if env.Error == wire.CodeConflict {
			return 0, &ConflictError{ServerUpdatedAt: out.ServerUpdatedAt}
		}
		return 0, apiError(env)
	}
	if out.UpdatedAt == 0 {
		return 0, fmt.Errorf("%w: update without updatedAt", ErrMalformed)
	}
	return out.UpdatedAt, nil
}

func (c *HTTPClient) Delete(ctx context.Context, in wire.DeleteRequest) (int64, error) {
	var out wire.DeleteResponse
	env, err := c.call(ctx, http.MethodPost, wire.PathDelete, in, &out)
	if err != nil {
		return 0, err
	}
	if !env.OK {
		return 0, apiError(env)
	}
	if out.DeletedAt == 0 {
		return 0, fmt.Errorf("%w: delete without deletedAt", ErrMalformed)
	}
	return out.DeletedAt, nil
}

func (c *HTTPClient) Resolve(ctx context.Context, sha256 string, filesize int64) (int64, bool, error) {
	var out wire.ResolveResponse
	env, err := c.call(ctx, http.MethodPost, wire.PathResolve, wire.ResolveRequest{SHA256: sha256, Filesize: filesize}, &out)
	if err != nil {
		return 0, false, err
	}
	if !env.OK {
		return 0, false, apiError(env)
	}
	if out.Exists && out.FileID == 0 {
		return 0, false, fmt.Errorf("%w: resolve match without fileId", ErrMalformed)
	}
	return out.FileID, out.Exists, nil
}

func (c *HTTPClient) Catalogue(ctx context.Context) ([]wire.CatalogueEntry, error) {
	var out wire.CatalogueResponse
	env, err := c.call(ctx, http.MethodGet, wire.PathCatalogue, nil, &out)
	if err != nil {
		return nil, err
	}
	if !env.OK {
		return nil, apiError(env)
	}
	return out.Rows, nil
}

func (c *HTTPClient) DeleteCatalogue(ctx context.Context, fileID int64) error {
	env, err := c.call(ctx, http.MethodDelete, wire.PathCatalogueDelete+strconv.FormatInt(fileID, 10), nil, nil)
	if err != nil {
		return err
	}
	if !env.OK {
		return apiError(env)
	}
	return nil
}

// UploadBook streams the file as multipart/form-data on the transfer client.
func (c *HTTPClient) UploadBook(ctx context.Context, u Upload) (*wire.UploadResponse, error) {
	f, err := os.Open(u.Path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", u.Path, err)
	}
	defer f.Close()

	pr, pw := io.Pipe()
	defer pr.Close()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeUploadForm(mw, u, f))
	}()

	req, err := c.newRequest(ctx, http.MethodPost, wire.PathUploadBook, pr)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.do(c.transfer, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out wire.UploadResponse
	env, err := decode(resp, &out)
	if err != nil {
		return nil, err
	}
	if !env.OK {
		return nil, apiError(env)
	}
	if out.FileID == 0 {
		return nil, fmt.Errorf("%w: upload without fileId", ErrMalformed)
	}
	return &out, nil
}

func writeUploadForm(mw *multipart.Writer, u Upload, content io.Reader) error {
	fields := [][2]string{
		{wire.FormFileID, "0"},
		{wire.FormSize, strconv.FormatInt(u.Size, 10)},
		{wire.FormSHA256, u.SHA256},
		{wire.FormFileName, u.FileName},
	}
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return err
		}
	}
	part, err := mw.CreateFormFile(wire.FormFile, u.FileName)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, content); err != nil {
		return err
	}
	return mw.Close()
}
