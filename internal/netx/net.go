// Package netx builds the two HTTP transport configurations the client uses:
// a fail-fast one for API calls and a long-lived one for book transfers.
package netx

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

const errorBodyLimit = 512

func newTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          16,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
}

// NewAPIClient returns a client whose whole request, body included, must
// finish within timeout.
func NewAPIClient(timeout time.Duration) *http.Client {
	return &http.Client{Transport: newTransport(), Timeout: timeout}
}

// NewTransferClient is meant for uploads and downloads of unbounded size.
// Only response headers are bounded by the short dial and handshake limits.
func NewTransferClient(timeout time.Duration) *http.Client {
	tr := newTransport()
	tr.ResponseHeaderTimeout = 2 * time.Minute
	return &http.Client{Transport: tr, Timeout: timeout}
}

// StatusError describes a non-2xx response.
func StatusError(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
	return fmt.Errorf("unexpected status %s; body: %s", resp.Status, strings.TrimSpace(string(b)))
}

// IsSuccess reports a 2xx status code.
func IsSuccess(code int) bool {
	return code >= 200 && code < 300
}
