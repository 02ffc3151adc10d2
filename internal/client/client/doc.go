// Package client implements the shelfsync wire protocol on the client side.
//
// # Overview
//
// Client is the transport contract used by the sync engine: login and
// liveness (Login, Ping), row access (Get, GetSince, Update, Delete),
// content identity (Resolve, UploadBook, DownloadBook) and the server
// catalogue. HTTPClient implements it with JSON over HTTP(S). It holds no
// session state: the bearer token travels in the context (WithAccessToken).
//
// Two transports are used. API calls go through a fail-fast client
// (Options.APITimeout, ~10s); uploads and downloads use a long-lived one
// (Options.TransferTimeout). All requests share a token-bucket limiter.
//
// # Error Handling
//
// Failures map to sentinel errors matched with errors.Is:
//
//   - ErrUnavailable: timeouts, refused connections, 5xx without a body.
//   - ErrUnauthorized: HTTP 401 or an "unauthorized" error code.
//   - ErrConflict: a rejected push; the *ConflictError carries ServerUpdatedAt.
//   - ErrRejected: any other {ok:false} reply, as *APIError.
//   - ErrMalformed: a reply that could not be decoded.
//   - ErrIntegrity: a download whose checksum or length did not match.
//
// Downloads are verified in a temporary file next to the destination and
// renamed into place only after both checks pass.
package client
