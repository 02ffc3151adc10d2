package client

import (
	"errors"
	"fmt"

	"github.com/dmitrijs2005/shelfsync/internal/wire"
)

var (
	ErrUnavailable  = errors.New("server unavailable")
	ErrUnauthorized = errors.New("unauthorized")
	ErrConflict     = errors.New("conflict")
	ErrRejected     = errors.New("request rejected")
	ErrMalformed    = errors.New("malformed response")
	ErrIntegrity    = errors.New("download integrity check failed")
)

// APIError is an {ok:false} reply.
type APIError struct {
	Code   string
	Reason string
}

func (e *APIError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("api error: %s", e.Code)
	}
	return fmt.Sprintf("api error: %s: %s", e.Code, e.Reason)
}

func (e *APIError) Unwrap() error {
	if e.Code == wire.CodeUnauthorized {
		return ErrUnauthorized
	}
	return ErrRejected
}

// ConflictError is returned by Update when the server holds a newer row.
type ConflictError struct {
	ServerUpdatedAt int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict: server row updated at %d", e.ServerUpdatedAt)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

func apiError(r wire.Response) error {
	return &APIError{Code: r.Error, Reason: r.Reason}
}
