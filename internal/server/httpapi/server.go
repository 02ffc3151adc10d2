// Package httpapi exposes the shelfsync sync protocol over HTTP with JSON
// bodies. Every endpoint except /login and /ruOK requires a bearer token.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dmitrijs2005/shelfsync/internal/logging"
	"github.com/dmitrijs2005/shelfsync/internal/server/services"
	"github.com/dmitrijs2005/shelfsync/internal/wire"
)

type Options struct {
	MaxUploadBytes  int64
	ShutdownTimeout time.Duration
}

type Server struct {
	address string
	users   *services.UserService
	rows    *services.RowService
	books   *services.BookService
	logger  logging.Logger
	opts    Options
}

func NewServer(addr string, l logging.Logger, us *services.UserService, rs *services.RowService, bs *services.BookService, opts Options) *Server {
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}
	return &Server{
		address: addr,
		users:   us,
		rows:    rs,
		books:   bs,
		logger:  l.With("module", "http_server"),
		opts:    opts,
	}
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST "+wire.PathLogin, s.handleLogin)
	mux.HandleFunc("GET "+wire.PathRUOK+"{token}", s.handleRUOK)

	mux.HandleFunc("POST "+wire.PathGet, s.requireUser(s.handleGet))
	mux.HandleFunc("POST "+wire.PathGetSince, s.requireUser(s.handleGetSince))
	mux.HandleFunc("POST "+wire.PathUpdate, s.requireUser(s.handleUpdate))
	mux.HandleFunc("POST "+wire.PathDelete, s.requireUser(s.handleDelete))

	mux.HandleFunc("POST "+wire.PathResolve, s.requireUser(s.handleResolve))
	mux.HandleFunc("POST "+wire.PathUploadBook, s.requireUser(s.handleUpload))
	mux.HandleFunc("GET "+wire.PathBook+"{id}", s.requireUser(s.handleDownload))
	mux.HandleFunc("GET "+wire.PathCatalogue, s.requireUser(s.handleCatalogue))
	mux.HandleFunc("DELETE "+wire.PathCatalogueDelete+"{id}", s.requireUser(s.handleCatalogueDelete))

	return s.logRequests(mux)
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

func (s *Server) Serve(ctx context.Context, listen net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	done := make(chan error, 1)
	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.ShutdownTimeout)
		defer cancel()
		done <- srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return <-done
}
