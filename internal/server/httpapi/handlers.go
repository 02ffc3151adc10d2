package httpapi

import (
	"errors"
	"net/http"

	"github.com/dmitrijs2005/shelfsync/internal/server/services"
	"github.com/dmitrijs2005/shelfsync/internal/wire"
)

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in wire.LoginRequest
	if err := decodeJSON(w, r, &in); err != nil {
		s.fail(w, r, err)
		return
	}

	session, err := s.users.Login(r.Context(), in.Username, in.Password, in.Device)
	if err != nil {
		s.logger.Info(r.Context(), "login rejected", "user", in.Username, "device", in.Device, "error", err)
		s.fail(w, r, err)
		return
	}

	s.logger.Info(r.Context(), "login", "user", in.Username, "device", in.Device, "version", in.Version)
	writeJSON(w, http.StatusOK, wire.LoginResponse{
		Response:  ok(),
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt.UnixMilli(),
	})
}

// handleRUOK reports whether the token in the path is still valid. It always
// answers 200 so clients can tell a bad token from an unreachable server.
func (s *Server) handleRUOK(w http.ResponseWriter, r *http.Request) {
	if _, err := s.users.Authenticate(r.PathValue("token")); err != nil {
		writeJSON(w, http.StatusOK, wire.Response{Error: wire.CodeUnauthorized})
		return
	}
	writeJSON(w, http.StatusOK, ok())
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	var in wire.GetRequest
	if err := decodeJSON(w, r, &in); err != nil {
		s.fail(w, r, err)
		return
	}

	rows, err := s.rows.Get(r.Context(), userID(r.Context()), in.Table, in.FileID, in.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wire.GetResponse{Response: ok(), Rows: rows})
}

func (s *Server) handleGetSince(w http.ResponseWriter, r *http.Request) {
	var in wire.GetSinceRequest
	if err := decodeJSON(w, r, &in); err != nil {
		s.fail(w, r, err)
		return
	}

	next, rows, err := s.rows.GetSince(r.Context(), userID(r.Context()), in.Table, in.Since, in.Limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wire.GetSinceResponse{Response: ok(), NextSince: next, Rows: rows})
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var in wire.UpdateRequest
	if err := decodeJSON(w, r, &in); err != nil {
		s.fail(w, r, err)
		return
	}

	updatedAt, err := s.rows.Update(r.Context(), userID(r.Context()), in.Table, in.Force, in.Row)
	if err != nil {
		var conflict *services.ConflictError
		if errors.As(err, &conflict) {
			writeJSON(w, http.StatusConflict, wire.UpdateResponse{
				Response:        wire.Response{Error: wire.CodeConflict},
				ServerUpdatedAt: conflict.ServerUpdatedAt,
			})
			return
		}
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wire.UpdateResponse{Response: ok(), UpdatedAt: updatedAt})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	var in wire.DeleteRequest
	if err := decodeJSON(w, r, &in); err != nil {
		s.fail(w, r, err)
		return
	}

	deletedAt, err := s.rows.Delete(r.Context(), userID(r.Context()), in.Table, in.FileID, in.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wire.DeleteResponse{Response: ok(), DeletedAt: deletedAt})
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var in wire.ResolveRequest
	if err := decodeJSON(w, r, &in); err != nil {
		s.fail(w, r, err)
		return
	}

	fileID, exists, err := s.books.Resolve(r.Context(), userID(r.Context()), in.SHA256, in.Filesize)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wire.ResolveResponse{Response: ok(), Exists: exists, FileID: fileID})
}
