package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/shelfsync/internal/common"
	"github.com/dmitrijs2005/shelfsync/internal/server/services"
	"github.com/dmitrijs2005/shelfsync/internal/wire"
)

const maxJSONBody = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func ok() wire.Response { return wire.Response{OK: true} }

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := dec.Decode(v); err != nil {
		return errors.Join(common.ErrorBadRequest, err)
	}
	return nil
}

// failure maps a service error to a status and an error envelope.
func failure(err error) (int, wire.Response) {
	var conflict *services.ConflictError
	switch {
	case errors.As(err, &conflict):
		return http.StatusConflict, wire.Response{Error: wire.CodeConflict}
	case errors.Is(err, common.ErrInvalidCredential),
		errors.Is(err, common.ErrorUnauthorized),
		errors.Is(err, common.ErrInvalidToken),
		errors.Is(err, common.ErrTokenExpired):
		return http.StatusUnauthorized, wire.Response{Error: wire.CodeUnauthorized, Reason: err.Error()}
	case errors.Is(err, common.ErrorNotFound):
		return http.StatusNotFound, wire.Response{Error: wire.CodeNotFound}
	case errors.Is(err, common.ErrorInvalidTable),
		errors.Is(err, common.ErrorBadRequest),
		errors.Is(err, common.ErrorAlreadyExists):
		return http.StatusBadRequest, wire.Response{Error: wire.CodeBadRequest, Reason: err.Error()}
	case errors.Is(err, common.ErrorIntegrity):
		return http.StatusUnprocessableEntity, wire.Response{Error: wire.CodeIntegrity, Reason: err.Error()}
	default:
		return http.StatusInternalServerError, wire.Response{Error: wire.CodeInternal}
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := failure(err)
	if status == http.StatusInternalServerError {
		s.logger.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, resp)
}
