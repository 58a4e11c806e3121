package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/starford/mediakeep/internal/apperr"
	"github.com/starford/mediakeep/internal/importer"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error" validate:"required"`
	Kind  string `json:"kind,omitempty" example:"disallowed-host"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// importStatus maps an import failure to an HTTP status.
func importStatus(k importer.ErrorKind) int {
	switch k {
	case importer.KindFetchFailed:
		return http.StatusBadGateway
	case importer.KindUnsupportedType, importer.KindCorrupt, importer.KindDimensionsTooLarge,
		importer.KindPayloadTooLarge, importer.KindEmpty, importer.KindSVGTooLarge:
		return http.StatusUnprocessableEntity
	case importer.KindStorage:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

// writeError translates a service error into a JSON error response.
func writeError(w http.ResponseWriter, op string, err error) {
	var ierr *importer.Error
	switch {
	case errors.As(err, &ierr):
		status := importStatus(ierr.Kind)
		if status == http.StatusInternalServerError {
			slog.Error(op+" failed", slog.String("error", err.Error()))
		}
		writeJSON(w, status, errResponse{Error: ierr.Error(), Kind: ierr.Kind.String()})
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, apperr.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	case errors.Is(err, apperr.ErrAlreadyExists), errors.Is(err, apperr.ErrConflict):
		writeJSON(w, http.StatusConflict, errorBody(err.Error()))
	default:
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

// decodeJSON reads a size-limited JSON body into v and validates it when v
// implements Validate.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	if vv, ok := v.(interface{ Validate() error }); ok {
		if err := vv.Validate(); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
			return false
		}
	}
	return true
}
