package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/matheus3301/chatsync/internal/inbox"
	"github.com/matheus3301/chatsync/internal/media"
	"github.com/matheus3301/chatsync/internal/provider"
	"github.com/matheus3301/chatsync/internal/session"
	"github.com/matheus3301/chatsync/internal/thread"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, ErrorBody{Error: message})
}

func ok(w http.ResponseWriter, data any)      { writeJSON(w, http.StatusOK, data) }
func created(w http.ResponseWriter, data any) { writeJSON(w, http.StatusCreated, data) }
func noContent(w http.ResponseWriter)         { w.WriteHeader(http.StatusNoContent) }

func badRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, message)
}

func notFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, message)
}

// decode reads a JSON request body into v. An empty body leaves v untouched.
func decode(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	return json.NewDecoder(r.Body).Decode(v)
}

// StatusFor maps a domain error to its HTTP status code.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, thread.ErrSetup), errors.Is(err, thread.ErrAction):
		return http.StatusBadGateway
	case errors.Is(err, session.ErrNotInitialized),
		errors.Is(err, thread.ErrClosed),
		errors.Is(err, thread.ErrNotLive),
		errors.Is(err, provider.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, thread.ErrEmptyMessage),
		errors.Is(err, thread.ErrEmptyName),
		errors.Is(err, inbox.ErrInvalidGroup),
		errors.Is(err, inbox.ErrInvalidUser),
		errors.Is(err, media.ErrNoMediaID):
		return http.StatusBadRequest
	case errors.Is(err, provider.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, provider.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, provider.ErrForbidden):
		return http.StatusForbidden
	default:
		return http.StatusBadGateway
	}
}

func handleError(w http.ResponseWriter, err error) {
	writeError(w, StatusFor(err), err.Error())
}
