package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/dgallion1/notetree/internal/doctree"
)

// Wire error codes beyond the doctree kinds.
const (
	codeUnauthorized = string(doctree.KindAuth)
	codeRateLimited  = "RATE_LIMITED"
	codeTooLarge     = "PAYLOAD_TOO_LARGE"
	codeBadRequest   = string(doctree.KindValidation)
	codeInternal     = string(doctree.KindInternal)
)

// ErrorDetails is the body of an error response.
type ErrorDetails struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse is the standard API error envelope.
type ErrorResponse struct {
	Error ErrorDetails `json:"error"`
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind doctree.Kind) int {
	switch kind {
	case doctree.KindValidation:
		return http.StatusBadRequest
	case doctree.KindNotFound:
		return http.StatusNotFound
	case doctree.KindConflict:
		return http.StatusConflict
	case doctree.KindAuth:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func jsonError(w http.ResponseWriter, code, msg string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: ErrorDetails{Code: code, Message: msg}})
}

// writeError renders a store error. Unclassified errors are logged and
// hidden from the client.
func writeError(w http.ResponseWriter, log *slog.Logger, err error) {
	if isTooLarge(err) {
		jsonError(w, codeTooLarge, "request body too large", http.StatusRequestEntityTooLarge)
		return
	}
	kind := doctree.KindOf(err)
	if kind == doctree.KindInternal || kind == doctree.KindTransport {
		log.Error("request failed", "error", err)
		jsonError(w, codeInternal, "internal error", http.StatusInternalServerError)
		return
	}
	msg := err.Error()
	var derr *doctree.Error
	if errors.As(err, &derr) {
		msg = derr.Error()
	}
	jsonError(w, string(kind), msg, StatusFor(kind))
}

func isTooLarge(err error) bool {
	var tooLarge *http.MaxBytesError
	return errors.As(err, &tooLarge)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
