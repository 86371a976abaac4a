package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"taskhive.org/internal/auth"
	"taskhive.org/internal/obs"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// handleAuthError is the single boundary mapper from domain sentinels to
// status codes. Authentication failures stay generic; the detailed reason is
// logged only. Authorization reasons are policy, so they go to the client.
// Anything unmatched is a store or transport failure and reads as 500.
func handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrTokenMismatch),
		errors.Is(err, auth.ErrAccountNotFound):
		logAuthFailure(r, err)
		writeError(w, r, http.StatusUnauthorized, "authentication failed")
	case errors.Is(err, auth.ErrEmailNotVerified),
		errors.Is(err, auth.ErrAccountDeactivated):
		logAuthFailure(r, err)
		writeError(w, r, http.StatusForbidden, err.Error())
	case errors.Is(err, auth.ErrForbidden),
		errors.Is(err, auth.ErrNotAMember),
		errors.Is(err, auth.ErrInsufficientProjectRole),
		errors.Is(err, auth.ErrAdminCannotModifyTasks),
		errors.Is(err, auth.ErrCannotUpdateTask):
		writeError(w, r, http.StatusForbidden, err.Error())
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	default:
		obs.Log(map[string]any{
			"event":      "store.error",
			"path":       r.URL.Path,
			"error":      err.Error(),
			"request_id": RequestIDFromContext(r.Context()),
		})
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func logAuthFailure(r *http.Request, err error) {
	obs.Log(map[string]any{
		"event":      "auth.denied",
		"path":       r.URL.Path,
		"reason":     err.Error(),
		"request_id": RequestIDFromContext(r.Context()),
	})
}
