package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"transit-lookup/internal/bookmarks"
	"transit-lookup/internal/catalog"
	"transit-lookup/internal/logging"
	"transit-lookup/internal/schedule"
)

// maxBodyBytes caps request bodies; bookmark and schedule payloads are tiny.
const maxBodyBytes = 64 << 10

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.LogError(logging.FromContext(r.Context()), "failed to encode response", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, errorResponse{Error: msg})
}

// writeServiceError maps service errors onto HTTP statuses. Anything
// unrecognised is logged and reported as a 500 without details.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, catalog.ErrTripNotFound),
		errors.Is(err, catalog.ErrNoScheduleMeta),
		errors.Is(err, bookmarks.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, catalog.ErrMissingStop),
		errors.Is(err, schedule.ErrInvalidMeta),
		errors.Is(err, bookmarks.ErrInvalidEntry):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, context.Canceled):
		// client went away; nobody is reading the response
		logging.FromContext(r.Context()).Debug("request canceled", slog.String("path", r.URL.Path))
	default:
		logging.LogError(logging.FromContext(r.Context()), "request failed", err, slog.String("path", r.URL.Path))
		writeError(w, r, http.StatusInternalServerError, "internal server error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}
