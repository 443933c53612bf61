package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/wadjakorntonsri/go-link-guard/pkg/core/domain"
	"github.com/wadjakorntonsri/go-link-guard/pkg/core/services"
	"github.com/wadjakorntonsri/go-link-guard/pkg/logging"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// statusTable maps sentinel categories to HTTP status. Order matters: the
// first match wins.
var statusTable = []struct {
	err    error
	status int
}{
	{domain.ErrInvalidInput, http.StatusBadRequest},
	{domain.ErrCredentialsRequired, http.StatusBadRequest},
	{domain.ErrUnauthenticated, http.StatusUnauthorized},
	{domain.ErrDirectAccess, http.StatusForbidden},
	{domain.ErrTokenReused, http.StatusForbidden},
	{domain.ErrForbidden, http.StatusForbidden},
	{domain.ErrMisconfigured, http.StatusForbidden},
	{domain.ErrNotFound, http.StatusNotFound},
	{domain.ErrConflict, http.StatusConflict},
	{domain.ErrDuplicateRequest, http.StatusConflict},
	{domain.ErrSessionGone, http.StatusGone},
	{domain.ErrRateLimited, http.StatusTooManyRequests},
	{domain.ErrUpstream, http.StatusBadGateway},
}

// classify returns the status and public message for err. Private reasons
// never leave the process.
func classify(err error) (int, string) {
	for _, e := range statusTable {
		if errors.Is(err, e.err) {
			return e.status, e.err.Error()
		}
	}
	return http.StatusInternalServerError, "internal server error"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, log logging.Logger, err error) {
	status, msg := classify(err)
	code := services.ErrorCode(err)

	l := logging.FromContext(r.Context(), log)
	if status >= http.StatusInternalServerError {
		l.Error(r.Context(), "request failed", "path", r.URL.Path, "code", code, "error", err)
	} else {
		l.Info(r.Context(), "request rejected", "path", r.URL.Path, "status", status, "code", code, "reason", err.Error())
	}
	writeJSON(w, status, errorResponse{Error: msg, Code: code})
}

// reject writes a bare category error that did not come from a service.
func reject(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, Code: code})
}
