// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"draftledger/internal/blog"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error string    `json:"error"`
	Kind  blog.Kind `json:"kind"`
	Retry bool      `json:"retry,omitempty"`
}

// writeJSON sends a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("encode response failed", "error", err)
	}
}

// badRequest reports a request that failed decoding or validation.
func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg, Kind: blog.KindValidation})
}

// notFound reports an unknown resource, including malformed path IDs.
func notFound(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusNotFound, errorBody{Error: msg, Kind: blog.KindNotFound})
}

// writeError maps a service error onto an HTTP status and error body.
// Anything that is not a *blog.Error is logged and hidden behind a 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var be *blog.Error
	if !errors.As(err, &be) {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal server error", Kind: "internal"})
		return
	}

	status := statusFor(be)
	if status >= 500 {
		slog.Warn("upstream failure", "op", be.Op, "error", err)
	}
	writeJSON(w, status, errorBody{Error: be.Msg, Kind: be.Kind, Retry: be.Retryable()})
}

func statusFor(be *blog.Error) int {
	switch be.Kind {
	case blog.KindValidation:
		return http.StatusBadRequest
	case blog.KindNotFound:
		return http.StatusNotFound
	case blog.KindConflict:
		if errors.Is(be, blog.ErrInvalidTransition) {
			return http.StatusBadRequest
		}
		return http.StatusConflict
	case blog.KindUpstream:
		if errors.Is(be, blog.ErrTimeout) {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
