// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

// captureLogs redirects the default logger for the duration of a test.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestLogger(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantLevel string
	}{
		{name: "success", status: http.StatusOK, wantLevel: "level=INFO"},
		{name: "client error", status: http.StatusNotFound, wantLevel: "level=INFO"},
		{name: "server error", status: http.StatusBadGateway, wantLevel: "level=WARN"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logs := captureLogs(t)
			handler := Logger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))

			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/blog/edit", nil))

			if rr.Code != tt.status {
				t.Errorf("status: got %d, want %d", rr.Code, tt.status)
			}
			out := logs.String()
			if !strings.Contains(out, tt.wantLevel) || !strings.Contains(out, "path=/blog/edit") {
				t.Errorf("log line: %s", out)
			}
		})
	}
}

func TestLoggerRecordsRoutePattern(t *testing.T) {
	logs := captureLogs(t)

	r := chi.NewRouter()
	r.Use(Logger)
	r.Get("/blog/posts/{post_id}/revisions", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("[]"))
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/blog/posts/abc/revisions", nil))

	if !strings.Contains(logs.String(), "route=/blog/posts/{post_id}/revisions") {
		t.Errorf("route pattern missing from log: %s", logs.String())
	}
}

func TestResponseWriter(t *testing.T) {
	t.Run("first WriteHeader wins", func(t *testing.T) {
		rw := wrap(httptest.NewRecorder())
		rw.WriteHeader(http.StatusNotFound)
		rw.WriteHeader(http.StatusInternalServerError)

		if rw.statusCode != http.StatusNotFound || !rw.written {
			t.Errorf("statusCode: got %d, written %v", rw.statusCode, rw.written)
		}
	})

	t.Run("Write defaults to 200", func(t *testing.T) {
		rw := wrap(httptest.NewRecorder())
		n, err := rw.Write([]byte("test"))
		if err != nil || n != 4 {
			t.Fatalf("Write: %d, %v", n, err)
		}
		if rw.statusCode != http.StatusOK || !rw.written {
			t.Errorf("statusCode: got %d", rw.statusCode)
		}
	})

	t.Run("Write keeps explicit status", func(t *testing.T) {
		rw := wrap(httptest.NewRecorder())
		rw.WriteHeader(http.StatusCreated)
		rw.Write([]byte("created"))
		if rw.statusCode != http.StatusCreated {
			t.Errorf("statusCode: got %d, want 201", rw.statusCode)
		}
	})

	t.Run("wrap reuses an existing wrapper", func(t *testing.T) {
		rw := wrap(httptest.NewRecorder())
		if wrap(rw) != rw {
			t.Error("wrapping twice should return the same writer")
		}
	})
}
