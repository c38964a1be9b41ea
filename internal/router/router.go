// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package router wires the draftledger HTTP routes and middleware chains.
package router

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"draftledger/internal/handlers"
	"draftledger/internal/metrics"
	"draftledger/internal/middleware"
)

// Pinger reports whether a backing service is reachable. *sql.DB and the
// cache client both satisfy it through small adapters in main.
type Pinger func(ctx context.Context) error

// New creates the router. generationLimiter throttles the routes that call
// the generation service and may be nil. ready is checked by /health and
// may also be nil.
func New(blog *handlers.Blog, generationLimiter *middleware.RateLimiter, ready Pinger) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)
	r.Use(middleware.Metrics)
	r.Use(middleware.SecureHeaders)

	r.Get("/health", healthHandler(ready))
	r.Handle("/metrics", metrics.Handler())

	throttled := func(r chi.Router) {
		if generationLimiter != nil {
			r.Use(generationLimiter.Middleware)
		}
	}

	r.Route("/blog", func(r chi.Router) {
		// Routes that call the generation service.
		r.Group(func(r chi.Router) {
			throttled(r)
			r.Post("/generate", blog.Generate)
			r.Post("/edit", blog.ApplyPolicy)
			r.Post("/suggest-title", blog.SuggestTitle)
		})

		r.Post("/create", blog.Create)
		r.Get("/editor/data", blog.EditorData)
		r.Post("/set-title", blog.SetTitle)
		r.Post("/set-author", blog.SetAuthor)
		r.Post("/edit-content", blog.EditContent)
		r.Post("/set-status", blog.SetStatus)
		r.Get("/policies", blog.ListPolicies)

		r.Route("/posts", func(r chi.Router) {
			r.Get("/", blog.ListPosts)
			r.Route("/{post_id}", func(r chi.Router) {
				r.Post("/export", blog.Export)
				r.Get("/revisions", blog.ListRevisions)
				r.Get("/revisions/{revision_id}", blog.RevisionContent)
				r.Post("/revisions/{revision_id}/copy", blog.CopyFrom)
			})
		})
	})

	r.Post("/document/save", blog.SaveDocument)

	return r
}

// healthHandler returns a JSON health check. When ready is set and fails,
// it answers 503 so load balancers stop routing to the instance.
func healthHandler(ready Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := ready(ctx); err != nil {
				slog.Warn("health check failed", "error", err)
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte(`{"status":"unavailable"}`))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}
}
