// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequests counts handled requests by method, route pattern and status.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "draftledger_http_requests_total",
		Help: "HTTP requests by method, route and status code",
	}, []string{"method", "route", "status"})

	// HTTPDuration tracks request latency by method and route pattern.
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "draftledger_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	// Commits counts revisions appended to post ledgers.
	Commits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "draftledger_revision_commits_total",
		Help: "Revisions committed by delta type",
	}, []string{"delta_type"})

	// Conflicts counts refused mutations by reason.
	Conflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "draftledger_conflicts_total",
		Help: "Conflicting mutations by reason",
	}, []string{"reason"})

	// PolicyChunks counts per-chunk policy edit outcomes.
	PolicyChunks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "draftledger_policy_chunks_total",
		Help: "Policy edit chunk outcomes (changed, unchanged, rejected)",
	}, []string{"outcome"})

	// UpstreamDuration tracks generation provider calls by operation and result.
	UpstreamDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "draftledger_upstream_duration_seconds",
		Help:    "Generation provider call duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
	}, []string{"operation", "result"})
)

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
