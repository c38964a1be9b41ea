// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// handler_test.go provides shared test infrastructure for the handler tests.
// Most tests run against the in-memory store; the Postgres-backed ones are
// skipped when PostgreSQL or Valkey are unavailable.
package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"draftledger/internal/blog"
	"draftledger/internal/cache"
	"draftledger/internal/database"
	"draftledger/internal/models"
	"draftledger/internal/policy"
	"draftledger/internal/store"
)

// fakeGenerator implements blog.Generator with canned answers.
type fakeGenerator struct {
	mu       sync.Mutex
	document string
	title    string
	err      error
	flagged  []string
	// rewrite maps a chunk's text to its replacement. Texts prefixed with
	// "reject:" in the map's value produce a rejection.
	rewrite map[string]string
	block   time.Duration
}

func (f *fakeGenerator) GenerateDocument(ctx context.Context, _ *models.Intent) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.document, nil
}

func (f *fakeGenerator) RewriteChunk(ctx context.Context, _ string, req policy.RewriteRequest) (string, error) {
	if f.block > 0 {
		select {
		case <-time.After(f.block):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.err != nil {
		return "", f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out, ok := f.rewrite[req.Text]
	if !ok {
		return req.Text, nil
	}
	if reason, found := strings.CutPrefix(out, "reject:"); found {
		return "", &policy.RejectionError{Reason: reason}
	}
	return out, nil
}

func (f *fakeGenerator) SuggestTitle(context.Context, string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.title, nil
}

func (f *fakeGenerator) Moderate(context.Context, string) ([]string, error) {
	return f.flagged, nil
}

// fakeExporter records exports instead of talking to S3.
type fakeExporter struct {
	name     string
	markdown string
	err      error
}

func (e *fakeExporter) ExportMarkdown(_ context.Context, name, markdown string) (string, string, error) {
	if e.err != nil {
		return "", "", e.err
	}
	e.name, e.markdown = name, markdown
	return "exports/" + name, "https://cdn.example.com/exports/" + name, nil
}

var errProviderDown = errors.New("provider down")

// testRouter mounts the blog handlers on the same paths the server uses.
func testRouter(b *Blog) http.Handler {
	r := chi.NewRouter()
	r.Post("/blog/generate", b.Generate)
	r.Post("/blog/create", b.Create)
	r.Get("/blog/editor/data", b.EditorData)
	r.Post("/blog/set-title", b.SetTitle)
	r.Post("/blog/set-author", b.SetAuthor)
	r.Post("/blog/edit-content", b.EditContent)
	r.Post("/blog/edit", b.ApplyPolicy)
	r.Post("/blog/suggest-title", b.SuggestTitle)
	r.Post("/blog/set-status", b.SetStatus)
	r.Get("/blog/policies", b.ListPolicies)
	r.Get("/blog/posts", b.ListPosts)
	r.Get("/blog/posts/{post_id}/revisions", b.ListRevisions)
	r.Get("/blog/posts/{post_id}/revisions/{revision_id}", b.RevisionContent)
	r.Post("/blog/posts/{post_id}/revisions/{revision_id}/copy", b.CopyFrom)
	r.Post("/blog/posts/{post_id}/export", b.Export)
	r.Post("/document/save", b.SaveDocument)
	return r
}

const testPolicies = `
policies:
  - id: plain
    name: Plain language
    text: Use plain language.
`

type testAPI struct {
	h        http.Handler
	gen      *fakeGenerator
	exporter *fakeExporter
}

func newTestAPI(t *testing.T, repo blog.Repository, cfg blog.Config) *testAPI {
	t.Helper()
	if cfg.Policies == nil {
		lib, err := policy.ParseLibrary([]byte(testPolicies))
		if err != nil {
			t.Fatalf("ParseLibrary: %v", err)
		}
		cfg.Policies = lib
	}
	gen := &fakeGenerator{document: "# Ledgers\n\nAppend only.\n", title: "Ledgers", rewrite: map[string]string{}}
	exp := &fakeExporter{}
	svc := blog.NewService(repo, gen, cfg)
	return &testAPI{h: testRouter(NewBlog(svc, exp)), gen: gen, exporter: exp}
}

func newMemoryAPI(t *testing.T) *testAPI {
	t.Helper()
	return newTestAPI(t, store.NewMemoryStore(), blog.Config{})
}

func (a *testAPI) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	a.h.ServeHTTP(w, r)
	return w
}

// httptestRequest builds a bodyless request, optionally conditional.
func httptestRequest(method, path, ifNoneMatch string) *http.Request {
	r := httptest.NewRequest(method, path, nil)
	if ifNoneMatch != "" {
		r.Header.Set("If-None-Match", ifNoneMatch)
	}
	return r
}

func serve(a *testAPI, r *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	a.h.ServeHTTP(w, r)
	return w
}

// create makes a post through the API and returns its id.
func (a *testAPI) create(t *testing.T, content string) string {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"content": content})
	w := a.do(t, http.MethodPost, "/blog/create", string(body))
	if w.Code != http.StatusCreated {
		t.Fatalf("create: status %d, body %s", w.Code, w.Body.String())
	}
	var res createdResponse
	decodeBody(t, w, &res)
	return res.PostID.String()
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

// wantError asserts the status code and error kind of a failed request.
func wantError(t *testing.T, w *httptest.ResponseRecorder, status int, kind blog.Kind) errorBody {
	t.Helper()
	if w.Code != status {
		t.Fatalf("status = %d, want %d (body %s)", w.Code, status, w.Body.String())
	}
	var body errorBody
	decodeBody(t, w, &body)
	if body.Kind != kind {
		t.Errorf("kind = %q, want %q", body.Kind, kind)
	}
	if body.Error == "" {
		t.Error("error message is empty")
	}
	return body
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// testDB opens the test PostgreSQL and runs migrations.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	host := envOr("POSTGRES_HOST", "localhost")
	port := envOr("POSTGRES_PORT", "5432")
	user := envOr("POSTGRES_USER", "draftledger")
	pass := envOr("POSTGRES_PASSWORD", "changeme")
	name := envOr("POSTGRES_DB", "draftledger")
	dsn := "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + name + "?sslmode=disable"

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Skipf("skipping: cannot open DB: %v", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		t.Skipf("skipping: DB not reachable: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		db.Close()
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// testValkeyClient connects to the test Valkey, skipping if unreachable.
func testValkeyClient(t *testing.T) *redis.Client {
	t.Helper()
	client, err := cache.ConnectValkey(envOr("VALKEY_HOST", "localhost"), envOr("VALKEY_PORT", "6379"), os.Getenv("VALKEY_PASSWORD"))
	if err != nil {
		t.Skipf("skipping: Valkey not reachable: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func cleanPost(t *testing.T, db *sql.DB, id string) {
	t.Helper()
	t.Cleanup(func() {
		if pid, err := uuid.Parse(id); err == nil {
			db.Exec("DELETE FROM posts WHERE id = $1", pid)
		}
	})
}
