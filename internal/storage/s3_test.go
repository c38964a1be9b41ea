// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

type putRecord struct {
	method      string
	path        string
	contentType string
	body        string
}

// fakeS3 accepts PutObject requests and records them.
func fakeS3(t *testing.T, status int) (*httptest.Server, func() []putRecord) {
	t.Helper()
	var mu sync.Mutex
	var puts []putRecord
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		puts = append(puts, putRecord{
			method:      r.Method,
			path:        r.URL.Path,
			contentType: r.Header.Get("Content-Type"),
			body:        string(body),
		})
		mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []putRecord {
		mu.Lock()
		defer mu.Unlock()
		return append([]putRecord(nil), puts...)
	}
}

func testClient(t *testing.T, endpoint, publicURL string) *Client {
	t.Helper()
	c, err := New(Config{
		Endpoint:  endpoint,
		AccessKey: "key",
		SecretKey: "secret",
		Bucket:    "drafts",
		Prefix:    "/exports/",
		PublicURL: publicURL,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c == nil {
		t.Fatal("expected a client")
	}
	return c
}

func TestNewUnconfigured(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"empty", Config{}},
		{"no credentials", Config{Endpoint: "http://s3", Bucket: "b"}},
		{"no bucket", Config{Endpoint: "http://s3", AccessKey: "k", SecretKey: "s"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.cfg)
			if err != nil || c != nil {
				t.Errorf("New = %v, %v; want nil, nil", c, err)
			}
		})
	}
}

func TestKey(t *testing.T) {
	c := testClient(t, "http://s3.local", "")
	if got := c.Key("/hello.md"); got != "exports/hello.md" {
		t.Errorf("Key = %q", got)
	}

	bare, _ := New(Config{Endpoint: "http://s3.local", AccessKey: "k", SecretKey: "s", Bucket: "b"})
	if got := bare.Key("hello.md"); got != "hello.md" {
		t.Errorf("Key without prefix = %q", got)
	}
}

func TestExportMarkdownPublicURL(t *testing.T) {
	srv, puts := fakeS3(t, http.StatusOK)
	c := testClient(t, srv.URL+"/", "https://cdn.example.com/")

	key, link, err := c.ExportMarkdown(context.Background(), "p1/hello-r2.md", "# Hello\n")
	if err != nil {
		t.Fatalf("ExportMarkdown: %v", err)
	}
	if key != "exports/p1/hello-r2.md" {
		t.Errorf("key = %q", key)
	}
	if link != "https://cdn.example.com/exports/p1/hello-r2.md" {
		t.Errorf("link = %q", link)
	}

	got := puts()
	if len(got) != 1 {
		t.Fatalf("requests = %d, want 1", len(got))
	}
	if got[0].method != http.MethodPut {
		t.Errorf("method = %s", got[0].method)
	}
	if got[0].path != "/drafts/exports/p1/hello-r2.md" {
		t.Errorf("path = %s", got[0].path)
	}
	if got[0].contentType != markdownContentType {
		t.Errorf("content type = %q", got[0].contentType)
	}
	if !strings.Contains(got[0].body, "# Hello") {
		t.Errorf("body = %q", got[0].body)
	}
}

func TestExportMarkdownPresigned(t *testing.T) {
	srv, _ := fakeS3(t, http.StatusOK)
	c := testClient(t, srv.URL, "")

	_, link, err := c.ExportMarkdown(context.Background(), "a.md", "text")
	if err != nil {
		t.Fatalf("ExportMarkdown: %v", err)
	}
	if !strings.HasPrefix(link, srv.URL+"/drafts/exports/a.md?") {
		t.Errorf("link = %q", link)
	}
	if !strings.Contains(link, "X-Amz-Signature=") {
		t.Errorf("link is not presigned: %q", link)
	}
}

func TestExportMarkdownUploadError(t *testing.T) {
	srv, _ := fakeS3(t, http.StatusForbidden)
	c := testClient(t, srv.URL, "")

	_, _, err := c.ExportMarkdown(context.Background(), "a.md", "text")
	if err == nil {
		t.Fatal("expected an error")
	}
	if !strings.Contains(err.Error(), "s3 upload drafts/exports/a.md") {
		t.Errorf("error = %v", err)
	}
}

func TestFileURL(t *testing.T) {
	c := testClient(t, "http://s3.local", "")
	if got := c.FileURL("exports/a.md"); got != "http://s3.local/drafts/exports/a.md" {
		t.Errorf("FileURL = %q", got)
	}
	if c.Bucket() != "drafts" {
		t.Errorf("Bucket = %q", c.Bucket())
	}
}
