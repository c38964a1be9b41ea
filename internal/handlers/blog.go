// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package handlers contains the JSON HTTP handlers for the draftledger API.
// Each handler decodes and validates its request, calls blog.Service and
// translates the result or error in one place.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"draftledger/internal/blog"
	"draftledger/internal/models"
	"draftledger/internal/policy"
	"draftledger/internal/slug"
)

// Exporter uploads a markdown snapshot and returns its key and a link.
// *storage.Client implements it.
type Exporter interface {
	ExportMarkdown(ctx context.Context, name, markdown string) (key, link string, err error)
}

// Blog groups the post, revision and policy endpoints.
type Blog struct {
	svc      *blog.Service
	exporter Exporter
}

// NewBlog creates the blog handler group. exporter may be nil, in which
// case the export endpoint answers 503.
func NewBlog(svc *blog.Service, exporter Exporter) *Blog {
	return &Blog{svc: svc, exporter: exporter}
}

// --- Request and response shapes ---

type generateRequest struct {
	Intent json.RawMessage `json:"intent"`
	Author string          `json:"author" validate:"max=200"`
}

type createRequest struct {
	Content string          `json:"content" validate:"required"`
	Intent  json.RawMessage `json:"intent"`
	Author  string          `json:"author" validate:"max=200"`
}

type createdResponse struct {
	PostID         uuid.UUID `json:"post_id"`
	Content        string    `json:"content"`
	RevisionID     int       `json:"revision_id"`
	SuggestedTitle string    `json:"suggested_title,omitempty"`
}

type postMeta struct {
	Title  *string `json:"title"`
	Author *string `json:"author"`
}

type revisionSummary struct {
	RevisionID       int              `json:"revision_id"`
	ParentRevisionID *int             `json:"parent_revision_id"`
	Timestamp        time.Time        `json:"timestamp"`
	DeltaType        models.DeltaType `json:"delta_type"`
	DeltaPayload     map[string]any   `json:"delta_payload"`
	ContentDigest    string           `json:"content_digest"`
}

type editorDataResponse struct {
	PostID         uuid.UUID         `json:"post_id"`
	Content        string            `json:"content"`
	Status         models.PostStatus `json:"status"`
	LastRevisionID int               `json:"last_revision_id"`
	Meta           postMeta          `json:"meta"`
	Intent         json.RawMessage   `json:"intent"`
	Revisions      []revisionSummary `json:"revisions"`
}

type setTitleRequest struct {
	PostID string `json:"post_id" validate:"required,uuid"`
	Title  string `json:"title" validate:"required"`
}

type setAuthorRequest struct {
	PostID string `json:"post_id" validate:"required,uuid"`
	Author string `json:"author" validate:"required"`
}

type editContentRequest struct {
	PostID         string `json:"post_id" validate:"required,uuid"`
	Content        string `json:"content" validate:"required"`
	BaseRevisionID *int   `json:"base_revision_id" validate:"omitempty,min=1"`
}

type committedResponse struct {
	PostID     uuid.UUID `json:"post_id"`
	Content    string    `json:"content"`
	RevisionID int       `json:"revision_id"`
	Changed    bool      `json:"changed"`
}

type policyEditRequest struct {
	PostID     string `json:"post_id" validate:"required,uuid"`
	PolicyText string `json:"policy_text" validate:"required_without=PolicyID"`
	PolicyID   string `json:"policy_id"`
}

type policyEditResponse struct {
	committedResponse
	ChangedChunks  []int                  `json:"changed_chunks"`
	RejectedChunks []models.RejectedChunk `json:"rejected_chunks"`
}

type suggestTitleRequest struct {
	Content string `json:"content" validate:"required"`
}

type setStatusRequest struct {
	PostID       string `json:"post_id" validate:"required,uuid"`
	TargetStatus string `json:"target_status" validate:"required"`
}

type revisionResponse struct {
	PostID     uuid.UUID `json:"post_id"`
	RevisionID int       `json:"revision_id"`
	Content    string    `json:"content"`
}

type copyResponse struct {
	PostID               uuid.UUID `json:"post_id"`
	RevisionID           int       `json:"revision_id"`
	RevertedToRevisionID int       `json:"reverted_to_revision_id"`
	Content              string    `json:"content"`
}

type exportRequest struct {
	RevisionID *int `json:"revision_id" validate:"omitempty,min=1"`
}

type exportResponse struct {
	PostID     uuid.UUID `json:"post_id"`
	RevisionID int       `json:"revision_id"`
	Key        string    `json:"key"`
	URL        string    `json:"url"`
}

type saveDocumentRequest struct {
	Markdown string `json:"markdown"`
	Filename string `json:"filename"`
}

func summarize(revs []models.Revision) []revisionSummary {
	out := make([]revisionSummary, len(revs))
	for i, r := range revs {
		out[i] = revisionSummary{
			RevisionID:       r.ID,
			ParentRevisionID: r.ParentID,
			Timestamp:        r.CreatedAt,
			DeltaType:        r.DeltaType,
			DeltaPayload:     r.DeltaPayload.Fields(r.DeltaType),
			ContentDigest:    r.ContentDigest,
		}
	}
	return out
}

func committedBody(c *blog.Committed) committedResponse {
	return committedResponse{
		PostID:     c.PostID,
		Content:    c.Revision.Content,
		RevisionID: c.Revision.ID,
		Changed:    c.Changed,
	}
}

// --- Post creation ---

// Generate handles POST /blog/generate.
func (b *Blog) Generate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if msg := decodeJSON(w, r, &req); msg != "" {
		badRequest(w, msg)
		return
	}

	created, err := b.svc.Generate(r.Context(), blog.GenerateInput{Intent: req.Intent, Author: req.Author})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, createdResponse{
		PostID:         created.Post.ID,
		Content:        created.Revision.Content,
		RevisionID:     created.Revision.ID,
		SuggestedTitle: created.SuggestedTitle,
	})
}

// Create handles POST /blog/create.
func (b *Blog) Create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if msg := decodeJSON(w, r, &req); msg != "" {
		badRequest(w, msg)
		return
	}

	created, err := b.svc.Create(r.Context(), blog.CreateInput{
		Content: req.Content,
		Intent:  req.Intent,
		Author:  req.Author,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, createdResponse{
		PostID:     created.Post.ID,
		Content:    created.Revision.Content,
		RevisionID: created.Revision.ID,
	})
}

// --- Editor ---

// EditorData handles GET /blog/editor/data?post_id=.
func (b *Blog) EditorData(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("post_id")
	if raw == "" {
		badRequest(w, "post_id is required")
		return
	}
	postID, err := uuid.Parse(raw)
	if err != nil {
		notFound(w, "post not found")
		return
	}

	data, err := b.svc.EditorData(r.Context(), postID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, editorDataResponse{
		PostID:         data.Post.ID,
		Content:        data.Content,
		Status:         data.Post.Status,
		LastRevisionID: data.Post.HeadRevisionID,
		Meta:           postMeta{Title: data.Post.Title, Author: data.Post.Author},
		Intent:         data.Post.Intent,
		Revisions:      summarize(data.Revisions),
	})
}

// SetTitle handles POST /blog/set-title.
func (b *Blog) SetTitle(w http.ResponseWriter, r *http.Request) {
	var req setTitleRequest
	if msg := decodeJSON(w, r, &req); msg != "" {
		badRequest(w, msg)
		return
	}

	title, err := b.svc.SetTitle(r.Context(), uuid.MustParse(req.PostID), req.Title)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"post_id": req.PostID, "title": title})
}

// SetAuthor handles POST /blog/set-author.
func (b *Blog) SetAuthor(w http.ResponseWriter, r *http.Request) {
	var req setAuthorRequest
	if msg := decodeJSON(w, r, &req); msg != "" {
		badRequest(w, msg)
		return
	}

	author, err := b.svc.SetAuthor(r.Context(), uuid.MustParse(req.PostID), req.Author)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"post_id": req.PostID, "author": author})
}

// EditContent handles POST /blog/edit-content.
func (b *Blog) EditContent(w http.ResponseWriter, r *http.Request) {
	var req editContentRequest
	if msg := decodeJSON(w, r, &req); msg != "" {
		badRequest(w, msg)
		return
	}

	res, err := b.svc.EditContent(r.Context(), blog.EditInput{
		PostID:         uuid.MustParse(req.PostID),
		Content:        req.Content,
		BaseRevisionID: req.BaseRevisionID,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, committedBody(res))
}

// ApplyPolicy handles POST /blog/edit.
func (b *Blog) ApplyPolicy(w http.ResponseWriter, r *http.Request) {
	var req policyEditRequest
	if msg := decodeJSON(w, r, &req); msg != "" {
		badRequest(w, msg)
		return
	}

	res, err := b.svc.ApplyPolicy(r.Context(), blog.PolicyInput{
		PostID:     uuid.MustParse(req.PostID),
		PolicyText: req.PolicyText,
		PolicyID:   req.PolicyID,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	body := policyEditResponse{
		committedResponse: committedBody(&res.Committed),
		ChangedChunks:     res.ChangedChunks,
		RejectedChunks:    res.RejectedChunks,
	}
	if body.ChangedChunks == nil {
		body.ChangedChunks = []int{}
	}
	if body.RejectedChunks == nil {
		body.RejectedChunks = []models.RejectedChunk{}
	}
	writeJSON(w, http.StatusOK, body)
}

// SuggestTitle handles POST /blog/suggest-title. Nothing is stored.
func (b *Blog) SuggestTitle(w http.ResponseWriter, r *http.Request) {
	var req suggestTitleRequest
	if msg := decodeJSON(w, r, &req); msg != "" {
		badRequest(w, msg)
		return
	}

	title, err := b.svc.SuggestTitle(r.Context(), req.Content)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"suggested_title": title})
}

// SetStatus handles POST /blog/set-status.
func (b *Blog) SetStatus(w http.ResponseWriter, r *http.Request) {
	var req setStatusRequest
	if msg := decodeJSON(w, r, &req); msg != "" {
		badRequest(w, msg)
		return
	}

	post, err := b.svc.SetStatus(r.Context(), uuid.MustParse(req.PostID), req.TargetStatus)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"post_id": post.ID, "status": post.Status})
}

// --- Posts and revisions ---

// ListPosts handles GET /blog/posts?status=.
func (b *Blog) ListPosts(w http.ResponseWriter, r *http.Request) {
	posts, err := b.svc.ListPosts(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, posts)
}

// ListRevisions handles GET /blog/posts/{post_id}/revisions.
func (b *Blog) ListRevisions(w http.ResponseWriter, r *http.Request) {
	postID, ok := pathPostID(w, r)
	if !ok {
		return
	}

	revs, err := b.svc.ListRevisions(r.Context(), postID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summarize(revs))
}

// RevisionContent handles GET /blog/posts/{post_id}/revisions/{revision_id}.
// Revisions never change, so the content digest is a strong ETag.
func (b *Blog) RevisionContent(w http.ResponseWriter, r *http.Request) {
	postID, ok := pathPostID(w, r)
	if !ok {
		return
	}
	revID, ok := pathRevisionID(w, r)
	if !ok {
		return
	}

	rev, err := b.svc.RevisionContent(r.Context(), postID, &revID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	etag := `"` + rev.ContentDigest + `"`
	w.Header().Set("ETag", etag)
	if etagMatches(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	writeJSON(w, http.StatusOK, revisionResponse{PostID: rev.PostID, RevisionID: rev.ID, Content: rev.Content})
}

// CopyFrom handles POST /blog/posts/{post_id}/revisions/{revision_id}/copy.
func (b *Blog) CopyFrom(w http.ResponseWriter, r *http.Request) {
	postID, ok := pathPostID(w, r)
	if !ok {
		return
	}
	revID, ok := pathRevisionID(w, r)
	if !ok {
		return
	}

	res, err := b.svc.CopyFrom(r.Context(), postID, revID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, copyResponse{
		PostID:               res.PostID,
		RevisionID:           res.Revision.ID,
		RevertedToRevisionID: revID,
		Content:              res.Revision.Content,
	})
}

// Export handles POST /blog/posts/{post_id}/export. The body is optional;
// without a revision_id the head revision is exported.
func (b *Blog) Export(w http.ResponseWriter, r *http.Request) {
	if b.exporter == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "export storage is not configured", Kind: "unavailable"})
		return
	}
	postID, ok := pathPostID(w, r)
	if !ok {
		return
	}

	var req exportRequest
	if r.ContentLength != 0 {
		if msg := decodeJSON(w, r, &req); msg != "" && msg != "request body is empty" {
			badRequest(w, msg)
			return
		}
	}

	post, err := b.svc.Post(r.Context(), postID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rev, err := b.svc.RevisionContent(r.Context(), postID, req.RevisionID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	title := ""
	if post.Title != nil {
		title = *post.Title
	}
	base := strings.TrimSuffix(slug.Markdown(title, "post"), ".md")
	name := fmt.Sprintf("%s/%s-r%d.md", postID, base, rev.ID)

	key, link, err := b.exporter.ExportMarkdown(r.Context(), name, rev.Content)
	if err != nil {
		slog.Error("export failed", "post_id", postID, "revision_id", rev.ID, "error", err)
		writeJSON(w, http.StatusBadGateway, errorBody{Error: "export upload failed", Kind: blog.KindUpstream, Retry: true})
		return
	}
	slog.Info("revision exported", "post_id", postID, "revision_id", rev.ID, "key", key)
	writeJSON(w, http.StatusOK, exportResponse{PostID: postID, RevisionID: rev.ID, Key: key, URL: link})
}

// ListPolicies handles GET /blog/policies.
func (b *Blog) ListPolicies(w http.ResponseWriter, _ *http.Request) {
	policies := b.svc.Policies()
	if policies == nil {
		policies = []policy.Policy{}
	}
	writeJSON(w, http.StatusOK, policies)
}

// --- Documents ---

// SaveDocument handles POST /document/save by echoing the markdown back as
// a file download. Nothing is stored.
func (b *Blog) SaveDocument(w http.ResponseWriter, r *http.Request) {
	var req saveDocumentRequest
	if msg := decodeJSON(w, r, &req); msg != "" {
		badRequest(w, msg)
		return
	}
	name, msg := checkFilename(req.Filename)
	if msg != "" {
		badRequest(w, msg)
		return
	}

	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.Header().Set("Content-Length", strconv.Itoa(len(req.Markdown)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(req.Markdown)); err != nil {
		slog.Debug("write document failed", "error", err)
	}
}

// --- Path helpers ---

// pathPostID parses {post_id}. A malformed ID cannot name a post, so it is
// reported as not found.
func pathPostID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "post_id"))
	if err != nil {
		notFound(w, "post not found")
		return uuid.Nil, false
	}
	return id, true
}

func pathRevisionID(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := chi.URLParam(r, "revision_id")
	id, err := strconv.Atoi(raw)
	if err != nil || id < 1 {
		notFound(w, "revision "+raw+" not found")
		return 0, false
	}
	return id, true
}

// etagMatches implements the weak comparison If-None-Match requires.
func etagMatches(header, etag string) bool {
	if header == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimPrefix(strings.TrimSpace(candidate), "W/")
		if candidate == "*" || candidate == etag {
			return true
		}
	}
	return false
}
