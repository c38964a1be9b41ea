// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package blog is the revision and policy-edit engine behind the editor.
// It owns the rules (lifecycle, commit-once title, draft-only policy
// edits, optimistic commits) and delegates persistence to a Repository and
// prose to a Generator.
package blog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"draftledger/internal/chunk"
	"draftledger/internal/metrics"
	"draftledger/internal/models"
	"draftledger/internal/policy"
	"draftledger/internal/store"
)

// Field limits.
const (
	maxTitleLen   = 300
	maxAuthorLen  = 200
	maxContentLen = 500_000
	maxPolicyLen  = 4_000
)

// commitAttempts bounds how often an unanchored mutation re-reads head
// after losing a commit race.
const commitAttempts = 3

// Repository persists posts and their revision ledgers.
type Repository interface {
	CreatePost(ctx context.Context, np store.NewPost) (*models.Post, *models.Revision, error)
	FindPost(ctx context.Context, id uuid.UUID) (*models.Post, error)
	ListPosts(ctx context.Context, status models.PostStatus) ([]models.Post, error)
	Commit(ctx context.Context, req store.CommitRequest) (*models.Revision, error)
	ListRevisions(ctx context.Context, postID uuid.UUID) ([]models.Revision, error)
	FindRevision(ctx context.Context, postID uuid.UUID, revisionID int) (*models.Revision, error)
	SetTitleOnce(ctx context.Context, postID uuid.UUID, title string) error
	SetAuthor(ctx context.Context, postID uuid.UUID, author string) error
	UpdateStatus(ctx context.Context, postID uuid.UUID, from, to models.PostStatus) error
}

// Generator is the external generation service.
type Generator interface {
	GenerateDocument(ctx context.Context, intent *models.Intent) (string, error)
	RewriteChunk(ctx context.Context, brief string, req policy.RewriteRequest) (string, error)
	SuggestTitle(ctx context.Context, content string) (string, error)
	// Moderate returns flagged categories, or nil when text is acceptable.
	Moderate(ctx context.Context, text string) ([]string, error)
}

// RevisionCache holds committed revisions. Revisions never change, so
// entries need no invalidation.
type RevisionCache interface {
	Get(ctx context.Context, postID uuid.UUID, revisionID int) (*models.Revision, bool)
	Set(ctx context.Context, rev *models.Revision)
}

// Config tunes a Service. Zero values pick the defaults.
type Config struct {
	GenerationTimeout time.Duration
	ChunkConcurrency  int
	Policies          *policy.Library
	Cache             RevisionCache
}

// Service implements every editor operation.
type Service struct {
	repo        Repository
	gen         Generator
	cache       RevisionCache
	policies    *policy.Library
	timeout     time.Duration
	concurrency int
}

// NewService wires a Service.
func NewService(repo Repository, gen Generator, cfg Config) *Service {
	s := &Service{
		repo:        repo,
		gen:         gen,
		cache:       cfg.Cache,
		policies:    cfg.Policies,
		timeout:     cfg.GenerationTimeout,
		concurrency: cfg.ChunkConcurrency,
	}
	if s.timeout <= 0 {
		s.timeout = 60 * time.Second
	}
	if s.concurrency <= 0 {
		s.concurrency = 4
	}
	return s
}

// GenerateInput is the request to generate a post from an intent.
type GenerateInput struct {
	Intent json.RawMessage
	Author string
}

// CreateInput is the request to create a post from explicit content.
type CreateInput struct {
	Content string
	Intent  json.RawMessage
	Author  string
}

// Created is a new post with its first revision.
type Created struct {
	Post           *models.Post
	Revision       *models.Revision
	SuggestedTitle string
}

// Generate validates the intent, asks the generator for a document and
// stores it as revision 1 of a new draft. A title is suggested on a best
// effort basis; failing to get one does not fail the request.
func (s *Service) Generate(ctx context.Context, in GenerateInput) (*Created, error) {
	const op = "generate post"

	intent, err := models.ParseIntent(in.Intent)
	if err != nil {
		return nil, invalid(op, err.Error())
	}
	author, err := optionalAuthor(op, in.Author)
	if err != nil {
		return nil, err
	}
	if err := s.moderate(ctx, op, intent.PromptText()); err != nil {
		return nil, err
	}

	gctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	doc, err := s.gen.GenerateDocument(gctx, intent)
	if err != nil {
		return nil, upstream(op, err)
	}
	if strings.TrimSpace(doc) == "" {
		return nil, upstream(op, errors.New("generator returned an empty document"))
	}

	normalized, err := json.Marshal(intent)
	if err != nil {
		return nil, fmt.Errorf("%s: encode intent: %w", op, err)
	}
	created, err := s.create(ctx, op, doc, normalized, author)
	if err != nil {
		return nil, err
	}

	title, err := s.gen.SuggestTitle(gctx, doc)
	if err != nil {
		slog.Warn("title suggestion failed", "post_id", created.Post.ID, "error", err)
	} else {
		created.SuggestedTitle = title
	}
	return created, nil
}

// Create stores explicit content as revision 1 of a new draft.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Created, error) {
	const op = "create post"

	if err := checkContent(op, in.Content); err != nil {
		return nil, err
	}
	var intent json.RawMessage
	if raw := strings.TrimSpace(string(in.Intent)); raw != "" && raw != "null" {
		parsed, err := models.ParseIntent(in.Intent)
		if err != nil {
			return nil, invalid(op, err.Error())
		}
		if intent, err = json.Marshal(parsed); err != nil {
			return nil, fmt.Errorf("%s: encode intent: %w", op, err)
		}
	}
	author, err := optionalAuthor(op, in.Author)
	if err != nil {
		return nil, err
	}
	return s.create(ctx, op, in.Content, intent, author)
}

func (s *Service) create(ctx context.Context, op, content string, intent json.RawMessage, author *string) (*Created, error) {
	post, rev, err := s.repo.CreatePost(ctx, store.NewPost{
		ID:      uuid.New(),
		Author:  author,
		Intent:  intent,
		Content: content,
		Payload: models.DeltaPayload{ChangedChunks: chunk.ChangedIndices("", content)},
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	metrics.Commits.WithLabelValues(string(models.DeltaCreate)).Inc()
	s.remember(ctx, rev)
	slog.Info("post created", "post_id", post.ID, "revision_id", rev.ID)
	return &Created{Post: post, Revision: rev}, nil
}

// EditorData is everything the editor needs to render a post.
type EditorData struct {
	Post      *models.Post
	Content   string
	Revisions []models.Revision
}

// EditorData loads a post with its head content and full ledger.
func (s *Service) EditorData(ctx context.Context, postID uuid.UUID) (*EditorData, error) {
	const op = "load editor data"

	post, err := s.repo.FindPost(ctx, postID)
	if err != nil {
		return nil, fromStore(op, err)
	}
	revisions, err := s.repo.ListRevisions(ctx, postID)
	if err != nil {
		return nil, fromStore(op, err)
	}
	data := &EditorData{Post: post, Revisions: revisions}
	for _, r := range revisions {
		if r.ID == post.HeadRevisionID {
			data.Content = r.Content
		}
	}
	return data, nil
}

// SetTitle commits the title. It succeeds only once per post.
func (s *Service) SetTitle(ctx context.Context, postID uuid.UUID, title string) (string, error) {
	const op = "set title"

	title = strings.TrimSpace(title)
	switch {
	case title == "":
		return "", invalid(op, "title must be non-empty")
	case utf8.RuneCountInString(title) > maxTitleLen:
		return "", invalid(op, fmt.Sprintf("title is too long (max %d characters)", maxTitleLen))
	}
	if err := s.repo.SetTitleOnce(ctx, postID, title); err != nil {
		if errors.Is(err, store.ErrTitleAlreadySet) {
			metrics.Conflicts.WithLabelValues("title_set").Inc()
		}
		return "", fromStore(op, err)
	}
	return title, nil
}

// SetAuthor overwrites the author.
func (s *Service) SetAuthor(ctx context.Context, postID uuid.UUID, author string) (string, error) {
	const op = "set author"

	a, err := optionalAuthor(op, author)
	if err != nil {
		return "", err
	}
	if a == nil {
		return "", invalid(op, "author must be non-empty")
	}
	if err := s.repo.SetAuthor(ctx, postID, *a); err != nil {
		return "", fromStore(op, err)
	}
	return *a, nil
}

// EditInput replaces a post's content. BaseRevisionID, when set, pins the
// revision the edit was made against; the edit is refused if head moved.
type EditInput struct {
	PostID         uuid.UUID
	Content        string
	BaseRevisionID *int
}

// Committed describes the head after a mutation. Changed is false when the
// mutation was a no-op and nothing was written.
type Committed struct {
	PostID   uuid.UUID
	Revision *models.Revision
	Changed  bool
}

// EditContent commits new content as a content_edit revision. Archived
// posts are read-only.
func (s *Service) EditContent(ctx context.Context, in EditInput) (*Committed, error) {
	const op = "edit content"

	if err := checkContent(op, in.Content); err != nil {
		return nil, err
	}

	return s.commitWithRetry(ctx, op, in.PostID, in.BaseRevisionID, func(head *models.Revision) (string, models.Delta, bool) {
		if head.Content == in.Content {
			return "", models.Delta{}, false
		}
		return in.Content, models.Delta{
			Type:    models.DeltaContentEdit,
			Payload: models.DeltaPayload{ChangedChunks: chunk.ChangedIndices(head.Content, in.Content)},
		}, true
	})
}

// CopyFrom commits the content of a past revision as a new head. History
// is never truncated.
func (s *Service) CopyFrom(ctx context.Context, postID uuid.UUID, sourceID int) (*Committed, error) {
	const op = "copy revision"

	src, err := s.revision(ctx, postID, sourceID)
	if err != nil {
		return nil, s.revisionLookupErr(ctx, op, postID, sourceID, err)
	}

	source := sourceID
	return s.commitWithRetry(ctx, op, postID, nil, func(*models.Revision) (string, models.Delta, bool) {
		return src.Content, models.Delta{
			Type:    models.DeltaRevertCopy,
			Payload: models.DeltaPayload{RevertedToRevisionID: &source},
		}, true
	})
}

// commitWithRetry reads head, builds a delta from it and commits. Without
// a pinned base a lost race is retried against the new head; with one it
// is reported as stale. build returns ok=false to skip the commit.
func (s *Service) commitWithRetry(
	ctx context.Context,
	op string,
	postID uuid.UUID,
	base *int,
	build func(head *models.Revision) (content string, delta models.Delta, ok bool),
) (*Committed, error) {
	var lastErr error
	for attempt := 0; attempt < commitAttempts; attempt++ {
		post, err := s.repo.FindPost(ctx, postID)
		if err != nil {
			return nil, fromStore(op, err)
		}
		if post.Status == models.PostStatusArchived {
			metrics.Conflicts.WithLabelValues("archived").Inc()
			return nil, conflict(op, "post is archived", nil)
		}
		if base != nil && *base != post.HeadRevisionID {
			metrics.Conflicts.WithLabelValues("stale_head").Inc()
			return nil, fromStore(op, fmt.Errorf("%w: base %d, head %d", store.ErrStaleHead, *base, post.HeadRevisionID))
		}

		head, err := s.revision(ctx, postID, post.HeadRevisionID)
		if err != nil {
			return nil, fromStore(op, err)
		}
		content, delta, ok := build(head)
		if !ok {
			return &Committed{PostID: postID, Revision: head}, nil
		}

		rev, err := s.repo.Commit(ctx, store.CommitRequest{
			PostID:          postID,
			BaseRevisionID:  head.ID,
			Content:         content,
			Delta:           delta,
			AllowedStatuses: []models.PostStatus{models.PostStatusDraft, models.PostStatusPublished},
		})
		if err == nil {
			s.committed(ctx, rev)
			return &Committed{PostID: postID, Revision: rev, Changed: true}, nil
		}
		if !errors.Is(err, store.ErrStaleHead) && !errors.Is(err, store.ErrStatusChanged) {
			return nil, fromStore(op, err)
		}
		metrics.Conflicts.WithLabelValues("stale_head").Inc()
		lastErr = err
		if base != nil {
			break
		}
		slog.Debug("commit lost race, retrying", "post_id", postID, "attempt", attempt+1)
	}
	return nil, fromStore(op, lastErr)
}

// PolicyInput asks for a policy edit. PolicyText wins over PolicyID.
type PolicyInput struct {
	PostID     uuid.UUID
	PolicyText string
	PolicyID   string
}

// PolicyEdit is the outcome of a policy edit.
type PolicyEdit struct {
	Committed
	ChangedChunks  []int
	RejectedChunks []models.RejectedChunk
}

// ApplyPolicy rewrites the head of a draft chunk by chunk under a policy.
// Every proposal is collected before anything is written; an upstream
// failure or timeout leaves the ledger untouched. If no chunk changes,
// nothing is committed and the current head is reported.
func (s *Service) ApplyPolicy(ctx context.Context, in PolicyInput) (*PolicyEdit, error) {
	const op = "apply policy"

	text, err := s.resolvePolicy(op, in)
	if err != nil {
		return nil, err
	}

	post, err := s.repo.FindPost(ctx, in.PostID)
	if err != nil {
		return nil, fromStore(op, err)
	}
	if !post.IsDraft() {
		metrics.Conflicts.WithLabelValues("not_draft").Inc()
		return nil, conflict(op, "post is not draft", nil)
	}
	if err := s.moderate(ctx, op, text); err != nil {
		return nil, err
	}

	head, err := s.revision(ctx, post.ID, post.HeadRevisionID)
	if err != nil {
		return nil, fromStore(op, err)
	}

	brief := intentBrief(post.Intent)
	rewriter := policy.RewriterFunc(func(ctx context.Context, req policy.RewriteRequest) (string, error) {
		return s.gen.RewriteChunk(ctx, brief, req)
	})
	applier := policy.NewApplier(rewriter,
		policy.WithTimeout(s.timeout),
		policy.WithConcurrency(s.concurrency),
	)
	res, err := applier.Apply(ctx, head.Content, text)
	if err != nil {
		if errors.Is(err, policy.ErrEmptyPolicy) {
			return nil, invalid(op, err.Error())
		}
		slog.Error("policy edit aborted", "post_id", post.ID, "error", err)
		return nil, upstream(op, err)
	}
	recordChunkOutcomes(res)

	edit := &PolicyEdit{
		Committed:      Committed{PostID: post.ID, Revision: head},
		ChangedChunks:  res.ChangedChunks(),
		RejectedChunks: res.RejectedChunks(),
	}
	if !res.Changed() {
		return edit, nil
	}

	rev, err := s.repo.Commit(ctx, store.CommitRequest{
		PostID:         post.ID,
		BaseRevisionID: head.ID,
		Content:        res.Content,
		Delta: models.Delta{
			Type: models.DeltaPolicyEdit,
			Payload: models.DeltaPayload{
				ChangedChunks:  edit.ChangedChunks,
				RejectedChunks: edit.RejectedChunks,
				Policy:         text,
			},
		},
		AllowedStatuses: []models.PostStatus{models.PostStatusDraft},
	})
	if err != nil {
		if errors.Is(err, store.ErrStaleHead) || errors.Is(err, store.ErrStatusChanged) {
			metrics.Conflicts.WithLabelValues("stale_head").Inc()
		}
		return nil, fromStore(op, err)
	}
	s.committed(ctx, rev)
	edit.Revision = rev
	edit.Changed = true
	return edit, nil
}

func (s *Service) resolvePolicy(op string, in PolicyInput) (string, error) {
	text := strings.TrimSpace(in.PolicyText)
	if text == "" && in.PolicyID != "" {
		p, ok := s.policies.Lookup(in.PolicyID)
		if !ok {
			return "", invalid(op, fmt.Sprintf("policy %q not found", in.PolicyID))
		}
		text = strings.TrimSpace(p.Text)
	}
	switch {
	case text == "":
		return "", invalid(op, policy.ErrEmptyPolicy.Error())
	case utf8.RuneCountInString(text) > maxPolicyLen:
		return "", invalid(op, fmt.Sprintf("policy text is too long (max %d characters)", maxPolicyLen))
	}
	return text, nil
}

func recordChunkOutcomes(res *policy.Result) {
	for _, c := range res.Chunks {
		switch {
		case c.Changed():
			metrics.PolicyChunks.WithLabelValues("changed").Inc()
		case isRejected(c.Outcome):
			metrics.PolicyChunks.WithLabelValues("rejected").Inc()
		default:
			metrics.PolicyChunks.WithLabelValues("unchanged").Inc()
		}
	}
}

func isRejected(o policy.Outcome) bool {
	_, ok := o.(policy.Rejected)
	return ok
}

// SetStatus moves a post along the lifecycle table. A move the table does
// not list, including a move to the current status, fails and leaves the
// status unchanged.
func (s *Service) SetStatus(ctx context.Context, postID uuid.UUID, target string) (*models.Post, error) {
	const op = "set status"

	to, err := models.ParsePostStatus(strings.TrimSpace(target))
	if err != nil {
		return nil, invalid(op, err.Error())
	}
	post, err := s.repo.FindPost(ctx, postID)
	if err != nil {
		return nil, fromStore(op, err)
	}
	if !post.Status.CanTransitionTo(to) {
		metrics.Conflicts.WithLabelValues("invalid_transition").Inc()
		return nil, &Error{
			Kind: KindConflict,
			Op:   op,
			Msg:  fmt.Sprintf("cannot move post from %s to %s", post.Status, to),
			Err:  ErrInvalidTransition,
		}
	}
	if err := s.repo.UpdateStatus(ctx, postID, post.Status, to); err != nil {
		return nil, fromStore(op, err)
	}
	slog.Info("post status changed", "post_id", postID, "from", post.Status, "to", to)

	post.Status = to
	return post, nil
}

// Post returns a post's metadata without its content.
func (s *Service) Post(ctx context.Context, postID uuid.UUID) (*models.Post, error) {
	post, err := s.repo.FindPost(ctx, postID)
	if err != nil {
		return nil, fromStore("find post", err)
	}
	return post, nil
}

// ListRevisions returns the ledger in ascending order.
func (s *Service) ListRevisions(ctx context.Context, postID uuid.UUID) ([]models.Revision, error) {
	revs, err := s.repo.ListRevisions(ctx, postID)
	if err != nil {
		return nil, fromStore("list revisions", err)
	}
	return revs, nil
}

// RevisionContent returns one revision, or head when revisionID is nil.
// Reading never changes head.
func (s *Service) RevisionContent(ctx context.Context, postID uuid.UUID, revisionID *int) (*models.Revision, error) {
	const op = "read revision"

	id := 0
	if revisionID != nil {
		id = *revisionID
	} else {
		post, err := s.repo.FindPost(ctx, postID)
		if err != nil {
			return nil, fromStore(op, err)
		}
		id = post.HeadRevisionID
	}
	rev, err := s.revision(ctx, postID, id)
	if err != nil {
		return nil, s.revisionLookupErr(ctx, op, postID, id, err)
	}
	return rev, nil
}

// ListPosts lists posts newest first, optionally filtered by status.
func (s *Service) ListPosts(ctx context.Context, status string) ([]models.Post, error) {
	const op = "list posts"

	var st models.PostStatus
	if status = strings.TrimSpace(status); status != "" {
		parsed, err := models.ParsePostStatus(status)
		if err != nil {
			return nil, invalid(op, err.Error())
		}
		st = parsed
	}
	posts, err := s.repo.ListPosts(ctx, st)
	if err != nil {
		return nil, fromStore(op, err)
	}
	return posts, nil
}

// SuggestTitle asks the generator for a title. Nothing is stored.
func (s *Service) SuggestTitle(ctx context.Context, content string) (string, error) {
	const op = "suggest title"

	if err := checkContent(op, content); err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	title, err := s.gen.SuggestTitle(ctx, content)
	if err != nil {
		return "", upstream(op, err)
	}
	return title, nil
}

// Policies lists the named policy library.
func (s *Service) Policies() []policy.Policy {
	return s.policies.List()
}

// revision reads a revision through the cache.
func (s *Service) revision(ctx context.Context, postID uuid.UUID, id int) (*models.Revision, error) {
	if s.cache != nil {
		if rev, ok := s.cache.Get(ctx, postID, id); ok {
			return rev, nil
		}
	}
	rev, err := s.repo.FindRevision(ctx, postID, id)
	if err != nil {
		return nil, err
	}
	s.remember(ctx, rev)
	return rev, nil
}

// revisionLookupErr tells a missing post apart from a missing revision.
func (s *Service) revisionLookupErr(ctx context.Context, op string, postID uuid.UUID, id int, err error) error {
	if !errors.Is(err, store.ErrNotFound) {
		return fromStore(op, err)
	}
	if _, perr := s.repo.FindPost(ctx, postID); perr != nil {
		return fromStore(op, perr)
	}
	return &Error{Kind: KindNotFound, Op: op, Msg: fmt.Sprintf("revision %d not found", id), Err: err}
}

func (s *Service) committed(ctx context.Context, rev *models.Revision) {
	metrics.Commits.WithLabelValues(string(rev.DeltaType)).Inc()
	s.remember(ctx, rev)
	slog.Info("revision committed", "post_id", rev.PostID, "revision_id", rev.ID, "delta_type", rev.DeltaType)
}

func (s *Service) remember(ctx context.Context, rev *models.Revision) {
	if s.cache != nil {
		s.cache.Set(ctx, rev)
	}
}

// moderate screens text before it reaches the generator. A moderation
// outage lets the request through; providers filter on their side too.
func (s *Service) moderate(ctx context.Context, op, text string) error {
	flagged, err := s.gen.Moderate(ctx, text)
	if err != nil {
		slog.Warn("moderation check failed, allowing prompt", "op", op, "error", err)
		return nil
	}
	if len(flagged) == 0 {
		return nil
	}
	slog.Warn("prompt flagged by moderation", "op", op, "categories", flagged)
	return invalid(op, "input was flagged for: "+strings.Join(flagged, ", "))
}

// intentBrief renders a stored intent for rewrite prompts. Posts created
// from bare content have no intent and get an empty brief.
func intentBrief(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var intent models.Intent
	if err := json.Unmarshal(raw, &intent); err != nil {
		return ""
	}
	return intent.PromptText()
}

func checkContent(op, content string) error {
	switch {
	case strings.TrimSpace(content) == "":
		return invalid(op, "content must be non-empty")
	case utf8.RuneCountInString(content) > maxContentLen:
		return invalid(op, fmt.Sprintf("content is too long (max %d characters)", maxContentLen))
	}
	return nil
}

func optionalAuthor(op, author string) (*string, error) {
	author = strings.TrimSpace(author)
	if author == "" {
		return nil, nil
	}
	if utf8.RuneCountInString(author) > maxAuthorLen {
		return nil, invalid(op, fmt.Sprintf("author is too long (max %d characters)", maxAuthorLen))
	}
	return &author, nil
}
