// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"draftledger/internal/models"
)

// postColumns lists all columns for posts SELECTs.
const postColumns = `id, status, title, author, intent, head_revision_id, created_at, updated_at`

// revisionColumns lists all columns for post_revisions SELECTs.
const revisionColumns = `post_id, revision_id, parent_revision_id, content, content_digest,
	delta_type, delta_payload, created_at`

// PostStore keeps posts and their revision ledgers in PostgreSQL.
type PostStore struct {
	db *sql.DB
}

// NewPostStore creates a new PostStore backed by the given database.
func NewPostStore(db *sql.DB) *PostStore {
	return &PostStore{db: db}
}

type scanner interface{ Scan(...any) error }

func scanPost(row scanner) (*models.Post, error) {
	var p models.Post
	var intent []byte
	err := row.Scan(&p.ID, &p.Status, &p.Title, &p.Author, &intent,
		&p.HeadRevisionID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(intent) > 0 {
		p.Intent = json.RawMessage(intent)
	}
	return &p, nil
}

func scanRevision(row scanner) (*models.Revision, error) {
	var r models.Revision
	var payload []byte
	err := row.Scan(&r.PostID, &r.ID, &r.ParentID, &r.Content, &r.ContentDigest,
		&r.DeltaType, &payload, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &r.DeltaPayload); err != nil {
			return nil, fmt.Errorf("decode delta payload: %w", err)
		}
	}
	return &r, nil
}

// nullJSON converts an optional raw JSON document into a query argument.
func nullJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

// CreatePost inserts a draft post and its first revision in one transaction.
func (s *PostStore) CreatePost(ctx context.Context, np NewPost) (*models.Post, *models.Revision, error) {
	payload, err := json.Marshal(np.Payload)
	if err != nil {
		return nil, nil, fmt.Errorf("encode delta payload: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin create post: %w", err)
	}
	defer tx.Rollback()

	post, err := scanPost(tx.QueryRowContext(ctx, `
		INSERT INTO posts (id, status, author, intent, head_revision_id)
		VALUES ($1, $2, $3, $4::jsonb, 1)
		RETURNING `+postColumns,
		np.ID, models.PostStatusDraft, np.Author, nullJSON(np.Intent),
	))
	if err != nil {
		return nil, nil, fmt.Errorf("insert post: %w", err)
	}

	rev, err := scanRevision(tx.QueryRowContext(ctx, `
		INSERT INTO post_revisions (post_id, revision_id, parent_revision_id, content,
			content_digest, delta_type, delta_payload)
		VALUES ($1, 1, NULL, $2, $3, $4, $5::jsonb)
		RETURNING `+revisionColumns,
		np.ID, np.Content, models.Digest(np.Content), models.DeltaCreate, string(payload),
	))
	if err != nil {
		return nil, nil, fmt.Errorf("insert first revision: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit create post: %w", err)
	}
	return post, rev, nil
}

// FindPost returns a post by ID, or ErrNotFound.
func (s *PostStore) FindPost(ctx context.Context, id uuid.UUID) (*models.Post, error) {
	p, err := scanPost(s.db.QueryRowContext(ctx,
		`SELECT `+postColumns+` FROM posts WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find post: %w", err)
	}
	return p, nil
}

// ListPosts returns posts newest first. An empty status lists every post.
func (s *PostStore) ListPosts(ctx context.Context, status models.PostStatus) ([]models.Post, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+postColumns+`
		FROM posts
		WHERE $1 = '' OR status = $1
		ORDER BY created_at DESC, id
	`, string(status))
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()

	posts := []models.Post{}
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		posts = append(posts, *p)
	}
	return posts, rows.Err()
}

// Commit appends a revision and advances the head pointer atomically. The
// post row is locked for the duration of the transaction so concurrent
// commits to the same post serialize; a commit whose base is no longer the
// head fails with ErrStaleHead and writes nothing.
func (s *PostStore) Commit(ctx context.Context, req CommitRequest) (*models.Revision, error) {
	payload, err := json.Marshal(req.Delta.Payload)
	if err != nil {
		return nil, fmt.Errorf("encode delta payload: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin commit: %w", err)
	}
	defer tx.Rollback()

	var head int
	var status models.PostStatus
	err = tx.QueryRowContext(ctx,
		`SELECT head_revision_id, status FROM posts WHERE id = $1 FOR UPDATE`, req.PostID,
	).Scan(&head, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock post: %w", err)
	}
	if head != req.BaseRevisionID {
		return nil, fmt.Errorf("%w: base %d, head %d", ErrStaleHead, req.BaseRevisionID, head)
	}
	if !req.statusAllowed(status) {
		return nil, fmt.Errorf("%w: post is %s", ErrStatusChanged, status)
	}

	rev, err := scanRevision(tx.QueryRowContext(ctx, `
		INSERT INTO post_revisions (post_id, revision_id, parent_revision_id, content,
			content_digest, delta_type, delta_payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb)
		RETURNING `+revisionColumns,
		req.PostID, head+1, head, req.Content, models.Digest(req.Content),
		req.Delta.Type, string(payload),
	))
	if err != nil {
		return nil, fmt.Errorf("insert revision: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE posts SET head_revision_id = $1, updated_at = NOW() WHERE id = $2`,
		rev.ID, req.PostID,
	); err != nil {
		return nil, fmt.Errorf("advance head: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit revision: %w", err)
	}
	return rev, nil
}

// ListRevisions returns a post's ledger in ascending revision order.
func (s *PostStore) ListRevisions(ctx context.Context, postID uuid.UUID) ([]models.Revision, error) {
	if _, err := s.FindPost(ctx, postID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+revisionColumns+`
		FROM post_revisions
		WHERE post_id = $1
		ORDER BY revision_id ASC
	`, postID)
	if err != nil {
		return nil, fmt.Errorf("list revisions: %w", err)
	}
	defer rows.Close()

	revisions := []models.Revision{}
	for rows.Next() {
		r, err := scanRevision(rows)
		if err != nil {
			return nil, fmt.Errorf("scan revision: %w", err)
		}
		revisions = append(revisions, *r)
	}
	return revisions, rows.Err()
}

// FindRevision returns one revision of a post, or ErrNotFound.
func (s *PostStore) FindRevision(ctx context.Context, postID uuid.UUID, revisionID int) (*models.Revision, error) {
	r, err := scanRevision(s.db.QueryRowContext(ctx, `
		SELECT `+revisionColumns+`
		FROM post_revisions
		WHERE post_id = $1 AND revision_id = $2
	`, postID, revisionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find revision: %w", err)
	}
	return r, nil
}

// SetTitleOnce stores the title only if none is set yet.
func (s *PostStore) SetTitleOnce(ctx context.Context, postID uuid.UUID, title string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE posts SET title = $1, updated_at = NOW()
		WHERE id = $2 AND title IS NULL
	`, title, postID)
	if err != nil {
		return fmt.Errorf("set title: %w", err)
	}
	return s.explainNoop(ctx, res, postID, ErrTitleAlreadySet)
}

// SetAuthor overwrites the author unconditionally.
func (s *PostStore) SetAuthor(ctx context.Context, postID uuid.UUID, author string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE posts SET author = $1, updated_at = NOW() WHERE id = $2
	`, author, postID)
	if err != nil {
		return fmt.Errorf("set author: %w", err)
	}
	return s.explainNoop(ctx, res, postID, ErrNotFound)
}

// UpdateStatus moves the post from one status to another. It fails with
// ErrStatusChanged if the post is no longer in the from status.
func (s *PostStore) UpdateStatus(ctx context.Context, postID uuid.UUID, from, to models.PostStatus) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE posts SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3
	`, to, postID, from)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	return s.explainNoop(ctx, res, postID, ErrStatusChanged)
}

// explainNoop turns a conditional UPDATE that matched no row into either
// ErrNotFound or the given precondition error.
func (s *PostStore) explainNoop(ctx context.Context, res sql.Result, postID uuid.UUID, precondition error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}
	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM posts WHERE id = $1)`, postID,
	).Scan(&exists); err != nil {
		return fmt.Errorf("check post exists: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return precondition
}
