// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"draftledger/internal/models"
)

// MemoryStore is an in-process implementation of the post store, used for
// local development and tests. Each post owns an append-only slice of
// revisions where revisions[i] has revision_id i+1, guarded by a per-post
// mutex. Values handed out are always copies.
type MemoryStore struct {
	mu    sync.RWMutex
	posts map[uuid.UUID]*memPost
	now   func() time.Time
}

type memPost struct {
	mu        sync.Mutex
	post      models.Post
	revisions []models.Revision
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		posts: make(map[uuid.UUID]*memPost),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) get(id uuid.UUID) (*memPost, error) {
	s.mu.RLock()
	mp, ok := s.posts[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return mp, nil
}

// CreatePost inserts a draft post and its first revision.
func (s *MemoryStore) CreatePost(_ context.Context, np NewPost) (*models.Post, *models.Revision, error) {
	now := s.now()
	mp := &memPost{
		post: models.Post{
			ID:             np.ID,
			Status:         models.PostStatusDraft,
			Author:         np.Author,
			Intent:         np.Intent,
			HeadRevisionID: 1,
			CreatedAt:      now,
			UpdatedAt:      now,
		},
	}
	mp.post = mp.post.Clone()
	mp.revisions = []models.Revision{{
		PostID:        np.ID,
		ID:            1,
		Content:       np.Content,
		ContentDigest: models.Digest(np.Content),
		DeltaType:     models.DeltaCreate,
		DeltaPayload:  np.Payload.Clone(),
		CreatedAt:     now,
	}}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.posts[np.ID]; exists {
		return nil, nil, fmt.Errorf("insert post: duplicate id %s", np.ID)
	}
	s.posts[np.ID] = mp

	post := mp.post.Clone()
	rev := mp.revisions[0].Clone()
	return &post, &rev, nil
}

// FindPost returns a copy of the post, or ErrNotFound.
func (s *MemoryStore) FindPost(_ context.Context, id uuid.UUID) (*models.Post, error) {
	mp, err := s.get(id)
	if err != nil {
		return nil, err
	}
	mp.mu.Lock()
	defer mp.mu.Unlock()
	p := mp.post.Clone()
	return &p, nil
}

// ListPosts returns posts newest first. An empty status lists every post.
func (s *MemoryStore) ListPosts(_ context.Context, status models.PostStatus) ([]models.Post, error) {
	s.mu.RLock()
	all := make([]*memPost, 0, len(s.posts))
	for _, mp := range s.posts {
		all = append(all, mp)
	}
	s.mu.RUnlock()

	posts := []models.Post{}
	for _, mp := range all {
		mp.mu.Lock()
		p := mp.post.Clone()
		mp.mu.Unlock()
		if status == "" || p.Status == status {
			posts = append(posts, p)
		}
	}
	sort.Slice(posts, func(i, j int) bool {
		if !posts[i].CreatedAt.Equal(posts[j].CreatedAt) {
			return posts[i].CreatedAt.After(posts[j].CreatedAt)
		}
		return posts[i].ID.String() < posts[j].ID.String()
	})
	return posts, nil
}

// Commit appends a revision and advances head under the post's mutex.
func (s *MemoryStore) Commit(_ context.Context, req CommitRequest) (*models.Revision, error) {
	mp, err := s.get(req.PostID)
	if err != nil {
		return nil, err
	}
	mp.mu.Lock()
	defer mp.mu.Unlock()

	head := mp.post.HeadRevisionID
	if head != req.BaseRevisionID {
		return nil, fmt.Errorf("%w: base %d, head %d", ErrStaleHead, req.BaseRevisionID, head)
	}
	if !req.statusAllowed(mp.post.Status) {
		return nil, fmt.Errorf("%w: post is %s", ErrStatusChanged, mp.post.Status)
	}

	parent := head
	now := s.now()
	rev := models.Revision{
		PostID:        req.PostID,
		ID:            head + 1,
		ParentID:      &parent,
		Content:       req.Content,
		ContentDigest: models.Digest(req.Content),
		DeltaType:     req.Delta.Type,
		DeltaPayload:  req.Delta.Payload.Clone(),
		CreatedAt:     now,
	}
	mp.revisions = append(mp.revisions, rev)
	mp.post.HeadRevisionID = rev.ID
	mp.post.UpdatedAt = now

	out := rev.Clone()
	return &out, nil
}

// ListRevisions returns copies of a post's ledger in ascending order.
func (s *MemoryStore) ListRevisions(_ context.Context, postID uuid.UUID) ([]models.Revision, error) {
	mp, err := s.get(postID)
	if err != nil {
		return nil, err
	}
	mp.mu.Lock()
	defer mp.mu.Unlock()

	out := make([]models.Revision, len(mp.revisions))
	for i, r := range mp.revisions {
		out[i] = r.Clone()
	}
	return out, nil
}

// FindRevision returns a copy of one revision, or ErrNotFound.
func (s *MemoryStore) FindRevision(_ context.Context, postID uuid.UUID, revisionID int) (*models.Revision, error) {
	mp, err := s.get(postID)
	if err != nil {
		return nil, err
	}
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if revisionID < 1 || revisionID > len(mp.revisions) {
		return nil, ErrNotFound
	}
	r := mp.revisions[revisionID-1].Clone()
	return &r, nil
}

// SetTitleOnce stores the title only if none is set yet.
func (s *MemoryStore) SetTitleOnce(_ context.Context, postID uuid.UUID, title string) error {
	mp, err := s.get(postID)
	if err != nil {
		return err
	}
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if mp.post.Title != nil {
		return ErrTitleAlreadySet
	}
	mp.post.Title = &title
	mp.post.UpdatedAt = s.now()
	return nil
}

// SetAuthor overwrites the author unconditionally.
func (s *MemoryStore) SetAuthor(_ context.Context, postID uuid.UUID, author string) error {
	mp, err := s.get(postID)
	if err != nil {
		return err
	}
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.post.Author = &author
	mp.post.UpdatedAt = s.now()
	return nil
}

// UpdateStatus moves the post from one status to another.
func (s *MemoryStore) UpdateStatus(_ context.Context, postID uuid.UUID, from, to models.PostStatus) error {
	mp, err := s.get(postID)
	if err != nil {
		return err
	}
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if mp.post.Status != from {
		return ErrStatusChanged
	}
	mp.post.Status = to
	mp.post.UpdatedAt = s.now()
	return nil
}
