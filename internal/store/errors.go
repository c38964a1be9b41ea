// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package store

import (
	"encoding/json"
	"errors"
	"slices"

	"github.com/google/uuid"

	"draftledger/internal/models"
)

var (
	// ErrNotFound is returned when a post or revision does not exist.
	ErrNotFound = errors.New("not found")
	// ErrStaleHead is returned by Commit when the post's head moved past
	// the base revision the caller read.
	ErrStaleHead = errors.New("head revision moved")
	// ErrTitleAlreadySet is returned by SetTitleOnce when a title exists.
	ErrTitleAlreadySet = errors.New("title already set")
	// ErrStatusChanged is returned when the post is not in the status the
	// caller expected.
	ErrStatusChanged = errors.New("post status changed")
)

// NewPost describes a post to create together with its first revision.
type NewPost struct {
	ID      uuid.UUID
	Author  *string
	Intent  json.RawMessage
	Content string
	Payload models.DeltaPayload
}

// CommitRequest appends one revision to a post's ledger. The commit only
// succeeds while the post's head equals BaseRevisionID and, when
// AllowedStatuses is non-empty, its status is one of them.
type CommitRequest struct {
	PostID          uuid.UUID
	BaseRevisionID  int
	Content         string
	Delta           models.Delta
	AllowedStatuses []models.PostStatus
}

func (r CommitRequest) statusAllowed(s models.PostStatus) bool {
	return len(r.AllowedStatuses) == 0 || slices.Contains(r.AllowedStatuses, s)
}
