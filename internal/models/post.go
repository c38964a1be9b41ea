// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package models defines the data structures that map to database tables
// and provides the core types used throughout the application.
package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PostStatus represents the publishing state of a blog post.
type PostStatus string

const (
	PostStatusDraft     PostStatus = "draft"
	PostStatusPublished PostStatus = "published"
	PostStatusArchived  PostStatus = "archived"
)

// statusTransition is a (current, target) pair in the lifecycle table.
type statusTransition struct {
	from PostStatus
	to   PostStatus
}

// allowedTransitions is the complete post lifecycle. Anything absent is
// rejected, including no-op moves such as published → published.
var allowedTransitions = map[statusTransition]bool{
	{PostStatusDraft, PostStatusPublished}:    true,
	{PostStatusPublished, PostStatusArchived}: true,
}

// ParsePostStatus converts a raw status string into a PostStatus.
func ParsePostStatus(s string) (PostStatus, error) {
	status := PostStatus(s)
	if !status.Valid() {
		return "", fmt.Errorf("unknown post status %q", s)
	}
	return status, nil
}

// Valid reports whether s is one of the known lifecycle states.
func (s PostStatus) Valid() bool {
	switch s {
	case PostStatusDraft, PostStatusPublished, PostStatusArchived:
		return true
	}
	return false
}

// CanTransitionTo reports whether the lifecycle allows moving from s to target.
func (s PostStatus) CanTransitionTo(target PostStatus) bool {
	return allowedTransitions[statusTransition{from: s, to: target}]
}

// IsTerminal returns true for states with no outgoing transition.
func (s PostStatus) IsTerminal() bool {
	for t := range allowedTransitions {
		if t.from == s {
			return false
		}
	}
	return true
}

// Post is a blog post record. Content lives in the revision ledger; the post
// only points at its newest revision through HeadRevisionID.
type Post struct {
	ID             uuid.UUID       `json:"post_id"`
	Status         PostStatus      `json:"status"`
	Title          *string         `json:"title"`
	Author         *string         `json:"author"`
	Intent         json.RawMessage `json:"intent,omitempty"`
	HeadRevisionID int             `json:"head_revision_id"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// IsDraft returns true if the post is still in draft status.
func (p *Post) IsDraft() bool {
	return p.Status == PostStatusDraft
}

// Clone returns a deep copy so callers cannot alias stored state.
func (p Post) Clone() Post {
	out := p
	if p.Title != nil {
		t := *p.Title
		out.Title = &t
	}
	if p.Author != nil {
		a := *p.Author
		out.Author = &a
	}
	if p.Intent != nil {
		out.Intent = append(json.RawMessage(nil), p.Intent...)
	}
	return out
}
