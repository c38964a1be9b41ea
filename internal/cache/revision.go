// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// revision.go provides a Valkey-backed cache of committed revisions.
// Revisions never change once appended, so entries are never invalidated;
// they simply expire after the TTL.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"draftledger/internal/models"
)

const (
	// revisionKeyPrefix is the Valkey key prefix for cached revisions.
	revisionKeyPrefix = "revision:"

	// DefaultRevisionTTL is how long a revision stays cached.
	DefaultRevisionTTL = time.Hour
)

// RevisionCache stores committed revisions in Valkey.
type RevisionCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRevisionCache creates a revision cache backed by the given Valkey client.
func NewRevisionCache(client *redis.Client, ttl time.Duration) *RevisionCache {
	if ttl == 0 {
		ttl = DefaultRevisionTTL
	}
	return &RevisionCache{client: client, ttl: ttl}
}

// RevisionKey returns the cache key for one revision of a post.
func RevisionKey(postID uuid.UUID, revisionID int) string {
	return fmt.Sprintf("%s%s:%d", revisionKeyPrefix, postID, revisionID)
}

// Get returns a cached revision. Errors are logged and reported as a miss.
func (rc *RevisionCache) Get(ctx context.Context, postID uuid.UUID, revisionID int) (*models.Revision, bool) {
	key := RevisionKey(postID, revisionID)
	val, err := rc.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		slog.Warn("revision cache get error", "key", key, "error", err)
		return nil, false
	}

	var rev models.Revision
	if err := json.Unmarshal(val, &rev); err != nil {
		slog.Warn("revision cache decode error, dropping entry", "key", key, "error", err)
		if err := rc.client.Del(ctx, key).Err(); err != nil {
			slog.Warn("revision cache delete error", "key", key, "error", err)
		}
		return nil, false
	}
	slog.Debug("revision cache hit", "key", key)
	return &rev, true
}

// Set stores a revision with the configured TTL.
func (rc *RevisionCache) Set(ctx context.Context, rev *models.Revision) {
	key := RevisionKey(rev.PostID, rev.ID)
	data, err := json.Marshal(rev)
	if err != nil {
		slog.Warn("revision cache encode error", "key", key, "error", err)
		return
	}
	if err := rc.client.Set(ctx, key, data, rc.ttl).Err(); err != nil {
		slog.Warn("revision cache set error", "key", key, "error", err)
	}
}
