package database

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"draftledger/internal/models"
)

// welcomeContent is the first revision of the development sample post.
const welcomeContent = `# Welcome to draftledger

Every save appends a revision; nothing is overwritten.

Try a policy edit on this draft, then restore revision 1 from the history.
`

// Seed creates a sample draft post for development. It does nothing when
// any post already exists.
func Seed(db *sql.DB) error {
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM posts").Scan(&count); err != nil {
		return fmt.Errorf("seed check posts: %w", err)
	}
	if count > 0 {
		slog.Info("database already seeded, skipping")
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("seed begin: %w", err)
	}
	defer tx.Rollback()

	id := uuid.New()
	if _, err := tx.Exec(`
		INSERT INTO posts (id, status, author, head_revision_id)
		VALUES ($1, $2, $3, 1)
	`, id, models.PostStatusDraft, "draftledger"); err != nil {
		return fmt.Errorf("seed insert post: %w", err)
	}
	if _, err := tx.Exec(`
		INSERT INTO post_revisions (post_id, revision_id, parent_revision_id, content,
			content_digest, delta_type, delta_payload)
		VALUES ($1, 1, NULL, $2, $3, $4, '{}'::jsonb)
	`, id, welcomeContent, models.Digest(welcomeContent), models.DeltaCreate); err != nil {
		return fmt.Errorf("seed insert revision: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("seed commit: %w", err)
	}

	slog.Info("database seeded with sample post", "post_id", id)
	return nil
}
