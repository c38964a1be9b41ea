// store_test.go provides the shared test database helper and a contract
// suite that runs against both the PostgreSQL and in-memory stores.
// PostgreSQL tests are skipped if the database is not available.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"draftledger/internal/database"
	"draftledger/internal/models"
)

// testDSN returns the PostgreSQL connection string for testing.
// Uses environment variables with defaults matching docker-compose.yml.
func testDSN() string {
	host := envOr("POSTGRES_HOST", "localhost")
	port := envOr("POSTGRES_PORT", "5432")
	user := envOr("POSTGRES_USER", "draftledger")
	pass := envOr("POSTGRES_PASSWORD", "changeme")
	name := envOr("POSTGRES_DB", "draftledger")
	return "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + name + "?sslmode=disable"
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// testDB opens a connection to the test database and runs migrations.
// If the database is unavailable, the test is skipped. A cleanup
// function is registered to close the connection when the test finishes.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("pgx", testDSN())
	if err != nil {
		t.Skipf("skipping integration test: cannot open DB: %v", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		t.Skipf("skipping integration test: DB not reachable: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

// cleanPosts removes test posts; revisions cascade. Call in t.Cleanup().
func cleanPosts(t *testing.T, db *sql.DB, ids ...uuid.UUID) {
	t.Helper()
	for _, id := range ids {
		db.Exec("DELETE FROM posts WHERE id = $1", id)
	}
}

// repository is the method set both stores share.
type repository interface {
	CreatePost(ctx context.Context, np NewPost) (*models.Post, *models.Revision, error)
	FindPost(ctx context.Context, id uuid.UUID) (*models.Post, error)
	ListPosts(ctx context.Context, status models.PostStatus) ([]models.Post, error)
	Commit(ctx context.Context, req CommitRequest) (*models.Revision, error)
	ListRevisions(ctx context.Context, postID uuid.UUID) ([]models.Revision, error)
	FindRevision(ctx context.Context, postID uuid.UUID, revisionID int) (*models.Revision, error)
	SetTitleOnce(ctx context.Context, postID uuid.UUID, title string) error
	SetAuthor(ctx context.Context, postID uuid.UUID, author string) error
	UpdateStatus(ctx context.Context, postID uuid.UUID, from, to models.PostStatus) error
}

var (
	_ repository = (*PostStore)(nil)
	_ repository = (*MemoryStore)(nil)
)

// runRepositoryContract exercises ledger semantics against any store.
// track registers a created post for cleanup.
func runRepositoryContract(t *testing.T, repo repository, track func(uuid.UUID)) {
	ctx := context.Background()

	create := func(t *testing.T, content string) *models.Post {
		t.Helper()
		id := uuid.New()
		track(id)
		author := "Ada"
		p, rev, err := repo.CreatePost(ctx, NewPost{
			ID:      id,
			Author:  &author,
			Intent:  json.RawMessage(`{"structural_intent":{"document_goal":"test"}}`),
			Content: content,
			Payload: models.DeltaPayload{ChangedChunks: []int{0}},
		})
		if err != nil {
			t.Fatalf("CreatePost: %v", err)
		}
		if p.Status != models.PostStatusDraft || p.HeadRevisionID != 1 {
			t.Fatalf("new post = %+v, want draft at head 1", p)
		}
		if rev.ID != 1 || rev.ParentID != nil || rev.DeltaType != models.DeltaCreate {
			t.Fatalf("first revision = %+v", rev)
		}
		if rev.ContentDigest != models.Digest(content) {
			t.Errorf("first revision digest mismatch")
		}
		return p
	}

	commit := func(t *testing.T, id uuid.UUID, base int, content string, typ models.DeltaType) *models.Revision {
		t.Helper()
		rev, err := repo.Commit(ctx, CommitRequest{
			PostID:         id,
			BaseRevisionID: base,
			Content:        content,
			Delta:          models.Delta{Type: typ},
		})
		if err != nil {
			t.Fatalf("Commit(base=%d): %v", base, err)
		}
		return rev
	}

	t.Run("monotonic ledger", func(t *testing.T) {
		p := create(t, "v1")
		for i := 1; i <= 4; i++ {
			rev := commit(t, p.ID, i, "v"+string(rune('1'+i)), models.DeltaContentEdit)
			if rev.ID != i+1 || rev.ParentID == nil || *rev.ParentID != i {
				t.Fatalf("revision %d = %+v", i+1, rev)
			}
		}

		revs, err := repo.ListRevisions(ctx, p.ID)
		if err != nil {
			t.Fatalf("ListRevisions: %v", err)
		}
		if len(revs) != 5 {
			t.Fatalf("ledger length = %d, want 5", len(revs))
		}
		for i, r := range revs {
			if r.ID != i+1 {
				t.Errorf("revs[%d].ID = %d, want %d", i, r.ID, i+1)
			}
		}

		got, err := repo.FindPost(ctx, p.ID)
		if err != nil {
			t.Fatalf("FindPost: %v", err)
		}
		if got.HeadRevisionID != 5 {
			t.Errorf("head = %d, want 5", got.HeadRevisionID)
		}
	})

	t.Run("stale base is rejected without writing", func(t *testing.T) {
		p := create(t, "base")
		commit(t, p.ID, 1, "second", models.DeltaContentEdit)

		_, err := repo.Commit(ctx, CommitRequest{PostID: p.ID, BaseRevisionID: 1, Content: "lost", Delta: models.Delta{Type: models.DeltaContentEdit}})
		if !errors.Is(err, ErrStaleHead) {
			t.Fatalf("Commit with stale base: %v, want ErrStaleHead", err)
		}
		revs, _ := repo.ListRevisions(ctx, p.ID)
		if len(revs) != 2 {
			t.Errorf("ledger length after stale commit = %d, want 2", len(revs))
		}
	})

	t.Run("status precondition", func(t *testing.T) {
		p := create(t, "x")
		if err := repo.UpdateStatus(ctx, p.ID, models.PostStatusDraft, models.PostStatusPublished); err != nil {
			t.Fatalf("UpdateStatus: %v", err)
		}
		_, err := repo.Commit(ctx, CommitRequest{
			PostID: p.ID, BaseRevisionID: 1, Content: "y",
			Delta:           models.Delta{Type: models.DeltaPolicyEdit},
			AllowedStatuses: []models.PostStatus{models.PostStatusDraft},
		})
		if !errors.Is(err, ErrStatusChanged) {
			t.Errorf("Commit on published post: %v, want ErrStatusChanged", err)
		}
	})

	t.Run("concurrent commits on one base", func(t *testing.T) {
		p := create(t, "start")
		const writers = 8
		var wg sync.WaitGroup
		errs := make([]error, writers)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, errs[i] = repo.Commit(ctx, CommitRequest{
					PostID: p.ID, BaseRevisionID: 1, Content: "writer",
					Delta: models.Delta{Type: models.DeltaContentEdit},
				})
			}()
		}
		wg.Wait()

		wins := 0
		for _, err := range errs {
			switch {
			case err == nil:
				wins++
			case !errors.Is(err, ErrStaleHead):
				t.Errorf("unexpected error: %v", err)
			}
		}
		if wins != 1 {
			t.Errorf("%d commits won the race, want exactly 1", wins)
		}
		revs, _ := repo.ListRevisions(ctx, p.ID)
		if len(revs) != 2 {
			t.Errorf("ledger length = %d, want 2", len(revs))
		}
	})

	t.Run("payload round trip", func(t *testing.T) {
		p := create(t, "a")
		target := 1
		rev, err := repo.Commit(ctx, CommitRequest{
			PostID: p.ID, BaseRevisionID: 1, Content: "a",
			Delta: models.Delta{Type: models.DeltaRevertCopy, Payload: models.DeltaPayload{RevertedToRevisionID: &target}},
		})
		if err != nil {
			t.Fatalf("Commit: %v", err)
		}
		got, err := repo.FindRevision(ctx, p.ID, rev.ID)
		if err != nil {
			t.Fatalf("FindRevision: %v", err)
		}
		if got.DeltaPayload.RevertedToRevisionID == nil || *got.DeltaPayload.RevertedToRevisionID != 1 {
			t.Errorf("reverted_to_revision_id = %v", got.DeltaPayload.RevertedToRevisionID)
		}
	})

	t.Run("returned values are copies", func(t *testing.T) {
		p := create(t, "immutable")
		rev, _ := repo.FindRevision(ctx, p.ID, 1)
		rev.Content = "tampered"
		rev.DeltaPayload.ChangedChunks[0] = 99

		again, _ := repo.FindRevision(ctx, p.ID, 1)
		if again.Content != "immutable" || again.DeltaPayload.ChangedChunks[0] != 0 {
			t.Errorf("stored revision changed through returned value: %+v", again)
		}
	})

	t.Run("title is set once", func(t *testing.T) {
		p := create(t, "t")
		if err := repo.SetTitleOnce(ctx, p.ID, "A"); err != nil {
			t.Fatalf("first SetTitleOnce: %v", err)
		}
		if err := repo.SetTitleOnce(ctx, p.ID, "B"); !errors.Is(err, ErrTitleAlreadySet) {
			t.Fatalf("second SetTitleOnce: %v, want ErrTitleAlreadySet", err)
		}
		got, _ := repo.FindPost(ctx, p.ID)
		if got.Title == nil || *got.Title != "A" {
			t.Errorf("title = %v, want A", got.Title)
		}
	})

	t.Run("author overwrites", func(t *testing.T) {
		p := create(t, "t")
		if err := repo.SetAuthor(ctx, p.ID, "B"); err != nil {
			t.Fatalf("SetAuthor: %v", err)
		}
		if err := repo.SetAuthor(ctx, p.ID, "C"); err != nil {
			t.Fatalf("SetAuthor: %v", err)
		}
		got, _ := repo.FindPost(ctx, p.ID)
		if got.Author == nil || *got.Author != "C" {
			t.Errorf("author = %v, want C", got.Author)
		}
	})

	t.Run("status compare and swap", func(t *testing.T) {
		p := create(t, "s")
		if err := repo.UpdateStatus(ctx, p.ID, models.PostStatusPublished, models.PostStatusArchived); !errors.Is(err, ErrStatusChanged) {
			t.Errorf("UpdateStatus from wrong status: %v, want ErrStatusChanged", err)
		}
		got, _ := repo.FindPost(ctx, p.ID)
		if got.Status != models.PostStatusDraft {
			t.Errorf("status = %s, want draft", got.Status)
		}
	})

	t.Run("list posts by status", func(t *testing.T) {
		p := create(t, "listed")
		repo.UpdateStatus(ctx, p.ID, models.PostStatusDraft, models.PostStatusPublished)

		published, err := repo.ListPosts(ctx, models.PostStatusPublished)
		if err != nil {
			t.Fatalf("ListPosts: %v", err)
		}
		found := false
		for _, lp := range published {
			if lp.Status != models.PostStatusPublished {
				t.Errorf("ListPosts(published) returned %s post", lp.Status)
			}
			if lp.ID == p.ID {
				found = true
			}
		}
		if !found {
			t.Error("published post missing from ListPosts")
		}
	})

	t.Run("not found", func(t *testing.T) {
		missing := uuid.New()
		if _, err := repo.FindPost(ctx, missing); !errors.Is(err, ErrNotFound) {
			t.Errorf("FindPost: %v", err)
		}
		if _, err := repo.ListRevisions(ctx, missing); !errors.Is(err, ErrNotFound) {
			t.Errorf("ListRevisions: %v", err)
		}
		if _, err := repo.Commit(ctx, CommitRequest{PostID: missing, BaseRevisionID: 1}); !errors.Is(err, ErrNotFound) {
			t.Errorf("Commit: %v", err)
		}
		if err := repo.SetTitleOnce(ctx, missing, "x"); !errors.Is(err, ErrNotFound) {
			t.Errorf("SetTitleOnce: %v", err)
		}
		if err := repo.SetAuthor(ctx, missing, "x"); !errors.Is(err, ErrNotFound) {
			t.Errorf("SetAuthor: %v", err)
		}
		if err := repo.UpdateStatus(ctx, missing, models.PostStatusDraft, models.PostStatusPublished); !errors.Is(err, ErrNotFound) {
			t.Errorf("UpdateStatus: %v", err)
		}

		p := create(t, "one")
		if _, err := repo.FindRevision(ctx, p.ID, 2); !errors.Is(err, ErrNotFound) {
			t.Errorf("FindRevision beyond head: %v", err)
		}
		if _, err := repo.FindRevision(ctx, p.ID, 0); !errors.Is(err, ErrNotFound) {
			t.Errorf("FindRevision(0): %v", err)
		}
	})
}
