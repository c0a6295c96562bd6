package repository

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"minerva-backend/internal/database"
)

// testPool connects to the database named by TEST_DATABASE_URL and applies
// the migrations. Tests needing Postgres are skipped when it is unset.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set; skipping database test")
	}

	pool, err := database.NewPostgresPool(url)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := database.RunMigrations(pool, "../../migrations"); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}
	return pool
}

func createTestUser(t *testing.T, pool *pgxpool.Pool) uuid.UUID {
	t.Helper()

	id := uuid.New()
	_, err := pool.Exec(context.Background(),
		`INSERT INTO users (id, email, full_name) VALUES ($1, $2, $3)`,
		id, fmt.Sprintf("%s@example.com", id), "Test User",
	)
	if err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}
	t.Cleanup(func() {
		pool.Exec(context.Background(), `DELETE FROM users WHERE id = $1`, id)
	})
	return id
}

func TestGetMessagesLimitKeepsMostRecent(t *testing.T) {
	pool := testPool(t)
	repo := NewMessageRepo(pool)
	ctx := context.Background()

	alice := createTestUser(t, pool)
	bob := createTestUser(t, pool)

	conversationID := uuid.New()
	_, err := pool.Exec(ctx,
		`INSERT INTO conversations (id, is_direct) VALUES ($1, TRUE)`, conversationID)
	if err != nil {
		t.Fatalf("Failed to create conversation: %v", err)
	}
	t.Cleanup(func() {
		pool.Exec(ctx, `DELETE FROM conversations WHERE id = $1`, conversationID)
	})
	for _, userID := range []uuid.UUID{alice, bob} {
		_, err = pool.Exec(ctx,
			`INSERT INTO conversation_participants (conversation_id, user_id) VALUES ($1, $2)`,
			conversationID, userID)
		if err != nil {
			t.Fatalf("Failed to add participant: %v", err)
		}
	}

	const total = 60
	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < total; i++ {
		_, err = pool.Exec(ctx,
			`INSERT INTO messages (conversation_id, sender_id, content, created_at)
			 VALUES ($1, $2, $3, $4)`,
			conversationID, alice, fmt.Sprintf("message %d", i+1), base.Add(time.Duration(i)*time.Second))
		if err != nil {
			t.Fatalf("Failed to insert message %d: %v", i+1, err)
		}
	}

	const limit = 50
	messages, err := repo.GetMessages(ctx, alice, conversationID, limit)
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	if len(messages) != limit {
		t.Fatalf("Expected %d messages, got %d", limit, len(messages))
	}

	// The cap drops the oldest messages, never the newest ones.
	if got, want := messages[0].Content, fmt.Sprintf("message %d", total-limit+1); got != want {
		t.Errorf("Expected first message %q, got %q", want, got)
	}
	if got, want := messages[limit-1].Content, fmt.Sprintf("message %d", total); got != want {
		t.Errorf("Expected last message %q, got %q", want, got)
	}
	for i := 1; i < len(messages); i++ {
		if messages[i].CreatedAt.Before(messages[i-1].CreatedAt) {
			t.Fatalf("Messages not in chronological order at index %d", i)
		}
	}
}

func TestGetMessagesUnlimitedReturnsAll(t *testing.T) {
	pool := testPool(t)
	repo := NewMessageRepo(pool)
	ctx := context.Background()

	alice := createTestUser(t, pool)

	conversationID := uuid.New()
	_, err := pool.Exec(ctx,
		`INSERT INTO conversations (id, is_direct) VALUES ($1, TRUE)`, conversationID)
	if err != nil {
		t.Fatalf("Failed to create conversation: %v", err)
	}
	t.Cleanup(func() {
		pool.Exec(ctx, `DELETE FROM conversations WHERE id = $1`, conversationID)
	})
	_, err = pool.Exec(ctx,
		`INSERT INTO conversation_participants (conversation_id, user_id) VALUES ($1, $2)`,
		conversationID, alice)
	if err != nil {
		t.Fatalf("Failed to add participant: %v", err)
	}

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		_, err = pool.Exec(ctx,
			`INSERT INTO messages (conversation_id, sender_id, content, created_at)
			 VALUES ($1, $2, $3, $4)`,
			conversationID, alice, fmt.Sprintf("message %d", i+1), base.Add(time.Duration(i)*time.Second))
		if err != nil {
			t.Fatalf("Failed to insert message %d: %v", i+1, err)
		}
	}

	messages, err := repo.GetMessages(ctx, alice, conversationID, 0)
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	if len(messages) != 5 {
		t.Fatalf("Expected 5 messages, got %d", len(messages))
	}
	if messages[0].Content != "message 1" || messages[4].Content != "message 5" {
		t.Errorf("Messages out of order: first %q, last %q", messages[0].Content, messages[4].Content)
	}
}
