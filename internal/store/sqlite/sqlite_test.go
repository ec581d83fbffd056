package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/lu-zhengda/mailpilot/internal/domain"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func seedAccount(t *testing.T, db *DB, userID, email string) int64 {
	t.Helper()
	id, err := db.UpsertAccount(context.Background(), &domain.Account{
		UserID:       userID,
		EmailAddress: email,
		RefreshToken: "enc-refresh",
	})
	if err != nil {
		t.Fatalf("seedAccount: %v", err)
	}
	return id
}

func seedMessage(t *testing.T, db *DB, accountID int64, externalID, subject, snippet string, sent time.Time, labels ...string) int64 {
	t.Helper()
	id, inserted, err := db.InsertMessage(context.Background(), &domain.Message{
		AccountID:         accountID,
		ExternalMessageID: externalID,
		SenderEmail:       "alice@example.com",
		SenderName:        "Alice",
		Subject:           subject,
		Snippet:           snippet,
		DateSent:          sent,
		Labels:            labels,
	})
	if err != nil {
		t.Fatalf("seedMessage(%s): %v", externalID, err)
	}
	if !inserted {
		t.Fatalf("seedMessage(%s): duplicate", externalID)
	}
	return id
}

func TestNew_CreatesTables(t *testing.T) {
	db := newTestDB(t)

	ctx := context.Background()
	rows, err := db.db.QueryContext(ctx, "SELECT name FROM sqlite_master WHERE type='table' ORDER BY name")
	if err != nil {
		t.Fatalf("query sqlite_master error: %v", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("scan error: %v", err)
		}
		tables = append(tables, name)
	}

	expected := []string{
		"daily_digests", "email_accounts", "email_drafts", "email_messages", "importance_scores",
		"message_embeddings", "message_labels", "messages_fts", "system_logs", "vector_collections", "vectors",
	}
	for _, exp := range expected {
		found := false
		for _, tbl := range tables {
			if tbl == exp {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("expected table %q not found in %v", exp, tables)
		}
	}
}

func TestNew_FileReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mail.db")
	db, err := New(path)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	seedAccount(t, db, "u1", "a@example.com")
	db.Close()

	db, err = New(path)
	if err != nil {
		t.Fatalf("New() reopen error: %v", err)
	}
	defer db.Close()
	accts, err := db.ListAccounts(context.Background(), "u1")
	if err != nil {
		t.Fatalf("ListAccounts() error: %v", err)
	}
	if len(accts) != 1 {
		t.Errorf("ListAccounts() = %d accounts after reopen, want 1", len(accts))
	}
}

func TestPing(t *testing.T) {
	db := newTestDB(t)
	if err := db.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error: %v", err)
	}
}
