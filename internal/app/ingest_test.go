package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/lu-zhengda/mailpilot/internal/auth"
	"github.com/lu-zhengda/mailpilot/internal/domain"
	"github.com/lu-zhengda/mailpilot/internal/embedding"
	"github.com/lu-zhengda/mailpilot/internal/journal"
	"github.com/lu-zhengda/mailpilot/internal/store"
)

func mailboxWith(n int) *fakeMailbox {
	base := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	box := &fakeMailbox{}
	for i := 0; i < n; i++ {
		labels := []string{domain.LabelInbox}
		if i%2 == 0 {
			labels = append(labels, domain.LabelUnread)
		}
		if i == 1 {
			labels = append(labels, domain.LabelImportant)
		}
		box.msgs = append(box.msgs, domain.Message{
			ExternalMessageID: fmt.Sprintf("gm-%d", i),
			ThreadID:          fmt.Sprintf("th-%d", i),
			SenderEmail:       "bob@example.com",
			Subject:           fmt.Sprintf("Update %d", i),
			Snippet:           "weekly numbers",
			DateSent:          base.Add(time.Duration(i) * time.Hour),
			Labels:            labels,
		})
	}
	return box
}

func TestIngestor_Run(t *testing.T) {
	db := newTestDB(t)
	acct := newTestAccount(t, db, "u1", "me@example.com")
	box := mailboxWith(3)
	syncedAt := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

	in := NewIngestor(db, fakeOpener{box: box}, nil, journal.New(db, nil), 100, nil)
	in.Now = fixedClock(syncedAt)
	ctx := context.Background()

	res, err := in.Run(ctx, acct.ID, IngestOptions{})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if !res.Success || len(res.Errors) != 0 {
		t.Errorf("Success = %v, Errors = %v", res.Success, res.Errors)
	}
	if res.EmailsFetched != 3 || res.EmailsProcessed != 3 || res.EmailsStored != 3 {
		t.Errorf("counts = %d/%d/%d, want 3/3/3", res.EmailsFetched, res.EmailsProcessed, res.EmailsStored)
	}
	if len(res.StoredIDs) != 3 {
		t.Fatalf("StoredIDs = %v, want 3 ids", res.StoredIDs)
	}

	first, err := db.GetMessage(ctx, res.StoredIDs[0])
	if err != nil {
		t.Fatal(err)
	}
	if first.IsRead {
		t.Error("message with UNREAD label stored as read")
	}
	if first.MessageUUID == "" || first.AccountID != acct.ID || first.FolderName != domain.LabelInbox {
		t.Errorf("stored message = %+v", first)
	}
	second, _ := db.GetMessage(ctx, res.StoredIDs[1])
	if !second.IsRead || !second.IsImportant {
		t.Errorf("second message IsRead = %v, IsImportant = %v, want true, true", second.IsRead, second.IsImportant)
	}

	got, _ := db.GetAccount(ctx, acct.ID)
	if got.SyncCursor != "2025-06-01T10:00:00Z" {
		t.Errorf("SyncCursor = %q, want newest date_sent", got.SyncCursor)
	}
	if got.LastSyncAt == nil || !got.LastSyncAt.Equal(syncedAt) {
		t.Errorf("LastSyncAt = %v, want %v", got.LastSyncAt, syncedAt)
	}

	logs, _ := db.ListLogs(ctx, domain.EventSync, 10)
	if len(logs) != 1 {
		t.Errorf("sync logs = %d, want 1", len(logs))
	}
}

func TestIngestor_RunDeduplicates(t *testing.T) {
	db := newTestDB(t)
	acct := newTestAccount(t, db, "u1", "me@example.com")
	box := mailboxWith(2)
	in := NewIngestor(db, fakeOpener{box: box}, nil, nil, 100, nil)
	ctx := context.Background()

	if _, err := in.Run(ctx, acct.ID, IngestOptions{}); err != nil {
		t.Fatal(err)
	}
	res, err := in.Run(ctx, acct.ID, IngestOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if res.EmailsStored != 0 || res.Duplicates != 2 || !res.Success {
		t.Errorf("second run = %+v, want 0 stored and 2 duplicates", res)
	}
	if q := box.queries[len(box.queries)-1]; !strings.HasPrefix(q, "after:") {
		t.Errorf("incremental query = %q, want after: cursor", q)
	}

	if _, err := in.Run(ctx, acct.ID, IngestOptions{Full: true}); err != nil {
		t.Fatal(err)
	}
	if q := box.queries[len(box.queries)-1]; q != "" {
		t.Errorf("full sync query = %q, want empty", q)
	}
}

func TestIngestor_CursorNeverMovesBack(t *testing.T) {
	db := newTestDB(t)
	acct := newTestAccount(t, db, "u1", "me@example.com")
	in := NewIngestor(db, fakeOpener{box: mailboxWith(3)}, nil, nil, 100, nil)
	ctx := context.Background()

	if _, err := in.Run(ctx, acct.ID, IngestOptions{}); err != nil {
		t.Fatal(err)
	}
	// Only the oldest message is seen by these runs.
	for _, opts := range []IngestOptions{
		{Full: true, MaxResults: 1},
		{Query: "from:bob@example.com", MaxResults: 1},
	} {
		if _, err := in.Run(ctx, acct.ID, opts); err != nil {
			t.Fatal(err)
		}
		got, _ := db.GetAccount(ctx, acct.ID)
		if got.SyncCursor != "2025-06-01T10:00:00Z" {
			t.Errorf("%+v: SyncCursor = %q, want 2025-06-01T10:00:00Z", opts, got.SyncCursor)
		}
	}
}

func TestAdvancesCursor(t *testing.T) {
	at := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		stored string
		newest time.Time
		want   bool
	}{
		{"", at, true},
		{"garbage", at, true},
		{"2025-06-01T09:00:00Z", at, true},
		{"2025-06-01T10:00:00Z", at, false},
		{"2025-06-01T11:00:00Z", at, false},
		{"", time.Time{}, false},
	}
	for _, tt := range tests {
		if got := advancesCursor(tt.stored, tt.newest); got != tt.want {
			t.Errorf("advancesCursor(%q, %v) = %v, want %v", tt.stored, tt.newest, got, tt.want)
		}
	}
}

func TestIngestor_RunPagesAndCaps(t *testing.T) {
	db := newTestDB(t)
	acct := newTestAccount(t, db, "u1", "me@example.com")
	box := mailboxWith(250)
	in := NewIngestor(db, fakeOpener{box: box}, nil, nil, 100, nil)

	res, err := in.Run(context.Background(), acct.ID, IngestOptions{MaxResults: 120, Full: true})
	if err != nil {
		t.Fatal(err)
	}
	if res.EmailsFetched != 120 {
		t.Errorf("EmailsFetched = %d, want 120", res.EmailsFetched)
	}
	if len(box.queries) != 2 {
		t.Errorf("list calls = %d, want 2 pages", len(box.queries))
	}
}

func TestIngestor_RunCollectsMessageErrors(t *testing.T) {
	db := newTestDB(t)
	acct := newTestAccount(t, db, "u1", "me@example.com")
	box := mailboxWith(3)
	box.failIDs = map[string]bool{"gm-1": true}
	in := NewIngestor(db, fakeOpener{box: box}, nil, nil, 100, nil)

	res, err := in.Run(context.Background(), acct.ID, IngestOptions{})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if res.Success {
		t.Error("Success = true, want false with a failed fetch")
	}
	if len(res.Errors) != 1 || !strings.Contains(res.Errors[0], "gm-1") {
		t.Errorf("Errors = %v", res.Errors)
	}
	if res.EmailsStored != 2 {
		t.Errorf("EmailsStored = %d, want 2", res.EmailsStored)
	}
}

func TestIngestor_RunSetupErrors(t *testing.T) {
	db := newTestDB(t)
	acct := newTestAccount(t, db, "u1", "me@example.com")
	ctx := context.Background()

	in := NewIngestor(db, fakeOpener{box: mailboxWith(1)}, nil, nil, 100, nil)
	if _, err := in.Run(ctx, 999, IngestOptions{}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("unknown account error = %v, want ErrNotFound", err)
	}

	opener := fakeOpener{err: errors.New("token revoked")}
	if _, err := NewIngestor(db, opener, nil, nil, 100, nil).Run(ctx, acct.ID, IngestOptions{}); err == nil {
		t.Error("Run() with failing provider returned nil error")
	}

	if err := db.SetAccountActive(ctx, acct.ID, false); err != nil {
		t.Fatal(err)
	}
	if _, err := in.Run(ctx, acct.ID, IngestOptions{}); !errors.Is(err, auth.ErrAccountInactive) {
		t.Errorf("inactive account error = %v, want ErrAccountInactive", err)
	}
}

func TestIngestor_RunEmbeds(t *testing.T) {
	db := newTestDB(t)
	acct := newTestAccount(t, db, "u1", "me@example.com")
	emb := embedding.NewService(db, db.Vectors("email_vectors"), embedding.NewHashEngine(64), "email_vectors", 10, nil)
	in := NewIngestor(db, fakeOpener{box: mailboxWith(2)}, emb, nil, 100, nil)

	res, err := in.Run(context.Background(), acct.ID, IngestOptions{Embed: true})
	if err != nil {
		t.Fatal(err)
	}
	if res.Embedding == nil || res.Embedding.Succeeded != 2 {
		t.Errorf("Embedding = %+v, want 2 succeeded", res.Embedding)
	}
	stats, _ := db.EmbeddingStats(context.Background())
	if stats.ProcessedMessages != 2 {
		t.Errorf("ProcessedMessages = %d, want 2", stats.ProcessedMessages)
	}
}

func TestCursorQuery(t *testing.T) {
	tests := []struct {
		cursor string
		want   string
	}{
		{"", ""},
		{"garbage", ""},
		{"2025-06-01T10:00:00Z", "after:1748772000"},
	}
	for _, tt := range tests {
		if got := cursorQuery(tt.cursor); got != tt.want {
			t.Errorf("cursorQuery(%q) = %q, want %q", tt.cursor, got, tt.want)
		}
	}
}
