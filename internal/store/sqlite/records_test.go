package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lu-zhengda/mailpilot/internal/domain"
	"github.com/lu-zhengda/mailpilot/internal/store"
)

func TestImportance_SaveAndLatest(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	acct := seedAccount(t, db, "u1", "me@example.com")
	msg := seedMessage(t, db, acct, "m1", "urgent", "", time.Now())

	older := &domain.ImportanceScore{
		MessageID: msg, OverallScore: 0.2, ModelUsed: "heuristic-v1",
		CalculatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	newer := &domain.ImportanceScore{
		MessageID: msg, OverallScore: 0.9, UrgencyScore: 1, SenderImportance: 0.5,
		Factors: map[string]float64{"urgency": 1}, Reasons: []string{"mentions urgent"},
		ModelUsed: "heuristic-v1", CalculatedAt: time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
	}
	for _, sc := range []*domain.ImportanceScore{older, newer} {
		if _, err := db.SaveImportance(ctx, sc); err != nil {
			t.Fatalf("SaveImportance() error: %v", err)
		}
	}

	got, err := db.LatestImportance(ctx, msg)
	if err != nil {
		t.Fatalf("LatestImportance() error: %v", err)
	}
	if got.OverallScore != 0.9 {
		t.Errorf("OverallScore = %v, want 0.9", got.OverallScore)
	}
	if got.Factors["urgency"] != 1 || len(got.Reasons) != 1 {
		t.Errorf("factors = %v reasons = %v", got.Factors, got.Reasons)
	}

	if _, err := db.LatestImportance(ctx, msg+100); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("LatestImportance() error = %v, want ErrNotFound", err)
	}
}

func TestDigest_UpsertReplacesSameDay(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	d := &domain.DailyDigest{
		UserID: "u1", DigestDate: "2025-06-01", SummaryText: "first",
		TotalEmails: 3, ActionItems: []string{"reply to Bob"},
		PendingReplies: []domain.PendingReply{{MessageID: 1, Subject: "Q?", SenderEmail: "bob@example.com"}},
	}
	id, err := db.UpsertDigest(ctx, d)
	if err != nil {
		t.Fatalf("UpsertDigest() error: %v", err)
	}

	id2, err := db.UpsertDigest(ctx, &domain.DailyDigest{UserID: "u1", DigestDate: "2025-06-01", SummaryText: "second", TotalEmails: 5})
	if err != nil {
		t.Fatalf("UpsertDigest() second error: %v", err)
	}
	if id2 != id {
		t.Errorf("second upsert id = %d, want %d", id2, id)
	}

	got, err := db.GetDigest(ctx, "u1", "2025-06-01")
	if err != nil {
		t.Fatalf("GetDigest() error: %v", err)
	}
	if got.SummaryText != "second" || got.TotalEmails != 5 {
		t.Errorf("digest = %q / %d, want second / 5", got.SummaryText, got.TotalEmails)
	}
	if got.DigestUUID != d.DigestUUID {
		t.Errorf("DigestUUID changed on upsert: %q != %q", got.DigestUUID, d.DigestUUID)
	}

	if _, err := db.GetDigest(ctx, "u1", "2025-06-02"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetDigest(other day) error = %v, want ErrNotFound", err)
	}
}

func TestSystemLogs(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	acct := int64(7)

	logs := []*domain.SystemLog{
		{Level: "INFO", EventType: domain.EventOAuth, Message: "connected", UserID: "u1", AccountID: &acct},
		{Level: "ERROR", EventType: domain.EventSync, Message: "failed", Metadata: map[string]any{"errors": float64(2)}},
		{Level: "INFO", EventType: domain.EventSync, Message: "ok", ExecutionTimeMS: 12.5},
	}
	for _, l := range logs {
		if err := db.InsertLog(ctx, l); err != nil {
			t.Fatalf("InsertLog() error: %v", err)
		}
	}

	sync, err := db.ListLogs(ctx, domain.EventSync, 10)
	if err != nil {
		t.Fatalf("ListLogs() error: %v", err)
	}
	if len(sync) != 2 {
		t.Fatalf("ListLogs(sync) = %d, want 2", len(sync))
	}
	if sync[0].Message != "ok" {
		t.Errorf("newest sync log = %q, want ok", sync[0].Message)
	}
	if sync[1].Metadata["errors"] != float64(2) {
		t.Errorf("metadata = %v", sync[1].Metadata)
	}

	all, _ := db.ListLogs(ctx, "", 0)
	if len(all) != 3 {
		t.Errorf("ListLogs(all) = %d, want 3", len(all))
	}
	oauth, _ := db.ListLogs(ctx, domain.EventOAuth, 1)
	if len(oauth) != 1 || oauth[0].AccountID == nil || *oauth[0].AccountID != 7 {
		t.Errorf("oauth log = %+v", oauth)
	}
}

func TestEmbeddings_UpsertAndStats(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	acct := seedAccount(t, db, "u1", "me@example.com")
	m1 := seedMessage(t, db, acct, "m1", "a", "b", time.Now())
	seedMessage(t, db, acct, "m2", "c", "d", time.Now())

	for _, field := range []string{domain.FieldSubject, domain.FieldSnippet} {
		if err := db.UpsertEmbedding(ctx, &domain.MessageEmbedding{
			MessageID: m1, FieldName: field, EmbeddingModel: "hash-256",
			VectorID: field + "-v1", Collection: "email_vectors", Dimensions: 256,
		}); err != nil {
			t.Fatalf("UpsertEmbedding() error: %v", err)
		}
	}
	// Re-embedding the same field replaces the vector reference.
	if err := db.UpsertEmbedding(ctx, &domain.MessageEmbedding{
		MessageID: m1, FieldName: domain.FieldSubject, EmbeddingModel: "hash-256",
		VectorID: "subject-v2", Collection: "email_vectors", Dimensions: 256,
	}); err != nil {
		t.Fatal(err)
	}
	_ = db.MarkProcessed(ctx, m1, "")

	list, err := db.ListEmbeddings(ctx, m1)
	if err != nil {
		t.Fatalf("ListEmbeddings() error: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("ListEmbeddings() = %d, want 2", len(list))
	}
	for _, e := range list {
		if e.FieldName == domain.FieldSubject && e.VectorID != "subject-v2" {
			t.Errorf("subject VectorID = %q, want subject-v2", e.VectorID)
		}
		if e.Version != domain.EmbeddingVersion {
			t.Errorf("Version = %q, want %q", e.Version, domain.EmbeddingVersion)
		}
	}

	st, err := db.EmbeddingStats(ctx)
	if err != nil {
		t.Fatalf("EmbeddingStats() error: %v", err)
	}
	if st.Total != 2 || st.ByModel["hash-256"] != 2 || st.ByField[domain.FieldSnippet] != 1 {
		t.Errorf("stats = %+v", st)
	}
	if st.ProcessedMessages != 1 || st.PendingMessages != 1 {
		t.Errorf("processed/pending = %d/%d, want 1/1", st.ProcessedMessages, st.PendingMessages)
	}
}
