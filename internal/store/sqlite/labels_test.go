package sqlite

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/lu-zhengda/mailpilot/internal/domain"
	"github.com/lu-zhengda/mailpilot/internal/store"
)

func TestSetRead(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	acct := seedAccount(t, db, "u1", "me@gmail.com")
	id := seedMessage(t, db, acct, "gm-1", "Invoice", "due friday", time.Now(), domain.LabelInbox, domain.LabelUnread)

	if err := db.SetRead(ctx, id, true); err != nil {
		t.Fatalf("SetRead(true) error: %v", err)
	}
	got, err := db.GetMessage(ctx, id)
	if err != nil {
		t.Fatalf("GetMessage() error: %v", err)
	}
	if !got.IsRead {
		t.Error("IsRead = false, want true")
	}
	if slices.Contains(got.Labels, domain.LabelUnread) {
		t.Errorf("Labels = %v, want no UNREAD", got.Labels)
	}

	if err := db.SetRead(ctx, id, false); err != nil {
		t.Fatalf("SetRead(false) error: %v", err)
	}
	got, err = db.GetMessage(ctx, id)
	if err != nil {
		t.Fatalf("GetMessage() error: %v", err)
	}
	if got.IsRead {
		t.Error("IsRead = true, want false")
	}
	if !slices.Equal(got.Labels, []string{domain.LabelInbox, domain.LabelUnread}) {
		t.Errorf("Labels = %v, want [INBOX UNREAD]", got.Labels)
	}
}

func TestSetRead_NotFound(t *testing.T) {
	db := newTestDB(t)
	if err := db.SetRead(context.Background(), 999, true); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("SetRead() error = %v, want ErrNotFound", err)
	}
}
