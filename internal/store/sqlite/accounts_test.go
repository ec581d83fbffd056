package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lu-zhengda/mailpilot/internal/domain"
	"github.com/lu-zhengda/mailpilot/internal/store"
)

func TestUpsertAccount_CreateAndGet(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	expiry := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	acct := &domain.Account{
		UserID:        "user-1",
		EmailAddress:  "test@gmail.com",
		DisplayName:   "Test User",
		AccessToken:   "enc-access",
		RefreshToken:  "enc-refresh",
		TokenExpiry:   &expiry,
		GrantedScopes: []string{"openid", "email"},
	}
	id, err := db.UpsertAccount(ctx, acct)
	if err != nil {
		t.Fatalf("UpsertAccount() error: %v", err)
	}
	if id == 0 || acct.ID != id {
		t.Fatalf("UpsertAccount() id = %d, acct.ID = %d", id, acct.ID)
	}

	got, err := db.GetAccount(ctx, id)
	if err != nil {
		t.Fatalf("GetAccount() error: %v", err)
	}
	if got.EmailAddress != "test@gmail.com" {
		t.Errorf("EmailAddress = %q, want %q", got.EmailAddress, "test@gmail.com")
	}
	if got.Provider != domain.ProviderGmail {
		t.Errorf("Provider = %q, want %q", got.Provider, domain.ProviderGmail)
	}
	if !got.IsActive {
		t.Error("expected new account to be active")
	}
	if got.AccountUUID == "" {
		t.Error("expected AccountUUID to be generated")
	}
	if got.TokenExpiry == nil || !got.TokenExpiry.Equal(expiry) {
		t.Errorf("TokenExpiry = %v, want %v", got.TokenExpiry, expiry)
	}
	if len(got.GrantedScopes) != 2 || got.GrantedScopes[1] != "email" {
		t.Errorf("GrantedScopes = %v, want [openid email]", got.GrantedScopes)
	}
}

func TestUpsertAccount_ConflictReactivates(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	id := seedAccount(t, db, "user-1", "test@gmail.com")
	if err := db.SetAccountActive(ctx, id, false); err != nil {
		t.Fatalf("SetAccountActive() error: %v", err)
	}

	id2, err := db.UpsertAccount(ctx, &domain.Account{
		UserID:       "user-1",
		EmailAddress: "test@gmail.com",
		AccessToken:  "new-access",
		RefreshToken: "new-refresh",
	})
	if err != nil {
		t.Fatalf("UpsertAccount() error: %v", err)
	}
	if id2 != id {
		t.Errorf("UpsertAccount() id = %d, want existing %d", id2, id)
	}
	got, _ := db.GetAccount(ctx, id)
	if !got.IsActive {
		t.Error("expected account to be reactivated")
	}
	if got.RefreshToken != "new-refresh" {
		t.Errorf("RefreshToken = %q, want %q", got.RefreshToken, "new-refresh")
	}

	// Same address for another user is a separate account.
	other := seedAccount(t, db, "user-2", "test@gmail.com")
	if other == id {
		t.Error("expected a distinct account for another user")
	}
}

func TestGetAccount_NotFound(t *testing.T) {
	db := newTestDB(t)
	_, err := db.GetAccount(context.Background(), 42)
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetAccount() error = %v, want ErrNotFound", err)
	}
}

func TestGetAccountForUser(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	id := seedAccount(t, db, "owner", "a@example.com")

	if _, err := db.GetAccountForUser(ctx, "owner", id); err != nil {
		t.Errorf("GetAccountForUser(owner) error: %v", err)
	}
	if _, err := db.GetAccountForUser(ctx, "intruder", id); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetAccountForUser(intruder) error = %v, want ErrNotFound", err)
	}
}

func TestListAccounts(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	a := seedAccount(t, db, "u1", "a@example.com")
	seedAccount(t, db, "u1", "b@example.com")
	seedAccount(t, db, "u2", "c@example.com")

	mine, err := db.ListAccounts(ctx, "u1")
	if err != nil {
		t.Fatalf("ListAccounts() error: %v", err)
	}
	if len(mine) != 2 {
		t.Errorf("ListAccounts(u1) = %d, want 2", len(mine))
	}
	all, _ := db.ListAccounts(ctx, "")
	if len(all) != 3 {
		t.Errorf("ListAccounts(\"\") = %d, want 3", len(all))
	}

	if err := db.SetAccountActive(ctx, a, false); err != nil {
		t.Fatal(err)
	}
	active, err := db.ListActiveAccounts(ctx)
	if err != nil {
		t.Fatalf("ListActiveAccounts() error: %v", err)
	}
	if len(active) != 2 {
		t.Errorf("ListActiveAccounts() = %d, want 2", len(active))
	}
}

func TestUpdateAccountTokens_KeepsRefresh(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	id := seedAccount(t, db, "u1", "a@example.com")

	expiry := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := db.UpdateAccountTokens(ctx, id, "access-2", "", &expiry); err != nil {
		t.Fatalf("UpdateAccountTokens() error: %v", err)
	}
	got, _ := db.GetAccount(ctx, id)
	if got.AccessToken != "access-2" {
		t.Errorf("AccessToken = %q, want %q", got.AccessToken, "access-2")
	}
	if got.RefreshToken != "enc-refresh" {
		t.Errorf("RefreshToken = %q, want unchanged %q", got.RefreshToken, "enc-refresh")
	}
}

func TestUpdateSyncState(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	id := seedAccount(t, db, "u1", "a@example.com")

	at := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	if err := db.UpdateSyncState(ctx, id, "2025-05-31T23:00:00Z", at); err != nil {
		t.Fatalf("UpdateSyncState() error: %v", err)
	}
	got, _ := db.GetAccount(ctx, id)
	if got.SyncCursor != "2025-05-31T23:00:00Z" {
		t.Errorf("SyncCursor = %q", got.SyncCursor)
	}
	if got.LastSyncAt == nil || !got.LastSyncAt.Equal(at) {
		t.Errorf("LastSyncAt = %v, want %v", got.LastSyncAt, at)
	}

	// An empty cursor keeps the previous one.
	if err := db.UpdateSyncState(ctx, id, "", at.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	got, _ = db.GetAccount(ctx, id)
	if got.SyncCursor != "2025-05-31T23:00:00Z" {
		t.Errorf("SyncCursor = %q, want previous cursor", got.SyncCursor)
	}
}

func TestDeleteAccount_Cascades(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	id := seedAccount(t, db, "u1", "a@example.com")
	msgID := seedMessage(t, db, id, "m1", "hi", "", time.Now())

	if err := db.DeleteAccount(ctx, id); err != nil {
		t.Fatalf("DeleteAccount() error: %v", err)
	}
	if _, err := db.GetMessage(ctx, msgID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetMessage() after delete error = %v, want ErrNotFound", err)
	}
}
