package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lu-zhengda/mailpilot/internal/domain"
)

const accountColumns = `id, user_id, account_uuid, provider, email_address, display_name,
	access_token, refresh_token, token_expiry, granted_scopes, is_active,
	last_sync_at, sync_cursor, connected_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*domain.Account, error) {
	var a domain.Account
	var displayName, accessToken, scopes, cursor sql.NullString
	var expiry, lastSync sql.NullString
	var connectedAt, updatedAt string
	if err := row.Scan(
		&a.ID, &a.UserID, &a.AccountUUID, &a.Provider, &a.EmailAddress, &displayName,
		&accessToken, &a.RefreshToken, &expiry, &scopes, &a.IsActive,
		&lastSync, &cursor, &connectedAt, &updatedAt,
	); err != nil {
		return nil, err
	}
	a.DisplayName = displayName.String
	a.AccessToken = accessToken.String
	a.SyncCursor = cursor.String

	var err error
	if a.TokenExpiry, err = parseNullTime(expiry); err != nil {
		return nil, err
	}
	if a.LastSyncAt, err = parseNullTime(lastSync); err != nil {
		return nil, err
	}
	if a.ConnectedAt, err = parseTime(connectedAt); err != nil {
		return nil, err
	}
	if a.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if scopes.String != "" {
		if err := json.Unmarshal([]byte(scopes.String), &a.GrantedScopes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal scopes: %w", err)
		}
	}
	return &a, nil
}

// UpsertAccount creates the account or, when (user_id, email_address)
// already exists, refreshes its tokens and reactivates it.
func (s *DB) UpsertAccount(ctx context.Context, acct *domain.Account) (int64, error) {
	scopes, err := json.Marshal(acct.GrantedScopes)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal scopes: %w", err)
	}
	if acct.AccountUUID == "" {
		acct.AccountUUID = uuid.NewString()
	}
	if acct.Provider == "" {
		acct.Provider = domain.ProviderGmail
	}
	now := s.timestamp()

	var id int64
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO email_accounts (user_id, account_uuid, provider, email_address, display_name,
			access_token, refresh_token, token_expiry, granted_scopes, is_active, connected_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, TRUE, ?, ?)
		ON CONFLICT(user_id, email_address) DO UPDATE SET
			display_name   = COALESCE(NULLIF(excluded.display_name, ''), display_name),
			access_token   = excluded.access_token,
			refresh_token  = COALESCE(NULLIF(excluded.refresh_token, ''), refresh_token),
			token_expiry   = excluded.token_expiry,
			granted_scopes = excluded.granted_scopes,
			is_active      = TRUE,
			updated_at     = excluded.updated_at
		RETURNING id`,
		acct.UserID, acct.AccountUUID, acct.Provider, acct.EmailAddress, acct.DisplayName,
		acct.AccessToken, acct.RefreshToken, formatNullTime(acct.TokenExpiry), string(scopes),
		now, now,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert account: %w", err)
	}
	acct.ID = id
	acct.IsActive = true
	return id, nil
}

func (s *DB) GetAccount(ctx context.Context, id int64) (*domain.Account, error) {
	a, err := scanAccount(s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM email_accounts WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("account %d", id))
	}
	return a, nil
}

// GetAccountForUser returns the account only if userID owns it.
func (s *DB) GetAccountForUser(ctx context.Context, userID string, id int64) (*domain.Account, error) {
	a, err := scanAccount(s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM email_accounts WHERE id = ? AND user_id = ?`, id, userID))
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("account %d", id))
	}
	return a, nil
}

// ListAccounts returns the accounts of userID, or all accounts when userID is empty.
func (s *DB) ListAccounts(ctx context.Context, userID string) ([]domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM email_accounts`
	var args []any
	if userID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY connected_at, id`
	return s.queryAccounts(ctx, query, args...)
}

func (s *DB) ListActiveAccounts(ctx context.Context) ([]domain.Account, error) {
	return s.queryAccounts(ctx,
		`SELECT `+accountColumns+` FROM email_accounts WHERE is_active ORDER BY id`)
}

func (s *DB) queryAccounts(ctx context.Context, query string, args ...any) ([]domain.Account, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}

func (s *DB) SetAccountActive(ctx context.Context, id int64, active bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE email_accounts SET is_active = ?, updated_at = ? WHERE id = ?`,
		active, s.timestamp(), id)
	if err != nil {
		return fmt.Errorf("failed to set account %d active=%v: %w", id, active, err)
	}
	return nil
}

// UpdateAccountTokens stores refreshed (already encrypted) tokens. An empty
// refresh token keeps the current one.
func (s *DB) UpdateAccountTokens(ctx context.Context, id int64, accessToken, refreshToken string, expiry *time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE email_accounts SET
			access_token  = ?,
			refresh_token = COALESCE(NULLIF(?, ''), refresh_token),
			token_expiry  = ?,
			updated_at    = ?
		WHERE id = ?`,
		accessToken, refreshToken, formatNullTime(expiry), s.timestamp(), id)
	if err != nil {
		return fmt.Errorf("failed to update tokens for account %d: %w", id, err)
	}
	return nil
}

func (s *DB) DeleteAccount(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM email_accounts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete account %d: %w", id, err)
	}
	return nil
}
