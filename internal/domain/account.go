package domain

import "time"

const ProviderGmail = "gmail"

// Account is a connected mailbox. AccessToken and RefreshToken hold the
// encrypted form of the OAuth tokens.
type Account struct {
	ID            int64
	UserID        string
	AccountUUID   string
	Provider      string
	EmailAddress  string
	DisplayName   string
	AccessToken   string
	RefreshToken  string
	TokenExpiry   *time.Time
	GrantedScopes []string
	IsActive      bool
	LastSyncAt    *time.Time
	SyncCursor    string
	ConnectedAt   time.Time
	UpdatedAt     time.Time
}

// TokenStatus reports "valid" or "expired" for the access token, or ""
// when no expiry is known.
func (a *Account) TokenStatus(now time.Time) string {
	if a.TokenExpiry == nil {
		return ""
	}
	if a.TokenExpiry.After(now) {
		return "valid"
	}
	return "expired"
}
