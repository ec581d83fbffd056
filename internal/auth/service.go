// Package auth connects mail accounts over OAuth, keeps their tokens fresh
// and issues API bearer tokens.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"

	"github.com/lu-zhengda/mailpilot/internal/domain"
	"github.com/lu-zhengda/mailpilot/internal/journal"
	"github.com/lu-zhengda/mailpilot/internal/provider"
	"github.com/lu-zhengda/mailpilot/internal/secure"
	"github.com/lu-zhengda/mailpilot/internal/store"
)

const (
	stateTTL      = 10 * time.Minute
	refreshMargin = 5 * time.Minute
	revokeURL     = "https://oauth2.googleapis.com/revoke"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrAccountInactive = errors.New("account is not active")
	ErrTokenRefresh    = errors.New("failed to refresh access token")
)

// UserInfo is the identity returned by the provider after sign-in.
type UserInfo struct {
	Email   string
	Name    string
	Picture string
}

type UserInfoFunc func(ctx context.Context, ts oauth2.TokenSource) (*UserInfo, error)

// ProviderFunc opens a mailbox for a token source.
type ProviderFunc func(ctx context.Context, ts oauth2.TokenSource) (provider.MailProvider, error)

// Deps wires a Service. UserInfo defaults to Google's userinfo endpoint.
type Deps struct {
	OAuth       *oauth2.Config
	Accounts    store.AccountStore
	States      StateStore
	Cipher      *secure.Cipher
	Journal     *journal.Journal
	Logger      *zap.Logger
	UserInfo    UserInfoFunc
	NewProvider ProviderFunc
	HTTPClient  *http.Client
	RevokeURL   string
}

type Service struct {
	oauth       *oauth2.Config
	accounts    store.AccountStore
	states      StateStore
	cipher      *secure.Cipher
	journal     *journal.Journal
	logger      *zap.Logger
	userInfo    UserInfoFunc
	newProvider ProviderFunc
	httpClient  *http.Client
	revokeURL   string
	now         func() time.Time
}

func NewService(d Deps) (*Service, error) {
	if d.OAuth == nil || d.Accounts == nil || d.States == nil || d.Cipher == nil {
		return nil, errors.New("auth: oauth config, account store, state store and cipher are required")
	}
	s := &Service{
		oauth:       d.OAuth,
		accounts:    d.Accounts,
		states:      d.States,
		cipher:      d.Cipher,
		journal:     d.Journal,
		logger:      d.Logger,
		userInfo:    d.UserInfo,
		newProvider: d.NewProvider,
		httpClient:  d.HTTPClient,
		revokeURL:   d.RevokeURL,
		now:         time.Now,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.userInfo == nil {
		s.userInfo = googleUserInfo
	}
	if s.httpClient == nil {
		s.httpClient = http.DefaultClient
	}
	if s.revokeURL == "" {
		s.revokeURL = revokeURL
	}
	return s, nil
}

func googleUserInfo(ctx context.Context, ts oauth2.TokenSource) (*UserInfo, error) {
	svc, err := oauth2api.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("failed to create userinfo service: %w", err)
	}
	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user info: %w", err)
	}
	return &UserInfo{Email: info.Email, Name: info.Name, Picture: info.Picture}, nil
}

func newState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// StartAuth begins an OAuth flow for userID and returns the consent URL and
// the state that must come back with the callback.
func (s *Service) StartAuth(ctx context.Context, userID string) (authURL, state string, err error) {
	if userID == "" {
		return "", "", errors.New("user id is required")
	}
	state, err = newState()
	if err != nil {
		return "", "", err
	}
	if err := s.states.Save(ctx, state, userID, stateTTL); err != nil {
		return "", "", err
	}
	authURL = s.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	return authURL, state, nil
}

// CompleteAuth handles the OAuth callback: it consumes state, exchanges code
// and stores the account with encrypted tokens.
func (s *Service) CompleteAuth(ctx context.Context, code, state string) (*domain.Account, error) {
	userID, err := s.states.Consume(ctx, state)
	if err != nil {
		return nil, err
	}

	tok, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		s.journal.Record(ctx, journal.Entry{Event: domain.EventOAuth, Message: "oauth code exchange failed", UserID: userID, Err: err})
		return nil, fmt.Errorf("failed to exchange auth code: %w", err)
	}

	info, err := s.userInfo(ctx, s.oauth.TokenSource(ctx, tok))
	if err != nil {
		return nil, err
	}
	if info.Email == "" {
		return nil, errors.New("provider did not return an email address")
	}

	access, err := s.cipher.Encrypt(tok.AccessToken)
	if err != nil {
		return nil, err
	}
	refresh, err := s.cipher.Encrypt(tok.RefreshToken)
	if err != nil {
		return nil, err
	}
	acct := &domain.Account{
		UserID:        userID,
		Provider:      domain.ProviderGmail,
		EmailAddress:  strings.ToLower(info.Email),
		DisplayName:   info.Name,
		AccessToken:   access,
		RefreshToken:  refresh,
		GrantedScopes: grantedScopes(tok, s.oauth.Scopes),
	}
	if !tok.Expiry.IsZero() {
		exp := tok.Expiry.UTC()
		acct.TokenExpiry = &exp
	}
	id, err := s.accounts.UpsertAccount(ctx, acct)
	if err != nil {
		return nil, err
	}

	s.journal.Record(ctx, journal.Entry{
		Event:     domain.EventOAuth,
		Message:   "account connected",
		UserID:    userID,
		AccountID: id,
		Metadata:  map[string]any{"email": acct.EmailAddress},
	})
	return s.accounts.GetAccount(ctx, id)
}

func grantedScopes(tok *oauth2.Token, requested []string) []string {
	if raw, ok := tok.Extra("scope").(string); ok && raw != "" {
		return strings.Fields(raw)
	}
	return requested
}

// Accounts lists the accounts owned by userID.
func (s *Service) Accounts(ctx context.Context, userID string) ([]domain.Account, error) {
	return s.accounts.ListAccounts(ctx, userID)
}

// Account returns an account owned by userID.
func (s *Service) Account(ctx context.Context, userID string, accountID int64) (*domain.Account, error) {
	acct, err := s.accounts.GetAccountForUser(ctx, userID, accountID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrAccountNotFound
	}
	return acct, err
}

// TokenSource returns a source that refreshes acct's access token when it is
// within five minutes of expiry and persists the result. A refresh failure
// deactivates the account.
func (s *Service) TokenSource(ctx context.Context, acct *domain.Account) (oauth2.TokenSource, error) {
	if !acct.IsActive {
		return nil, ErrAccountInactive
	}
	access, err := s.cipher.Decrypt(acct.AccessToken)
	if err != nil {
		return nil, err
	}
	refresh, err := s.cipher.Decrypt(acct.RefreshToken)
	if err != nil {
		return nil, err
	}
	tok := &oauth2.Token{AccessToken: access, RefreshToken: refresh, TokenType: "Bearer"}
	if acct.TokenExpiry != nil {
		tok.Expiry = *acct.TokenExpiry
	}
	return &refreshingSource{svc: s, ctx: ctx, accountID: acct.ID, userID: acct.UserID, tok: tok}, nil
}

type refreshingSource struct {
	svc       *Service
	ctx       context.Context
	accountID int64
	userID    string

	mu  sync.Mutex
	tok *oauth2.Token
}

func (r *refreshingSource) Token() (*oauth2.Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.needsRefresh() {
		return r.tok, nil
	}
	if r.tok.RefreshToken == "" {
		return nil, r.fail(errors.New("no refresh token stored"))
	}

	fresh, err := r.svc.oauth.TokenSource(r.ctx, &oauth2.Token{RefreshToken: r.tok.RefreshToken}).Token()
	if err != nil {
		return nil, r.fail(err)
	}
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = r.tok.RefreshToken
	}

	access, err := r.svc.cipher.Encrypt(fresh.AccessToken)
	if err != nil {
		return nil, err
	}
	refresh, err := r.svc.cipher.Encrypt(fresh.RefreshToken)
	if err != nil {
		return nil, err
	}
	var expiry *time.Time
	if !fresh.Expiry.IsZero() {
		exp := fresh.Expiry.UTC()
		expiry = &exp
	}
	if err := r.svc.accounts.UpdateAccountTokens(r.ctx, r.accountID, access, refresh, expiry); err != nil {
		return nil, err
	}
	r.tok = fresh
	return fresh, nil
}

func (r *refreshingSource) needsRefresh() bool {
	if r.tok.AccessToken == "" {
		return true
	}
	if r.tok.Expiry.IsZero() {
		return false
	}
	return !r.svc.now().Add(refreshMargin).Before(r.tok.Expiry)
}

func (r *refreshingSource) fail(cause error) error {
	if err := r.svc.accounts.SetAccountActive(r.ctx, r.accountID, false); err != nil {
		r.svc.logger.Warn("failed to deactivate account", zap.Int64("account_id", r.accountID), zap.Error(err))
	}
	r.svc.journal.Record(r.ctx, journal.Entry{
		Event:     domain.EventOAuth,
		Message:   "token refresh failed; account deactivated",
		UserID:    r.userID,
		AccountID: r.accountID,
		Err:       cause,
	})
	return fmt.Errorf("%w: %v", ErrTokenRefresh, cause)
}

// Provider opens the mailbox behind acct.
func (s *Service) Provider(ctx context.Context, acct *domain.Account) (provider.MailProvider, error) {
	if s.newProvider == nil {
		return nil, errors.New("no mail provider configured")
	}
	ts, err := s.TokenSource(ctx, acct)
	if err != nil {
		return nil, err
	}
	return s.newProvider(ctx, ts)
}

// Revoke disconnects an account. Revoking the grant at the provider is best
// effort; the account is deactivated regardless.
func (s *Service) Revoke(ctx context.Context, userID string, accountID int64) error {
	acct, err := s.Account(ctx, userID, accountID)
	if err != nil {
		return err
	}

	token, err := s.cipher.Decrypt(acct.RefreshToken)
	if err != nil || token == "" {
		token, _ = s.cipher.Decrypt(acct.AccessToken)
	}
	if token != "" {
		if err := s.revokeGrant(ctx, token); err != nil {
			s.logger.Warn("failed to revoke grant at provider", zap.Int64("account_id", accountID), zap.Error(err))
		}
	}

	if err := s.accounts.SetAccountActive(ctx, accountID, false); err != nil {
		return err
	}
	s.journal.Record(ctx, journal.Entry{Event: domain.EventOAuth, Message: "account revoked", UserID: userID, AccountID: accountID})
	return nil
}

func (s *Service) revokeGrant(ctx context.Context, token string) error {
	form := url.Values{"token": {token}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.revokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("revoke returned status %d", resp.StatusCode)
	}
	return nil
}

// TestConnection verifies an account can reach its mailbox.
func (s *Service) TestConnection(ctx context.Context, userID string, accountID int64) (*provider.Profile, error) {
	acct, err := s.Account(ctx, userID, accountID)
	if err != nil {
		return nil, err
	}
	p, err := s.Provider(ctx, acct)
	if err != nil {
		return nil, err
	}
	return p.Profile(ctx)
}
