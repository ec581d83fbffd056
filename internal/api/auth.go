package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/lu-zhengda/mailpilot/internal/auth"
)

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "mailpilot email assistant API",
		"version": s.Version,
		"status":  "running",
		"endpoints": map[string]string{
			"auth":          "/api/auth",
			"gmail_connect": "/api/auth/gmail",
			"auth_status":   "/api/auth/status",
			"health":        "/health",
			"search":        "/api/search",
			"metrics":       "/metrics",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status, code := "healthy", http.StatusOK
	db := "connected"
	if s.Store == nil || s.Store.Ping(ctx) != nil {
		status, code, db = "unhealthy", http.StatusServiceUnavailable, "unreachable"
	}
	body := map[string]any{
		"status":    status,
		"service":   serviceName,
		"database":  db,
		"timestamp": s.now().UTC().Format(time.RFC3339),
	}
	if s.Vectors != nil {
		if st, err := s.Vectors.Stats(ctx); err == nil {
			body["vector_store"] = st
		}
	}
	writeJSON(w, code, body)
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"service": serviceName, "version": s.Version}
	if s.Config != nil {
		f := s.Config.Features
		body["environment"] = s.Config.Server.Environment
		body["features"] = map[string]bool{
			"gmail":         f.Gmail,
			"outlook":       f.Outlook,
			"daily_summary": f.DailySummary,
			"ai_drafting":   f.AIDrafting,
			"smart_search":  f.SmartSearch,
		}
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleAuthHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if s.Auth == nil || s.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "service_unavailable", "authentication is not configured", nil)
		return
	}
	active, err := s.Store.ListActiveAccounts(ctx)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "healthy",
		"service":         "authentication",
		"oauth_handler":   "initialized",
		"database":        "connected",
		"active_accounts": len(active),
		"timestamp":       s.now().UTC().Format(time.RFC3339),
	})
}

// handleAuthStart begins the Gmail consent flow. With ?redirect=1 the client
// is sent straight to the consent page.
//
// A bearer token names the user. Without one, user_id may only name a user
// that owns no accounts yet; otherwise anyone could bind a token to that user.
func (s *Server) handleAuthStart(w http.ResponseWriter, r *http.Request) {
	if s.Auth == nil || s.Tokens == nil {
		unavailable(w, "gmail authentication")
		return
	}
	userID := r.URL.Query().Get("user_id")
	tokenUser, err := s.bearerUser(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid or expired token", nil)
		return
	}
	switch {
	case tokenUser != "":
		if userID != "" && userID != tokenUser {
			writeError(w, http.StatusForbidden, "forbidden", "user_id does not match the bearer token", nil)
			return
		}
		userID = tokenUser
	case userID == "":
		writeError(w, http.StatusBadRequest, "missing_parameters", "user_id is required", nil)
		return
	default:
		accounts, err := s.Auth.Accounts(r.Context(), userID)
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		if len(accounts) > 0 {
			writeError(w, http.StatusUnauthorized, "unauthorized",
				"a bearer token for this user is required to connect another account", nil)
			return
		}
	}

	authURL, state, err := s.Auth.StartAuth(r.Context(), userID)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	if redirect, _ := strconv.ParseBool(r.URL.Query().Get("redirect")); redirect {
		http.Redirect(w, r, authURL, http.StatusTemporaryRedirect)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"auth_url": authURL, "state": state})
}

func (s *Server) handleAuthCallback(w http.ResponseWriter, r *http.Request) {
	if s.Auth == nil || s.Tokens == nil {
		unavailable(w, "gmail authentication")
		return
	}
	q := r.URL.Query()
	if oauthErr := q.Get("error"); oauthErr != "" {
		writeError(w, http.StatusBadRequest, "oauth_error", "authorization was denied or failed",
			map[string]any{"oauth_error": oauthErr})
		return
	}
	code, state := q.Get("code"), q.Get("state")
	if code == "" || state == "" {
		writeError(w, http.StatusBadRequest, "missing_parameters", "code and state are required", nil)
		return
	}

	acct, err := s.Auth.CompleteAuth(r.Context(), code, state)
	if errors.Is(err, auth.ErrInvalidState) {
		writeError(w, http.StatusBadRequest, "invalid_state", "invalid or expired OAuth state", nil)
		return
	}
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}

	token, expires, err := s.Tokens.Issue(acct.UserID)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"message":      "Gmail account connected",
		"account":      ToAccount(acct, s.now()),
		"access_token": token,
		"token_type":   "bearer",
		"expires_at":   expires.UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleAuthStatus(w http.ResponseWriter, r *http.Request) {
	userID := userFrom(r.Context())
	accounts, err := s.Auth.Accounts(r.Context(), userID)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	authenticated := false
	for _, a := range accounts {
		if a.IsActive {
			authenticated = true
			break
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated": authenticated,
		"user_id":       userID,
		"accounts":      ToAccounts(accounts, s.now()),
	})
}

func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.Auth.Accounts(r.Context(), userFrom(r.Context()))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"accounts": ToAccounts(accounts, s.now()),
		"total":    len(accounts),
	})
}

func (s *Server) handleRevoke(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err := s.Auth.Revoke(r.Context(), userFrom(r.Context()), id); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"message":    "access revoked",
		"account_id": id,
	})
}

func (s *Server) handleTestConnection(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	profile, err := s.Auth.TestConnection(r.Context(), userFrom(r.Context()), id)
	if errors.Is(err, auth.ErrAccountNotFound) {
		s.writeAppError(w, r, err)
		return
	}
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"success":    false,
			"message":    "account credentials are invalid",
			"account_id": id,
			"error":      err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"message":        "account is connected and working",
		"account_id":     id,
		"email_address":  profile.EmailAddress,
		"messages_total": profile.MessagesTotal,
		"threads_total":  profile.ThreadsTotal,
	})
}
