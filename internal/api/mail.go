package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/lu-zhengda/mailpilot/internal/app"
	"github.com/lu-zhengda/mailpilot/internal/domain"
	"github.com/lu-zhengda/mailpilot/internal/store"
)

const (
	defaultRecentLimit = 10
	maxRecentLimit     = 100
	defaultSearchLimit = 10
	maxSearchLimit     = 50
)

var (
	errNoAccount    = errors.New("no active account")
	errBadAccountID = errors.New("account_id must be an integer")
)

// intParam reads an optional integer query parameter.
func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, errors.New(name + " must be a non-negative integer")
	}
	return v, nil
}

func pathID(r *http.Request, name string) int64 {
	id, _ := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	return id
}

// decodeBody decodes an optional JSON body into v. An empty body is fine.
func decodeBody(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func (s *Server) location() *time.Location {
	if s.Config != nil {
		if loc, err := s.Config.Location(); err == nil {
			return loc
		}
	}
	return time.UTC
}

func (s *Server) ownedAccount(r *http.Request, id int64) (*domain.Account, error) {
	return s.Auth.Account(r.Context(), userFrom(r.Context()), id)
}

// accountParam resolves ?account_id=, falling back to the user's first active
// account.
func (s *Server) accountParam(r *http.Request) (*domain.Account, error) {
	if raw := r.URL.Query().Get("account_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, errBadAccountID
		}
		return s.ownedAccount(r, id)
	}
	accounts, err := s.Auth.Accounts(r.Context(), userFrom(r.Context()))
	if err != nil {
		return nil, err
	}
	for i := range accounts {
		if accounts[i].IsActive {
			return &accounts[i], nil
		}
	}
	return nil, errNoAccount
}

// ownedMessage loads a message and checks it belongs to one of the user's
// accounts. Foreign messages read as not found.
func (s *Server) ownedMessage(r *http.Request, id int64) (*domain.Message, error) {
	msg, err := s.Store.GetMessage(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if _, err := s.ownedAccount(r, msg.AccountID); err != nil {
		return nil, store.ErrNotFound
	}
	return msg, nil
}

func (s *Server) badAccount(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, errNoAccount):
		writeError(w, http.StatusBadRequest, "no_account", "connect a Gmail account first", nil)
	case errors.Is(err, errBadAccountID):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error(), nil)
	default:
		s.writeAppError(w, r, err)
	}
}

func (s *Server) handleRecentEmails(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", defaultRecentLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error(), nil)
		return
	}
	if limit == 0 || limit > maxRecentLimit {
		limit = maxRecentLimit
	}

	opts := store.ListMessageOptions{UserID: userFrom(r.Context()), Limit: limit}
	if r.URL.Query().Get("account_id") != "" {
		acct, err := s.accountParam(r)
		if err != nil {
			s.badAccount(w, r, err)
			return
		}
		opts = store.ListMessageOptions{AccountID: acct.ID, Limit: limit}
	}
	msgs, err := s.Store.ListMessages(r.Context(), opts)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"emails":  ToMessages(msgs),
		"count":   len(msgs),
	})
}

type syncRequest struct {
	MaxResults int    `json:"max_results"`
	Query      string `json:"query"`
	Full       bool   `json:"full"`
	Embed      bool   `json:"embed"`
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if s.Ingestor == nil {
		unavailable(w, "sync")
		return
	}
	acct, err := s.ownedAccount(r, pathID(r, "id"))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	var req syncRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body", nil)
		return
	}
	res, err := s.Ingestor.Run(r.Context(), acct.ID, app.IngestOptions{
		MaxResults: req.MaxResults,
		Query:      req.Query,
		Full:       req.Full,
		Embed:      req.Embed,
	})
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if s.Searcher == nil || (s.Config != nil && !s.Config.Features.SmartSearch) {
		unavailable(w, "smart search")
		return
	}
	q := r.URL.Query().Get("q")
	if q == "" {
		writeError(w, http.StatusBadRequest, "missing_parameters", "q is required", nil)
		return
	}
	limit, err := intParam(r, "max_results", defaultSearchLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error(), nil)
		return
	}
	if limit == 0 || limit > maxSearchLimit {
		limit = maxSearchLimit
	}
	acct, err := s.accountParam(r)
	if err != nil {
		s.badAccount(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Searcher.Search(r.Context(), acct.ID, q, limit))
}

type draftRequest struct {
	MessageID    int64  `json:"message_id"`
	Tone         string `json:"tone"`
	Length       string `json:"length"`
	Instructions string `json:"instructions"`
}

func (s *Server) draftsEnabled(w http.ResponseWriter) bool {
	if s.Drafter == nil || (s.Config != nil && !s.Config.Features.AIDrafting) {
		unavailable(w, "AI drafting")
		return false
	}
	return true
}

func (s *Server) handleCreateDraft(w http.ResponseWriter, r *http.Request) {
	if !s.draftsEnabled(w) {
		return
	}
	var req draftRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body", nil)
		return
	}
	if req.MessageID == 0 {
		writeError(w, http.StatusBadRequest, "missing_parameters", "message_id is required", nil)
		return
	}
	if _, err := s.ownedMessage(r, req.MessageID); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	d, err := s.Drafter.DraftReply(r.Context(), req.MessageID, app.DraftRequest{
		Tone:         req.Tone,
		Length:       req.Length,
		Instructions: req.Instructions,
	})
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ToDraft(d))
}

func (s *Server) handleListDrafts(w http.ResponseWriter, r *http.Request) {
	if !s.draftsEnabled(w) {
		return
	}
	status := domain.ApprovalStatus(r.URL.Query().Get("status"))
	switch status {
	case "", domain.ApprovalPending, domain.ApprovalApproved, domain.ApprovalRejected:
	default:
		writeError(w, http.StatusBadRequest, "invalid_request", "status must be pending, approved or rejected", nil)
		return
	}
	acct, err := s.accountParam(r)
	if err != nil {
		s.badAccount(w, r, err)
		return
	}
	drafts, err := s.Drafter.List(r.Context(), acct.ID, status)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"drafts": ToDrafts(drafts),
		"total":  len(drafts),
	})
}

func (s *Server) handleDraftAction(w http.ResponseWriter, r *http.Request) {
	if !s.draftsEnabled(w) {
		return
	}
	ctx := r.Context()
	id := pathID(r, "id")
	d, err := s.Drafter.Get(ctx, id)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	if _, err := s.ownedAccount(r, d.AccountID); err != nil {
		s.writeAppError(w, r, store.ErrNotFound)
		return
	}

	switch mux.Vars(r)["action"] {
	case "approve":
		d, err = s.Drafter.Approve(ctx, id)
	case "reject":
		d, err = s.Drafter.Reject(ctx, id)
	case "send":
		d, err = s.Drafter.Send(ctx, id)
	}
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ToDraft(d))
}

func (s *Server) handleGetDigest(w http.ResponseWriter, r *http.Request) {
	if s.Digester == nil {
		unavailable(w, "daily summary")
		return
	}
	date := r.URL.Query().Get("date")
	if date == "" {
		date = s.now().In(s.location()).Format(app.DateLayout)
	} else if _, err := time.Parse(app.DateLayout, date); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "date must be YYYY-MM-DD", nil)
		return
	}
	dg, err := s.Digester.Get(r.Context(), userFrom(r.Context()), date)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ToDigest(dg))
}

type digestRequest struct {
	Date string `json:"date"`
}

func (s *Server) handleBuildDigest(w http.ResponseWriter, r *http.Request) {
	if s.Digester == nil {
		unavailable(w, "daily summary")
		return
	}
	var req digestRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body", nil)
		return
	}
	loc := s.location()
	date := s.now().In(loc)
	if req.Date != "" {
		d, err := time.ParseInLocation(app.DateLayout, req.Date, loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "date must be YYYY-MM-DD", nil)
			return
		}
		date = d
	}
	dg, err := s.Digester.Build(r.Context(), userFrom(r.Context()), date)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ToDigest(dg))
}

func (s *Server) handleImportance(w http.ResponseWriter, r *http.Request) {
	if s.Scorer == nil {
		unavailable(w, "importance scoring")
		return
	}
	id := pathID(r, "message_id")
	if _, err := s.ownedMessage(r, id); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	score, err := s.Scorer.Latest(r.Context(), id)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ToImportance(score))
}
