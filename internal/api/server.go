// Package api serves mailpilot over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/lu-zhengda/mailpilot/internal/app"
	"github.com/lu-zhengda/mailpilot/internal/auth"
	"github.com/lu-zhengda/mailpilot/internal/config"
	"github.com/lu-zhengda/mailpilot/internal/logging"
	"github.com/lu-zhengda/mailpilot/internal/metrics"
	"github.com/lu-zhengda/mailpilot/internal/store"
	"github.com/lu-zhengda/mailpilot/internal/vector"
)

const serviceName = "mailpilot_api"

// Deps wires a Server. Generator-backed services may be nil when the
// feature is disabled; their routes then answer 503.
type Deps struct {
	Config   *config.Config
	Store    store.Store
	Auth     *auth.Service
	Tokens   *auth.Tokens
	Ingestor *app.Ingestor
	Searcher *app.Searcher
	Drafter  *app.Drafter
	Digester *app.Digester
	Scorer   *app.Scorer
	Vectors  vector.Index
	Logger   *zap.Logger
	Version  string
}

type Server struct {
	Deps
	now func() time.Time
}

func NewServer(d Deps) *Server {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Version == "" {
		d.Version = "dev"
	}
	return &Server{Deps: d, now: time.Now}
}

// Handler returns the routed, CORS-wrapped handler.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.requestLogger, s.instrument)

	r.HandleFunc("/", s.handleRoot).Methods("GET")
	r.HandleFunc("/health", s.handleHealth).Methods("GET")
	r.HandleFunc("/info", s.handleInfo).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	r.HandleFunc("/api/auth/health", s.handleAuthHealth).Methods("GET")
	r.HandleFunc("/api/auth/gmail", s.handleAuthStart).Methods("GET")
	r.HandleFunc("/api/auth/gmail/callback", s.handleAuthCallback).Methods("GET")

	protected := r.NewRoute().Subrouter()
	protected.Use(s.requireToken)
	protected.HandleFunc("/api/auth/status", s.handleAuthStatus).Methods("GET")
	protected.HandleFunc("/api/auth/accounts", s.handleAccounts).Methods("GET")
	protected.HandleFunc("/api/auth/revoke/{id:[0-9]+}", s.handleRevoke).Methods("POST")
	protected.HandleFunc("/api/auth/test-connection/{id:[0-9]+}", s.handleTestConnection).Methods("GET")
	protected.HandleFunc("/recent-emails", s.handleRecentEmails).Methods("GET")
	protected.HandleFunc("/api/sync/{id:[0-9]+}", s.handleSync).Methods("POST")
	protected.HandleFunc("/api/search", s.handleSearch).Methods("GET")
	protected.HandleFunc("/api/drafts", s.handleCreateDraft).Methods("POST")
	protected.HandleFunc("/api/drafts", s.handleListDrafts).Methods("GET")
	protected.HandleFunc("/api/drafts/{id:[0-9]+}/{action:approve|reject|send}", s.handleDraftAction).Methods("POST")
	protected.HandleFunc("/api/digest", s.handleGetDigest).Methods("GET")
	protected.HandleFunc("/api/digest", s.handleBuildDigest).Methods("POST")
	protected.HandleFunc("/api/importance/{message_id:[0-9]+}", s.handleImportance).Methods("GET")

	var origins []string
	if s.Config != nil {
		origins = s.Config.Server.AllowOrigins
	}
	c := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
	})
	return c.Handler(r)
}

// ---------------------------------------------------------------------------
// Middleware
// ---------------------------------------------------------------------------

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		r = r.WithContext(logging.WithRequestID(r.Context(), id))

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		logging.FromContext(r.Context(), s.Logger).Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)))
	})
}

// instrument records request durations labelled by route template so ids in
// paths do not explode label cardinality.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tmpl, err := route.GetPathTemplate(); err == nil {
				path = tmpl
			}
		}
		metrics.RecordHTTPRequest(r.Method, path, strconv.Itoa(rec.status), time.Since(start))
	})
}

type userKey struct{}

func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Tokens == nil || s.Auth == nil || s.Store == nil {
			unavailable(w, "authentication")
			return
		}
		userID, err := s.bearerUser(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid or expired token", nil)
			return
		}
		if userID == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey{}, userID)))
	})
}

// bearerUser returns the user named by the request's bearer token, or ""
// when the request carries none.
func (s *Server) bearerUser(r *http.Request) (string, error) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || token == "" {
		return "", nil
	}
	return s.Tokens.Parse(token)
}

func userFrom(ctx context.Context) string {
	id, _ := ctx.Value(userKey{}).(string)
	return id
}

// ---------------------------------------------------------------------------
// Responses
// ---------------------------------------------------------------------------

type errorBody struct {
	Error   string         `json:"error"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string, details map[string]any) {
	writeJSON(w, status, errorBody{Error: code, Message: message, Details: details})
}

// writeAppError maps workflow errors onto status codes.
func (s *Server) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrAccountNotFound):
		writeError(w, http.StatusNotFound, "account_not_found", "account not found or not owned by this user", nil)
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, auth.ErrAccountInactive):
		writeError(w, http.StatusConflict, "account_inactive", err.Error(), nil)
	case errors.Is(err, app.ErrInvalidTone), errors.Is(err, app.ErrInvalidLength):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error(), nil)
	case errors.Is(err, app.ErrDraftNotPending), errors.Is(err, app.ErrDraftNotApproved), errors.Is(err, app.ErrDraftSent):
		writeError(w, http.StatusConflict, "invalid_draft_state", err.Error(), nil)
	case errors.Is(err, app.ErrNoGenerator):
		writeError(w, http.StatusServiceUnavailable, "feature_unavailable", err.Error(), nil)
	default:
		logging.FromContext(r.Context(), s.Logger).Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		details := map[string]any{"reason": "contact support"}
		if s.Config != nil && !s.Config.IsProduction() {
			details["reason"] = err.Error()
		}
		writeError(w, http.StatusInternalServerError, "internal_server_error", "an unexpected error occurred", details)
	}
}

func unavailable(w http.ResponseWriter, feature string) {
	writeError(w, http.StatusServiceUnavailable, "feature_unavailable", feature+" is not enabled", nil)
}
