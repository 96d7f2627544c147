// Package server provides an HTTP/JSON API over a repoql repository.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mstrYoda/repoql"
	"github.com/mstrYoda/repoql/auth"
)

// Request headers read by token authentication.
const (
	TokenHeader       = "X-Repoql-Token"
	AttributeHeader   = "X-Repoql-Token-Attribute" // repeatable, "name=value"
	SkipRefreshHeader = "X-Repoql-Token-Skip-Refresh"
)

type ctxKey struct{}

// Server wraps a repository and exposes an HTTP/JSON API.
type Server struct {
	repo *repoql.Repository
	auth *auth.Authenticator // nil = no authentication
	log  *slog.Logger
	mux  *http.ServeMux
}

// New creates a ready-to-use Server. A nil authenticator serves every
// request unauthenticated.
func New(repo *repoql.Repository, authenticator *auth.Authenticator, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{repo: repo, auth: authenticator, log: logger}
	s.mux = http.NewServeMux()
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.auth != nil {
		info, err := s.auth.Authenticate(credentials(r), auth.MonitorFunc(s.loginFailed))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token credentials")
			return
		}
		r = r.WithContext(context.WithValue(r.Context(), ctxKey{}, info.UserID()))
	}
	s.mux.ServeHTTP(w, r)
}

// UserID returns the authenticated user of a request handled by Server.
func UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKey{}).(string)
	return id, ok
}

func credentials(r *http.Request) auth.Credentials {
	creds := auth.Credentials{
		Token:      r.Header.Get(TokenHeader),
		Attributes: make(map[string]string),
	}
	for _, kv := range r.Header.Values(AttributeHeader) {
		if name, value, ok := strings.Cut(kv, "="); ok {
			creds.Attributes[strings.TrimSpace(name)] = strings.TrimSpace(value)
		}
	}
	if r.Header.Get(SkipRefreshHeader) != "" {
		creds.Attributes[auth.SkipRefresh] = "true"
	}
	return creds
}

func (s *Server) loginFailed(err error, _ auth.Credentials) {
	s.log.Warn("login failed", "error", err)
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/stats", s.handleStats)
	s.mux.HandleFunc("GET /api/slow-queries", s.handleSlowQueries)

	s.mux.HandleFunc("POST /api/query", s.handleQuery)
	s.mux.HandleFunc("POST /api/explain", s.handleExplain)
	s.mux.HandleFunc("GET /api/cache/stats", s.handleCacheStats)

	s.mux.HandleFunc("GET /api/nodes", s.handleGetNode)
	s.mux.HandleFunc("POST /api/nodes", s.handleCreateNode)
	s.mux.HandleFunc("DELETE /api/nodes", s.handleDeleteNode)

	s.mux.HandleFunc("GET /metrics", s.handleMetrics)
}

// ---------------------------------------------------------------------------
// JSON helpers
// ---------------------------------------------------------------------------

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// errorStatus maps repository errors to HTTP status codes.
func errorStatus(err error) int {
	var (
		parseErr *repoql.ParseError
		planErr  *repoql.PlanConstructionError
		boundErr *repoql.UnboundVariableError
		valueErr *repoql.MalformedValueError
	)
	switch {
	case errors.As(err, &parseErr), errors.As(err, &planErr),
		errors.As(err, &boundErr), errors.As(err, &valueErr):
		return http.StatusBadRequest
	case errors.Is(err, repoql.ErrNodeNotFound):
		return http.StatusNotFound
	case errors.Is(err, repoql.ErrResultTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, repoql.ErrClosed):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// ---------------------------------------------------------------------------
// Stats
// ---------------------------------------------------------------------------

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	stats, err := s.repo.Stats()
	if err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"stats":   stats,
		"metrics": s.repo.Metrics().Snapshot(),
	})
}

func (s *Server) handleSlowQueries(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.repo.SlowQueries(intQuery(r, "limit", 50)))
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	s.repo.Metrics().WritePrometheus(w)
}

// ---------------------------------------------------------------------------
// Queries
// ---------------------------------------------------------------------------

type queryResponse struct {
	Columns    []string           `json:"columns"`
	Rows       []repoql.ResultRow `json:"rows"`
	Query      string             `json:"query"`
	RowCount   int                `json:"rowCount"`
	ExecTimeMs float64            `json:"execTimeMs"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query    string                  `json:"query"`
		Bindings map[string]repoql.Value `json:"bindings"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	start := time.Now()
	result, err := s.repo.Execute(r.Context(), req.Query, repoql.Bindings(req.Bindings))
	elapsed := time.Since(start)
	if err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	rows := result.Rows
	if rows == nil {
		rows = []repoql.ResultRow{}
	}
	writeJSON(w, http.StatusOK, queryResponse{
		Columns:    result.Columns,
		Rows:       rows,
		Query:      result.Query,
		RowCount:   len(rows),
		ExecTimeMs: float64(elapsed.Microseconds()) / 1000.0,
	})
}

func (s *Server) handleExplain(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query string `json:"query"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	plan, err := s.repo.Explain(req.Query)
	if err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"plan": plan})
}

func (s *Server) handleCacheStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"query_cache": s.repo.QueryCacheStats(),
	})
}

// ---------------------------------------------------------------------------
// Nodes
// ---------------------------------------------------------------------------

func (s *Server) handleGetNode(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}
	n, err := s.repo.GetNode(path)
	if err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (s *Server) handleCreateNode(w http.ResponseWriter, r *http.Request) {
	var req repoql.ContentNode
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if req.PrimaryType == "" {
		req.PrimaryType = repoql.BaseNodeType
	}
	err := s.repo.AddNode(r.Context(), req.Path, req.PrimaryType, req.Properties, req.Mixins...)
	if err != nil {
		status := errorStatus(err)
		if status == http.StatusInternalServerError && !errors.Is(err, repoql.ErrWriteQueueFull) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"path": req.Path})
}

func (s *Server) handleDeleteNode(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}
	n, err := s.repo.RemoveNode(r.Context(), path)
	if err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "deleted", "removed": n})
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func intQuery(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
