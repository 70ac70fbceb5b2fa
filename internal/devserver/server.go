package devserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/wordnest/wordnest/internal/sync"
)

type contextKey string

const parentIDKey contextKey = "parentID"

func withParentID(ctx context.Context, parentID string) context.Context {
	return context.WithValue(ctx, parentIDKey, parentID)
}

// parentIDFromContext returns the authenticated parent id, or "" when the
// request skipped auth.
func parentIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(parentIDKey).(string)
	return id
}

// Server exposes the sync surface over HTTP for local development.
type Server struct {
	state  *State
	tokens *TokenService
	logger *slog.Logger
}

// NewServer wires the in-memory state behind the HTTP surface.
func NewServer(state *State, tokens *TokenService, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		state:  state,
		tokens: tokens,
		logger: log.With(slog.String("component", "devserver")),
	}
}

// Router builds the HTTP routes. Token minting is open; everything else
// requires a bearer token. The admin routes exist for seeding and simulating
// parent-initiated resets during development.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)

	r.Post("/v1/auth/token", s.handleMintToken)

	r.Group(func(r chi.Router) {
		r.Use(s.tokens.RequireAuth)
		r.Post("/v1/sync/pull", s.handlePull)
		r.Post("/v1/sync/push", s.handlePush)
		r.Post("/v1/catalog/pull", s.handlePullCatalog)
		r.Get("/v1/sync/status", s.handleStatus)
		r.Post("/v1/admin/reset", s.handleReset)
		r.Post("/v1/admin/catalog", s.handleSeedCatalog)
	})
	return r
}

type mintTokenRequest struct {
	ParentID string `json:"parent_id"`
}

type mintTokenResponse struct {
	Token string `json:"token"`
}

func (s *Server) handleMintToken(w http.ResponseWriter, r *http.Request) {
	var req mintTokenRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	token, err := s.tokens.Mint(req.ParentID)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, mintTokenResponse{Token: token})
}

func (s *Server) handlePull(w http.ResponseWriter, r *http.Request) {
	var req sync.PullRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ChildID == "" {
		respondError(w, http.StatusBadRequest, "child_id required")
		return
	}
	resp, err := s.state.Pull(&req)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Debug("pull served",
		slog.String("child_id", req.ChildID),
		slog.Bool("full", req.LastPulledAt == nil))
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	var req sync.PushRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	resp, err := s.state.Push(&req)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Debug("push applied", slog.String("child_id", req.ChildID))
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePullCatalog(w http.ResponseWriter, r *http.Request) {
	var req sync.CatalogPullRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ParentID == "" {
		req.ParentID = parentIDFromContext(r.Context())
	}
	resp, err := s.state.PullCatalog(&req)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	childID := r.URL.Query().Get("child_id")
	if childID == "" {
		respondError(w, http.StatusBadRequest, "child_id required")
		return
	}
	respondJSON(w, http.StatusOK, s.state.Status(childID))
}

type resetRequest struct {
	ChildID string `json:"child_id"`
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := decodeJSON(r, &req); err != nil || req.ChildID == "" {
		respondError(w, http.StatusBadRequest, "child_id required")
		return
	}
	s.state.ResetChild(req.ChildID)
	s.logger.Info("child reset", slog.String("child_id", req.ChildID))
	respondJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

type seedCatalogRequest struct {
	Words []sync.CatalogWordRecord `json:"words"`
}

type seedCatalogResponse struct {
	IDs []string `json:"ids"`
}

func (s *Server) handleSeedCatalog(w http.ResponseWriter, r *http.Request) {
	var req seedCatalogRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	ids := s.state.SeedCatalog(req.Words...)
	respondJSON(w, http.StatusOK, seedCatalogResponse{IDs: ids})
}

func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Default().Error("encoding response", slog.String("error", err.Error()))
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}
