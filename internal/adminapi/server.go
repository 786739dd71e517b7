// ABOUTME: Operator HTTP API: takeover lifecycle and transcript access for admins
// ABOUTME: Token-authenticated chi router fronting the dispatch gateway

package adminapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/pasarbot/pasarbot/internal/takeover"
	"github.com/pasarbot/pasarbot/internal/transcript"
)

// TakeoverGateway is the slice of the dispatch gateway the API drives.
// Every call runs under the gateway's per-user lock.
type TakeoverGateway interface {
	StartTakeover(ctx context.Context, userID, adminID string) error
	StopTakeover(ctx context.Context, userID, adminID string) error
	SendAsOperator(ctx context.Context, userID, adminID, text string) error
}

// Server is the operator-facing HTTP API.
type Server struct {
	gateway TakeoverGateway
	journal *transcript.Recorder
	token   string
	logger  *slog.Logger
}

// New creates the operator API server.
func New(gateway TakeoverGateway, journal *transcript.Recorder, token string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		gateway: gateway,
		journal: journal,
		token:   token,
		logger:  logger.With("component", "adminapi"),
	}
}

// Router builds the chi router with auth applied to every route.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)
		r.Post("/takeover/start", s.handleStart)
		r.Post("/takeover/stop", s.handleStop)
		r.Post("/takeover/send", s.handleSend)
		r.Get("/users/{userID}/transcript", s.handleTranscript)
	})

	return r
}

// ListenAndServe runs the API until the context is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("operator API listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// authenticate requires the configured bearer token on every request.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(s.token)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type takeoverRequest struct {
	UserID  string `json:"user_id"`
	AdminID string `json:"admin_id"`
	Text    string `json:"text,omitempty"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeTakeover(w, r, false)
	if !ok {
		return
	}

	if err := s.gateway.StartTakeover(r.Context(), req.UserID, req.AdminID); err != nil {
		if errors.Is(err, takeover.ErrAlreadyActiveElsewhere) {
			writeError(w, http.StatusConflict, "another admin holds this conversation")
			return
		}
		s.logger.Error("takeover start failed", "error", err, "user_id", req.UserID)
		writeError(w, http.StatusInternalServerError, "takeover failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "active",
		"user_id":  req.UserID,
		"admin_id": req.AdminID,
	})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeTakeover(w, r, false)
	if !ok {
		return
	}

	if err := s.gateway.StopTakeover(r.Context(), req.UserID, req.AdminID); err != nil {
		if errors.Is(err, takeover.ErrNotActive) {
			writeError(w, http.StatusNotFound, "no matching active takeover")
			return
		}
		s.logger.Error("takeover stop failed", "error", err, "user_id", req.UserID)
		writeError(w, http.StatusInternalServerError, "release failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "released",
		"user_id": req.UserID,
	})
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeTakeover(w, r, true)
	if !ok {
		return
	}

	if err := s.gateway.SendAsOperator(r.Context(), req.UserID, req.AdminID, req.Text); err != nil {
		if errors.Is(err, takeover.ErrNotActive) {
			writeError(w, http.StatusConflict, "admin does not hold this conversation")
			return
		}
		s.logger.Error("operator send failed", "error", err, "user_id", req.UserID)
		writeError(w, http.StatusInternalServerError, "send failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user id is required")
		return
	}

	limit := 200
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	entries, err := s.journal.History(r.Context(), userID, limit)
	if err != nil {
		s.logger.Error("transcript fetch failed", "error", err, "user_id", userID)
		writeError(w, http.StatusInternalServerError, "transcript unavailable")
		return
	}

	out := make([]transcriptEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, transcriptEntry{
			ID:        e.ID,
			Author:    e.Author,
			Direction: e.Direction,
			Text:      e.Text,
			CreatedAt: e.CreatedAt,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user_id": userID,
		"entries": out,
	})
}

type transcriptEntry struct {
	ID        string    `json:"id"`
	Author    string    `json:"author"`
	Direction string    `json:"direction"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// decodeTakeover parses and validates the common takeover request body.
func (s *Server) decodeTakeover(w http.ResponseWriter, r *http.Request, needText bool) (takeoverRequest, bool) {
	var req takeoverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return req, false
	}
	if req.UserID == "" || req.AdminID == "" {
		writeError(w, http.StatusBadRequest, "user_id and admin_id are required")
		return req, false
	}
	if needText && strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return req, false
	}
	return req, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
