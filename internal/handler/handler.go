package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/examhell/internal/i18n"
	"github.com/pavelanni/examhell/internal/model"
	"github.com/pavelanni/examhell/internal/store"
)

// maxBodyBytes limits JSON request bodies.
const maxBodyBytes = 1 << 20

// Assistant produces replies to a chat history. *llm.Client implements it.
type Assistant interface {
	Reply(ctx context.Context, history []model.ChatMessage) (string, error)
}

// Config holds runtime HTTP parameters set via CLI flags.
type Config struct {
	SecureCookies bool // Set Secure flag on cookies (disable for local dev)
	HistoryLimit  int  // Most recent chat messages sent to the assistant (0 = all)
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store     *store.Store
	assistant Assistant
	config    Config
}

// New creates a new Handler.
func New(s *store.Store, a Assistant, cfg Config) *Handler {
	return &Handler{store: s, assistant: a, config: cfg}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/api/login", h.handleLogin)
	r.Post("/api/logout", h.handleLogout)

	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)
		r.Get("/api/me", h.handleMe)
		r.Post("/api/parse/message", h.handleParseMessage)
		r.Post("/api/parse/question", h.handleParseQuestion)

		r.Group(func(r chi.Router) {
			r.Use(requireRole(model.UserRoleAdmin))
			r.Get("/api/admin/users", h.handleListUsers)
			r.Post("/api/admin/users", h.handleCreateUser)
			r.Post("/api/admin/users/{userID}/toggle", h.handleToggleUserActive)
		})

		r.Group(func(r chi.Router) {
			r.Use(requireRole(model.UserRoleTeacher, model.UserRoleAdmin))
			r.Get("/api/exams", h.handleListExams)
			r.Post("/api/exams", h.handleCreateExam)
			r.Get("/api/exams/{examID}", h.handleGetExam)
			r.Delete("/api/exams/{examID}", h.handleDeleteExam)

			r.Get("/api/chats", h.handleListChats)
			r.Post("/api/chats", h.handleCreateChat)
			r.Get("/api/chats/{chatID}", h.handleGetChat)
			r.Post("/api/chats/{chatID}/messages", h.handlePostMessage)
			r.Post("/api/chats/{chatID}/messages/{messageID}/accept", h.handleAcceptQuestions)
		})
	})
}

// errorResponse is the body of every non-2xx JSON response.
type errorResponse struct {
	Error  string             `json:"error"`
	Fields []model.FieldError `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

// writeError sends a localised error message.
func writeError(w http.ResponseWriter, r *http.Request, status int, msgID string, fields ...model.FieldError) {
	writeJSON(w, status, errorResponse{Error: i18n.T(r.Context(), msgID), Fields: fields})
}

// writeStoreError maps store errors to responses, logging unexpected ones.
func writeStoreError(w http.ResponseWriter, r *http.Request, err error, op string) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, "NotFound")
		return
	}
	slog.Error("store operation failed", "op", op, "error", err)
	writeError(w, r, http.StatusInternalServerError, "InternalError")
}

// decodeJSON reads and validates a request body. On failure it writes the
// response and returns false.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, r, http.StatusBadRequest, "InvalidRequest")
		return false
	}
	if err := model.ValidateStruct(dst); err != nil {
		writeError(w, r, http.StatusBadRequest, "InvalidRequest", model.FieldErrors(err)...)
		return false
	}
	return true
}

func idParam(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id, err == nil && id > 0
}

// canAccess reports whether user may see a resource owned by ownerID.
func canAccess(user *model.User, ownerID int64) bool {
	return user.Role == model.UserRoleAdmin || user.ID == ownerID
}
