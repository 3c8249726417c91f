package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/examhell/internal/model"
)

type createUserRequest struct {
	Username    string         `json:"username" validate:"required,min=3,max=50,alphanum"`
	DisplayName string         `json:"display_name" validate:"max=100"`
	Password    string         `json:"password" validate:"required,min=8,max=72"`
	Role        model.UserRole `json:"role" validate:"required,oneof=student teacher admin"`
}

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers()
	if err != nil {
		writeStoreError(w, r, err, "list users")
		return
	}
	if users == nil {
		users = []model.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *Handler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		slog.Error("failed to hash password", "error", err)
		writeError(w, r, http.StatusInternalServerError, "InternalError")
		return
	}

	id, err := h.store.CreateUser(model.User{
		Username:     req.Username,
		DisplayName:  req.DisplayName,
		PasswordHash: string(hash),
		Role:         req.Role,
		Active:       true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			writeError(w, r, http.StatusConflict, "UserExists")
			return
		}
		writeStoreError(w, r, err, "create user")
		return
	}

	user, err := h.store.GetUserByID(id)
	if err != nil {
		writeStoreError(w, r, err, "get user")
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (h *Handler) handleToggleUserActive(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "userID")
	if !ok {
		writeError(w, r, http.StatusBadRequest, "InvalidID")
		return
	}

	if err := h.store.ToggleUserActive(id); err != nil {
		writeStoreError(w, r, err, "toggle user active")
		return
	}
	user, err := h.store.GetUserByID(id)
	if err != nil {
		writeStoreError(w, r, err, "get user")
		return
	}
	slog.Info("toggled user active", "id", id, "active", user.Active)
	writeJSON(w, http.StatusOK, user)
}
