package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/threadline-chat/messenger-platform/internal/middleware"
	"github.com/threadline-chat/messenger-platform/internal/model"
	"github.com/threadline-chat/messenger-platform/internal/store"
	"github.com/threadline-chat/messenger-platform/pkg/logger"
)

// UserHandler serves the user directory.
type UserHandler struct {
	store  store.Store
	logger *logger.Logger
}

// NewUserHandler creates a user handler.
func NewUserHandler(st store.Store, log *logger.Logger) *UserHandler {
	return &UserHandler{
		store:  st,
		logger: log,
	}
}

type registerUserRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Image string `json:"image,omitempty"`
}

// Register handles POST /api/v1/users.
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateEmail(req.Email); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name cannot be empty")
		return
	}

	user := model.User{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Email:     req.Email,
		Name:      req.Name,
		Image:     req.Image,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.store.CreateUser(r.Context(), user); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

// List handles GET /api/v1/users. The caller is excluded from the
// directory listing.
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	current, ok := sessionUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	users, err := h.store.FindUsers(r.Context(), current.Email)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]model.User{"users": users})
}
