package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/taskscope/envchat/internal/middleware"
	"github.com/taskscope/envchat/internal/model"
	"github.com/taskscope/envchat/internal/service"
	"github.com/taskscope/envchat/pkg/logger"
)

// EnvironmentHandler exposes the public view of environments.
type EnvironmentHandler struct {
	chat   *service.ChatService
	logger *logger.Logger
}

// NewEnvironmentHandler creates a new environment handler.
func NewEnvironmentHandler(chat *service.ChatService, log *logger.Logger) *EnvironmentHandler {
	return &EnvironmentHandler{chat: chat, logger: log}
}

// Get handles GET /api/v1/environments/{envID}
func (h *EnvironmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	envID := chi.URLParam(r, "envID")

	if err := middleware.ValidateEnvironmentID(envID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	env, err := h.chat.Environment(r.Context(), envID)
	if err != nil {
		writeError(w, http.StatusNotFound, "environment not found")
		return
	}

	writeJSON(w, http.StatusOK, &model.EnvironmentResponse{
		ID:   env.ID,
		Name: env.Name,
	})
}
