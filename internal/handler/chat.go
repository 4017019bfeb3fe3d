package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/taskscope/envchat/internal/middleware"
	"github.com/taskscope/envchat/internal/model"
	"github.com/taskscope/envchat/internal/service"
	"github.com/taskscope/envchat/pkg/logger"
	"github.com/taskscope/envchat/pkg/metrics"
)

// ChatHandler handles the SSE chat endpoints.
type ChatHandler struct {
	chat          *service.ChatService
	streamTimeout time.Duration
	logger        *logger.Logger
}

// NewChatHandler creates a new chat handler. streamTimeout bounds one full
// model stream; zero disables the bound.
func NewChatHandler(chat *service.ChatService, streamTimeout time.Duration, log *logger.Logger) *ChatHandler {
	return &ChatHandler{
		chat:          chat,
		streamTimeout: streamTimeout,
		logger:        log,
	}
}

// Continue handles POST /api/v1/environments/{envID}/conversations/{convID}/chat
func (h *ChatHandler) Continue(w http.ResponseWriter, r *http.Request) {
	envID := chi.URLParam(r, "envID")
	convID := chi.URLParam(r, "convID")

	if err := middleware.ValidateEnvironmentID(envID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := middleware.ValidateConversationID(convID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	req, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}

	ctx, cancel := h.streamContext(r.Context())
	defer cancel()

	turn, err := h.chat.PrepareContinue(ctx, envID, convID)
	if err != nil {
		h.failResolution(w, envID, err)
		return
	}

	h.stream(ctx, w, turn, req.Message)
}

// Start handles POST /api/v1/environments/{envID}/chat
func (h *ChatHandler) Start(w http.ResponseWriter, r *http.Request) {
	envID := chi.URLParam(r, "envID")

	if err := middleware.ValidateEnvironmentID(envID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	req, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}

	ctx, cancel := h.streamContext(r.Context())
	defer cancel()

	turn, err := h.chat.PrepareStart(ctx, envID)
	if err != nil {
		h.failResolution(w, envID, err)
		return
	}

	h.stream(ctx, w, turn, req.Message)
}

func (h *ChatHandler) decodeRequest(w http.ResponseWriter, r *http.Request) (*model.ChatRequest, bool) {
	var req model.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return nil, false
	}
	if err := middleware.ValidateChatMessage(req.Message); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	return &req, true
}

func (h *ChatHandler) streamContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if h.streamTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, h.streamTimeout)
}

// failResolution reports environment/conversation resolution failures before
// the event stream has been opened.
func (h *ChatHandler) failResolution(w http.ResponseWriter, envID string, err error) {
	h.logger.Error("failed to resolve chat turn", zap.String("environment_id", envID), zap.Error(err))
	writeError(w, http.StatusBadGateway, "failed to resolve environment "+envID)
}

// stream switches the response to an event stream and drives the turn. Once
// streaming has begun, failures travel as error events; the service emits
// those itself.
func (h *ChatHandler) stream(ctx context.Context, w http.ResponseWriter, turn *service.Turn, message string) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	err := h.chat.Run(ctx, turn, message, func(event string, data any) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		return sendSSEEvent(w, flusher, event, data)
	})
	if err != nil {
		// Already reported on the stream; nothing more to send.
		h.logger.Warn("chat turn aborted", zap.Error(err))
	}
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", jsonData)
	flusher.Flush()

	return nil
}
