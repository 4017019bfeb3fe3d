// Package service implements the chat orchestration: environment resolution,
// system prompt assembly, model streaming and conversation persistence.
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taskscope/envchat/internal/entity"
	"github.com/taskscope/envchat/internal/llm"
	"github.com/taskscope/envchat/internal/model"
	"github.com/taskscope/envchat/pkg/logger"
	"github.com/taskscope/envchat/pkg/metrics"
)

// EventEmitter pushes one named event to the connected client.
type EventEmitter func(event string, data any) error

const (
	// EventMessage carries a model text delta.
	EventMessage = "message"
	// EventError reports a failed turn.
	EventError = "error"

	streamErrorMessage = "Failed to generate response"
)

// ChatService drives chat turns against one environment-scoped document
// store and one model provider. It is stateless and shared across requests.
type ChatService struct {
	store  entity.Store
	llm    llm.Client
	model  string
	logger *logger.Logger
}

// NewChatService creates a chat service.
func NewChatService(store entity.Store, llmClient llm.Client, modelName string, log *logger.Logger) *ChatService {
	return &ChatService{
		store:  store,
		llm:    llmClient,
		model:  modelName,
		logger: log,
	}
}

// Turn is a resolved chat turn, ready to stream. Resolution errors surface
// before any event is written so the HTTP boundary can still fail the
// request cleanly.
type Turn struct {
	env          *entity.Environment
	systemPrompt string
	conv         *entity.Conversation
	start        bool
}

// ConversationID returns the id of the conversation this turn will persist
// to, or empty until a start turn has completed.
func (t *Turn) ConversationID() string {
	if t.conv == nil {
		return ""
	}
	return t.conv.ID
}

// BuildSystemPrompt composes the environment task and the active context
// contents into the model's system prompt.
func BuildSystemPrompt(task string, contexts []string) string {
	parts := make([]string, 0, len(contexts)+1)
	parts = append(parts, "Task: "+task)
	for i, content := range contexts {
		parts = append(parts, fmt.Sprintf("Context %d:\n%s", i+1, content))
	}
	return strings.Join(parts, "\n\n")
}

func (s *ChatService) resolve(ctx context.Context, envID string) (*entity.Environment, string, error) {
	env, err := entity.FetchEnvironment(ctx, s.store, envID)
	if err != nil {
		return nil, "", fmt.Errorf("fetching environment %s: %w", envID, err)
	}
	contexts, err := env.ActiveContexts(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("fetching contexts for %s: %w", envID, err)
	}
	return env, BuildSystemPrompt(env.Task, contexts), nil
}

// PrepareContinue resolves a turn against an existing conversation.
func (s *ChatService) PrepareContinue(ctx context.Context, envID, convID string) (*Turn, error) {
	env, prompt, err := s.resolve(ctx, envID)
	if err != nil {
		return nil, err
	}
	conv, err := entity.FetchConversation(ctx, s.store, envID, convID)
	if err != nil {
		return nil, fmt.Errorf("fetching conversation %s/%s: %w", envID, convID, err)
	}
	return &Turn{env: env, systemPrompt: prompt, conv: conv}, nil
}

// PrepareStart resolves a turn that will create a fresh conversation.
func (s *ChatService) PrepareStart(ctx context.Context, envID string) (*Turn, error) {
	env, prompt, err := s.resolve(ctx, envID)
	if err != nil {
		return nil, err
	}
	return &Turn{env: env, systemPrompt: prompt, start: true}, nil
}

// Run streams the model response for the turn, emitting a message event per
// delta. On success the user message and the accumulated assistant text are
// appended sharing one timestamp and the conversation is persisted. A
// mid-stream failure emits exactly one error event and persists nothing.
func (s *ChatService) Run(ctx context.Context, turn *Turn, userMessage string, emit EventEmitter) error {
	mode := "continue"
	if turn.start {
		mode = "start"
	}

	messages := make([]llm.ChatMessage, 0, 2)
	messages = append(messages, llm.ChatMessage{Role: entity.RoleSystem, Content: turn.systemPrompt})
	if turn.conv != nil {
		for _, m := range turn.conv.Messages {
			messages = append(messages, llm.ChatMessage{Role: m.Role, Content: m.Content})
		}
	}
	messages = append(messages, llm.ChatMessage{Role: entity.RoleUser, Content: userMessage})

	timestamp := time.Now()
	streamStart := timestamp

	resp, err := s.llm.CompleteStream(ctx, &llm.CompletionRequest{
		Model:    s.model,
		Messages: messages,
	}, func(delta string, index int) error {
		return emit(EventMessage, model.MessageEvent{Content: delta})
	})
	if err != nil {
		s.logger.Error("model stream failed",
			zap.String("environment_id", turn.env.ID),
			zap.String("mode", mode),
			zap.Error(err),
		)
		metrics.RecordChatTurn(mode, "error")
		if emitErr := emit(EventError, model.ErrorEvent{Error: streamErrorMessage}); emitErr != nil {
			return emitErr
		}
		return fmt.Errorf("model stream: %w", err)
	}

	metrics.RecordLLMStream(s.model, "success", time.Since(streamStart).Seconds(), resp.TokensIn, resp.TokensOut)

	if turn.start {
		turn.conv = entity.NewConversation(s.store, turn.env.ID, uuid.NewString())
	}
	turn.conv.AddMessage(entity.RoleUser, userMessage, timestamp)
	turn.conv.AddMessage(entity.RoleAssistant, resp.Content, timestamp)

	if err := turn.conv.Save(ctx); err != nil {
		s.logger.Error("failed to persist conversation",
			zap.String("environment_id", turn.env.ID),
			zap.String("conversation_id", turn.conv.ID),
			zap.Error(err),
		)
		metrics.RecordChatTurn(mode, "error")
		if emitErr := emit(EventError, model.ErrorEvent{Error: streamErrorMessage}); emitErr != nil {
			return emitErr
		}
		return fmt.Errorf("saving conversation: %w", err)
	}

	metrics.RecordChatTurn(mode, "success")
	s.logger.Info("chat turn complete",
		zap.String("environment_id", turn.env.ID),
		zap.String("conversation_id", turn.conv.ID),
		zap.String("mode", mode),
		zap.Int("response_bytes", len(resp.Content)),
	)
	return nil
}

// Environment exposes the resolved environment for handlers that only need
// its public fields.
func (s *ChatService) Environment(ctx context.Context, envID string) (*entity.Environment, error) {
	return entity.FetchEnvironment(ctx, s.store, envID)
}
