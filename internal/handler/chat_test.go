package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskscope/envchat/internal/firestore"
	"github.com/taskscope/envchat/internal/llm"
	"github.com/taskscope/envchat/internal/service"
	"github.com/taskscope/envchat/pkg/logger"
)

type fakeStore struct {
	mu   sync.Mutex
	docs map[string]map[string]any
	sets int
}

func (f *fakeStore) GetDocument(ctx context.Context, path string, useCache bool) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[path]
	if !ok {
		return nil, &firestore.StoreError{Status: 404, Body: "not found"}
	}
	return doc, nil
}

func (f *fakeStore) SetDocumentMerge(ctx context.Context, path string, fields map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets++
	return nil
}

type fakeLLM struct {
	deltas []string
	fail   bool
}

func (f *fakeLLM) Name() string { return "fake" }

func (f *fakeLLM) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeLLM) CompleteStream(ctx context.Context, req *llm.CompletionRequest, callback llm.StreamCallback) (*llm.CompletionResponse, error) {
	var content string
	for i, delta := range f.deltas {
		if err := callback(delta, i); err != nil {
			return nil, err
		}
		content += delta
	}
	if f.fail {
		return nil, errors.New("provider gave up")
	}
	return &llm.CompletionResponse{Content: content, Model: req.Model}, nil
}

func newRouter(store *fakeStore, provider *fakeLLM) http.Handler {
	svc := service.NewChatService(store, provider, "test-model", logger.Nop())
	h := NewChatHandler(svc, time.Minute, logger.Nop())

	r := chi.NewRouter()
	r.Post("/api/v1/environments/{envID}/chat", h.Start)
	r.Post("/api/v1/environments/{envID}/conversations/{convID}/chat", h.Continue)
	return r
}

func seededStore() *fakeStore {
	now := time.Now()
	return &fakeStore{docs: map[string]map[string]any{
		"environment/env1": {
			"name":    "Demo",
			"task":    "Summarize",
			"startAt": now.Add(-time.Hour),
			"endAt":   now.Add(time.Hour),
			"context": []any{},
		},
		"environment/env1/conversations/0d230d12-38a4-4f39-92bd-1e6911afeb62": {},
	}}
}

func TestStartChatStreamsEvents(t *testing.T) {
	store := seededStore()
	router := newRouter(store, &fakeLLM{deltas: []string{"He", "llo"}})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/environments/env1/chat",
		strings.NewReader(`{"message":"hi"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Contains(t, body, "event: message\ndata: {\"content\":\"He\"}\n\n")
	assert.Contains(t, body, "event: message\ndata: {\"content\":\"llo\"}\n\n")
	assert.NotContains(t, body, "event: error")
	assert.Equal(t, 1, store.sets)
}

func TestContinueChatStreamsEvents(t *testing.T) {
	store := seededStore()
	router := newRouter(store, &fakeLLM{deltas: []string{"ok"}})

	req := httptest.NewRequest(http.MethodPost,
		"/api/v1/environments/env1/conversations/0d230d12-38a4-4f39-92bd-1e6911afeb62/chat",
		strings.NewReader(`{"message":"hi"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "event: message\ndata: {\"content\":\"ok\"}\n\n")
	assert.Equal(t, 1, store.sets)
}

func TestChatStreamFailureEmitsSingleErrorEvent(t *testing.T) {
	store := seededStore()
	router := newRouter(store, &fakeLLM{deltas: []string{"He"}, fail: true})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/environments/env1/chat",
		strings.NewReader(`{"message":"hi"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	body := rec.Body.String()
	assert.Contains(t, body, "event: message\ndata: {\"content\":\"He\"}\n\n")
	assert.Equal(t, 1, strings.Count(body, "event: error"))
	assert.Contains(t, body, `{"error":"Failed to generate response"}`)
	assert.Equal(t, 0, store.sets)
}

func TestChatRejectsInvalidPayload(t *testing.T) {
	router := newRouter(seededStore(), &fakeLLM{})

	for _, payload := range []string{`{}`, `{"message":""}`, `not json`} {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/environments/env1/chat",
			strings.NewReader(payload))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "payload %q", payload)
	}
}

func TestChatRejectsInvalidConversationID(t *testing.T) {
	router := newRouter(seededStore(), &fakeLLM{})

	req := httptest.NewRequest(http.MethodPost,
		"/api/v1/environments/env1/conversations/nope/chat",
		strings.NewReader(`{"message":"hi"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatUnknownEnvironmentFailsBeforeStreaming(t *testing.T) {
	router := newRouter(&fakeStore{docs: map[string]map[string]any{}}, &fakeLLM{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/environments/ghost/chat",
		strings.NewReader(`{"message":"hi"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestEnvironmentGet(t *testing.T) {
	store := seededStore()
	svc := service.NewChatService(store, &fakeLLM{}, "test-model", logger.Nop())
	h := NewEnvironmentHandler(svc, logger.Nop())

	r := chi.NewRouter()
	r.Get("/api/v1/environments/{envID}", h.Get)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/environments/env1", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":"env1","name":"Demo"}`, rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/api/v1/environments/ghost", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
