package entity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskscope/envchat/internal/firestore"
)

type getCall struct {
	path     string
	useCache bool
}

type setCall struct {
	path   string
	fields map[string]any
}

// fakeStore serves decoded documents from a map and records every call.
// ActiveContexts fetches concurrently, so access is locked.
type fakeStore struct {
	mu       sync.Mutex
	docs     map[string]map[string]any
	getCalls []getCall
	setCalls []setCall
}

func newFakeStore() *fakeStore {
	return &fakeStore{docs: make(map[string]map[string]any)}
}

func (f *fakeStore) GetDocument(ctx context.Context, path string, useCache bool) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls = append(f.getCalls, getCall{path: path, useCache: useCache})
	doc, ok := f.docs[path]
	if !ok {
		return nil, &firestore.StoreError{Status: 404, Body: "not found"}
	}
	return doc, nil
}

func (f *fakeStore) SetDocumentMerge(ctx context.Context, path string, fields map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setCalls = append(f.setCalls, setCall{path: path, fields: fields})
	return nil
}

func windowAround(now time.Time) (time.Time, time.Time) {
	return now.Add(-time.Hour), now.Add(time.Hour)
}

func environmentDoc(task string, contextIDs ...string) map[string]any {
	start, end := windowAround(time.Now())
	ids := make([]any, len(contextIDs))
	for i, id := range contextIDs {
		ids[i] = id
	}
	return map[string]any{
		"name":    "Demo",
		"task":    task,
		"startAt": start,
		"endAt":   end,
		"context": ids,
	}
}

func contextDoc(content string, active bool) map[string]any {
	now := time.Now()
	start, end := windowAround(now)
	if !active {
		end = now.Add(-time.Minute)
	}
	return map[string]any{"content": content, "startAt": start, "endAt": end}
}

func TestFetchEnvironment(t *testing.T) {
	store := newFakeStore()
	store.docs["environment/env1"] = environmentDoc("Summarize", "c1", "c2")

	env, err := FetchEnvironment(context.Background(), store, "env1")
	require.NoError(t, err)

	assert.Equal(t, "env1", env.ID)
	assert.Equal(t, "Demo", env.Name)
	assert.Equal(t, "Summarize", env.Task)
	assert.Equal(t, []string{"c1", "c2"}, env.ContextIDs)

	// Environment reads go through the cache.
	require.Len(t, store.getCalls, 1)
	assert.True(t, store.getCalls[0].useCache)
}

func TestFetchEnvironmentMalformed(t *testing.T) {
	store := newFakeStore()
	store.docs["environment/env1"] = map[string]any{"name": "Demo"}

	_, err := FetchEnvironment(context.Background(), store, "env1")

	var shapeErr *firestore.ShapeError
	require.True(t, errors.As(err, &shapeErr))
}

func TestFetchEnvironmentNotFound(t *testing.T) {
	store := newFakeStore()

	_, err := FetchEnvironment(context.Background(), store, "ghost")

	var storeErr *firestore.StoreError
	require.True(t, errors.As(err, &storeErr))
}

func TestActiveContextsPreservesOrder(t *testing.T) {
	store := newFakeStore()
	store.docs["environment/env1"] = environmentDoc("t", "a", "b", "c")
	store.docs["context/a"] = contextDoc("A", true)
	store.docs["context/b"] = contextDoc("B", false)
	store.docs["context/c"] = contextDoc("C", true)

	env, err := FetchEnvironment(context.Background(), store, "env1")
	require.NoError(t, err)

	active, err := env.ActiveContexts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "C"}, active)
}

func TestActiveContextsEmpty(t *testing.T) {
	store := newFakeStore()
	store.docs["environment/env1"] = environmentDoc("t")

	env, err := FetchEnvironment(context.Background(), store, "env1")
	require.NoError(t, err)

	active, err := env.ActiveContexts(context.Background())
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestActiveContextsFetchFailure(t *testing.T) {
	store := newFakeStore()
	store.docs["environment/env1"] = environmentDoc("t", "a", "missing")
	store.docs["context/a"] = contextDoc("A", true)

	env, err := FetchEnvironment(context.Background(), store, "env1")
	require.NoError(t, err)

	_, err = env.ActiveContexts(context.Background())
	require.Error(t, err)
}

func TestContextIsActiveInclusiveBounds(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	point := &Context{StartAt: now, EndAt: now}
	assert.True(t, point.IsActive(now))

	ended := &Context{StartAt: now.Add(-time.Hour), EndAt: now.Add(-time.Second)}
	assert.False(t, ended.IsActive(now))

	upcoming := &Context{StartAt: now.Add(time.Second), EndAt: now.Add(time.Hour)}
	assert.False(t, upcoming.IsActive(now))

	inverted := &Context{StartAt: now.Add(time.Hour), EndAt: now.Add(-time.Hour)}
	assert.False(t, inverted.IsActive(now))
}

func TestFetchConversationBypassesCache(t *testing.T) {
	store := newFakeStore()
	store.docs["environment/e/conversations/c"] = map[string]any{}

	_, err := FetchConversation(context.Background(), store, "e", "c")
	require.NoError(t, err)

	require.Len(t, store.getCalls, 1)
	assert.False(t, store.getCalls[0].useCache)
}

func TestFetchConversationMissingMessages(t *testing.T) {
	store := newFakeStore()
	store.docs["environment/e/conversations/c"] = map[string]any{}

	conv, err := FetchConversation(context.Background(), store, "e", "c")
	require.NoError(t, err)
	assert.Empty(t, conv.Messages)
}

func TestFetchConversationParsesMessages(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeStore()
	store.docs["environment/e/conversations/c"] = map[string]any{
		"messages": []any{
			map[string]any{"role": "user", "content": "hi", "timestamp": ts},
			map[string]any{"role": "assistant", "content": "hello", "timestamp": ts},
		},
	}

	conv, err := FetchConversation(context.Background(), store, "e", "c")
	require.NoError(t, err)

	require.Len(t, conv.Messages, 2)
	assert.Equal(t, Message{Role: "user", Content: "hi", Timestamp: ts}, conv.Messages[0])
	assert.Equal(t, Message{Role: "assistant", Content: "hello", Timestamp: ts}, conv.Messages[1])
}

func TestConversationSaveWritesFullList(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeStore()

	conv := NewConversation(store, "e", "c")
	conv.AddMessage(RoleUser, "hi", ts)
	conv.AddMessage(RoleAssistant, "hello", ts)

	require.NoError(t, conv.Save(context.Background()))

	require.Len(t, store.setCalls, 1)
	call := store.setCalls[0]
	assert.Equal(t, "environment/e/conversations/c", call.path)

	messages, ok := call.fields["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 2)

	first, ok := messages[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, RoleUser, first["role"])
	assert.Equal(t, "hi", first["content"])
	assert.Equal(t, ts, first["timestamp"])
}
