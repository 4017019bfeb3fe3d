package entity

import (
	"context"
	"time"
)

// Message roles. Stored as plain strings in the conversation document.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry in a conversation. Immutable once appended.
type Message struct {
	Role      string
	Content   string
	Timestamp time.Time
}

// Conversation is the ordered message history for one chat session, scoped
// to an environment. Appends happen in memory; Save persists the whole list.
type Conversation struct {
	EnvID    string
	ID       string
	Messages []Message

	store Store
}

func conversationPath(envID, convID string) string {
	return "environment/" + envID + "/conversations/" + convID
}

// NewConversation constructs an empty conversation that has not been
// persisted yet.
func NewConversation(store Store, envID, convID string) *Conversation {
	return &Conversation{EnvID: envID, ID: convID, store: store}
}

// FetchConversation loads a conversation document. Conversation reads bypass
// the cache so the history always reflects the latest write. A document
// without a messages field yields an empty conversation.
func FetchConversation(ctx context.Context, store Store, envID, convID string) (*Conversation, error) {
	path := conversationPath(envID, convID)
	doc, err := store.GetDocument(ctx, path, false)
	if err != nil {
		return nil, err
	}

	conv := NewConversation(store, envID, convID)
	items, _ := doc["messages"].([]any)
	conv.Messages = make([]Message, 0, len(items))
	for _, item := range items {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		role, _ := entry["role"].(string)
		content, _ := entry["content"].(string)
		ts, _ := entry["timestamp"].(time.Time)
		conv.Messages = append(conv.Messages, Message{Role: role, Content: content, Timestamp: ts})
	}
	return conv, nil
}

// AddMessage appends a message in insertion order. Nothing is persisted
// until Save.
func (c *Conversation) AddMessage(role, content string, timestamp time.Time) {
	c.Messages = append(c.Messages, Message{Role: role, Content: content, Timestamp: timestamp})
}

// Save merge-writes the full message list. The store client invalidates any
// cache entry for the path on success.
func (c *Conversation) Save(ctx context.Context) error {
	messages := make([]any, len(c.Messages))
	for i, m := range c.Messages {
		messages[i] = map[string]any{
			"role":      m.Role,
			"content":   m.Content,
			"timestamp": m.Timestamp,
		}
	}
	return c.store.SetDocumentMerge(ctx, conversationPath(c.EnvID, c.ID), map[string]any{
		"messages": messages,
	})
}
