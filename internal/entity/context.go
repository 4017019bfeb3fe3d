package entity

import (
	"context"
	"time"
)

// Context is a time-windowed piece of background text, injected into the
// system prompt while its validity window contains the current time.
type Context struct {
	ID      string
	Content string
	StartAt time.Time
	EndAt   time.Time
}

func contextPath(id string) string {
	return "context/" + id
}

// FetchContext loads a context document, read-through cached.
func FetchContext(ctx context.Context, store Store, id string) (*Context, error) {
	path := contextPath(id)
	doc, err := store.GetDocument(ctx, path, true)
	if err != nil {
		return nil, err
	}

	content, err := stringField(doc, path, "content")
	if err != nil {
		return nil, err
	}
	startAt, err := timeField(doc, path, "startAt")
	if err != nil {
		return nil, err
	}
	endAt, err := timeField(doc, path, "endAt")
	if err != nil {
		return nil, err
	}

	return &Context{ID: id, Content: content, StartAt: startAt, EndAt: endAt}, nil
}

// IsActive reports whether now lies within the validity window, bounds
// inclusive. An inverted window is never active.
func (c *Context) IsActive(now time.Time) bool {
	return !now.Before(c.StartAt) && !now.After(c.EndAt)
}
