// Package entity defines typed views over the document shapes this service
// reads and writes: environments, contexts and conversations.
package entity

import (
	"context"
	"time"

	"github.com/taskscope/envchat/internal/firestore"
)

// Store is the slice of the document store client the entities need. The
// process-wide firestore.Client satisfies it and is injected by reference.
type Store interface {
	GetDocument(ctx context.Context, path string, useCache bool) (map[string]any, error)
	SetDocumentMerge(ctx context.Context, path string, fields map[string]any) error
}

// Field extraction helpers. Required fields that are missing or mistyped
// surface as ShapeErrors so resolution failures carry the offending path.

func stringField(doc map[string]any, path, key string) (string, error) {
	v, ok := doc[key].(string)
	if !ok {
		return "", &firestore.ShapeError{Path: path, Reason: "missing or non-string field " + key}
	}
	return v, nil
}

func timeField(doc map[string]any, path, key string) (time.Time, error) {
	v, ok := doc[key].(time.Time)
	if !ok {
		return time.Time{}, &firestore.ShapeError{Path: path, Reason: "missing or non-timestamp field " + key}
	}
	return v, nil
}

func stringSliceField(doc map[string]any, key string) []string {
	items, ok := doc[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
