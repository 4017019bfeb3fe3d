package entity

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// Environment is a named task with a validity window and an ordered list of
// associated context ids. Environments are read-only from this service.
type Environment struct {
	ID         string
	Name       string
	Task       string
	StartAt    time.Time
	EndAt      time.Time
	ContextIDs []string

	store Store
}

func environmentPath(id string) string {
	return "environment/" + id
}

// FetchEnvironment loads an environment document, read-through cached.
func FetchEnvironment(ctx context.Context, store Store, id string) (*Environment, error) {
	path := environmentPath(id)
	doc, err := store.GetDocument(ctx, path, true)
	if err != nil {
		return nil, err
	}

	name, err := stringField(doc, path, "name")
	if err != nil {
		return nil, err
	}
	task, err := stringField(doc, path, "task")
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

	return &Environment{
		ID:         id,
		Name:       name,
		Task:       task,
		StartAt:    startAt,
		EndAt:      endAt,
		ContextIDs: stringSliceField(doc, "context"),
		store:      store,
	}, nil
}

// ActiveContexts fetches every referenced context concurrently and returns
// the content of those active right now, in the environment's original
// context order. Completion order of the fetches is irrelevant; results are
// zipped back to their positions.
func (e *Environment) ActiveContexts(ctx context.Context) ([]string, error) {
	contexts := make([]*Context, len(e.ContextIDs))

	g, gctx := errgroup.WithContext(ctx)
	for i, id := range e.ContextIDs {
		i, id := i, id
		g.Go(func() error {
			c, err := FetchContext(gctx, e.store, id)
			if err != nil {
				return err
			}
			contexts[i] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	now := time.Now()
	active := make([]string, 0, len(contexts))
	for _, c := range contexts {
		if c.IsActive(now) {
			active = append(active, c.Content)
		}
	}
	return active, nil
}
