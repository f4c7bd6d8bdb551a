package service

import (
	"context"
	"fmt"

	"github.com/user/foreman/internal/types"
)

type NewProject struct {
	ID          types.ProjectID
	Name        string
	Repository  string
	Description string
}

type Projects struct {
	w *writer
}

// Create records a new project. It fails with types.ErrExists when the
// project already has a view.
func (p *Projects) Create(ctx context.Context, in NewProject) (*types.Project, error) {
	if err := types.ValidateProjectID(in.ID); err != nil {
		return nil, err
	}
	name := in.Name
	if name == "" {
		name = string(in.ID)
	}

	lock := p.w.getLock(string(in.ID))
	lock.Lock()
	defer lock.Unlock()

	ok, err := p.w.exists(ctx, types.KindProject, string(in.ID))
	if err != nil {
		return nil, err
	}
	if ok {
		return nil, fmt.Errorf("create project %s: %w", in.ID, types.ErrExists)
	}

	payload := types.ProjectCreated{
		ID:         types.Ptr(in.ID),
		Name:       types.Ptr(name),
		Repository: types.Ptr(in.Repository),
	}
	if in.Description != "" {
		payload.Description = types.Ptr(in.Description)
	}
	var out types.Project
	if err := p.w.mutateLocked(ctx, string(in.ID), types.EventProjectCreated, payload, &out); err != nil {
		return nil, fmt.Errorf("create project %s: %w", in.ID, err)
	}
	return &out, nil
}

// Update merges the set fields of u into the project.
func (p *Projects) Update(ctx context.Context, id types.ProjectID, u types.ProjectUpdated) (*types.Project, error) {
	lock := p.w.getLock(string(id))
	lock.Lock()
	defer lock.Unlock()

	ok, err := p.w.exists(ctx, types.KindProject, string(id))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("update project %s: %w", id, types.ErrNotFound)
	}
	var out types.Project
	if err := p.w.mutateLocked(ctx, string(id), types.EventProjectUpdated, u, &out); err != nil {
		return nil, fmt.Errorf("update project %s: %w", id, err)
	}
	return &out, nil
}

func (p *Projects) Get(ctx context.Context, id types.ProjectID) (*types.Project, error) {
	return get[types.Project](ctx, p.w.views, types.KindProject, string(id))
}

func (p *Projects) List(ctx context.Context) ([]*types.Project, error) {
	return list[types.Project](ctx, p.w.views, types.KindProject)
}
