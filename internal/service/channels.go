package service

import (
	"context"
	"fmt"

	"github.com/user/foreman/internal/types"
)

// Channels records the external relay channel of each project.
type Channels struct {
	w *writer
}

// Create records the channel for a project, keyed "#<project>".
func (c *Channels) Create(ctx context.Context, project types.ProjectID, externalID, name string) (*types.Channel, error) {
	id := types.ChannelFor(project)
	payload := types.ChannelCreated{
		ID:         types.Ptr(id),
		Project:    types.Ptr(project),
		ExternalID: types.Ptr(externalID),
		Name:       types.Ptr(name),
	}
	var out types.Channel
	if err := c.w.mutate(ctx, string(id), types.EventChannelCreated, payload, &out); err != nil {
		return nil, fmt.Errorf("create channel %s: %w", id, err)
	}
	return &out, nil
}

// Update merges the set fields of u into the project's channel.
func (c *Channels) Update(ctx context.Context, project types.ProjectID, u types.ChannelUpdated) (*types.Channel, error) {
	id := types.ChannelFor(project)
	lock := c.w.getLock(string(id))
	lock.Lock()
	defer lock.Unlock()

	ok, err := c.w.exists(ctx, types.KindChannel, string(id))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("update channel %s: %w", id, types.ErrNotFound)
	}
	var out types.Channel
	if err := c.w.mutateLocked(ctx, string(id), types.EventChannelUpdated, u, &out); err != nil {
		return nil, fmt.Errorf("update channel %s: %w", id, err)
	}
	return &out, nil
}

// Get returns the channel of project or an error wrapping types.ErrNotFound.
func (c *Channels) Get(ctx context.Context, project types.ProjectID) (*types.Channel, error) {
	return get[types.Channel](ctx, c.w.views, types.KindChannel, string(types.ChannelFor(project)))
}
