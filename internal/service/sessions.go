package service

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/user/foreman/internal/types"
)

const ordinalLockPoll = 50 * time.Millisecond

// NewSession describes a session to create. Status defaults to ready and
// Prompt, when set, becomes the first user message.
type NewSession struct {
	Project types.ProjectID
	Title   string
	Preset  string
	Status  types.Status
	Prompt  string
}

type Sessions struct {
	w *writer
}

// Create allocates the next ordinal for the project and records the new
// session. Ordinal allocation holds an in-process lock and, when a lock
// dir is configured, a file lock shared with other foreman processes.
func (s *Sessions) Create(ctx context.Context, in NewSession) (*types.Session, error) {
	if err := types.ValidateProjectID(in.Project); err != nil {
		return nil, err
	}
	status := in.Status
	if status == "" {
		status = types.StatusReady
	}

	lock := s.w.getLock("ordinal:" + string(in.Project))
	lock.Lock()
	defer lock.Unlock()

	if s.w.lockDir != "" {
		fl := flock.New(filepath.Join(s.w.lockDir, string(in.Project)+".lock"))
		locked, err := fl.TryLockContext(ctx, ordinalLockPoll)
		if err != nil {
			return nil, fmt.Errorf("lock project %s: %w", in.Project, err)
		}
		if !locked {
			return nil, fmt.Errorf("lock project %s: not acquired", in.Project)
		}
		defer fl.Unlock()
	}

	ordinal, err := s.nextOrdinal(ctx, in.Project)
	if err != nil {
		return nil, err
	}
	id := types.NewSessionID(in.Project, ordinal)

	payload := types.SessionCreated{
		ID:      types.Ptr(id),
		Project: types.Ptr(in.Project),
		Status:  types.Ptr(status),
	}
	if in.Title != "" {
		payload.Title = types.Ptr(in.Title)
	}
	if in.Preset != "" {
		payload.Preset = types.Ptr(in.Preset)
	}

	var out types.Session
	if err := s.w.mutate(ctx, string(id), types.EventSessionCreated, payload, &out); err != nil {
		return nil, fmt.Errorf("create session %s: %w", id, err)
	}
	if in.Prompt == "" {
		return &out, nil
	}
	return s.AppendMessages(ctx, id, types.Message{Role: "user", Content: in.Prompt})
}

// nextOrdinal returns one past the highest ordinal among the project's
// session views.
func (s *Sessions) nextOrdinal(ctx context.Context, project types.ProjectID) (int, error) {
	prefix := types.ViewKey(types.KindSession, string(project)+"-")
	views, err := s.w.views.ListViews(ctx, prefix)
	if err != nil {
		return 0, fmt.Errorf("scan sessions of %s: %w", project, err)
	}
	highest := 0
	for _, v := range views {
		id := types.SessionID(v.Key[len(types.KindSession)+1:])
		p, n, err := id.Split()
		if err != nil || p != project {
			continue
		}
		highest = max(highest, n)
	}
	return highest + 1, nil
}

// Get returns the session or an error wrapping types.ErrNotFound.
func (s *Sessions) Get(ctx context.Context, id types.SessionID) (*types.Session, error) {
	return get[types.Session](ctx, s.w.views, types.KindSession, string(id))
}

// Status reads the persisted status of a session.
func (s *Sessions) Status(ctx context.Context, id types.SessionID) (types.Status, error) {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return sess.Status, nil
}

// List returns every session in discovery order.
func (s *Sessions) List(ctx context.Context) ([]*types.Session, error) {
	return list[types.Session](ctx, s.w.views, types.KindSession)
}

// ListByStatus returns the sessions currently at status, in discovery order.
func (s *Sessions) ListByStatus(ctx context.Context, status types.Status) ([]*types.Session, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []*types.Session
	for _, sess := range all {
		if sess.Status == status {
			out = append(out, sess)
		}
	}
	return out, nil
}

// Update merges the set fields of u into the session.
func (s *Sessions) Update(ctx context.Context, id types.SessionID, u types.SessionUpdated) (*types.Session, error) {
	var out types.Session
	err := s.withExisting(ctx, id, func() error {
		return s.w.mutateLocked(ctx, string(id), types.EventSessionUpdated, u, &out)
	})
	if err != nil {
		return nil, fmt.Errorf("update session %s: %w", id, err)
	}
	return &out, nil
}

// SetStatus moves the session to status.
func (s *Sessions) SetStatus(ctx context.Context, id types.SessionID, status types.Status) (*types.Session, error) {
	return s.Update(ctx, id, types.SessionUpdated{Status: types.Ptr(status)})
}

// AppendMessages adds messages to the end of the transcript. Messages
// without a timestamp are stamped with the service clock.
func (s *Sessions) AppendMessages(ctx context.Context, id types.SessionID, msgs ...types.Message) (*types.Session, error) {
	now := s.w.now()
	for i := range msgs {
		if msgs[i].At.IsZero() {
			msgs[i].At = now
		}
	}
	var out types.Session
	err := s.withExisting(ctx, id, func() error {
		return s.w.mutateLocked(ctx, string(id), types.EventSessionAppendMessages,
			types.SessionAppendMessages{Messages: msgs}, &out)
	})
	if err != nil {
		return nil, fmt.Errorf("append to session %s: %w", id, err)
	}
	return &out, nil
}

// withExisting runs fn under the session's partition lock once the session
// is known to exist.
func (s *Sessions) withExisting(ctx context.Context, id types.SessionID, fn func() error) error {
	lock := s.w.getLock(string(id))
	lock.Lock()
	defer lock.Unlock()

	ok, err := s.w.exists(ctx, types.KindSession, string(id))
	if err != nil {
		return err
	}
	if !ok {
		return types.ErrNotFound
	}
	return fn()
}
