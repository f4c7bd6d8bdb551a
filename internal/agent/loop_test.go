package agent

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/foreman/internal/config"
	"github.com/user/foreman/internal/prompt"
	"github.com/user/foreman/internal/runner"
	"github.com/user/foreman/internal/service"
	"github.com/user/foreman/internal/state"
	"github.com/user/foreman/internal/types"
)

// scriptedStream yields fixed chunks. before runs ahead of chunk i being
// produced and atEnd runs once when the script is exhausted, which is
// where tests flip session status out-of-band.
type scriptedStream struct {
	chunks []runner.Chunk
	err    error
	before func(i int)
	atEnd  func()

	i      int
	cur    runner.Chunk
	ended  bool
	closed bool
}

func (s *scriptedStream) Next() bool {
	if s.i >= len(s.chunks) {
		if !s.ended && s.atEnd != nil {
			s.atEnd()
		}
		s.ended = true
		return false
	}
	if s.before != nil {
		s.before(s.i)
	}
	s.cur = s.chunks[s.i]
	s.i++
	return true
}

func (s *scriptedStream) Current() runner.Chunk { return s.cur }

func (s *scriptedStream) Err() error {
	if s.i < len(s.chunks) {
		return nil
	}
	return s.err
}

func (s *scriptedStream) Close() error {
	s.closed = true
	return nil
}

type fakeRunner struct {
	mu       sync.Mutex
	requests []runner.Request
	streams  map[string]*scriptedStream
	startErr error
}

func (f *fakeRunner) Start(_ context.Context, req runner.Request) (runner.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.startErr != nil {
		return nil, f.startErr
	}
	if s, ok := f.streams[req.WorkDir]; ok {
		return s, nil
	}
	return &scriptedStream{chunks: []runner.Chunk{{Role: "assistant", Content: "done"}}}, nil
}

type fixture struct {
	svc    *service.Services
	runner *fakeRunner
	cfg    *config.Config
	loop   *Loop
}

func newFixture(t *testing.T, maxConcurrent int) *fixture {
	t.Helper()
	store, err := state.Open(context.Background(), filepath.Join(t.TempDir(), "foreman.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	svc := service.New(store)
	cfg := config.Defaults()
	cfg.Projects = map[string]config.Project{
		"web": {Repository: "/src/web"},
		"api": {Repository: "/src/api"},
	}
	cfg.Prompts = map[string]string{"careful": "Run the tests before replying."}
	r := &fakeRunner{streams: map[string]*scriptedStream{}}
	words := func(s string) int { return len(strings.Fields(s)) }
	loop := New(svc, r, prompt.NewWithCounter(words, 10000), config.Static(cfg), maxConcurrent)
	return &fixture{svc: svc, runner: r, cfg: cfg, loop: loop}
}

func (f *fixture) create(t *testing.T, project types.ProjectID, text string) *types.Session {
	t.Helper()
	s, err := f.svc.Sessions.Create(context.Background(), service.NewSession{Project: project, Prompt: text})
	require.NoError(t, err)
	return s
}

func (f *fixture) session(t *testing.T, id types.SessionID) *types.Session {
	t.Helper()
	s, err := f.svc.Sessions.Get(context.Background(), id)
	require.NoError(t, err)
	return s
}

func TestTickMovesReadySessionToReview(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	sess := f.create(t, "web", "fix the login page")
	stream := &scriptedStream{chunks: []runner.Chunk{
		{ResumeToken: "run-1"},
		{Role: "assistant", Content: "Looking at the login form."},
		{Role: "tool", Content: "$ go test ./..."},
		{Role: "assistant", Content: "Fixed."},
	}}
	f.runner.streams["/src/web"] = stream

	results, err := f.loop.Tick(ctx)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, OutcomeReview, results[0].Outcome)
	assert.Equal(t, 4, results[0].Chunks)
	assert.NoError(t, results[0].Err)

	got := f.session(t, sess.ID)
	assert.Equal(t, types.StatusReview, got.Status)
	assert.Equal(t, "run-1", got.ResumeToken)
	require.Len(t, got.Messages, 4)
	assert.Equal(t, "user", got.Messages[0].Role)
	assert.Equal(t, "Fixed.", got.Messages[3].Content)
	assert.True(t, stream.closed)

	require.Len(t, f.runner.requests, 1)
	req := f.runner.requests[0]
	assert.Equal(t, "/src/web", req.WorkDir)
	assert.Empty(t, req.ResumeToken)
	assert.IsType(t, runner.AllowAll{}, req.Policy)
	assert.Contains(t, req.Prompt, "fix the login page")

	// Nothing is ready any more.
	results, err = f.loop.Tick(ctx)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestStatusChangeMidStreamStopsConsuming(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	sess := f.create(t, "web", "refactor")
	stream := &scriptedStream{chunks: []runner.Chunk{
		{Role: "assistant", Content: "first"},
		{Role: "assistant", Content: "second"},
		{Role: "assistant", Content: "third"},
	}}
	stream.before = func(i int) {
		if i == 1 {
			_, err := f.svc.Sessions.SetStatus(ctx, sess.ID, types.StatusDone)
			require.NoError(t, err)
		}
	}
	f.runner.streams["/src/web"] = stream

	results, err := f.loop.Tick(ctx)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, OutcomeDiscarded, results[0].Outcome)
	assert.Equal(t, 1, results[0].Chunks)

	got := f.session(t, sess.ID)
	assert.Equal(t, types.StatusDone, got.Status)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "first", got.Messages[1].Content)
	assert.Equal(t, 2, stream.i, "third chunk must never be produced")
	assert.True(t, stream.closed)
}

func TestStatusChangeAfterLastChunkIsLeftAlone(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	sess := f.create(t, "web", "bump deps")
	f.runner.streams["/src/web"] = &scriptedStream{
		chunks: []runner.Chunk{{Role: "assistant", Content: "bumped"}},
		atEnd: func() {
			_, err := f.svc.Sessions.SetStatus(ctx, sess.ID, types.StatusReady)
			require.NoError(t, err)
		},
	}

	results, err := f.loop.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDiscarded, results[0].Outcome)
	assert.Equal(t, types.StatusReady, f.session(t, sess.ID).Status)
}

func TestMissingRepositorySkipsOnlyThatSession(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	orphan := f.create(t, "nowhere", "anything")
	ok := f.create(t, "api", "add endpoint")

	results, err := f.loop.Tick(ctx)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, orphan.ID, results[0].Session)
	assert.Equal(t, OutcomeFailed, results[0].Outcome)
	assert.ErrorIs(t, results[0].Err, types.ErrMissingResource)
	assert.Equal(t, types.StatusInProgress, f.session(t, orphan.ID).Status)

	assert.Equal(t, OutcomeReview, results[1].Outcome)
	assert.Equal(t, types.StatusReview, f.session(t, ok.ID).Status)
	require.Len(t, f.runner.requests, 1)
	assert.Equal(t, "/src/api", f.runner.requests[0].WorkDir)
}

func TestProjectRepositoryOverridesConfig(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	_, err := f.svc.Projects.Create(ctx, service.NewProject{ID: "web", Repository: "/work/web"})
	require.NoError(t, err)
	f.create(t, "web", "x")

	_, err = f.loop.Tick(ctx)
	require.NoError(t, err)
	require.Len(t, f.runner.requests, 1)
	assert.Equal(t, "/work/web", f.runner.requests[0].WorkDir)
}

func TestRunnerFailures(t *testing.T) {
	t.Run("start", func(t *testing.T) {
		f := newFixture(t, 1)
		f.runner.startErr = errors.New("binary not found")
		sess := f.create(t, "web", "x")

		results, err := f.loop.Tick(context.Background())
		require.NoError(t, err)
		assert.Equal(t, OutcomeFailed, results[0].Outcome)
		assert.ErrorIs(t, results[0].Err, types.ErrExternalTask)
		assert.Equal(t, types.StatusInProgress, f.session(t, sess.ID).Status)
	})

	t.Run("mid stream", func(t *testing.T) {
		f := newFixture(t, 1)
		sess := f.create(t, "web", "x")
		f.runner.streams["/src/web"] = &scriptedStream{
			chunks: []runner.Chunk{{Role: "assistant", Content: "partial"}},
			err:    errors.New("exit status 1"),
		}

		results, err := f.loop.Tick(context.Background())
		require.NoError(t, err)
		assert.Equal(t, OutcomeFailed, results[0].Outcome)
		assert.ErrorIs(t, results[0].Err, types.ErrExternalTask)

		got := f.session(t, sess.ID)
		assert.Equal(t, types.StatusInProgress, got.Status)
		require.Len(t, got.Messages, 2)
		assert.Equal(t, "partial", got.Messages[1].Content)
	})
}

func TestResumeTokenAndPresetArePassed(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	sess, err := f.svc.Sessions.Create(ctx, service.NewSession{Project: "web", Preset: "careful", Prompt: "continue"})
	require.NoError(t, err)
	token := "run-7"
	_, err = f.svc.Sessions.Update(ctx, sess.ID, types.SessionUpdated{ResumeToken: &token})
	require.NoError(t, err)

	_, err = f.loop.Tick(ctx)
	require.NoError(t, err)
	require.Len(t, f.runner.requests, 1)
	req := f.runner.requests[0]
	assert.Equal(t, "run-7", req.ResumeToken)
	assert.Contains(t, req.Prompt+req.System, "Run the tests before replying.")
}

func TestConcurrentTickProcessesAll(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()
	var ids []types.SessionID
	for range 4 {
		ids = append(ids, f.create(t, "web", "task").ID)
	}

	results, err := f.loop.Tick(ctx)
	require.NoError(t, err)
	require.Len(t, results, 4)
	for i, res := range results {
		assert.Equal(t, ids[i], res.Session)
		assert.Equal(t, OutcomeReview, res.Outcome)
		assert.Equal(t, types.StatusReview, f.session(t, res.Session).Status)
	}
}

func TestTickStopsOnCancelledContext(t *testing.T) {
	f := newFixture(t, 1)
	f.create(t, "web", "x")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := f.loop.Tick(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, results)
}
