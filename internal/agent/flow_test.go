package agent_test

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/user/foreman/internal/agent"
	"github.com/user/foreman/internal/config"
	"github.com/user/foreman/internal/prompt"
	"github.com/user/foreman/internal/relay"
	"github.com/user/foreman/internal/runner"
	"github.com/user/foreman/internal/service"
	"github.com/user/foreman/internal/state"
	"github.com/user/foreman/internal/types"
)

type chat struct {
	mu       sync.Mutex
	posts    map[string][]string
	archived []string
	n        int
}

func (c *chat) CreateChannel(_ context.Context, name string) (string, error) {
	return "chat:" + name, nil
}

func (c *chat) Post(_ context.Context, addr, text string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.posts[addr] = append(c.posts[addr], text)
	if strings.Contains(addr, "/") {
		return addr, nil
	}
	c.n++
	return fmt.Sprintf("%s/%d", addr, c.n), nil
}

func (c *chat) Archive(_ context.Context, addr string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.archived = append(c.archived, addr)
	return nil
}

type oneShot struct{ chunks []runner.Chunk }

func (o oneShot) Start(context.Context, runner.Request) (runner.Stream, error) {
	return &sliceStream{chunks: o.chunks}, nil
}

type sliceStream struct {
	chunks []runner.Chunk
	cur    runner.Chunk
}

func (s *sliceStream) Next() bool {
	if len(s.chunks) == 0 {
		return false
	}
	s.cur, s.chunks = s.chunks[0], s.chunks[1:]
	return true
}
func (s *sliceStream) Current() runner.Chunk { return s.cur }
func (s *sliceStream) Err() error            { return nil }
func (s *sliceStream) Close() error          { return nil }

// TestSessionFlow runs a session from creation through the agent loop to
// done while the relay mirrors it into chat.
func TestSessionFlow(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := state.Open(ctx, filepath.Join(dir, "foreman.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	svc := service.New(store, service.WithLockDir(dir))

	target := &chat{posts: map[string][]string{}}
	relayLoop := relay.New(store, svc, target, relay.Config{})
	agentLoop := agent.New(svc, oneShot{chunks: []runner.Chunk{
		{ResumeToken: "r-1"},
		{Role: "assistant", Content: "Added the flag."},
	}}, prompt.NewWithCounter(func(s string) int { return len(s) }, 100000), config.Static(config.Defaults()), 1)

	if _, err := svc.Projects.Create(ctx, service.NewProject{ID: "cli", Repository: dir}); err != nil {
		t.Fatal(err)
	}
	sess, err := svc.Sessions.Create(ctx, service.NewSession{Project: "cli", Title: "Add --json", Prompt: "add a --json flag"})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := relayLoop.Tick(ctx); err != nil {
		t.Fatal(err)
	}
	results, err := agentLoop.Tick(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Outcome != agent.OutcomeReview {
		t.Fatalf("unexpected results: %+v", results)
	}
	if _, err := svc.Sessions.SetStatus(ctx, sess.ID, types.StatusDone); err != nil {
		t.Fatal(err)
	}
	res, err := relayLoop.Tick(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Failed != 0 {
		t.Fatalf("relay reported %d failed groups", res.Failed)
	}

	thread, err := relay.ThreadOf(ctx, store, sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	posts := strings.Join(target.posts[thread], "\n")
	for _, want := range []string{"add a --json flag", "Added the flag.", "in-progress", "review", "done"} {
		if !strings.Contains(posts, want) {
			t.Errorf("thread is missing %q:\n%s", want, posts)
		}
	}
	if len(target.archived) != 1 || target.archived[0] != thread {
		t.Errorf("archived = %v, want [%s]", target.archived, thread)
	}

	got, err := svc.Sessions.Get(ctx, sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ResumeToken != "r-1" || len(got.Messages) != 2 {
		t.Errorf("session = %+v", got)
	}
}
