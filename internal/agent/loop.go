package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/user/foreman/internal/config"
	"github.com/user/foreman/internal/prompt"
	"github.com/user/foreman/internal/runner"
	"github.com/user/foreman/internal/service"
	"github.com/user/foreman/internal/telemetry"
	"github.com/user/foreman/internal/types"
)

const scopeName = "github.com/user/foreman/agent"

// Outcome is how one session's run ended.
type Outcome string

const (
	// OutcomeReview means the run finished and the session moved to review.
	OutcomeReview Outcome = "review"
	// OutcomeDiscarded means the status changed out-of-band during the run
	// and was left as found.
	OutcomeDiscarded Outcome = "discarded"
	// OutcomeFailed means the run errored; the status is left as last
	// observed.
	OutcomeFailed Outcome = "failed"
	// OutcomeSkipped means the session was no longer ready at pickup.
	OutcomeSkipped Outcome = "skipped"
)

// Result describes one processed session.
type Result struct {
	Session types.SessionID
	Outcome Outcome
	Chunks  int
	Err     error
}

// Loop advances ready sessions through a runner.
type Loop struct {
	sessions      *service.Sessions
	projects      *service.Projects
	runner        runner.Runner
	prompts       *prompt.Builder
	cfg           *config.Live
	maxConcurrent int

	processed metric.Int64Counter
	chunks    metric.Int64Counter
}

// New builds a processing loop. cfg supplies project repositories and
// prompt presets; maxConcurrent values below 2 process sessions one at a
// time.
func New(svc *service.Services, r runner.Runner, prompts *prompt.Builder, cfg *config.Live, maxConcurrent int) *Loop {
	return &Loop{
		sessions:      svc.Sessions,
		projects:      svc.Projects,
		runner:        r,
		prompts:       prompts,
		cfg:           cfg,
		maxConcurrent: maxConcurrent,
		processed:     telemetry.Counter(scopeName, telemetry.AgentSessions),
		chunks:        telemetry.Counter(scopeName, telemetry.AgentChunks),
	}
}

// Tick processes every session that is ready when it starts, in discovery
// order. Per-session failures are logged and reported in the results; only
// a failure to list sessions is returned as an error.
func (l *Loop) Tick(ctx context.Context) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ready, err := l.sessions.ListByStatus(ctx, types.StatusReady)
	if err != nil {
		return nil, fmt.Errorf("list ready sessions: %w", err)
	}
	if len(ready) == 0 {
		return nil, nil
	}

	results := make([]Result, len(ready))
	if l.maxConcurrent < 2 {
		for i, sess := range ready {
			if err := ctx.Err(); err != nil {
				return results[:i], err
			}
			results[i] = l.process(ctx, sess)
		}
		return results, nil
	}

	var g errgroup.Group
	g.SetLimit(l.maxConcurrent)
	for i, sess := range ready {
		g.Go(func() error {
			if ctx.Err() != nil {
				results[i] = Result{Session: sess.ID, Outcome: OutcomeFailed, Err: ctx.Err()}
				return nil
			}
			results[i] = l.process(ctx, sess)
			return nil
		})
	}
	_ = g.Wait()
	return results, ctx.Err()
}

func (l *Loop) process(ctx context.Context, sess *types.Session) Result {
	res := Result{Session: sess.ID}
	res.Outcome, res.Chunks, res.Err = l.run(ctx, sess)

	l.processed.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", string(res.Outcome))))
	if res.Err != nil {
		slog.Error("session run failed", "session_id", sess.ID, "chunks", res.Chunks, "error", res.Err)
	} else {
		slog.Info("session run finished", "session_id", sess.ID, "outcome", res.Outcome, "chunks", res.Chunks)
	}
	return res
}

func (l *Loop) run(ctx context.Context, sess *types.Session) (Outcome, int, error) {
	status, err := l.sessions.Status(ctx, sess.ID)
	if err != nil {
		return OutcomeFailed, 0, fmt.Errorf("pick up: %w", err)
	}
	if status != types.StatusReady {
		return OutcomeSkipped, 0, nil
	}
	sess, err = l.sessions.SetStatus(ctx, sess.ID, types.StatusInProgress)
	if err != nil {
		return OutcomeFailed, 0, fmt.Errorf("pick up: %w", err)
	}

	repo, err := l.repository(ctx, sess.Project)
	if err != nil {
		return OutcomeFailed, 0, err
	}
	cfg := l.cfg.Current()
	var preset string
	if sess.Preset != "" {
		p, ok := cfg.Prompt(sess.Preset)
		if !ok {
			slog.Warn("unknown prompt preset", "session_id", sess.ID, "preset", sess.Preset)
		}
		preset = p
	}

	p, err := l.prompts.Build(prompt.Input{
		Session:    sess,
		Repository: repo,
		Preset:     preset,
		Resuming:   sess.ResumeToken != "",
	})
	if err != nil {
		return OutcomeFailed, 0, fmt.Errorf("build prompt: %w", err)
	}
	if p.Dropped > 0 {
		slog.Debug("prompt trimmed", "session_id", sess.ID, "dropped", p.Dropped)
	}

	stream, err := l.runner.Start(ctx, runner.Request{
		Prompt:      p.Text,
		System:      p.System,
		WorkDir:     repo,
		ResumeToken: sess.ResumeToken,
		Policy:      runner.AllowAll{},
	})
	if err != nil {
		return OutcomeFailed, 0, fmt.Errorf("%w: start: %w", types.ErrExternalTask, err)
	}
	defer stream.Close()

	chunks, cancelled, err := l.consume(ctx, sess, stream)
	if err != nil {
		return OutcomeFailed, chunks, err
	}
	if cancelled {
		return OutcomeDiscarded, chunks, nil
	}

	// The status may have changed after the last chunk was checked.
	status, err = l.sessions.Status(ctx, sess.ID)
	if err != nil {
		return OutcomeFailed, chunks, err
	}
	if status != types.StatusInProgress {
		return OutcomeDiscarded, chunks, nil
	}
	if _, err := l.sessions.SetStatus(ctx, sess.ID, types.StatusReview); err != nil {
		return OutcomeFailed, chunks, err
	}
	return OutcomeReview, chunks, nil
}

// consume reads the stream until it ends or the session leaves
// in-progress. The status is re-read before acting on every chunk.
func (l *Loop) consume(ctx context.Context, sess *types.Session, stream runner.Stream) (chunks int, cancelled bool, err error) {
	token := sess.ResumeToken
	for stream.Next() {
		status, err := l.sessions.Status(ctx, sess.ID)
		if err != nil {
			return chunks, false, err
		}
		if status != types.StatusInProgress {
			slog.Info("session cancelled mid-run", "session_id", sess.ID, "status", status)
			return chunks, true, nil
		}

		chunk := stream.Current()
		chunks++
		l.chunks.Add(ctx, 1)

		if chunk.ResumeToken != "" && chunk.ResumeToken != token {
			token = chunk.ResumeToken
			if _, err := l.sessions.Update(ctx, sess.ID, types.SessionUpdated{ResumeToken: &token}); err != nil {
				return chunks, false, err
			}
		}
		if chunk.Conversational() {
			msg := types.Message{Role: chunk.Role, Content: chunk.Content}
			if _, err := l.sessions.AppendMessages(ctx, sess.ID, msg); err != nil {
				return chunks, false, err
			}
		}
	}
	if err := stream.Err(); err != nil {
		if !errors.Is(err, types.ErrExternalTask) {
			err = fmt.Errorf("%w: %w", types.ErrExternalTask, err)
		}
		return chunks, false, err
	}
	return chunks, false, nil
}

// repository resolves the working directory for project: the project
// entity first, then the config file.
func (l *Loop) repository(ctx context.Context, project types.ProjectID) (string, error) {
	p, err := l.projects.Get(ctx, project)
	switch {
	case err == nil && p.Repository != "":
		return p.Repository, nil
	case err != nil && !errors.Is(err, types.ErrNotFound):
		return "", err
	}
	if repo := l.cfg.Current().Repository(string(project)); repo != "" {
		return repo, nil
	}
	return "", fmt.Errorf("%w: no repository configured for project %s", types.ErrMissingResource, project)
}
