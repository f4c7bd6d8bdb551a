package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/user/foreman/internal/agent"
	"github.com/user/foreman/internal/config"
	"github.com/user/foreman/internal/delivery"
	"github.com/user/foreman/internal/prompt"
	"github.com/user/foreman/internal/relay"
	"github.com/user/foreman/internal/runner"
	"github.com/user/foreman/internal/runner/tools"
	"github.com/user/foreman/internal/service"
	"github.com/user/foreman/internal/slackrelay"
	"github.com/user/foreman/internal/state"
	"github.com/user/foreman/internal/telegram"
	"github.com/user/foreman/internal/telemetry"
)

// app holds the long-lived dependencies shared by commands.
type app struct {
	cfg   *config.Config
	store *state.Store
	svc   *service.Services
}

func openApp(ctx context.Context) (*app, error) {
	cfg := loadConfig()
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	store, err := state.Open(ctx, cfg.DatabasePath())
	if err != nil {
		return nil, err
	}
	svc := service.New(store, service.WithLockDir(cfg.DataDir))
	return &app{cfg: cfg, store: store, svc: svc}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		slog.Warn("close store", "error", err)
	}
}

func (a *app) startTelemetry(ctx context.Context) func() {
	opts := telemetry.Options{Enabled: a.cfg.Telemetry.Enabled, Stdout: a.cfg.Telemetry.Stdout}
	if err := telemetry.Init(ctx, opts, "foreman", version); err != nil {
		slog.Warn("telemetry disabled", "error", err)
	}
	return func() { telemetry.Shutdown(context.Background()) }
}

// target registers every configured chat backend; relay.backend picks
// where new channels are created.
func (a *app) target() (delivery.Target, error) {
	reg := delivery.NewRegistry(a.cfg.Relay.Backend)
	if a.cfg.Slack.Token != "" {
		reg.Register("slack", slackrelay.New(a.cfg.Slack.Token))
	}
	if a.cfg.Telegram.Token != "" {
		tg, err := telegram.New(a.cfg.Telegram.Token, a.cfg.Telegram.ChatID)
		if err != nil {
			return nil, fmt.Errorf("telegram: %w", err)
		}
		reg.Register("telegram", tg)
	}
	if len(reg.Schemes()) == 0 {
		return nil, fmt.Errorf("no relay backend configured (set slack.token or telegram.token)")
	}
	return reg, nil
}

func (a *app) relayLoop() (*relay.Loop, error) {
	target, err := a.target()
	if err != nil {
		return nil, err
	}
	return relay.New(a.store, a.svc, target, relay.Config{
		LogChannel: a.cfg.Relay.LogChannel,
		BatchLimit: a.cfg.Relay.BatchLimit,
	}), nil
}

func (a *app) runner() (runner.Runner, error) {
	switch a.cfg.Agent.Runner {
	case "claude", "":
		return runner.NewCLI(a.cfg.Agent.ClaudePath, a.cfg.Agent.Model), nil
	case "anthropic":
		if a.cfg.Anthropic.APIKey == "" {
			return nil, fmt.Errorf("anthropic runner needs anthropic.api_key or ANTHROPIC_API_KEY")
		}
		count, err := prompt.Counter(a.cfg.Agent.Model)
		if err != nil {
			return nil, err
		}
		return runner.NewAnthropic(a.cfg.Anthropic.APIKey, runner.AnthropicOptions{
			Model:     a.cfg.Agent.Model,
			MaxTokens: int64(a.cfg.Agent.MaxTokens),
			MaxRounds: a.cfg.Agent.MaxRounds,
			// A fetched page may take a quarter of the context.
			ToolBudget: tools.Budget{Tokens: a.cfg.Agent.ContextTokens / 4, Count: count},
		}), nil
	}
	return nil, fmt.Errorf("unknown agent.runner %q (want claude or anthropic)", a.cfg.Agent.Runner)
}

// agentLoop watches the config file so project repositories and prompt
// presets can change while the loop runs.
func (a *app) agentLoop() (*agent.Loop, error) {
	r, err := a.runner()
	if err != nil {
		return nil, err
	}
	builder, err := prompt.New(a.cfg.Agent.Model, a.cfg.Agent.ContextTokens)
	if err != nil {
		return nil, err
	}
	live, err := config.Watch(cfgPath)
	if err != nil {
		slog.Warn("config watch unavailable, using loaded config", "error", err)
		live = config.Static(a.cfg)
	}
	return agent.New(a.svc, r, builder, live, a.cfg.Agent.MaxConcurrent), nil
}
