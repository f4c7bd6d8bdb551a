package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/user/foreman/internal/api"
	"github.com/user/foreman/internal/scheduler"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the agent loop, the relay and the HTTP API in one process",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func writePIDFile(dataDir string) (string, error) {
	pidPath := filepath.Join(dataDir, "foreman.pid")
	pid := os.Getpid()
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(pid)+"\n"), 0644); err != nil {
		return "", fmt.Errorf("write PID file: %w", err)
	}
	return pidPath, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	defer a.startTelemetry(ctx)()

	pidPath, err := writePIDFile(a.cfg.DataDir)
	if err != nil {
		return err
	}
	defer os.Remove(pidPath)

	sched := scheduler.New()

	agentLoop, err := a.agentLoop()
	if err != nil {
		return err
	}
	if err := scheduleAgent(sched, agentLoop, a.cfg.Agent.Interval); err != nil {
		return err
	}

	if relayLoop, err := a.relayLoop(); err != nil {
		slog.Warn("relay disabled", "error", err)
	} else if err := scheduleRelay(sched, relayLoop, a.cfg.Relay.Interval); err != nil {
		return err
	}

	var listen func(context.Context) error
	if a.cfg.HTTP.Enabled {
		srv := api.NewServer(a.svc, a.store)
		listen = func(ctx context.Context) error { return srv.ListenAndServe(ctx, a.cfg.HTTP.Listen) }
	}

	slog.Info("foreman started",
		"data_dir", a.cfg.DataDir,
		"database", a.cfg.DatabasePath(),
		"runner", a.cfg.Agent.Runner,
		"max_concurrent", a.cfg.Agent.MaxConcurrent,
		"relay_backend", a.cfg.Relay.Backend,
		"http", a.cfg.HTTP.Enabled,
		"pid_file", pidPath,
	)
	err = serveUntilDone(ctx, sched, listen)
	slog.Info("shutting down")
	return err
}

// serveUntilDone runs the scheduled loops and, when listen is set, the API
// until ctx ends. An API failure stops the loops and is returned.
func serveUntilDone(ctx context.Context, sched *scheduler.Scheduler, listen func(context.Context) error) error {
	g, ctx := errgroup.WithContext(ctx)
	if listen != nil {
		g.Go(func() error {
			if err := listen(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("api server: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error { return runUntilDone(ctx, sched) })
	return g.Wait()
}
