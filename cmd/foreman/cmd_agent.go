package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/foreman/internal/agent"
	"github.com/user/foreman/internal/relay"
	"github.com/user/foreman/internal/scheduler"
)

var runOnce bool

func init() {
	rootCmd.AddCommand(agentCmd, relayCmd)
	agentCmd.AddCommand(agentStartCmd)
	relayCmd.AddCommand(relayStartCmd)
	agentStartCmd.Flags().BoolVar(&runOnce, "once", false, "process ready sessions once and exit")
	relayStartCmd.Flags().BoolVar(&runOnce, "once", false, "relay new events once and exit")
}

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run the session processing loop",
}

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Run the chat relay",
}

var agentStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Process ready sessions on a fixed interval",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()
		defer a.startTelemetry(ctx)()

		loop, err := a.agentLoop()
		if err != nil {
			return err
		}
		if runOnce {
			results, err := loop.Tick(ctx)
			printOutcomes(results)
			return err
		}

		sched := scheduler.New()
		if err := scheduleAgent(sched, loop, a.cfg.Agent.Interval); err != nil {
			return err
		}
		return runUntilDone(ctx, sched)
	},
}

var relayStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Relay new events to chat on a fixed interval",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()
		defer a.startTelemetry(ctx)()

		loop, err := a.relayLoop()
		if err != nil {
			return err
		}
		if runOnce {
			res, err := loop.Tick(ctx)
			fmt.Printf("relayed %d events in %d groups (%d failed), cursor %d\n", res.Events, res.Groups, res.Failed, res.Cursor)
			return err
		}

		sched := scheduler.New()
		if err := scheduleRelay(sched, loop, a.cfg.Relay.Interval); err != nil {
			return err
		}
		return runUntilDone(ctx, sched)
	},
}

func scheduleAgent(sched *scheduler.Scheduler, loop *agent.Loop, every time.Duration) error {
	return sched.Every("agent", every, func(ctx context.Context) error {
		_, err := loop.Tick(ctx)
		return err
	})
}

func scheduleRelay(sched *scheduler.Scheduler, loop *relay.Loop, every time.Duration) error {
	return sched.Every("relay", every, func(ctx context.Context) error {
		_, err := loop.Tick(ctx)
		return err
	})
}

// runUntilDone runs sched until ctx is cancelled and waits for in-flight
// ticks to return.
func runUntilDone(ctx context.Context, sched *scheduler.Scheduler) error {
	sched.Start(ctx)
	<-ctx.Done()
	sched.Stop()
	return nil
}

func printOutcomes(results []agent.Result) {
	if len(results) == 0 {
		fmt.Println("No ready sessions.")
		return
	}
	for _, r := range results {
		if r.Err != nil {
			fmt.Fprintf(os.Stdout, "%s\t%s\t%v\n", r.Session, r.Outcome, r.Err)
			continue
		}
		fmt.Fprintf(os.Stdout, "%s\t%s\t%d chunks\n", r.Session, r.Outcome, r.Chunks)
	}
}
