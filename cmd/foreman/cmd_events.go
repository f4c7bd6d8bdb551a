package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/foreman/internal/types"
)

var (
	eventsAfter  int64
	eventsLimit  int
	eventsFollow bool
)

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.Flags().Int64Var(&eventsAfter, "after", 0, "only show events after this sequence id")
	eventsCmd.Flags().IntVar(&eventsLimit, "limit", 50, "maximum events per page")
	eventsCmd.Flags().BoolVarP(&eventsFollow, "follow", "f", false, "keep polling for new events")
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Tail the global event stream",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		after := eventsAfter
		for {
			events, err := a.store.Scan(ctx, types.ScanOptions{After: after, Limit: eventsLimit})
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			if len(events) > 0 {
				printEvents(events)
				after = events[len(events)-1].Seq
			}
			if !eventsFollow {
				return nil
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
		}
	},
}

func printEvents(events []*types.Event) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for _, e := range events {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", e.Seq, e.CreatedAt.Local().Format("2006-01-02 15:04:05"), e.Partition, e.Kind)
	}
	w.Flush()
}
