package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/user/foreman/internal/service"
	"github.com/user/foreman/internal/types"
)

var (
	sessionTitle   string
	sessionPreset  string
	sessionStatus  string
	sessionRole    string
	sessionListArg string
)

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionAddCmd, sessionStatusCmd, sessionListCmd, sessionAppendCmd, sessionShowCmd)

	sessionAddCmd.Flags().StringVar(&sessionTitle, "title", "", "session title")
	sessionAddCmd.Flags().StringVar(&sessionPreset, "preset", "", "prompt preset name")
	sessionAddCmd.Flags().StringVar(&sessionStatus, "status", "ready", "initial status")
	sessionAppendCmd.Flags().StringVar(&sessionRole, "role", "user", "message role")
	sessionListCmd.Flags().StringVar(&sessionListArg, "status", "", "only list sessions with this status")
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage sessions",
}

var sessionAddCmd = &cobra.Command{
	Use:   "add <project> [prompt...]",
	Short: "Create a session",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := types.ParseStatus(sessionStatus)
		if err != nil {
			return err
		}
		return withApp(func(ctx context.Context, a *app) error {
			sess, err := a.svc.Sessions.Create(ctx, service.NewSession{
				Project: types.ProjectID(args[0]),
				Title:   sessionTitle,
				Preset:  sessionPreset,
				Status:  status,
				Prompt:  strings.Join(args[1:], " "),
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "Created %s (%s)\n", sess.ID, sess.Status)
			return nil
		})
	},
}

var sessionStatusCmd = &cobra.Command{
	Use:   "status <id> [status]",
	Short: "Show or change a session's status",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := types.SessionID(args[0])
		return withApp(func(ctx context.Context, a *app) error {
			if len(args) == 1 {
				status, err := a.svc.Sessions.Status(ctx, id)
				if err != nil {
					return notFound(err, "session", args[0])
				}
				fmt.Fprintln(os.Stdout, status)
				return nil
			}
			status, err := types.ParseStatus(args[1])
			if err != nil {
				return err
			}
			sess, err := a.svc.Sessions.SetStatus(ctx, id, status)
			if err != nil {
				return notFound(err, "session", args[0])
			}
			fmt.Fprintf(os.Stdout, "%s is now %s\n", sess.ID, sess.Status)
			return nil
		})
	},
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			var (
				list []*types.Session
				err  error
			)
			if sessionListArg != "" {
				status, perr := types.ParseStatus(sessionListArg)
				if perr != nil {
					return perr
				}
				list, err = a.svc.Sessions.ListByStatus(ctx, status)
			} else {
				list, err = a.svc.Sessions.List(ctx)
			}
			if err != nil {
				return fmt.Errorf("list sessions: %w", err)
			}
			if len(list) == 0 {
				fmt.Println("No sessions found.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTATUS\tMESSAGES\tTITLE\tUPDATED")
			for _, s := range list {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
					s.ID,
					s.Status,
					len(s.Messages),
					s.Title,
					s.UpdatedAt.Local().Format("2006-01-02 15:04:05"),
				)
			}
			return w.Flush()
		})
	},
}

var sessionAppendCmd = &cobra.Command{
	Use:   "append <id> <message...>",
	Short: "Append a message to a session",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			msg := types.Message{Role: sessionRole, Content: strings.Join(args[1:], " ")}
			sess, err := a.svc.Sessions.AppendMessages(ctx, types.SessionID(args[0]), msg)
			if err != nil {
				return notFound(err, "session", args[0])
			}
			fmt.Fprintf(os.Stdout, "%s now has %d messages\n", sess.ID, len(sess.Messages))
			return nil
		})
	},
}

var sessionShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print a session and its transcript",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			s, err := a.svc.Sessions.Get(ctx, types.SessionID(args[0]))
			if err != nil {
				return notFound(err, "session", args[0])
			}
			fmt.Printf("%s  %s\n", s.ID, s.Status)
			if s.Title != "" {
				fmt.Printf("title:   %s\n", s.Title)
			}
			if s.Preset != "" {
				fmt.Printf("preset:  %s\n", s.Preset)
			}
			if s.ResumeToken != "" {
				fmt.Printf("resume:  %s\n", s.ResumeToken)
			}
			fmt.Printf("created: %s\n", s.CreatedAt.Local().Format("2006-01-02 15:04:05"))
			for _, m := range s.Messages {
				fmt.Printf("\n[%s] %s\n%s\n", m.Role, m.At.Local().Format("15:04:05"), m.Content)
			}
			return nil
		})
	},
}

// withApp opens the store for the duration of fn.
func withApp(fn func(ctx context.Context, a *app) error) error {
	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func notFound(err error, kind, id string) error {
	if errors.Is(err, types.ErrNotFound) {
		return fmt.Errorf("%s %s not found", kind, id)
	}
	return err
}
