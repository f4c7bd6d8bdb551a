package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/user/foreman/internal/service"
	"github.com/user/foreman/internal/types"
)

var (
	projectName        string
	projectRepository  string
	projectDescription string
)

func init() {
	rootCmd.AddCommand(projectCmd)
	projectCmd.AddCommand(projectAddCmd, projectUpdateCmd, projectListCmd)

	for _, c := range []*cobra.Command{projectAddCmd, projectUpdateCmd} {
		c.Flags().StringVar(&projectName, "name", "", "display name")
		c.Flags().StringVar(&projectRepository, "repo", "", "repository working directory")
		c.Flags().StringVar(&projectDescription, "description", "", "description")
	}
}

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage projects",
}

var projectAddCmd = &cobra.Command{
	Use:   "add <id>",
	Short: "Create a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			p, err := a.svc.Projects.Create(ctx, service.NewProject{
				ID:          types.ProjectID(args[0]),
				Name:        projectName,
				Repository:  projectRepository,
				Description: projectDescription,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "Created project %s\n", p.ID)
			return nil
		})
	},
}

var projectUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var u types.ProjectUpdated
		if cmd.Flags().Changed("name") {
			u.Name = &projectName
		}
		if cmd.Flags().Changed("repo") {
			u.Repository = &projectRepository
		}
		if cmd.Flags().Changed("description") {
			u.Description = &projectDescription
		}
		if u == (types.ProjectUpdated{}) {
			return fmt.Errorf("nothing to update (use --name, --repo or --description)")
		}
		return withApp(func(ctx context.Context, a *app) error {
			p, err := a.svc.Projects.Update(ctx, types.ProjectID(args[0]), u)
			if err != nil {
				return notFound(err, "project", args[0])
			}
			fmt.Fprintf(os.Stdout, "Updated project %s\n", p.ID)
			return nil
		})
	},
}

var projectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			list, err := a.svc.Projects.List(ctx)
			if err != nil {
				return fmt.Errorf("list projects: %w", err)
			}
			if len(list) == 0 {
				fmt.Println("No projects found.")
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tREPOSITORY")
			for _, p := range list {
				repo := p.Repository
				if repo == "" {
					repo = a.cfg.Repository(string(p.ID))
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", p.ID, p.Name, repo)
			}
			return w.Flush()
		})
	},
}
