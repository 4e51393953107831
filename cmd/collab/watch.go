package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	collab "github.com/dhilipwind-Hospital/Ayphen-PM-toll-latest-sub005"
	"github.com/dhilipwind-Hospital/Ayphen-PM-toll-latest-sub005/pkg/models"
)

// closeTimeout bounds the shutdown of a client when a command exits.
const closeTimeout = 5 * time.Second

var watchUser string

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch PROJECT_ID",
		Short: "Sync a project and print every change applied to the local store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			projectID := args[0]

			conf, err := loadConfig()
			if err != nil {
				return err
			}

			cli, err := collab.New(conf, collab.WithLogOutput(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			defer closeClient(cli)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			changes, unwatch := cli.Store().Watch()
			defer unwatch()
			comments, unsubscribeComments := cli.Comments()
			defer unsubscribeComments()
			transitions, unsubscribeTransitions := cli.Transitions()
			defer unsubscribeTransitions()

			cli.Connect(watchUser)
			cli.JoinProject(projectID)

			for {
				select {
				case <-ctx.Done():
					cmd.Printf("%s\n", renderIssues(cli.Store().Issues(projectID)))
					return nil
				case st, ok := <-transitions:
					if !ok {
						return nil
					}
					cmd.Printf("state: %s room=%q\n", st.Phase, st.Room)
				case ch, ok := <-changes:
					if !ok {
						return nil
					}
					cmd.Printf("%s %s %s\n", ch.Kind, ch.Entity, ch.ID)
				case c, ok := <-comments:
					if !ok {
						return nil
					}
					cmd.Printf("comment on %s by %s: %s\n", c.IssueID, c.UserName, c.Content)
				}
			}
		},
	}
	cmd.Flags().StringVarP(&watchUser, "user", "u", "", "User to authenticate as")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func closeClient(cli *collab.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	if err := cli.Close(ctx); err != nil {
		cli.Logger().Warn("failed to close the client", "error", err)
	}
}

func newTable() table.Writer {
	tw := table.NewWriter()
	tw.Style().Options.DrawBorder = false
	tw.Style().Options.SeparateColumns = false
	tw.Style().Options.SeparateFooter = false
	tw.Style().Options.SeparateHeader = false
	tw.Style().Options.SeparateRows = false
	return tw
}

func renderIssues(issues []models.Issue) string {
	tw := newTable()
	tw.AppendHeader(table.Row{"ID", "KEY", "TITLE", "STATUS", "PRIORITY", "ASSIGNEE", "SPRINT"})
	for _, issue := range issues {
		tw.AppendRow(table.Row{
			issue.ID,
			issue.Key,
			issue.Title,
			issue.Status,
			issue.Priority,
			issue.AssigneeID,
			issue.SprintID,
		})
	}
	return tw.Render()
}
