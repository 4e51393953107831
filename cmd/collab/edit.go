package main

import (
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	collab "github.com/dhilipwind-Hospital/Ayphen-PM-toll-latest-sub005"
	"github.com/dhilipwind-Hospital/Ayphen-PM-toll-latest-sub005/pkg/models"
	"github.com/dhilipwind-Hospital/Ayphen-PM-toll-latest-sub005/pkg/session"
)

var (
	editUser   string
	editName   string
	editAvatar string
)

func newEditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edit ISSUE_ID",
		Short: "Join the edit session of an issue and print who is editing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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

			cli.Connect(editUser)
			s, err := cli.OpenDocument(session.Options{
				DocumentID: args[0],
				UserID:     editUser,
				UserName:   editName,
				UserAvatar: editAvatar,
			})
			if err != nil {
				return err
			}

			for {
				select {
				case <-ctx.Done():
					return nil
				case _, ok := <-s.Changes():
					if !ok {
						return nil
					}
					cmd.Printf("%s\n%s\n", s.State(), renderPresence(s.Participants(), s.Cursors(), s.Typing()))
				}
			}
		},
	}
	cmd.Flags().StringVarP(&editUser, "user", "u", "", "User to edit as")
	cmd.Flags().StringVar(&editName, "name", "", "Display name shown to other participants")
	cmd.Flags().StringVar(&editAvatar, "avatar", "", "Avatar URL shown to other participants")
	cmd.Flags().Duration("presence-ttl", 0, "Evict participants silent for this long; 0 disables eviction")
	_ = cmd.MarkFlagRequired("user")

	if err := v.BindPFlag("presence_ttl", cmd.Flags().Lookup("presence-ttl")); err != nil {
		panic(err)
	}

	return cmd
}

// renderPresence prints one row per participant with the cursors and
// typing indicators they own.
func renderPresence(participants []models.Participant, cursors []models.Cursor, typing []models.TypingIndicator) string {
	cursorsOf := make(map[string][]string)
	for _, c := range cursors {
		cursorsOf[c.UserID] = append(cursorsOf[c.UserID], c.Field+":"+strconv.Itoa(c.Position))
	}
	typingOf := make(map[string][]string)
	for _, t := range typing {
		typingOf[t.UserID] = append(typingOf[t.UserID], t.Field)
	}

	tw := newTable()
	tw.AppendHeader(table.Row{"USER", "NAME", "COLOR", "CURSORS", "TYPING"})
	for _, p := range participants {
		sort.Strings(cursorsOf[p.UserID])
		sort.Strings(typingOf[p.UserID])
		tw.AppendRow(table.Row{
			p.UserID,
			p.UserName,
			p.Color,
			strings.Join(cursorsOf[p.UserID], ","),
			strings.Join(typingOf[p.UserID], ","),
		})
	}
	return tw.Render()
}
