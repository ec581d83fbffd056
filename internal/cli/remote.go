package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lu-zhengda/mailpilot/internal/api"
	"github.com/lu-zhengda/mailpilot/internal/provider"
)

// mailbox resolves --account and opens a live provider connection for it.
func mailbox(ctx context.Context, rt *runtime, accountFlag int64) (provider.MailProvider, error) {
	id, err := rt.account(ctx, accountFlag)
	if err != nil {
		return nil, err
	}
	acct, err := rt.auth.Account(ctx, userFlag, id)
	if err != nil {
		return nil, err
	}
	return rt.auth.Provider(ctx, acct)
}

func newLabelsCmd() *cobra.Command {
	var accountFlag int64

	cmd := &cobra.Command{
		Use:   "labels",
		Short: "List the mailbox labels of an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				p, err := mailbox(ctx, rt, accountFlag)
				if err != nil {
					return err
				}
				labels, err := p.ListLabels(ctx)
				if err != nil {
					return fmt.Errorf("failed to list labels: %w", err)
				}

				if jsonFlag {
					if labels == nil {
						labels = []provider.Label{}
					}
					return printJSON(labels)
				}
				if len(labels) == 0 {
					fmt.Println("No labels found.")
					return nil
				}

				w := newTable(os.Stdout)
				fmt.Fprintln(w, "ID\tNAME\tTYPE")
				for _, l := range labels {
					fmt.Fprintf(w, "%s\t%s\t%s\n", l.ID, l.Name, l.Type)
				}
				return w.Flush()
			})
		},
	}

	cmd.Flags().Int64Var(&accountFlag, "account", 0, "account ID (defaults to the first active account)")
	return cmd
}

func newMarkReadCmd() *cobra.Command {
	var unreadFlag bool

	cmd := &cobra.Command{
		Use:   "mark-read <message-id>",
		Short: "Mark a message as read or unread",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			read := !unreadFlag
			return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				msg, err := ownedMessage(ctx, rt, id)
				if err != nil {
					return err
				}
				p, err := mailbox(ctx, rt, msg.AccountID)
				if err != nil {
					return err
				}

				if err := p.MarkRead(ctx, msg.ExternalMessageID, read); err != nil {
					return fmt.Errorf("failed to sync read status: %w", err)
				}
				if err := rt.db.SetRead(ctx, id, read); err != nil {
					return fmt.Errorf("failed to update local state: %w", err)
				}

				action := "mark-read"
				if !read {
					action = "mark-unread"
				}
				if jsonFlag {
					return printJSON(jsonAction{OK: true, Action: action, ID: id, AccountID: msg.AccountID})
				}
				if read {
					fmt.Println("Marked as read.")
				} else {
					fmt.Println("Marked as unread.")
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&unreadFlag, "unread", false, "mark as unread instead of read")
	return cmd
}

// remoteSearch runs query as a Gmail search against the live mailbox. Hits
// are not stored, so they carry no local IDs.
func remoteSearch(ctx context.Context, rt *runtime, accountFlag int64, query string, limit int) error {
	p, err := mailbox(ctx, rt, accountFlag)
	if err != nil {
		return err
	}
	msgs, err := p.Search(ctx, query, limit)
	if err != nil {
		return fmt.Errorf("failed to search mailbox: %w", err)
	}

	if jsonFlag {
		return printJSON(api.ToMessages(msgs))
	}
	if len(msgs) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	w := newTable(os.Stdout)
	fmt.Fprintln(w, "GMAIL ID\tFROM\tSUBJECT\tDATE")
	for i := range msgs {
		m := &msgs[i]
		from := m.SenderName
		if from == "" {
			from = m.SenderEmail
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			m.ExternalMessageID, truncate(from, 30), truncate(m.Subject, 50), formatDate(m.DateSent))
	}
	return w.Flush()
}
