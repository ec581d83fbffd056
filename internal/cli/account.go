package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/lu-zhengda/mailpilot/internal/api"
	"github.com/lu-zhengda/mailpilot/internal/provider/gmail"
)

func newAccountCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage connected mailboxes",
	}
	cmd.AddCommand(newAccountConnectCmd())
	cmd.AddCommand(newAccountListCmd())
	cmd.AddCommand(newAccountRemoveCmd())
	cmd.AddCommand(newAccountTestCmd())
	return cmd
}

func newAccountConnectCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Connect a Gmail account via OAuth",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				lb, err := gmail.ListenLoopback()
				if err != nil {
					return err
				}
				defer lb.Close()
				rt.oauth.RedirectURL = lb.RedirectURL

				authURL, _, err := rt.auth.StartAuth(ctx, userFlag)
				if err != nil {
					return fmt.Errorf("failed to start authorization: %w", err)
				}
				fmt.Fprintf(os.Stderr, "Open this URL in your browser to authorize mailpilot:\n\n  %s\n\n", authURL)

				waitCtx, cancel := context.WithTimeout(ctx, timeout)
				defer cancel()
				cb, err := lb.Wait(waitCtx)
				if err != nil {
					return fmt.Errorf("failed to receive authorization: %w", err)
				}

				acct, err := rt.auth.CompleteAuth(ctx, cb.Code, cb.State)
				if err != nil {
					return fmt.Errorf("failed to authenticate: %w", err)
				}

				if jsonFlag {
					return printJSON(jsonAction{OK: true, Action: "connect", AccountID: acct.ID, Email: acct.EmailAddress})
				}
				fmt.Printf("Account connected: %s (id %d)\n", acct.EmailAddress, acct.ID)
				return nil
			})
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "how long to wait for the browser redirect")
	return cmd
}

func newAccountListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List connected accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				accounts, err := rt.auth.Accounts(ctx, userFlag)
				if err != nil {
					return fmt.Errorf("failed to list accounts: %w", err)
				}

				now := time.Now()
				if jsonFlag {
					return printJSON(api.ToAccounts(accounts, now))
				}

				if len(accounts) == 0 {
					fmt.Println("No accounts connected. Run 'mailpilot account connect' to add one.")
					return nil
				}

				w := newTable(os.Stdout)
				fmt.Fprintln(w, "ID\tEMAIL\tPROVIDER\tACTIVE\tTOKEN\tLAST SYNC")
				for i := range accounts {
					a := &accounts[i]
					fmt.Fprintf(w, "%d\t%s\t%s\t%t\t%s\t%s\n",
						a.ID,
						a.EmailAddress,
						a.Provider,
						a.IsActive,
						a.TokenStatus(now),
						formatDatePtr(a.LastSyncAt),
					)
				}
				return w.Flush()
			})
		},
	}
}

func newAccountRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <account-id>",
		Short: "Revoke an account's access and deactivate it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				acct, err := rt.auth.Account(ctx, userFlag, id)
				if err != nil {
					return fmt.Errorf("account %d: %w", id, err)
				}
				if err := rt.auth.Revoke(ctx, userFlag, id); err != nil {
					return fmt.Errorf("failed to revoke account: %w", err)
				}

				if jsonFlag {
					return printJSON(jsonAction{OK: true, Action: "remove", AccountID: id, Email: acct.EmailAddress})
				}
				fmt.Printf("Account removed: %s\n", acct.EmailAddress)
				return nil
			})
		},
	}
}

func newAccountTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test <account-id>",
		Short: "Check that an account's mailbox is reachable",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				profile, err := rt.auth.TestConnection(ctx, userFlag, id)
				if err != nil {
					return fmt.Errorf("connection test failed: %w", err)
				}

				if jsonFlag {
					return printJSON(profile)
				}
				fmt.Printf("Connected: %s\n", profile.EmailAddress)
				fmt.Printf("Messages: %d\n", profile.MessagesTotal)
				fmt.Printf("Threads: %d\n", profile.ThreadsTotal)
				return nil
			})
		},
	}
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q: must be a positive integer", s)
	}
	return id, nil
}
