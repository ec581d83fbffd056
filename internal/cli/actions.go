package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lu-zhengda/mailpilot/internal/api"
	"github.com/lu-zhengda/mailpilot/internal/app"
	"github.com/lu-zhengda/mailpilot/internal/domain"
	"github.com/lu-zhengda/mailpilot/internal/store"
)

func newDraftCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "draft",
		Short: "Generate and review reply drafts",
	}
	cmd.AddCommand(newDraftCreateCmd())
	cmd.AddCommand(newDraftListCmd())
	cmd.AddCommand(newDraftShowCmd())
	cmd.AddCommand(newDraftActionCmd("approve", "Approve a pending draft"))
	cmd.AddCommand(newDraftActionCmd("reject", "Reject a pending draft"))
	cmd.AddCommand(newDraftActionCmd("send", "Send an approved draft"))
	return cmd
}

func newDraftCreateCmd() *cobra.Command {
	var req app.DraftRequest

	cmd := &cobra.Command{
		Use:   "create <message-id>",
		Short: "Draft a reply to a stored message",
		Long:  `Draft a reply to a stored message. Use "--instructions -" to read instructions from stdin.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if req.Instructions == "-" {
				data, err := io.ReadAll(os.Stdin)
				if err != nil {
					return fmt.Errorf("failed to read stdin: %w", err)
				}
				req.Instructions = strings.TrimSpace(string(data))
			}
			return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				if !rt.cfg.Features.AIDrafting {
					return fmt.Errorf("AI drafting is disabled in config")
				}
				if _, err := ownedMessage(ctx, rt, id); err != nil {
					return err
				}
				d, err := rt.drafter.DraftReply(ctx, id, req)
				if err != nil {
					return fmt.Errorf("failed to draft reply: %w", err)
				}

				if jsonFlag {
					return printJSON(api.ToDraft(d))
				}
				printDraft(d)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&req.Tone, "tone", "", "formal, casual or professional (default professional)")
	cmd.Flags().StringVar(&req.Length, "length", "", "short, medium or long (default medium)")
	cmd.Flags().StringVar(&req.Instructions, "instructions", "", "extra guidance for the reply (- for stdin)")
	return cmd
}

func newDraftListCmd() *cobra.Command {
	var accountFlag int64
	var statusFlag string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List drafts",
		RunE: func(cmd *cobra.Command, args []string) error {
			status := domain.ApprovalStatus(statusFlag)
			switch status {
			case "", domain.ApprovalPending, domain.ApprovalApproved, domain.ApprovalRejected:
			default:
				return fmt.Errorf("invalid --status %q: use pending, approved or rejected", statusFlag)
			}
			return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				accountID, err := rt.account(ctx, accountFlag)
				if err != nil {
					return err
				}
				drafts, err := rt.drafter.List(ctx, accountID, status)
				if err != nil {
					return fmt.Errorf("failed to list drafts: %w", err)
				}

				if jsonFlag {
					return printJSON(api.ToDrafts(drafts))
				}
				if len(drafts) == 0 {
					fmt.Println("No drafts.")
					return nil
				}

				w := newTable(os.Stdout)
				fmt.Fprintln(w, "ID\tSTATUS\tSAFE\tSENT\tTO\tSUBJECT\tCREATED")
				for i := range drafts {
					d := &drafts[i]
					fmt.Fprintf(w, "%d\t%s\t%t\t%t\t%s\t%s\t%s\n",
						d.ID, d.ApprovalStatus, d.SafetyCheckPassed, d.IsSent,
						truncate(d.RecipientEmail, 30), truncate(d.Subject, 50), formatDate(d.CreatedAt))
				}
				return w.Flush()
			})
		},
	}

	cmd.Flags().Int64Var(&accountFlag, "account", 0, "account ID (defaults to the first active account)")
	cmd.Flags().StringVar(&statusFlag, "status", "", "filter by approval status")
	return cmd
}

func newDraftShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <draft-id>",
		Short: "Show a draft",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				d, err := ownedDraft(ctx, rt, id)
				if err != nil {
					return err
				}
				if jsonFlag {
					return printJSON(api.ToDraft(d))
				}
				printDraft(d)
				return nil
			})
		},
	}
}

// newDraftActionCmd builds approve, reject and send, which share their
// argument handling and output.
func newDraftActionCmd(action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   action + " <draft-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				if _, err := ownedDraft(ctx, rt, id); err != nil {
					return err
				}

				var d *domain.Draft
				switch action {
				case "approve":
					d, err = rt.drafter.Approve(ctx, id)
				case "reject":
					d, err = rt.drafter.Reject(ctx, id)
				case "send":
					d, err = rt.drafter.Send(ctx, id)
				}
				if err != nil {
					return fmt.Errorf("failed to %s draft: %w", action, err)
				}

				if jsonFlag {
					return printJSON(jsonAction{OK: true, Action: action, ID: d.ID, AccountID: d.AccountID, Status: string(d.ApprovalStatus)})
				}
				switch action {
				case "send":
					fmt.Printf("Draft %d sent to %s\n", d.ID, d.RecipientEmail)
				default:
					fmt.Printf("Draft %d %s\n", d.ID, d.ApprovalStatus)
				}
				return nil
			})
		},
	}
}

// ownedDraft loads a draft and checks its account belongs to the user.
func ownedDraft(ctx context.Context, rt *runtime, id int64) (*domain.Draft, error) {
	d, err := rt.drafter.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("draft %d: %w", id, err)
	}
	if _, err := rt.auth.Account(ctx, userFlag, d.AccountID); err != nil {
		return nil, fmt.Errorf("draft %d: %w", id, store.ErrNotFound)
	}
	return d, nil
}

func printDraft(d *domain.Draft) {
	fmt.Printf("Draft %d (%s, %s, %s)\n", d.ID, d.ApprovalStatus, d.Tone, d.Length)
	fmt.Printf("To: %s\n", d.RecipientEmail)
	fmt.Printf("Subject: %s\n", d.Subject)
	fmt.Printf("Confidence: %.2f\n", d.AIConfidence)
	if !d.SafetyCheckPassed {
		fmt.Println("Safety issues:")
		for _, issue := range d.SafetyIssues {
			fmt.Printf("  - %s\n", issue)
		}
	}
	fmt.Println()
	fmt.Println(d.BodyText)
}

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage API access tokens",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "issue [user]",
		Short: "Issue an API bearer token (defaults to --user)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user := userFlag
			if len(args) == 1 {
				user = args[0]
			}
			return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				tok, exp, err := rt.tokens.Issue(user)
				if err != nil {
					return fmt.Errorf("failed to issue token: %w", err)
				}
				if jsonFlag {
					return printJSON(toJSONToken(user, tok, exp))
				}
				fmt.Println(tok)
				fmt.Fprintf(os.Stderr, "Expires: %s\n", formatDate(exp))
				return nil
			})
		},
	})
	return cmd
}
