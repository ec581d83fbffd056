package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lu-zhengda/mailpilot/internal/api"
	"github.com/lu-zhengda/mailpilot/internal/app"
	"github.com/lu-zhengda/mailpilot/internal/domain"
	"github.com/lu-zhengda/mailpilot/internal/store"
)

func newListCmd() *cobra.Command {
	var accountFlag int64
	var limitFlag int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recently stored messages",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				opts := store.ListMessageOptions{UserID: userFlag, Limit: limitFlag}
				if accountFlag != 0 {
					id, err := rt.account(ctx, accountFlag)
					if err != nil {
						return err
					}
					opts.AccountID = id
				}
				msgs, err := rt.db.ListMessages(ctx, opts)
				if err != nil {
					return fmt.Errorf("failed to list messages: %w", err)
				}

				if jsonFlag {
					return printJSON(api.ToMessages(msgs))
				}
				if len(msgs) == 0 {
					fmt.Println("No messages found. Run 'mailpilot sync' first.")
					return nil
				}

				w := newTable(os.Stdout)
				fmt.Fprintln(w, "UNREAD\tID\tFROM\tSUBJECT\tDATE")
				for i := range msgs {
					m := &msgs[i]
					unread := " "
					if !m.IsRead {
						unread = "*"
					}
					from := m.SenderName
					if from == "" {
						from = m.SenderEmail
					}
					fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n",
						unread, m.ID, truncate(from, 30), truncate(m.Subject, 50), formatDate(m.DateSent))
				}
				return w.Flush()
			})
		},
	}

	cmd.Flags().Int64Var(&accountFlag, "account", 0, "account ID (defaults to all of the user's accounts)")
	cmd.Flags().IntVar(&limitFlag, "limit", 25, "max messages to show")
	return cmd
}

func newReadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "read <message-id>",
		Short: "Read a stored message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				msg, err := ownedMessage(ctx, rt, id)
				if err != nil {
					return err
				}

				if jsonFlag {
					return printJSON(toJSONMessageDetail(msg))
				}

				detail := toJSONMessageDetail(msg)
				fmt.Printf("From: %s\n", detail.From)
				if len(detail.To) > 0 {
					fmt.Printf("To: %s\n", joinAddresses(detail.To))
				}
				if len(detail.CC) > 0 {
					fmt.Printf("Cc: %s\n", joinAddresses(detail.CC))
				}
				fmt.Printf("Date: %s\n", formatDate(msg.DateSent))
				fmt.Printf("Subject: %s\n", msg.Subject)
				if len(msg.Labels) > 0 {
					fmt.Printf("Labels: %s\n", strings.Join(msg.Labels, ", "))
				}
				fmt.Println()
				fmt.Println(detail.Body)
				return nil
			})
		},
	}
}

func joinAddresses(addrs []domain.Address) string {
	parts := make([]string, 0, len(addrs))
	for _, a := range addrs {
		parts = append(parts, a.String())
	}
	return strings.Join(parts, ", ")
}

// ownedMessage loads a message and checks it belongs to one of the user's
// accounts.
func ownedMessage(ctx context.Context, rt *runtime, id int64) (*domain.Message, error) {
	msg, err := rt.db.GetMessage(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("message %d: %w", id, err)
	}
	if _, err := rt.auth.Account(ctx, userFlag, msg.AccountID); err != nil {
		return nil, fmt.Errorf("message %d: %w", id, store.ErrNotFound)
	}
	return msg, nil
}

func newSyncCmd() *cobra.Command {
	var (
		accountFlag int64
		maxFlag     int
		queryFlag   string
		fullFlag    bool
		embedFlag   bool
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Fetch new mail into the local store",
		Long:  "Fetch new mail for one account, or for every active account of the user when --account is omitted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				var ids []int64
				if accountFlag != 0 {
					id, err := rt.account(ctx, accountFlag)
					if err != nil {
						return err
					}
					ids = append(ids, id)
				} else {
					accounts, err := rt.auth.Accounts(ctx, userFlag)
					if err != nil {
						return fmt.Errorf("failed to list accounts: %w", err)
					}
					for _, a := range accounts {
						if a.IsActive {
							ids = append(ids, a.ID)
						}
					}
				}
				if len(ids) == 0 {
					return fmt.Errorf("no active accounts for user %q; run 'mailpilot account connect' first", userFlag)
				}

				opts := app.IngestOptions{MaxResults: maxFlag, Query: queryFlag, Full: fullFlag, Embed: embedFlag}
				var results []*app.IngestResult
				var errs []error
				for _, id := range ids {
					if !jsonFlag {
						fmt.Fprintf(os.Stderr, "Syncing account %d...\n", id)
					}
					res, err := rt.ingestor.Run(ctx, id, opts)
					if err != nil {
						errs = append(errs, fmt.Errorf("account %d: %w", id, err))
						continue
					}
					results = append(results, res)
				}

				if jsonFlag {
					if err := printJSON(results); err != nil {
						return err
					}
					return errors.Join(errs...)
				}
				for _, res := range results {
					fmt.Printf("Account %d: fetched %d, stored %d, duplicates %d (%.1fs)\n",
						res.AccountID, res.EmailsFetched, res.EmailsStored, res.Duplicates, res.ProcessingTime)
					if res.Embedding != nil {
						fmt.Printf("  embedded %d/%d messages\n", res.Embedding.Succeeded, res.Embedding.Total)
					}
					for _, e := range res.Errors {
						fmt.Fprintf(os.Stderr, "  warning: %s\n", e)
					}
				}
				return errors.Join(errs...)
			})
		},
	}

	cmd.Flags().Int64Var(&accountFlag, "account", 0, "account ID (defaults to every active account)")
	cmd.Flags().IntVar(&maxFlag, "max", 0, "max messages to fetch (defaults to processing.max_emails_per_sync)")
	cmd.Flags().StringVar(&queryFlag, "query", "", "provider search query restricting what is fetched")
	cmd.Flags().BoolVar(&fullFlag, "full", false, "ignore the incremental sync cursor")
	cmd.Flags().BoolVar(&embedFlag, "embed", false, "embed newly stored messages")
	return cmd
}

func newEmbedCmd() *cobra.Command {
	var limitFlag int

	cmd := &cobra.Command{
		Use:   "embed",
		Short: "Embed stored messages that have no vectors yet",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				stats, err := rt.embedder.ProcessPending(ctx, limitFlag)
				if err != nil {
					return fmt.Errorf("failed to embed messages: %w", err)
				}
				coll, err := rt.embedder.CollectionStats(ctx)
				if err != nil {
					return fmt.Errorf("failed to read collection stats: %w", err)
				}

				if jsonFlag {
					return printJSON(map[string]any{"batch": stats, "collection": coll})
				}
				fmt.Printf("Embedded %d of %d messages (%d vectors, %d failed) in %s\n",
					stats.Succeeded, stats.Total, stats.Embeddings, stats.Failed, stats.Duration.Round(time.Millisecond))
				fmt.Printf("Collection %s: %d vectors, %d dimensions\n", coll.Name, coll.TotalVectors, coll.Dimensions)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&limitFlag, "limit", 100, "max messages to embed")
	return cmd
}

func newSearchCmd() *cobra.Command {
	var accountFlag int64
	var maxFlag int
	var remoteFlag bool

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search mail in natural language",
		Long:  `Search stored mail. Queries may carry filters such as "from alice", "unread", "with attachments" or "last week".`,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				if remoteFlag {
					return remoteSearch(ctx, rt, accountFlag, query, maxFlag)
				}
				accountID, err := rt.account(ctx, accountFlag)
				if err != nil {
					return err
				}
				resp := rt.searcher.Search(ctx, accountID, query, maxFlag)

				if jsonFlag {
					return printJSON(resp)
				}
				for _, e := range resp.Errors {
					fmt.Fprintf(os.Stderr, "warning: %s\n", e)
				}
				if len(resp.Results) == 0 {
					fmt.Println("No results found.")
					return nil
				}

				w := newTable(os.Stdout)
				fmt.Fprintln(w, "ID\tSCORE\tTYPE\tFROM\tSUBJECT\tDATE")
				for _, r := range resp.Results {
					from := r.SenderName
					if from == "" {
						from = r.SenderEmail
					}
					fmt.Fprintf(w, "%d\t%.3f\t%s\t%s\t%s\t%s\n",
						r.MessageID, r.RelevanceScore, r.SearchType,
						truncate(from, 30), truncate(r.Subject, 50), formatDate(r.DateSent))
				}
				if err := w.Flush(); err != nil {
					return err
				}
				fmt.Printf("\n%d results (%s search, %.2fs)\n", resp.TotalResults, resp.SearchType, resp.ProcessingTime)
				return nil
			})
		},
	}

	cmd.Flags().Int64Var(&accountFlag, "account", 0, "account ID (defaults to the first active account)")
	cmd.Flags().IntVar(&maxFlag, "max", 10, "max results")
	cmd.Flags().BoolVar(&remoteFlag, "remote", false, "run the query as a Gmail search against the live mailbox")
	return cmd
}

func newScoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "score <message-id>",
		Short: "Score a message's importance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				if _, err := ownedMessage(ctx, rt, id); err != nil {
					return err
				}
				score, err := rt.scorer.ScoreMessage(ctx, id)
				if err != nil {
					return fmt.Errorf("failed to score message: %w", err)
				}

				if jsonFlag {
					return printJSON(api.ToImportance(score))
				}
				fmt.Printf("Overall: %.3f\n", score.OverallScore)
				fmt.Printf("Urgency: %.3f  Relevance: %.3f  Sender: %.3f\n",
					score.UrgencyScore, score.RelevanceScore, score.SenderImportance)
				for _, r := range score.Reasons {
					fmt.Printf("  - %s\n", r)
				}
				return nil
			})
		},
	}
}

func newDigestCmd() *cobra.Command {
	var dateFlag string
	var rebuildFlag bool
	var htmlFlag bool

	cmd := &cobra.Command{
		Use:   "digest",
		Short: "Show or build the daily digest",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				loc, err := rt.cfg.Location()
				if err != nil {
					return err
				}
				date := time.Now().In(loc)
				if dateFlag != "" {
					date, err = time.ParseInLocation(time.DateOnly, dateFlag, loc)
					if err != nil {
						return fmt.Errorf("invalid --date %q: use YYYY-MM-DD", dateFlag)
					}
				}

				dg, err := rt.digester.Get(ctx, userFlag, date.Format(time.DateOnly))
				if rebuildFlag || errors.Is(err, store.ErrNotFound) {
					dg, err = rt.digester.Build(ctx, userFlag, date)
				}
				if err != nil {
					return fmt.Errorf("failed to load digest: %w", err)
				}

				if jsonFlag {
					return printJSON(api.ToDigest(dg))
				}
				if htmlFlag {
					fmt.Println(dg.SummaryHTML)
					return nil
				}
				fmt.Printf("Digest for %s\n", dg.DigestDate)
				fmt.Printf("Emails: %d  Important: %d  Unread: %d\n\n", dg.TotalEmails, dg.ImportantEmails, dg.UnreadEmails)
				fmt.Println(dg.SummaryText)
				if len(dg.ActionItems) > 0 {
					fmt.Println("\nAction items:")
					for _, a := range dg.ActionItems {
						fmt.Printf("  - %s\n", a)
					}
				}
				if len(dg.PendingReplies) > 0 {
					fmt.Println("\nAwaiting reply:")
					for _, p := range dg.PendingReplies {
						fmt.Printf("  - [%d] %s (%s)\n", p.MessageID, p.Subject, p.SenderEmail)
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&dateFlag, "date", "", "digest date as YYYY-MM-DD (defaults to today)")
	cmd.Flags().BoolVar(&rebuildFlag, "rebuild", false, "regenerate the digest even if one is stored")
	cmd.Flags().BoolVar(&htmlFlag, "html", false, "print the HTML rendering")
	return cmd
}

func newLogsCmd() *cobra.Command {
	var typeFlag string
	var limitFlag int

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show recent system log entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				logs, err := rt.db.ListLogs(ctx, typeFlag, limitFlag)
				if err != nil {
					return fmt.Errorf("failed to list logs: %w", err)
				}

				if jsonFlag {
					return printJSON(toJSONLogs(logs))
				}
				if len(logs) == 0 {
					fmt.Println("No log entries.")
					return nil
				}

				w := newTable(os.Stdout)
				fmt.Fprintln(w, "TIME\tLEVEL\tEVENT\tDURATION\tMESSAGE")
				for _, l := range logs {
					fmt.Fprintf(w, "%s\t%s\t%s\t%.0fms\t%s\n",
						formatDate(l.CreatedAt), l.Level, l.EventType, l.ExecutionTimeMS, truncate(l.Message, 60))
				}
				return w.Flush()
			})
		},
	}

	cmd.Flags().StringVar(&typeFlag, "type", "", "event type (oauth, sync, search, draft, digest)")
	cmd.Flags().IntVar(&limitFlag, "limit", 50, "max entries to show")
	return cmd
}
