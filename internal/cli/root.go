package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lu-zhengda/mailpilot/internal/tui"
)

var (
	// version is set via ldflags at build time.
	version = "dev"
	cfgFile string

	// jsonFlag enables JSON output for all commands.
	jsonFlag bool

	// userFlag is the owner of the accounts a command works on.
	userFlag    string
	verboseFlag bool
)

func NewRootCmd() *cobra.Command {
	var accountFlag int64

	root := &cobra.Command{
		Use:     "mailpilot",
		Short:   "AI email assistant",
		Long:    "Sync Gmail into a local index, search it in natural language, draft replies and build daily digests.",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			if shell, _ := cmd.Flags().GetString("generate-completion"); shell != "" {
				switch shell {
				case "bash":
					return cmd.Root().GenBashCompletion(os.Stdout)
				case "zsh":
					return cmd.Root().GenZshCompletion(os.Stdout)
				case "fish":
					return cmd.Root().GenFishCompletion(os.Stdout, true)
				default:
					return fmt.Errorf("unsupported shell: %s (use bash, zsh, or fish)", shell)
				}
			}

			return runTUI(cmd, accountFlag)
		},
	}
	root.SetVersionTemplate(fmt.Sprintf("mailpilot %s\n", version))
	root.CompletionOptions.DisableDefaultCmd = true
	root.Flags().String("generate-completion", "", "Generate shell completion (bash, zsh, fish)")
	root.Flags().MarkHidden("generate-completion")
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	root.PersistentFlags().BoolVar(&jsonFlag, "json", false, "output in JSON format")
	root.PersistentFlags().StringVar(&userFlag, "user", defaultUser(), "user that owns the accounts")
	root.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "log at the configured level instead of warnings only")
	root.Flags().Int64Var(&accountFlag, "account", 0, "account ID to open (defaults to the first active account)")
	root.AddCommand(newServeCmd())
	root.AddCommand(newAccountCmd())
	root.AddCommand(newSyncCmd())
	root.AddCommand(newEmbedCmd())
	root.AddCommand(newListCmd())
	root.AddCommand(newReadCmd())
	root.AddCommand(newSearchCmd())
	root.AddCommand(newLabelsCmd())
	root.AddCommand(newMarkReadCmd())
	root.AddCommand(newScoreCmd())
	root.AddCommand(newDraftCmd())
	root.AddCommand(newDigestCmd())
	root.AddCommand(newLogsCmd())
	root.AddCommand(newTokenCmd())
	root.AddCommand(newLaunchCmd())
	root.AddCommand(newTUICmd())
	return root
}

func newTUICmd() *cobra.Command {
	var accountFlag int64

	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Open the interactive mail client (same as running mailpilot with no command)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd, accountFlag)
		},
	}
	cmd.Flags().Int64Var(&accountFlag, "account", 0, "account ID to open (defaults to the first active account)")
	return cmd
}

func runTUI(cmd *cobra.Command, accountFlag int64) error {
	return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
		accountID, err := rt.account(ctx, accountFlag)
		if err != nil {
			return err
		}
		accounts, err := rt.auth.Accounts(ctx, userFlag)
		if err != nil {
			return fmt.Errorf("failed to list accounts: %w", err)
		}
		return tui.Run(ctx, tui.Deps{
			Store:     rt.db,
			Searcher:  rt.searcher,
			Drafter:   rt.drafter,
			Ingestor:  rt.ingestor,
			Accounts:  accounts,
			AccountID: accountID,
		})
	})
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// withRuntime opens the services for one command and closes them afterwards.
func withRuntime(cmd *cobra.Command, fn func(ctx context.Context, rt *runtime) error) error {
	ctx := cmd.Context()
	rt, err := newRuntime(ctx, verboseFlag)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, rt)
}

// defaultUser is the local login name, or "me" when it cannot be read.
func defaultUser() string {
	if u := os.Getenv("MAILPILOT_USER"); u != "" {
		return u
	}
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "me"
}
