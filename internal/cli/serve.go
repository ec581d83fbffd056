package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lu-zhengda/mailpilot/internal/api"
	"github.com/lu-zhengda/mailpilot/internal/app"
	"github.com/lu-zhengda/mailpilot/internal/config"
	"github.com/lu-zhengda/mailpilot/internal/launch"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	var addrFlag string
	var noSchedulerFlag bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and background sync",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, err := newRuntime(ctx, true)
			if err != nil {
				return err
			}
			defer rt.Close()
			if err := rt.cfg.Validate(); err != nil {
				return err
			}

			addr := addrFlag
			if addr == "" {
				addr = rt.cfg.Addr()
			}
			srv := api.NewServer(api.Deps{
				Config:   rt.cfg,
				Store:    rt.db,
				Auth:     rt.auth,
				Tokens:   rt.tokens,
				Ingestor: rt.ingestor,
				Searcher: rt.searcher,
				Drafter:  rt.drafter,
				Digester: rt.digester,
				Scorer:   rt.scorer,
				Vectors:  rt.vectors,
				Logger:   rt.logger,
				Version:  version,
			})
			httpServer := &http.Server{
				Addr:              addr,
				Handler:           srv.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			if !noSchedulerFlag {
				sched, err := newScheduler(rt)
				if err != nil {
					return err
				}
				// Runs before the deferred rt.Close.
				stopScheduler := startBackground(ctx, sched.Run, rt.logger)
				defer stopScheduler()
			}

			errCh := make(chan error, 1)
			go func() {
				rt.logger.Info("starting API server", zap.String("addr", addr), zap.String("version", version))
				errCh <- httpServer.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("server failed: %w", err)
				}
				return nil
			case <-ctx.Done():
			}

			rt.logger.Info("shutting down API server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("server shutdown failed: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addrFlag, "addr", "", "listen address (defaults to server.host:server.port)")
	cmd.Flags().BoolVar(&noSchedulerFlag, "no-scheduler", false, "disable periodic sync and daily digests")
	return cmd
}

// startBackground runs fn in a goroutine. The returned stop cancels fn's
// context and waits for it to return.
func startBackground(ctx context.Context, fn func(context.Context) error, logger *zap.Logger) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("scheduler stopped", zap.Error(err))
		}
	}()
	return func() {
		cancel()
		wg.Wait()
	}
}

func newScheduler(rt *runtime) (*app.Scheduler, error) {
	cfg := rt.cfg
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	hour, minute, err := cfg.SummaryClock()
	if err != nil {
		return nil, err
	}
	var digester *app.Digester
	if cfg.Features.DailySummary {
		digester = rt.digester
	}
	return app.NewScheduler(rt.db, rt.ingestor, digester, app.SchedulerConfig{
		SyncInterval:  cfg.SyncInterval(),
		Embed:         cfg.Features.SmartSearch,
		DailySummary:  cfg.Features.DailySummary,
		SummaryHour:   hour,
		SummaryMinute: minute,
		Location:      loc,
	}, rt.logger), nil
}

func newLaunchCmd() *cobra.Command {
	var dryRunFlag bool

	cmd := &cobra.Command{
		Use:   "launch",
		Short: "Start the local index server for the detected deployment mode",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			opts := launch.ResolveOptions(os.LookupEnv, launchDefaults(cfg))
			mode := launch.DetectMode(os.LookupEnv)

			if dryRunFlag || opts.Binary == "" {
				if jsonFlag {
					return printJSON(map[string]any{
						"mode":   mode,
						"binary": opts.Binary,
						"args":   launch.Args(opts),
					})
				}
				fmt.Printf("Mode: %s\n", mode)
				fmt.Printf("Command: %s %s\n", opts.Binary, strings.Join(launch.Args(opts), " "))
				if opts.Binary == "" && !dryRunFlag {
					return fmt.Errorf("no index server binary configured; set launch.binary")
				}
				return nil
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			c := launch.Command(ctx, mode, opts)
			c.Stdout = os.Stdout
			c.Stderr = os.Stderr
			if err := c.Run(); err != nil && ctx.Err() == nil {
				return fmt.Errorf("index server exited: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRunFlag, "dry-run", false, "print the mode and command without starting it")
	return cmd
}

func launchDefaults(cfg *config.Config) launch.Options {
	l := cfg.Launch
	return launch.Options{
		Binary:               l.Binary,
		Port:                 l.Port,
		IDEVersion:           l.IDEVersion,
		StoragePath:          l.StoragePath,
		LocalEmbedding:       l.LocalEmbedding,
		EmbeddingStorageType: l.EmbeddingStorageType,
		AppID:                l.AppID,
		LimitCPU:             l.LimitCPU,
		SourceProduct:        l.SourceProduct,
	}
}
