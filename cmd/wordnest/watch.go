package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wordnest/wordnest/internal/store"
	"github.com/wordnest/wordnest/internal/sync"
	"github.com/wordnest/wordnest/internal/task"
)

func newWatchCmd(configFile *string) *cobra.Command {
	var interval time.Duration
	var parentID string

	cmd := &cobra.Command{
		Use:   "watch <child-id>...",
		Short: "Keep the given children in sync until interrupted",
		Long: `Runs sync rounds on a timer through the background task runner and logs
every change the engine applies. With --parent it also keeps the word
catalog fresh; throttled refreshes are skipped quietly.`,
		Args: cobra.MinimumNArgs(1),
	}
	cmd.Flags().DurationVar(&interval, "interval", 30*time.Second, "time between sync rounds")
	cmd.Flags().StringVar(&parentID, "parent", "", "parent account id for catalog refreshes")

	cmd.RunE = run(configFile, func(cmd *cobra.Command, args []string, a *app) error {
		children, err := parseChildIDs(args)
		if err != nil {
			return err
		}
		if interval <= 0 {
			return errors.New("interval must be positive")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		runner := task.NewRunner(task.DefaultConfig(), a.log)
		runner.Start()
		defer runner.Stop()

		go func() {
			for te := range runner.Errors() {
				a.log.Error("background task failed",
					slog.String("task_type", te.Task.Type()),
					slog.Any("error", te.Err))
			}
		}()

		changes, cancel := a.notifier.Subscribe(store.SyncedTables...)
		defer cancel()
		go func() {
			for c := range changes {
				fmt.Fprintf(cmd.OutOrStdout(), "applied change: %s (child %s)\n", c.Table, c.ChildID)
			}
		}()

		submit := func() {
			t := task.NewFunc("sync_round", func(ctx context.Context) error {
				return a.engine.SyncChildren(ctx, children)
			})
			if err := runner.Submit(t); err != nil {
				a.log.Warn("sync round not scheduled", slog.Any("error", err))
			}
			if parentID == "" {
				return
			}
			t = task.NewFunc("catalog_refresh", func(ctx context.Context) error {
				err := a.engine.RefreshCatalog(ctx, parentID, false)
				if errors.Is(err, sync.ErrCatalogThrottled) {
					return nil
				}
				return err
			})
			if err := runner.Submit(t); err != nil {
				a.log.Warn("catalog refresh not scheduled", slog.Any("error", err))
			}
		}

		fmt.Fprintf(cmd.OutOrStdout(), "watching %d child(ren), syncing every %s\n", len(children), interval)
		submit()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				fmt.Fprintln(cmd.OutOrStdout(), "stopping")
				return nil
			case <-ticker.C:
				submit()
			}
		}
	})
	return cmd
}
