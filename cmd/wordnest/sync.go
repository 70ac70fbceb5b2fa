package main

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/wordnest/wordnest/internal/domain"
	"github.com/wordnest/wordnest/internal/sync"
)

func parseChildIDs(args []string) ([]uuid.UUID, error) {
	if len(args) == 0 {
		return nil, errors.New("at least one child id is required")
	}
	ids := make([]uuid.UUID, 0, len(args))
	for _, arg := range args {
		id, err := uuid.Parse(arg)
		if err != nil {
			return nil, fmt.Errorf("invalid child id %q: %w", arg, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func newSyncCmd(configFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync <child-id>...",
		Short: "Run a sync round for one or more children",
		Args:  cobra.MinimumNArgs(1),
	}
	cmd.RunE = run(configFile, func(cmd *cobra.Command, args []string, a *app) error {
		ids, err := parseChildIDs(args)
		if err != nil {
			return err
		}
		if err := a.engine.SyncChildren(cmd.Context(), ids); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "synced %d child(ren)\n", len(ids))
		return nil
	})
	return cmd
}

func newCatalogCmd(configFile *string) *cobra.Command {
	var parentID string
	var force bool

	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Refresh the cached word catalog",
	}
	cmd.Flags().StringVar(&parentID, "parent", "", "parent account id")
	cmd.Flags().BoolVar(&force, "force", false, "bypass the refresh rate limit")
	_ = cmd.MarkFlagRequired("parent")

	cmd.RunE = run(configFile, func(cmd *cobra.Command, args []string, a *app) error {
		err := a.engine.RefreshCatalog(cmd.Context(), parentID, force)
		if errors.Is(err, sync.ErrCatalogThrottled) {
			fmt.Fprintln(cmd.OutOrStdout(), "catalog is fresh; use --force to refresh anyway")
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "catalog refreshed")
		return nil
	})
	return cmd
}

func newStatusCmd(configFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <child-id>",
		Short: "Show a child's sync cursor and pending changes",
		Args:  cobra.ExactArgs(1),
	}
	cmd.RunE = run(configFile, func(cmd *cobra.Command, args []string, a *app) error {
		childID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid child id %q: %w", args[0], err)
		}
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		cursor, err := a.stores.Cursors.Get(ctx, childID)
		if err != nil {
			return err
		}
		if cursor == nil {
			fmt.Fprintln(out, "cursor: never synced (next round pulls everything)")
		} else {
			fmt.Fprintf(out, "cursor: %s\n", cursor.Format("2006-01-02 15:04:05 MST"))
		}

		words, err := a.stores.WordProgress.ListByChild(ctx, childID)
		if err != nil {
			return err
		}
		pending := 0
		inRotation := 0
		for _, wp := range words {
			if wp.SyncStatus != domain.SyncStatusSynced {
				pending++
			}
			if wp.InRotation() {
				inRotation++
			}
		}
		fmt.Fprintf(out, "words: %d total, %d in rotation, %d pending push\n",
			len(words), inRotation, pending)

		if lp, err := a.stores.LearningProgress.GetByChild(ctx, childID); err == nil {
			fmt.Fprintf(out, "points: %d (milestone %d)\n", lp.LifetimePoints, lp.Milestone)
		}
		return nil
	})
	return cmd
}
