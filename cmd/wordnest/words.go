package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/wordnest/wordnest/internal/platform/gemini"
)

func newAddCmd(configFile *string) *cobra.Command {
	var definition, example string

	cmd := &cobra.Command{
		Use:   "add <child-id> <word>",
		Short: "Add a word to a child's bank",
		Args:  cobra.ExactArgs(2),
	}
	cmd.Flags().StringVar(&definition, "definition", "", "definition text")
	cmd.Flags().StringVar(&example, "example", "", "example sentence")

	cmd.RunE = run(configFile, func(cmd *cobra.Command, args []string, a *app) error {
		childID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid child id %q: %w", args[0], err)
		}
		wp, err := a.wordBank.AddWord(cmd.Context(), childID, args[1], definition, example)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "added %q (waiting for introduction)\n", wp.WordText)
		return nil
	})
	return cmd
}

func newImportCmd(configFile *string) *cobra.Command {
	var grade int

	cmd := &cobra.Command{
		Use:   "import <child-id>",
		Short: "Import a grade's catalog words into a child's bank",
		Args:  cobra.ExactArgs(1),
	}
	cmd.Flags().IntVar(&grade, "grade", 0, "school grade to import")
	_ = cmd.MarkFlagRequired("grade")

	cmd.RunE = run(configFile, func(cmd *cobra.Command, args []string, a *app) error {
		childID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid child id %q: %w", args[0], err)
		}
		added, err := a.wordBank.ImportGrade(cmd.Context(), childID, grade)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "imported %d word(s) from grade %d\n", added, grade)
		return nil
	})
	return cmd
}

func newIntroduceCmd(configFile *string) *cobra.Command {
	var count int
	var force bool

	cmd := &cobra.Command{
		Use:   "introduce <child-id>",
		Short: "Move waiting words into the review rotation",
		Args:  cobra.ExactArgs(1),
	}
	cmd.Flags().IntVar(&count, "count", 0, "how many words to introduce (0 = today's remaining budget)")
	cmd.Flags().BoolVar(&force, "force", false, "ignore the daily limit")

	cmd.RunE = run(configFile, func(cmd *cobra.Command, args []string, a *app) error {
		childID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid child id %q: %w", args[0], err)
		}
		introduced, err := a.wordBank.IntroduceBatch(cmd.Context(), childID, count, force)
		if err != nil {
			return err
		}
		for _, wp := range introduced {
			fmt.Fprintf(cmd.OutOrStdout(), "introduced %q\n", wp.WordText)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d word(s) introduced\n", len(introduced))
		return nil
	})
	return cmd
}

func newArchiveCmd(configFile *string, archive bool) *cobra.Command {
	use, short := "archive", "Archive a word, keeping its history"
	if !archive {
		use, short = "unarchive", "Restore an archived word"
	}
	cmd := &cobra.Command{
		Use:   use + " <child-id> <word>",
		Short: short,
		Args:  cobra.ExactArgs(2),
	}
	cmd.RunE = run(configFile, func(cmd *cobra.Command, args []string, a *app) error {
		childID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid child id %q: %w", args[0], err)
		}
		if archive {
			err = a.wordBank.Archive(cmd.Context(), childID, args[1])
		} else {
			err = a.wordBank.Unarchive(cmd.Context(), childID, args[1])
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%sd %q\n", use, args[1])
		return nil
	})
	return cmd
}

func newDueCmd(configFile *string) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "due <child-id>",
		Short: "List words due for review",
		Args:  cobra.ExactArgs(1),
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum words to list")

	cmd.RunE = run(configFile, func(cmd *cobra.Command, args []string, a *app) error {
		childID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid child id %q: %w", args[0], err)
		}
		due, err := a.wordBank.DueWords(cmd.Context(), childID, limit)
		if err != nil {
			return err
		}
		for _, wp := range due {
			fmt.Fprintf(cmd.OutOrStdout(), "%-20s level %d, due %s\n",
				wp.WordText, wp.Level, wp.NextReviewAt.Format("2006-01-02"))
		}
		if len(due) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "nothing due")
		}
		return nil
	})
	return cmd
}

func newEnrichCmd(configFile *string) *cobra.Command {
	var grade int

	cmd := &cobra.Command{
		Use:   "enrich <child-id>",
		Short: "Generate missing definitions with Gemini",
		Args:  cobra.ExactArgs(1),
	}
	cmd.Flags().IntVar(&grade, "grade", 1, "grade level to pitch definitions at")

	cmd.RunE = run(configFile, func(cmd *cobra.Command, args []string, a *app) error {
		childID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid child id %q: %w", args[0], err)
		}
		definer, err := gemini.NewDefiner(cmd.Context(), a.cfg.Gemini, a.log)
		if err != nil {
			return err
		}
		enriched, err := a.wordBank.EnrichDefinitions(cmd.Context(), childID, definer, grade)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "enriched %d word(s)\n", enriched)
		return nil
	})
	return cmd
}
