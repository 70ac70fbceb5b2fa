package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/wordnest/wordnest/internal/domain"
	"github.com/wordnest/wordnest/internal/service"
)

// newRecordCmd is a development utility: it feeds a fabricated round through
// the same recording path the games use.
func newRecordCmd(configFile *string) *cobra.Command {
	var mode string
	var correct, wrong []string
	var grade int

	cmd := &cobra.Command{
		Use:   "record <child-id>",
		Short: "Record a finished game round (dev utility)",
		Args:  cobra.ExactArgs(1),
	}
	cmd.Flags().StringVar(&mode, "mode", string(domain.GameModeSpelling), "game mode")
	cmd.Flags().StringSliceVar(&correct, "correct", nil, "words answered correctly on the first try")
	cmd.Flags().StringSliceVar(&wrong, "wrong", nil, "words missed")
	cmd.Flags().IntVar(&grade, "grade", 0, "grade to credit mastered words to")

	cmd.RunE = run(configFile, func(cmd *cobra.Command, args []string, a *app) error {
		childID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid child id %q: %w", args[0], err)
		}

		result := service.GameResult{
			ChildID: childID,
			Mode:    domain.GameMode(mode),
			Grade:   grade,
		}
		for _, w := range correct {
			result.Attempts = append(result.Attempts, service.AttemptResult{Word: w, FirstTry: true})
		}
		for _, w := range wrong {
			result.Attempts = append(result.Attempts, service.AttemptResult{Word: w})
		}

		session, err := a.recorder.RecordGameResult(cmd.Context(), result)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "recorded %d/%d correct", session.WordsCorrect, session.WordsTotal)
		if session.Trophy != domain.TrophyNone {
			fmt.Fprintf(cmd.OutOrStdout(), " (%s trophy)", session.Trophy)
		}
		fmt.Fprintln(cmd.OutOrStdout())
		return nil
	})
	return cmd
}
