package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/inkbase/inkbase/internal/app"
)

var askSources []string

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a question using only the named sources",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().StringSliceVarP(&askSources, "sources", "s", nil,
		"source IDs to ground the answer on (repeatable or comma-separated)")
	_ = askCmd.MarkFlagRequired("sources")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	question := strings.TrimSpace(strings.Join(args, " "))
	if question == "" {
		return fmt.Errorf("question must not be empty")
	}

	return withApp(func(ctx context.Context, a *app.App) error {
		answer, err := a.Engine.AnswerQuestion(ctx, question, askSources)
		if err != nil {
			return err
		}

		fmt.Println(answer.Text)

		if answer.Grounded {
			seen := make(map[string]bool)
			fmt.Println("\nGrounded on:")
			for _, m := range answer.Matches {
				if !seen[m.SourceID] {
					seen[m.SourceID] = true
					fmt.Printf("  %s\n", m.SourceID)
				}
			}
		}
		return nil
	})
}
