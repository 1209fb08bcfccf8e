package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/inkbase/inkbase/internal/app"
)

var summarizeIngestID string

var summarizeCmd = &cobra.Command{
	Use:   "summarize [topic]",
	Short: "Generate a short factual briefing on a topic",
	Long: `Generate a 5-6 line factual briefing on a topic. With --ingest, the
briefing is also indexed under the given source ID so later questions can
draw on it.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSummarize,
}

func init() {
	summarizeCmd.Flags().StringVar(&summarizeIngestID, "ingest", "",
		"index the briefing under this source ID")
	rootCmd.AddCommand(summarizeCmd)
}

func runSummarize(cmd *cobra.Command, args []string) error {
	topic := strings.TrimSpace(strings.Join(args, " "))

	return withApp(func(ctx context.Context, a *app.App) error {
		summary, err := a.Summarizer.Summarize(ctx, topic)
		if err != nil {
			return err
		}

		fmt.Println(summary)

		if summarizeIngestID != "" {
			count, err := a.Engine.Ingest(ctx, summarizeIngestID, summary)
			if err != nil {
				return err
			}
			fmt.Printf("\nIndexed briefing as %q in %d chunks.\n", summarizeIngestID, count)
		}
		return nil
	})
}
