package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/inkbase/inkbase/internal/app"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <source-id> [file]",
	Short: "Index a source's text for question answering",
	Long: `Index the text of a source under a stable identifier. The text is read
from the given file, or from stdin when no file is named. Re-ingesting the
same source-id replaces its previous content; ingesting empty text removes
the source from the index.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	sourceID := args[0]

	var text []byte
	var err error
	if len(args) == 2 {
		text, err = os.ReadFile(args[1])
		if err != nil {
			return fmt.Errorf("reading %s: %w", args[1], err)
		}
	} else {
		text, err = io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("reading stdin: %w", err)
		}
	}

	return withApp(func(ctx context.Context, a *app.App) error {
		count, err := a.Engine.Ingest(ctx, sourceID, string(text))
		if err != nil {
			return err
		}
		if count == 0 {
			fmt.Printf("Source %q removed from the index (no content).\n", sourceID)
			return nil
		}
		fmt.Printf("Indexed source %q in %d chunks.\n", sourceID, count)
		return nil
	})
}
