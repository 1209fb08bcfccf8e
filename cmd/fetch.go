package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/inkbase/inkbase/internal/app"
)

var fetchIngest bool

var fetchCmd = &cobra.Command{
	Use:   "fetch <url>",
	Short: "Fetch a web page and extract its readable text",
	Long: `Fetch a page and strip it down to readable text. With --ingest, the
extracted text is indexed under the URL as its source ID.`,
	Args: cobra.ExactArgs(1),
	RunE: runFetch,
}

func init() {
	fetchCmd.Flags().BoolVar(&fetchIngest, "ingest", false,
		"index the extracted text under the URL")
	rootCmd.AddCommand(fetchCmd)
}

func runFetch(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app.App) error {
		page, err := a.Fetcher.Fetch(ctx, args[0])
		if err != nil {
			return err
		}

		if !fetchIngest {
			if page.Title != "" {
				fmt.Println(page.Title)
				fmt.Println()
			}
			fmt.Println(page.Text)
			return nil
		}

		count, err := a.Engine.Ingest(ctx, page.URL, page.Text)
		if err != nil {
			return err
		}
		fmt.Printf("Fetched %q and indexed it as %q in %d chunks.\n", page.Title, page.URL, count)
		return nil
	})
}
