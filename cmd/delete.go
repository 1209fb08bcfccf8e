package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/inkbase/inkbase/internal/app"
)

var deleteCmd = &cobra.Command{
	Use:   "delete <source-id>",
	Short: "Remove a source's entries from the index",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

func init() {
	rootCmd.AddCommand(deleteCmd)
}

func runDelete(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app.App) error {
		if err := a.Engine.DeleteSource(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("Source %q removed from the index.\n", args[0])
		return nil
	})
}
