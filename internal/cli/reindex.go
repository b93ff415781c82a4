package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newReindexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the hierarchy index",
		Long:  "Trigger a synchronous rebuild of the ancestor/descendant index from the cached assets.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := apiClient.Reindex(); err != nil {
				return fmt.Errorf("reindexing: %w", err)
			}
			color.Green("Index rebuilt")
			return nil
		},
	}
}
