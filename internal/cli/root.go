package cli

import (
	"github.com/spf13/cobra"

	"github.com/granduke/atlas/pkg/client"
)

var (
	serverAddr string
	authToken  string
	apiClient  *client.Client
)

// NewRootCmd creates the top-level atlas CLI command with all subcommands.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "atlas",
		Short: "Asset cache and access-control service",
		Long: `Atlas caches the asset hierarchy, permissions, layers and crop
varieties from the origin service and answers permission-scoped reads
from whichever side responds first.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Skip client init for commands that don't need the API server.
			switch cmd.Name() {
			case "serve", "warm", "version":
				return
			}
			apiClient = client.New(serverAddr, authToken)
		},
	}

	cmd.PersistentFlags().StringVar(&serverAddr, "server", "http://127.0.0.1:7130", "Atlas server address")
	cmd.PersistentFlags().StringVar(&authToken, "token", "", "Authorization token forwarded to the server")

	cmd.AddCommand(
		newServeCmd(),
		newStatusCmd(),
		newReindexCmd(),
		newWarmCmd(),
		newVersionCmd(),
	)

	return cmd
}
