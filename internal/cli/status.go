package cli

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show cache dashboard",
		Long:  "Display an overview of the Atlas cache contents.",
		Example: `  atlas status
  atlas status --watch`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if watch {
				return statusWatch()
			}
			return statusPrint()
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Continuously refresh (every 5 seconds)")

	return cmd
}

func statusPrint() error {
	// Check server health first.
	if err := apiClient.Healthz(); err != nil {
		color.Red("Atlas: UNREACHABLE")
		return fmt.Errorf("cannot reach server: %w", err)
	}

	bold := color.New(color.FgCyan, color.Bold)
	bold.Println("Atlas Cache Status")
	fmt.Println("==================")
	fmt.Println()

	stats, err := apiClient.Stats()
	if err != nil {
		return fmt.Errorf("fetching stats: %w", err)
	}

	fmt.Printf("Assets:      %d\n", stats.Assets)
	fmt.Printf("Shapes:      %d\n", stats.Shapes)
	fmt.Printf("Layers:      %d\n", stats.Layers)
	fmt.Printf("Hybrids:     %d\n", stats.Hybrids)
	fmt.Printf("Users:       %d\n", stats.Users)
	fmt.Printf("Permissions: %d\n", stats.Permissions)
	fmt.Println()

	if stats.Rebuilds > 0 {
		fmt.Printf("Index rebuilds: %s\n", color.GreenString("%d", stats.Rebuilds))
	} else {
		fmt.Printf("Index rebuilds: %s\n", color.YellowString("none yet"))
	}

	return nil
}

func statusWatch() error {
	fmt.Println("Watching status (Ctrl+C to stop)...")
	fmt.Println()

	for {
		// Clear screen with ANSI escape.
		fmt.Print("\033[2J\033[H")

		if err := statusPrint(); err != nil {
			fmt.Printf("\nError: %v\n", err)
		}

		fmt.Printf("\nLast updated: %s\n", time.Now().Format("15:04:05"))
		time.Sleep(5 * time.Second)
	}
}
