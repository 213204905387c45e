package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the account, pin totals and cluster size",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	_, refreshErr := apiClient.Refresh(cmd.Context())
	stats := apiClient.Stats()
	account := apiClient.Account.Current()

	if jsonOutput {
		out := map[string]interface{}{
			"account": account,
			"stats":   stats,
		}
		if refreshErr != nil {
			out["error"] = refreshErr.Error()
		}
		printJSON(out)
		return nil
	}

	if account == "" {
		printWarning("Account:  not connected")
	} else {
		fmt.Printf("Account:  %s\n", account)
	}
	fmt.Printf("Files:    %d\n", stats.Files)
	fmt.Printf("Size:     %s\n", formatBytes(stats.TotalSize))
	fmt.Printf("Nodes:    %d\n", stats.Nodes)
	if refreshErr != nil {
		printWarning("Cluster unreachable, showing cached totals: %v", refreshErr)
	}
	return nil
}
