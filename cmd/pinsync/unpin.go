package main

import (
	"github.com/spf13/cobra"
)

var unpinCmd = &cobra.Command{
	Use:   "unpin <cid>",
	Short: "Remove a pin from the cluster",
	Args:  cobra.ExactArgs(1),
	RunE:  runUnpin,
}

func init() {
	rootCmd.AddCommand(unpinCmd)
}

func runUnpin(cmd *cobra.Command, args []string) error {
	cid, err := parseCID(args[0])
	if err != nil {
		return err
	}
	if err := apiClient.Unpin(cmd.Context(), cid); err != nil {
		return err
	}

	if jsonOutput {
		printJSON(map[string]interface{}{"success": true, "cid": cid})
		return nil
	}
	printSuccess("Unpinned %s", cid)
	return nil
}
