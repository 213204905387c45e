package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var tagsCmd = &cobra.Command{
	Use:   "tags",
	Short: "Manage tag options",
}

var tagsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tag options and tags in use",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		available := apiClient.Tags.Available()
		if jsonOutput {
			printJSON(map[string]interface{}{
				"options":   apiClient.Tags.Options(),
				"available": available,
			})
			return nil
		}
		for _, t := range available {
			fmt.Println(t)
		}
		return nil
	},
}

var tagsAddCmd = &cobra.Command{
	Use:   "add <tag>",
	Short: "Add a tag option",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		changed, err := apiClient.Tags.Add(args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(map[string]interface{}{"success": true, "changed": changed})
		} else if changed {
			printSuccess("Added tag option %q", args[0])
		} else {
			printInfo("Tag option %q already exists", args[0])
		}
		return nil
	},
}

var tagsRmCmd = &cobra.Command{
	Use:   "rm <tag>",
	Short: "Delete a tag option that no pin carries",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := apiClient.Refresh(cmd.Context()); err != nil {
			printWarning("Refresh failed, checking cached pins: %v", err)
		}
		if err := apiClient.Tags.Delete(args[0]); err != nil {
			return err
		}
		if jsonOutput {
			printJSON(map[string]interface{}{"success": true})
		} else {
			printSuccess("Deleted tag option %q", args[0])
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tagsCmd)
	tagsCmd.AddCommand(tagsListCmd, tagsAddCmd, tagsRmCmd)
}
