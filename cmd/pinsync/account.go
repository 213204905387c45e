package main

import (
	"github.com/spf13/cobra"
)

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Connect a wallet account",
	Long: `Connect asks the configured wallet provider for an account and
remembers it for later commands.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		account, err := apiClient.Connect(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(map[string]interface{}{"success": true, "account": account})
			return nil
		}
		printSuccess("Connected as %s", account)
		return nil
	},
}

var disconnectCmd = &cobra.Command{
	Use:   "disconnect",
	Short: "Forget the connected account",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := apiClient.Account.Disconnect(); err != nil {
			return err
		}
		if jsonOutput {
			printJSON(map[string]interface{}{"success": true})
			return nil
		}
		printSuccess("Disconnected")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(connectCmd, disconnectCmd)
}
