package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/TheMichaelB/pinsync/internal/client"
	"github.com/TheMichaelB/pinsync/internal/config"
	"github.com/TheMichaelB/pinsync/internal/events"
	"github.com/TheMichaelB/pinsync/internal/models"
)

var (
	version = "dev"

	// Global flags
	cfgFile     string
	logLevel    string
	jsonOutput  bool
	accountFlag string

	// Initialised in PersistentPreRunE
	cfg       *config.Config
	logger    *events.Logger
	apiClient *client.Client
)

// noClient marks commands that run without a backend client.
const noClient = "no-client"

var rootCmd = &cobra.Command{
	Use:   "pinsync",
	Short: "Upload, tag and reconcile pins on an IPFS cluster",
	Long: `pinsync uploads files and folders to an IPFS node, pins them on a
cluster with owner and tag metadata, and keeps a local view of the
cluster's pin set in step with the cluster.`,
	Version:           version,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if apiClient != nil {
			if err := apiClient.Close(); err != nil {
				logger.WithError(err).Warn("Failed to close client")
			}
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"Config file (default: pinsync.{json,yaml} or ~/.config/pinsync/)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false,
		"Machine-readable JSON output")
	rootCmd.PersistentFlags().StringVar(&accountFlag, "account", "",
		"Account to act as with the static wallet provider")
}

func setup(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.NewLoader(cfgFile).Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if logLevel != "" {
		cfg.Log.Level = strings.ToLower(logLevel)
	}
	if accountFlag != "" {
		cfg.Wallet.Provider = "static"
		cfg.Wallet.Account = accountFlag
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	logger, err = events.NewLogger(&cfg.Log)
	if err != nil {
		return err
	}
	events.SetDefault(logger)

	if cmd.Annotations[noClient] == "true" {
		return nil
	}

	apiClient, err = client.New(cmd.Context(), cfg, logger)
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}

	// A static account needs no prompt, so connect it up front.
	if accountFlag != "" && apiClient.Account.Current() == "" {
		if _, err := apiClient.Connect(cmd.Context()); err != nil {
			return err
		}
	}
	return nil
}

func main() {
	ctx, cancel := signalContext(context.Background())
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if jsonOutput {
			printJSON(map[string]interface{}{
				"success": false,
				"error":   err.Error(),
				"code":    models.ErrorCode(err),
			})
		} else {
			printError("%v", err)
		}
		os.Exit(1)
	}
}
