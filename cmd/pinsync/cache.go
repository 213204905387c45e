package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TheMichaelB/pinsync/internal/state"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the local cache",
}

var cacheMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Copy the cache to another backend",
	Example: `  pinsync cache migrate --to sqlite --path ~/.pinsync/cache.db
  pinsync cache migrate --to bolt`,
	Args:        cobra.NoArgs,
	Annotations: map[string]string{noClient: "true"},
	RunE:        runCacheMigrate,
}

var (
	migrateTo   string
	migratePath string
)

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheMigrateCmd)

	cacheMigrateCmd.Flags().StringVar(&migrateTo, "to", "", "Target backend: json, sqlite, bolt, s3")
	cacheMigrateCmd.Flags().StringVar(&migratePath, "path", "", "Target file or directory")
	_ = cacheMigrateCmd.MarkFlagRequired("to")
}

func runCacheMigrate(cmd *cobra.Command, args []string) error {
	src, err := state.Open(cfg, logger)
	if err != nil {
		return fmt.Errorf("open source cache: %w", err)
	}
	defer src.Close()

	target := *cfg
	target.State.Backend = migrateTo
	target.State.Path = migratePath
	if target.State.Backend == cfg.State.Backend && target.StatePath() == cfg.StatePath() {
		return fmt.Errorf("source and target are the same")
	}
	if err := target.EnsureDirectories(); err != nil {
		return err
	}

	dst, err := state.Open(&target, logger)
	if err != nil {
		return fmt.Errorf("open target cache: %w", err)
	}
	defer dst.Close()

	n, err := state.Migrate(src, dst)
	if err != nil {
		return err
	}

	if jsonOutput {
		printJSON(map[string]interface{}{"success": true, "keys": n, "backend": migrateTo})
		return nil
	}
	printSuccess("Copied %d keys to the %s cache", n, migrateTo)
	return nil
}
