package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// setupCmd prepares the store
var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Create the archive and report tables or collections",
	Args:  cobra.NoArgs,
	RunE:  runSetup,
}

func runSetup(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx := cmd.Context()
	dbManager, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer dbManager.Close(ctx)

	logger.Info("creating archive_records table")
	if err := dbManager.CreateArchiveRecordsTable(ctx); err != nil {
		return fmt.Errorf("error creating archive_records table: %w", err)
	}

	logger.Info("creating report tables")
	if err := dbManager.CreateReportTables(ctx); err != nil {
		return fmt.Errorf("error creating report tables: %w", err)
	}

	logger.Info("database setup finished successfully")
	return nil
}
