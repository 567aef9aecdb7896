// Package main implements the tracer CLI: download, interpret, store and
// serve Colorado TRACER campaign finance reports.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ThiagoRGoveia/tracer-ingest/internal/config"
	"github.com/ThiagoRGoveia/tracer-ingest/internal/database"
	"github.com/ThiagoRGoveia/tracer-ingest/internal/interpret"
	"github.com/ThiagoRGoveia/tracer-ingest/internal/logging"
	"github.com/ThiagoRGoveia/tracer-ingest/internal/models"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// configPath is an optional YAML file layered over the defaults
	configPath string
	// version information
	version = "dev"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Warning: could not load .env file: %v\n", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "tracer",
	Short: "Download and store Colorado TRACER campaign finance reports",
	Long: `tracer downloads the yearly bulk reports published by the Colorado
TRACER portal, converts amounts, dates and flags to typed values and stores
them in Postgres or MongoDB.`,
	Version:      version,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(setupCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the tracer version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version)
	},
}

// loadConfig reads the configuration and builds the logger every command uses.
func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.New(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return cfg, logger, nil
}

// openStore connects to the configured driver.
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (database.DBManager, error) {
	if err := cfg.RequireDatabaseURL(); err != nil {
		return nil, err
	}

	switch cfg.Database.Driver {
	case config.DriverMongo:
		client, err := database.ConnectMongo(ctx, cfg.Database.URL)
		if err != nil {
			return nil, err
		}
		return database.NewMongoDBManager(client, cfg.Database.Name, logger), nil
	default:
		dbpool, err := database.ConnectDB(ctx, cfg.Database.URL)
		if err != nil {
			return nil, err
		}
		return database.NewPostgresDBManager(dbpool, logger), nil
	}
}

func parseCategories(names []string) ([]models.Category, error) {
	categories := make([]models.Category, 0, len(names))
	for _, name := range names {
		c, err := interpret.ParseCategory(name)
		if err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, nil
}
