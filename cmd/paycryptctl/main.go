package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"paycrypt/internal/config"
	"paycrypt/internal/logging"
	"paycrypt/internal/repo"
)

var Version = "dev"

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "paycryptctl",
		Short:        "Maintenance tasks for the paycrypt order store",
		Version:      Version,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(backfillChainCmd())

	return rootCmd
}

// openStore loads configuration the same way the gateway does and connects
// to the configured order store. Logs go to stderr so stdout stays clean.
func openStore(ctx context.Context) (repo.Store, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)

	store, err := repo.Open(ctx, repo.OpenConfig{
		DatabaseURL: cfg.DatabaseURL,
		Schema:      cfg.DatabaseSchema,
		SQLitePath:  cfg.SQLitePath,
	}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("open order store: %w", err)
	}
	return store, logger, nil
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, logger, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			if err := repo.Migrate(cmd.Context(), store); err != nil {
				return fmt.Errorf("run migrations: %w", err)
			}
			logger.Info("database migrated")
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}
