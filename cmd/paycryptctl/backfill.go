package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"paycrypt/internal/repo"
)

// Orders created before multi-chain support were all paid on Base.
const defaultBackfillCutoff = "2025-12-03T00:28:31Z"

func backfillChainCmd() *cobra.Command {
	var (
		cutoff    string
		chainID   int64
		chainName string
		dryRun    bool
	)

	cmd := &cobra.Command{
		Use:   "backfill-chain",
		Short: "Fill in missing chain info on legacy orders",
		Long: `Set chain id and chain name on orders created before the cutoff that are
missing either. Orders that already carry chain info are never touched, so
the command can be re-run safely.

Examples:
  paycryptctl backfill-chain --dry-run
  paycryptctl backfill-chain --cutoff 2025-12-03T00:28:31Z --chain-id 8453 --chain-name Base`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			at, err := time.Parse(time.RFC3339, strings.TrimSpace(cutoff))
			if err != nil {
				return fmt.Errorf("invalid --cutoff: %w", err)
			}
			chainName = strings.TrimSpace(chainName)
			if chainID <= 0 || chainName == "" {
				return errors.New("--chain-id must be positive and --chain-name must not be empty")
			}

			store, logger, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			n, err := store.BackfillChainInfo(cmd.Context(), repo.BackfillParams{
				Cutoff:    at,
				ChainID:   chainID,
				ChainName: chainName,
				DryRun:    dryRun,
			})
			if err != nil {
				return fmt.Errorf("backfill chain info: %w", err)
			}

			logger.Info("chain backfill finished", "cutoff", at, "chain_id", chainID, "orders", n, "dry_run", dryRun)
			if dryRun {
				fmt.Fprintf(cmd.OutOrStdout(), "%d orders would be updated (dry run)\n", n)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "updated %d orders\n", n)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&cutoff, "cutoff", defaultBackfillCutoff, "only orders created before this RFC3339 time")
	cmd.Flags().Int64Var(&chainID, "chain-id", 8453, "chain id to assign")
	cmd.Flags().StringVar(&chainName, "chain-name", "Base", "chain name to assign")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "count matching orders without changing them")

	return cmd
}
