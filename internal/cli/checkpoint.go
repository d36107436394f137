package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	resetCurrency string
	resetBlock    uint64
)

var resetCheckpointCmd = &cobra.Command{
	Use:   "reset-checkpoint",
	Short: "Move a currency checkpoint to a given block, backwards included",
	Long: `reset-checkpoint overwrites the last fully processed block of a currency.
The next pass resumes at block+1. Use it to replay a range after an incident;
running watchers pick the new value up on their next pass.`,
	Run: runResetCheckpoint,
}

func init() {
	resetCheckpointCmd.Flags().StringVar(&resetCurrency, "currency", "", "currency code, e.g. ETX")
	resetCheckpointCmd.Flags().Uint64Var(&resetBlock, "block", 0, "new checkpoint block")
	_ = resetCheckpointCmd.MarkFlagRequired("currency")
	_ = resetCheckpointCmd.MarkFlagRequired("block")
	rootCmd.AddCommand(resetCheckpointCmd)
}

func runResetCheckpoint(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	app := openWatcher(ctx)
	defer func() {
		_ = app.Close()
	}()

	cfg, err := app.Registry().Lookup(resetCurrency)
	if err != nil {
		slog.Error("Unknown currency", "currency", resetCurrency, "error", err)
		os.Exit(1)
	}
	if err := app.Checkpoints().Reset(ctx, cfg.Chain, cfg.Currency, resetBlock); err != nil {
		slog.Error("Failed to reset checkpoint", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Successfully reset checkpoint for %s to block %d\n", cfg.Currency, resetBlock)
}
