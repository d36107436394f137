package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/vietddude/walletwatch/internal/core/domain"
)

var rotateChain string

var rotateCmd = &cobra.Command{
	Use:   "rotate",
	Short: "Demote the active RPC endpoint of a chain to the back of the list",
	Run:   runRotate,
}

func init() {
	rotateCmd.Flags().StringVar(&rotateChain, "chain", "", "chain id, e.g. ETX")
	_ = rotateCmd.MarkFlagRequired("chain")
	rootCmd.AddCommand(rotateCmd)
}

func runRotate(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	app := openWatcher(ctx)
	defer func() {
		_ = app.Close()
	}()

	client, err := app.Client(domain.ChainID(rotateChain))
	if err != nil {
		slog.Error("Unknown chain", "chain", rotateChain, "error", err)
		os.Exit(1)
	}
	ep, err := client.ForceRotation(ctx)
	if err != nil {
		slog.Error("Failed to rotate endpoint", "error", err)
		os.Exit(1)
	}
	fmt.Printf("%s now uses %s\n", rotateChain, ep.URL)
}
