package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/vietddude/walletwatch/internal/infra/chain/evm"
)

var addressCurrency string

var addressesCmd = &cobra.Command{
	Use:   "addresses",
	Short: "List or register tracked wallet addresses",
}

var listAddressesCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked addresses of a currency",
	Run:   runListAddresses,
}

var addAddressesCmd = &cobra.Command{
	Use:   "add [address...]",
	Short: "Track additional addresses for a currency",
	Args:  cobra.MinimumNArgs(1),
	Run:   runAddAddresses,
}

func init() {
	addressesCmd.PersistentFlags().StringVar(&addressCurrency, "currency", "", "currency code, e.g. ETX")
	_ = addressesCmd.MarkPersistentFlagRequired("currency")
	addressesCmd.AddCommand(listAddressesCmd, addAddressesCmd)
	rootCmd.AddCommand(addressesCmd)
}

func runListAddresses(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	app := openWatcher(ctx)
	defer func() {
		_ = app.Close()
	}()

	addrs, err := app.Addresses().ListByCurrency(ctx, addressCurrency)
	if err != nil {
		slog.Error("Failed to list addresses", "error", err)
		os.Exit(1)
	}
	for _, a := range addrs {
		fmt.Println(a)
	}
}

func runAddAddresses(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	app := openWatcher(ctx)
	defer func() {
		_ = app.Close()
	}()

	if _, err := app.Registry().Lookup(addressCurrency); err != nil {
		slog.Error("Unknown currency", "currency", addressCurrency, "error", err)
		os.Exit(1)
	}
	for _, a := range args {
		if !evm.IsAddress(a) {
			slog.Error("Malformed address", "address", a)
			os.Exit(1)
		}
	}
	if err := app.Addresses().Add(ctx, addressCurrency, args...); err != nil {
		slog.Error("Failed to add addresses", "error", err)
		os.Exit(1)
	}
	fmt.Printf("Tracking %d new address(es) for %s\n", len(args), addressCurrency)
}
