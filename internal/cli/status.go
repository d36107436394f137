package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show endpoint order, slow counters and checkpoint lag per currency",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	app := openWatcher(ctx)
	defer func() {
		_ = app.Close()
	}()

	report := app.Health().CheckHealth(ctx)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "CHAIN\tSTATUS\tLATEST\tSLOW\tENDPOINTS")
	for _, chain := range app.Registry().Chains() {
		h := report[string(chain)]
		latest := fmt.Sprint(h.LatestBlock)
		if h.Error != "" {
			latest = "unreachable"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			chain, h.Status, latest, h.SlowCount, strings.Join(h.EndpointOrder, " > "))
	}
	_ = w.Flush()
	_, _ = fmt.Fprintln(os.Stdout)

	w = tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "CHAIN\tENDPOINT\tSTATE\tAVG LATENCY\tSLOW CALLS\tERROR RATE")
	for _, chain := range app.Registry().Chains() {
		h := report[string(chain)]
		for _, url := range h.EndpointOrder {
			st, ok := h.Providers[url]
			if !ok || st.MonitorStats == nil {
				_, _ = fmt.Fprintf(w, "%s\t%s\t-\t-\t-\t-\n", chain, url)
				continue
			}
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%.2f\n",
				chain, url, st.MonitorStats.Status, st.MonitorStats.AverageLatency, st.MonitorStats.SlowCalls, st.ErrorRate)
		}
	}
	_ = w.Flush()
	_, _ = fmt.Fprintln(os.Stdout)

	w = tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "CURRENCY\tCHAIN\tCHECKPOINT\tLAG\tUPDATED")
	for _, currency := range app.Registry().Currencies() {
		cfg, _ := app.Registry().Lookup(currency)
		cp, ok, err := app.Checkpoints().Get(ctx, cfg.Chain, currency)
		switch {
		case err != nil:
			_, _ = fmt.Fprintf(w, "%s\t%s\terror: %v\t-\t-\n", currency, cfg.Chain, err)
		case !ok:
			_, _ = fmt.Fprintf(w, "%s\t%s\tnone\t-\t-\n", currency, cfg.Chain)
		default:
			lag := "-"
			if c, found := report[string(cfg.Chain)].Currencies[currency]; found {
				lag = fmt.Sprint(c.Lag)
			}
			_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
				currency, cfg.Chain, cp.Block, lag, cp.UpdatedAt.Format("2006-01-02 15:04:05"))
		}
	}
	_ = w.Flush()
}
