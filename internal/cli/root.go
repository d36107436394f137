package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/vietddude/stylelog"

	"github.com/vietddude/walletwatch/internal/control"
	"github.com/vietddude/walletwatch/internal/core/config"
)

var (
	cfgPath string
	isDebug bool
	noKafka bool
)

var rootCmd = &cobra.Command{
	Use:   "walletwatch",
	Short: "Custodial wallet chain monitor",
	Long: `walletwatch follows EVM chains through a rotating set of RPC endpoints and
emits every native or token transfer touching a tracked wallet address.`,
	Run: runWatcher,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "config file (default is config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
	rootCmd.Flags().BoolVar(&noKafka, "no-kafka", false, "do not publish transfer events to kafka")
}

// loadConfig reads the config and installs the logger; failures exit.
func loadConfig() *config.AppConfig {
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		stylelog.InitDefault()
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	level := slog.LevelInfo
	switch {
	case isDebug || cfg.Logging.Level == "debug":
		level = slog.LevelDebug
	case cfg.Logging.Level == "warn":
		level = slog.LevelWarn
	case cfg.Logging.Level == "error":
		level = slog.LevelError
	}
	stylelog.InitDefault(&tint.Options{
		Level:      level,
		TimeFormat: time.RFC3339,
	})
	return cfg
}

// openWatcher builds a watcher for one-shot commands. The caller closes it.
func openWatcher(ctx context.Context) *control.Watcher {
	cfg := loadConfig()
	app, err := control.NewWatcher(ctx, cfg, control.Options{NoKafka: true})
	if err != nil {
		slog.Error("Failed to initialize watcher", "error", err)
		os.Exit(1)
	}
	return app
}

func runWatcher(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := control.NewWatcher(ctx, cfg, control.Options{NoKafka: noKafka})
	if err != nil {
		slog.Error("Failed to initialize watcher", "error", err)
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if err := app.Start(ctx); err != nil {
		slog.Error("Failed to start watcher", "error", err)
		os.Exit(1)
	}

	slog.Info("Watcher started", "config", cfgPath)

	sig := <-sigChan
	slog.Info("Received signal, shutting down...", "signal", sig)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := app.Stop(shutdownCtx); err != nil {
		slog.Error("Error during shutdown", "error", err)
		os.Exit(1)
	}
}
