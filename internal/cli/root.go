package cli

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/vietddude/stylelog"

	"github.com/vietddude/pricewatch/internal/control"
	"github.com/vietddude/pricewatch/internal/core/config"
)

var (
	cfgPath        string
	isDebug        bool
	updatePrices   bool
	refreshCatalog bool
	metricsPort    int
)

var rootCmd = &cobra.Command{
	Use:   "pricewatch",
	Short: "Historical token price cache",
	Long: `Pricewatch keeps a local cache of historical token prices for an EVM network
and values on-chain transfers against it.`,
	Run: runSync,
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Load the price cache and fetch missing series",
	Run:   runSync,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "config file (default is config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")

	for _, cmd := range []*cobra.Command{rootCmd, syncCmd} {
		cmd.Flags().BoolVar(&updatePrices, "update-prices", false, "fetch missing price series (overrides prices.update_prices)")
		cmd.Flags().BoolVar(&refreshCatalog, "refresh-catalog", false, "refetch the coin list before syncing")
		cmd.Flags().IntVar(&metricsPort, "metrics-port", 0, "serve health and metrics on this port (overrides server.port)")
	}
	rootCmd.AddCommand(syncCmd)
}

// setup loads the config and initializes the default logger.
func setup() *config.AppConfig {
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		stylelog.InitDefault()
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	slogLevel := slog.LevelInfo
	if isDebug || cfg.Logging.Level == "debug" {
		slogLevel = slog.LevelDebug
	}
	stylelog.InitDefault(&tint.Options{
		Level:      slogLevel,
		TimeFormat: time.RFC3339,
	})
	return cfg
}

// newApp builds the App or exits.
func newApp(ctx context.Context, cfg *config.AppConfig) *control.App {
	app, err := control.New(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize pricewatch", "error", err)
		os.Exit(1)
	}
	return app
}

// exit is replaced in tests.
var exit = os.Exit

// fatal logs msg, closes app and exits with status 1. Deferred calls do not
// run on exit, so every error path after newApp goes through here.
func fatal(app *control.App, msg string, args ...any) {
	slog.Error(msg, args...)
	closeApp(app)
	exit(1)
}

func closeApp(app *control.App) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.Close(ctx); err != nil {
		slog.Error("Error during shutdown", "error", err)
	}
}

func runSync(cmd *cobra.Command, args []string) {
	cfg := setup()
	if cmd.Flags().Changed("update-prices") {
		cfg.Prices.UpdatePrices = updatePrices
	}
	if cmd.Flags().Changed("metrics-port") {
		cfg.Server.Port = metricsPort
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app := newApp(ctx, cfg)
	defer closeApp(app)
	app.StartServer(ctx, cfg.Server.Port)

	res, err := app.Sync(ctx, control.SyncOptions{
		UpdatePrices:   cfg.Prices.UpdatePrices,
		RefreshCatalog: refreshCatalog,
	})
	switch {
	case errors.Is(err, context.Canceled) && res != nil:
		slog.Info("Sync interrupted, progress was checkpointed",
			"fetched", res.Report.Fetched,
			"series", res.Snapshot.TokenCount(),
		)
	case err != nil:
		fatal(app, "Sync failed", "error", err)
	default:
		slog.Info("Price cache ready",
			"series", res.Snapshot.TokenCount(),
			"unpriced", len(res.Snapshot.Unpriced),
		)
	}
}
