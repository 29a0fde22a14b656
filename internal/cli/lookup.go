package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/pricewatch/internal/core/domain"
	"github.com/vietddude/pricewatch/internal/indexing/lookup"
	"github.com/vietddude/pricewatch/internal/infra/chain/evm"
)

var lookupCmd = &cobra.Command{
	Use:   "lookup [address|reference] [timestamp]",
	Short: "Print the cached price of a token at a unix or RFC3339 timestamp",
	Args:  cobra.ExactArgs(2),
	Run:   runLookup,
}

func init() {
	rootCmd.AddCommand(lookupCmd)
}

// parseTimestamp accepts unix seconds or RFC3339.
func parseTimestamp(s string) (time.Time, error) {
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0), nil
	}
	return time.Parse(time.RFC3339, s)
}

// seriesKey maps a CLI argument to a snapshot key.
func seriesKey(arg string) (string, error) {
	if arg == "reference" || arg == domain.ReferenceKey {
		return domain.ReferenceKey, nil
	}
	return evm.ChecksumAddress(arg)
}

func runLookup(cmd *cobra.Command, args []string) {
	key, err := seriesKey(args[0])
	if err != nil {
		fmt.Printf("Invalid address: %v\n", err)
		os.Exit(1)
	}
	at, err := parseTimestamp(args[1])
	if err != nil {
		fmt.Printf("Invalid timestamp: %v\n", err)
		os.Exit(1)
	}

	cfg := setup()
	ctx := context.Background()
	app := newApp(ctx, cfg)
	defer closeApp(app)

	snap, err := app.Snapshot(ctx)
	if err != nil {
		fatal(app, "Failed to load snapshot", "error", err)
	}
	series, ok := snap.Get(key)
	if !ok {
		fatal(app, "No cached series", "key", key, "network", app.Network())
	}

	price, err := lookup.New(slog.Default()).PriceAt(at, series)
	if err != nil {
		fatal(app, "Lookup failed", "error", err)
	}
	fmt.Printf("%s @ %s = %s\n", key, at.UTC().Format(time.RFC3339), strconv.FormatFloat(price, 'g', -1, 64))
}
