package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/pricewatch/internal/core/domain"
	"github.com/vietddude/pricewatch/internal/indexing/pricesync"
	"github.com/vietddude/pricewatch/internal/infra/storage"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show catalog and price cache coverage of the configured network",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg := setup()
	ctx := context.Background()
	app := newApp(ctx, cfg)
	defer closeApp(app)

	stores := app.Stores()
	snap, err := stores.Snapshots.Load(ctx)
	if err != nil {
		fatal(app, "Failed to load snapshot", "error", err)
	}

	catalog, savedAt, err := stores.Catalogs.Load(ctx)
	switch {
	case errors.Is(err, storage.ErrCatalogNotFound):
		catalog = domain.NewTokenCatalog()
	case err != nil:
		fatal(app, "Failed to load catalog", "error", err)
	}

	pending, skipped := pricesync.Pending(catalog, snap, time.Now(), cfg.Prices.NegativeCacheTTL())
	_, hasRef := snap.Reference()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "NETWORK\tBACKEND\tCATALOG\tCATALOG SAVED\tCACHED\tUNPRICED\tPENDING\tREFERENCE")
	saved := "-"
	if !savedAt.IsZero() {
		saved = savedAt.UTC().Format(time.RFC3339)
	}
	_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%d\t%d\t%d\t%t\n",
		app.Network(), stores.Backend, catalog.Len(), saved,
		snap.TokenCount(), skipped, len(pending), hasRef,
	)
	_ = w.Flush()
}
