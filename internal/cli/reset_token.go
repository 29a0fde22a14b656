package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vietddude/pricewatch/internal/infra/chain/evm"
)

var resetTokenCmd = &cobra.Command{
	Use:   "reset-token [address]",
	Short: "Drop the cached series of a token so the next sync fetches it again",
	Args:  cobra.ExactArgs(1),
	Run:   runResetToken,
}

func init() {
	rootCmd.AddCommand(resetTokenCmd)
}

func runResetToken(cmd *cobra.Command, args []string) {
	address, err := evm.ChecksumAddress(args[0])
	if err != nil {
		fmt.Printf("Invalid address: %v\n", err)
		os.Exit(1)
	}

	cfg := setup()
	ctx := context.Background()
	app := newApp(ctx, cfg)
	defer closeApp(app)

	snapshots := app.Stores().Snapshots
	snap, err := snapshots.Load(ctx)
	if err != nil {
		fatal(app, "Failed to load snapshot", "error", err)
	}

	if !snap.Forget(address) {
		fmt.Printf("Nothing cached for %s on %s\n", address, app.Network())
		return
	}
	if err := snapshots.Save(ctx, snap); err != nil {
		fatal(app, "Failed to save snapshot", "error", err)
	}

	fmt.Printf("Successfully reset %s on %s\n", address, app.Network())
}
