package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/pricewatch/internal/core/domain"
	"github.com/vietddude/pricewatch/internal/indexing/lookup"
	"github.com/vietddude/pricewatch/internal/indexing/valuation"
	"github.com/vietddude/pricewatch/internal/infra/chain/evm"
)

var (
	logTopics []string
	logTxs    []string
	logFrom   uint64
	logTo     uint64
	logValue  bool
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Fetch event logs by topic and optionally value their amounts",
	Long: `Fetch event logs of the configured network by block range (--from/--to) or
by transaction receipts (--tx). Topics are event signatures such as
"Transfer(address,address,uint256)" or 32-byte hex topics.

With --value the first data word of each log is read as a token amount of the
emitting contract and valued against the cached prices at the block time.`,
	Run: runLogs,
}

func init() {
	logsCmd.Flags().StringSliceVar(&logTopics, "topic", []string{"Transfer(address,address,uint256)"}, "event signature or topic hash")
	logsCmd.Flags().StringSliceVar(&logTxs, "tx", nil, "transaction hashes to read receipts from")
	logsCmd.Flags().Uint64Var(&logFrom, "from", 0, "first block")
	logsCmd.Flags().Uint64Var(&logTo, "to", 0, "last block")
	logsCmd.Flags().BoolVar(&logValue, "value", false, "value the first data word of each log")
	rootCmd.AddCommand(logsCmd)
}

// resolveTopic hashes event signatures and passes hex topics through.
func resolveTopic(t string) string {
	if strings.Contains(t, "(") {
		return evm.EventTopic(t)
	}
	return t
}

func runLogs(cmd *cobra.Command, args []string) {
	if len(logTxs) == 0 && logTo < logFrom {
		fmt.Println("Invalid range: --to must not be below --from")
		os.Exit(1)
	}

	cfg := setup()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	app := newApp(ctx, cfg)
	defer closeApp(app)

	fetcher, err := app.LogFetcher(app.Network())
	if err != nil {
		fatal(app, "Failed to create log fetcher", "error", err)
	}

	topics := make([]string, len(logTopics))
	for i, t := range logTopics {
		topics[i] = resolveTopic(t)
	}

	var events []domain.Event
	if len(logTxs) > 0 {
		byTx, err := fetcher.GetReceiptsEvents(ctx, logTxs, topics)
		if err != nil {
			fatal(app, "Failed to fetch receipts", "error", err)
		}
		for _, tx := range logTxs {
			events = append(events, byTx[tx]...)
		}
	} else {
		events, err = fetcher.GetLogs(ctx, topics, logFrom, logTo)
		if err != nil {
			fatal(app, "Failed to fetch logs", "error", err)
		}
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	defer func() { _ = w.Flush() }()

	if !logValue {
		_, _ = fmt.Fprintln(w, "BLOCK\tTX\tLOG\tCONTRACT\tTOPIC0")
		for _, ev := range events {
			_, _ = fmt.Fprintf(w, "%d\t%s\t%d\t%s\t0x%s\n", ev.BlockNumber, ev.TransactionHash, ev.LogIndex, ev.Address, ev.Topic0())
		}
		return
	}

	snap, err := app.Snapshot(ctx)
	if err != nil {
		fatal(app, "Failed to load snapshot", "error", err)
	}
	v := &eventValuer{
		fetcher:  fetcher,
		valuer:   valuation.NewValuer(snap, lookup.New(slog.Default())),
		decimals: make(map[string]uint8),
		blocks:   make(map[uint64]time.Time),
	}

	_, _ = fmt.Fprintln(w, "BLOCK\tTX\tLOG\tTOKEN\tAMOUNT\tNATIVE\tQUOTE")
	for _, ev := range events {
		val, err := v.value(ctx, ev)
		if err != nil {
			slog.Warn("Failed to value log", "tx", ev.TransactionHash, "log", ev.LogIndex, "error", err)
			_, _ = fmt.Fprintf(w, "%d\t%s\t%d\t%s\t-\t-\t-\n", ev.BlockNumber, ev.TransactionHash, ev.LogIndex, ev.Address)
			continue
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%s\t%s\t%s\n",
			ev.BlockNumber, ev.TransactionHash, ev.LogIndex, ev.Address,
			val.Amount.String(), val.Native.StringFixed(8), val.Quote.StringFixed(2),
		)
	}
}

// eventValuer caches decimals per token and timestamps per block.
type eventValuer struct {
	fetcher  *evm.LogFetcher
	valuer   *valuation.Valuer
	decimals map[string]uint8
	blocks   map[uint64]time.Time
}

func (v *eventValuer) value(ctx context.Context, ev domain.Event) (valuation.Valuation, error) {
	amount, err := evm.Word(ev.Data, 0)
	if err != nil {
		return valuation.Valuation{}, err
	}

	dec, ok := v.decimals[ev.Address]
	if !ok {
		dec, err = v.fetcher.TokenDecimals(ctx, ev.Address)
		if err != nil {
			return valuation.Valuation{}, err
		}
		v.decimals[ev.Address] = dec
	}

	at, ok := v.blocks[ev.BlockNumber]
	if !ok {
		ts, err := v.fetcher.BlockTimestamp(ctx, ev.BlockNumber)
		if err != nil {
			return valuation.Valuation{}, err
		}
		at = time.Unix(int64(ts), 0)
		v.blocks[ev.BlockNumber] = at
	}

	return v.valuer.Value(at, ev.Address, amount, dec)
}
