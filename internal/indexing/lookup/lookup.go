// Package lookup resolves the price in effect at a point in time from an
// irregularly sampled price series.
package lookup

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/pricewatch/internal/core/domain"
	"github.com/vietddude/pricewatch/internal/indexing/metrics"
)

// ErrEmptySeries is returned when there is no sample to fall back to.
var ErrEmptySeries = errors.New("price series is empty")

// Lookup finds prices in a series. It owns the warn-once state for the
// last-sample fallback, so one Lookup should be shared per session.
type Lookup struct {
	log *slog.Logger

	mu     sync.Mutex
	warned bool
	misses int
}

// New creates a Lookup. A nil logger uses slog.Default().
func New(log *slog.Logger) *Lookup {
	if log == nil {
		log = slog.Default()
	}
	return &Lookup{log: log}
}

// PriceAt returns the price of the left sample of the first adjacent pair
// bracketing t. Values are not interpolated. When no pair brackets t the price
// of the last sample is returned and a warning is logged the first time only.
func (l *Lookup) PriceAt(t time.Time, series domain.PriceSeries) (float64, error) {
	return l.PriceAtMillis(t.UnixMilli(), series)
}

// PriceAtUnix is PriceAt for a timestamp in whole seconds, as blocks carry it.
func (l *Lookup) PriceAtUnix(seconds int64, series domain.PriceSeries) (float64, error) {
	return l.PriceAtMillis(seconds*1000, series)
}

// PriceAtMillis is PriceAt for a timestamp in milliseconds.
func (l *Lookup) PriceAtMillis(targetMs int64, series domain.PriceSeries) (float64, error) {
	last, ok := series.Last()
	if !ok {
		return 0, ErrEmptySeries
	}

	for i := 0; i < len(series)-1; i++ {
		if series[i].TimestampMs <= targetMs && targetMs <= series[i+1].TimestampMs {
			return series[i].Price, nil
		}
	}

	l.fallback(targetMs, last)
	return last.Price, nil
}

// Misses returns how many lookups used the last-sample fallback.
func (l *Lookup) Misses() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.misses
}

func (l *Lookup) fallback(targetMs int64, last domain.PriceSample) {
	metrics.LookupFallbacks.Inc()

	l.mu.Lock()
	l.misses++
	first := !l.warned
	l.warned = true
	l.mu.Unlock()

	if first {
		l.log.Warn("Could not find timestamp in price series, using latest price instead. Enable update_prices to fetch historical prices.",
			"target", time.UnixMilli(targetMs).UTC(),
			"latest_sample", last.Time().UTC(),
		)
	}
}
