// Package valuation prices token amounts at a point in time using the cached
// price series.
package valuation

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vietddude/pricewatch/internal/core/domain"
	"github.com/vietddude/pricewatch/internal/indexing/lookup"
)

var (
	// ErrNoSeries is returned when the token has no cached series
	ErrNoSeries = errors.New("no price series for token")

	// ErrNoReference is returned when the reference series is missing
	ErrNoReference = errors.New("reference price series missing")
)

// Valuation is an amount expressed in the native asset and in the reference
// currency.
type Valuation struct {
	Amount         decimal.Decimal // token units, decimals applied
	Native         decimal.Decimal
	Quote          decimal.Decimal
	TokenPrice     decimal.Decimal // token price in the native asset
	ReferencePrice decimal.Decimal // native asset price in the reference currency
}

// Valuer values amounts against one snapshot. All lookups share one Lookup so
// the fallback warning is emitted once per session.
type Valuer struct {
	snap   *domain.Snapshot
	lookup *lookup.Lookup
}

func NewValuer(snap *domain.Snapshot, lk *lookup.Lookup) *Valuer {
	if lk == nil {
		lk = lookup.New(nil)
	}
	return &Valuer{snap: snap, lookup: lk}
}

// Value prices amount (raw integer units with the given decimals) of token at
// time at.
func (v *Valuer) Value(at time.Time, token string, amount *big.Int, decimals uint8) (Valuation, error) {
	series, ok := v.snap.Get(token)
	if !ok {
		return Valuation{}, fmt.Errorf("%w: %s", ErrNoSeries, token)
	}
	tokenPrice, err := v.lookup.PriceAt(at, series)
	if err != nil {
		return Valuation{}, fmt.Errorf("token %s: %w", token, err)
	}
	return v.value(at, Scale(amount, decimals), decimal.NewFromFloat(tokenPrice))
}

// ValueNative prices an amount of the native asset itself (wei for 18
// decimals).
func (v *Valuer) ValueNative(at time.Time, amount *big.Int, decimals uint8) (Valuation, error) {
	return v.value(at, Scale(amount, decimals), decimal.NewFromInt(1))
}

func (v *Valuer) value(at time.Time, amount, tokenPrice decimal.Decimal) (Valuation, error) {
	ref, ok := v.snap.Reference()
	if !ok {
		return Valuation{}, ErrNoReference
	}
	refPrice, err := v.lookup.PriceAt(at, ref)
	if err != nil {
		return Valuation{}, fmt.Errorf("reference: %w", err)
	}

	native := amount.Mul(tokenPrice)
	refDec := decimal.NewFromFloat(refPrice)
	return Valuation{
		Amount:         amount,
		Native:         native,
		Quote:          native.Mul(refDec),
		TokenPrice:     tokenPrice,
		ReferencePrice: refDec,
	}, nil
}

// Scale converts a raw integer amount into token units.
func Scale(amount *big.Int, decimals uint8) decimal.Decimal {
	if amount == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(amount, -int32(decimals))
}
