package storage

import (
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/vietddude/pricewatch/internal/core/domain"
)

// Binary encodings shared by the key-value backends. Samples are packed as
// two-element arrays so timestamps keep their integer type.

type sampleRecord struct {
	_msgpack    struct{} `msgpack:",as_array"`
	TimestampMs int64
	Price       float64
}

type catalogEntryRecord struct {
	_msgpack struct{} `msgpack:",as_array"`
	Address  string
	MarketID string
}

type catalogRecord struct {
	SavedAt time.Time            `msgpack:"saved_at"`
	Entries []catalogEntryRecord `msgpack:"entries"`
}

// EncodeSeries packs a price series.
func EncodeSeries(s domain.PriceSeries) ([]byte, error) {
	recs := make([]sampleRecord, len(s))
	for i, p := range s {
		recs[i] = sampleRecord{TimestampMs: p.TimestampMs, Price: p.Price}
	}
	return msgpack.Marshal(recs)
}

// DecodeSeries unpacks a series written by EncodeSeries.
func DecodeSeries(data []byte) (domain.PriceSeries, error) {
	var recs []sampleRecord
	if err := msgpack.Unmarshal(data, &recs); err != nil {
		return nil, fmt.Errorf("decode series: %w", err)
	}
	out := make(domain.PriceSeries, len(recs))
	for i, r := range recs {
		out[i] = domain.PriceSample{TimestampMs: r.TimestampMs, Price: r.Price}
	}
	return out, nil
}

// EncodeTime packs a timestamp.
func EncodeTime(t time.Time) ([]byte, error) {
	return msgpack.Marshal(t.UTC())
}

// DecodeTime unpacks a timestamp written by EncodeTime.
func DecodeTime(data []byte) (time.Time, error) {
	var t time.Time
	if err := msgpack.Unmarshal(data, &t); err != nil {
		return time.Time{}, fmt.Errorf("decode time: %w", err)
	}
	return t, nil
}

// EncodeCatalog packs a catalog, keeping its order, with the time it was saved.
func EncodeCatalog(c *domain.TokenCatalog, savedAt time.Time) ([]byte, error) {
	rec := catalogRecord{SavedAt: savedAt.UTC(), Entries: make([]catalogEntryRecord, 0, c.Len())}
	for _, e := range c.Entries() {
		rec.Entries = append(rec.Entries, catalogEntryRecord{Address: e.Address, MarketID: e.MarketID})
	}
	return msgpack.Marshal(rec)
}

// DecodeCatalog unpacks a catalog written by EncodeCatalog.
func DecodeCatalog(data []byte) (*domain.TokenCatalog, time.Time, error) {
	var rec catalogRecord
	if err := msgpack.Unmarshal(data, &rec); err != nil {
		return nil, time.Time{}, fmt.Errorf("decode catalog: %w", err)
	}
	c := domain.NewTokenCatalog()
	for _, e := range rec.Entries {
		c.Add(e.Address, e.MarketID)
	}
	return c, rec.SavedAt, nil
}
