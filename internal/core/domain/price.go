package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// PriceSample is one (timestamp, price) point. It is encoded as the two
// element array `[timestamp_ms, price]` the price API returns.
type PriceSample struct {
	TimestampMs int64
	Price       float64
}

// Time returns the sample timestamp as a time.Time.
func (p PriceSample) Time() time.Time {
	return time.UnixMilli(p.TimestampMs)
}

func (p PriceSample) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{p.TimestampMs, p.Price})
}

func (p *PriceSample) UnmarshalJSON(data []byte) error {
	var raw []json.Number
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("price sample: %w", err)
	}
	if len(raw) != 2 {
		return fmt.Errorf("price sample: expected 2 elements, got %d", len(raw))
	}

	ts, err := raw[0].Int64()
	if err != nil {
		// Some payloads carry the timestamp as a float (1.7e12).
		f, ferr := raw[0].Float64()
		if ferr != nil {
			return fmt.Errorf("price sample timestamp %q: %w", raw[0], err)
		}
		ts = int64(f)
	}
	price, err := raw[1].Float64()
	if err != nil {
		return fmt.Errorf("price sample price %q: %w", raw[1], err)
	}

	p.TimestampMs = ts
	p.Price = price
	return nil
}

// PriceSeries is a list of samples in the order the source delivered them,
// which is time order. It is never re-sorted.
type PriceSeries []PriceSample

// Last returns the most recent sample. ok is false for an empty series.
func (s PriceSeries) Last() (PriceSample, bool) {
	if len(s) == 0 {
		return PriceSample{}, false
	}
	return s[len(s)-1], true
}

// Clone returns a copy that shares no backing array with s.
func (s PriceSeries) Clone() PriceSeries {
	if s == nil {
		return nil
	}
	out := make(PriceSeries, len(s))
	copy(out, s)
	return out
}

// Snapshot is the full persisted price cache for one platform.
//
// Series holds token address -> series plus ReferenceKey. Unpriced records
// addresses the price API had no data for, with the time that was observed.
type Snapshot struct {
	Series   map[string]PriceSeries
	Unpriced map[string]time.Time
}

// NewSnapshot returns an empty snapshot with the reference key absent.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		Series:   make(map[string]PriceSeries),
		Unpriced: make(map[string]time.Time),
	}
}

// Has reports whether a series is cached for key.
func (s *Snapshot) Has(key string) bool {
	_, ok := s.Series[key]
	return ok
}

// Put stores a series. Empty series are ignored so every stored key has at
// least one sample.
func (s *Snapshot) Put(key string, series PriceSeries) bool {
	if len(series) == 0 {
		return false
	}
	s.Series[key] = series
	delete(s.Unpriced, key)
	return true
}

// Get returns the cached series for key.
func (s *Snapshot) Get(key string) (PriceSeries, bool) {
	series, ok := s.Series[key]
	return series, ok
}

// Reference returns the native asset reference series.
func (s *Snapshot) Reference() (PriceSeries, bool) {
	return s.Get(ReferenceKey)
}

// TokenCount is the number of cached token series, excluding the reference.
func (s *Snapshot) TokenCount() int {
	n := len(s.Series)
	if s.Has(ReferenceKey) {
		n--
	}
	return n
}

// MarkUnpriced records that key had no upstream data at time at.
func (s *Snapshot) MarkUnpriced(key string, at time.Time) {
	s.Unpriced[key] = at
}

// Forget drops the series and the unpriced record of key so the next pass
// fetches it again. It reports whether anything was removed.
func (s *Snapshot) Forget(key string) bool {
	_, cached := s.Series[key]
	_, unpriced := s.Unpriced[key]
	delete(s.Series, key)
	delete(s.Unpriced, key)
	return cached || unpriced
}

// IsUnpriced reports whether key is negatively cached and the entry has not
// expired. A zero ttl disables the negative cache.
func (s *Snapshot) IsUnpriced(key string, now time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	at, ok := s.Unpriced[key]
	if !ok {
		return false
	}
	return now.Sub(at) < ttl
}

// Clone deep-copies the snapshot.
func (s *Snapshot) Clone() *Snapshot {
	out := NewSnapshot()
	for k, v := range s.Series {
		out.Series[k] = v.Clone()
	}
	for k, v := range s.Unpriced {
		out.Unpriced[k] = v
	}
	return out
}

// Normalize replaces nil maps so a decoded snapshot is safe to write to.
func (s *Snapshot) Normalize() *Snapshot {
	if s.Series == nil {
		s.Series = make(map[string]PriceSeries)
	}
	if s.Unpriced == nil {
		s.Unpriced = make(map[string]time.Time)
	}
	return s
}
