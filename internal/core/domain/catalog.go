package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// CatalogEntry pairs a token address with its price-provider market id.
type CatalogEntry struct {
	Address  string
	MarketID string
}

// TokenCatalog maps checksummed token addresses to market ids and keeps the
// insertion order, which is the order a sync pass walks it in.
type TokenCatalog struct {
	entries []CatalogEntry
	index   map[string]int
}

// NewTokenCatalog returns an empty catalog.
func NewTokenCatalog() *TokenCatalog {
	return &TokenCatalog{index: make(map[string]int)}
}

// Add inserts or updates an entry. Updating keeps the original position.
func (c *TokenCatalog) Add(address, marketID string) {
	if c.index == nil {
		c.index = make(map[string]int)
	}
	if i, ok := c.index[address]; ok {
		c.entries[i].MarketID = marketID
		return
	}
	c.index[address] = len(c.entries)
	c.entries = append(c.entries, CatalogEntry{Address: address, MarketID: marketID})
}

// MarketID looks up the market id for an address.
func (c *TokenCatalog) MarketID(address string) (string, bool) {
	i, ok := c.index[address]
	if !ok {
		return "", false
	}
	return c.entries[i].MarketID, true
}

// Len returns the number of entries.
func (c *TokenCatalog) Len() int {
	return len(c.entries)
}

// Entries returns the entries in catalog order. The slice must not be modified.
func (c *TokenCatalog) Entries() []CatalogEntry {
	return c.entries
}

// MarshalJSON writes a flat object, preserving order.
func (c *TokenCatalog) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range c.entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(e.Address)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(e.MarketID)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a flat object of string values, preserving key order.
func (c *TokenCatalog) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("token catalog: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("token catalog: expected object, got %v", tok)
	}

	*c = TokenCatalog{index: make(map[string]int)}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("token catalog: %w", err)
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("token catalog: unexpected key %v", tok)
		}
		var marketID string
		if err := dec.Decode(&marketID); err != nil {
			return fmt.Errorf("token catalog: value for %s: %w", key, err)
		}
		c.Add(key, marketID)
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("token catalog: %w", err)
	}
	return nil
}
