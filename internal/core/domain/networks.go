package domain

import (
	"fmt"
	"strings"
)

// Network identifies an EVM network we can read logs from and price tokens on.
type Network string

const (
	NetworkEthereum Network = "ethereum"
	NetworkArbitrum Network = "arbitrum"
	NetworkOptimism Network = "optimism"
	NetworkBase     Network = "base"
	NetworkZkSync   Network = "zksync"
)

// ReferenceKey is the reserved snapshot key holding the native asset priced in
// the reference currency.
const ReferenceKey = "eth_to_usd"

// NetworkToPlatform maps a Network to the platform key CoinGecko uses in the
// coin list `platforms` object.
var NetworkToPlatform = map[Network]string{
	NetworkEthereum: "ethereum",
	NetworkArbitrum: "arbitrum-one",
	NetworkOptimism: "optimistic-ethereum",
	NetworkBase:     "base",
	NetworkZkSync:   "zksync",
}

// ParseNetwork converts a config or CLI value into a known Network.
func ParseNetwork(s string) (Network, error) {
	n := Network(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := NetworkToPlatform[n]; !ok {
		return "", fmt.Errorf("unknown network %q", s)
	}
	return n, nil
}

// Platform returns the CoinGecko platform key for the network.
func (n Network) Platform() string {
	return NetworkToPlatform[n]
}
