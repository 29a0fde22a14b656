// Package evm reads event logs and token metadata from EVM JSON-RPC nodes and
// provides the ABI helpers used to build calls and topics.
package evm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"golang.org/x/sync/errgroup"

	"github.com/vietddude/pricewatch/internal/core/domain"
	"github.com/vietddude/pricewatch/internal/infra/rpc/provider"
)

// Protocol is the RPC method family used to read logs from a node.
type Protocol string

const (
	ProtocolFilter  Protocol = "filter"  // eth_newFilter + eth_getFilterLogs
	ProtocolGetLogs Protocol = "getLogs" // eth_getLogs
)

// SelectProtocol picks how logs are read for a node client and network.
// Geth nodes support installed filters except on optimism and base; arbitrum
// always does. Non-geth ethereum nodes and the optimism, base and zksync
// networks use eth_getLogs. Anything else is domain.ErrUnsupportedClient.
func SelectProtocol(clientVersion string, network domain.Network) (Protocol, error) {
	geth := strings.Contains(strings.ToLower(clientVersion), "geth")
	switch {
	case geth && network != domain.NetworkOptimism && network != domain.NetworkBase,
		network == domain.NetworkArbitrum:
		return ProtocolFilter, nil
	case network == domain.NetworkEthereum && !geth,
		network == domain.NetworkOptimism,
		network == domain.NetworkBase,
		network == domain.NetworkZkSync:
		return ProtocolGetLogs, nil
	default:
		return "", domain.ErrUnsupportedClient
	}
}

// LogFetcher reads and normalizes event logs from one node.
type LogFetcher struct {
	client  provider.Provider
	network domain.Network
	log     *slog.Logger

	mu            sync.Mutex
	clientVersion string
}

// FetcherOption customizes a LogFetcher.
type FetcherOption func(*LogFetcher)

// WithClientVersion skips the web3_clientVersion lookup.
func WithClientVersion(v string) FetcherOption {
	return func(f *LogFetcher) { f.clientVersion = v }
}

// WithFetcherLogger sets the logger.
func WithFetcherLogger(l *slog.Logger) FetcherOption {
	return func(f *LogFetcher) { f.log = l }
}

// NewLogFetcher creates a LogFetcher for network backed by client.
func NewLogFetcher(client provider.Provider, network domain.Network, opts ...FetcherOption) *LogFetcher {
	f := &LogFetcher{
		client:  client,
		network: network,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Network returns the network this fetcher reads from.
func (f *LogFetcher) Network() domain.Network {
	return f.network
}

// ClientVersion returns the node's web3_clientVersion, cached after the first call.
func (f *LogFetcher) ClientVersion(ctx context.Context) (string, error) {
	f.mu.Lock()
	v := f.clientVersion
	f.mu.Unlock()
	if v != "" {
		return v, nil
	}

	raw, err := f.client.Call(ctx, "web3_clientVersion", nil)
	if err != nil {
		return "", fmt.Errorf("web3_clientVersion failed: %w", err)
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", fmt.Errorf("invalid client version response: %w", err)
	}

	f.mu.Lock()
	f.clientVersion = v
	f.mu.Unlock()
	return v, nil
}

// GetLogs returns logs in [from, to] whose first topic is any of topics.
//
// Node errors with code -32000 or "filter not found" yield an empty result.
// An unsupported client/network pair returns domain.ErrUnsupportedClient.
func (f *LogFetcher) GetLogs(ctx context.Context, topics []string, from, to uint64) ([]domain.Event, error) {
	version, err := f.ClientVersion(ctx)
	if err != nil {
		return nil, err
	}
	protocol, err := SelectProtocol(version, f.network)
	if err != nil {
		f.log.Error("Client/network is not supported",
			"client", version,
			"network", f.network,
		)
		return nil, err
	}

	query := map[string]any{
		"fromBlock": hexutil.EncodeUint64(from),
		"toBlock":   hexutil.EncodeUint64(to),
		"topics":    []any{prefixTopics(topics)},
	}

	var raw json.RawMessage
	switch protocol {
	case ProtocolFilter:
		raw, err = f.filterLogs(ctx, query)
	default:
		raw, err = f.client.Call(ctx, "eth_getLogs", []any{query})
	}
	if err != nil {
		if provider.IsBenign(err) {
			return []domain.Event{}, nil
		}
		return nil, fmt.Errorf("get logs %d-%d: %w", from, to, err)
	}

	return decodeLogs(raw)
}

func (f *LogFetcher) filterLogs(ctx context.Context, query map[string]any) (json.RawMessage, error) {
	rawID, err := f.client.Call(ctx, "eth_newFilter", []any{query})
	if err != nil {
		return nil, err
	}
	var id string
	if err := json.Unmarshal(rawID, &id); err != nil {
		return nil, fmt.Errorf("invalid filter id: %w", err)
	}
	defer func() {
		if _, err := f.client.Call(context.WithoutCancel(ctx), "eth_uninstallFilter", []any{id}); err != nil {
			f.log.Debug("Uninstall filter failed", "filter", id, "error", err)
		}
	}()

	return f.client.Call(ctx, "eth_getFilterLogs", []any{id})
}

// GetReceiptEvents returns the logs of one transaction whose first topic is
// any of topics. A missing receipt yields an empty result.
func (f *LogFetcher) GetReceiptEvents(ctx context.Context, txHash string, topics []string) ([]domain.Event, error) {
	raw, err := f.client.Call(ctx, "eth_getTransactionReceipt", []any{txHash})
	if err != nil {
		return nil, fmt.Errorf("eth_getTransactionReceipt failed: %w", err)
	}
	return receiptEvents(raw, topics)
}

// GetReceiptsEvents is GetReceiptEvents for many transactions, fetched in
// batches. Results are keyed by transaction hash as given.
func (f *LogFetcher) GetReceiptsEvents(ctx context.Context, txHashes []string, topics []string) (map[string][]domain.Event, error) {
	const chunkSize = 10

	var mu sync.Mutex
	out := make(map[string][]domain.Event, len(txHashes))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(3) // Max 3 concurrent batch requests

	for start := 0; start < len(txHashes); start += chunkSize {
		chunk := txHashes[start:min(start+chunkSize, len(txHashes))]

		g.Go(func() error {
			requests := make([]provider.BatchRequest, len(chunk))
			for i, h := range chunk {
				requests[i] = provider.BatchRequest{Method: "eth_getTransactionReceipt", Params: []any{h}}
			}

			responses, err := f.client.BatchCall(ctx, requests)
			if err != nil {
				return fmt.Errorf("batch receipt fetch: %w", err)
			}

			for i, resp := range responses {
				if i >= len(chunk) {
					break
				}
				if resp.Error != nil {
					f.log.Warn("Failed to fetch receipt", "tx", chunk[i], "error", resp.Error)
					continue
				}
				events, err := receiptEvents(resp.Result, topics)
				if err != nil {
					f.log.Warn("Failed to decode receipt", "tx", chunk[i], "error", err)
					continue
				}
				mu.Lock()
				out[chunk[i]] = events
				mu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// BlockTimestamp returns the timestamp of block n in unix seconds.
func (f *LogFetcher) BlockTimestamp(ctx context.Context, n uint64) (uint64, error) {
	raw, err := f.client.Call(ctx, "eth_getBlockByNumber", []any{hexutil.EncodeUint64(n), false})
	if err != nil {
		return 0, fmt.Errorf("eth_getBlockByNumber failed: %w", err)
	}
	var block *struct {
		Timestamp hexutil.Uint64 `json:"timestamp"`
	}
	if err := json.Unmarshal(raw, &block); err != nil {
		return 0, fmt.Errorf("invalid block format: %w", err)
	}
	if block == nil {
		return 0, fmt.Errorf("block %d not found", n)
	}
	return uint64(block.Timestamp), nil
}

// TokenDecimals calls decimals() on an ERC-20 token.
func (f *LogFetcher) TokenDecimals(ctx context.Context, token string) (uint8, error) {
	data, err := EncodeWithSignature("decimals()")
	if err != nil {
		return 0, err
	}
	call := map[string]any{"to": token, "data": hexutil.Encode(data)}
	raw, err := f.client.Call(ctx, "eth_call", []any{call, "latest"})
	if err != nil {
		return 0, fmt.Errorf("decimals() on %s: %w", token, err)
	}

	var word hexutil.Bytes
	if err := json.Unmarshal(raw, &word); err != nil {
		return 0, fmt.Errorf("invalid eth_call response: %w", err)
	}
	if len(word) == 0 {
		return 0, fmt.Errorf("decimals() on %s returned no data", token)
	}
	n := new(big.Int).SetBytes(word)
	if !n.IsUint64() || n.Uint64() > 255 {
		return 0, fmt.Errorf("decimals() on %s out of range: %s", token, n)
	}
	return uint8(n.Uint64()), nil
}

type rawLog struct {
	Address          string         `json:"address"`
	BlockNumber      hexutil.Uint64 `json:"blockNumber"`
	BlockHash        string         `json:"blockHash"`
	TransactionHash  string         `json:"transactionHash"`
	TransactionIndex hexutil.Uint64 `json:"transactionIndex"`
	LogIndex         hexutil.Uint64 `json:"logIndex"`
	Topics           []string       `json:"topics"`
	Data             string         `json:"data"`
	Removed          bool           `json:"removed"`
}

func (r rawLog) normalize() (domain.Event, error) {
	addr, err := ChecksumAddress(r.Address)
	if err != nil {
		return domain.Event{}, err
	}
	topics := make([]string, len(r.Topics))
	for i, t := range r.Topics {
		topics[i] = strings.TrimPrefix(strings.ToLower(t), "0x")
	}
	return domain.Event{
		Address:          addr,
		BlockNumber:      uint64(r.BlockNumber),
		BlockHash:        r.BlockHash,
		TransactionHash:  r.TransactionHash,
		TransactionIndex: uint64(r.TransactionIndex),
		LogIndex:         uint64(r.LogIndex),
		Topics:           topics,
		Data:             r.Data,
		Removed:          r.Removed,
	}, nil
}

func decodeLogs(raw json.RawMessage) ([]domain.Event, error) {
	var logs []rawLog
	if err := json.Unmarshal(raw, &logs); err != nil {
		return nil, domain.NewFetchError(domain.FailureMalformedResponse, 0, "decode logs", err)
	}
	events := make([]domain.Event, 0, len(logs))
	for _, l := range logs {
		ev, err := l.normalize()
		if err != nil {
			return nil, domain.NewFetchError(domain.FailureMalformedResponse, 0, "normalize log", err)
		}
		events = append(events, ev)
	}
	return events, nil
}

func receiptEvents(raw json.RawMessage, topics []string) ([]domain.Event, error) {
	var receipt *struct {
		Logs []rawLog `json:"logs"`
	}
	if err := json.Unmarshal(raw, &receipt); err != nil {
		return nil, domain.NewFetchError(domain.FailureMalformedResponse, 0, "decode receipt", err)
	}
	if receipt == nil {
		return []domain.Event{}, nil
	}

	wanted := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		wanted[strings.TrimPrefix(strings.ToLower(t), "0x")] = struct{}{}
	}

	events := make([]domain.Event, 0, len(receipt.Logs))
	for _, l := range receipt.Logs {
		ev, err := l.normalize()
		if err != nil {
			return nil, domain.NewFetchError(domain.FailureMalformedResponse, 0, "normalize log", err)
		}
		if _, ok := wanted[ev.Topic0()]; ok {
			events = append(events, ev)
		}
	}
	return events, nil
}

func prefixTopics(topics []string) []string {
	out := make([]string, len(topics))
	for i, t := range topics {
		t = strings.ToLower(strings.TrimSpace(t))
		if !strings.HasPrefix(t, "0x") {
			t = "0x" + t
		}
		out[i] = t
	}
	return out
}
