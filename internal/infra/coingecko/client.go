// Package coingecko fetches historical token prices and the token catalog
// from the CoinGecko REST API and classifies every failure into a
// domain.FailureKind the sync retry policy understands.
package coingecko

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/vietddude/pricewatch/internal/core/domain"
	"github.com/vietddude/pricewatch/internal/indexing/metrics"
	"github.com/vietddude/pricewatch/internal/infra/chain/evm"
)

// Config holds client settings.
type Config struct {
	BaseURL           string
	APIKey            string
	APIKeyHeader      string
	Timeout           time.Duration
	RequestsPerMinute int
}

// Client is a CoinGecko API client.
type Client struct {
	baseURL      string
	apiKey       string
	apiKeyHeader string
	httpClient   *http.Client
	limiter      *rate.Limiter
	log          *slog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client, e.g. with a recording transport.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// NewClient creates a new CoinGecko client.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	c := &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:       cfg.APIKey,
		apiKeyHeader: cfg.APIKeyHeader,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		log: slog.Default(),
	}
	if cfg.RequestsPerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchRange fetches the price series of marketID in quote currency for the
// closed range [from, to]. One request is made per call.
//
// A well-formed response without samples, or a body that is not JSON, yields
// a FailureEmptyData error.
func (c *Client) FetchRange(
	ctx context.Context,
	marketID string,
	from, to time.Time,
	quote string,
) (domain.PriceSeries, error) {
	q := url.Values{}
	q.Set("vs_currency", quote)
	q.Set("from", strconv.FormatInt(from.Unix(), 10))
	q.Set("to", strconv.FormatInt(to.Unix(), 10))
	path := "/coins/" + url.PathEscape(marketID) + "/market_chart/range"

	status, body, err := c.get(ctx, "market_chart_range", path, q)
	if err != nil {
		return nil, err
	}
	if err := classifyStatus(status, body); err != nil {
		return nil, err
	}

	var resp marketChartResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		fe := domain.NewFetchError(domain.FailureEmptyData, status, "malformed body", err)
		fe.Quiet = isQuietError(body)
		if !fe.Quiet {
			c.log.Debug("Malformed price response", "market", marketID, "error", err)
		}
		return nil, fe
	}
	if resp.Prices == nil || len(*resp.Prices) == 0 {
		return nil, domain.NewFetchError(domain.FailureEmptyData, status, "no price samples", nil)
	}
	return *resp.Prices, nil
}

// CoinList fetches every coin with its platform addresses and builds the
// catalog for one network. Addresses are checksummed; invalid ones are
// skipped.
func (c *Client) CoinList(ctx context.Context, network domain.Network) (*domain.TokenCatalog, error) {
	platform := network.Platform()
	if platform == "" {
		return nil, fmt.Errorf("no coin list platform for network %q", network)
	}

	q := url.Values{}
	q.Set("include_platform", "true")
	status, body, err := c.get(ctx, "coins_list", "/coins/list", q)
	if err != nil {
		return nil, err
	}
	if err := classifyStatus(status, body); err != nil {
		return nil, err
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var env statusEnvelope
		if err := json.Unmarshal(trimmed, &env); err == nil && env.Status != nil {
			if env.Status.ErrorCode == http.StatusTooManyRequests {
				return nil, domain.NewFetchError(domain.FailureRateLimited, env.Status.ErrorCode, env.Status.ErrorMessage, nil)
			}
			return nil, domain.NewFetchError(domain.FailurePermanent, env.Status.ErrorCode, env.Status.ErrorMessage, nil)
		}
		return nil, domain.NewFetchError(domain.FailureMalformedResponse, status, excerpt(body), nil)
	}

	var coins []coinListEntry
	if err := json.Unmarshal(trimmed, &coins); err != nil {
		return nil, domain.NewFetchError(domain.FailureMalformedResponse, status, "coin list", err)
	}

	catalog := domain.NewTokenCatalog()
	skipped := 0
	for _, coin := range coins {
		raw, ok := coin.Platforms[platform]
		if !ok || raw == nil || *raw == "" {
			continue
		}
		addr, err := evm.ChecksumAddress(cleanPlatformAddress(*raw))
		if err != nil {
			skipped++
			continue
		}
		catalog.Add(addr, coin.ID)
	}
	if skipped > 0 {
		c.log.Debug("Skipped coins with invalid addresses", "platform", platform, "count", skipped)
	}
	return catalog, nil
}

func (c *Client) get(ctx context.Context, endpoint, path string, q url.Values) (int, []byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, nil, domain.NewFetchError(domain.FailureTransientNetwork, 0, "rate limiter wait", err)
		}
	}

	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, nil, domain.NewFetchError(domain.FailurePermanent, 0, "create request", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" && c.apiKeyHeader != "" {
		req.Header.Set(c.apiKeyHeader, c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.PriceFetchLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		return 0, nil, domain.NewFetchError(domain.FailureTransientNetwork, 0, endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, domain.NewFetchError(domain.FailureTransientNetwork, resp.StatusCode, "read response", err)
	}
	return resp.StatusCode, body, nil
}

// classifyStatus maps a non-2xx status to a FetchError. 2xx returns nil.
func classifyStatus(status int, body []byte) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusTooManyRequests:
		return domain.NewFetchError(domain.FailureRateLimited, status, errorMessage(body), nil)
	case status == http.StatusServiceUnavailable:
		return domain.NewFetchError(domain.FailureServiceUnavailable, status, errorMessage(body), nil)
	default:
		return domain.NewFetchError(domain.FailurePermanent, status, errorMessage(body), nil)
	}
}

// errorMessage extracts a readable message from an error payload.
func errorMessage(body []byte) string {
	var env statusEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.Status != nil && env.Status.ErrorMessage != "" {
		return env.Status.ErrorMessage
	}
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil && len(eb.Error) > 0 {
		var s string
		if json.Unmarshal(eb.Error, &s) == nil {
			return s
		}
		return string(eb.Error)
	}
	return excerpt(body)
}

// isQuietError reports bodies carrying node-style "-32000" or "filter not
// found" errors that are expected and not worth logging.
func isQuietError(body []byte) bool {
	s := strings.ToLower(string(body))
	return strings.Contains(s, "-32000") || strings.Contains(s, "filter not found")
}

// cleanPlatformAddress drops suffixes some platforms append to addresses.
func cleanPlatformAddress(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, "/#"); i >= 0 {
		s = s[:i]
	}
	return strings.ToLower(s)
}

func excerpt(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 256 {
		return s[:256] + "..."
	}
	return s
}
