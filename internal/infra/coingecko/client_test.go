package coingecko

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/pricewatch/internal/core/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(Config{
		BaseURL:      server.URL,
		APIKey:       "secret",
		APIKeyHeader: "x-cg-demo-api-key",
		Timeout:      5 * time.Second,
	}, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

func TestFetchRange_Success(t *testing.T) {
	from := time.Unix(1_700_000_000, 0)
	to := time.Unix(1_700_086_400, 0)

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/coins/usd-coin/market_chart/range", r.URL.Path)
		assert.Equal(t, "eth", r.URL.Query().Get("vs_currency"))
		assert.Equal(t, "1700000000", r.URL.Query().Get("from"))
		assert.Equal(t, "1700086400", r.URL.Query().Get("to"))
		assert.Equal(t, "secret", r.Header.Get("x-cg-demo-api-key"))
		w.Write([]byte(`{"prices":[[1700000000000,0.0005],[1700003600000,0.00051]],"market_caps":[],"total_volumes":[]}`))
	})

	series, err := c.FetchRange(context.Background(), "usd-coin", from, to, "eth")
	require.NoError(t, err)
	require.Len(t, series, 2)
	assert.Equal(t, int64(1_700_000_000_000), series[0].TimestampMs)
	assert.Equal(t, 0.00051, series[1].Price)
}

func TestFetchRange_Classification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   domain.FailureKind
	}{
		{"rate limited", http.StatusTooManyRequests, `{"status":{"error_code":429,"error_message":"You've exceeded the Rate Limit"}}`, domain.FailureRateLimited},
		{"unavailable", http.StatusServiceUnavailable, `<html>down</html>`, domain.FailureServiceUnavailable},
		{"not found", http.StatusNotFound, `{"error":"coin not found"}`, domain.FailurePermanent},
		{"unauthorized", http.StatusUnauthorized, `{"status":{"error_code":10002,"error_message":"API Key Missing"}}`, domain.FailurePermanent},
		{"not json", http.StatusOK, `<html>maintenance</html>`, domain.FailureEmptyData},
		{"empty prices", http.StatusOK, `{"prices":[]}`, domain.FailureEmptyData},
		{"missing prices", http.StatusOK, `{"market_caps":[]}`, domain.FailureEmptyData},
		{"quiet node error", http.StatusOK, `{"jsonrpc":"2.0","error":{"code":-32000,"message":"filter not found"}`, domain.FailureEmptyData},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			_, err := c.FetchRange(context.Background(), "usd-coin", time.Unix(0, 0), time.Unix(1, 0), "eth")
			require.Error(t, err)
			assert.Equal(t, tt.want, domain.KindOf(err))
		})
	}
}

func TestFetchRange_PermanentCarriesMessage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"coin not found"}`))
	})

	_, err := c.FetchRange(context.Background(), "nope", time.Unix(0, 0), time.Unix(1, 0), "eth")
	var fe *domain.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, http.StatusNotFound, fe.Status)
	assert.Equal(t, "coin not found", fe.Message)
}

func TestFetchRange_TransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	c := NewClient(Config{BaseURL: url, Timeout: time.Second})
	_, err := c.FetchRange(context.Background(), "usd-coin", time.Unix(0, 0), time.Unix(1, 0), "eth")
	assert.Equal(t, domain.FailureTransientNetwork, domain.KindOf(err))
}

func TestCoinList_BuildsCatalogForPlatform(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/coins/list", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("include_platform"))
		w.Write([]byte(`[
			{"id":"usd-coin","symbol":"usdc","name":"USDC","platforms":{"ethereum":"0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48","arbitrum-one":"0xaf88d065e77c8cc2239327c5edb3a432268e5831"}},
			{"id":"bitcoin","symbol":"btc","name":"Bitcoin","platforms":{}},
			{"id":"weird","symbol":"w","name":"Weird","platforms":{"arbitrum-one":"0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed/extra#x"}},
			{"id":"broken","symbol":"b","name":"Broken","platforms":{"arbitrum-one":"not-an-address"}},
			{"id":"nulled","symbol":"n","name":"Nulled","platforms":{"arbitrum-one":null}}
		]`))
	})

	catalog, err := c.CoinList(context.Background(), domain.NetworkArbitrum)
	require.NoError(t, err)
	require.Equal(t, 2, catalog.Len())

	entries := catalog.Entries()
	assert.Equal(t, "0xaf88d065e77c8cC2239327C5EDb3A432268e5831", entries[0].Address)
	assert.Equal(t, "usd-coin", entries[0].MarketID)
	assert.Equal(t, "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", entries[1].Address)
	assert.Equal(t, "weird", entries[1].MarketID)
}

func TestCoinList_RateLimitedEnvelope(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		// the API answers 200 with an error envelope on some plans
		w.Write([]byte(`{"status":{"error_code":429,"error_message":"You've exceeded the Rate Limit"}}`))
	})

	_, err := c.CoinList(context.Background(), domain.NetworkEthereum)
	assert.Equal(t, domain.FailureRateLimited, domain.KindOf(err))
}

func TestCoinList_RateLimitedStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := c.CoinList(context.Background(), domain.NetworkEthereum)
	assert.Equal(t, domain.FailureRateLimited, domain.KindOf(err))
}

func TestCoinList_UnknownNetwork(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	_, err := c.CoinList(context.Background(), domain.Network("polygon"))
	assert.Error(t, err)
}

func TestClient_RequestsPerMinuteLimiter(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`{"prices":[[1,1]]}`))
	}))
	defer server.Close()

	c := NewClient(Config{BaseURL: server.URL, RequestsPerMinute: 1})

	_, err := c.FetchRange(context.Background(), "a", time.Unix(0, 0), time.Unix(1, 0), "eth")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.FetchRange(ctx, "a", time.Unix(0, 0), time.Unix(1, 0), "eth")
	assert.Equal(t, domain.FailureTransientNetwork, domain.KindOf(err))
	assert.Equal(t, 1, calls)
}

func TestFetchRange_QuietFlag(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":{"code":-32000,"message":"filter not found"`))
	})

	_, err := c.FetchRange(context.Background(), "usd-coin", time.Unix(0, 0), time.Unix(1, 0), "eth")
	var fe *domain.FetchError
	require.ErrorAs(t, err, &fe)
	assert.True(t, fe.Quiet)

	c = newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>maintenance</html>`))
	})
	_, err = c.FetchRange(context.Background(), "usd-coin", time.Unix(0, 0), time.Unix(1, 0), "eth")
	require.ErrorAs(t, err, &fe)
	assert.False(t, fe.Quiet)
}
