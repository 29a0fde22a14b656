package coingecko

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dnaeon/go-vcr/recorder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Replays a recorded market_chart/range call for usd-coin in eth.
// It skips when the cassette is absent and RECORD_CASSETTES != 1.
func TestFetchRange_Recorded(t *testing.T) {
	cassette := filepath.Join("testdata", "cassettes", "usd_coin_range")
	if _, err := os.Stat(cassette + ".yaml"); os.IsNotExist(err) {
		if os.Getenv("RECORD_CASSETTES") != "1" {
			t.Skipf("cassette missing; set RECORD_CASSETTES=1 to record: %s.yaml", cassette)
		}
		require.NoError(t, os.MkdirAll(filepath.Dir(cassette), 0o755))
	}

	r, err := recorder.New(cassette)
	require.NoError(t, err)
	defer func() { _ = r.Stop() }()

	client := NewClient(Config{
		BaseURL:      "https://api.coingecko.com/api/v3",
		APIKey:       os.Getenv("COINGECKO_API_KEY"),
		APIKeyHeader: "x-cg-demo-api-key",
	}, WithHTTPClient(&http.Client{Transport: r, Timeout: 30 * time.Second}))

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(48 * time.Hour)
	series, err := client.FetchRange(context.Background(), "usd-coin", from, to, "eth")
	require.NoError(t, err)
	require.NotEmpty(t, series)

	for i := 1; i < len(series); i++ {
		assert.GreaterOrEqual(t, series[i].TimestampMs, series[i-1].TimestampMs, "samples should be ascending")
	}
	assert.Greater(t, series[0].Price, 0.0)
}
