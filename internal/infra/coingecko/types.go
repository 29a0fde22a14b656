package coingecko

import (
	"encoding/json"

	"github.com/vietddude/pricewatch/internal/core/domain"
)

// marketChartResponse is the subset of /coins/{id}/market_chart/range we read.
type marketChartResponse struct {
	Prices *domain.PriceSeries `json:"prices"`
}

// coinListEntry is one element of /coins/list?include_platform=true.
type coinListEntry struct {
	ID        string             `json:"id"`
	Symbol    string             `json:"symbol"`
	Name      string             `json:"name"`
	Platforms map[string]*string `json:"platforms"`
}

// statusEnvelope is how the API signals errors on endpoints that otherwise
// return arrays, e.g. {"status":{"error_code":429,"error_message":"..."}}.
type statusEnvelope struct {
	Status *struct {
		ErrorCode    int    `json:"error_code"`
		ErrorMessage string `json:"error_message"`
	} `json:"status"`
}

// errorBody covers the plain {"error": "..."} payloads.
type errorBody struct {
	Error json.RawMessage `json:"error"`
}
