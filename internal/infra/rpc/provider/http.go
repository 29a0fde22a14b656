package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/vietddude/pricewatch/internal/core/domain"
	"github.com/vietddude/pricewatch/internal/indexing/metrics"
)

// HTTPProvider implements Provider for JSON-RPC 2.0 over HTTP.
type HTTPProvider struct {
	name       string
	endpoint   string
	httpClient *http.Client

	mu           sync.RWMutex
	health       HealthStatus
	totalLatency time.Duration
	successCount int
	failureCount int
	requestCount int

	Monitor *ThrottleMonitor
}

// NewHTTPProvider creates a new HTTP-based RPC provider.
func NewHTTPProvider(name, endpoint string, timeout time.Duration) *HTTPProvider {
	return &HTTPProvider{
		name:     name,
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		health: HealthStatus{
			Available:     true,
			LastSuccessAt: time.Now(),
		},
		Monitor: NewThrottleMonitor(),
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	ID      int    `json:"id"`
}

type rpcResponse struct {
	ID     int             `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// Call makes a single JSON-RPC call.
//
// HTTP-level failures are returned as *domain.FetchError; error objects in
// the response body are returned as *RPCError.
func (p *HTTPProvider) Call(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	if params == nil {
		params = []any{}
	}
	body, err := p.post(ctx, method, rpcRequest{JSONRPC: "2.0", Method: method, Params: params, ID: 1})
	if err != nil {
		return nil, err
	}

	var resp rpcResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		p.recordFailure("parse")
		return nil, domain.NewFetchError(domain.FailureMalformedResponse, http.StatusOK, "parse response", err)
	}

	if resp.Error != nil {
		if p.Monitor.DetectThrottlePattern(resp.Error.Message) {
			p.Monitor.RecordThrottle(http.StatusTooManyRequests, "")
			p.recordFailure("throttle")
			return nil, domain.NewFetchError(domain.FailureRateLimited, 0, resp.Error.Message, resp.Error)
		}
		p.recordFailure("rpc")
		return nil, resp.Error
	}

	return resp.Result, nil
}

// BatchCall makes multiple RPC calls in one request. Responses are returned
// in request order regardless of the order the node answered in.
func (p *HTTPProvider) BatchCall(ctx context.Context, requests []BatchRequest) ([]BatchResponse, error) {
	if len(requests) == 0 {
		return nil, nil
	}

	batch := make([]rpcRequest, len(requests))
	for i, r := range requests {
		params := r.Params
		if params == nil {
			params = []any{}
		}
		batch[i] = rpcRequest{JSONRPC: "2.0", Method: r.Method, Params: params, ID: i + 1}
	}

	body, err := p.post(ctx, "batch", batch)
	if err != nil {
		return nil, err
	}

	var raw []rpcResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		p.recordFailure("parse")
		return nil, domain.NewFetchError(domain.FailureMalformedResponse, http.StatusOK, "parse batch response", err)
	}

	responses := make([]BatchResponse, len(requests))
	for i := range responses {
		responses[i].Error = fmt.Errorf("no response for request %d", i+1)
	}
	for _, r := range raw {
		idx := r.ID - 1
		if idx < 0 || idx >= len(responses) {
			continue
		}
		if r.Error != nil {
			responses[idx] = BatchResponse{Error: r.Error}
		} else {
			responses[idx] = BatchResponse{Result: r.Result}
		}
	}
	return responses, nil
}

func (p *HTTPProvider) post(ctx context.Context, method string, payload any) ([]byte, error) {
	start := time.Now()
	metrics.RPCCallsTotal.WithLabelValues(p.name, method).Inc()

	if status := p.Monitor.Status(); status == StatusThrottled || status == StatusBlocked {
		p.recordFailure("throttle")
		return nil, domain.NewFetchError(domain.FailureRateLimited, 0,
			fmt.Sprintf("provider %s, retry after %v", status, p.Monitor.RetryAfter()), nil)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		p.recordFailure("marshal")
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(data))
	if err != nil {
		p.recordFailure("request")
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.recordFailure("network")
		return nil, domain.NewFetchError(domain.FailureTransientNetwork, 0, method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		p.recordFailure("network")
		return nil, domain.NewFetchError(domain.FailureTransientNetwork, resp.StatusCode, "read response", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		p.Monitor.RecordThrottle(resp.StatusCode, resp.Header.Get("Retry-After"))
		p.recordFailure("throttle")
		return nil, domain.NewFetchError(domain.FailureRateLimited, resp.StatusCode, string(body), nil)
	case resp.StatusCode == http.StatusForbidden:
		p.Monitor.RecordThrottle(resp.StatusCode, "")
		p.recordFailure("blocked")
		return nil, domain.NewFetchError(domain.FailurePermanent, resp.StatusCode, "ip blocked", nil)
	case resp.StatusCode == http.StatusServiceUnavailable:
		p.recordFailure("unavailable")
		return nil, domain.NewFetchError(domain.FailureServiceUnavailable, resp.StatusCode, string(body), nil)
	case resp.StatusCode != http.StatusOK:
		p.recordFailure("http")
		if p.Monitor.DetectThrottlePattern(string(body)) {
			return nil, domain.NewFetchError(domain.FailureRateLimited, resp.StatusCode, string(body), nil)
		}
		return nil, domain.NewFetchError(domain.FailurePermanent, resp.StatusCode, string(body), nil)
	}

	latency := time.Since(start)
	p.Monitor.RecordLatency(latency)
	p.recordSuccess(latency)
	return body, nil
}

// Name returns the provider's name.
func (p *HTTPProvider) Name() string {
	return p.name
}

// Health returns the provider's health status.
func (p *HTTPProvider) Health() HealthStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()
	h := p.health
	h.Status = p.Monitor.Status()
	return h
}

// Close cleans up resources.
func (p *HTTPProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}

func (p *HTTPProvider) recordSuccess(latency time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.successCount++
	p.requestCount++
	p.totalLatency += latency
	p.health.LastSuccessAt = time.Now()
	p.health.Available = true

	p.health.ErrorRate = float64(p.failureCount) / float64(p.requestCount)
	p.health.Latency = p.totalLatency / time.Duration(p.successCount)
}

func (p *HTTPProvider) recordFailure(errorType string) {
	metrics.RPCErrorsTotal.WithLabelValues(p.name, errorType).Inc()

	p.mu.Lock()
	defer p.mu.Unlock()

	p.failureCount++
	p.requestCount++
	p.health.LastFailureAt = time.Now()
	p.health.ErrorRate = float64(p.failureCount) / float64(p.requestCount)

	if p.health.ErrorRate > 0.5 {
		p.health.Available = false
	}
}
