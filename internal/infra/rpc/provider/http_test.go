package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vietddude/pricewatch/internal/core/domain"
)

func newRPCServer(t *testing.T, handler func(req map[string]any) any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode body: %v", err)
			return
		}
		json.NewEncoder(w).Encode(handler(req))
	}))
}

func TestHTTPProvider_Call(t *testing.T) {
	server := newRPCServer(t, func(req map[string]any) any {
		if v, ok := req["jsonrpc"].(string); !ok || v != "2.0" {
			t.Errorf("expected jsonrpc: 2.0, got %v", req["jsonrpc"])
		}
		if params, ok := req["params"].([]any); !ok || len(params) != 0 {
			t.Errorf("expected empty params array, got %v", req["params"])
		}
		return map[string]any{"jsonrpc": "2.0", "id": req["id"], "result": "0x123"}
	})
	defer server.Close()

	p := NewHTTPProvider("eth-mock", server.URL, 5*time.Second)
	result, err := p.Call(context.Background(), "eth_blockNumber", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got string
	if err := json.Unmarshal(result, &got); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if got != "0x123" {
		t.Errorf("expected 0x123, got %s", got)
	}
	if h := p.Health(); !h.Available || h.ErrorRate != 0 {
		t.Errorf("expected healthy provider, got %+v", h)
	}
}

func TestHTTPProvider_Call_RPCError(t *testing.T) {
	server := newRPCServer(t, func(req map[string]any) any {
		return map[string]any{
			"jsonrpc": "2.0",
			"id":      req["id"],
			"error":   map[string]any{"code": -32000, "message": "filter not found"},
		}
	})
	defer server.Close()

	p := NewHTTPProvider("eth-mock", server.URL, 5*time.Second)
	_, err := p.Call(context.Background(), "eth_getFilterLogs", []any{"0x1"})

	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("expected *RPCError, got %T: %v", err, err)
	}
	if rpcErr.Code != -32000 {
		t.Errorf("expected code -32000, got %d", rpcErr.Code)
	}
	if !IsBenign(err) {
		t.Error("expected filter-not-found error to be benign")
	}
}

func TestHTTPProvider_Call_StatusClassification(t *testing.T) {
	tests := []struct {
		status int
		want   domain.FailureKind
	}{
		{http.StatusTooManyRequests, domain.FailureRateLimited},
		{http.StatusServiceUnavailable, domain.FailureServiceUnavailable},
		{http.StatusForbidden, domain.FailurePermanent},
		{http.StatusBadRequest, domain.FailurePermanent},
	}

	for _, tt := range tests {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
			w.Write([]byte("nope"))
		}))

		p := NewHTTPProvider("eth-mock", server.URL, 5*time.Second)
		_, err := p.Call(context.Background(), "eth_blockNumber", nil)
		server.Close()

		if got := domain.KindOf(err); got != tt.want {
			t.Errorf("status %d: expected %s, got %s (%v)", tt.status, tt.want, got, err)
		}
	}
}

func TestHTTPProvider_ThrottleHoldsFurtherCalls(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	p := NewHTTPProvider("eth-mock", server.URL, 5*time.Second)
	_, _ = p.Call(context.Background(), "eth_blockNumber", nil)
	_, err := p.Call(context.Background(), "eth_blockNumber", nil)

	if calls != 1 {
		t.Errorf("expected the second call to be held back, server saw %d calls", calls)
	}
	if domain.KindOf(err) != domain.FailureRateLimited {
		t.Errorf("expected rate limited, got %v", err)
	}
	if p.Health().Status != StatusThrottled {
		t.Errorf("expected throttled status, got %s", p.Health().Status)
	}
}

func TestHTTPProvider_BatchCall_ReordersByID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var reqs []map[string]any
		if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
			t.Errorf("failed to decode batch: %v", err)
			return
		}
		// answer in reverse order, second request fails
		json.NewEncoder(w).Encode([]any{
			map[string]any{"jsonrpc": "2.0", "id": 2, "error": map[string]any{"code": -32602, "message": "bad"}},
			map[string]any{"jsonrpc": "2.0", "id": 1, "result": "0x1"},
		})
	}))
	defer server.Close()

	p := NewHTTPProvider("eth-mock", server.URL, 5*time.Second)
	resps, err := p.BatchCall(context.Background(), []BatchRequest{
		{Method: "eth_getTransactionReceipt", Params: []any{"0xa"}},
		{Method: "eth_getTransactionReceipt", Params: []any{"0xb"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resps) != 2 {
		t.Fatalf("expected 2 responses, got %d", len(resps))
	}
	if resps[0].Error != nil || string(resps[0].Result) != `"0x1"` {
		t.Errorf("unexpected first response: %+v", resps[0])
	}
	if resps[1].Error == nil {
		t.Error("expected error for second response")
	}
}
