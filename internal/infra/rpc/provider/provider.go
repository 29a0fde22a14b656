// Package provider implements JSON-RPC node providers.
//
// This package contains:
//   - Provider interface: core abstraction for a node endpoint
//   - HTTPProvider: JSON-RPC 2.0 over HTTP
//   - ThrottleMonitor: rate-limit and block detection
//   - RPCError: the typed error object returned by nodes
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Provider defines the interface for a JSON-RPC node endpoint.
type Provider interface {
	// Name returns provider identifier (e.g., "ethereum", "alchemy")
	Name() string

	// Call makes a single RPC request and returns the raw result
	Call(ctx context.Context, method string, params []any) (json.RawMessage, error)

	// BatchCall makes multiple RPC calls in one request
	BatchCall(ctx context.Context, requests []BatchRequest) ([]BatchResponse, error)

	// Health returns current health metrics
	Health() HealthStatus

	// Close cleans up resources
	Close() error
}

// BatchRequest represents a single request in a batch call.
type BatchRequest struct {
	Method string
	Params []any
}

// BatchResponse represents a single response from a batch call.
type BatchResponse struct {
	Result json.RawMessage
	Error  error
}

// HealthStatus represents the health state of a provider.
type HealthStatus struct {
	Available     bool
	Latency       time.Duration
	ErrorRate     float64
	LastSuccessAt time.Time
	LastFailureAt time.Time
	Status        ProviderStatus
}

// RPCError is the error object of a JSON-RPC response.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// CodeServerError is the generic node error code, also used for expired filters.
const CodeServerError = -32000

// IsBenign reports errors nodes raise routinely for filter and log queries:
// code -32000 or a "filter not found" message. Callers treat them as an empty
// result.
func IsBenign(err error) bool {
	if err == nil {
		return false
	}
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) && rpcErr.Code == CodeServerError {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "filter not found") || strings.Contains(msg, "-32000")
}
