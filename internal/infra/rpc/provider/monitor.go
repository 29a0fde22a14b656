package provider

import (
	"strconv"
	"strings"
	"sync"
	"time"
)

// ProviderStatus represents the health state of a provider.
type ProviderStatus int

const (
	StatusHealthy   ProviderStatus = iota // Provider is working normally
	StatusDegraded                        // Provider is slow but working
	StatusThrottled                       // Provider is rate limiting
	StatusBlocked                         // Provider has blocked this client
)

func (s ProviderStatus) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusDegraded:
		return "degraded"
	case StatusThrottled:
		return "throttled"
	case StatusBlocked:
		return "blocked"
	default:
		return "unknown"
	}
}

// ThrottleMonitor tracks rate limiting and latency of one endpoint and
// decides when calls should be held back.
type ThrottleMonitor struct {
	mu sync.RWMutex

	latencies []time.Duration
	window    int

	patterns      []string
	throttleCount int
	blocked       bool
	holdUntil     time.Time

	slowThreshold time.Duration
	now           func() time.Time
}

// NewThrottleMonitor creates a monitor with default thresholds.
func NewThrottleMonitor() *ThrottleMonitor {
	return &ThrottleMonitor{
		latencies: make([]time.Duration, 0, 50),
		window:    50,
		patterns: []string{
			"rate limit exceeded",
			"too many requests",
			"daily request count exceeded",
			"project rate limit",
			"monthly quota exceeded",
		},
		slowThreshold: 3 * time.Second,
		now:           time.Now,
	}
}

// RecordLatency records a successful request.
func (m *ThrottleMonitor) RecordLatency(latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.latencies = append(m.latencies, latency)
	if len(m.latencies) > m.window {
		m.latencies = m.latencies[1:]
	}
}

// RecordThrottle records a 429 or 403 response. retryAfter is the raw
// Retry-After header in seconds; when absent a default hold is applied.
func (m *ThrottleMonitor) RecordThrottle(statusCode int, retryAfter string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	hold := time.Minute
	if secs, err := strconv.Atoi(strings.TrimSpace(retryAfter)); err == nil && secs > 0 {
		hold = time.Duration(secs) * time.Second
	}
	if statusCode == 403 {
		m.blocked = true
		hold = 10 * time.Minute
	} else {
		m.throttleCount++
	}
	m.holdUntil = m.now().Add(hold)
}

// DetectThrottlePattern checks if a message contains throttle patterns.
func (m *ThrottleMonitor) DetectThrottlePattern(message string) bool {
	lower := strings.ToLower(message)
	for _, p := range m.patterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// Status returns the current status of the endpoint.
func (m *ThrottleMonitor) Status() ProviderStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.now().Before(m.holdUntil) {
		if m.blocked {
			return StatusBlocked
		}
		return StatusThrottled
	}

	if len(m.latencies) > 10 {
		var total time.Duration
		for _, l := range m.latencies {
			total += l
		}
		if total/time.Duration(len(m.latencies)) > m.slowThreshold {
			return StatusDegraded
		}
	}
	return StatusHealthy
}

// RetryAfter returns how long calls are held back, zero when they are not.
func (m *ThrottleMonitor) RetryAfter() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if d := m.holdUntil.Sub(m.now()); d > 0 {
		return d
	}
	return 0
}
