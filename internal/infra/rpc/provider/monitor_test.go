package provider

import (
	"testing"
	"time"
)

func TestThrottleMonitor_RetryAfterHeader(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	m := NewThrottleMonitor()
	m.now = func() time.Time { return now }

	m.RecordThrottle(429, "30")
	if m.Status() != StatusThrottled {
		t.Fatalf("expected throttled, got %s", m.Status())
	}
	if got := m.RetryAfter(); got != 30*time.Second {
		t.Errorf("expected 30s hold, got %v", got)
	}

	now = now.Add(31 * time.Second)
	if m.Status() != StatusHealthy {
		t.Errorf("expected healthy after hold expires, got %s", m.Status())
	}
	if m.RetryAfter() != 0 {
		t.Errorf("expected no hold, got %v", m.RetryAfter())
	}
}

func TestThrottleMonitor_Blocked(t *testing.T) {
	m := NewThrottleMonitor()
	m.RecordThrottle(403, "")
	if m.Status() != StatusBlocked {
		t.Errorf("expected blocked, got %s", m.Status())
	}
}

func TestThrottleMonitor_Degraded(t *testing.T) {
	m := NewThrottleMonitor()
	for i := 0; i < 20; i++ {
		m.RecordLatency(5 * time.Second)
	}
	if m.Status() != StatusDegraded {
		t.Errorf("expected degraded, got %s", m.Status())
	}
}

func TestThrottleMonitor_DetectThrottlePattern(t *testing.T) {
	m := NewThrottleMonitor()
	if !m.DetectThrottlePattern("Too Many Requests, slow down") {
		t.Error("expected pattern match")
	}
	if m.DetectThrottlePattern("execution reverted") {
		t.Error("unexpected pattern match")
	}
}
