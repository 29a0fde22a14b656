package health

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/pricewatch/internal/indexing/pricesync"
	"github.com/vietddude/pricewatch/internal/infra/rpc/provider"
)

// SyncSource exposes the state of a sync pass.
type SyncSource interface {
	Status() pricesync.Status
}

// Checker probes a dependency such as a database.
type Checker interface {
	Health(ctx context.Context) error
}

// ProviderSource exposes the health of a node provider.
type ProviderSource interface {
	Name() string
	Health() provider.HealthStatus
}

// Monitor aggregates health status from various system components.
type Monitor struct {
	syncs     []SyncSource
	checkers  map[string]Checker
	providers []ProviderSource
	cacheTTL  time.Duration
	now       func() time.Time

	mu         sync.Mutex
	lastCheck  time.Time
	lastReport *HealthReport
}

// NewMonitor creates a new health monitor. Probe results are cached for
// cacheTTL to keep scrapes from hammering dependencies.
func NewMonitor(cacheTTL time.Duration) *Monitor {
	return &Monitor{
		checkers: make(map[string]Checker),
		cacheTTL: cacheTTL,
		now:      time.Now,
	}
}

func (m *Monitor) AddSync(s SyncSource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.syncs = append(m.syncs, s)
}

func (m *Monitor) AddChecker(name string, c Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers[name] = c
}

func (m *Monitor) AddProvider(p ProviderSource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.providers = append(m.providers, p)
}

// CheckHealth builds a report, reusing the previous one within cacheTTL.
func (m *Monitor) CheckHealth(ctx context.Context) HealthReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.lastReport != nil && m.now().Sub(m.lastCheck) < m.cacheTTL {
		return *m.lastReport
	}

	report := HealthReport{
		SystemStatus: StatusHealthy,
		Sync:         make(map[string]SyncHealth),
		Components:   make(map[string]ComponentHealth),
	}

	for _, s := range m.syncs {
		h := syncHealth(s.Status())
		report.Sync[h.Platform] = h
		report.SystemStatus = worse(report.SystemStatus, h.Status)
	}

	for name, c := range m.checkers {
		h := ComponentHealth{Name: name, Status: StatusHealthy}
		if err := c.Health(ctx); err != nil {
			h.Status = StatusCritical
			h.Detail = err.Error()
		}
		report.Components[name] = h
		report.SystemStatus = worse(report.SystemStatus, h.Status)
	}

	for _, p := range m.providers {
		ph := p.Health()
		h := ComponentHealth{Name: p.Name(), Status: StatusHealthy, Detail: ph.Status.String()}
		switch ph.Status {
		case provider.StatusDegraded, provider.StatusThrottled:
			h.Status = StatusDegraded
		case provider.StatusBlocked:
			h.Status = StatusCritical
		}
		report.Components["rpc:"+p.Name()] = h
		report.SystemStatus = worse(report.SystemStatus, h.Status)
	}

	m.lastCheck = m.now()
	m.lastReport = &report
	return report
}

func syncHealth(st pricesync.Status) SyncHealth {
	r := st.Report
	h := SyncHealth{
		Platform:       st.Platform,
		Status:         StatusHealthy,
		Running:        st.Running,
		PassID:         r.PassID,
		Current:        st.Current,
		Processed:      r.Processed(),
		Pending:        r.Pending,
		Failed:         r.Failed,
		LastCheckpoint: st.LastCheckpoint,
	}
	switch {
	case r.CheckpointErrors > 0:
		h.Status = StatusCritical
	case r.Failed > 0:
		h.Status = StatusDegraded
	}
	return h
}
