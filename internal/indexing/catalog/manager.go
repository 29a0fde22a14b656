// Package catalog keeps the persisted token catalog of a network current.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vietddude/pricewatch/internal/core/domain"
	"github.com/vietddude/pricewatch/internal/infra/storage"
)

// Source fetches a fresh catalog for a network.
type Source interface {
	CoinList(ctx context.Context, network domain.Network) (*domain.TokenCatalog, error)
}

// Manager loads the persisted catalog and refreshes it from the Source when
// asked to, when none exists, or when it is older than MaxAge.
type Manager struct {
	network domain.Network
	source  Source
	repo    storage.CatalogRepository
	maxAge  time.Duration
	now     func() time.Time
	log     *slog.Logger
}

// NewManager creates a Manager. maxAge 0 disables age-based refresh.
func NewManager(network domain.Network, source Source, repo storage.CatalogRepository, maxAge time.Duration, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		network: network,
		source:  source,
		repo:    repo,
		maxAge:  maxAge,
		now:     time.Now,
		log:     log.With("component", "catalog", "network", network),
	}
}

// Ensure returns the catalog to sync against. A failed or empty refresh never
// replaces an existing catalog; without one the refresh error is returned.
func (m *Manager) Ensure(ctx context.Context, refresh bool) (*domain.TokenCatalog, error) {
	existing, savedAt, err := m.repo.Load(ctx)
	switch {
	case errors.Is(err, storage.ErrCatalogNotFound):
		existing = nil
	case err != nil:
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	reason := m.refreshReason(refresh, existing, savedAt)
	if reason == "" {
		m.log.Debug("Using persisted catalog", "tokens", existing.Len(), "saved_at", savedAt)
		return existing, nil
	}

	m.log.Info("Getting list of coins from the price API", "reason", reason)
	fresh, err := m.source.CoinList(ctx, m.network)
	if err == nil && fresh.Len() == 0 {
		err = errors.New("coin list has no tokens for this network")
	}
	if err != nil {
		if existing != nil {
			m.log.Warn("Catalog refresh failed, keeping persisted catalog",
				"kind", domain.KindOf(err),
				"error", err,
				"tokens", existing.Len(),
			)
			return existing, nil
		}
		return nil, fmt.Errorf("fetch coin list: %w", err)
	}

	if err := m.repo.Save(ctx, fresh); err != nil {
		return nil, fmt.Errorf("save catalog: %w", err)
	}
	m.log.Info("Catalog refreshed", "tokens", fresh.Len())
	return fresh, nil
}

func (m *Manager) refreshReason(refresh bool, existing *domain.TokenCatalog, savedAt time.Time) string {
	switch {
	case refresh:
		return "requested"
	case existing == nil:
		return "absent"
	case m.maxAge > 0 && m.now().Sub(savedAt) > m.maxAge:
		return "expired"
	default:
		return ""
	}
}
