// Package control wires configuration into a running price sync session.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vietddude/pricewatch/internal/core/config"
	"github.com/vietddude/pricewatch/internal/core/domain"
	"github.com/vietddude/pricewatch/internal/core/retry"
	"github.com/vietddude/pricewatch/internal/indexing/catalog"
	"github.com/vietddude/pricewatch/internal/indexing/emitter"
	"github.com/vietddude/pricewatch/internal/indexing/health"
	"github.com/vietddude/pricewatch/internal/indexing/pricesync"
	"github.com/vietddude/pricewatch/internal/infra/chain/evm"
	"github.com/vietddude/pricewatch/internal/infra/coingecko"
	"github.com/vietddude/pricewatch/internal/infra/rpc/provider"
)

const defaultLockTTL = 10 * time.Minute

// ErrSyncInProgress is returned when another process holds the sync lock.
var ErrSyncInProgress = errors.New("another sync pass holds the lock for this platform")

// App is the main application struct that owns the stores, clients and the
// sync coordinator of one network.
type App struct {
	cfg      *config.AppConfig
	network  domain.Network
	platform string

	stores  *Stores
	prices  *coingecko.Client
	catalog *catalog.Manager
	syncer  *pricesync.Syncer
	emitter emitter.Emitter

	healthMon    *health.Monitor
	healthServer *health.Server
	providers    map[domain.Network]*provider.HTTPProvider

	log *slog.Logger
}

// Option configures an App.
type Option func(*appOptions)

type appOptions struct {
	prices  catalog.Source
	fetcher pricesync.Fetcher
	clock   retry.Clock
	emitter emitter.Emitter
}

// WithPriceSource replaces the price API client, for tests.
func WithPriceSource(src interface {
	catalog.Source
	pricesync.Fetcher
}) Option {
	return func(o *appOptions) {
		o.prices = src
		o.fetcher = src
	}
}

// WithClock sets the clock used for retry waits and cooldowns.
func WithClock(c retry.Clock) Option {
	return func(o *appOptions) { o.clock = c }
}

// WithEmitter overrides the emitter built from the NATS config.
func WithEmitter(e emitter.Emitter) Option {
	return func(o *appOptions) { o.emitter = e }
}

// New creates an App for the configured network.
func New(ctx context.Context, cfg *config.AppConfig, opts ...Option) (*App, error) {
	o := appOptions{clock: retry.SystemClock{}}
	for _, opt := range opts {
		opt(&o)
	}

	network, err := domain.ParseNetwork(cfg.Prices.Network)
	if err != nil {
		return nil, err
	}
	platform := string(network)
	log := slog.Default().With("network", network)

	// 1. Initialize Storage
	stores, err := OpenStores(ctx, cfg.Storage, cfg.Redis, cfg.Database, platform)
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:       cfg,
		network:   network,
		platform:  platform,
		stores:    stores,
		providers: make(map[domain.Network]*provider.HTTPProvider),
		log:       log,
	}

	// 2. Initialize the price API client
	a.prices = coingecko.NewClient(coingecko.Config{
		BaseURL:           cfg.CoinGecko.BaseURL,
		APIKey:            cfg.CoinGecko.APIKey,
		APIKeyHeader:      cfg.CoinGecko.APIKeyHeader,
		Timeout:           cfg.CoinGecko.Timeout,
		RequestsPerMinute: cfg.CoinGecko.RequestsPerMinute,
	}, coingecko.WithLogger(log))
	var source catalog.Source = a.prices
	var fetcher pricesync.Fetcher = a.prices
	if o.prices != nil {
		source, fetcher = o.prices, o.fetcher
	}

	// 3. Initialize the emitter
	a.emitter = o.emitter
	if a.emitter == nil {
		a.emitter = &emitter.LogEmitter{Log: log}
		if cfg.NATS.URL != "" {
			ne, err := emitter.Connect(cfg.NATS.URL, cfg.NATS.SubjectPrefix, log)
			if err != nil {
				log.Warn("Failed to connect to NATS, sync events will only be logged", "error", err)
			} else {
				a.emitter = ne
			}
		}
	}

	// 4. Catalog manager and sync coordinator
	a.catalog = catalog.NewManager(network, source, stores.Catalogs, cfg.Prices.CatalogMaxAge, log)
	a.syncer = pricesync.New(pricesync.Config{
		Platform:          platform,
		QuoteCurrency:     cfg.Prices.QuoteCurrency,
		ReferenceCurrency: cfg.Prices.ReferenceCurrency,
		ReferenceMarket:   cfg.Prices.ReferenceMarket,
		Lookback:          cfg.Prices.Lookback,
		CheckpointEvery:   cfg.Prices.CheckpointEvery,
		Cooldown:          cfg.Prices.Cooldown,
		EmptyDataTTL:      cfg.Prices.NegativeCacheTTL(),
		Policy: retry.NewPolicy(
			cfg.Retry.MaxAttempts,
			cfg.Retry.RateLimitedStep,
			cfg.Retry.UnavailableDelay,
			cfg.Retry.NetworkStep,
		),
	}, fetcher, stores.Snapshots,
		pricesync.WithClock(o.clock),
		pricesync.WithEmitter(a.emitter),
		pricesync.WithLogger(log),
	)

	// 5. Health monitor
	a.healthMon = health.NewMonitor(10 * time.Second)
	a.healthMon.AddSync(a.syncer)
	if stores.DB != nil {
		a.healthMon.AddChecker("postgres", stores.DB)
	}
	if stores.Redis != nil {
		a.healthMon.AddChecker("redis", stores.Redis)
	}

	return a, nil
}

// Network returns the network the App syncs.
func (a *App) Network() domain.Network { return a.network }

// Syncer returns the sync coordinator.
func (a *App) Syncer() *pricesync.Syncer { return a.syncer }

// Stores returns the repositories of the App's platform.
func (a *App) Stores() *Stores { return a.stores }

// SyncOptions controls one Sync call.
type SyncOptions struct {
	UpdatePrices   bool // fetch missing series; false only loads the snapshot
	RefreshCatalog bool
}

// Sync ensures the catalog, loads the snapshot and, when UpdatePrices is
// set, runs a sync pass. With the Redis backend the pass holds a per-platform
// lock.
func (a *App) Sync(ctx context.Context, opts SyncOptions) (*pricesync.Result, error) {
	cat, err := a.catalog.Ensure(ctx, opts.RefreshCatalog || opts.UpdatePrices)
	if err != nil {
		return nil, err
	}
	snap, err := a.stores.Snapshots.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	if !opts.UpdatePrices {
		a.log.Info("Loaded cached prices", "coins", snap.TokenCount(), "catalog", cat.Len())
		return &pricesync.Result{Snapshot: snap}, nil
	}

	if a.stores.Redis != nil {
		release, err := a.holdLock(ctx)
		if err != nil {
			return nil, err
		}
		defer release()
	}

	res, err := a.syncer.Sync(ctx, cat, snap)
	if res != nil {
		a.log.Info("Fetched prices", "coins", res.Snapshot.TokenCount())
	}
	return res, err
}

// holdLock takes the Redis sync lock and keeps it refreshed until release.
func (a *App) holdLock(ctx context.Context) (release func(), err error) {
	ttl := a.cfg.Storage.LockTTL
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	lock, err := a.stores.Redis.AcquireSyncLock(ctx, a.platform, ttl)
	if err != nil {
		return nil, err
	}
	if lock == nil {
		return nil, ErrSyncInProgress
	}

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(ttl / 3)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				ok, err := lock.Refresh(context.WithoutCancel(ctx), ttl)
				if err != nil || !ok {
					a.log.Warn("Failed to refresh sync lock", "error", err, "held", ok)
				}
			}
		}
	}()

	return func() {
		close(done)
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			a.log.Warn("Failed to release sync lock", "error", err)
		}
	}, nil
}

// Snapshot loads the persisted snapshot.
func (a *App) Snapshot(ctx context.Context) (*domain.Snapshot, error) {
	return a.stores.Snapshots.Load(ctx)
}

// Catalog loads or refreshes the catalog.
func (a *App) Catalog(ctx context.Context, refresh bool) (*domain.TokenCatalog, error) {
	return a.catalog.Ensure(ctx, refresh)
}

// LogFetcher builds a log fetcher for a network from its chain config.
func (a *App) LogFetcher(network domain.Network) (*evm.LogFetcher, error) {
	chainCfg, ok := a.cfg.Chain(string(network))
	if !ok {
		return nil, fmt.Errorf("no chain config for network %s", network)
	}
	p, ok := a.providers[network]
	if !ok {
		p = provider.NewHTTPProvider(string(network), chainCfg.URL, chainCfg.Timeout)
		a.providers[network] = p
		a.healthMon.AddProvider(p)
	}

	var opts []evm.FetcherOption
	if chainCfg.Client != "" {
		opts = append(opts, evm.WithClientVersion(chainCfg.Client))
	}
	opts = append(opts, evm.WithFetcherLogger(a.log))
	return evm.NewLogFetcher(p, network, opts...), nil
}

// StartServer starts the health and metrics server when a port is set.
func (a *App) StartServer(ctx context.Context, port int) {
	if port == 0 {
		return
	}
	a.healthServer = health.NewServer(a.healthMon, port)
	go func() {
		if err := a.healthServer.Start(); err != nil {
			a.log.Error("Health server failed", "error", err)
		}
	}()
	if a.stores.DB != nil {
		a.stores.DB.StartMetricsCollector(ctx)
	}
	a.log.Info("Health server listening", "port", port)
}

// Close stops the server and releases every connection.
func (a *App) Close(ctx context.Context) error {
	a.log.Debug("Stopping pricewatch")

	var errs []error
	if a.healthServer != nil {
		errs = append(errs, a.healthServer.Stop(ctx))
	}
	for _, p := range a.providers {
		errs = append(errs, p.Close())
	}
	errs = append(errs, a.emitter.Close(), a.stores.Close())
	return errors.Join(errs...)
}
