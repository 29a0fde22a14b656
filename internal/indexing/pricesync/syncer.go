// Package pricesync reconciles the persisted price snapshot with the price
// API. A pass walks the catalog in order, fetches every address that has no
// series yet and checkpoints the snapshot as it goes.
package pricesync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/pricewatch/internal/core/domain"
	"github.com/vietddude/pricewatch/internal/core/retry"
	"github.com/vietddude/pricewatch/internal/indexing/emitter"
	"github.com/vietddude/pricewatch/internal/indexing/metrics"
	"github.com/vietddude/pricewatch/internal/infra/storage"
)

// Fetcher returns the price series of a market over [from, to].
type Fetcher interface {
	FetchRange(ctx context.Context, marketID string, from, to time.Time, quote string) (domain.PriceSeries, error)
}

type outcome int

const (
	outcomeFetched outcome = iota
	outcomeEmpty
	outcomePermanent
	outcomeFailed
	outcomeCancelled
)

// Syncer runs sync passes for one platform. Passes are sequential; Status may
// be read concurrently.
type Syncer struct {
	cfg     Config
	fetcher Fetcher
	repo    storage.SnapshotRepository
	emitter emitter.Emitter
	clock   retry.Clock
	log     *slog.Logger

	mu     sync.Mutex
	status Status
}

// Option configures a Syncer.
type Option func(*Syncer)

func WithClock(c retry.Clock) Option {
	return func(s *Syncer) { s.clock = c }
}

func WithEmitter(e emitter.Emitter) Option {
	return func(s *Syncer) { s.emitter = e }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Syncer) { s.log = l }
}

// New creates a Syncer that checkpoints into repo.
func New(cfg Config, fetcher Fetcher, repo storage.SnapshotRepository, opts ...Option) *Syncer {
	cfg.applyDefaults()
	s := &Syncer{
		cfg:     cfg,
		fetcher: fetcher,
		repo:    repo,
		emitter: emitter.Noop{},
		clock:   retry.SystemClock{},
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("component", "pricesync", "platform", cfg.Platform)
	s.status.Platform = cfg.Platform
	return s
}

// Status returns a copy of the current pass state.
func (s *Syncer) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Pending lists the catalog entries, in catalog order, that a pass would
// fetch: those without a cached series and not negatively cached.
func Pending(catalog *domain.TokenCatalog, snap *domain.Snapshot, now time.Time, emptyTTL time.Duration) (pending []domain.CatalogEntry, skipped int) {
	for _, e := range catalog.Entries() {
		if snap.Has(e.Address) {
			continue
		}
		if snap.IsUnpriced(e.Address, now, emptyTTL) {
			skipped++
			continue
		}
		pending = append(pending, e)
	}
	return pending, skipped
}

// Sync fetches every pending address once and returns the grown snapshot.
// existing is not modified. Fetch failures never fail the pass; the returned
// error is the context error when ctx ends early (the snapshot is still
// checkpointed) or a failure of the final checkpoint.
func (s *Syncer) Sync(ctx context.Context, catalog *domain.TokenCatalog, existing *domain.Snapshot) (*Result, error) {
	snap := domain.NewSnapshot()
	if existing != nil {
		snap = existing.Clone()
	}

	now := s.clock.Now()
	from, to := now.Add(-s.cfg.Lookback), now
	pending, skipped := Pending(catalog, snap, now, s.cfg.EmptyDataTTL)

	report := Report{
		PassID:    uuid.NewString(),
		Total:     catalog.Len(),
		Pending:   len(pending),
		Skipped:   skipped,
		StartedAt: now,
	}
	log := s.log.With("pass_id", report.PassID)
	s.setStatus(func(st *Status) {
		st.Running = true
		st.Current = ""
		st.Report = report
	})

	log.Info("Starting price sync",
		"catalog", catalog.Len(),
		"cached", snap.TokenCount(),
		"pending", len(pending),
		"negatively_cached", skipped,
	)
	metrics.SyncPendingTokens.WithLabelValues(s.cfg.Platform).Set(float64(len(pending)))

	if !snap.Has(domain.ReferenceKey) {
		out := s.fetchInto(ctx, log, snap, &report, domain.ReferenceKey, s.cfg.ReferenceMarket, s.cfg.ReferenceCurrency, from, to)
		if out == outcomeFetched {
			report.ReferenceSeeded = true
			s.cooldown(ctx)
		} else if out != outcomeCancelled {
			log.Warn("Reference series unavailable, valuations in the reference currency will fail", "market_id", s.cfg.ReferenceMarket)
		}
	}

	done := catalog.Len() - len(pending)
	successes := 0
	for i, entry := range pending {
		if ctx.Err() != nil {
			break
		}
		log.Info("Fetching prices",
			"address", entry.Address,
			"market_id", entry.MarketID,
			"progress", fmt.Sprintf("(%d/%d)", done+i+1, catalog.Len()),
		)
		s.setStatus(func(st *Status) { st.Current = entry.Address })

		out := s.fetchInto(ctx, log, snap, &report, entry.Address, entry.MarketID, s.cfg.QuoteCurrency, from, to)
		if out == outcomeCancelled {
			break
		}
		switch out {
		case outcomeFetched:
			report.Fetched++
		case outcomeEmpty:
			report.Empty++
		case outcomePermanent:
			report.Permanent++
		case outcomeFailed:
			report.Failed++
		}
		metrics.SyncPendingTokens.WithLabelValues(s.cfg.Platform).Set(float64(len(pending) - i - 1))
		s.setStatus(func(st *Status) { st.Report = report })

		if out != outcomeFetched {
			continue
		}
		successes++
		if successes%s.cfg.CheckpointEvery == 0 {
			s.checkpoint(ctx, log, snap, &report)
		}
		s.cooldown(ctx)
	}

	report.Cancelled = ctx.Err() != nil
	report.Duration = s.clock.Now().Sub(report.StartedAt)
	saveErr := s.checkpoint(ctx, log, snap, &report)
	s.emit(ctx, emitter.EventCompleted, snap, report)

	s.setStatus(func(st *Status) {
		st.Running = false
		st.Current = ""
		st.Report = report
	})

	log.Info("Price sync finished",
		"fetched", report.Fetched,
		"empty", report.Empty,
		"permanent", report.Permanent,
		"failed", report.Failed,
		"attempts", report.Attempts,
		"checkpoints", report.Checkpoints,
		"series", snap.TokenCount(),
		"cancelled", report.Cancelled,
	)

	res := &Result{Snapshot: snap, Report: report}
	if report.Cancelled {
		return res, ctx.Err()
	}
	if saveErr != nil {
		return res, fmt.Errorf("final checkpoint: %w", saveErr)
	}
	return res, nil
}

// fetchInto fetches one market through the retry policy and stores the
// series under key on success.
func (s *Syncer) fetchInto(
	ctx context.Context,
	log *slog.Logger,
	snap *domain.Snapshot,
	report *Report,
	key, marketID, quote string,
	from, to time.Time,
) outcome {
	var series domain.PriceSeries
	op := func(ctx context.Context, attempt int) error {
		report.Attempts++
		got, err := s.fetcher.FetchRange(ctx, marketID, from, to, quote)
		if err == nil && len(got) == 0 {
			err = domain.NewFetchError(domain.FailureEmptyData, 0, "no price samples", nil)
		}
		label := "success"
		if err != nil {
			label = string(domain.KindOf(err))
		}
		metrics.PriceFetchesTotal.WithLabelValues(s.cfg.Platform, label).Inc()
		series = got
		return err
	}
	notify := func(attempt int, err error, wait time.Duration) {
		kind := domain.KindOf(err)
		metrics.RetryWaitSeconds.WithLabelValues(s.cfg.Platform, string(kind)).Add(wait.Seconds())
		log.Warn("Price fetch failed, retrying",
			"market_id", marketID,
			"kind", kind,
			"wait", wait,
			"attempt", attempt,
			"max_attempts", s.cfg.Policy.MaxAttempts,
		)
	}

	res, err := retry.Do(ctx, s.cfg.Policy, op, retry.WithClock(s.clock), retry.WithNotify(notify))
	if err == nil {
		snap.Put(key, series)
		return outcomeFetched
	}
	if ctx.Err() != nil {
		return outcomeCancelled
	}

	switch kind := domain.KindOf(err); {
	case kind == domain.FailureEmptyData:
		if !isQuiet(err) {
			log.Warn("No prices data, skipping", "market_id", marketID)
		}
		snap.MarkUnpriced(key, s.clock.Now())
		return outcomeEmpty
	case kind == domain.FailurePermanent:
		log.Error("Price fetch rejected", "market_id", marketID, "error", err)
		return outcomePermanent
	case res.Exhausted:
		log.Error("Max retries reached, skipping", "market_id", marketID, "attempts", res.Attempts, "error", err)
		return outcomeFailed
	default:
		log.Error("Price fetch failed", "market_id", marketID, "error", err)
		return outcomeFailed
	}
}

// checkpoint persists the snapshot. A cancelled ctx still writes.
func (s *Syncer) checkpoint(ctx context.Context, log *slog.Logger, snap *domain.Snapshot, report *Report) error {
	err := s.repo.Save(context.WithoutCancel(ctx), snap)
	if err != nil {
		report.CheckpointErrors++
		metrics.CheckpointsTotal.WithLabelValues(s.cfg.Platform, "error").Inc()
		log.Error("Failed to save checkpoint", "error", err)
		return err
	}

	report.Checkpoints++
	metrics.CheckpointsTotal.WithLabelValues(s.cfg.Platform, "ok").Inc()
	metrics.CachedSeries.WithLabelValues(s.cfg.Platform).Set(float64(len(snap.Series)))
	log.Debug("Checkpoint saved", "series", len(snap.Series))

	s.setStatus(func(st *Status) {
		st.LastCheckpoint = s.clock.Now()
		st.Report = *report
	})
	s.emit(ctx, emitter.EventCheckpoint, snap, *report)
	return nil
}

func (s *Syncer) emit(ctx context.Context, typ emitter.EventType, snap *domain.Snapshot, report Report) {
	ev := &emitter.SyncEvent{
		Type:      typ,
		PassID:    report.PassID,
		Platform:  s.cfg.Platform,
		Processed: report.Processed(),
		Total:     report.Pending,
		Series:    snap.TokenCount(),
		Fetched:   report.Fetched,
		Empty:     report.Empty,
		Failed:    report.Failed,
		Permanent: report.Permanent,
		Attempts:  report.Attempts,
		Timestamp: s.clock.Now().UnixMilli(),
	}
	if err := s.emitter.Emit(context.WithoutCancel(ctx), ev); err != nil {
		s.log.Warn("Failed to emit sync event", "type", typ, "error", err)
	}
}

func (s *Syncer) cooldown(ctx context.Context) {
	if err := retry.Sleep(ctx, s.clock, s.cfg.Cooldown); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		s.log.Warn("Cooldown interrupted", "error", err)
	}
}

func (s *Syncer) setStatus(fn func(*Status)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.status)
}

func isQuiet(err error) bool {
	var fe *domain.FetchError
	return errors.As(err, &fe) && fe.Quiet
}
