/*
service.go - Request-level costing service

PURPOSE:
  Wraps the costing engine with everything a request needs around it:
  window defaults, the summary cache, metrics and structured logs. The
  HTTP layer and the cache warmer both go through here.

FLOW (Summary):
  1. Resolve the window (defaults for omitted bounds, validation)
  2. Cache lookup by (method, window, scope)
  3. On a miss: engine.Compute, then cache the result
  4. Record metrics, log clamped demand as a warning

WRITES (RecordEvents):
  Rows are classified before anything is written, so an unknown reason
  rejects the whole batch. After a successful append every cached summary
  is purged: any window may include the new rows' history.

CACHE GENERATION:
  Every purge bumps a generation counter. A computation remembers the
  generation it started under and only writes its summary back if no
  purge happened since, so a summary read before an append is never
  cached after it.

CACHE FAILURES:
  A cache that errors is logged and bypassed. It never fails a request.
*/
package reporting

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/warp/costing-engine/costing"
	"github.com/warp/costing-engine/metrics"
)

// =============================================================================
// DEPENDENCIES
// =============================================================================

// Store is the audit trail the service reads and appends to.
type Store interface {
	costing.EventLog
	Recent(ctx context.Context, limit int) ([]costing.RawEvent, error)
	Reset(ctx context.Context) error
}

// Cache stores computed summaries.
type Cache interface {
	Get(ctx context.Context, method costing.Method, w costing.Window) (costing.Summary, bool, error)
	Set(ctx context.Context, s costing.Summary) error
	Purge(ctx context.Context) (int, error)
}

// Options configures a Service. Zero values fall back to defaults.
type Options struct {
	Policy            costing.Policy
	DefaultWindowDays int
	CheckEvery        int
	Audit             bool
	Cache             Cache
	Metrics           *metrics.Metrics
	Logger            *zap.Logger
	Now               func() time.Time
}

// =============================================================================
// SERVICE
// =============================================================================

// Service computes and caches summaries over a Store.
type Service struct {
	store       Store
	engine      *costing.Engine
	cache       Cache
	metrics     *metrics.Metrics
	log         *zap.Logger
	now         func() time.Time
	defaultDays int

	// cacheMu serializes purges against cache writes.
	cacheMu    sync.RWMutex
	generation uint64 // guarded by cacheMu
}

// NewService wires a service over store.
func NewService(store Store, opts Options) *Service {
	engine := costing.NewEngine(store, opts.Policy)
	if opts.CheckEvery > 0 {
		engine.CheckEvery = opts.CheckEvery
	}
	engine.Audit = opts.Audit

	s := &Service{
		store:       store,
		engine:      engine,
		cache:       opts.Cache,
		metrics:     opts.Metrics,
		log:         opts.Logger,
		now:         opts.Now,
		defaultDays: opts.DefaultWindowDays,
	}
	if s.metrics == nil {
		s.metrics = metrics.New(nil)
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.defaultDays <= 0 {
		s.defaultDays = costing.DefaultWindowDays
	}
	return s
}

// Query is one summary request. Nil bounds take the configured defaults.
type Query struct {
	Method costing.Method
	From   *time.Time
	To     *time.Time
	Scope  costing.Scope
}

// Window resolves the query's reporting window against the service clock.
func (s *Service) Window(q Query) (costing.Window, error) {
	return costing.ResolveWindow(q.From, q.To, q.Scope, s.now(), s.defaultDays)
}

// Summary returns the summary for q, from cache when possible.
func (s *Service) Summary(ctx context.Context, q Query) (costing.Summary, error) {
	w, err := s.Window(q)
	if err != nil {
		s.metrics.Computations.WithLabelValues(string(q.Method), metrics.OutcomeClientErr).Inc()
		return costing.Summary{}, err
	}
	return s.compute(ctx, q.Method, w)
}

// Comparison holds both methods over the same window.
type Comparison struct {
	Window costing.Window
	WAC    costing.Summary
	FIFO   costing.Summary
}

// Compare computes WAC and FIFO for the same window concurrently.
func (s *Service) Compare(ctx context.Context, q Query) (Comparison, error) {
	w, err := s.Window(q)
	if err != nil {
		return Comparison{}, err
	}

	out := Comparison{Window: w}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		out.WAC, err = s.compute(gctx, costing.MethodWAC, w)
		return err
	})
	g.Go(func() error {
		var err error
		out.FIFO, err = s.compute(gctx, costing.MethodFIFO, w)
		return err
	})
	if err := g.Wait(); err != nil {
		return Comparison{}, err
	}
	return out, nil
}

// Stream returns the classified, ordered events a replay of q's window reads,
// pre-window history included.
func (s *Service) Stream(ctx context.Context, q Query) (costing.Window, []costing.Event, error) {
	w, err := s.Window(q)
	if err != nil {
		return costing.Window{}, nil, err
	}
	events, err := s.engine.Events(ctx, w)
	if err != nil {
		return costing.Window{}, nil, err
	}
	return w, events, nil
}

func (s *Service) compute(ctx context.Context, method costing.Method, w costing.Window) (costing.Summary, error) {
	log := s.log.With(
		zap.String("method", string(method)),
		zap.Stringer("window", w),
	)

	gen := s.cacheGeneration()
	if cached, ok := s.cacheGet(ctx, method, w, log); ok {
		s.metrics.Computations.WithLabelValues(string(method), metrics.OutcomeCacheHit).Inc()
		log.Debug("summary served from cache")
		return cached, nil
	}

	start := time.Now()
	summary, err := s.engine.Compute(ctx, method, w)
	elapsed := time.Since(start)
	if err != nil {
		s.metrics.Computations.WithLabelValues(string(method), outcome(err)).Inc()
		s.logFailure(log, err)
		return costing.Summary{}, err
	}

	s.metrics.Computations.WithLabelValues(string(method), metrics.OutcomeOK).Inc()
	s.metrics.ComputeDuration.WithLabelValues(string(method)).Observe(elapsed.Seconds())
	s.metrics.EventsReplayed.WithLabelValues(string(method)).Add(float64(summary.EventsReplayed))

	if summary.UnfilledQty > 0 {
		s.metrics.UnfilledUnits.WithLabelValues(string(method)).Add(float64(summary.UnfilledQty))
		log.Warn("outbound demand exceeded stock on hand",
			zap.Int64("unfilled_qty", summary.UnfilledQty))
	}
	log.Debug("summary computed",
		zap.Int("events", summary.EventsReplayed),
		zap.Duration("duration", elapsed))

	s.cacheSet(ctx, summary, gen, log)
	return summary, nil
}

func (s *Service) cacheGet(ctx context.Context, method costing.Method, w costing.Window, log *zap.Logger) (costing.Summary, bool) {
	if s.cache == nil {
		return costing.Summary{}, false
	}
	summary, ok, err := s.cache.Get(ctx, method, w)
	switch {
	case err != nil:
		s.metrics.CacheLookups.WithLabelValues("error").Inc()
		log.Warn("summary cache lookup failed", zap.Error(err))
		return costing.Summary{}, false
	case ok:
		s.metrics.CacheLookups.WithLabelValues("hit").Inc()
		return summary, true
	default:
		s.metrics.CacheLookups.WithLabelValues("miss").Inc()
		return costing.Summary{}, false
	}
}

func (s *Service) cacheGeneration() uint64 {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	return s.generation
}

// cacheSet stores summary unless the cache was purged after gen was read.
func (s *Service) cacheSet(ctx context.Context, summary costing.Summary, gen uint64, log *zap.Logger) {
	if s.cache == nil {
		return
	}
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	if s.generation != gen {
		log.Debug("audit trail changed during computation, summary not cached")
		return
	}
	if err := s.cache.Set(ctx, summary); err != nil {
		log.Warn("summary cache write failed", zap.Error(err))
	}
}

func (s *Service) logFailure(log *zap.Logger, err error) {
	switch {
	case costing.IsClientError(err):
		log.Debug("summary rejected", zap.Error(err))
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		log.Info("summary cancelled", zap.Error(err))
	default:
		log.Error("summary failed", zap.Error(err))
	}
}

func outcome(err error) string {
	switch {
	case costing.IsClientError(err):
		return metrics.OutcomeClientErr
	case costing.IsDataError(err):
		return metrics.OutcomeDataErr
	default:
		return metrics.OutcomeError
	}
}

// =============================================================================
// AUDIT TRAIL
// =============================================================================

// RecordEvents validates the rows against the reason table, appends them,
// and invalidates cached summaries.
func (s *Service) RecordEvents(ctx context.Context, rows []costing.RawEvent) ([]costing.RawEvent, error) {
	if err := s.classifyRows(rows); err != nil {
		return nil, err
	}
	return s.appendRows(ctx, rows)
}

func (s *Service) classifyRows(rows []costing.RawEvent) error {
	for _, r := range rows {
		if _, err := s.engine.Reasons.Classify(r); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) appendRows(ctx context.Context, rows []costing.RawEvent) ([]costing.RawEvent, error) {
	written, err := s.store.Append(ctx, rows)
	if err != nil {
		s.log.Error("append to audit trail failed", zap.Int("rows", len(rows)), zap.Error(err))
		return nil, err
	}
	s.metrics.EventsIngested.Add(float64(len(written)))
	s.log.Info("stock events recorded", zap.Int("rows", len(written)))

	s.purge(ctx)
	return written, nil
}

// RecentEvents lists the latest audit rows, newest first.
func (s *Service) RecentEvents(ctx context.Context, limit int) ([]costing.RawEvent, error) {
	return s.store.Recent(ctx, limit)
}

// ReplaceEvents drops the audit trail and loads rows in its place. Used for
// demo scenarios only. Rows are classified before the trail is reset, so a
// batch with an unknown reason leaves the current trail untouched.
func (s *Service) ReplaceEvents(ctx context.Context, rows []costing.RawEvent) ([]costing.RawEvent, error) {
	if err := s.classifyRows(rows); err != nil {
		return nil, err
	}
	if err := s.store.Reset(ctx); err != nil {
		return nil, err
	}
	s.purge(ctx)
	if len(rows) == 0 {
		return nil, nil
	}
	return s.appendRows(ctx, rows)
}

// Reasons returns the reason table in use.
func (s *Service) Reasons() costing.ReasonTable {
	return s.engine.Reasons
}

// DefaultWindowDays is the lookback used when a query has no bounds.
func (s *Service) DefaultWindowDays() int {
	return s.defaultDays
}

func (s *Service) purge(ctx context.Context) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.generation++
	if s.cache == nil {
		return
	}
	n, err := s.cache.Purge(ctx)
	if err != nil {
		s.log.Warn("summary cache purge failed", zap.Error(err))
		return
	}
	s.log.Debug("summary cache purged", zap.Int("keys", n))
}
