/*
scheduler.go - Summary cache warmer

PURPOSE:
  Periodically precomputes the default-window summaries for a configured
  list of scopes so dashboards hit a warm cache. Each pass runs Compare
  for every scope, which caches both WAC and FIFO.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Runs one pass immediately on start
  - A failing scope is logged and counted; the pass moves on to the next
  - Stop cancels any computation in flight and waits for the goroutine

CONFIGURATION:
  - Interval: How often to warm (warmer.interval, default 10m)
  - Enabled:  Whether the warmer is active (warmer.enabled)
  - Scopes:   "supplier" or "supplier/item" strings (warmer.scopes)

USAGE:
  warmer := NewCacheWarmer(svc, cfg.WarmerScopes(), m, log)
  warmer.Start()
  // ... later
  warmer.Stop()

SEE ALSO:
  - reporting/service.go: Compare, which fills the cache
*/
package api

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/costing-engine/costing"
	"github.com/warp/costing-engine/metrics"
	"github.com/warp/costing-engine/reporting"
)

// CacheWarmer precomputes default-window summaries.
type CacheWarmer struct {
	Service       *reporting.Service
	Scopes        []costing.Scope
	CheckInterval time.Duration
	Enabled       bool

	metrics *metrics.Metrics
	log     *zap.Logger

	ticker *time.Ticker
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewCacheWarmer creates a warmer. An empty scope list warms the unscoped
// summary only.
func NewCacheWarmer(svc *reporting.Service, scopes []costing.Scope, m *metrics.Metrics, log *zap.Logger) *CacheWarmer {
	if len(scopes) == 0 {
		scopes = []costing.Scope{{}}
	}
	if m == nil {
		m = metrics.New(nil)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &CacheWarmer{
		Service:       svc,
		Scopes:        scopes,
		CheckInterval: 10 * time.Minute,
		Enabled:       true,
		metrics:       m,
		log:           log.Named("warmer"),
	}
}

// Start begins the warmer.
func (cw *CacheWarmer) Start() {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if !cw.Enabled {
		cw.log.Info("disabled, not starting")
		return
	}
	if cw.ticker != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	cw.cancel = cancel
	cw.ticker = time.NewTicker(cw.CheckInterval)
	cw.wg.Add(1)

	go cw.run(ctx)

	cw.log.Info("started",
		zap.Duration("interval", cw.CheckInterval),
		zap.Int("scopes", len(cw.Scopes)))
}

// Stop stops the warmer and waits for a pass in flight to return.
func (cw *CacheWarmer) Stop() {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if cw.ticker != nil {
		cw.ticker.Stop()
		cw.cancel()
		cw.wg.Wait()
		cw.ticker = nil
		cw.log.Info("stopped")
	}
}

func (cw *CacheWarmer) run(ctx context.Context) {
	defer cw.wg.Done()

	// Run immediately on start
	cw.RunOnce(ctx)

	for {
		select {
		case <-cw.ticker.C:
			cw.RunOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// RunOnce warms every scope and returns how many failed.
func (cw *CacheWarmer) RunOnce(ctx context.Context) int {
	start := time.Now()
	failed := 0

	for _, scope := range cw.Scopes {
		if ctx.Err() != nil {
			break
		}
		if _, err := cw.Service.Compare(ctx, reporting.Query{Scope: scope}); err != nil {
			if errors.Is(err, context.Canceled) {
				break
			}
			failed++
			cw.log.Warn("warming failed", zap.Stringer("scope", scope), zap.Error(err))
		}
	}

	outcome := metrics.OutcomeOK
	if failed > 0 {
		outcome = metrics.OutcomeError
	}
	cw.metrics.WarmerRuns.WithLabelValues(outcome).Inc()
	cw.log.Debug("pass completed",
		zap.Int("scopes", len(cw.Scopes)),
		zap.Int("failed", failed),
		zap.Duration("duration", time.Since(start)))
	return failed
}
