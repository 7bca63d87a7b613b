/*
scheduler.go - Periodic ledger audit

PURPOSE:
  Periodically reconciles every item's stored balance against its ledger
  and records the outcome of each run. Drift means something wrote
  CurrentStock outside the mutation service and needs a human.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Each run audits all items; one failing item does not stop the run
  - Drifted or negative-history items are logged at error level
  - The most recent runs are kept in memory for the API

CONFIGURATION:
  - CheckInterval: How often to run (default: 1 hour, config AUDIT_INTERVAL)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewAuditScheduler(svc, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: GetAudit endpoint (single item, on demand)
  - stock/balance.go: Reconcile
*/
package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/stock-ledger/stock"
)

const maxKeptRuns = 20

// AuditRun is the outcome of one scheduled audit.
type AuditRun struct {
	ID          string     `json:"id"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt time.Time  `json:"completed_at"`
	Items       int        `json:"items"`
	Balanced    int        `json:"balanced"`
	Drifted     []AuditDTO `json:"drifted"`
	Errors      []string   `json:"errors,omitempty"`
}

// AuditScheduler runs stock audits on an interval.
type AuditScheduler struct {
	Service       *stock.Service
	Logger        *zap.Logger
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex

	runsMu sync.RWMutex
	runs   []AuditRun
	now    func() time.Time
}

// NewAuditScheduler creates a new scheduler.
func NewAuditScheduler(svc *stock.Service, logger *zap.Logger) *AuditScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditScheduler{
		Service:       svc,
		Logger:        logger,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Start begins the scheduler.
func (as *AuditScheduler) Start() {
	as.mu.Lock()
	defer as.mu.Unlock()

	if !as.Enabled || as.CheckInterval <= 0 {
		as.Logger.Info("audit scheduler disabled")
		return
	}
	if as.ticker != nil {
		return
	}

	as.ticker = time.NewTicker(as.CheckInterval)
	as.stop = make(chan struct{})
	as.wg.Add(1)

	go as.run(as.ticker, as.stop)

	as.Logger.Info("audit scheduler started", zap.Duration("interval", as.CheckInterval))
}

// Stop stops the scheduler and waits for an in-flight run.
func (as *AuditScheduler) Stop() {
	as.mu.Lock()
	defer as.mu.Unlock()

	if as.ticker != nil {
		as.ticker.Stop()
		close(as.stop)
		as.wg.Wait()
		as.ticker = nil
		as.Logger.Info("audit scheduler stopped")
	}
}

func (as *AuditScheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer as.wg.Done()

	// Run immediately on start
	as.RunNow(context.Background())

	for {
		select {
		case <-ticker.C:
			as.RunNow(context.Background())
		case <-stop:
			return
		}
	}
}

// RunNow audits every item immediately and records the run.
func (as *AuditScheduler) RunNow(ctx context.Context) AuditRun {
	start := as.now()
	run := AuditRun{
		ID:        fmt.Sprintf("audit-%d", start.UnixNano()),
		StartedAt: start,
		Drifted:   []AuditDTO{},
	}

	items, err := as.Service.ListItems(ctx)
	if err != nil {
		as.Logger.Error("audit: failed to list items", zap.Error(err))
		run.Errors = append(run.Errors, err.Error())
	}

	for _, item := range items {
		rec, err := as.Service.Audit(ctx, item.ID)
		if err != nil {
			as.Logger.Error("audit: item failed", zap.String("item_id", string(item.ID)), zap.Error(err))
			run.Errors = append(run.Errors, fmt.Sprintf("%s: %v", item.ID, err))
			continue
		}
		run.Items++
		if rec.Balanced() {
			run.Balanced++
			continue
		}
		as.Logger.Error("ledger drift detected",
			zap.String("item_id", string(rec.ItemID)),
			zap.Int("expected", rec.Expected),
			zap.Int("actual", rec.Actual),
			zap.String("negative_at", string(rec.NegativeAt)),
		)
		run.Drifted = append(run.Drifted, toAuditDTO(rec))
	}

	run.CompletedAt = as.now()
	as.record(run)

	as.Logger.Info("audit completed",
		zap.String("run_id", run.ID),
		zap.Int("items", run.Items),
		zap.Int("drifted", len(run.Drifted)),
		zap.Int("errors", len(run.Errors)),
	)
	return run
}

func (as *AuditScheduler) record(run AuditRun) {
	as.runsMu.Lock()
	defer as.runsMu.Unlock()
	as.runs = append(as.runs, run)
	if len(as.runs) > maxKeptRuns {
		as.runs = as.runs[len(as.runs)-maxKeptRuns:]
	}
}

// Runs returns recorded runs, newest first.
func (as *AuditScheduler) Runs() []AuditRun {
	as.runsMu.RLock()
	defer as.runsMu.RUnlock()
	out := make([]AuditRun, len(as.runs))
	for i, r := range as.runs {
		out[len(as.runs)-1-i] = r
	}
	return out
}

// GetNextRunTime returns when the next scheduled check will occur.
func (as *AuditScheduler) GetNextRunTime() time.Time {
	return as.now().Add(as.CheckInterval)
}
