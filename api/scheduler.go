/*
scheduler.go - Automated month-end closure

PURPOSE:
  Periodically closes the previous month for every tenant. Closure is
  idempotent, so the scheduler keeps no bookkeeping of its own: every tick
  on or after DayOfMonth simply asks again, and already closed tenants are
  no-ops.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Runs once immediately on start
  - Skips ticks before DayOfMonth so late payroll inputs can still land
  - Remembers the last run for GET /api/scheduler

CONFIGURATION:
  - Interval: How often to check (default: 1 hour)
  - DayOfMonth: First day of the month closure may run (default: 1)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewClosureScheduler(engine, logger)
  scheduler.Start(ctx)
  // ... later
  scheduler.Stop()

SEE ALSO:
  - closure/engine.go: CloseAll
  - handlers.go: SchedulerStatus, RunScheduler
*/
package api

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/warp/backoffice/closure"
	"github.com/warp/backoffice/generic"
)

// ClosureScheduler handles automated month-end closure.
type ClosureScheduler struct {
	Engine     *closure.Engine
	Interval   time.Duration
	DayOfMonth int
	Enabled    bool
	Logger     *slog.Logger

	// Now is overridable for tests.
	Now func() time.Time

	ticker *time.Ticker
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex

	statusMu  sync.Mutex
	lastRunAt time.Time
	lastMonth generic.YearMonth
	lastRun   []closure.Result
	lastErr   error
}

// NewClosureScheduler creates a scheduler with the default settings.
func NewClosureScheduler(engine *closure.Engine, logger *slog.Logger) *ClosureScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ClosureScheduler{
		Engine:     engine,
		Interval:   time.Hour,
		DayOfMonth: 1,
		Enabled:    true,
		Logger:     logger,
		Now:        time.Now,
	}
}

// Start begins the scheduler. It stops when ctx is cancelled or Stop is
// called.
func (cs *ClosureScheduler) Start(ctx context.Context) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if !cs.Enabled {
		cs.Logger.Info("closure scheduler disabled, not starting")
		return
	}
	if cs.ticker != nil {
		return
	}

	ctx, cs.cancel = context.WithCancel(ctx)
	cs.ticker = time.NewTicker(cs.Interval)
	cs.wg.Add(1)

	go cs.run(ctx, cs.ticker)

	cs.Logger.Info("closure scheduler started", "interval", cs.Interval, "day_of_month", cs.DayOfMonth)
}

// Stop stops the scheduler and waits for an in-flight run to finish.
func (cs *ClosureScheduler) Stop() {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if cs.ticker == nil {
		return
	}
	cs.ticker.Stop()
	cs.cancel()
	cs.wg.Wait()
	cs.ticker = nil
	cs.Logger.Info("closure scheduler stopped")
}

func (cs *ClosureScheduler) run(ctx context.Context, ticker *time.Ticker) {
	defer cs.wg.Done()

	// Run immediately on start
	cs.RunNow(ctx)

	for {
		select {
		case <-ticker.C:
			cs.RunNow(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// RunNow performs one scheduler pass: before DayOfMonth it does nothing,
// otherwise it closes the previous month for every tenant. It returns
// whether closure was attempted.
func (cs *ClosureScheduler) RunNow(ctx context.Context) bool {
	now := cs.Now().UTC()
	if now.Day() < cs.DayOfMonth {
		cs.Logger.Debug("before closure day, skipping", "day", now.Day(), "day_of_month", cs.DayOfMonth)
		return false
	}

	month := generic.DateOf(now).YearMonth().Previous()
	results, err := cs.Engine.CloseAll(ctx, month)

	closed, skipped, failed := 0, 0, 0
	for _, r := range results {
		switch {
		case r.Err != nil:
			failed++
		case r.AlreadyClosed:
			skipped++
		default:
			closed++
		}
	}
	if err != nil {
		cs.Logger.Error("scheduled closure finished with errors", "month", month.String(),
			"closed", closed, "skipped", skipped, "failed", failed, "error", err)
	} else if closed > 0 {
		cs.Logger.Info("scheduled closure completed", "month", month.String(), "closed", closed, "skipped", skipped)
	}

	cs.statusMu.Lock()
	cs.lastRunAt = now
	cs.lastMonth = month
	cs.lastRun = results
	cs.lastErr = err
	cs.statusMu.Unlock()
	return true
}

// NextRunTime returns when the next scheduled check will occur.
func (cs *ClosureScheduler) NextRunTime() time.Time {
	cs.statusMu.Lock()
	defer cs.statusMu.Unlock()
	if cs.lastRunAt.IsZero() {
		return cs.Now().UTC().Add(cs.Interval)
	}
	return cs.lastRunAt.Add(cs.Interval)
}

// Status reports the configuration and the outcome of the last run.
func (cs *ClosureScheduler) Status() SchedulerStatusDTO {
	next := cs.NextRunTime()

	cs.statusMu.Lock()
	defer cs.statusMu.Unlock()

	dto := SchedulerStatusDTO{
		Enabled:    cs.Enabled,
		Interval:   cs.Interval.String(),
		DayOfMonth: cs.DayOfMonth,
		LastRun:    make([]ClosureResultDTO, len(cs.lastRun)),
	}
	for i, r := range cs.lastRun {
		dto.LastRun[i] = toClosureResultDTO(r)
	}
	if !cs.lastRunAt.IsZero() {
		dto.LastRunAt = cs.lastRunAt.Format(time.RFC3339)
		dto.LastMonth = cs.lastMonth.String()
	}
	if cs.lastErr != nil {
		dto.LastError = cs.lastErr.Error()
	}
	if cs.Enabled {
		dto.NextRunAt = next.Format(time.RFC3339)
	}
	return dto
}
