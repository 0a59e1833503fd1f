/*
scheduler.go - Automated year-end carry-over

PURPOSE:
  Periodically moves unused days of last year into this year's balances
  for the configured leave types. The ledger records one carry-over per
  (employee, leave type, year), so every tick after the first one of a
  year is a no-op.

DESIGN:
  - Background goroutine with a configurable check interval
  - Runs once immediately on Start
  - Employees without a balance for last year are skipped
  - Already-processed (employee, leave type, year) triples are skipped

USAGE:
  scheduler := NewCarryOverScheduler(directory, catalog, ledger, logger, opts)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: CarryOver endpoint (manual run for any year)
  - timeoff/ledger.go: Ledger.CarryOver
*/
package api

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/timeoff"
)

// CarryOverResult is the outcome for one (employee, leave type).
type CarryOverResult struct {
	EmployeeID  timeoff.EmployeeID
	LeaveTypeID string
	Days        decimal.Decimal
	Skipped     string
}

const (
	skippedNoBalance = "no balance"
	skippedDone      = "already carried over"
)

// runCarryOver applies Ledger.CarryOver for every active employee and each
// leave type. Per-pair skips are reported in the results; any other error
// stops the run.
func runCarryOver(ctx context.Context, directory *timeoff.Directory, ledger *timeoff.Ledger, fromYear int, leaveTypeIDs []string, maxDays decimal.Decimal) ([]CarryOverResult, error) {
	employees, err := directory.List(ctx, true)
	if err != nil {
		return nil, err
	}

	var results []CarryOverResult
	for _, e := range employees {
		for _, lt := range leaveTypeIDs {
			res := CarryOverResult{EmployeeID: e.ID, LeaveTypeID: lt}
			days, err := ledger.CarryOver(ctx, e.ID, lt, fromYear, maxDays)
			switch {
			case err == nil:
				res.Days = days
			case errors.Is(err, generic.ErrDuplicate):
				res.Skipped = skippedDone
			case generic.IsNotFound(err):
				res.Skipped = skippedNoBalance
			default:
				return results, err
			}
			results = append(results, res)
		}
	}
	return results, nil
}

// CarryOverOptions configures a CarryOverScheduler.
type CarryOverOptions struct {
	LeaveTypes    []string // leave type names
	MaxDays       decimal.Decimal
	CheckInterval time.Duration
	Enabled       bool
	Clock         generic.Clock
	Location      *time.Location
}

// CarryOverScheduler handles automated year-end carry-over.
type CarryOverScheduler struct {
	directory *timeoff.Directory
	catalog   *timeoff.Catalog
	ledger    *timeoff.Ledger
	logger    *zap.Logger
	opts      CarryOverOptions

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex
}

func NewCarryOverScheduler(directory *timeoff.Directory, catalog *timeoff.Catalog, ledger *timeoff.Ledger, logger *zap.Logger, opts CarryOverOptions) *CarryOverScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.CheckInterval <= 0 {
		opts.CheckInterval = time.Hour
	}
	if opts.Clock == nil {
		opts.Clock = generic.SystemClock{}
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &CarryOverScheduler{
		directory: directory,
		catalog:   catalog,
		ledger:    ledger,
		logger:    logger.Named("scheduler"),
		opts:      opts,
	}
}

// Start begins the scheduler.
func (s *CarryOverScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.opts.Enabled {
		s.logger.Info("carry-over scheduler disabled")
		return
	}
	if s.ticker != nil {
		return
	}

	s.ticker = time.NewTicker(s.opts.CheckInterval)
	s.stop = make(chan bool)
	s.wg.Add(1)
	go s.run(s.ticker, s.stop)

	s.logger.Info("carry-over scheduler started",
		zap.Duration("interval", s.opts.CheckInterval),
		zap.Strings("leave_types", s.opts.LeaveTypes))
}

// Stop stops the scheduler and waits for a run in progress.
func (s *CarryOverScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		s.ticker.Stop()
		close(s.stop)
		s.wg.Wait()
		s.ticker = nil
		s.logger.Info("carry-over scheduler stopped")
	}
}

func (s *CarryOverScheduler) run(ticker *time.Ticker, stop <-chan bool) {
	defer s.wg.Done()

	s.tick()
	for {
		select {
		case <-ticker.C:
			s.tick()
		case <-stop:
			return
		}
	}
}

func (s *CarryOverScheduler) tick() {
	if _, err := s.RunNow(context.Background()); err != nil {
		s.logger.Error("carry-over run failed", zap.Error(err))
	}
}

// RunNow carries last year's unused days into the current year.
func (s *CarryOverScheduler) RunNow(ctx context.Context) ([]CarryOverResult, error) {
	fromYear := generic.Today(s.opts.Clock, s.opts.Location).Year() - 1

	ids := make([]string, 0, len(s.opts.LeaveTypes))
	for _, name := range s.opts.LeaveTypes {
		lt, err := s.catalog.GetByName(ctx, name)
		if generic.IsNotFound(err) {
			s.logger.Warn("carry-over leave type not in catalog", zap.String("name", name))
			continue
		}
		if err != nil {
			return nil, err
		}
		ids = append(ids, lt.ID)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	results, err := runCarryOver(ctx, s.directory, s.ledger, fromYear, ids, s.opts.MaxDays)
	moved := 0
	for _, r := range results {
		if r.Skipped == "" {
			moved++
		}
	}
	s.logger.Info("carry-over run finished",
		zap.Int("from_year", fromYear),
		zap.Int("processed", moved),
		zap.Int("checked", len(results)))
	return results, err
}
