/*
scheduler.go - Automated year rollover scheduler

PURPOSE:
  Periodically makes sure every active employee has a balance bucket for
  every leave type in the current year, opened at the leave type's annual
  allocation. Buckets already open are left alone, so a run is safe to
  repeat and a manual allocation is never overwritten.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Runs once immediately on Start
  - Reads each employee's buckets first and only allocates the missing ones
  - Opens buckets through leave.Service.Allocate as the system actor, so
    each one is journaled and audited like a manual allocation
  - A bucket opened concurrently (Conflict) counts as skipped

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewRolloverScheduler(svc, store)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: Allocate endpoint (manual allocation)
  - leave/admin.go: Service.Allocate
*/
package api

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
	"go.uber.org/zap"
)

// SystemActorID is recorded as the actor on scheduled allocations.
const SystemActorID generic.EntityID = "system"

// EmployeeLister lists the employees the scheduler allocates for.
type EmployeeLister interface {
	ListEmployees(ctx context.Context, activeOnly bool) ([]leave.Employee, error)
}

// RolloverResult counts what one run did.
type RolloverResult struct {
	Year    int
	Opened  int
	Skipped int
	Failed  int
}

// RolloverScheduler opens missing current-year balances.
type RolloverScheduler struct {
	Service       *leave.Service
	Employees     EmployeeLister
	CheckInterval time.Duration
	Enabled       bool

	now    func() time.Time
	logger *zap.Logger
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewRolloverScheduler creates a new scheduler.
func NewRolloverScheduler(svc *leave.Service, employees EmployeeLister, logger ...*zap.Logger) *RolloverScheduler {
	l := zap.L()
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0]
	}
	return &RolloverScheduler{
		Service:       svc,
		Employees:     employees,
		CheckInterval: time.Hour,
		Enabled:       true,
		now:           time.Now,
		logger:        l.Named("scheduler"),
	}
}

// Start begins the scheduler.
func (rs *RolloverScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled {
		rs.logger.Info("disabled, not starting")
		return
	}
	if rs.ticker != nil {
		return
	}

	rs.ticker = time.NewTicker(rs.CheckInterval)
	rs.stop = make(chan struct{})
	rs.wg.Add(1)
	go rs.run()

	rs.logger.Info("started", zap.Duration("interval", rs.CheckInterval))
}

// Stop stops the scheduler and waits for an in-flight run.
func (rs *RolloverScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ticker == nil {
		return
	}
	rs.ticker.Stop()
	close(rs.stop)
	rs.wg.Wait()
	rs.ticker = nil
	rs.logger.Info("stopped")
}

func (rs *RolloverScheduler) run() {
	defer rs.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-rs.stop
		cancel()
	}()

	rs.RunOnce(ctx)
	for {
		select {
		case <-rs.ticker.C:
			rs.RunOnce(ctx)
		case <-rs.stop:
			return
		}
	}
}

// RunOnce opens every missing bucket for the current year.
func (rs *RolloverScheduler) RunOnce(ctx context.Context) RolloverResult {
	result := RolloverResult{Year: rs.now().Year()}

	employees, err := rs.Employees.ListEmployees(ctx, true)
	if err != nil {
		rs.logger.Error("listing employees failed", zap.Error(err))
		return result
	}
	types, err := rs.Service.ListLeaveTypes(ctx)
	if err != nil {
		rs.logger.Error("listing leave types failed", zap.Error(err))
		return result
	}

	system := leave.NewActor(SystemActorID, leave.RoleAdmin, "", nil)
	for _, emp := range employees {
		existing, err := rs.Service.Balances(ctx, system, emp.ID, result.Year)
		if err != nil {
			result.Failed += len(types)
			rs.logger.Warn("listing balances failed",
				zap.String("employee_id", string(emp.ID)),
				zap.Error(err))
			continue
		}
		open := make(map[generic.ResourceID]bool, len(existing))
		for _, b := range existing {
			open[b.Key.ResourceID] = true
		}

		for _, lt := range types {
			if ctx.Err() != nil {
				return result
			}
			if open[lt.ID] {
				result.Skipped++
				continue
			}
			_, err := rs.Service.Allocate(ctx, system, leave.AllocateInput{
				EmployeeID:  emp.ID,
				LeaveTypeID: lt.ID,
				Year:        result.Year,
			})
			switch {
			case err == nil:
				result.Opened++
			case errors.Is(err, generic.ErrConflict):
				result.Skipped++
			default:
				result.Failed++
				rs.logger.Warn("rollover allocation failed",
					zap.String("employee_id", string(emp.ID)),
					zap.String("leave_type_id", string(lt.ID)),
					zap.Error(err))
			}
		}
	}

	if result.Opened > 0 || result.Failed > 0 {
		rs.logger.Info("rollover run completed",
			zap.Int("year", result.Year),
			zap.Int("opened", result.Opened),
			zap.Int("skipped", result.Skipped),
			zap.Int("failed", result.Failed))
	}
	return result
}
