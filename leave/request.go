/*
request.go - Application lifecycle with transactional guarantees

PURPOSE:
  The Service drives a leave application through its states and keeps the
  balance ledger consistent with them:

    pending --approve--> approved --cancel--> cancelled
       |                                         ^
       +--reject--> rejected                     |
       +--cancel---------------------------------+

  rejected and cancelled are terminal.

TRANSACTIONS:
  Every operation runs inside TxStore.WithTx. Approval re-checks and debits
  the balance in the same transaction as the status write; cancelling an
  approved application credits it back the same way. If any step fails,
  the application keeps its prior status and the ledger is untouched.

ORDER OF CHECKS:
  input validation -> lookup (NotFound) -> authorization (Forbidden)
  -> state (InvalidStateTransition) -> ledger

NOTIFICATIONS:
  Sent after commit through the Notifier. A failing or slow notifier is
  logged and never changes the outcome of the operation.

SEE ALSO:
  - ledger.go: Balance mutations
  - policies.go: Authorization rules
  - store.go: Store, TxStore, Directory, Notifier
*/
package leave

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/warp/leave-engine/generic"
	"go.uber.org/zap"
)

// =============================================================================
// SERVICE
// =============================================================================

type Options struct {
	// RecheckBalanceOnEdit runs a ReserveCheck when a pending application is edited.
	RecheckBalanceOnEdit bool
	// NotifyManagerOnApprovedCancel also tells the manager when an approved
	// application is cancelled. Pending cancellations always notify.
	NotifyManagerOnApprovedCancel bool
	// NotifyTimeout bounds a single notifier call. Zero means 5s.
	NotifyTimeout time.Duration
}

type Service struct {
	store     TxStore
	directory Directory // optional, names in notifications
	notifier  Notifier  // optional
	opts      Options
	logger    *zap.Logger
	now       func() time.Time
}

func NewService(store TxStore, directory Directory, notifier Notifier, opts Options, logger ...*zap.Logger) *Service {
	l := zap.L()
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0]
	}
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = 5 * time.Second
	}
	return &Service{
		store:     store,
		directory: directory,
		notifier:  notifier,
		opts:      opts,
		logger:    l.Named("leave.service"),
		now:       time.Now,
	}
}

// SetClock replaces the wall clock, for tests and replays.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// =============================================================================
// INPUTS
// =============================================================================

type SubmitInput struct {
	LeaveTypeID generic.ResourceID
	StartDate   generic.TimePoint
	EndDate     generic.TimePoint
	Reason      string
	Attachments string
}

type DecideInput struct {
	Decision        Status // approved or rejected
	RejectionReason string
}

// EditInput carries the fields to change; nil leaves a field as is.
type EditInput struct {
	StartDate   *generic.TimePoint
	EndDate     *generic.TimePoint
	Reason      *string
	Attachments *string
}

type ListFilter struct {
	Status Status // empty means any
	Page   Page
}

// =============================================================================
// SUBMIT
// =============================================================================

// Submit creates a pending application for the actor.
// The balance check does not reserve days; approval checks again.
func (s *Service) Submit(ctx context.Context, actor Actor, in SubmitInput) (*Application, error) {
	s.logger.Debug("submit",
		zap.String("employee_id", string(actor.ID)),
		zap.String("leave_type_id", string(in.LeaveTypeID)),
		zap.Stringer("start", in.StartDate),
		zap.Stringer("end", in.EndDate))

	if err := Authorize(actor, OpSubmit, actor.ID); err != nil {
		return nil, s.fail("submit", err)
	}
	if err := validateDates(in.StartDate, in.EndDate); err != nil {
		return nil, s.fail("submit", err)
	}
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		return nil, s.fail("submit", generic.NewValidationError("reason", "reason is required"))
	}

	now := s.now()
	app := Application{
		ID:          ApplicationID(uuid.NewString()),
		EmployeeID:  actor.ID,
		LeaveTypeID: in.LeaveTypeID,
		StartDate:   in.StartDate,
		EndDate:     in.EndDate,
		TotalDays:   generic.DaysInclusive(in.StartDate, in.EndDate),
		Reason:      reason,
		Attachments: in.Attachments,
		Status:      StatusPending,
		AppliedOn:   now,
		UpdatedAt:   now,
	}

	var leaveType LeaveType
	err := s.store.WithTx(ctx, func(tx Store) error {
		lt, err := tx.GetLeaveType(ctx, in.LeaveTypeID)
		if err != nil {
			return err
		}
		if lt == nil {
			return &generic.NotFoundError{Kind: "leave type", ID: string(in.LeaveTypeID)}
		}
		leaveType = *lt

		if err := NewLedger(tx, s.now).ReserveCheck(ctx, app.BalanceKey(), app.TotalDays); err != nil {
			return err
		}
		if err := tx.CreateApplication(ctx, app); err != nil {
			return err
		}
		return tx.Record(ctx, s.audit(actor, generic.AuditRequestCreated, app, map[string]any{
			"total_days": app.TotalDays.String(),
			"start_date": app.StartDate.String(),
			"end_date":   app.EndDate.String(),
		}))
	})
	if err != nil {
		return nil, s.fail("submit", err)
	}

	s.logger.Info("application submitted",
		zap.String("application_id", string(app.ID)),
		zap.String("employee_id", string(app.EmployeeID)),
		zap.Stringer("total_days", app.TotalDays))

	s.notify(ctx, Notification{
		EmployeeID: actor.ManagerID,
		Title:      "New Leave Application",
		Message: fmt.Sprintf("%s has applied for %s from %s to %s",
			s.displayName(ctx, actor.ID), leaveType.Name, app.StartDate, app.EndDate),
		Link: applicationLink(app.ID),
	})
	return &app, nil
}

// =============================================================================
// DECIDE - Approve or reject, the critical transactional operation
// =============================================================================

// Decide approves or rejects a pending application.
// On approve the balance is re-checked and debited in the same transaction
// as the status write. If ANY step fails, ALL changes are rolled back.
func (s *Service) Decide(ctx context.Context, actor Actor, id ApplicationID, in DecideInput) (*Application, error) {
	s.logger.Debug("decide",
		zap.String("application_id", string(id)),
		zap.String("approver_id", string(actor.ID)),
		zap.String("decision", string(in.Decision)))

	if in.Decision != StatusApproved && in.Decision != StatusRejected {
		return nil, s.fail("decide", generic.NewValidationError("status", "decision must be approved or rejected"))
	}
	rejection := strings.TrimSpace(in.RejectionReason)

	var result Application
	var leaveTypeName string
	err := s.store.WithTx(ctx, func(tx Store) error {
		app, err := loadApplication(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := Authorize(actor, OpDecide, app.EmployeeID); err != nil {
			return err
		}
		if !app.Status.CanTransition(in.Decision) {
			return &generic.InvalidTransitionError{From: string(app.Status), To: string(in.Decision)}
		}
		if in.Decision == StatusRejected && rejection == "" {
			return generic.NewValidationError("rejection_reason", "rejection reason is required")
		}
		leaveTypeName = s.leaveTypeName(ctx, tx, app.LeaveTypeID)

		now := s.now()
		action := generic.AuditRequestRejected
		if in.Decision == StatusApproved {
			action = generic.AuditRequestApproved
			ledger := NewLedger(tx, s.now)
			key := app.BalanceKey()
			if err := ledger.ReserveCheck(ctx, key, app.TotalDays); err != nil {
				return err
			}
			if _, err := ledger.Debit(ctx, key, app.TotalDays, Posting{
				Reference:      string(app.ID),
				Actor:          actor.ID,
				Reason:         "application approved",
				IdempotencyKey: ApproveKey(app.ID),
			}); err != nil {
				return err
			}
		} else {
			app.RejectionReason = rejection
		}

		app.Status = in.Decision
		app.ApproverID = actor.ID
		app.DecidedOn = &now
		app.UpdatedAt = now
		if err := tx.UpdateApplication(ctx, *app); err != nil {
			return err
		}
		result = *app
		return tx.Record(ctx, s.audit(actor, action, *app, map[string]any{
			"total_days":       app.TotalDays.String(),
			"rejection_reason": app.RejectionReason,
		}))
	})
	if err != nil {
		return nil, s.fail("decide", err)
	}

	s.logger.Info("application decided",
		zap.String("application_id", string(result.ID)),
		zap.String("status", string(result.Status)),
		zap.String("approver_id", string(actor.ID)))

	verb := "approved"
	title := "Leave Application Approved"
	if result.Status == StatusRejected {
		verb = "rejected"
		title = "Leave Application Rejected"
	}
	s.notify(ctx, Notification{
		EmployeeID: result.EmployeeID,
		Title:      title,
		Message: fmt.Sprintf("Your %s application from %s to %s has been %s by %s",
			leaveTypeName, result.StartDate, result.EndDate, verb, s.displayName(ctx, actor.ID)),
		Link: applicationLink(result.ID),
	})
	return &result, nil
}

// =============================================================================
// CANCEL - Reverses an approval through a credit
// =============================================================================

// Cancel withdraws a pending or approved application. Only the owner may cancel.
func (s *Service) Cancel(ctx context.Context, actor Actor, id ApplicationID) (*Application, error) {
	s.logger.Debug("cancel",
		zap.String("application_id", string(id)),
		zap.String("actor_id", string(actor.ID)))

	var result Application
	var prior Status
	var leaveTypeName string
	err := s.store.WithTx(ctx, func(tx Store) error {
		app, err := loadApplication(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := Authorize(actor, OpCancel, app.EmployeeID); err != nil {
			return err
		}
		if !app.Status.CanTransition(StatusCancelled) {
			return &generic.InvalidTransitionError{From: string(app.Status), To: string(StatusCancelled)}
		}
		leaveTypeName = s.leaveTypeName(ctx, tx, app.LeaveTypeID)

		prior = app.Status
		if prior == StatusApproved {
			if _, err := NewLedger(tx, s.now).Credit(ctx, app.BalanceKey(), app.TotalDays, Posting{
				Reference:      string(app.ID),
				Actor:          actor.ID,
				Reason:         "approved application cancelled",
				IdempotencyKey: CancelKey(app.ID),
			}); err != nil {
				return err
			}
		}

		app.Status = StatusCancelled
		app.UpdatedAt = s.now()
		if err := tx.UpdateApplication(ctx, *app); err != nil {
			return err
		}
		result = *app
		return tx.Record(ctx, s.audit(actor, generic.AuditRequestCanceled, *app, map[string]any{
			"prior_status": string(prior),
			"credited":     prior == StatusApproved,
		}))
	})
	if err != nil {
		return nil, s.fail("cancel", err)
	}

	s.logger.Info("application cancelled",
		zap.String("application_id", string(result.ID)),
		zap.String("prior_status", string(prior)))

	if prior == StatusPending || s.opts.NotifyManagerOnApprovedCancel {
		s.notify(ctx, Notification{
			EmployeeID: actor.ManagerID,
			Title:      "Leave Application Cancelled",
			Message: fmt.Sprintf("%s has cancelled their %s application from %s to %s",
				s.displayName(ctx, actor.ID), leaveTypeName, result.StartDate, result.EndDate),
			Link: applicationLink(result.ID),
		})
	}
	return &result, nil
}

// =============================================================================
// EDIT
// =============================================================================

// Edit changes dates, reason or attachments of a pending application.
func (s *Service) Edit(ctx context.Context, actor Actor, id ApplicationID, in EditInput) (*Application, error) {
	s.logger.Debug("edit",
		zap.String("application_id", string(id)),
		zap.String("actor_id", string(actor.ID)))

	var reason string
	if in.Reason != nil {
		reason = strings.TrimSpace(*in.Reason)
		if reason == "" {
			return nil, s.fail("edit", generic.NewValidationError("reason", "reason must not be empty"))
		}
	}

	var result Application
	err := s.store.WithTx(ctx, func(tx Store) error {
		app, err := loadApplication(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := Authorize(actor, OpEdit, app.EmployeeID); err != nil {
			return err
		}
		if app.Status != StatusPending {
			return &generic.InvalidTransitionError{From: string(app.Status), To: "edited"}
		}

		start, end := app.StartDate, app.EndDate
		if in.StartDate != nil {
			start = *in.StartDate
		}
		if in.EndDate != nil {
			end = *in.EndDate
		}
		if err := validateDates(start, end); err != nil {
			return err
		}
		datesChanged := !start.Equal(app.StartDate) || !end.Equal(app.EndDate)
		app.StartDate, app.EndDate = start, end
		if datesChanged {
			app.TotalDays = generic.DaysInclusive(start, end)
		}
		if in.Reason != nil {
			app.Reason = reason
		}
		if in.Attachments != nil {
			app.Attachments = *in.Attachments
		}

		if s.opts.RecheckBalanceOnEdit {
			if err := NewLedger(tx, s.now).ReserveCheck(ctx, app.BalanceKey(), app.TotalDays); err != nil {
				return err
			}
		}

		app.UpdatedAt = s.now()
		if err := tx.UpdateApplication(ctx, *app); err != nil {
			return err
		}
		result = *app
		return tx.Record(ctx, s.audit(actor, generic.AuditRequestEdited, *app, map[string]any{
			"dates_changed": datesChanged,
			"total_days":    app.TotalDays.String(),
		}))
	})
	if err != nil {
		return nil, s.fail("edit", err)
	}

	s.logger.Info("application edited", zap.String("application_id", string(result.ID)))
	return &result, nil
}

// =============================================================================
// QUERIES
// =============================================================================

// Get returns one application if the actor may view it.
func (s *Service) Get(ctx context.Context, actor Actor, id ApplicationID) (*Application, error) {
	app, err := loadApplication(ctx, s.store, id)
	if err != nil {
		return nil, s.fail("get", err)
	}
	if err := Authorize(actor, OpView, app.EmployeeID); err != nil {
		return nil, s.fail("get", err)
	}
	return app, nil
}

// ListForEmployee returns the actor's own applications, newest first.
func (s *Service) ListForEmployee(ctx context.Context, actor Actor, f ListFilter) ([]Application, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, s.fail("list", generic.NewValidationError("status", fmt.Sprintf("unknown status %q", f.Status)))
	}
	apps, err := s.store.ListApplications(ctx, ApplicationQuery{
		EmployeeIDs: []generic.EntityID{actor.ID},
		Status:      f.Status,
		Page:        f.Page.Normalize(),
	})
	if err != nil {
		return nil, s.fail("list", err)
	}
	return apps, nil
}

// ListPendingForApprover returns the pending queue: everything for an
// admin, direct reports for a manager.
func (s *Service) ListPendingForApprover(ctx context.Context, actor Actor, page Page) ([]Application, error) {
	if !CanListPending(actor) {
		return nil, s.fail("list pending", &generic.ForbiddenError{ActorID: actor.ID, Operation: "list pending applications"})
	}
	q := ApplicationQuery{Status: StatusPending, Page: page.Normalize()}
	if !actor.IsAdmin() {
		q.EmployeeIDs = actor.DirectReports()
		if len(q.EmployeeIDs) == 0 {
			return []Application{}, nil
		}
	}
	apps, err := s.store.ListApplications(ctx, q)
	if err != nil {
		return nil, s.fail("list pending", err)
	}
	return apps, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func loadApplication(ctx context.Context, store Store, id ApplicationID) (*Application, error) {
	app, err := store.GetApplication(ctx, id)
	if err != nil {
		return nil, err
	}
	if app == nil {
		return nil, &generic.NotFoundError{Kind: "application", ID: string(id)}
	}
	return app, nil
}

func validateDates(start, end generic.TimePoint) error {
	if start.IsZero() {
		return generic.NewValidationError("start_date", "start date is required")
	}
	if end.IsZero() {
		return generic.NewValidationError("end_date", "end date is required")
	}
	if end.Before(start) {
		return generic.NewValidationError("end_date", "end date must be on or after start date")
	}
	return nil
}

func applicationLink(id ApplicationID) string {
	return "/leaves/applications/" + string(id)
}

func (s *Service) audit(actor Actor, action generic.AuditAction, app Application, payload map[string]any) generic.AuditEntry {
	payload["status"] = string(app.Status)
	return generic.AuditEntry{
		ID:         uuid.NewString(),
		Timestamp:  s.now(),
		ActorID:    actor.ID,
		Action:     action,
		EntityID:   app.EmployeeID,
		ResourceID: app.LeaveTypeID,
		Subject:    string(app.ID),
		Payload:    payload,
	}
}

// fail classifies err, logs it at the matching level and wraps storage
// errors so their text never reaches callers.
func (s *Service) fail(op string, err error) error {
	err = generic.Internal(op, err)
	switch {
	case errors.Is(err, generic.ErrInternal):
		s.logger.Error(op+" failed", zap.Error(err))
	case generic.IsRetryable(err):
		s.logger.Warn(op+" lost a concurrent update", zap.Error(err))
	case errors.Is(err, generic.ErrConflict):
		s.logger.Debug(op+" already done", zap.Error(err))
	case generic.IsClientError(err) || generic.IsNotFound(err):
		s.logger.Warn(op+" rejected", zap.Error(err))
	default:
		s.logger.Error(op+" failed", zap.Error(err))
	}
	return err
}

func (s *Service) leaveTypeName(ctx context.Context, store Store, id generic.ResourceID) string {
	lt, err := store.GetLeaveType(ctx, id)
	if err != nil || lt == nil {
		return string(id)
	}
	return lt.Name
}

func (s *Service) displayName(ctx context.Context, id generic.EntityID) string {
	if s.directory == nil {
		return string(id)
	}
	emp, err := s.directory.Employee(ctx, id)
	if err != nil || emp == nil || emp.FullName == "" {
		return string(id)
	}
	return emp.FullName
}

// notify delivers n after commit. Errors and panics are logged only.
func (s *Service) notify(ctx context.Context, n Notification) {
	if s.notifier == nil || n.EmployeeID == "" {
		return
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Category == "" {
		n.Category = CategoryLeave
	}
	n.CreatedAt = s.now()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.NotifyTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("notifier panicked", zap.Any("panic", r), zap.String("recipient", string(n.EmployeeID)))
		}
	}()
	if err := s.notifier.Notify(ctx, n); err != nil {
		s.logger.Warn("notification failed",
			zap.Error(err),
			zap.String("recipient", string(n.EmployeeID)),
			zap.String("title", n.Title))
	}
}
