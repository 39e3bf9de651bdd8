package leave

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/warp/leave-engine/generic"
	"go.uber.org/zap"
)

// =============================================================================
// LEAVE TYPES
// =============================================================================

type LeaveTypeInput struct {
	Name             string
	Description      string
	RequiresApproval bool
	IsPaid           bool
	AnnualAllocation generic.Amount
}

// LeaveTypeUpdate carries the fields to change; nil leaves a field as is.
type LeaveTypeUpdate struct {
	Name             *string
	Description      *string
	RequiresApproval *bool
	IsPaid           *bool
	AnnualAllocation *generic.Amount
}

func (s *Service) ListLeaveTypes(ctx context.Context) ([]LeaveType, error) {
	types, err := s.store.ListLeaveTypes(ctx)
	if err != nil {
		return nil, s.fail("list leave types", err)
	}
	return types, nil
}

func (s *Service) GetLeaveType(ctx context.Context, id generic.ResourceID) (*LeaveType, error) {
	lt, err := s.store.GetLeaveType(ctx, id)
	if err != nil {
		return nil, s.fail("get leave type", err)
	}
	if lt == nil {
		return nil, s.fail("get leave type", &generic.NotFoundError{Kind: "leave type", ID: string(id)})
	}
	return lt, nil
}

// CreateLeaveType adds a leave type. Names are unique, ignoring case.
func (s *Service) CreateLeaveType(ctx context.Context, actor Actor, in LeaveTypeInput) (*LeaveType, error) {
	if err := Authorize(actor, OpAdminister, ""); err != nil {
		return nil, s.fail("create leave type", err)
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, s.fail("create leave type", generic.NewValidationError("name", "name is required"))
	}
	if in.AnnualAllocation.IsNegative() {
		return nil, s.fail("create leave type", generic.NewValidationError("default_days", "must not be negative"))
	}

	now := s.now()
	lt := LeaveType{
		ID:               generic.ResourceID(uuid.NewString()),
		Name:             name,
		Description:      in.Description,
		RequiresApproval: in.RequiresApproval,
		IsPaid:           in.IsPaid,
		AnnualAllocation: in.AnnualAllocation,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	err := s.store.WithTx(ctx, func(tx Store) error {
		if err := ensureNameFree(ctx, tx, lt); err != nil {
			return err
		}
		if err := tx.SaveLeaveType(ctx, lt); err != nil {
			return err
		}
		return tx.Record(ctx, s.leaveTypeAudit(actor, lt, "created"))
	})
	if err != nil {
		return nil, s.fail("create leave type", err)
	}
	s.logger.Info("leave type created", zap.String("leave_type_id", string(lt.ID)), zap.String("name", lt.Name))
	return &lt, nil
}

func (s *Service) UpdateLeaveType(ctx context.Context, actor Actor, id generic.ResourceID, in LeaveTypeUpdate) (*LeaveType, error) {
	if err := Authorize(actor, OpAdminister, ""); err != nil {
		return nil, s.fail("update leave type", err)
	}
	if in.Name != nil && strings.TrimSpace(*in.Name) == "" {
		return nil, s.fail("update leave type", generic.NewValidationError("name", "name must not be empty"))
	}
	if in.AnnualAllocation != nil && in.AnnualAllocation.IsNegative() {
		return nil, s.fail("update leave type", generic.NewValidationError("default_days", "must not be negative"))
	}

	var result LeaveType
	err := s.store.WithTx(ctx, func(tx Store) error {
		lt, err := tx.GetLeaveType(ctx, id)
		if err != nil {
			return err
		}
		if lt == nil {
			return &generic.NotFoundError{Kind: "leave type", ID: string(id)}
		}
		if in.Name != nil {
			lt.Name = strings.TrimSpace(*in.Name)
			if err := ensureNameFree(ctx, tx, *lt); err != nil {
				return err
			}
		}
		if in.Description != nil {
			lt.Description = *in.Description
		}
		if in.RequiresApproval != nil {
			lt.RequiresApproval = *in.RequiresApproval
		}
		if in.IsPaid != nil {
			lt.IsPaid = *in.IsPaid
		}
		if in.AnnualAllocation != nil {
			lt.AnnualAllocation = *in.AnnualAllocation
		}
		lt.UpdatedAt = s.now()
		if err := tx.SaveLeaveType(ctx, *lt); err != nil {
			return err
		}
		result = *lt
		return tx.Record(ctx, s.leaveTypeAudit(actor, *lt, "updated"))
	})
	if err != nil {
		return nil, s.fail("update leave type", err)
	}
	s.logger.Info("leave type updated", zap.String("leave_type_id", string(id)))
	return &result, nil
}

func ensureNameFree(ctx context.Context, store Store, lt LeaveType) error {
	existing, err := store.GetLeaveTypeByName(ctx, lt.Name)
	if err != nil {
		return err
	}
	if existing != nil && existing.ID != lt.ID {
		return fmt.Errorf("%w: leave type %q already exists", generic.ErrConflict, lt.Name)
	}
	return nil
}

func (s *Service) leaveTypeAudit(actor Actor, lt LeaveType, change string) generic.AuditEntry {
	return generic.AuditEntry{
		ID:         uuid.NewString(),
		Timestamp:  s.now(),
		ActorID:    actor.ID,
		Action:     generic.AuditLeaveTypeChanged,
		ResourceID: lt.ID,
		Subject:    string(lt.ID),
		Payload: map[string]any{
			"change":            change,
			"name":              lt.Name,
			"annual_allocation": lt.AnnualAllocation.String(),
		},
	}
}

// =============================================================================
// BALANCES
// =============================================================================

// Balances returns an employee's buckets for a year (0 = current year)
// under the view policy.
func (s *Service) Balances(ctx context.Context, actor Actor, employeeID generic.EntityID, year int) ([]generic.Balance, error) {
	if err := Authorize(actor, OpView, employeeID); err != nil {
		return nil, s.fail("balances", err)
	}
	if year == 0 {
		year = s.now().Year()
	}
	balances, err := NewLedger(s.store, s.now).ListForEmployee(ctx, employeeID, year)
	if err != nil {
		return nil, s.fail("balances", err)
	}
	return balances, nil
}

type AllocateInput struct {
	EmployeeID  generic.EntityID
	LeaveTypeID generic.ResourceID
	Year        int             // 0 = current year
	Allocated   *generic.Amount // nil = the leave type's annual allocation
}

// Allocate opens a balance bucket for one employee, leave type and year.
func (s *Service) Allocate(ctx context.Context, actor Actor, in AllocateInput) (*generic.Balance, error) {
	if err := Authorize(actor, OpAdminister, in.EmployeeID); err != nil {
		return nil, s.fail("allocate", err)
	}
	if in.Year == 0 {
		in.Year = s.now().Year()
	}
	if s.directory != nil {
		emp, err := s.directory.Employee(ctx, in.EmployeeID)
		if err != nil {
			return nil, s.fail("allocate", err)
		}
		if emp == nil {
			return nil, s.fail("allocate", &generic.NotFoundError{Kind: "employee", ID: string(in.EmployeeID)})
		}
	}

	key := generic.BalanceKey{EntityID: in.EmployeeID, ResourceID: in.LeaveTypeID, Year: in.Year}
	var result generic.Balance
	err := s.store.WithTx(ctx, func(tx Store) error {
		lt, err := tx.GetLeaveType(ctx, in.LeaveTypeID)
		if err != nil {
			return err
		}
		if lt == nil {
			return &generic.NotFoundError{Kind: "leave type", ID: string(in.LeaveTypeID)}
		}
		allocated := lt.AnnualAllocation
		if in.Allocated != nil {
			allocated = *in.Allocated
		}
		b, err := NewLedger(tx, s.now).Open(ctx, key, allocated, Posting{
			Actor:  actor.ID,
			Reason: fmt.Sprintf("%d allocation", in.Year),
		})
		if err != nil {
			return err
		}
		result = b
		return tx.Record(ctx, generic.AuditEntry{
			ID:         uuid.NewString(),
			Timestamp:  s.now(),
			ActorID:    actor.ID,
			Action:     generic.AuditBalanceAllocated,
			EntityID:   key.EntityID,
			ResourceID: key.ResourceID,
			Subject:    key.String(),
			Payload:    map[string]any{"allocated": allocated.String(), "year": in.Year},
		})
	})
	if err != nil {
		return nil, s.fail("allocate", err)
	}
	s.logger.Info("balance allocated",
		zap.Stringer("key", key),
		zap.Stringer("allocated", result.Allocated))
	return &result, nil
}
