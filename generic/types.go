/*
Package generic provides the domain-agnostic core of the leave engine.

PURPOSE:
  This package contains the types and algorithms that do not care what
  kind of leave is being tracked: day amounts, identifiers, the balance
  bucket (allocated / used / remaining), the append-only journal of balance
  mutations, calendar dates and the error taxonomy.

KEY CONCEPTS IN THIS FILE (types.go):
  - Amount: A quantity with a unit (always days in this system)
  - BalanceKey: (employee, leave type, year) - the unit of balance ownership
  - Transaction: An immutable journal entry recording a balance change
  - Entity/Resource IDs: Type-safe identifiers

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal, never float64, for day arithmetic
  2. Type Safety: EntityID and ResourceID cannot be mixed up
  3. Auditability: Every balance change has a reference, a reason and an
     idempotency key in the journal

USAGE:
  key := generic.BalanceKey{EntityID: "emp-1", ResourceID: "annual", Year: 2025}
  tx := generic.Transaction{
      Key:   key,
      Delta: generic.Days(3).Neg(),
      Type:  generic.TxDebit,
  }

SEE ALSO:
  - balance.go: Balance bucket and its invariants
  - ledger.go: Journal over a Store
  - errors.go: Error taxonomy
*/
package generic

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Quantity with unit
// =============================================================================

type Amount struct {
	Value decimal.Decimal
	Unit  Unit
}

type Unit string

const UnitDays Unit = "days"

func NewAmount(value float64, unit Unit) Amount {
	return Amount{Value: decimal.NewFromFloat(value), Unit: unit}
}

func NewAmountFromInt(value int, unit Unit) Amount {
	return Amount{Value: decimal.NewFromInt(int64(value)), Unit: unit}
}

// Days is shorthand for an amount of whole or fractional days.
func Days(value float64) Amount { return NewAmount(value, UnitDays) }

func (a Amount) Zero() Amount              { return Amount{Value: decimal.Zero, Unit: a.Unit} }
func (a Amount) Add(b Amount) Amount       { return Amount{Value: a.Value.Add(b.Value), Unit: a.Unit} }
func (a Amount) Sub(b Amount) Amount       { return Amount{Value: a.Value.Sub(b.Value), Unit: a.Unit} }
func (a Amount) Neg() Amount               { return Amount{Value: a.Value.Neg(), Unit: a.Unit} }
func (a Amount) IsNegative() bool          { return a.Value.IsNegative() }
func (a Amount) IsZero() bool              { return a.Value.IsZero() }
func (a Amount) IsPositive() bool          { return a.Value.IsPositive() }
func (a Amount) GreaterThan(b Amount) bool { return a.Value.GreaterThan(b.Value) }
func (a Amount) LessThan(b Amount) bool    { return a.Value.LessThan(b.Value) }
func (a Amount) Equal(b Amount) bool       { return a.Value.Equal(b.Value) }
func (a Amount) String() string            { return a.Value.String() }

// Float64 is for presentation only; arithmetic stays in decimal.
func (a Amount) Float64() float64 {
	f, _ := a.Value.Float64()
	return f
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

// EntityID identifies the holder of a balance (an employee).
type EntityID string

// ResourceID identifies what is being tracked (a leave type).
type ResourceID string

type TransactionID string

// BalanceKey is the unique key of one balance bucket.
type BalanceKey struct {
	EntityID   EntityID
	ResourceID ResourceID
	Year       int
}

func (k BalanceKey) String() string {
	return fmt.Sprintf("%s/%s/%d", k.EntityID, k.ResourceID, k.Year)
}

// =============================================================================
// TRANSACTION - Journal entry for one balance change
// =============================================================================

type TransactionType string

const (
	TxAllocation TransactionType = "allocation" // Bucket opened with its yearly allocation
	TxDebit      TransactionType = "debit"      // Days consumed by an approved application
	TxCredit     TransactionType = "credit"     // Days restored by cancelling an approved application
	TxAdjustment TransactionType = "adjustment" // Manual admin correction
)

type Transaction struct {
	ID             TransactionID
	Key            BalanceKey
	Delta          Amount
	Type           TransactionType
	ReferenceID    string
	Reason         string
	IdempotencyKey string
	Metadata       map[string]string

	// Audit fields
	CreatedBy string
	CreatedAt time.Time
}
