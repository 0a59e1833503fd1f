/*
allocation.go - Default annual allocation per leave type

PURPOSE:
  When a balance row is created lazily its allocated_days come from this
  table. The table is data, not branching logic, so it can be read and
  tested on its own.

TABLE:
  Leave type    Senior  Regular
  PTO           30      21
  PPTO          21      21
  Paternal      21      21
  Maternal      90      90
  Bereavement   3       3
  Sick          19      19
  (unknown)     0       0

  A zero allocation for an unknown name means the catalog and this table
  disagree. It is not a real entitlement.
*/
package timeoff

import (
	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
)

// Allocation holds the yearly days for senior and regular employees.
type Allocation struct {
	Senior  decimal.Decimal
	Regular decimal.Decimal
}

// For returns the allocation that applies to the given seniority.
func (a Allocation) For(senior bool) decimal.Decimal {
	if senior {
		return a.Senior
	}
	return a.Regular
}

func flat(days int64) Allocation {
	return Allocation{Senior: generic.Days(days), Regular: generic.Days(days)}
}

// AllocationTable maps leave-type names to their default allocation.
var AllocationTable = map[string]Allocation{
	"PTO":         {Senior: generic.Days(30), Regular: generic.Days(21)},
	"PPTO":        flat(21),
	"Paternal":    flat(21),
	"Maternal":    flat(90),
	"Bereavement": flat(3),
	"Sick":        flat(19),
}

// DefaultAllocation returns the yearly allocation for leaveTypeName, or zero
// when the name is not in the table.
func DefaultAllocation(leaveTypeName string, senior bool) decimal.Decimal {
	a, ok := AllocationTable[leaveTypeName]
	if !ok {
		return decimal.Zero
	}
	return a.For(senior)
}
