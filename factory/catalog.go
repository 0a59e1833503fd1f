/*
Package factory builds leave-engine data from definitions: the default
leave-type catalog and YAML seed files for a fresh installation.

DEFAULT CATALOG:
  Name          Reason  Documentation
  PTO           yes     no
  PPTO          no      no
  Paternal      no      yes
  Maternal      no      yes
  Bereavement   yes     yes
  Sick          no      yes

  Every type requires approval and is paid at 100%. The names match
  timeoff.AllocationTable so lazily created balances get a real
  allocation.

USAGE:
  seed, err := factory.LoadSeed("seed.yaml")
  report, err := factory.NewSeeder(catalog, directory, ledger, logger).Apply(ctx, seed, 2024)
*/
package factory

import (
	"github.com/shopspring/decimal"

	"github.com/warp/leave-engine/timeoff"
)

// DefaultLeaveTypes returns the standard catalog. IDs are left empty; the
// catalog assigns them on save.
func DefaultLeaveTypes() []timeoff.LeaveType {
	full := decimal.NewFromInt(100)
	lt := func(name string, reason, docs bool) timeoff.LeaveType {
		return timeoff.LeaveType{
			Name:                  name,
			RequiresApproval:      true,
			RequiresReason:        reason,
			RequiresDocumentation: docs,
			IsActive:              true,
			PayPercentage:         full,
		}
	}
	return []timeoff.LeaveType{
		lt("PTO", true, false),
		lt("PPTO", false, false),
		lt("Paternal", false, true),
		lt("Maternal", false, true),
		lt("Bereavement", true, true),
		lt("Sick", false, true),
	}
}
