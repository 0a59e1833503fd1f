package timeoff

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
	"go.uber.org/zap"
)

var hundred = decimal.NewFromInt(100)

// Catalog manages leave types.
type Catalog struct {
	store TxStore
	settings
}

func NewCatalog(store TxStore, opts ...Option) *Catalog {
	return &Catalog{store: store, settings: newSettings(opts)}
}

// Save creates or updates a leave type, matching existing rows by name.
func (c *Catalog) Save(ctx context.Context, lt LeaveType) (*LeaveType, error) {
	lt.Name = strings.TrimSpace(lt.Name)
	if lt.Name == "" {
		return nil, invalid(ReasonMissingField, "leave type name is required")
	}
	if lt.PayPercentage.IsNegative() || lt.PayPercentage.GreaterThan(hundred) {
		return nil, invalid(ReasonInvalidPayPercent, "pay percentage must be between 0 and 100, got %s", lt.PayPercentage)
	}

	err := c.store.WithTx(ctx, func(tx Store) error {
		existing, err := tx.GetLeaveTypeByName(ctx, lt.Name)
		switch {
		case err == nil:
			lt.ID = existing.ID
		case generic.IsNotFound(err):
			if lt.ID == "" {
				lt.ID = uuid.NewString()
			}
		default:
			return storageErr("get leave type", err)
		}
		return storageErr("save leave type", tx.SaveLeaveType(ctx, lt))
	})
	if err != nil {
		return nil, err
	}
	c.logger.Info("leave type saved", zap.String("name", lt.Name), zap.String("id", lt.ID))
	return &lt, nil
}

func (c *Catalog) Get(ctx context.Context, id string) (*LeaveType, error) {
	lt, err := c.store.GetLeaveType(ctx, id)
	return lt, storageErr("get leave type", err)
}

func (c *Catalog) GetByName(ctx context.Context, name string) (*LeaveType, error) {
	lt, err := c.store.GetLeaveTypeByName(ctx, name)
	return lt, storageErr("get leave type", err)
}

// List returns leave types ordered by name.
func (c *Catalog) List(ctx context.Context, activeOnly bool) ([]LeaveType, error) {
	lts, err := c.store.ListLeaveTypes(ctx, activeOnly)
	return lts, storageErr("list leave types", err)
}
