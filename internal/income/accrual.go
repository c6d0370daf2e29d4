// Package income pays building owners for elapsed time.
package income

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tidewater/ocean-engine/internal/clock"
	"github.com/tidewater/ocean-engine/internal/metrics"
	"github.com/tidewater/ocean-engine/internal/model"
	"github.com/tidewater/ocean-engine/internal/store"
)

// Accruer advances each building's income watermark and credits the owner
// IncomeRate per whole elapsed second.
type Accruer struct {
	store store.Store
	clock clock.Clock
	log   *slog.Logger
}

func NewAccruer(st store.Store, clk clock.Clock, logger *slog.Logger) *Accruer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Accruer{store: st, clock: clk, log: logger}
}

// Payout is the outcome of accruing one building.
type Payout struct {
	BuildingID string
	Seconds    int64
	Amount     decimal.Decimal
}

// Sweep processes every building in its own transaction. Failures are logged
// and joined; the rest of the sweep continues.
func (a *Accruer) Sweep(ctx context.Context) error {
	buildings, err := a.store.ListBuildings(ctx)
	if err != nil {
		return fmt.Errorf("list buildings: %w", err)
	}

	var errs []error
	total := decimal.Zero
	paid := 0
	for _, b := range buildings {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		p, err := a.Accrue(ctx, b.ID)
		if err != nil {
			a.log.Error("income accrual failed", "building_id", b.ID, "err", err)
			errs = append(errs, fmt.Errorf("building %s: %w", b.ID, err))
			continue
		}
		if p.Amount.IsPositive() {
			total = total.Add(p.Amount)
			paid++
		}
	}

	if paid > 0 {
		a.log.Info("income sweep complete", "buildings", len(buildings), "paid", paid, "credits", total.String())
	}
	return errors.Join(errs...)
}

// Accrue runs the watermark state machine for one building.
//
// An uninitialized building is stamped with the current time and earns
// nothing. An accruing building earns floor(elapsed seconds) * rate; the
// watermark moves forward by exactly the paid seconds so fractional
// remainders carry over. A building whose owner account is missing is left
// untouched.
func (a *Accruer) Accrue(ctx context.Context, buildingID string) (Payout, error) {
	p := Payout{BuildingID: buildingID, Amount: decimal.Zero}
	now := a.clock.Now()

	err := a.store.InTx(ctx, func(tx store.Repository) error {
		b, err := tx.GetBuilding(ctx, buildingID)
		if err != nil {
			return err
		}

		if !b.Accrual.Initialized() {
			return tx.UpdateAccrual(ctx, b.ID, model.AccruingSince(now))
		}

		elapsed := int64(now.Sub(b.Accrual.LastTick) / time.Second)
		if elapsed < 1 {
			return nil
		}
		amount := b.IncomeRate.Mul(decimal.NewFromInt(elapsed))

		if err := tx.Credit(ctx, b.UserID, amount); err != nil {
			if errors.Is(err, model.ErrNotFound) {
				a.log.Warn("building owner missing, skipping payout", "building_id", b.ID, "user_id", b.UserID)
				return nil
			}
			return err
		}
		if err := tx.UpdateAccrual(ctx, b.ID, model.AccruingSince(b.Accrual.LastTick.Add(time.Duration(elapsed)*time.Second))); err != nil {
			return err
		}
		p.Seconds, p.Amount = elapsed, amount
		return nil
	})
	if err != nil {
		return Payout{}, err
	}
	if p.Amount.IsPositive() {
		metrics.IncomePaid.Add(p.Amount.InexactFloat64())
	}
	return p, nil
}
