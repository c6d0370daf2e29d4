// Package pricing moves region prices in response to market signals.
//
// Every signal is reduced to an integral delta and applied through
// Engine.ApplyDelta (or ApplyDeltaTx inside a caller's transaction). The
// result is clamped to the configured floor, and a history entry is written
// only when the stored price actually changes.
package pricing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/tidewater/ocean-engine/internal/broadcast"
	"github.com/tidewater/ocean-engine/internal/clock"
	"github.com/tidewater/ocean-engine/internal/config"
	"github.com/tidewater/ocean-engine/internal/metrics"
	"github.com/tidewater/ocean-engine/internal/model"
	"github.com/tidewater/ocean-engine/internal/store"
)

// Source labels where a price move came from.
type Source string

const (
	SourceSentiment  Source = "sentiment"
	SourceCollection Source = "collection"
	SourceTelemetry  Source = "telemetry"
)

// Change describes the outcome of one applied delta.
type Change struct {
	RegionID string
	Source   Source
	Old      decimal.Decimal
	New      decimal.Decimal
	Clamped  bool
}

// Changed reports whether the stored price moved.
func (c Change) Changed() bool {
	return !c.Old.Equal(c.New)
}

type Engine struct {
	store store.Store
	cfg   config.PricingConfig
	clock clock.Clock
	hub   *broadcast.Hub
	log   *slog.Logger
}

// NewEngine creates a pricing engine. hub may be nil.
func NewEngine(st store.Store, cfg config.PricingConfig, clk clock.Clock, hub *broadcast.Hub, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: st, cfg: cfg, clock: clk, hub: hub, log: logger}
}

// ApplyDelta applies delta to the region's price in its own transaction and
// returns the resulting price.
func (e *Engine) ApplyDelta(ctx context.Context, regionID string, delta decimal.Decimal, src Source) (decimal.Decimal, error) {
	var ch Change
	err := e.store.InTx(ctx, func(tx store.Repository) error {
		var err error
		ch, err = e.ApplyDeltaTx(ctx, tx, regionID, delta, src)
		return err
	})
	if err != nil {
		return decimal.Zero, err
	}
	e.Publish(ch)
	return ch.New, nil
}

// ApplyDeltaTx performs the price step inside tx. The caller must call
// Publish with the returned Change after the transaction commits.
func (e *Engine) ApplyDeltaTx(ctx context.Context, tx store.Repository, regionID string, delta decimal.Decimal, src Source) (Change, error) {
	r, err := tx.GetRegion(ctx, regionID)
	if err != nil {
		return Change{}, err
	}

	ch := Change{RegionID: regionID, Source: src, Old: r.CurrentPrice}
	next := r.CurrentPrice.Add(delta).Floor()
	if next.LessThan(e.cfg.Floor) {
		next = e.cfg.Floor
		ch.Clamped = true
	}
	ch.New = next
	if !ch.Changed() {
		return ch, nil
	}

	now := e.clock.Now()
	if err := tx.UpdateRegionPrice(ctx, regionID, next, now); err != nil {
		return Change{}, err
	}
	if err := tx.InsertPriceHistory(ctx, &model.PriceHistoryEntry{RegionID: regionID, Price: next, RecordedAt: now}); err != nil {
		return Change{}, err
	}
	if err := tx.PrunePriceHistory(ctx, regionID, e.cfg.HistoryRetention); err != nil {
		return Change{}, err
	}
	return ch, nil
}

// Publish records and broadcasts a committed change. No-op changes are
// ignored.
func (e *Engine) Publish(ch Change) {
	if !ch.Changed() {
		return
	}
	if ch.Clamped {
		metrics.PriceClamps.Inc()
	}
	metrics.PriceChanges.WithLabelValues(string(ch.Source)).Inc()
	e.log.Info("price changed",
		"region_id", ch.RegionID,
		"source", ch.Source,
		"old", ch.Old.String(),
		"new", ch.New.String(),
	)
	e.hub.Broadcast(broadcast.Message{
		Type:     broadcast.TypePrice,
		RegionID: ch.RegionID,
		Price:    ch.New.String(),
		Source:   string(ch.Source),
	})
}

// SentimentDelta maps a classifier verdict to a price move.
func (e *Engine) SentimentDelta(s model.Sentiment) decimal.Decimal {
	switch s {
	case model.SentimentPositive:
		return e.cfg.SentimentMagnitude
	case model.SentimentNegative:
		return e.cfg.SentimentMagnitude.Neg()
	}
	return decimal.Zero
}

// CollectionDelta is a step function of a region's lifetime collection
// counter. The first step whose threshold count exceeds wins; a region with
// nothing collected gets the idle delta.
func (e *Engine) CollectionDelta(count int64) decimal.Decimal {
	if count <= 0 {
		return e.cfg.CollectionIdleDelta
	}
	for _, step := range e.cfg.CollectionSteps {
		if count > step.Above {
			return step.Delta
		}
	}
	return decimal.Zero
}

// RunCollectionSweep applies the collection-activity delta to every region.
// Each region is processed in its own transaction; failures are logged and
// joined without stopping the sweep.
func (e *Engine) RunCollectionSweep(ctx context.Context) error {
	regions, err := e.store.ListRegions(ctx)
	if err != nil {
		return fmt.Errorf("list regions: %w", err)
	}

	var errs []error
	changed := 0
	for _, r := range regions {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		var ch Change
		err := e.store.InTx(ctx, func(tx store.Repository) error {
			cur, err := tx.GetRegion(ctx, r.ID)
			if err != nil {
				return err
			}
			ch, err = e.ApplyDeltaTx(ctx, tx, r.ID, e.CollectionDelta(cur.CollectionCount), SourceCollection)
			return err
		})
		if err != nil {
			e.log.Error("collection price update failed", "region_id", r.ID, "err", err)
			errs = append(errs, fmt.Errorf("region %s: %w", r.ID, err))
			continue
		}
		e.Publish(ch)
		if ch.Changed() {
			changed++
		}
	}

	e.log.Info("collection sweep complete", "regions", len(regions), "changed", changed, "failed", len(errs))
	return errors.Join(errs...)
}
