package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tidewater/ocean-engine/internal/clock"
	"github.com/tidewater/ocean-engine/internal/config"
	"github.com/tidewater/ocean-engine/internal/model"
	"github.com/tidewater/ocean-engine/internal/pricing"
	"github.com/tidewater/ocean-engine/internal/store"
)

// Ingester runs one telemetry sweep over all regions.
type Ingester struct {
	store  store.Store
	feed   Feed
	engine *pricing.Engine
	cfg    config.TelemetryConfig
	dist   DistanceFunc
	clock  clock.Clock
	log    *slog.Logger
}

func NewIngester(st store.Store, feed Feed, engine *pricing.Engine, cfg config.TelemetryConfig, clk clock.Clock, logger *slog.Logger) *Ingester {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingester{
		store:  st,
		feed:   feed,
		engine: engine,
		cfg:    cfg,
		dist:   DistanceFor(cfg),
		clock:  clk,
		log:    logger,
	}
}

// Run fetches the station list once and updates every region that has a
// station within range. Regions out of range are left untouched.
func (in *Ingester) Run(ctx context.Context) error {
	stations, err := in.feed.Stations(ctx)
	if err != nil {
		in.log.Error("station fetch failed", "err", err)
		return err
	}
	if len(stations) == 0 {
		in.log.Warn("station feed returned no stations")
		return nil
	}

	regions, err := in.store.ListRegions(ctx)
	if err != nil {
		return fmt.Errorf("list regions: %w", err)
	}

	var errs []error
	matched := 0
	for _, r := range regions {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		st, distKm, ok := Nearest(stations, r.Lat, r.Lon, in.cfg.RadiusKm, in.dist)
		if !ok {
			continue
		}
		if err := in.apply(ctx, r, st, distKm); err != nil {
			in.log.Error("telemetry update failed", "region_id", r.ID, "station", st.Code, "err", err)
			errs = append(errs, fmt.Errorf("region %s: %w", r.ID, err))
			continue
		}
		matched++
	}

	in.log.Info("telemetry sweep complete",
		"stations", len(stations),
		"regions", len(regions),
		"matched", matched,
		"failed", len(errs),
	)
	return errors.Join(errs...)
}

func (in *Ingester) apply(ctx context.Context, r model.Region, st Station, distKm float64) error {
	delta := ClassifyTier(st.Type).Delta(in.cfg)
	snapshot := Synthesize(r.ID, st, distKm, in.cfg.RadiusKm, in.clock.Now())

	var ch pricing.Change
	err := in.store.InTx(ctx, func(tx store.Repository) error {
		var err error
		ch, err = in.engine.ApplyDeltaTx(ctx, tx, r.ID, delta, pricing.SourceTelemetry)
		if err != nil {
			return err
		}
		return tx.UpsertWaterQuality(ctx, &snapshot)
	})
	if err != nil {
		return err
	}
	in.engine.Publish(ch)
	return nil
}
