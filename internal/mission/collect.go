// Package mission rewards photo-verified player actions: litter pickups,
// which bump the region's collection counter that the pricing sweep turns
// into a price move, and one-off missions paid once per player.
package mission

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tidewater/ocean-engine/internal/ai"
	"github.com/tidewater/ocean-engine/internal/clock"
	"github.com/tidewater/ocean-engine/internal/config"
	"github.com/tidewater/ocean-engine/internal/httpx"
	"github.com/tidewater/ocean-engine/internal/metrics"
	"github.com/tidewater/ocean-engine/internal/model"
	"github.com/tidewater/ocean-engine/internal/store"
	"github.com/tidewater/ocean-engine/internal/telemetry"
)

// ErrNotVerified is returned when the oracle does not confirm litter in the
// photo, or could not be reached.
var ErrNotVerified = fmt.Errorf("%w: photo does not show collected litter", model.ErrInvalidArgument)

const litterContext = "litter or trash collected from a beach or the sea"

type Collector struct {
	store  store.Store
	oracle ai.Oracle
	reward decimal.Decimal
	radius float64
	clock  clock.Clock
	log    *slog.Logger
}

func NewCollector(st store.Store, oracle ai.Oracle, cfg config.MissionConfig, clk clock.Clock, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{store: st, oracle: oracle, reward: cfg.CollectionReward, radius: cfg.LocateRadiusDeg, clock: clk, log: logger}
}

// Result is what a successful pickup earned.
type Result struct {
	EventID         string          `json:"event_id"`
	RegionID        string          `json:"region_id"`
	RegionName      string          `json:"region_name"`
	Reward          decimal.Decimal `json:"credits_earned"`
	Balance         decimal.Decimal `json:"new_balance"`
	CollectionCount int64           `json:"collection_count"`
}

// Collect verifies the photo and, if accepted, increments the region's
// collection counter, credits the reward and records the event in one
// transaction. A rejected photo changes nothing.
func (c *Collector) Collect(ctx context.Context, userID, regionID string, image []byte) (Result, error) {
	if len(image) == 0 {
		return Result{}, fmt.Errorf("%w: image is required", model.ErrInvalidArgument)
	}
	region, err := c.store.GetRegion(ctx, regionID)
	if err != nil {
		return Result{}, err
	}
	if _, err := c.store.GetAccount(ctx, userID); err != nil {
		return Result{}, err
	}

	ok, err := c.oracle.Verify(ctx, image, litterContext)
	if err != nil {
		metrics.CollectionsTotal.WithLabelValues("error").Inc()
		c.log.Warn("photo verification failed", "user", userID, "region_id", regionID, "err", err)
		return Result{}, ErrNotVerified
	}
	if !ok {
		metrics.CollectionsTotal.WithLabelValues("rejected").Inc()
		return Result{}, ErrNotVerified
	}

	now := c.clock.Now()
	res := Result{
		EventID:    uuid.New().String(),
		RegionID:   regionID,
		RegionName: region.Name,
		Reward:     c.reward,
	}
	err = c.store.InTx(ctx, func(tx store.Repository) error {
		count, err := tx.IncrementCollectionCount(ctx, regionID)
		if err != nil {
			return err
		}
		res.CollectionCount = count
		if err := tx.Credit(ctx, userID, c.reward); err != nil {
			return err
		}
		if err := tx.InsertCollectionEvent(ctx, &model.CollectionEvent{
			ID:        res.EventID,
			UserID:    userID,
			RegionID:  regionID,
			Reward:    c.reward,
			CreatedAt: now,
		}); err != nil {
			return err
		}
		acct, err := tx.GetAccount(ctx, userID)
		if err != nil {
			return err
		}
		res.Balance = acct.Balance
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	metrics.CollectionsTotal.WithLabelValues("accepted").Inc()
	c.log.Info("litter collected",
		"user", userID,
		"region_id", regionID,
		"reward", c.reward.String(),
		"collection_count", res.CollectionCount,
	)
	return res, nil
}

// CollectAt credits a pickup reported by coordinates to the region it was
// made in. See Locate.
func (c *Collector) CollectAt(ctx context.Context, userID string, lat, lon float64, image []byte) (Result, error) {
	regions, err := c.store.ListRegions(ctx)
	if err != nil {
		return Result{}, err
	}
	r, ok := Locate(regions, lat, lon, c.radius)
	if !ok {
		return Result{}, fmt.Errorf("%w: no region within %g degrees of (%g, %g)", model.ErrNotFound, c.radius, lat, lon)
	}
	return c.Collect(ctx, userID, r.ID, image)
}

// Locate returns the region whose centre lies within radiusDeg degrees of
// (lat, lon) on both axes. When several qualify the closest one wins, ties
// going to the earlier region.
func Locate(regions []model.Region, lat, lon, radiusDeg float64) (model.Region, bool) {
	best, bestDist := -1, math.Inf(1)
	for i, r := range regions {
		if math.Abs(r.Lat-lat) > radiusDeg || math.Abs(r.Lon-lon) > radiusDeg {
			continue
		}
		if dd := telemetry.HaversineDistance(lat, lon, r.Lat, r.Lon); dd < bestDist {
			best, bestDist = i, dd
		}
	}
	if best < 0 {
		return model.Region{}, false
	}
	return regions[best], true
}

// CollectRequest is the JSON body for POST /regions/{regionID}/collections.
// Image is base64 encoded.
type CollectRequest struct {
	UserID string `json:"user_id"`
	Image  []byte `json:"image"`
}

// CollectAtRequest is the JSON body for POST /collections.
type CollectAtRequest struct {
	UserID string  `json:"user_id"`
	Lat    float64 `json:"lat"`
	Lon    float64 `json:"lon"`
	Image  []byte  `json:"image"`
}

// Routes mounts the collection endpoints on r.
func (c *Collector) Routes(r chi.Router) {
	r.Post("/regions/{regionID}/collections", c.handleCollect)
	r.Post("/collections", c.handleCollectAt)
}

func (c *Collector) handleCollectAt(w http.ResponseWriter, r *http.Request) {
	var req CollectAtRequest
	if !httpx.Decode(w, r, &req) {
		return
	}
	res, err := c.CollectAt(r.Context(), req.UserID, req.Lat, req.Lon, req.Image)
	if err != nil {
		httpx.Fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, res)
}

func (c *Collector) handleCollect(w http.ResponseWriter, r *http.Request) {
	var req CollectRequest
	if !httpx.Decode(w, r, &req) {
		return
	}
	res, err := c.Collect(r.Context(), req.UserID, chi.URLParam(r, "regionID"), req.Image)
	if err != nil {
		httpx.Fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, res)
}
