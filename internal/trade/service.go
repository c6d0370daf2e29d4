// Package trade implements the share market: primary purchases, fixed-price
// sales, English auctions with escrow and settlement, and building
// construction. HTTP handlers live alongside the business logic.
package trade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tidewater/ocean-engine/internal/broadcast"
	"github.com/tidewater/ocean-engine/internal/clock"
	"github.com/tidewater/ocean-engine/internal/config"
	"github.com/tidewater/ocean-engine/internal/model"
	"github.com/tidewater/ocean-engine/internal/store"
)

// Service handles market operations. Every mutation runs in a single store
// transaction; concurrent bids are serialized by the auction version check.
type Service struct {
	store   store.Store
	auction config.AuctionConfig
	tariff  config.ConstructionConfig
	credits decimal.Decimal
	clock   clock.Clock
	hub     *broadcast.Hub // optional
	log     *slog.Logger
}

// NewService creates a new trade service.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(st store.Store, cfg config.Config, clk clock.Clock, hub *broadcast.Hub, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:   st,
		auction: cfg.Auction,
		tariff:  cfg.Construction,
		credits: cfg.InitialCredits,
		clock:   clk,
		hub:     hub,
		log:     logger,
	}
}

func positiveShares(shares int64) error {
	if shares <= 0 {
		return fmt.Errorf("%w: shares must be positive, got %d", model.ErrInvalidArgument, shares)
	}
	return nil
}

// --- Accounts ---

// OpenAccount creates a ledger account funded with the configured initial
// credits. Opening an existing account returns it unchanged.
func (s *Service) OpenAccount(ctx context.Context, userID string) (*model.Account, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id is required", model.ErrInvalidArgument)
	}
	var acct *model.Account
	err := s.store.InTx(ctx, func(tx store.Repository) error {
		existing, err := tx.GetAccount(ctx, userID)
		if err == nil {
			acct = existing
			return nil
		}
		if !errors.Is(err, model.ErrNotFound) {
			return err
		}
		acct = &model.Account{UserID: userID, Balance: s.credits, CreatedAt: s.clock.Now()}
		return tx.CreateAccount(ctx, acct)
	})
	if err != nil {
		return nil, err
	}
	return acct, nil
}

// --- Primary market ---

// PurchaseFromRegion buys shares from the region's unsold float at the
// current price per share.
func (s *Service) PurchaseFromRegion(ctx context.Context, regionID, buyerID string, shares int64) (*model.Ownership, error) {
	if err := positiveShares(shares); err != nil {
		return nil, err
	}

	var own *model.Ownership
	var cost decimal.Decimal
	err := s.store.InTx(ctx, func(tx store.Repository) error {
		r, err := tx.GetRegion(ctx, regionID)
		if err != nil {
			return err
		}
		if r.AvailableShares < shares {
			return fmt.Errorf("%w: region %s has %d shares available, requested %d",
				model.ErrInsufficientShares, regionID, r.AvailableShares, shares)
		}
		cost = r.CurrentPrice.Mul(decimal.NewFromInt(shares))
		if err := tx.Debit(ctx, buyerID, cost); err != nil {
			return err
		}
		if err := tx.UpdateAvailableShares(ctx, regionID, r.AvailableShares-shares); err != nil {
			return err
		}
		own, err = tx.AddShares(ctx, buyerID, regionID, shares, s.clock.Now())
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("primary purchase",
		"region_id", regionID,
		"buyer", buyerID,
		"shares", shares,
		"cost", cost.String(),
	)
	return own, nil
}

// --- Construction ---

func (s *Service) buildingTariff(kind model.BuildingKind) (cost, rate decimal.Decimal) {
	if kind == model.BuildingBuilding {
		return s.tariff.BuildingCost, s.tariff.BuildingRate
	}
	return s.tariff.StoreCost, s.tariff.StoreRate
}

// Construct builds on a region the user holds shares in. The building starts
// with an uninitialized income watermark.
func (s *Service) Construct(ctx context.Context, regionID, userID string, kind model.BuildingKind) (*model.Building, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown building kind %q", model.ErrInvalidArgument, kind)
	}
	cost, rate := s.buildingTariff(kind)

	b := &model.Building{
		ID:         uuid.New().String(),
		RegionID:   regionID,
		UserID:     userID,
		Kind:       kind,
		IncomeRate: rate,
		Accrual:    model.Uninitialized(),
		CreatedAt:  s.clock.Now(),
	}
	err := s.store.InTx(ctx, func(tx store.Repository) error {
		own, err := tx.GetOwnership(ctx, userID, regionID)
		if errors.Is(err, model.ErrNotFound) || (err == nil && own.Shares <= 0) {
			return fmt.Errorf("%w: %s owns no shares of %s", model.ErrInsufficientShares, userID, regionID)
		}
		if err != nil {
			return err
		}
		if err := tx.Debit(ctx, userID, cost); err != nil {
			return err
		}
		return tx.CreateBuilding(ctx, b)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("building constructed",
		"building_id", b.ID,
		"region_id", regionID,
		"user", userID,
		"kind", kind,
		"cost", cost.String(),
	)
	return b, nil
}

// --- Read side ---

// Holdings lists the user's non-empty ownership rows.
func (s *Service) Holdings(ctx context.Context, userID string) ([]model.Ownership, error) {
	return s.store.ListOwnerships(ctx, userID)
}

// PriceHistory returns the region's retained price history, newest first.
func (s *Service) PriceHistory(ctx context.Context, regionID string) ([]model.PriceHistoryEntry, error) {
	if _, err := s.store.GetRegion(ctx, regionID); err != nil {
		return nil, err
	}
	return s.store.ListPriceHistory(ctx, regionID)
}

func (s *Service) Region(ctx context.Context, id string) (*model.Region, error) {
	return s.store.GetRegion(ctx, id)
}

func (s *Service) Regions(ctx context.Context) ([]model.Region, error) {
	return s.store.ListRegions(ctx)
}

func (s *Service) Account(ctx context.Context, userID string) (*model.Account, error) {
	return s.store.GetAccount(ctx, userID)
}

// Buildings lists the user's buildings in construction order.
func (s *Service) Buildings(ctx context.Context, userID string) ([]model.Building, error) {
	return s.store.ListBuildingsByUser(ctx, userID)
}
