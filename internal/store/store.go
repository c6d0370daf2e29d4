// Package store defines the persistence interface for the ocean engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
//
// Every mutation happens inside Store.InTx. A transaction either commits all
// of its writes or none of them; reads made through the transaction's
// Repository lock the rows they return until commit.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tidewater/ocean-engine/internal/model"
)

// ErrVersionConflict is returned when an optimistic auction update lost a
// race with another writer.
var ErrVersionConflict = fmt.Errorf("%w: concurrent modification", model.ErrInvalidState)

// Reader is the read-side surface available outside a transaction.
type Reader interface {
	// --- Regions & price state ---

	// GetRegion retrieves a region by ID.
	GetRegion(ctx context.Context, id string) (*model.Region, error)

	// ListRegions returns all regions ordered by name.
	ListRegions(ctx context.Context) ([]model.Region, error)

	// ListPriceHistory returns retained history entries, newest first.
	ListPriceHistory(ctx context.Context, regionID string) ([]model.PriceHistoryEntry, error)

	// --- Ledger & ownership ---

	GetAccount(ctx context.Context, userID string) (*model.Account, error)

	// ListOwnerships returns the user's holdings with at least one share.
	ListOwnerships(ctx context.Context, userID string) ([]model.Ownership, error)

	// --- Buildings ---

	ListBuildings(ctx context.Context) ([]model.Building, error)
	ListBuildingsByUser(ctx context.Context, userID string) ([]model.Building, error)

	// --- Listings ---

	GetSale(ctx context.Context, id string) (*model.Sale, error)
	ListActiveSales(ctx context.Context) ([]model.Sale, error)
	GetAuction(ctx context.Context, id string) (*model.Auction, error)
	ListActiveAuctions(ctx context.Context) ([]model.Auction, error)

	// ListExpiredAuctions returns ACTIVE auctions whose end time is at or
	// before now.
	ListExpiredAuctions(ctx context.Context, now time.Time) ([]model.Auction, error)

	// ListBids returns an auction's bids in acceptance order.
	ListBids(ctx context.Context, auctionID string) ([]model.Bid, error)

	// --- Signals ---

	ArticleExists(ctx context.Context, url string) (bool, error)
	ListArticles(ctx context.Context, regionID string, limit int) ([]model.Article, error)
	GetWaterQuality(ctx context.Context, regionID string) (*model.WaterQuality, error)

	// --- Missions ---

	GetMission(ctx context.Context, id string) (*model.Mission, error)
	ListMissions(ctx context.Context) ([]model.Mission, error)

	// GetUserMission returns the completion record or ErrNotFound.
	GetUserMission(ctx context.Context, userID, missionID string) (*model.UserMission, error)
}

// Repository is the transactional surface handed to InTx callbacks.
type Repository interface {
	Reader

	CreateRegion(ctx context.Context, r *model.Region) error
	UpdateRegionPrice(ctx context.Context, id string, price decimal.Decimal, at time.Time) error
	UpdateAvailableShares(ctx context.Context, id string, available int64) error

	// IncrementCollectionCount bumps the region's lifetime counter and
	// returns the new value.
	IncrementCollectionCount(ctx context.Context, id string) (int64, error)

	// InsertPriceHistory appends an entry and assigns its sequence ID.
	InsertPriceHistory(ctx context.Context, e *model.PriceHistoryEntry) error

	// PrunePriceHistory keeps only the newest keep entries for the region,
	// ordered by (recorded_at desc, id desc).
	PrunePriceHistory(ctx context.Context, regionID string, keep int) error

	CreateAccount(ctx context.Context, a *model.Account) error

	// Debit subtracts amount from the balance. It fails with
	// ErrInsufficientFunds, leaving the balance untouched, when the balance
	// is lower than amount.
	Debit(ctx context.Context, userID string, amount decimal.Decimal) error

	Credit(ctx context.Context, userID string, amount decimal.Decimal) error

	GetOwnership(ctx context.Context, userID, regionID string) (*model.Ownership, error)

	// AddShares adjusts the (user, region) row by delta, creating it when
	// absent. The result may not go negative (ErrInsufficientShares).
	AddShares(ctx context.Context, userID, regionID string, delta int64, at time.Time) (*model.Ownership, error)

	CreateBuilding(ctx context.Context, b *model.Building) error
	GetBuilding(ctx context.Context, id string) (*model.Building, error)
	UpdateAccrual(ctx context.Context, buildingID string, a model.Accrual) error

	CreateSale(ctx context.Context, s *model.Sale) error
	UpdateSale(ctx context.Context, s *model.Sale) error

	CreateAuction(ctx context.Context, a *model.Auction) error

	// UpdateAuction writes a if the stored version still equals a.Version,
	// then increments a.Version. Otherwise it returns ErrVersionConflict.
	UpdateAuction(ctx context.Context, a *model.Auction) error

	InsertBid(ctx context.Context, b *model.Bid) error

	// HighestBid returns the auction's largest bid or ErrNotFound.
	HighestBid(ctx context.Context, auctionID string) (*model.Bid, error)

	InsertArticle(ctx context.Context, a *model.Article) error
	UpsertWaterQuality(ctx context.Context, q *model.WaterQuality) error
	InsertCollectionEvent(ctx context.Context, e *model.CollectionEvent) error

	CreateMission(ctx context.Context, m *model.Mission) error

	// InsertUserMission records a completion. A second record for the same
	// (user, mission) fails with ErrInvalidState.
	InsertUserMission(ctx context.Context, um *model.UserMission) error
}

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
type Store interface {
	Reader

	// InTx runs fn inside one transaction. A non-nil error from fn rolls
	// back every write fn made.
	InTx(ctx context.Context, fn func(tx Repository) error) error
}

func notFound(kind, id string) error {
	return fmt.Errorf("%w: %s %s", model.ErrNotFound, kind, id)
}
