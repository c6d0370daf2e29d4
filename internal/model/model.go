// Package model defines the core domain types shared across the ocean engine.
// All monetary values use shopspring/decimal; never float64 for money.
// Credits and prices are always integral; fractional results are floored
// before they are persisted.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Region is a tradeable ocean tract. CurrentPrice is the per-share price and
// never drops below the configured floor.
type Region struct {
	ID              string          `json:"id" db:"id"`
	Name            string          `json:"name" db:"name"`
	Province        string          `json:"province" db:"province"`
	District        string          `json:"district" db:"district"`
	Lat             float64         `json:"lat" db:"lat"`
	Lon             float64         `json:"lon" db:"lon"`
	BasePrice       decimal.Decimal `json:"base_price" db:"base_price"`
	CurrentPrice    decimal.Decimal `json:"current_price" db:"current_price"`
	TotalShares     int64           `json:"total_shares" db:"total_shares"`
	AvailableShares int64           `json:"available_shares" db:"available_shares"`
	CollectionCount int64           `json:"collection_count" db:"collection_count"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
}

// PriceHistoryEntry records a price the region actually moved to.
// ID is a monotonic sequence used to order entries sharing a timestamp.
type PriceHistoryEntry struct {
	ID         int64           `json:"id" db:"id"`
	RegionID   string          `json:"region_id" db:"region_id"`
	Price      decimal.Decimal `json:"price" db:"price"`
	RecordedAt time.Time       `json:"recorded_at" db:"recorded_at"`
}

// Account is a user's credit balance in the ledger.
type Account struct {
	UserID    string          `json:"user_id" db:"user_id"`
	Balance   decimal.Decimal `json:"balance" db:"balance"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// Ownership is the number of shares one user holds in one region.
// There is at most one row per (user, region); rows are never deleted, so a
// row may legitimately hold zero shares.
type Ownership struct {
	UserID     string    `json:"user_id" db:"user_id"`
	RegionID   string    `json:"region_id" db:"region_id"`
	Shares     int64     `json:"shares" db:"shares"`
	AcquiredAt time.Time `json:"acquired_at" db:"acquired_at"`
}

// BuildingKind selects the construction tariff.
type BuildingKind string

const (
	BuildingStore    BuildingKind = "STORE"
	BuildingBuilding BuildingKind = "BUILDING"
)

// Valid reports whether k is a known building kind.
func (k BuildingKind) Valid() bool {
	return k == BuildingStore || k == BuildingBuilding
}

// AccrualPhase tags the income watermark state of a building.
type AccrualPhase string

const (
	AccrualUninitialized AccrualPhase = "uninitialized"
	AccrualAccruing      AccrualPhase = "accruing"
)

// Accrual is the income watermark of a building: either Uninitialized (no
// sweep has observed the building yet) or Accruing since LastTick.
type Accrual struct {
	Phase    AccrualPhase `json:"phase"`
	LastTick time.Time    `json:"last_tick,omitempty"`
}

// Uninitialized returns the watermark of a freshly constructed building.
func Uninitialized() Accrual {
	return Accrual{Phase: AccrualUninitialized}
}

// AccruingSince returns a watermark positioned at t.
func AccruingSince(t time.Time) Accrual {
	return Accrual{Phase: AccrualAccruing, LastTick: t.UTC()}
}

// Initialized reports whether the watermark has been set by a sweep.
func (a Accrual) Initialized() bool {
	return a.Phase == AccrualAccruing
}

// Building generates IncomeRate credits per elapsed second for its owner.
type Building struct {
	ID         string          `json:"id" db:"id"`
	RegionID   string          `json:"region_id" db:"region_id"`
	UserID     string          `json:"user_id" db:"user_id"`
	Kind       BuildingKind    `json:"kind" db:"kind"`
	IncomeRate decimal.Decimal `json:"income_rate" db:"income_rate"`
	Accrual    Accrual         `json:"accrual"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}

// ListingStatus is shared by sales and auctions. SOLD and CANCELLED are
// terminal.
type ListingStatus string

const (
	StatusActive    ListingStatus = "ACTIVE"
	StatusSold      ListingStatus = "SOLD"
	StatusCancelled ListingStatus = "CANCELLED"
)

// Terminal reports whether no further transition is allowed.
func (s ListingStatus) Terminal() bool {
	return s == StatusSold || s == StatusCancelled
}

// Sale is a fixed-price listing. Shares are escrowed out of the seller's
// ownership when the sale is registered. Price is per share.
type Sale struct {
	ID        string          `json:"id" db:"id"`
	RegionID  string          `json:"region_id" db:"region_id"`
	SellerID  string          `json:"seller_id" db:"seller_id"`
	Shares    int64           `json:"shares" db:"shares"`
	Price     decimal.Decimal `json:"price" db:"price"`
	Status    ListingStatus   `json:"status" db:"status"`
	BuyerID   string          `json:"buyer_id,omitempty" db:"buyer_id"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	ClosedAt  *time.Time      `json:"closed_at,omitempty" db:"closed_at"`
}

// Total is the amount a buyer pays for the whole listing.
func (s Sale) Total() decimal.Decimal {
	return s.Price.Mul(decimal.NewFromInt(s.Shares))
}

// Auction is a time-boxed English auction. CurrentPrice caches the highest
// accepted bid (or the starting price before any bid). Version is bumped on
// every accepted bid and on settlement.
type Auction struct {
	ID            string          `json:"id" db:"id"`
	RegionID      string          `json:"region_id" db:"region_id"`
	SellerID      string          `json:"seller_id" db:"seller_id"`
	Shares        int64           `json:"shares" db:"shares"`
	StartingPrice decimal.Decimal `json:"starting_price" db:"starting_price"`
	CurrentPrice  decimal.Decimal `json:"current_price" db:"current_price"`
	Status        ListingStatus   `json:"status" db:"status"`
	EndTime       time.Time       `json:"end_time" db:"end_time"`
	WinnerID      string          `json:"winner_id,omitempty" db:"winner_id"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	EndedAt       *time.Time      `json:"ended_at,omitempty" db:"ended_at"`
	Version       int64           `json:"version" db:"version"`
}

// Bid is an immutable record of an accepted bid.
type Bid struct {
	ID        string          `json:"id" db:"id"`
	AuctionID string          `json:"auction_id" db:"auction_id"`
	BidderID  string          `json:"bidder_id" db:"bidder_id"`
	Amount    decimal.Decimal `json:"amount" db:"amount"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// Sentiment is the classifier verdict for a news item about a region.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
)

// ParseSentiment maps free-form classifier output to a Sentiment. Anything
// unrecognized is neutral.
func ParseSentiment(s string) Sentiment {
	switch Sentiment(s) {
	case SentimentPositive, SentimentNegative:
		return Sentiment(s)
	}
	return SentimentNeutral
}

// Article is an ingested news item. URL is globally unique.
type Article struct {
	URL         string          `json:"url" db:"url"`
	RegionID    string          `json:"region_id" db:"region_id"`
	RegionName  string          `json:"region_name" db:"region_name"`
	Title       string          `json:"title" db:"title"`
	Sentiment   Sentiment       `json:"sentiment" db:"sentiment"`
	PriceChange decimal.Decimal `json:"price_change" db:"price_change"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// QualityStatus classifies a single water measurement.
type QualityStatus string

const (
	QualityNormal  QualityStatus = "NORMAL"
	QualityWarning QualityStatus = "WARNING"
)

// Measurement is one water-quality metric.
type Measurement struct {
	Value  float64       `json:"value"`
	Status QualityStatus `json:"status"`
}

// WaterQuality is the per-region snapshot derived from the nearest station.
// It is rewritten on every telemetry sweep that matches a station.
type WaterQuality struct {
	RegionID        string      `json:"region_id"`
	DissolvedOxygen Measurement `json:"dissolved_oxygen"` // mg/L
	PH              Measurement `json:"ph"`
	Nitrogen        Measurement `json:"nitrogen"`   // mg/L
	Phosphorus      Measurement `json:"phosphorus"` // mg/L
	Turbidity       Measurement `json:"turbidity"`  // NTU
	StationName     string      `json:"station_name"`
	StationCode     string      `json:"station_code"`
	StationTier     string      `json:"station_tier"`
	DistanceKm      float64     `json:"distance_km"`
	MeasuredAt      time.Time   `json:"measured_at"`
}

// CollectionEvent records a verified litter pickup.
type CollectionEvent struct {
	ID        string          `json:"id" db:"id"`
	UserID    string          `json:"user_id" db:"user_id"`
	RegionID  string          `json:"region_id" db:"region_id"`
	Reward    decimal.Decimal `json:"reward" db:"reward"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// MissionKind separates the rotating daily tasks from one-off campaigns.
type MissionKind string

const (
	MissionDaily   MissionKind = "DAILY"
	MissionSpecial MissionKind = "SPECIAL"
)

// Mission is a photo-verified task. Todo is the instruction shown to players
// and is also what the photo oracle checks the submitted picture against.
type Mission struct {
	ID        string          `json:"id" db:"id"`
	Todo      string          `json:"todo" db:"todo"`
	Credits   decimal.Decimal `json:"credits" db:"credits"`
	Kind      MissionKind     `json:"kind" db:"kind"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// UserMission records that a user completed a mission. There is at most one
// per (user, mission).
type UserMission struct {
	UserID      string          `json:"user_id" db:"user_id"`
	MissionID   string          `json:"mission_id" db:"mission_id"`
	Credits     decimal.Decimal `json:"credits" db:"credits"`
	CompletedAt time.Time       `json:"completed_at" db:"completed_at"`
}
