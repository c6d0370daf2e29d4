package trade

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/tidewater/ocean-engine/internal/httpx"
	"github.com/tidewater/ocean-engine/internal/model"
)

// --- Request types ---

// The engine does not authenticate; the acting user comes from the body.

type accountRequest struct {
	UserID string `json:"user_id"`
}

type purchaseRequest struct {
	UserID string `json:"user_id"`
	Shares int64  `json:"shares"`
}

type constructRequest struct {
	UserID string             `json:"user_id"`
	Kind   model.BuildingKind `json:"kind"` // "STORE" or "BUILDING"
}

// ListingRequest is the JSON body for POST /auctions and POST /sales.
type ListingRequest struct {
	RegionID string `json:"region_id"`
	SellerID string `json:"seller_id"`
	Shares   int64  `json:"shares"`
}

// BidRequest is the JSON body for POST /auctions/{auctionID}/bids.
type BidRequest struct {
	BidderID string          `json:"bidder_id"`
	Amount   decimal.Decimal `json:"amount"`
}

// Routes mounts the market endpoints on r.
func (s *Service) Routes(r chi.Router) {
	r.Post("/accounts", s.handleOpenAccount)
	r.Get("/accounts/{userID}", s.handleGetAccount)
	r.Get("/accounts/{userID}/holdings", s.handleHoldings)
	r.Get("/accounts/{userID}/buildings", s.handleBuildings)

	r.Get("/regions", s.handleListRegions)
	r.Get("/regions/{regionID}", s.handleGetRegion)
	r.Get("/regions/{regionID}/history", s.handlePriceHistory)
	r.Get("/regions/{regionID}/water-quality", s.handleWaterQuality)
	r.Post("/regions/{regionID}/purchase", s.handlePurchaseFromRegion)
	r.Post("/regions/{regionID}/buildings", s.handleConstruct)

	r.Get("/auctions", s.handleListAuctions)
	r.Post("/auctions", s.handleRegisterAuction)
	r.Get("/auctions/{auctionID}", s.handleGetAuction)
	r.Get("/auctions/{auctionID}/bids", s.handleListBids)
	r.Post("/auctions/{auctionID}/bids", s.handlePlaceBid)
	r.Post("/auctions/{auctionID}/finalize", s.handleFinalize)

	r.Get("/sales", s.handleListSales)
	r.Post("/sales", s.handleRegisterSale)
	r.Post("/sales/{saleID}/purchase", s.handlePurchaseFromSale)
	r.Post("/sales/{saleID}/cancel", s.handleCancelSale)
}

// --- Accounts ---

func (s *Service) handleOpenAccount(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if !httpx.Decode(w, r, &req) {
		return
	}
	acct, err := s.OpenAccount(r.Context(), req.UserID)
	if err != nil {
		httpx.Fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, acct)
}

func (s *Service) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	acct, err := s.Account(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		httpx.Fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, acct)
}

func (s *Service) handleHoldings(w http.ResponseWriter, r *http.Request) {
	holdings, err := s.Holdings(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		httpx.Fail(w, r, err)
		return
	}
	if holdings == nil {
		holdings = []model.Ownership{}
	}
	httpx.WriteJSON(w, http.StatusOK, holdings)
}

func (s *Service) handleBuildings(w http.ResponseWriter, r *http.Request) {
	buildings, err := s.Buildings(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		httpx.Fail(w, r, err)
		return
	}
	if buildings == nil {
		buildings = []model.Building{}
	}
	httpx.WriteJSON(w, http.StatusOK, buildings)
}

// --- Regions ---

func (s *Service) handleListRegions(w http.ResponseWriter, r *http.Request) {
	regions, err := s.Regions(r.Context())
	if err != nil {
		httpx.Fail(w, r, err)
		return
	}
	if regions == nil {
		regions = []model.Region{}
	}
	httpx.WriteJSON(w, http.StatusOK, regions)
}

func (s *Service) handleGetRegion(w http.ResponseWriter, r *http.Request) {
	region, err := s.Region(r.Context(), chi.URLParam(r, "regionID"))
	if err != nil {
		httpx.Fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, region)
}

func (s *Service) handlePriceHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := s.PriceHistory(r.Context(), chi.URLParam(r, "regionID"))
	if err != nil {
		httpx.Fail(w, r, err)
		return
	}
	if entries == nil {
		entries = []model.PriceHistoryEntry{}
	}
	httpx.WriteJSON(w, http.StatusOK, entries)
}

func (s *Service) handleWaterQuality(w http.ResponseWriter, r *http.Request) {
	q, err := s.store.GetWaterQuality(r.Context(), chi.URLParam(r, "regionID"))
	if err != nil {
		httpx.Fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, q)
}

func (s *Service) handlePurchaseFromRegion(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
	if !httpx.Decode(w, r, &req) {
		return
	}
	own, err := s.PurchaseFromRegion(r.Context(), chi.URLParam(r, "regionID"), req.UserID, req.Shares)
	if err != nil {
		httpx.Fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, own)
}

func (s *Service) handleConstruct(w http.ResponseWriter, r *http.Request) {
	var req constructRequest
	if !httpx.Decode(w, r, &req) {
		return
	}
	b, err := s.Construct(r.Context(), chi.URLParam(r, "regionID"), req.UserID, req.Kind)
	if err != nil {
		httpx.Fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, b)
}

// --- Auctions ---

func (s *Service) handleListAuctions(w http.ResponseWriter, r *http.Request) {
	auctions, err := s.ActiveAuctions(r.Context())
	if err != nil {
		httpx.Fail(w, r, err)
		return
	}
	if auctions == nil {
		auctions = []model.Auction{}
	}
	httpx.WriteJSON(w, http.StatusOK, auctions)
}

// handleRegisterAuction handles POST /api/v1/auctions
func (s *Service) handleRegisterAuction(w http.ResponseWriter, r *http.Request) {
	var req ListingRequest
	if !httpx.Decode(w, r, &req) {
		return
	}
	a, err := s.RegisterAuction(r.Context(), req.RegionID, req.SellerID, req.Shares)
	if err != nil {
		httpx.Fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, a)
}

func (s *Service) handleGetAuction(w http.ResponseWriter, r *http.Request) {
	a, err := s.Auction(r.Context(), chi.URLParam(r, "auctionID"))
	if err != nil {
		httpx.Fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, a)
}

func (s *Service) handleListBids(w http.ResponseWriter, r *http.Request) {
	bids, err := s.Bids(r.Context(), chi.URLParam(r, "auctionID"))
	if err != nil {
		httpx.Fail(w, r, err)
		return
	}
	if bids == nil {
		bids = []model.Bid{}
	}
	httpx.WriteJSON(w, http.StatusOK, bids)
}

// handlePlaceBid handles POST /api/v1/auctions/{auctionID}/bids
func (s *Service) handlePlaceBid(w http.ResponseWriter, r *http.Request) {
	var req BidRequest
	if !httpx.Decode(w, r, &req) {
		return
	}
	bid, err := s.PlaceBid(r.Context(), chi.URLParam(r, "auctionID"), req.BidderID, req.Amount)
	if err != nil {
		httpx.Fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, bid)
}

func (s *Service) handleFinalize(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if !httpx.Decode(w, r, &req) {
		return
	}
	a, err := s.Finalize(r.Context(), chi.URLParam(r, "auctionID"), req.UserID)
	if err != nil {
		httpx.Fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, a)
}

// --- Sales ---

func (s *Service) handleListSales(w http.ResponseWriter, r *http.Request) {
	sales, err := s.ActiveSales(r.Context())
	if err != nil {
		httpx.Fail(w, r, err)
		return
	}
	if sales == nil {
		sales = []model.Sale{}
	}
	httpx.WriteJSON(w, http.StatusOK, sales)
}

func (s *Service) handleRegisterSale(w http.ResponseWriter, r *http.Request) {
	var req ListingRequest
	if !httpx.Decode(w, r, &req) {
		return
	}
	sale, err := s.RegisterSale(r.Context(), req.RegionID, req.SellerID, req.Shares)
	if err != nil {
		httpx.Fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, sale)
}

func (s *Service) handlePurchaseFromSale(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if !httpx.Decode(w, r, &req) {
		return
	}
	sale, err := s.PurchaseFromSale(r.Context(), chi.URLParam(r, "saleID"), req.UserID)
	if err != nil {
		httpx.Fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, sale)
}

func (s *Service) handleCancelSale(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if !httpx.Decode(w, r, &req) {
		return
	}
	sale, err := s.CancelSale(r.Context(), chi.URLParam(r, "saleID"), req.UserID)
	if err != nil {
		httpx.Fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, sale)
}
