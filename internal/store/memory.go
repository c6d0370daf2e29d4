package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tidewater/ocean-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
//
// Transactions are serialized: InTx holds the store lock for the whole
// callback and works on a copy of the data, which replaces the live data only
// when the callback succeeds.
type MemoryStore struct {
	mu   sync.Mutex
	data *memData
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: newMemData()}
}

func (s *MemoryStore) InTx(_ context.Context, fn func(tx Repository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.data.clone()
	if err := fn(work); err != nil {
		return err
	}
	s.data = work
	return nil
}

func view[T any](s *MemoryStore, fn func(d *memData) (T, error)) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.data)
}

func (s *MemoryStore) GetRegion(ctx context.Context, id string) (*model.Region, error) {
	return view(s, func(d *memData) (*model.Region, error) { return d.GetRegion(ctx, id) })
}

func (s *MemoryStore) ListRegions(ctx context.Context) ([]model.Region, error) {
	return view(s, func(d *memData) ([]model.Region, error) { return d.ListRegions(ctx) })
}

func (s *MemoryStore) ListPriceHistory(ctx context.Context, regionID string) ([]model.PriceHistoryEntry, error) {
	return view(s, func(d *memData) ([]model.PriceHistoryEntry, error) { return d.ListPriceHistory(ctx, regionID) })
}

func (s *MemoryStore) GetAccount(ctx context.Context, userID string) (*model.Account, error) {
	return view(s, func(d *memData) (*model.Account, error) { return d.GetAccount(ctx, userID) })
}

func (s *MemoryStore) ListOwnerships(ctx context.Context, userID string) ([]model.Ownership, error) {
	return view(s, func(d *memData) ([]model.Ownership, error) { return d.ListOwnerships(ctx, userID) })
}

func (s *MemoryStore) ListBuildings(ctx context.Context) ([]model.Building, error) {
	return view(s, func(d *memData) ([]model.Building, error) { return d.ListBuildings(ctx) })
}

func (s *MemoryStore) ListBuildingsByUser(ctx context.Context, userID string) ([]model.Building, error) {
	return view(s, func(d *memData) ([]model.Building, error) { return d.ListBuildingsByUser(ctx, userID) })
}

func (s *MemoryStore) GetSale(ctx context.Context, id string) (*model.Sale, error) {
	return view(s, func(d *memData) (*model.Sale, error) { return d.GetSale(ctx, id) })
}

func (s *MemoryStore) ListActiveSales(ctx context.Context) ([]model.Sale, error) {
	return view(s, func(d *memData) ([]model.Sale, error) { return d.ListActiveSales(ctx) })
}

func (s *MemoryStore) GetAuction(ctx context.Context, id string) (*model.Auction, error) {
	return view(s, func(d *memData) (*model.Auction, error) { return d.GetAuction(ctx, id) })
}

func (s *MemoryStore) ListActiveAuctions(ctx context.Context) ([]model.Auction, error) {
	return view(s, func(d *memData) ([]model.Auction, error) { return d.ListActiveAuctions(ctx) })
}

func (s *MemoryStore) ListExpiredAuctions(ctx context.Context, now time.Time) ([]model.Auction, error) {
	return view(s, func(d *memData) ([]model.Auction, error) { return d.ListExpiredAuctions(ctx, now) })
}

func (s *MemoryStore) ListBids(ctx context.Context, auctionID string) ([]model.Bid, error) {
	return view(s, func(d *memData) ([]model.Bid, error) { return d.ListBids(ctx, auctionID) })
}

func (s *MemoryStore) ArticleExists(ctx context.Context, url string) (bool, error) {
	return view(s, func(d *memData) (bool, error) { return d.ArticleExists(ctx, url) })
}

func (s *MemoryStore) ListArticles(ctx context.Context, regionID string, limit int) ([]model.Article, error) {
	return view(s, func(d *memData) ([]model.Article, error) { return d.ListArticles(ctx, regionID, limit) })
}

func (s *MemoryStore) GetWaterQuality(ctx context.Context, regionID string) (*model.WaterQuality, error) {
	return view(s, func(d *memData) (*model.WaterQuality, error) { return d.GetWaterQuality(ctx, regionID) })
}

func (s *MemoryStore) GetMission(ctx context.Context, id string) (*model.Mission, error) {
	return view(s, func(d *memData) (*model.Mission, error) { return d.GetMission(ctx, id) })
}

func (s *MemoryStore) ListMissions(ctx context.Context) ([]model.Mission, error) {
	return view(s, func(d *memData) ([]model.Mission, error) { return d.ListMissions(ctx) })
}

func (s *MemoryStore) GetUserMission(ctx context.Context, userID, missionID string) (*model.UserMission, error) {
	return view(s, func(d *memData) (*model.UserMission, error) { return d.GetUserMission(ctx, userID, missionID) })
}

// CollectionEvents returns every recorded litter pickup. Test helper.
func (s *MemoryStore) CollectionEvents() []model.CollectionEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.CollectionEvent(nil), s.data.events...)
}

type ownKey struct {
	userID   string
	regionID string
}

// memData holds the store contents and implements Repository without any
// locking; MemoryStore is responsible for serializing access.
type memData struct {
	regions    map[string]*model.Region
	history    map[string][]model.PriceHistoryEntry
	historySeq int64
	accounts   map[string]*model.Account
	ownerships map[ownKey]*model.Ownership
	buildings  map[string]*model.Building
	sales      map[string]*model.Sale
	auctions   map[string]*model.Auction
	bids       map[string][]model.Bid
	articles   map[string]*model.Article
	quality    map[string]*model.WaterQuality
	events     []model.CollectionEvent
	missions   map[string]*model.Mission
	completed  map[missionKey]*model.UserMission
}

type missionKey struct {
	userID    string
	missionID string
}

func newMemData() *memData {
	return &memData{
		regions:    make(map[string]*model.Region),
		history:    make(map[string][]model.PriceHistoryEntry),
		accounts:   make(map[string]*model.Account),
		ownerships: make(map[ownKey]*model.Ownership),
		buildings:  make(map[string]*model.Building),
		sales:      make(map[string]*model.Sale),
		auctions:   make(map[string]*model.Auction),
		bids:       make(map[string][]model.Bid),
		articles:   make(map[string]*model.Article),
		quality:    make(map[string]*model.WaterQuality),
		missions:   make(map[string]*model.Mission),
		completed:  make(map[missionKey]*model.UserMission),
	}
}

func clonePtrMap[K comparable, V any](src map[K]*V) map[K]*V {
	dst := make(map[K]*V, len(src))
	for k, v := range src {
		c := *v
		dst[k] = &c
	}
	return dst
}

func cloneSliceMap[K comparable, V any](src map[K][]V) map[K][]V {
	dst := make(map[K][]V, len(src))
	for k, v := range src {
		dst[k] = append([]V(nil), v...)
	}
	return dst
}

func (d *memData) clone() *memData {
	return &memData{
		regions:    clonePtrMap(d.regions),
		history:    cloneSliceMap(d.history),
		historySeq: d.historySeq,
		accounts:   clonePtrMap(d.accounts),
		ownerships: clonePtrMap(d.ownerships),
		buildings:  clonePtrMap(d.buildings),
		sales:      clonePtrMap(d.sales),
		auctions:   clonePtrMap(d.auctions),
		bids:       cloneSliceMap(d.bids),
		articles:   clonePtrMap(d.articles),
		quality:    clonePtrMap(d.quality),
		events:     append([]model.CollectionEvent(nil), d.events...),
		missions:   clonePtrMap(d.missions),
		completed:  clonePtrMap(d.completed),
	}
}

// --- Regions ---

func (d *memData) CreateRegion(_ context.Context, r *model.Region) error {
	if _, ok := d.regions[r.ID]; ok {
		return fmt.Errorf("region %s already exists", r.ID)
	}
	copy := *r
	d.regions[r.ID] = &copy
	return nil
}

func (d *memData) GetRegion(_ context.Context, id string) (*model.Region, error) {
	r, ok := d.regions[id]
	if !ok {
		return nil, notFound("region", id)
	}
	copy := *r
	return &copy, nil
}

func (d *memData) ListRegions(_ context.Context) ([]model.Region, error) {
	regions := make([]model.Region, 0, len(d.regions))
	for _, r := range d.regions {
		regions = append(regions, *r)
	}
	sort.Slice(regions, func(i, j int) bool {
		if regions[i].Name != regions[j].Name {
			return regions[i].Name < regions[j].Name
		}
		return regions[i].ID < regions[j].ID
	})
	return regions, nil
}

func (d *memData) UpdateRegionPrice(_ context.Context, id string, price decimal.Decimal, at time.Time) error {
	r, ok := d.regions[id]
	if !ok {
		return notFound("region", id)
	}
	r.CurrentPrice = price
	r.UpdatedAt = at
	return nil
}

func (d *memData) UpdateAvailableShares(_ context.Context, id string, available int64) error {
	r, ok := d.regions[id]
	if !ok {
		return notFound("region", id)
	}
	if available < 0 || available > r.TotalShares {
		return fmt.Errorf("%w: available shares %d out of range [0, %d]", model.ErrInsufficientShares, available, r.TotalShares)
	}
	r.AvailableShares = available
	return nil
}

func (d *memData) IncrementCollectionCount(_ context.Context, id string) (int64, error) {
	r, ok := d.regions[id]
	if !ok {
		return 0, notFound("region", id)
	}
	r.CollectionCount++
	return r.CollectionCount, nil
}

// --- Price history ---

func (d *memData) InsertPriceHistory(_ context.Context, e *model.PriceHistoryEntry) error {
	d.historySeq++
	e.ID = d.historySeq
	d.history[e.RegionID] = append(d.history[e.RegionID], *e)
	return nil
}

func sortHistoryNewestFirst(entries []model.PriceHistoryEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].RecordedAt.Equal(entries[j].RecordedAt) {
			return entries[i].RecordedAt.After(entries[j].RecordedAt)
		}
		return entries[i].ID > entries[j].ID
	})
}

func (d *memData) PrunePriceHistory(_ context.Context, regionID string, keep int) error {
	entries := d.history[regionID]
	if len(entries) <= keep {
		return nil
	}
	sortHistoryNewestFirst(entries)
	d.history[regionID] = append([]model.PriceHistoryEntry(nil), entries[:keep]...)
	return nil
}

func (d *memData) ListPriceHistory(_ context.Context, regionID string) ([]model.PriceHistoryEntry, error) {
	entries := append([]model.PriceHistoryEntry(nil), d.history[regionID]...)
	sortHistoryNewestFirst(entries)
	return entries, nil
}

// --- Ledger ---

func (d *memData) CreateAccount(_ context.Context, a *model.Account) error {
	if _, ok := d.accounts[a.UserID]; ok {
		return fmt.Errorf("account %s already exists", a.UserID)
	}
	copy := *a
	d.accounts[a.UserID] = &copy
	return nil
}

func (d *memData) GetAccount(_ context.Context, userID string) (*model.Account, error) {
	a, ok := d.accounts[userID]
	if !ok {
		return nil, notFound("account", userID)
	}
	copy := *a
	return &copy, nil
}

func (d *memData) Debit(_ context.Context, userID string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("debit amount must not be negative, got %s", amount)
	}
	a, ok := d.accounts[userID]
	if !ok {
		return notFound("account", userID)
	}
	if a.Balance.LessThan(amount) {
		return fmt.Errorf("%w: %s has %s, needs %s", model.ErrInsufficientFunds, userID, a.Balance, amount)
	}
	a.Balance = a.Balance.Sub(amount)
	return nil
}

func (d *memData) Credit(_ context.Context, userID string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("credit amount must not be negative, got %s", amount)
	}
	a, ok := d.accounts[userID]
	if !ok {
		return notFound("account", userID)
	}
	a.Balance = a.Balance.Add(amount)
	return nil
}

// --- Ownership ---

func (d *memData) GetOwnership(_ context.Context, userID, regionID string) (*model.Ownership, error) {
	o, ok := d.ownerships[ownKey{userID, regionID}]
	if !ok {
		return nil, notFound("ownership", userID+"/"+regionID)
	}
	copy := *o
	return &copy, nil
}

func (d *memData) AddShares(_ context.Context, userID, regionID string, delta int64, at time.Time) (*model.Ownership, error) {
	key := ownKey{userID, regionID}
	o, ok := d.ownerships[key]
	var current int64
	if ok {
		current = o.Shares
	}
	if current+delta < 0 {
		return nil, fmt.Errorf("%w: %s holds %d shares of %s, needs %d", model.ErrInsufficientShares, userID, current, regionID, -delta)
	}
	if !ok {
		o = &model.Ownership{UserID: userID, RegionID: regionID, AcquiredAt: at}
		d.ownerships[key] = o
	}
	o.Shares = current + delta
	copy := *o
	return &copy, nil
}

func (d *memData) ListOwnerships(_ context.Context, userID string) ([]model.Ownership, error) {
	var result []model.Ownership
	for _, o := range d.ownerships {
		if o.UserID == userID && o.Shares > 0 {
			result = append(result, *o)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].RegionID < result[j].RegionID })
	return result, nil
}

// --- Buildings ---

func (d *memData) CreateBuilding(_ context.Context, b *model.Building) error {
	copy := *b
	d.buildings[b.ID] = &copy
	return nil
}

func (d *memData) GetBuilding(_ context.Context, id string) (*model.Building, error) {
	b, ok := d.buildings[id]
	if !ok {
		return nil, notFound("building", id)
	}
	copy := *b
	return &copy, nil
}

func (d *memData) ListBuildings(_ context.Context) ([]model.Building, error) {
	buildings := make([]model.Building, 0, len(d.buildings))
	for _, b := range d.buildings {
		buildings = append(buildings, *b)
	}
	sortBuildings(buildings)
	return buildings, nil
}

func (d *memData) ListBuildingsByUser(_ context.Context, userID string) ([]model.Building, error) {
	var buildings []model.Building
	for _, b := range d.buildings {
		if b.UserID == userID {
			buildings = append(buildings, *b)
		}
	}
	sortBuildings(buildings)
	return buildings, nil
}

func sortBuildings(b []model.Building) {
	sort.Slice(b, func(i, j int) bool {
		if !b[i].CreatedAt.Equal(b[j].CreatedAt) {
			return b[i].CreatedAt.Before(b[j].CreatedAt)
		}
		return b[i].ID < b[j].ID
	})
}

func (d *memData) UpdateAccrual(_ context.Context, buildingID string, a model.Accrual) error {
	b, ok := d.buildings[buildingID]
	if !ok {
		return notFound("building", buildingID)
	}
	b.Accrual = a
	return nil
}

// --- Sales ---

func (d *memData) CreateSale(_ context.Context, s *model.Sale) error {
	copy := *s
	d.sales[s.ID] = &copy
	return nil
}

func (d *memData) GetSale(_ context.Context, id string) (*model.Sale, error) {
	s, ok := d.sales[id]
	if !ok {
		return nil, notFound("sale", id)
	}
	copy := *s
	return &copy, nil
}

func (d *memData) UpdateSale(_ context.Context, s *model.Sale) error {
	if _, ok := d.sales[s.ID]; !ok {
		return notFound("sale", s.ID)
	}
	copy := *s
	d.sales[s.ID] = &copy
	return nil
}

func (d *memData) ListActiveSales(_ context.Context) ([]model.Sale, error) {
	var sales []model.Sale
	for _, s := range d.sales {
		if s.Status == model.StatusActive {
			sales = append(sales, *s)
		}
	}
	sort.Slice(sales, func(i, j int) bool { return sales[i].CreatedAt.After(sales[j].CreatedAt) })
	return sales, nil
}

// --- Auctions ---

func (d *memData) CreateAuction(_ context.Context, a *model.Auction) error {
	copy := *a
	d.auctions[a.ID] = &copy
	return nil
}

func (d *memData) GetAuction(_ context.Context, id string) (*model.Auction, error) {
	a, ok := d.auctions[id]
	if !ok {
		return nil, notFound("auction", id)
	}
	copy := *a
	return &copy, nil
}

func (d *memData) UpdateAuction(_ context.Context, a *model.Auction) error {
	existing, ok := d.auctions[a.ID]
	if !ok {
		return notFound("auction", a.ID)
	}
	if existing.Version != a.Version {
		return ErrVersionConflict
	}
	a.Version++
	copy := *a
	d.auctions[a.ID] = &copy
	return nil
}

func (d *memData) ListActiveAuctions(_ context.Context) ([]model.Auction, error) {
	var auctions []model.Auction
	for _, a := range d.auctions {
		if a.Status == model.StatusActive {
			auctions = append(auctions, *a)
		}
	}
	sortAuctionsByEnd(auctions)
	return auctions, nil
}

func (d *memData) ListExpiredAuctions(_ context.Context, now time.Time) ([]model.Auction, error) {
	var auctions []model.Auction
	for _, a := range d.auctions {
		if a.Status == model.StatusActive && !a.EndTime.After(now) {
			auctions = append(auctions, *a)
		}
	}
	sortAuctionsByEnd(auctions)
	return auctions, nil
}

func sortAuctionsByEnd(a []model.Auction) {
	sort.Slice(a, func(i, j int) bool {
		if !a[i].EndTime.Equal(a[j].EndTime) {
			return a[i].EndTime.Before(a[j].EndTime)
		}
		return a[i].ID < a[j].ID
	})
}

func (d *memData) InsertBid(_ context.Context, b *model.Bid) error {
	d.bids[b.AuctionID] = append(d.bids[b.AuctionID], *b)
	return nil
}

func (d *memData) HighestBid(_ context.Context, auctionID string) (*model.Bid, error) {
	var best *model.Bid
	for i := range d.bids[auctionID] {
		b := d.bids[auctionID][i]
		if best == nil || b.Amount.GreaterThan(best.Amount) {
			best = &b
		}
	}
	if best == nil {
		return nil, notFound("bid for auction", auctionID)
	}
	return best, nil
}

func (d *memData) ListBids(_ context.Context, auctionID string) ([]model.Bid, error) {
	return append([]model.Bid(nil), d.bids[auctionID]...), nil
}

// --- Signals ---

func (d *memData) ArticleExists(_ context.Context, url string) (bool, error) {
	_, ok := d.articles[url]
	return ok, nil
}

func (d *memData) InsertArticle(_ context.Context, a *model.Article) error {
	if _, ok := d.articles[a.URL]; ok {
		return fmt.Errorf("article %s already exists", a.URL)
	}
	copy := *a
	d.articles[a.URL] = &copy
	return nil
}

func (d *memData) ListArticles(_ context.Context, regionID string, limit int) ([]model.Article, error) {
	var articles []model.Article
	for _, a := range d.articles {
		if a.RegionID == regionID {
			articles = append(articles, *a)
		}
	}
	sort.Slice(articles, func(i, j int) bool { return articles[i].CreatedAt.After(articles[j].CreatedAt) })
	if limit > 0 && len(articles) > limit {
		articles = articles[:limit]
	}
	return articles, nil
}

func (d *memData) UpsertWaterQuality(_ context.Context, q *model.WaterQuality) error {
	copy := *q
	d.quality[q.RegionID] = &copy
	return nil
}

func (d *memData) GetWaterQuality(_ context.Context, regionID string) (*model.WaterQuality, error) {
	q, ok := d.quality[regionID]
	if !ok {
		return nil, notFound("water quality for region", regionID)
	}
	copy := *q
	return &copy, nil
}

func (d *memData) InsertCollectionEvent(_ context.Context, e *model.CollectionEvent) error {
	d.events = append(d.events, *e)
	return nil
}

// --- Missions ---

func (d *memData) CreateMission(_ context.Context, m *model.Mission) error {
	if _, ok := d.missions[m.ID]; ok {
		return fmt.Errorf("mission %s already exists", m.ID)
	}
	copy := *m
	d.missions[m.ID] = &copy
	return nil
}

func (d *memData) GetMission(_ context.Context, id string) (*model.Mission, error) {
	m, ok := d.missions[id]
	if !ok {
		return nil, notFound("mission", id)
	}
	copy := *m
	return &copy, nil
}

func (d *memData) ListMissions(_ context.Context) ([]model.Mission, error) {
	missions := make([]model.Mission, 0, len(d.missions))
	for _, m := range d.missions {
		missions = append(missions, *m)
	}
	sort.Slice(missions, func(i, j int) bool { return missions[i].ID < missions[j].ID })
	return missions, nil
}

func (d *memData) GetUserMission(_ context.Context, userID, missionID string) (*model.UserMission, error) {
	um, ok := d.completed[missionKey{userID, missionID}]
	if !ok {
		return nil, notFound("completion of mission "+missionID+" by", userID)
	}
	copy := *um
	return &copy, nil
}

func (d *memData) InsertUserMission(_ context.Context, um *model.UserMission) error {
	k := missionKey{um.UserID, um.MissionID}
	if _, ok := d.completed[k]; ok {
		return fmt.Errorf("%w: user %s already completed mission %s", model.ErrInvalidState, um.UserID, um.MissionID)
	}
	copy := *um
	d.completed[k] = &copy
	return nil
}
