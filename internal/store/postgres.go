package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/tidewater/ocean-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
//
// The embedded repository runs each statement on the pool; InTx hands fn a
// repository bound to a READ COMMITTED transaction whose reads take row locks.
type PostgresStore struct {
	*pgRepo
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pgRepo: &pgRepo{q: pool}, pool: pool}
}

func (s *PostgresStore) InTx(ctx context.Context, fn func(tx Repository) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&pgRepo{q: tx, lock: true}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type pgRepo struct {
	q    querier
	lock bool
}

type scanner interface {
	Scan(dest ...any) error
}

func (r *pgRepo) forUpdate() string {
	if r.lock {
		return " FOR UPDATE"
	}
	return ""
}

func dec(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}

func noRows(err error, kind, id string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return notFound(kind, id)
	}
	return fmt.Errorf("get %s %s: %w", kind, id, err)
}

// --- Regions ---

const regionColumns = `id, name, province, district, lat, lon,
	base_price::TEXT, current_price::TEXT,
	total_shares, available_shares, collection_count, created_at, updated_at`

func scanRegion(row scanner) (model.Region, error) {
	var reg model.Region
	var base, current string
	err := row.Scan(&reg.ID, &reg.Name, &reg.Province, &reg.District, &reg.Lat, &reg.Lon,
		&base, &current,
		&reg.TotalShares, &reg.AvailableShares, &reg.CollectionCount, &reg.CreatedAt, &reg.UpdatedAt)
	reg.BasePrice = dec(base)
	reg.CurrentPrice = dec(current)
	return reg, err
}

func (r *pgRepo) CreateRegion(ctx context.Context, reg *model.Region) error {
	_, err := r.q.Exec(ctx,
		`INSERT INTO regions (id, name, province, district, lat, lon, base_price, current_price,
		                      total_shares, available_shares, collection_count, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7::NUMERIC, $8::NUMERIC, $9, $10, $11, $12, $13)`,
		reg.ID, reg.Name, reg.Province, reg.District, reg.Lat, reg.Lon,
		reg.BasePrice.String(), reg.CurrentPrice.String(),
		reg.TotalShares, reg.AvailableShares, reg.CollectionCount, reg.CreatedAt, reg.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create region %s: %w", reg.ID, err)
	}
	return nil
}

func (r *pgRepo) GetRegion(ctx context.Context, id string) (*model.Region, error) {
	reg, err := scanRegion(r.q.QueryRow(ctx,
		`SELECT `+regionColumns+` FROM regions WHERE id = $1`+r.forUpdate(), id))
	if err != nil {
		return nil, noRows(err, "region", id)
	}
	return &reg, nil
}

func (r *pgRepo) ListRegions(ctx context.Context) ([]model.Region, error) {
	rows, err := r.q.Query(ctx, `SELECT `+regionColumns+` FROM regions ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var regions []model.Region
	for rows.Next() {
		reg, err := scanRegion(rows)
		if err != nil {
			return nil, err
		}
		regions = append(regions, reg)
	}
	return regions, rows.Err()
}

func (r *pgRepo) UpdateRegionPrice(ctx context.Context, id string, price decimal.Decimal, at time.Time) error {
	tag, err := r.q.Exec(ctx,
		`UPDATE regions SET current_price = $2::NUMERIC, updated_at = $3 WHERE id = $1`,
		id, price.String(), at)
	if err != nil {
		return fmt.Errorf("update region price %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("region", id)
	}
	return nil
}

func (r *pgRepo) UpdateAvailableShares(ctx context.Context, id string, available int64) error {
	tag, err := r.q.Exec(ctx,
		`UPDATE regions SET available_shares = $2 WHERE id = $1 AND $2 BETWEEN 0 AND total_shares`,
		id, available)
	if err != nil {
		return fmt.Errorf("update available shares %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetRegion(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("%w: available shares %d out of range for region %s", model.ErrInsufficientShares, available, id)
	}
	return nil
}

func (r *pgRepo) IncrementCollectionCount(ctx context.Context, id string) (int64, error) {
	var n int64
	err := r.q.QueryRow(ctx,
		`UPDATE regions SET collection_count = collection_count + 1 WHERE id = $1 RETURNING collection_count`,
		id).Scan(&n)
	if err != nil {
		return 0, noRows(err, "region", id)
	}
	return n, nil
}

// --- Price history ---

func (r *pgRepo) InsertPriceHistory(ctx context.Context, e *model.PriceHistoryEntry) error {
	err := r.q.QueryRow(ctx,
		`INSERT INTO price_history (region_id, price, recorded_at)
		 VALUES ($1, $2::NUMERIC, $3) RETURNING id`,
		e.RegionID, e.Price.String(), e.RecordedAt).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("insert price history %s: %w", e.RegionID, err)
	}
	return nil
}

func (r *pgRepo) PrunePriceHistory(ctx context.Context, regionID string, keep int) error {
	_, err := r.q.Exec(ctx,
		`DELETE FROM price_history
		 WHERE region_id = $1 AND id NOT IN (
		     SELECT id FROM price_history WHERE region_id = $1
		     ORDER BY recorded_at DESC, id DESC LIMIT $2)`,
		regionID, keep)
	if err != nil {
		return fmt.Errorf("prune price history %s: %w", regionID, err)
	}
	return nil
}

func (r *pgRepo) ListPriceHistory(ctx context.Context, regionID string) ([]model.PriceHistoryEntry, error) {
	rows, err := r.q.Query(ctx,
		`SELECT id, region_id, price::TEXT, recorded_at FROM price_history
		 WHERE region_id = $1 ORDER BY recorded_at DESC, id DESC`, regionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.PriceHistoryEntry
	for rows.Next() {
		var e model.PriceHistoryEntry
		var price string
		if err := rows.Scan(&e.ID, &e.RegionID, &price, &e.RecordedAt); err != nil {
			return nil, err
		}
		e.Price = dec(price)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// --- Ledger ---

func (r *pgRepo) CreateAccount(ctx context.Context, a *model.Account) error {
	_, err := r.q.Exec(ctx,
		`INSERT INTO accounts (user_id, balance, created_at) VALUES ($1, $2::NUMERIC, $3)`,
		a.UserID, a.Balance.String(), a.CreatedAt)
	if err != nil {
		return fmt.Errorf("create account %s: %w", a.UserID, err)
	}
	return nil
}

func (r *pgRepo) GetAccount(ctx context.Context, userID string) (*model.Account, error) {
	var a model.Account
	var balance string
	err := r.q.QueryRow(ctx,
		`SELECT user_id, balance::TEXT, created_at FROM accounts WHERE user_id = $1`+r.forUpdate(),
		userID).Scan(&a.UserID, &balance, &a.CreatedAt)
	if err != nil {
		return nil, noRows(err, "account", userID)
	}
	a.Balance = dec(balance)
	return &a, nil
}

func (r *pgRepo) Debit(ctx context.Context, userID string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("debit amount must not be negative, got %s", amount)
	}
	tag, err := r.q.Exec(ctx,
		`UPDATE accounts SET balance = balance - $2::NUMERIC
		 WHERE user_id = $1 AND balance >= $2::NUMERIC`,
		userID, amount.String())
	if err != nil {
		return fmt.Errorf("debit %s: %w", userID, err)
	}
	if tag.RowsAffected() == 0 {
		a, err := r.GetAccount(ctx, userID)
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: %s has %s, needs %s", model.ErrInsufficientFunds, userID, a.Balance, amount)
	}
	return nil
}

func (r *pgRepo) Credit(ctx context.Context, userID string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("credit amount must not be negative, got %s", amount)
	}
	tag, err := r.q.Exec(ctx,
		`UPDATE accounts SET balance = balance + $2::NUMERIC WHERE user_id = $1`,
		userID, amount.String())
	if err != nil {
		return fmt.Errorf("credit %s: %w", userID, err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("account", userID)
	}
	return nil
}

// --- Ownership ---

func (r *pgRepo) GetOwnership(ctx context.Context, userID, regionID string) (*model.Ownership, error) {
	var o model.Ownership
	err := r.q.QueryRow(ctx,
		`SELECT user_id, region_id, shares, acquired_at FROM ownerships
		 WHERE user_id = $1 AND region_id = $2`+r.forUpdate(),
		userID, regionID).Scan(&o.UserID, &o.RegionID, &o.Shares, &o.AcquiredAt)
	if err != nil {
		return nil, noRows(err, "ownership", userID+"/"+regionID)
	}
	return &o, nil
}

func (r *pgRepo) AddShares(ctx context.Context, userID, regionID string, delta int64, at time.Time) (*model.Ownership, error) {
	o := model.Ownership{UserID: userID, RegionID: regionID}
	var err error
	if delta >= 0 {
		err = r.q.QueryRow(ctx,
			`INSERT INTO ownerships (user_id, region_id, shares, acquired_at) VALUES ($1, $2, $3, $4)
			 ON CONFLICT (user_id, region_id) DO UPDATE SET shares = ownerships.shares + EXCLUDED.shares
			 RETURNING shares, acquired_at`,
			userID, regionID, delta, at).Scan(&o.Shares, &o.AcquiredAt)
	} else {
		err = r.q.QueryRow(ctx,
			`UPDATE ownerships SET shares = shares + $3
			 WHERE user_id = $1 AND region_id = $2 AND shares + $3 >= 0
			 RETURNING shares, acquired_at`,
			userID, regionID, delta).Scan(&o.Shares, &o.AcquiredAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s cannot release %d shares of %s", model.ErrInsufficientShares, userID, -delta, regionID)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("add shares %s/%s: %w", userID, regionID, err)
	}
	return &o, nil
}

func (r *pgRepo) ListOwnerships(ctx context.Context, userID string) ([]model.Ownership, error) {
	rows, err := r.q.Query(ctx,
		`SELECT user_id, region_id, shares, acquired_at FROM ownerships
		 WHERE user_id = $1 AND shares > 0 ORDER BY region_id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []model.Ownership
	for rows.Next() {
		var o model.Ownership
		if err := rows.Scan(&o.UserID, &o.RegionID, &o.Shares, &o.AcquiredAt); err != nil {
			return nil, err
		}
		result = append(result, o)
	}
	return result, rows.Err()
}

// --- Buildings ---

const buildingColumns = `id, region_id, user_id, kind, income_rate::TEXT, accrual_phase, last_tick, created_at`

func scanBuilding(row scanner) (model.Building, error) {
	var b model.Building
	var rate string
	var lastTick *time.Time
	err := row.Scan(&b.ID, &b.RegionID, &b.UserID, &b.Kind, &rate, &b.Accrual.Phase, &lastTick, &b.CreatedAt)
	b.IncomeRate = dec(rate)
	if lastTick != nil {
		b.Accrual.LastTick = lastTick.UTC()
	}
	return b, err
}

func (r *pgRepo) CreateBuilding(ctx context.Context, b *model.Building) error {
	_, err := r.q.Exec(ctx,
		`INSERT INTO buildings (id, region_id, user_id, kind, income_rate, accrual_phase, last_tick, created_at)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6, $7, $8)`,
		b.ID, b.RegionID, b.UserID, b.Kind, b.IncomeRate.String(),
		b.Accrual.Phase, lastTickArg(b.Accrual), b.CreatedAt)
	if err != nil {
		return fmt.Errorf("create building %s: %w", b.ID, err)
	}
	return nil
}

func lastTickArg(a model.Accrual) *time.Time {
	if !a.Initialized() {
		return nil
	}
	t := a.LastTick
	return &t
}

func (r *pgRepo) GetBuilding(ctx context.Context, id string) (*model.Building, error) {
	b, err := scanBuilding(r.q.QueryRow(ctx,
		`SELECT `+buildingColumns+` FROM buildings WHERE id = $1`+r.forUpdate(), id))
	if err != nil {
		return nil, noRows(err, "building", id)
	}
	return &b, nil
}

func (r *pgRepo) listBuildings(ctx context.Context, where string, args ...any) ([]model.Building, error) {
	rows, err := r.q.Query(ctx,
		`SELECT `+buildingColumns+` FROM buildings `+where+` ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var buildings []model.Building
	for rows.Next() {
		b, err := scanBuilding(rows)
		if err != nil {
			return nil, err
		}
		buildings = append(buildings, b)
	}
	return buildings, rows.Err()
}

func (r *pgRepo) ListBuildings(ctx context.Context) ([]model.Building, error) {
	return r.listBuildings(ctx, "")
}

func (r *pgRepo) ListBuildingsByUser(ctx context.Context, userID string) ([]model.Building, error) {
	return r.listBuildings(ctx, "WHERE user_id = $1", userID)
}

func (r *pgRepo) UpdateAccrual(ctx context.Context, buildingID string, a model.Accrual) error {
	tag, err := r.q.Exec(ctx,
		`UPDATE buildings SET accrual_phase = $2, last_tick = $3 WHERE id = $1`,
		buildingID, a.Phase, lastTickArg(a))
	if err != nil {
		return fmt.Errorf("update accrual %s: %w", buildingID, err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("building", buildingID)
	}
	return nil
}

// --- Sales ---

const saleColumns = `id, region_id, seller_id, shares, price::TEXT, status, COALESCE(buyer_id, ''), created_at, closed_at`

func scanSale(row scanner) (model.Sale, error) {
	var s model.Sale
	var price string
	err := row.Scan(&s.ID, &s.RegionID, &s.SellerID, &s.Shares, &price, &s.Status, &s.BuyerID, &s.CreatedAt, &s.ClosedAt)
	s.Price = dec(price)
	return s, err
}

func (r *pgRepo) CreateSale(ctx context.Context, s *model.Sale) error {
	_, err := r.q.Exec(ctx,
		`INSERT INTO sales (id, region_id, seller_id, shares, price, status, buyer_id, created_at, closed_at)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6, NULLIF($7, ''), $8, $9)`,
		s.ID, s.RegionID, s.SellerID, s.Shares, s.Price.String(), s.Status, s.BuyerID, s.CreatedAt, s.ClosedAt)
	if err != nil {
		return fmt.Errorf("create sale %s: %w", s.ID, err)
	}
	return nil
}

func (r *pgRepo) GetSale(ctx context.Context, id string) (*model.Sale, error) {
	s, err := scanSale(r.q.QueryRow(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1`+r.forUpdate(), id))
	if err != nil {
		return nil, noRows(err, "sale", id)
	}
	return &s, nil
}

func (r *pgRepo) UpdateSale(ctx context.Context, s *model.Sale) error {
	tag, err := r.q.Exec(ctx,
		`UPDATE sales SET status = $2, buyer_id = NULLIF($3, ''), closed_at = $4 WHERE id = $1`,
		s.ID, s.Status, s.BuyerID, s.ClosedAt)
	if err != nil {
		return fmt.Errorf("update sale %s: %w", s.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("sale", s.ID)
	}
	return nil
}

func (r *pgRepo) ListActiveSales(ctx context.Context) ([]model.Sale, error) {
	rows, err := r.q.Query(ctx,
		`SELECT `+saleColumns+` FROM sales WHERE status = 'ACTIVE' ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sales []model.Sale
	for rows.Next() {
		s, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, s)
	}
	return sales, rows.Err()
}

// --- Auctions ---

const auctionColumns = `id, region_id, seller_id, shares, starting_price::TEXT, current_price::TEXT,
	status, end_time, COALESCE(winner_id, ''), created_at, ended_at, version`

func scanAuction(row scanner) (model.Auction, error) {
	var a model.Auction
	var starting, current string
	err := row.Scan(&a.ID, &a.RegionID, &a.SellerID, &a.Shares, &starting, &current,
		&a.Status, &a.EndTime, &a.WinnerID, &a.CreatedAt, &a.EndedAt, &a.Version)
	a.StartingPrice = dec(starting)
	a.CurrentPrice = dec(current)
	return a, err
}

func (r *pgRepo) CreateAuction(ctx context.Context, a *model.Auction) error {
	_, err := r.q.Exec(ctx,
		`INSERT INTO auctions (id, region_id, seller_id, shares, starting_price, current_price,
		                       status, end_time, winner_id, created_at, ended_at, version)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6::NUMERIC, $7, $8, NULLIF($9, ''), $10, $11, $12)`,
		a.ID, a.RegionID, a.SellerID, a.Shares, a.StartingPrice.String(), a.CurrentPrice.String(),
		a.Status, a.EndTime, a.WinnerID, a.CreatedAt, a.EndedAt, a.Version)
	if err != nil {
		return fmt.Errorf("create auction %s: %w", a.ID, err)
	}
	return nil
}

func (r *pgRepo) GetAuction(ctx context.Context, id string) (*model.Auction, error) {
	a, err := scanAuction(r.q.QueryRow(ctx, `SELECT `+auctionColumns+` FROM auctions WHERE id = $1`+r.forUpdate(), id))
	if err != nil {
		return nil, noRows(err, "auction", id)
	}
	return &a, nil
}

func (r *pgRepo) UpdateAuction(ctx context.Context, a *model.Auction) error {
	tag, err := r.q.Exec(ctx,
		`UPDATE auctions
		 SET current_price = $3::NUMERIC, status = $4, winner_id = NULLIF($5, ''), ended_at = $6,
		     version = version + 1
		 WHERE id = $1 AND version = $2`,
		a.ID, a.Version, a.CurrentPrice.String(), a.Status, a.WinnerID, a.EndedAt)
	if err != nil {
		return fmt.Errorf("update auction %s: %w", a.ID, err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetAuction(ctx, a.ID); err != nil {
			return err
		}
		return ErrVersionConflict
	}
	a.Version++
	return nil
}

func (r *pgRepo) listAuctions(ctx context.Context, where string, args ...any) ([]model.Auction, error) {
	rows, err := r.q.Query(ctx,
		`SELECT `+auctionColumns+` FROM auctions `+where+` ORDER BY end_time, id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var auctions []model.Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, err
		}
		auctions = append(auctions, a)
	}
	return auctions, rows.Err()
}

func (r *pgRepo) ListActiveAuctions(ctx context.Context) ([]model.Auction, error) {
	return r.listAuctions(ctx, `WHERE status = 'ACTIVE'`)
}

func (r *pgRepo) ListExpiredAuctions(ctx context.Context, now time.Time) ([]model.Auction, error) {
	return r.listAuctions(ctx, `WHERE status = 'ACTIVE' AND end_time <= $1`, now)
}

func (r *pgRepo) InsertBid(ctx context.Context, b *model.Bid) error {
	_, err := r.q.Exec(ctx,
		`INSERT INTO bids (id, auction_id, bidder_id, amount, created_at) VALUES ($1, $2, $3, $4::NUMERIC, $5)`,
		b.ID, b.AuctionID, b.BidderID, b.Amount.String(), b.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert bid %s: %w", b.ID, err)
	}
	return nil
}

func scanBid(row scanner) (model.Bid, error) {
	var b model.Bid
	var amount string
	err := row.Scan(&b.ID, &b.AuctionID, &b.BidderID, &amount, &b.CreatedAt)
	b.Amount = dec(amount)
	return b, err
}

func (r *pgRepo) HighestBid(ctx context.Context, auctionID string) (*model.Bid, error) {
	b, err := scanBid(r.q.QueryRow(ctx,
		`SELECT id, auction_id, bidder_id, amount::TEXT, created_at FROM bids
		 WHERE auction_id = $1 ORDER BY amount DESC, seq ASC LIMIT 1`, auctionID))
	if err != nil {
		return nil, noRows(err, "bid for auction", auctionID)
	}
	return &b, nil
}

func (r *pgRepo) ListBids(ctx context.Context, auctionID string) ([]model.Bid, error) {
	rows, err := r.q.Query(ctx,
		`SELECT id, auction_id, bidder_id, amount::TEXT, created_at FROM bids
		 WHERE auction_id = $1 ORDER BY seq`, auctionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bids []model.Bid
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, err
		}
		bids = append(bids, b)
	}
	return bids, rows.Err()
}

// --- Signals ---

func (r *pgRepo) ArticleExists(ctx context.Context, url string) (bool, error) {
	var exists bool
	err := r.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM articles WHERE url = $1)`, url).Scan(&exists)
	return exists, err
}

func (r *pgRepo) InsertArticle(ctx context.Context, a *model.Article) error {
	_, err := r.q.Exec(ctx,
		`INSERT INTO articles (url, region_id, region_name, title, sentiment, price_change, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7)`,
		a.URL, a.RegionID, a.RegionName, a.Title, a.Sentiment, a.PriceChange.String(), a.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert article %s: %w", a.URL, err)
	}
	return nil
}

func (r *pgRepo) ListArticles(ctx context.Context, regionID string, limit int) ([]model.Article, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.q.Query(ctx,
		`SELECT url, region_id, region_name, title, sentiment, price_change::TEXT, created_at
		 FROM articles WHERE region_id = $1 ORDER BY created_at DESC LIMIT $2`, regionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var articles []model.Article
	for rows.Next() {
		var a model.Article
		var change string
		if err := rows.Scan(&a.URL, &a.RegionID, &a.RegionName, &a.Title, &a.Sentiment, &change, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.PriceChange = dec(change)
		articles = append(articles, a)
	}
	return articles, rows.Err()
}

// Water quality snapshots are stored as a JSONB document per region.
func (r *pgRepo) UpsertWaterQuality(ctx context.Context, q *model.WaterQuality) error {
	doc, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("encode water quality %s: %w", q.RegionID, err)
	}
	_, err = r.q.Exec(ctx,
		`INSERT INTO water_quality (region_id, snapshot, measured_at) VALUES ($1, $2, $3)
		 ON CONFLICT (region_id) DO UPDATE SET snapshot = EXCLUDED.snapshot, measured_at = EXCLUDED.measured_at`,
		q.RegionID, doc, q.MeasuredAt)
	if err != nil {
		return fmt.Errorf("upsert water quality %s: %w", q.RegionID, err)
	}
	return nil
}

func (r *pgRepo) GetWaterQuality(ctx context.Context, regionID string) (*model.WaterQuality, error) {
	var doc []byte
	err := r.q.QueryRow(ctx, `SELECT snapshot FROM water_quality WHERE region_id = $1`, regionID).Scan(&doc)
	if err != nil {
		return nil, noRows(err, "water quality for region", regionID)
	}
	var q model.WaterQuality
	if err := json.Unmarshal(doc, &q); err != nil {
		return nil, fmt.Errorf("decode water quality %s: %w", regionID, err)
	}
	return &q, nil
}

func (r *pgRepo) InsertCollectionEvent(ctx context.Context, e *model.CollectionEvent) error {
	_, err := r.q.Exec(ctx,
		`INSERT INTO collection_events (id, user_id, region_id, reward, created_at)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5)`,
		e.ID, e.UserID, e.RegionID, e.Reward.String(), e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert collection event %s: %w", e.ID, err)
	}
	return nil
}

// --- Missions ---

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func (r *pgRepo) CreateMission(ctx context.Context, m *model.Mission) error {
	_, err := r.q.Exec(ctx,
		`INSERT INTO missions (id, todo, credits, kind, created_at) VALUES ($1, $2, $3::NUMERIC, $4, $5)`,
		m.ID, m.Todo, m.Credits.String(), m.Kind, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("create mission %s: %w", m.ID, err)
	}
	return nil
}

func scanMission(row scanner) (model.Mission, error) {
	var m model.Mission
	var credits string
	err := row.Scan(&m.ID, &m.Todo, &credits, &m.Kind, &m.CreatedAt)
	m.Credits = dec(credits)
	return m, err
}

func (r *pgRepo) GetMission(ctx context.Context, id string) (*model.Mission, error) {
	m, err := scanMission(r.q.QueryRow(ctx,
		`SELECT id, todo, credits::TEXT, kind, created_at FROM missions WHERE id = $1`, id))
	if err != nil {
		return nil, noRows(err, "mission", id)
	}
	return &m, nil
}

func (r *pgRepo) ListMissions(ctx context.Context) ([]model.Mission, error) {
	rows, err := r.q.Query(ctx, `SELECT id, todo, credits::TEXT, kind, created_at FROM missions ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var missions []model.Mission
	for rows.Next() {
		m, err := scanMission(rows)
		if err != nil {
			return nil, err
		}
		missions = append(missions, m)
	}
	return missions, rows.Err()
}

func (r *pgRepo) GetUserMission(ctx context.Context, userID, missionID string) (*model.UserMission, error) {
	var um model.UserMission
	var credits string
	err := r.q.QueryRow(ctx,
		`SELECT user_id, mission_id, credits::TEXT, completed_at FROM user_missions
		 WHERE user_id = $1 AND mission_id = $2`+r.forUpdate(), userID, missionID).
		Scan(&um.UserID, &um.MissionID, &credits, &um.CompletedAt)
	if err != nil {
		return nil, noRows(err, "completion of mission "+missionID+" by", userID)
	}
	um.Credits = dec(credits)
	return &um, nil
}

// The primary key makes the second of two racing completions fail here.
func (r *pgRepo) InsertUserMission(ctx context.Context, um *model.UserMission) error {
	_, err := r.q.Exec(ctx,
		`INSERT INTO user_missions (user_id, mission_id, credits, completed_at) VALUES ($1, $2, $3::NUMERIC, $4)`,
		um.UserID, um.MissionID, um.Credits.String(), um.CompletedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: user %s already completed mission %s", model.ErrInvalidState, um.UserID, um.MissionID)
	}
	if err != nil {
		return fmt.Errorf("insert user mission %s/%s: %w", um.UserID, um.MissionID, err)
	}
	return nil
}
