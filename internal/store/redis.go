package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/tidewater/ocean-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache for region price state. Transactions go to the primary store and
// invalidate the keys of every region they touched once they commit; reads
// check Redis first then fall back to the primary.
//
// A read that misses the cache can race a commit: it loads the pre-commit row,
// the commit invalidates the key, and the read then caches the old row. gen
// counts commits that invalidated keys; a fill that observes a new generation
// deletes what it just wrote. The guard covers writers in this process only.
// Commits made by other processes are bounded by the TTL.
type CachedStore struct {
	Store
	rdb *redis.Client
	ttl time.Duration
	gen atomic.Uint64
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		Store: primary,
		rdb:   rdb,
		ttl:   ttl,
	}
}

// --- Write path (write to primary, invalidate after commit) ---

func (s *CachedStore) InTx(ctx context.Context, fn func(tx Repository) error) error {
	touched := make(map[string]struct{})
	err := s.Store.InTx(ctx, func(tx Repository) error {
		clear(touched)
		return fn(&invalidatingRepo{Repository: tx, touched: touched})
	})
	if err != nil {
		return err
	}
	if len(touched) > 0 {
		s.gen.Add(1)
	}
	for id := range touched {
		if err := s.rdb.Del(ctx, regionKey(id), historyKey(id)).Err(); err != nil {
			slog.Warn("cache invalidation failed", "region_id", id, "error", err)
		}
	}
	return nil
}

// invalidatingRepo records which regions a transaction modified.
type invalidatingRepo struct {
	Repository
	touched map[string]struct{}
}

func (r *invalidatingRepo) UpdateRegionPrice(ctx context.Context, id string, price decimal.Decimal, at time.Time) error {
	r.touched[id] = struct{}{}
	return r.Repository.UpdateRegionPrice(ctx, id, price, at)
}

func (r *invalidatingRepo) UpdateAvailableShares(ctx context.Context, id string, available int64) error {
	r.touched[id] = struct{}{}
	return r.Repository.UpdateAvailableShares(ctx, id, available)
}

func (r *invalidatingRepo) IncrementCollectionCount(ctx context.Context, id string) (int64, error) {
	r.touched[id] = struct{}{}
	return r.Repository.IncrementCollectionCount(ctx, id)
}

func (r *invalidatingRepo) InsertPriceHistory(ctx context.Context, e *model.PriceHistoryEntry) error {
	r.touched[e.RegionID] = struct{}{}
	return r.Repository.InsertPriceHistory(ctx, e)
}

func (r *invalidatingRepo) PrunePriceHistory(ctx context.Context, regionID string, keep int) error {
	r.touched[regionID] = struct{}{}
	return r.Repository.PrunePriceHistory(ctx, regionID, keep)
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetRegion(ctx context.Context, id string) (*model.Region, error) {
	data, err := s.rdb.Get(ctx, regionKey(id)).Bytes()
	if err == nil {
		var r model.Region
		if json.Unmarshal(data, &r) == nil {
			return &r, nil
		}
	}

	// Cache miss: read from primary.
	gen := s.gen.Load()
	r, err := s.Store.GetRegion(ctx, id)
	if err != nil {
		return nil, err
	}
	s.fill(ctx, regionKey(id), r, gen)
	return r, nil
}

func (s *CachedStore) ListPriceHistory(ctx context.Context, regionID string) ([]model.PriceHistoryEntry, error) {
	data, err := s.rdb.Get(ctx, historyKey(regionID)).Bytes()
	if err == nil {
		var entries []model.PriceHistoryEntry
		if json.Unmarshal(data, &entries) == nil {
			return entries, nil
		}
	}

	gen := s.gen.Load()
	entries, err := s.Store.ListPriceHistory(ctx, regionID)
	if err != nil {
		return nil, err
	}
	s.fill(ctx, historyKey(regionID), entries, gen)
	return entries, nil
}

// --- Cache helpers ---

// fill caches v, read from the primary while the generation was gen. If a
// commit invalidated keys since then, v may predate it and is dropped again.
func (s *CachedStore) fill(ctx context.Context, key string, v any, gen uint64) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := s.rdb.Set(ctx, key, data, s.ttl).Err(); err != nil {
		return
	}
	if s.gen.Load() != gen {
		s.rdb.Del(ctx, key)
	}
}

func regionKey(id string) string  { return fmt.Sprintf("region:%s", id) }
func historyKey(id string) string { return fmt.Sprintf("history:%s", id) }
