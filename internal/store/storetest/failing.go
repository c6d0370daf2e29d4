// Package storetest provides store wrappers for exercising failure paths in
// sweeps and services.
package storetest

import (
	"context"
	"errors"
	"fmt"

	"github.com/tidewater/ocean-engine/internal/model"
	"github.com/tidewater/ocean-engine/internal/store"
)

// ErrInjected is the cause wrapped into every failure a FailingStore returns.
var ErrInjected = errors.New("injected failure")

// FailingStore wraps a Store and fails every region, auction and building
// lookup for one ID, both outside and inside transactions. List methods pass
// through, so sweeps still see the failing row.
type FailingStore struct {
	store.Store
	ID string
}

// Failing wraps st so that lookups of id fail with ErrInjected.
func Failing(st store.Store, id string) *FailingStore {
	return &FailingStore{Store: st, ID: id}
}

func (s *FailingStore) fail(kind, id string) error {
	if id == s.ID {
		return fmt.Errorf("%w: %s %s", ErrInjected, kind, id)
	}
	return nil
}

func (s *FailingStore) GetRegion(ctx context.Context, id string) (*model.Region, error) {
	if err := s.fail("region", id); err != nil {
		return nil, err
	}
	return s.Store.GetRegion(ctx, id)
}

func (s *FailingStore) GetAuction(ctx context.Context, id string) (*model.Auction, error) {
	if err := s.fail("auction", id); err != nil {
		return nil, err
	}
	return s.Store.GetAuction(ctx, id)
}

func (s *FailingStore) InTx(ctx context.Context, fn func(tx store.Repository) error) error {
	return s.Store.InTx(ctx, func(tx store.Repository) error {
		return fn(&failingRepo{Repository: tx, s: s})
	})
}

type failingRepo struct {
	store.Repository
	s *FailingStore
}

func (r *failingRepo) GetRegion(ctx context.Context, id string) (*model.Region, error) {
	if err := r.s.fail("region", id); err != nil {
		return nil, err
	}
	return r.Repository.GetRegion(ctx, id)
}

func (r *failingRepo) GetAuction(ctx context.Context, id string) (*model.Auction, error) {
	if err := r.s.fail("auction", id); err != nil {
		return nil, err
	}
	return r.Repository.GetAuction(ctx, id)
}

func (r *failingRepo) GetBuilding(ctx context.Context, id string) (*model.Building, error) {
	if err := r.s.fail("building", id); err != nil {
		return nil, err
	}
	return r.Repository.GetBuilding(ctx, id)
}
