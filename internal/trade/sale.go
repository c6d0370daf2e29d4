package trade

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/tidewater/ocean-engine/internal/broadcast"
	"github.com/tidewater/ocean-engine/internal/metrics"
	"github.com/tidewater/ocean-engine/internal/model"
	"github.com/tidewater/ocean-engine/internal/store"
)

// RegisterSale lists shares at the region's current price per share and
// escrows them out of the seller's ownership.
func (s *Service) RegisterSale(ctx context.Context, regionID, sellerID string, shares int64) (*model.Sale, error) {
	if err := positiveShares(shares); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	var sale *model.Sale
	err := s.store.InTx(ctx, func(tx store.Repository) error {
		r, err := tx.GetRegion(ctx, regionID)
		if err != nil {
			return err
		}
		if _, err := tx.AddShares(ctx, sellerID, regionID, -shares, now); err != nil {
			return err
		}
		sale = &model.Sale{
			ID:        uuid.New().String(),
			RegionID:  regionID,
			SellerID:  sellerID,
			Shares:    shares,
			Price:     r.CurrentPrice,
			Status:    model.StatusActive,
			CreatedAt: now,
		}
		return tx.CreateSale(ctx, sale)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("sale registered",
		"sale_id", sale.ID,
		"region_id", regionID,
		"seller", sellerID,
		"shares", shares,
		"price", sale.Price.String(),
	)
	return sale, nil
}

// PurchaseFromSale buys a whole listing: the buyer pays shares * price to the
// seller and receives the escrowed shares.
func (s *Service) PurchaseFromSale(ctx context.Context, saleID, buyerID string) (*model.Sale, error) {
	now := s.clock.Now()
	var sale *model.Sale
	err := s.store.InTx(ctx, func(tx store.Repository) error {
		var err error
		sale, err = tx.GetSale(ctx, saleID)
		if err != nil {
			return err
		}
		if sale.Status != model.StatusActive {
			return fmt.Errorf("%w: sale %s is %s", model.ErrInvalidState, saleID, sale.Status)
		}
		if sale.SellerID == buyerID {
			return fmt.Errorf("%w: seller cannot buy own listing", model.ErrInvalidState)
		}

		total := sale.Total()
		if err := tx.Debit(ctx, buyerID, total); err != nil {
			return err
		}
		if err := tx.Credit(ctx, sale.SellerID, total); err != nil {
			return err
		}
		if _, err := tx.AddShares(ctx, buyerID, sale.RegionID, sale.Shares, now); err != nil {
			return err
		}

		closed := now
		sale.Status = model.StatusSold
		sale.BuyerID = buyerID
		sale.ClosedAt = &closed
		return tx.UpdateSale(ctx, sale)
	})
	if err != nil {
		return nil, err
	}

	metrics.SalesCompleted.Inc()
	s.log.Info("sale purchased",
		"sale_id", saleID,
		"region_id", sale.RegionID,
		"buyer", buyerID,
		"total", sale.Total().String(),
	)
	s.hub.Broadcast(broadcast.Message{
		Type:     broadcast.TypeSaleSold,
		RegionID: sale.RegionID,
		SaleID:   saleID,
		Price:    sale.Price.String(),
		Status:   string(sale.Status),
		UserID:   buyerID,
	})
	return sale, nil
}

// CancelSale withdraws an ACTIVE listing and returns its shares to the
// seller. Only the seller may cancel.
func (s *Service) CancelSale(ctx context.Context, saleID, callerID string) (*model.Sale, error) {
	now := s.clock.Now()
	var sale *model.Sale
	err := s.store.InTx(ctx, func(tx store.Repository) error {
		var err error
		sale, err = tx.GetSale(ctx, saleID)
		if err != nil {
			return err
		}
		if sale.SellerID != callerID {
			return fmt.Errorf("%w: only the seller can cancel sale %s", model.ErrInvalidState, saleID)
		}
		if sale.Status != model.StatusActive {
			return fmt.Errorf("%w: sale %s is %s", model.ErrInvalidState, saleID, sale.Status)
		}
		if _, err := tx.AddShares(ctx, sale.SellerID, sale.RegionID, sale.Shares, now); err != nil {
			return err
		}
		closed := now
		sale.Status = model.StatusCancelled
		sale.ClosedAt = &closed
		return tx.UpdateSale(ctx, sale)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("sale cancelled", "sale_id", saleID, "seller", callerID)
	return sale, nil
}

// ActiveSales lists open fixed-price listings, newest first.
func (s *Service) ActiveSales(ctx context.Context) ([]model.Sale, error) {
	return s.store.ListActiveSales(ctx)
}
