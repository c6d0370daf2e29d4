package trade

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tidewater/ocean-engine/internal/broadcast"
	"github.com/tidewater/ocean-engine/internal/metrics"
	"github.com/tidewater/ocean-engine/internal/model"
	"github.com/tidewater/ocean-engine/internal/store"
)

// RegisterAuction lists shares for a time-boxed English auction. The
// starting price is floor(price * shares * StartingFraction) and the shares
// leave the seller's ownership until the auction settles.
func (s *Service) RegisterAuction(ctx context.Context, regionID, sellerID string, shares int64) (*model.Auction, error) {
	if err := positiveShares(shares); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	var a *model.Auction
	err := s.store.InTx(ctx, func(tx store.Repository) error {
		r, err := tx.GetRegion(ctx, regionID)
		if err != nil {
			return err
		}
		starting := r.CurrentPrice.
			Mul(decimal.NewFromInt(shares)).
			Mul(s.auction.StartingFraction).
			Floor()

		// Escrow fails with ErrInsufficientShares when the seller holds fewer
		// than shares (or none at all).
		if _, err := tx.AddShares(ctx, sellerID, regionID, -shares, now); err != nil {
			return err
		}

		a = &model.Auction{
			ID:            uuid.New().String(),
			RegionID:      regionID,
			SellerID:      sellerID,
			Shares:        shares,
			StartingPrice: starting,
			CurrentPrice:  starting,
			Status:        model.StatusActive,
			EndTime:       now.Add(s.auction.Duration),
			CreatedAt:     now,
		}
		return tx.CreateAuction(ctx, a)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("auction registered",
		"auction_id", a.ID,
		"region_id", regionID,
		"seller", sellerID,
		"shares", shares,
		"starting_price", a.StartingPrice.String(),
		"end_time", a.EndTime,
	)
	return a, nil
}

// PlaceBid records a whole-credit bid strictly above the current price. The bidder must
// be able to cover the amount now, but no funds move until settlement.
func (s *Service) PlaceBid(ctx context.Context, auctionID, bidderID string, amount decimal.Decimal) (*model.Bid, error) {
	if !amount.IsPositive() || !amount.Equal(amount.Truncate(0)) {
		metrics.BidsTotal.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("%w: bid must be a positive whole number of credits, got %s", model.ErrInvalidArgument, amount)
	}

	now := s.clock.Now()
	var (
		bid *model.Bid
		a   *model.Auction
	)
	err := s.store.InTx(ctx, func(tx store.Repository) error {
		var err error
		a, err = tx.GetAuction(ctx, auctionID)
		if err != nil {
			return err
		}
		if a.Status != model.StatusActive {
			return fmt.Errorf("%w: auction %s is %s", model.ErrInvalidState, auctionID, a.Status)
		}
		if !now.Before(a.EndTime) {
			return fmt.Errorf("%w: auction %s ended at %s", model.ErrInvalidState, auctionID, a.EndTime.Format(time.RFC3339))
		}
		if bidderID == a.SellerID {
			return fmt.Errorf("%w: seller cannot bid on own auction", model.ErrInvalidState)
		}
		if !amount.GreaterThan(a.CurrentPrice) {
			return fmt.Errorf("%w: bid %s must exceed current price %s", model.ErrInvalidState, amount, a.CurrentPrice)
		}

		acct, err := tx.GetAccount(ctx, bidderID)
		if err != nil {
			return err
		}
		if acct.Balance.LessThan(amount) {
			return fmt.Errorf("%w: balance %s, bid %s", model.ErrInsufficientFunds, acct.Balance, amount)
		}

		bid = &model.Bid{
			ID:        uuid.New().String(),
			AuctionID: auctionID,
			BidderID:  bidderID,
			Amount:    amount,
			CreatedAt: now,
		}
		if err := tx.InsertBid(ctx, bid); err != nil {
			return err
		}
		a.CurrentPrice = amount
		return tx.UpdateAuction(ctx, a)
	})
	if err != nil {
		metrics.BidsTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}
	metrics.BidsTotal.WithLabelValues("accepted").Inc()

	s.log.Info("bid accepted",
		"auction_id", auctionID,
		"bidder", bidderID,
		"amount", amount.String(),
	)
	s.hub.Broadcast(broadcast.Message{
		Type:      broadcast.TypeBid,
		RegionID:  a.RegionID,
		AuctionID: auctionID,
		Price:     amount.String(),
		UserID:    bidderID,
	})
	return bid, nil
}

// Finalize lets the seller settle an ACTIVE auction before it expires.
func (s *Service) Finalize(ctx context.Context, auctionID, callerID string) (*model.Auction, error) {
	var a *model.Auction
	err := s.store.InTx(ctx, func(tx store.Repository) error {
		var err error
		a, err = tx.GetAuction(ctx, auctionID)
		if err != nil {
			return err
		}
		if a.SellerID != callerID {
			return fmt.Errorf("%w: only the seller can finalize auction %s", model.ErrInvalidState, auctionID)
		}
		if a.Status != model.StatusActive {
			return fmt.Errorf("%w: auction %s is already %s", model.ErrInvalidState, auctionID, a.Status)
		}
		return s.settle(ctx, tx, a, s.clock.Now())
	})
	if err != nil {
		return nil, err
	}
	s.announceSettlement(a)
	return a, nil
}

// SweepExpired settles every ACTIVE auction whose end time has passed. Each
// auction settles in its own transaction; failures are logged and joined.
func (s *Service) SweepExpired(ctx context.Context) error {
	now := s.clock.Now()
	expired, err := s.store.ListExpiredAuctions(ctx, now)
	if err != nil {
		return fmt.Errorf("list expired auctions: %w", err)
	}

	var errs []error
	settled := 0
	for _, candidate := range expired {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		var a *model.Auction
		err := s.store.InTx(ctx, func(tx store.Repository) error {
			var err error
			a, err = tx.GetAuction(ctx, candidate.ID)
			if err != nil {
				return err
			}
			// Settled by a concurrent finalize, or not due after all.
			if a.Status != model.StatusActive || a.EndTime.After(now) {
				a = nil
				return nil
			}
			return s.settle(ctx, tx, a, now)
		})
		if err != nil {
			s.log.Error("auction settlement failed", "auction_id", candidate.ID, "err", err)
			errs = append(errs, fmt.Errorf("auction %s: %w", candidate.ID, err))
			continue
		}
		if a != nil {
			s.announceSettlement(a)
			settled++
		}
	}

	if len(expired) > 0 {
		s.log.Info("auction sweep complete", "expired", len(expired), "settled", settled, "failed", len(errs))
	}
	return errors.Join(errs...)
}

// settle moves an ACTIVE auction to its terminal state inside tx. With no
// bids, or a winner who can no longer pay, the auction is cancelled and the
// escrowed shares return to the seller.
func (s *Service) settle(ctx context.Context, tx store.Repository, a *model.Auction, now time.Time) error {
	ended := now
	a.EndedAt = &ended

	top, err := tx.HighestBid(ctx, a.ID)
	if errors.Is(err, model.ErrNotFound) {
		return s.cancelAuction(ctx, tx, a, now)
	}
	if err != nil {
		return err
	}

	err = tx.Debit(ctx, top.BidderID, top.Amount)
	if errors.Is(err, model.ErrInsufficientFunds) || errors.Is(err, model.ErrNotFound) {
		s.log.Warn("auction winner cannot pay, cancelling",
			"auction_id", a.ID,
			"winner", top.BidderID,
			"amount", top.Amount.String(),
		)
		return s.cancelAuction(ctx, tx, a, now)
	}
	if err != nil {
		return err
	}
	if err := tx.Credit(ctx, a.SellerID, top.Amount); err != nil {
		return err
	}
	if _, err := tx.AddShares(ctx, top.BidderID, a.RegionID, a.Shares, now); err != nil {
		return err
	}

	a.Status = model.StatusSold
	a.WinnerID = top.BidderID
	a.CurrentPrice = top.Amount
	return tx.UpdateAuction(ctx, a)
}

func (s *Service) cancelAuction(ctx context.Context, tx store.Repository, a *model.Auction, now time.Time) error {
	if _, err := tx.AddShares(ctx, a.SellerID, a.RegionID, a.Shares, now); err != nil {
		return err
	}
	a.Status = model.StatusCancelled
	return tx.UpdateAuction(ctx, a)
}

func (s *Service) announceSettlement(a *model.Auction) {
	metrics.AuctionsSettled.WithLabelValues(string(a.Status)).Inc()
	s.log.Info("auction settled",
		"auction_id", a.ID,
		"region_id", a.RegionID,
		"status", a.Status,
		"winner", a.WinnerID,
		"price", a.CurrentPrice.String(),
	)
	s.hub.Broadcast(broadcast.Message{
		Type:      broadcast.TypeAuctionSettled,
		RegionID:  a.RegionID,
		AuctionID: a.ID,
		Price:     a.CurrentPrice.String(),
		Status:    string(a.Status),
		UserID:    a.WinnerID,
	})
}

// Auction returns one auction.
func (s *Service) Auction(ctx context.Context, id string) (*model.Auction, error) {
	return s.store.GetAuction(ctx, id)
}

// Bids returns an auction's accepted bids, oldest first.
func (s *Service) Bids(ctx context.Context, auctionID string) ([]model.Bid, error) {
	if _, err := s.store.GetAuction(ctx, auctionID); err != nil {
		return nil, err
	}
	return s.store.ListBids(ctx, auctionID)
}

// ActiveAuctions lists auctions still accepting bids.
func (s *Service) ActiveAuctions(ctx context.Context) ([]model.Auction, error) {
	return s.store.ListActiveAuctions(ctx)
}
