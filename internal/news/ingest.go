package news

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tidewater/ocean-engine/internal/ai"
	"github.com/tidewater/ocean-engine/internal/clock"
	"github.com/tidewater/ocean-engine/internal/model"
	"github.com/tidewater/ocean-engine/internal/pricing"
	"github.com/tidewater/ocean-engine/internal/store"
)

// Ingester runs one news sweep: fetch, match, classify, persist and reprice.
type Ingester struct {
	store      store.Store
	feed       Feed
	classifier ai.Classifier
	engine     *pricing.Engine
	clock      clock.Clock
	log        *slog.Logger
}

func NewIngester(st store.Store, feed Feed, classifier ai.Classifier, engine *pricing.Engine, clk clock.Clock, logger *slog.Logger) *Ingester {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingester{store: st, feed: feed, classifier: classifier, engine: engine, clock: clk, log: logger}
}

// Result summarizes one sweep.
type Result struct {
	Fetched   int
	Duplicate int
	Unmatched int
	Ingested  int
}

// Run performs one sweep. A feed failure aborts the sweep; failures on
// individual items are logged and joined.
func (in *Ingester) Run(ctx context.Context) (Result, error) {
	var res Result

	items, err := in.feed.Fetch(ctx)
	if err != nil {
		in.log.Error("news fetch failed", "err", err)
		return res, err
	}
	res.Fetched = len(items)

	regions, err := in.store.ListRegions(ctx)
	if err != nil {
		return res, fmt.Errorf("list regions: %w", err)
	}
	matcher := NewMatcher(regions)

	var errs []error
	for _, it := range items {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if it.Title == "" || it.URL == "" {
			continue
		}
		seen, err := in.store.ArticleExists(ctx, it.URL)
		if err != nil {
			errs = append(errs, fmt.Errorf("article %s: %w", it.URL, err))
			continue
		}
		if seen {
			res.Duplicate++
			continue
		}
		region, ok := matcher.Match(it)
		if !ok {
			res.Unmatched++
			continue
		}

		if err := in.ingest(ctx, it, region); err != nil {
			in.log.Error("news item ingest failed", "url", it.URL, "region_id", region.ID, "err", err)
			errs = append(errs, fmt.Errorf("article %s: %w", it.URL, err))
			continue
		}
		res.Ingested++
	}

	in.log.Info("news sweep complete",
		"fetched", res.Fetched,
		"ingested", res.Ingested,
		"duplicate", res.Duplicate,
		"unmatched", res.Unmatched,
		"failed", len(errs),
	)
	return res, errors.Join(errs...)
}

func (in *Ingester) ingest(ctx context.Context, it Item, region model.Region) error {
	sentiment, err := in.classifier.Classify(ctx, region.Name, it.Title, it.Description)
	if err != nil {
		in.log.Warn("sentiment classification failed, treating as neutral", "url", it.URL, "err", err)
		sentiment = model.SentimentNeutral
	}
	delta := in.engine.SentimentDelta(sentiment)

	var ch pricing.Change
	err = in.store.InTx(ctx, func(tx store.Repository) error {
		if err := tx.InsertArticle(ctx, &model.Article{
			URL:         it.URL,
			RegionID:    region.ID,
			RegionName:  region.Name,
			Title:       it.Title,
			Sentiment:   sentiment,
			PriceChange: delta,
			CreatedAt:   in.clock.Now(),
		}); err != nil {
			return err
		}
		var err error
		ch, err = in.engine.ApplyDeltaTx(ctx, tx, region.ID, delta, pricing.SourceSentiment)
		return err
	})
	if err != nil {
		return err
	}
	in.engine.Publish(ch)
	return nil
}
