// Package ai wraps the external judgement services the engine consults: a
// news sentiment classifier and a photo verification oracle.
package ai

import (
	"context"

	"github.com/tidewater/ocean-engine/internal/model"
)

// Classifier judges how a news item reflects on a region.
type Classifier interface {
	Classify(ctx context.Context, regionName, title, text string) (model.Sentiment, error)
}

// Oracle decides whether a photo shows what the caller expects.
type Oracle interface {
	Verify(ctx context.Context, image []byte, expected string) (bool, error)
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(ctx context.Context, regionName, title, text string) (model.Sentiment, error)

func (f ClassifierFunc) Classify(ctx context.Context, regionName, title, text string) (model.Sentiment, error) {
	return f(ctx, regionName, title, text)
}

// OracleFunc adapts a function to Oracle.
type OracleFunc func(ctx context.Context, image []byte, expected string) (bool, error)

func (f OracleFunc) Verify(ctx context.Context, image []byte, expected string) (bool, error) {
	return f(ctx, image, expected)
}

// StaticOracle returns the same verdict for every photo. Used when no
// vision model is configured.
type StaticOracle bool

func (o StaticOracle) Verify(context.Context, []byte, string) (bool, error) {
	return bool(o), nil
}
