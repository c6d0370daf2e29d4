package ai

import (
	"context"
	"strings"

	"github.com/tidewater/ocean-engine/internal/model"
)

var (
	positiveWords = []string{
		"보존", "개선", "깨끗", "회복", "성공", "발전", "증가", "좋은",
		"restor", "clean", "recover", "improv", "protect",
	}
	negativeWords = []string{
		"오염", "위험", "감소", "파괴", "악화", "문제", "피해",
		"pollut", "spill", "damage", "declin", "toxic",
	}
)

// KeywordClassifier scores text by counting positive and negative words.
// Ties are neutral. It never fails.
type KeywordClassifier struct{}

func (KeywordClassifier) Classify(_ context.Context, _, title, text string) (model.Sentiment, error) {
	body := strings.ToLower(title + " " + text)
	pos, neg := 0, 0
	for _, w := range positiveWords {
		pos += strings.Count(body, w)
	}
	for _, w := range negativeWords {
		neg += strings.Count(body, w)
	}
	switch {
	case pos > neg:
		return model.SentimentPositive, nil
	case neg > pos:
		return model.SentimentNegative, nil
	}
	return model.SentimentNeutral, nil
}
