// Package sentiment classifies headlines with a keyword heuristic and maps
// sentiment to the fixed portfolio-impact estimate used by news alerts.
package sentiment

import (
	"strings"

	"github.com/finsense/feed-engine/internal/model"
)

var negativeWords = []string{
	"delay", "halts", "probe", "lawsuit", "cuts", "miss", "shortage",
	"breach", "recall",
}

var positiveWords = []string{
	"beats", "surge", "record", "approval", "subsidy", "upgrade", "launch",
}

// Classify labels a headline positive, negative, or neutral. Mixed signals
// resolve to neutral.
func Classify(headline string) model.Sentiment {
	t := strings.ToLower(headline)

	pos := containsAny(t, positiveWords)
	neg := containsAny(t, negativeWords)

	switch {
	case pos && !neg:
		return model.SentimentPositive
	case neg && !pos:
		return model.SentimentNegative
	default:
		return model.SentimentNeutral
	}
}

// EstimateImpact maps sentiment to the estimated percent impact on a held
// position: +2% positive, -2% negative, 0% neutral.
func EstimateImpact(s model.Sentiment) float64 {
	switch s {
	case model.SentimentPositive:
		return 2.0
	case model.SentimentNegative:
		return -2.0
	default:
		return 0.0
	}
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}
