// Package model defines the core domain types shared across the feed engine.
// All monetary values use shopspring/decimal — never float64 for money.
// Market tick prices are statistical stream values and stay float64.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Sentiment classifies a news headline.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// Severity grades a flagged payment anomaly.
type Severity string

const (
	SeverityNormal   Severity = "normal"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// PricePoint is a single observation in a symbol's price history.
// Immutable once created.
type PricePoint struct {
	Timestamp time.Time `json:"ts"`
	Price     float64   `json:"price"`
}

// NewsItem is a classified headline. Immutable once created.
type NewsItem struct {
	Timestamp time.Time `json:"ts"`
	Symbol    string    `json:"symbol,omitempty"`
	Headline  string    `json:"headline"`
	Sentiment Sentiment `json:"sentiment"`
}

// PaymentEvent is an immutable record of one evaluated payment.
// Schema: {customer, amount, recipient, classification, timestamp}
type PaymentEvent struct {
	ID         string          `json:"id" db:"id"`
	CustomerID string          `json:"customer_id" db:"customer_id"`
	Amount     decimal.Decimal `json:"amount" db:"amount"`
	Recipient  string          `json:"recipient" db:"recipient"`
	Timestamp  time.Time       `json:"ts" db:"ts"`
	Ratio      float64         `json:"ratio" db:"ratio"`
	ZScore     *float64        `json:"zscore,omitempty" db:"zscore"` // nil when history is insufficient
	IsAnomaly  bool            `json:"is_anomaly" db:"is_anomaly"`
	Severity   Severity        `json:"severity" db:"severity"`
}

// TradeTransaction records an executed buy or sell against the demo
// portfolio. P&L accounting lives in the collaborator layer.
type TradeTransaction struct {
	ID        string          `json:"transaction_id"`
	Timestamp time.Time       `json:"ts"`
	Symbol    string          `json:"symbol"`
	Action    string          `json:"action"` // "buy" or "sell"
	Quantity  decimal.Decimal `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Total     decimal.Decimal `json:"total_value"`
}

// CustomerMetrics is the per-customer query snapshot: baseline state plus
// min/max/mean over the current rolling history window.
type CustomerMetrics struct {
	CustomerID    string  `json:"customer_id"`
	BaselineAvg   float64 `json:"baseline_avg"`
	BaselineCount int     `json:"baseline_count"`
	HistoryCount  int     `json:"history_count"`
	Min           float64 `json:"min"`
	Max           float64 `json:"max"`
	Mean          float64 `json:"mean"`
}
