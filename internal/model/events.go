package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Alert channels. Every alert belongs to exactly one.
type Channel string

const (
	ChannelPortfolio Channel = "portfolio"
	ChannelFraud     Channel = "fraud"
	ChannelSanctions Channel = "sanctions"
	ChannelTrading   Channel = "trading"
)

// Event is the closed set of payloads carried by the broker channels.
// Market stream: PriceEvent, NewsEvent, TradeEvent.
// Alert stream: FraudAlert, SanctionsAlert, PortfolioAlert, TradingAlert.
type Event interface {
	// EventType returns the wire discriminator ("price", "news", ...).
	EventType() string
}

// AlertEvent is an Event routed through the alert stream.
type AlertEvent interface {
	Event
	AlertChannel() Channel
}

// PriceEvent announces a new current price for a symbol.
type PriceEvent struct {
	Type      string    `json:"type"`
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"ts"`
}

func (PriceEvent) EventType() string { return "price" }

// NewsEvent announces a classified headline.
type NewsEvent struct {
	Type      string    `json:"type"`
	Symbol    string    `json:"symbol"`
	Headline  string    `json:"headline"`
	Sentiment Sentiment `json:"sentiment"`
	Timestamp time.Time `json:"ts"`
}

func (NewsEvent) EventType() string { return "news" }

// TradeEvent announces an executed portfolio trade.
type TradeEvent struct {
	Type      string          `json:"type"`
	Symbol    string          `json:"symbol"`
	Action    string          `json:"action"`
	Quantity  decimal.Decimal `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Total     decimal.Decimal `json:"total_value"`
	Timestamp time.Time       `json:"ts"`
}

func (TradeEvent) EventType() string { return "trade" }

// FraudAlert flags an anomalous payment.
type FraudAlert struct {
	Channel    Channel         `json:"channel"`
	Kind       string          `json:"kind"` // always "anomaly"
	CustomerID string          `json:"customer"`
	Amount     decimal.Decimal `json:"amount"`
	Ratio      float64         `json:"ratio"`
	ZScore     *float64        `json:"zscore,omitempty"`
	Severity   Severity        `json:"severity"`
	Timestamp  time.Time       `json:"ts"`
	Message    string          `json:"message"`
}

func (FraudAlert) EventType() string     { return "alert" }
func (FraudAlert) AlertChannel() Channel { return ChannelFraud }

// SanctionsAlert covers both registry additions (kind "added") and
// transfer matches (kind "match").
type SanctionsAlert struct {
	Channel    Channel         `json:"channel"`
	Kind       string          `json:"kind"` // "added" or "match"
	Name       string          `json:"name,omitempty"`
	CustomerID string          `json:"customer,omitempty"`
	Recipient  string          `json:"recipient,omitempty"`
	Amount     decimal.Decimal `json:"amount,omitempty"`
	Timestamp  time.Time       `json:"ts"`
	Message    string          `json:"message"`
}

func (SanctionsAlert) EventType() string     { return "alert" }
func (SanctionsAlert) AlertChannel() Channel { return ChannelSanctions }

// PortfolioAlert covers news-impact and price-move notifications for
// held symbols.
type PortfolioAlert struct {
	Channel   Channel   `json:"channel"`
	Kind      string    `json:"kind"` // "news-impact" or "price-move"
	Symbol    string    `json:"symbol"`
	ImpactPct float64   `json:"impact_pct,omitempty"`
	ChangePct float64   `json:"change_pct,omitempty"`
	Headline  string    `json:"headline,omitempty"`
	Timestamp time.Time `json:"ts"`
	Message   string    `json:"message"`
}

func (PortfolioAlert) EventType() string     { return "alert" }
func (PortfolioAlert) AlertChannel() Channel { return ChannelPortfolio }

// TradingAlert confirms an executed trade on the alert stream.
type TradingAlert struct {
	Channel   Channel         `json:"channel"`
	Kind      string          `json:"kind"` // always "executed"
	Symbol    string          `json:"symbol"`
	Action    string          `json:"action"`
	Quantity  decimal.Decimal `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"ts"`
	Message   string          `json:"message"`
}

func (TradingAlert) EventType() string     { return "alert" }
func (TradingAlert) AlertChannel() Channel { return ChannelTrading }
