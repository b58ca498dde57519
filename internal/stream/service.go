// Package stream provides the ingestion surface, query surface, and
// WebSocket forwarding for the feed engine. Collaborator feeds push price,
// news, and payment events in; the transport layer drains the market and
// alert streams back out.
//
// All monetary values use shopspring/decimal — never float64 for money.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/finsense/feed-engine/internal/broker"
	"github.com/finsense/feed-engine/internal/detect"
	"github.com/finsense/feed-engine/internal/market"
	"github.com/finsense/feed-engine/internal/metrics"
	"github.com/finsense/feed-engine/internal/model"
	"github.com/finsense/feed-engine/internal/sanctions"
	"github.com/finsense/feed-engine/internal/sentiment"
	"github.com/finsense/feed-engine/internal/store"
)

// Validation errors surfaced to ingestion callers.
var (
	ErrEmptySymbol     = errors.New("stream: symbol is required")
	ErrInvalidPrice    = errors.New("stream: price must be positive")
	ErrEmptyHeadline   = errors.New("stream: headline is required")
	ErrEmptyCustomer   = errors.New("stream: customer_id is required")
	ErrInvalidAmount   = errors.New("stream: amount must be positive")
	ErrInvalidAction   = errors.New("stream: action must be buy or sell")
	ErrInvalidQuantity = errors.New("stream: quantity must be positive")
	ErrNoMarketPrice   = errors.New("stream: no market price available")
	ErrInsufficientQty = errors.New("stream: insufficient holdings to sell")
)

// Service wires the shared state, detector, registry, brokers, and archive
// together. It is constructed once at startup and passed explicitly into
// every handler and producer; there is no ambient global state.
type Service struct {
	state        *market.State
	detector     *detect.Detector
	registry     sanctions.Registry
	marketBroker *broker.Broker
	alertBroker  *broker.Broker
	archive      store.Archive
	webhookToken string
}

// NewService creates a stream service. archive may be nil when auditing is
// disabled; webhookToken may be empty to disable token checks.
func NewService(
	st *market.State,
	det *detect.Detector,
	reg sanctions.Registry,
	marketBroker, alertBroker *broker.Broker,
	archive store.Archive,
	webhookToken string,
) *Service {
	return &Service{
		state:        st,
		detector:     det,
		registry:     reg,
		marketBroker: marketBroker,
		alertBroker:  alertBroker,
		archive:      archive,
		webhookToken: webhookToken,
	}
}

// State exposes the shared market state to producer loops.
func (s *Service) State() *market.State { return s.state }

// Detector exposes the anomaly detector to producer loops.
func (s *Service) Detector() *detect.Detector { return s.detector }

// Registry exposes the sanctions registry to producer loops.
func (s *Service) Registry() sanctions.Registry { return s.registry }

// --- Ingestion operations ---

// IngestPrice updates the current price and publishes a price event.
// A zero ts means "now".
func (s *Service) IngestPrice(symbol string, price float64, ts time.Time) error {
	if symbol == "" {
		return ErrEmptySymbol
	}
	if price <= 0 {
		return ErrInvalidPrice
	}
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	s.state.SetPrice(symbol, price, ts)
	s.marketBroker.Publish(model.PriceEvent{
		Type:      "price",
		Symbol:    symbol,
		Price:     price,
		Timestamp: ts,
	})
	return nil
}

// IngestNews classifies a headline, stores it, publishes a news event, and
// raises a portfolio news-impact alert when the symbol is held.
func (s *Service) IngestNews(symbol, headline string, ts time.Time) (model.NewsItem, error) {
	if symbol == "" {
		return model.NewsItem{}, ErrEmptySymbol
	}
	if headline == "" {
		return model.NewsItem{}, ErrEmptyHeadline
	}
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	item := model.NewsItem{
		Timestamp: ts,
		Symbol:    symbol,
		Headline:  headline,
		Sentiment: sentiment.Classify(headline),
	}
	s.state.AppendNews(item)
	s.marketBroker.Publish(model.NewsEvent{
		Type:      "news",
		Symbol:    symbol,
		Headline:  headline,
		Sentiment: item.Sentiment,
		Timestamp: ts,
	})

	if s.state.Holds(symbol) {
		impact := sentiment.EstimateImpact(item.Sentiment)
		s.publishAlert(model.PortfolioAlert{
			Channel:   model.ChannelPortfolio,
			Kind:      "news-impact",
			Symbol:    symbol,
			ImpactPct: impact,
			Headline:  headline,
			Timestamp: ts,
			Message:   fmt.Sprintf("%s: %s (estimated impact %+.1f%%)", symbol, headline, impact),
		})
	}
	return item, nil
}

// IngestPayment runs the full anomaly and sanctions pipeline for one
// payment: evaluate, record, archive, and raise fraud/sanctions alerts as
// applicable. The classification is returned to the caller.
func (s *Service) IngestPayment(customerID string, amount decimal.Decimal, recipient string, ts time.Time) (model.PaymentEvent, error) {
	if customerID == "" {
		return model.PaymentEvent{}, ErrEmptyCustomer
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return model.PaymentEvent{}, ErrInvalidAmount
	}
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	res := s.detector.Evaluate(customerID, amount.InexactFloat64())
	metrics.PaymentsProcessed.Inc()

	ev := model.PaymentEvent{
		ID:         uuid.New().String(),
		CustomerID: customerID,
		Amount:     amount,
		Recipient:  recipient,
		Timestamp:  ts,
		Ratio:      res.Ratio,
		ZScore:     res.ZScore,
		IsAnomaly:  res.IsAnomaly,
		Severity:   res.Severity,
	}
	s.state.RecordPayment(ev)
	s.archivePayment(&ev)

	if res.IsAnomaly {
		metrics.AnomaliesDetected.WithLabelValues(string(res.Severity)).Inc()
		s.publishAlert(model.FraudAlert{
			Channel:    model.ChannelFraud,
			Kind:       "anomaly",
			CustomerID: customerID,
			Amount:     amount,
			Ratio:      res.Ratio,
			ZScore:     res.ZScore,
			Severity:   res.Severity,
			Timestamp:  ts,
			Message: fmt.Sprintf("%s: amount %s is %.0fx baseline, flagged %s",
				customerID, amount.StringFixed(0), res.Ratio, res.Severity),
		})
	}

	if recipient != "" {
		if ago, ok := sanctions.SecondsSince(s.registry, recipient, ts); ok {
			metrics.SanctionsMatches.Inc()
			s.publishAlert(model.SanctionsAlert{
				Channel:    model.ChannelSanctions,
				Kind:       "match",
				CustomerID: customerID,
				Recipient:  recipient,
				Amount:     amount,
				Timestamp:  ts,
				Message: fmt.Sprintf("Transfer flagged. Recipient '%s' was added %d seconds ago.",
					recipient, ago),
			})
		}
	}

	return ev, nil
}

// FlagRecipient adds a name to the sanctions registry and announces it on
// the alert stream.
func (s *Service) FlagRecipient(name string, ts time.Time) {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	s.registry.Add(name, ts)
	s.publishAlert(model.SanctionsAlert{
		Channel:   model.ChannelSanctions,
		Kind:      "added",
		Name:      name,
		Timestamp: ts,
		Message:   fmt.Sprintf("Sanctions list updated: %s added just now.", name),
	})
}

// RecordTrade executes a buy or sell against the demo portfolio and
// publishes a trade event plus a trading alert. A zero price means
// "fill at the current market price".
func (s *Service) RecordTrade(symbol, action string, quantity, price decimal.Decimal) (model.TradeTransaction, error) {
	if symbol == "" {
		return model.TradeTransaction{}, ErrEmptySymbol
	}
	if action != "buy" && action != "sell" {
		return model.TradeTransaction{}, ErrInvalidAction
	}
	if quantity.LessThanOrEqual(decimal.Zero) {
		return model.TradeTransaction{}, ErrInvalidQuantity
	}

	if price.LessThanOrEqual(decimal.Zero) {
		current, ok := s.state.Price(symbol)
		if !ok {
			return model.TradeTransaction{}, ErrNoMarketPrice
		}
		price = decimal.NewFromFloat(current)
	}

	qty := quantity.InexactFloat64()
	if action == "sell" {
		if held := s.state.Holdings()[symbol]; held < qty {
			return model.TradeTransaction{}, ErrInsufficientQty
		}
		qty = -qty
	}
	s.state.AdjustHolding(symbol, qty)

	now := time.Now().UTC()
	tx := model.TradeTransaction{
		ID:        uuid.New().String(),
		Timestamp: now,
		Symbol:    symbol,
		Action:    action,
		Quantity:  quantity,
		Price:     price,
		Total:     price.Mul(quantity),
	}

	s.marketBroker.Publish(model.TradeEvent{
		Type:      "trade",
		Symbol:    symbol,
		Action:    action,
		Quantity:  quantity,
		Price:     price,
		Total:     tx.Total,
		Timestamp: now,
	})
	s.publishAlert(model.TradingAlert{
		Channel:   model.ChannelTrading,
		Kind:      "executed",
		Symbol:    symbol,
		Action:    action,
		Quantity:  quantity,
		Price:     price,
		Timestamp: now,
		Message: fmt.Sprintf("Executed %s of %s %s at %s.",
			action, quantity.String(), symbol, price.StringFixed(2)),
	})

	slog.Info("trade recorded",
		"id", tx.ID,
		"symbol", symbol,
		"action", action,
		"quantity", quantity.String(),
		"price", price.String(),
	)
	return tx, nil
}

// --- Outbound consumption ---

// DrainMarket blocks for the next market event (price/news/trade).
func (s *Service) DrainMarket(ctx context.Context) (model.Event, error) {
	return s.marketBroker.Drain(ctx)
}

// DrainAlerts blocks for the next alert event.
func (s *Service) DrainAlerts(ctx context.Context) (model.Event, error) {
	return s.alertBroker.Drain(ctx)
}

// PublishAlert publishes an alert built by a producer loop.
func (s *Service) PublishAlert(a model.AlertEvent) {
	s.publishAlert(a)
}

// --- internals ---

func (s *Service) publishAlert(a model.AlertEvent) {
	s.alertBroker.Publish(a)

	if s.archive == nil {
		return
	}
	payload, err := json.Marshal(a)
	if err != nil {
		return
	}
	kind := alertKind(a)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.archive.ArchiveAlert(ctx, a.AlertChannel(), kind, payload); err != nil {
		slog.Warn("alert archive failed", "channel", a.AlertChannel(), "kind", kind, "err", err)
	}
}

func (s *Service) archivePayment(ev *model.PaymentEvent) {
	if s.archive == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.archive.ArchivePayment(ctx, ev); err != nil {
		slog.Warn("payment archive failed", "id", ev.ID, "err", err)
	}
}

func alertKind(a model.AlertEvent) string {
	switch v := a.(type) {
	case model.FraudAlert:
		return v.Kind
	case model.SanctionsAlert:
		return v.Kind
	case model.PortfolioAlert:
		return v.Kind
	case model.TradingAlert:
		return v.Kind
	default:
		return "unknown"
	}
}
