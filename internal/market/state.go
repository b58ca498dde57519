// Package market holds the shared mutable snapshot of the current world:
// live prices, bounded per-symbol price history, the news list, the payment
// log, and the demo portfolio. All collections are capacity-bounded with
// oldest-eviction; unknown symbols simply have empty state.
package market

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/finsense/feed-engine/internal/model"
)

// Collection caps. Exceeding a cap evicts the oldest entries, never errors.
const (
	PriceHistoryCap = 500
	NewsCap         = 200
	PaymentsCap     = 500
)

// State is the in-memory market snapshot. Safe for concurrent use; reads
// return copies so callers can never corrupt internal slices.
type State struct {
	mu       sync.RWMutex
	symbols  []string
	prices   map[string]float64
	history  map[string][]model.PricePoint
	news     []model.NewsItem
	payments []model.PaymentEvent
	holdings map[string]float64
}

// New creates a state tracking the given symbols. Symbols are normalized
// to upper case; prices start at zero until the first tick arrives.
func New(symbols []string) *State {
	s := &State{
		prices:   make(map[string]float64),
		history:  make(map[string][]model.PricePoint),
		holdings: make(map[string]float64),
	}
	for _, sym := range symbols {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym == "" {
			continue
		}
		s.symbols = append(s.symbols, sym)
		s.prices[sym] = 0
	}
	return s
}

// Symbols returns the tracked symbol list.
func (s *State) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.symbols))
	copy(out, s.symbols)
	return out
}

// SetPrice overwrites the current price and appends a point to the
// symbol's bounded history.
func (s *State) SetPrice(symbol string, price float64, ts time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.prices[symbol] = price
	hist := append(s.history[symbol], model.PricePoint{Timestamp: ts, Price: price})
	if len(hist) > PriceHistoryCap {
		// Batch evict back to the cap rather than one-at-a-time.
		hist = hist[len(hist)-PriceHistoryCap:]
	}
	s.history[symbol] = hist
}

// Price returns the current price for a symbol. Unknown symbols report
// a zero price and ok=false.
func (s *State) Price(symbol string) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prices[symbol]
	return p, ok && p > 0
}

// Prices returns a snapshot of all current prices.
func (s *State) Prices() map[string]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]float64, len(s.prices))
	for k, v := range s.prices {
		out[k] = v
	}
	return out
}

// History returns a copy of the symbol's bounded price history,
// oldest first.
func (s *State) History(symbol string) []model.PricePoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	hist := s.history[symbol]
	out := make([]model.PricePoint, len(hist))
	copy(out, hist)
	return out
}

// RecentPriceWindow returns the points with timestamp within
// [now-window, now], oldest first. Used for drawdown and move alerts.
func (s *State) RecentPriceWindow(symbol string, window time.Duration, now time.Time) []model.PricePoint {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := now.Add(-window)
	var out []model.PricePoint
	for _, p := range s.history[symbol] {
		if !p.Timestamp.Before(cutoff) && !p.Timestamp.After(now) {
			out = append(out, p)
		}
	}
	return out
}

// AppendNews adds a headline to the bounded news list.
func (s *State) AppendNews(item model.NewsItem) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.news = append(s.news, item)
	if len(s.news) > NewsCap {
		s.news = s.news[len(s.news)-NewsCap:]
	}
}

// RecentNews returns up to n of the most recent headlines, oldest first.
func (s *State) RecentNews(n int) []model.NewsItem {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if n <= 0 || n > len(s.news) {
		n = len(s.news)
	}
	out := make([]model.NewsItem, n)
	copy(out, s.news[len(s.news)-n:])
	return out
}

// RecordPayment appends an evaluated payment to the bounded log.
func (s *State) RecordPayment(ev model.PaymentEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.payments = append(s.payments, ev)
	if len(s.payments) > PaymentsCap {
		s.payments = s.payments[len(s.payments)-PaymentsCap:]
	}
}

// RecentPayments returns up to n of the most recent payment events,
// oldest first.
func (s *State) RecentPayments(n int) []model.PaymentEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if n <= 0 || n > len(s.payments) {
		n = len(s.payments)
	}
	out := make([]model.PaymentEvent, n)
	copy(out, s.payments[len(s.payments)-n:])
	return out
}

// LoadPortfolioJSON replaces the portfolio holdings from an uploaded JSON
// document. Accepts either {"holdings": {"AAPL": 10}} or a flat
// symbol-to-quantity map. Malformed input is rejected with a descriptive
// error and leaves the current holdings untouched.
func (s *State) LoadPortfolioJSON(content []byte) error {
	var wrapped struct {
		Holdings map[string]float64 `json:"holdings"`
	}
	holdings := make(map[string]float64)

	if err := json.Unmarshal(content, &wrapped); err == nil && wrapped.Holdings != nil {
		holdings = wrapped.Holdings
	} else if err := json.Unmarshal(content, &holdings); err != nil {
		return fmt.Errorf("invalid portfolio JSON: %w", err)
	}
	if len(holdings) == 0 {
		return fmt.Errorf("invalid portfolio JSON: no holdings")
	}

	normalized := make(map[string]float64, len(holdings))
	for sym, qty := range holdings {
		normalized[strings.ToUpper(strings.TrimSpace(sym))] = qty
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.holdings = normalized
	return nil
}

// Holdings returns a snapshot of the portfolio.
func (s *State) Holdings() map[string]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]float64, len(s.holdings))
	for k, v := range s.holdings {
		out[k] = v
	}
	return out
}

// Holds reports whether the portfolio currently holds a symbol.
func (s *State) Holds(symbol string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.holdings[symbol] != 0
}

// AdjustHolding applies a signed quantity delta to a holding. Used by
// trade recording; a holding that reaches zero stays listed at zero.
func (s *State) AdjustHolding(symbol string, delta float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.holdings[symbol] += delta
}
