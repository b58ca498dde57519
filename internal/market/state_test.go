package market_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/finsense/feed-engine/internal/market"
	"github.com/finsense/feed-engine/internal/model"
)

func TestNew_NormalizesSymbols(t *testing.T) {
	s := market.New([]string{" tsla ", "AAPL", ""})
	syms := s.Symbols()
	if len(syms) != 2 || syms[0] != "TSLA" || syms[1] != "AAPL" {
		t.Errorf("unexpected symbols: %v", syms)
	}
}

func TestSetPrice_HistoryCapped(t *testing.T) {
	s := market.New([]string{"TSLA"})
	base := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < market.PriceHistoryCap+150; i++ {
		s.SetPrice("TSLA", 100+float64(i), base.Add(time.Duration(i)*time.Second))
	}

	hist := s.History("TSLA")
	if len(hist) != market.PriceHistoryCap {
		t.Fatalf("expected history pinned at %d, got %d", market.PriceHistoryCap, len(hist))
	}
	// Oldest retained point is the 151st; order preserved among survivors.
	if hist[0].Price != 250 {
		t.Errorf("expected oldest retained price 250, got %v", hist[0].Price)
	}
	for i := 1; i < len(hist); i++ {
		if !hist[i].Timestamp.After(hist[i-1].Timestamp) {
			t.Fatalf("history order broken at %d", i)
		}
	}
}

func TestSetPrice_UnderCap(t *testing.T) {
	s := market.New([]string{"AAPL"})
	now := time.Now().UTC()
	for i := 0; i < 150; i++ {
		s.SetPrice("AAPL", 200+float64(i), now.Add(time.Duration(i)*time.Second))
	}
	if got := len(s.History("AAPL")); got != 150 {
		t.Errorf("expected 150 points under cap, got %d", got)
	}
}

func TestPrice_UnknownSymbol(t *testing.T) {
	s := market.New([]string{"TSLA"})
	if _, ok := s.Price("MSFT"); ok {
		t.Error("unknown symbol should report no price")
	}
	if _, ok := s.Price("TSLA"); ok {
		t.Error("symbol without a tick yet should report no price")
	}
}

func TestRecentPriceWindow(t *testing.T) {
	s := market.New([]string{"TSLA"})
	now := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)

	s.SetPrice("TSLA", 100, now.Add(-90*time.Second))
	s.SetPrice("TSLA", 101, now.Add(-25*time.Second))
	s.SetPrice("TSLA", 102, now.Add(-5*time.Second))

	recent := s.RecentPriceWindow("TSLA", 30*time.Second, now)
	if len(recent) != 2 {
		t.Fatalf("expected 2 points in window, got %d", len(recent))
	}
	if recent[0].Price != 101 || recent[1].Price != 102 {
		t.Errorf("unexpected window contents: %+v", recent)
	}
}

func TestAppendNews_Capped(t *testing.T) {
	s := market.New(nil)
	now := time.Now().UTC()

	for i := 0; i < market.NewsCap+30; i++ {
		s.AppendNews(model.NewsItem{
			Timestamp: now.Add(time.Duration(i) * time.Second),
			Symbol:    "TSLA",
			Headline:  "headline",
			Sentiment: model.SentimentNeutral,
		})
	}

	if got := len(s.RecentNews(0)); got != market.NewsCap {
		t.Errorf("expected news pinned at %d, got %d", market.NewsCap, got)
	}
}

func TestRecordPayment_Capped(t *testing.T) {
	s := market.New(nil)
	now := time.Now().UTC()

	for i := 0; i < market.PaymentsCap+40; i++ {
		s.RecordPayment(model.PaymentEvent{
			ID:         "p",
			CustomerID: "cust_1",
			Amount:     decimal.NewFromInt(int64(i)),
			Timestamp:  now,
		})
	}

	got := s.RecentPayments(0)
	if len(got) != market.PaymentsCap {
		t.Fatalf("expected payments pinned at %d, got %d", market.PaymentsCap, len(got))
	}
	// Oldest 40 were evicted.
	if !got[0].Amount.Equal(decimal.NewFromInt(40)) {
		t.Errorf("expected oldest surviving amount 40, got %s", got[0].Amount)
	}
}

func TestRecentPayments_Limit(t *testing.T) {
	s := market.New(nil)
	for i := 0; i < 10; i++ {
		s.RecordPayment(model.PaymentEvent{Amount: decimal.NewFromInt(int64(i))})
	}
	got := s.RecentPayments(3)
	if len(got) != 3 {
		t.Fatalf("expected 3 payments, got %d", len(got))
	}
	if !got[0].Amount.Equal(decimal.NewFromInt(7)) {
		t.Errorf("expected window to start at 7, got %s", got[0].Amount)
	}
}

func TestLoadPortfolioJSON_FlatMap(t *testing.T) {
	s := market.New(nil)
	if err := s.LoadPortfolioJSON([]byte(`{"aapl": 10, "TSLA": 5}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h := s.Holdings()
	if h["AAPL"] != 10 || h["TSLA"] != 5 {
		t.Errorf("unexpected holdings: %v", h)
	}
}

func TestLoadPortfolioJSON_Wrapped(t *testing.T) {
	s := market.New(nil)
	if err := s.LoadPortfolioJSON([]byte(`{"holdings": {"NVDA": 2.5}}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !s.Holds("NVDA") {
		t.Error("expected NVDA to be held")
	}
}

func TestLoadPortfolioJSON_Invalid(t *testing.T) {
	s := market.New(nil)
	for _, body := range []string{`not json`, `[]`, `{}`, `{"holdings": {}}`} {
		if err := s.LoadPortfolioJSON([]byte(body)); err == nil {
			t.Errorf("expected rejection for %q", body)
		}
	}
}

func TestAdjustHolding(t *testing.T) {
	s := market.New(nil)
	s.AdjustHolding("TSLA", 5)
	s.AdjustHolding("TSLA", -2)
	if got := s.Holdings()["TSLA"]; got != 3 {
		t.Errorf("expected 3 shares, got %v", got)
	}
}
