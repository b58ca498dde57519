package stream_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/finsense/feed-engine/internal/broker"
	"github.com/finsense/feed-engine/internal/detect"
	"github.com/finsense/feed-engine/internal/market"
	"github.com/finsense/feed-engine/internal/model"
	"github.com/finsense/feed-engine/internal/sanctions"
	"github.com/finsense/feed-engine/internal/store"
	"github.com/finsense/feed-engine/internal/stream"
)

const testToken = "hook-secret"

// newRouterEnv mounts the full API under /api/v1 with token checks on.
func newRouterEnv(t *testing.T) (*testEnv, chi.Router) {
	t.Helper()
	env := &testEnv{
		state:   market.New([]string{"AAPL", "TSLA"}),
		det:     detect.New(),
		reg:     sanctions.NewMemoryRegistry(),
		markets: broker.New("market", broker.DefaultCapacity),
		alerts:  broker.New("alerts", broker.DefaultCapacity),
		archive: store.NewMemoryArchive(),
	}
	env.svc = stream.NewService(env.state, env.det, env.reg, env.markets, env.alerts, env.archive, testToken)

	r := chi.NewRouter()
	r.Route("/api/v1", env.svc.Routes)
	return env, r
}

func doPost(t *testing.T, router chi.Router, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if raw, ok := body.([]byte); ok {
		buf.Write(raw)
	} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
		t.Fatalf("failed to encode body: %v", err)
	}
	req := httptest.NewRequest("POST", path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("X-Webhook-Token", token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func doGet(t *testing.T, router chi.Router, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// --- Webhook token ---

func TestIngest_RejectsMissingToken(t *testing.T) {
	_, router := newRouterEnv(t)

	w := doPost(t, router, "/api/v1/ingest/price", "", stream.PriceRequest{Symbol: "AAPL", Price: 100})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d: %s", w.Code, w.Body.String())
	}
}

func TestIngest_RejectsWrongToken(t *testing.T) {
	_, router := newRouterEnv(t)

	w := doPost(t, router, "/api/v1/ingest/price", "wrong", stream.PriceRequest{Symbol: "AAPL", Price: 100})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong token, got %d", w.Code)
	}
}

func TestIngest_AcceptsQueryToken(t *testing.T) {
	_, router := newRouterEnv(t)

	w := doPost(t, router, "/api/v1/ingest/price?token="+testToken, "",
		stream.PriceRequest{Symbol: "AAPL", Price: 100})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 with query token, got %d: %s", w.Code, w.Body.String())
	}
}

func TestIngest_EmptyConfiguredTokenDisablesCheck(t *testing.T) {
	env := newTestEnv(t) // token ""
	r := chi.NewRouter()
	r.Route("/api/v1", env.svc.Routes)

	w := doPost(t, r, "/api/v1/ingest/price", "", stream.PriceRequest{Symbol: "AAPL", Price: 100})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 with disabled token check, got %d", w.Code)
	}
}

// --- Ingestion handlers ---

func TestHandleIngestPrice_OK(t *testing.T) {
	env, router := newRouterEnv(t)

	w := doPost(t, router, "/api/v1/ingest/price", testToken,
		stream.PriceRequest{Symbol: "AAPL", Price: 191.25, Timestamp: 1700000000.5})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	if p, ok := env.state.Price("AAPL"); !ok || p != 191.25 {
		t.Errorf("expected stored price 191.25, got %v (ok=%v)", p, ok)
	}
	hist := env.state.History("AAPL")
	if len(hist) != 1 {
		t.Fatalf("expected 1 history point, got %d", len(hist))
	}
	if hist[0].Timestamp.Unix() != 1700000000 {
		t.Errorf("expected unix timestamp preserved, got %v", hist[0].Timestamp)
	}
}

func TestHandleIngestPrice_BadBody(t *testing.T) {
	_, router := newRouterEnv(t)

	w := doPost(t, router, "/api/v1/ingest/price", testToken, []byte("not json"))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestHandleIngestPrice_ValidationError(t *testing.T) {
	_, router := newRouterEnv(t)

	w := doPost(t, router, "/api/v1/ingest/price", testToken, stream.PriceRequest{Symbol: "AAPL", Price: -1})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", w.Code)
	}
}

func TestHandleIngestPayment_ReturnsClassification(t *testing.T) {
	env, router := newRouterEnv(t)
	env.det.SeedBaseline("cust_2", 8000, 20)

	w := doPost(t, router, "/api/v1/ingest/payment", testToken, stream.PaymentRequest{
		CustomerID: "cust_2",
		Amount:     decimal.NewFromInt(320000),
		Recipient:  "CleanVendor",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var ev model.PaymentEvent
	if err := json.Unmarshal(w.Body.Bytes(), &ev); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !ev.IsAnomaly || ev.Severity != model.SeverityCritical {
		t.Errorf("expected critical anomaly, got %+v", ev)
	}
	if ev.Ratio != 40 {
		t.Errorf("expected ratio 40, got %v", ev.Ratio)
	}
}

func TestHandleIngestNews_OK(t *testing.T) {
	_, router := newRouterEnv(t)

	w := doPost(t, router, "/api/v1/ingest/news", testToken, stream.NewsRequest{
		Symbol:   "TSLA",
		Headline: "Tesla beats delivery record in Q3",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var item model.NewsItem
	json.Unmarshal(w.Body.Bytes(), &item)
	if item.Sentiment != model.SentimentPositive {
		t.Errorf("expected positive sentiment, got %s", item.Sentiment)
	}
}

// --- Trade handler ---

func TestHandleTrade_OK(t *testing.T) {
	_, router := newRouterEnv(t)

	w := doPost(t, router, "/api/v1/trade", testToken, stream.TradeRequest{
		Symbol:   "AAPL",
		Action:   "buy",
		Quantity: decimal.NewFromInt(3),
		Price:    decimal.NewFromInt(150),
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var tx model.TradeTransaction
	json.Unmarshal(w.Body.Bytes(), &tx)
	if !tx.Total.Equal(decimal.NewFromInt(450)) {
		t.Errorf("expected total 450, got %s", tx.Total)
	}
}

func TestHandleTrade_NoMarketPriceConflict(t *testing.T) {
	_, router := newRouterEnv(t)

	w := doPost(t, router, "/api/v1/trade", testToken, stream.TradeRequest{
		Symbol:   "AAPL",
		Action:   "buy",
		Quantity: decimal.NewFromInt(1),
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 without a market price, got %d", w.Code)
	}
}

func TestHandleTrade_SellWithoutHoldingsConflict(t *testing.T) {
	_, router := newRouterEnv(t)

	w := doPost(t, router, "/api/v1/trade", testToken, stream.TradeRequest{
		Symbol:   "AAPL",
		Action:   "sell",
		Quantity: decimal.NewFromInt(1),
		Price:    decimal.NewFromInt(100),
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 selling with no holdings, got %d", w.Code)
	}
}

// --- Portfolio handlers ---

func TestHandleUploadPortfolio_FlatAndWrapped(t *testing.T) {
	env, router := newRouterEnv(t)

	w := doPost(t, router, "/api/v1/portfolio", testToken, []byte(`{"AAPL": 10, "tsla": 5}`))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for flat map, got %d: %s", w.Code, w.Body.String())
	}
	if got := env.state.Holdings()["TSLA"]; got != 5 {
		t.Errorf("expected normalized TSLA holding 5, got %v", got)
	}

	w = doPost(t, router, "/api/v1/portfolio", testToken, []byte(`{"holdings": {"MSFT": 7}}`))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for wrapped doc, got %d", w.Code)
	}
	holdings := env.state.Holdings()
	if holdings["MSFT"] != 7 {
		t.Errorf("expected MSFT 7 after replace, got %v", holdings["MSFT"])
	}
	if _, still := holdings["AAPL"]; still {
		t.Error("upload should replace the previous portfolio")
	}
}

func TestHandleUploadPortfolio_Invalid(t *testing.T) {
	_, router := newRouterEnv(t)

	for _, body := range []string{`not json`, `[]`, `{}`, `{"holdings": {}}`} {
		w := doPost(t, router, "/api/v1/portfolio", testToken, []byte(body))
		if w.Code != http.StatusBadRequest {
			t.Errorf("expected 400 for %q, got %d", body, w.Code)
		}
	}
}

// --- Query handlers ---

func TestHandlePrice_NotFound(t *testing.T) {
	_, router := newRouterEnv(t)

	w := doGet(t, router, "/api/v1/prices/MSFT")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown symbol, got %d", w.Code)
	}
}

func TestHandlePrices_Snapshot(t *testing.T) {
	env, router := newRouterEnv(t)
	env.svc.IngestPrice("AAPL", 100, time.Time{})
	env.svc.IngestPrice("TSLA", 200, time.Time{})

	w := doGet(t, router, "/api/v1/prices")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var prices map[string]float64
	json.Unmarshal(w.Body.Bytes(), &prices)
	if prices["AAPL"] != 100 || prices["TSLA"] != 200 {
		t.Errorf("unexpected snapshot: %v", prices)
	}
}

func TestHandlePriceHistory_EmptyIsArray(t *testing.T) {
	_, router := newRouterEnv(t)

	w := doGet(t, router, "/api/v1/prices/AAPL/history")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got := w.Body.String(); got != "[]\n" {
		t.Errorf("expected empty JSON array, got %q", got)
	}
}

func TestHandlePayments_Limit(t *testing.T) {
	env, router := newRouterEnv(t)
	for i := 0; i < 5; i++ {
		if _, err := env.svc.IngestPayment("cust_1", d(100), "GoodBiz", time.Time{}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	w := doGet(t, router, "/api/v1/payments?limit=3")
	var events []model.PaymentEvent
	json.Unmarshal(w.Body.Bytes(), &events)
	if len(events) != 3 {
		t.Errorf("expected 3 events with limit=3, got %d", len(events))
	}
}

func TestHandleCustomerMetrics(t *testing.T) {
	env, router := newRouterEnv(t)
	env.svc.IngestPayment("cust_1", d(1200), "GoodBiz", time.Time{})

	w := doGet(t, router, "/api/v1/customers/cust_1/metrics")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var m model.CustomerMetrics
	json.Unmarshal(w.Body.Bytes(), &m)
	if m.HistoryCount != 1 || m.Min != 1200 || m.Max != 1200 {
		t.Errorf("unexpected metrics: %+v", m)
	}

	w = doGet(t, router, "/api/v1/customers/nobody/metrics")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown customer, got %d", w.Code)
	}
}

func TestHandleSanctions_List(t *testing.T) {
	env, router := newRouterEnv(t)
	env.svc.FlagRecipient("John Doe", time.Time{})

	w := doGet(t, router, "/api/v1/sanctions")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var entries []sanctions.Entry
	json.Unmarshal(w.Body.Bytes(), &entries)
	if len(entries) != 1 || entries[0].Name != "John Doe" {
		t.Errorf("unexpected entries: %+v", entries)
	}
}
