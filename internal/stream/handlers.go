package stream

import (
	"encoding/json"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/finsense/feed-engine/internal/model"
	"github.com/finsense/feed-engine/internal/sanctions"
)

// --- Request types ---

// PriceRequest is the JSON body for POST /api/v1/ingest/price.
type PriceRequest struct {
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Timestamp float64 `json:"ts"` // unix seconds; 0 means now
}

// NewsRequest is the JSON body for POST /api/v1/ingest/news.
type NewsRequest struct {
	Symbol    string  `json:"symbol"`
	Headline  string  `json:"headline"`
	Timestamp float64 `json:"ts"`
}

// PaymentRequest is the JSON body for POST /api/v1/ingest/payment.
type PaymentRequest struct {
	CustomerID string          `json:"customer_id"`
	Amount     decimal.Decimal `json:"amount"`
	Recipient  string          `json:"recipient"`
	Timestamp  float64         `json:"ts"`
}

// TradeRequest is the JSON body for POST /api/v1/trade.
type TradeRequest struct {
	Symbol   string          `json:"symbol"`
	Action   string          `json:"action"` // "buy" or "sell"
	Quantity decimal.Decimal `json:"quantity"`
	Price    decimal.Decimal `json:"price"` // 0 = fill at market
}

// Routes mounts every handler on the given router. Ingestion POSTs go
// through the webhook token check; queries are open.
func (s *Service) Routes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(s.requireToken)
		r.Post("/ingest/price", s.HandleIngestPrice)
		r.Post("/ingest/news", s.HandleIngestNews)
		r.Post("/ingest/payment", s.HandleIngestPayment)
		r.Post("/trade", s.HandleTrade)
		r.Post("/portfolio", s.HandleUploadPortfolio)
	})

	r.Get("/prices", s.HandlePrices)
	r.Get("/prices/{symbol}", s.HandlePrice)
	r.Get("/prices/{symbol}/history", s.HandlePriceHistory)
	r.Get("/news", s.HandleNews)
	r.Get("/payments", s.HandlePayments)
	r.Get("/customers/{customerID}/metrics", s.HandleCustomerMetrics)
	r.Get("/sanctions", s.HandleSanctions)
	r.Get("/portfolio", s.HandlePortfolio)
}

// requireToken rejects ingestion calls without the shared webhook token.
// An empty configured token disables the check (local development).
func (s *Service) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.webhookToken != "" {
			token := r.Header.Get("X-Webhook-Token")
			if token == "" {
				token = r.URL.Query().Get("token")
			}
			if token != s.webhookToken {
				writeError(w, "invalid webhook token", http.StatusUnauthorized)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// --- Ingestion handlers ---

// HandleIngestPrice handles POST /api/v1/ingest/price.
func (s *Service) HandleIngestPrice(w http.ResponseWriter, r *http.Request) {
	var req PriceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.IngestPrice(req.Symbol, req.Price, tsFromUnix(req.Timestamp)); err != nil {
		writeError(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "symbol": req.Symbol})
}

// HandleIngestNews handles POST /api/v1/ingest/news.
func (s *Service) HandleIngestNews(w http.ResponseWriter, r *http.Request) {
	var req NewsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	item, err := s.IngestNews(req.Symbol, req.Headline, tsFromUnix(req.Timestamp))
	if err != nil {
		writeError(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// HandleIngestPayment handles POST /api/v1/ingest/payment.
// Returns the full classification so webhook callers see the verdict.
func (s *Service) HandleIngestPayment(w http.ResponseWriter, r *http.Request) {
	var req PaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	ev, err := s.IngestPayment(req.CustomerID, req.Amount, req.Recipient, tsFromUnix(req.Timestamp))
	if err != nil {
		writeError(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// HandleTrade handles POST /api/v1/trade.
func (s *Service) HandleTrade(w http.ResponseWriter, r *http.Request) {
	var req TradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	tx, err := s.RecordTrade(req.Symbol, req.Action, req.Quantity, req.Price)
	if err != nil {
		status := http.StatusUnprocessableEntity
		if err == ErrInsufficientQty || err == ErrNoMarketPrice {
			status = http.StatusConflict
		}
		writeError(w, err.Error(), status)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

// HandleUploadPortfolio handles POST /api/v1/portfolio with a raw JSON
// holdings document.
func (s *Service) HandleUploadPortfolio(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		writeError(w, "failed to read body", http.StatusBadRequest)
		return
	}
	if err := s.state.LoadPortfolioJSON(body); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, s.state.Holdings())
}

// --- Query handlers ---

// HandlePrices handles GET /api/v1/prices.
func (s *Service) HandlePrices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.state.Prices())
}

// HandlePrice handles GET /api/v1/prices/{symbol}.
func (s *Service) HandlePrice(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	price, ok := s.state.Price(symbol)
	if !ok {
		writeError(w, "no price for symbol "+symbol, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"symbol": symbol, "price": price})
}

// HandlePriceHistory handles GET /api/v1/prices/{symbol}/history.
func (s *Service) HandlePriceHistory(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	hist := s.state.History(symbol)
	if hist == nil {
		hist = []model.PricePoint{}
	}
	writeJSON(w, http.StatusOK, hist)
}

// HandleNews handles GET /api/v1/news?limit=N.
func (s *Service) HandleNews(w http.ResponseWriter, r *http.Request) {
	items := s.state.RecentNews(queryLimit(r))
	if items == nil {
		items = []model.NewsItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

// HandlePayments handles GET /api/v1/payments?limit=N.
func (s *Service) HandlePayments(w http.ResponseWriter, r *http.Request) {
	events := s.state.RecentPayments(queryLimit(r))
	if events == nil {
		events = []model.PaymentEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

// HandleCustomerMetrics handles GET /api/v1/customers/{customerID}/metrics.
func (s *Service) HandleCustomerMetrics(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "customerID")
	m, ok := s.detector.Metrics(customerID)
	if !ok {
		writeError(w, "unknown customer "+customerID, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// HandleSanctions handles GET /api/v1/sanctions.
func (s *Service) HandleSanctions(w http.ResponseWriter, _ *http.Request) {
	entries := s.registry.Entries()
	if entries == nil {
		entries = []sanctions.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// HandlePortfolio handles GET /api/v1/portfolio.
func (s *Service) HandlePortfolio(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.state.Holdings())
}

// --- helpers ---

func tsFromUnix(sec float64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	whole, frac := math.Modf(sec)
	return time.Unix(int64(whole), int64(frac*1e9)).UTC()
}

func queryLimit(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
