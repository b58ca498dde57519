// Package feed runs the simulated producer loops: price random walk, news
// ticker, sanctions rotation, synthetic payments, and the portfolio
// watcher. Each producer is an independent goroutine under one shared
// cancellation scope; an iteration failure is recovered, logged, and the
// loop continues after a backoff. No producer can crash a sibling or the
// process.
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/finsense/feed-engine/internal/metrics"
	"github.com/finsense/feed-engine/internal/model"
	"github.com/finsense/feed-engine/internal/stream"
)

// Orchestrator supervises the producer set. Start spawns every producer;
// Stop cancels them together and waits for them to drain.
type Orchestrator struct {
	svc    *stream.Service
	cfg    Config
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an orchestrator over the given service.
func New(svc *stream.Service, cfg Config) *Orchestrator {
	return &Orchestrator{svc: svc, cfg: cfg}
}

// Start launches all producer loops. Producers run until Stop is called or
// the parent context is cancelled.
func (o *Orchestrator) Start(ctx context.Context) {
	ctx, o.cancel = context.WithCancel(ctx)

	o.spawn(ctx, "prices", o.priceTicker)
	o.spawn(ctx, "news", o.newsTicker)
	o.spawn(ctx, "sanctions", o.sanctionsTicker)
	o.spawn(ctx, "payments", o.paymentsTicker)
	o.spawn(ctx, "watcher", o.portfolioWatcher)

	slog.Info("feed orchestrator started", "producers", 5)
}

// Stop cancels every producer and blocks until all have exited.
func (o *Orchestrator) Stop() {
	if o.cancel != nil {
		o.cancel()
	}
	o.wg.Wait()
	slog.Info("feed orchestrator stopped")
}

// spawn runs a producer loop in its own goroutine with panic containment.
func (o *Orchestrator) spawn(ctx context.Context, name string, loop func(ctx context.Context) error) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		for {
			err := o.runGuarded(name, ctx, loop)
			if ctx.Err() != nil {
				return
			}
			slog.Error("producer failed, restarting after backoff", "producer", name, "err", err)
			metrics.ProducerErrors.WithLabelValues(name).Inc()
			select {
			case <-ctx.Done():
				return
			case <-time.After(o.cfg.ErrorBackoff):
			}
		}
	}()
}

// runGuarded converts a producer panic into an error so the supervisor
// can restart the loop.
func (o *Orchestrator) runGuarded(name string, ctx context.Context, loop func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("producer %s panicked: %v", name, r)
		}
	}()
	return loop(ctx)
}

// --- Producers ---

// priceTicker random-walks every tracked symbol once per interval.
func (o *Orchestrator) priceTicker(ctx context.Context) error {
	state := o.svc.State()

	// Initialize any symbol that has no price yet.
	for _, sym := range state.Symbols() {
		if _, ok := state.Price(sym); !ok {
			p := o.cfg.PriceInitMin + rand.Float64()*(o.cfg.PriceInitMax-o.cfg.PriceInitMin)
			if err := o.svc.IngestPrice(sym, p, time.Time{}); err != nil {
				return err
			}
		}
	}

	ticker := time.NewTicker(o.cfg.PriceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		for _, sym := range state.Symbols() {
			cur, _ := state.Price(sym)
			delta := (rand.Float64()*2 - 1) * o.cfg.PriceStep
			next := cur + delta
			if next < o.cfg.PriceFloor {
				next = o.cfg.PriceFloor
			}
			if err := o.svc.IngestPrice(sym, next, time.Time{}); err != nil {
				return err
			}
		}
	}
}

// newsTicker emits a canned headline at a jittered cadence.
func (o *Orchestrator) newsTicker(ctx context.Context) error {
	for {
		jitter := o.cfg.NewsMinInterval +
			time.Duration(rand.Float64()*float64(o.cfg.NewsMaxInterval-o.cfg.NewsMinInterval))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(jitter):
		}

		if len(o.cfg.Headlines) == 0 {
			continue
		}
		h := o.cfg.Headlines[rand.Intn(len(o.cfg.Headlines))]
		if _, err := o.svc.IngestNews(h.Symbol, h.Text, time.Time{}); err != nil {
			return err
		}
	}
}

// sanctionsTicker adds the next name from the rotating roster.
func (o *Orchestrator) sanctionsTicker(ctx context.Context) error {
	ticker := time.NewTicker(o.cfg.SanctionsInterval)
	defer ticker.Stop()

	idx := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if len(o.cfg.SanctionedNames) == 0 {
			continue
		}
		name := o.cfg.SanctionedNames[idx%len(o.cfg.SanctionedNames)]
		idx++
		o.svc.FlagRecipient(name, time.Time{})
	}
}

// paymentsTicker generates synthetic payments around each customer's
// baseline with periodic deliberate spikes, and runs them through the full
// ingestion pipeline (anomaly evaluation, sanctions lookup, baseline
// feedback).
func (o *Orchestrator) paymentsTicker(ctx context.Context) error {
	det := o.svc.Detector()
	for _, cid := range o.cfg.Customers {
		if _, ok := det.Baseline(cid); !ok {
			det.SeedBaseline(cid, o.cfg.CustomerSeedAvg, o.cfg.CustomerSeedN)
		}
	}

	ticker := time.NewTicker(o.cfg.PaymentsInterval)
	defer ticker.Stop()

	tick := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		tick++

		for _, cid := range o.cfg.Customers {
			b, _ := det.Baseline(cid)
			amt := b.Avg + rand.NormFloat64()*b.Avg*o.cfg.PaymentJitter
			if amt < 0 {
				amt = -amt
			}

			// Deliberate spikes so the demo raises fraud alerts.
			switch {
			case cid == "cust_2" && o.cfg.SpikeTickCust2 > 0 && tick%o.cfg.SpikeTickCust2 == 0:
				amt = b.Avg * o.cfg.SpikeMultCust2
			case cid == "cust_3" && o.cfg.SpikeTickCust3 > 0 && tick%o.cfg.SpikeTickCust3 == 0:
				amt = b.Avg * o.cfg.SpikeMultCust3
			}

			recipient := o.cfg.Recipients[rand.Intn(len(o.cfg.Recipients))]
			_, err := o.svc.IngestPayment(cid, decimal.NewFromFloat(amt).Round(2), recipient, time.Time{})
			if err != nil {
				return err
			}
		}
	}
}

// portfolioWatcher raises price-move alerts for held symbols when the
// trailing windows show a large absolute or percent change.
func (o *Orchestrator) portfolioWatcher(ctx context.Context) error {
	state := o.svc.State()

	ticker := time.NewTicker(o.cfg.WatcherInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		holdings := state.Holdings()
		if len(holdings) == 0 {
			continue
		}
		now := time.Now().UTC()

		for sym, qty := range holdings {
			if qty == 0 {
				continue
			}
			if _, ok := state.Price(sym); !ok {
				continue
			}

			if recent := state.RecentPriceWindow(sym, o.cfg.MoveWindow, now); len(recent) >= 2 {
				chg := recent[len(recent)-1].Price - recent[0].Price
				if math.Abs(chg) > o.cfg.MoveThreshold {
					o.svc.PublishAlert(model.PortfolioAlert{
						Channel:   model.ChannelPortfolio,
						Kind:      "price-move",
						Symbol:    sym,
						Timestamp: now,
						Message:   fmt.Sprintf("%s moved %+.2f in last %ds.", sym, chg, int(o.cfg.MoveWindow.Seconds())),
					})
				}
			}

			if recent := state.RecentPriceWindow(sym, o.cfg.PctWindow, now); len(recent) >= 2 && recent[0].Price > 0 {
				chg := recent[len(recent)-1].Price - recent[0].Price
				pct := chg / recent[0].Price * 100
				if math.Abs(pct) > o.cfg.PctThreshold {
					o.svc.PublishAlert(model.PortfolioAlert{
						Channel:   model.ChannelPortfolio,
						Kind:      "price-move",
						Symbol:    sym,
						ChangePct: round2(pct),
						Timestamp: now,
						Message: fmt.Sprintf("%s moved %+.1f%% in last %ds (%g shares held).",
							sym, pct, int(o.cfg.PctWindow.Seconds()), qty),
					})
				}
			}
		}
	}
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
