package feed

import "time"

// Headline is a canned symbol/headline pair for the simulated news feed.
type Headline struct {
	Symbol string
	Text   string
}

// Config holds every producer cadence and simulation knob. Values are demo
// defaults; deployments override what they need.
type Config struct {
	PriceInterval time.Duration // price random-walk tick
	PriceInitMin  float64       // initial price range lower bound
	PriceInitMax  float64
	PriceStep     float64 // max absolute random-walk step per tick
	PriceFloor    float64 // prices never walk below this

	NewsMinInterval time.Duration // jittered news cadence bounds
	NewsMaxInterval time.Duration

	SanctionsInterval time.Duration

	PaymentsInterval time.Duration
	Customers        []string
	CustomerSeedAvg  float64 // baseline seeded for simulated customers
	CustomerSeedN    int
	PaymentJitter    float64 // stddev as a fraction of the baseline
	Recipients       []string
	SpikeTickCust2   int     // every Nth tick cust_2 spikes
	SpikeMultCust2   float64 // spike multiple of baseline
	SpikeTickCust3   int
	SpikeMultCust3   float64

	WatcherInterval time.Duration
	MoveWindow      time.Duration // trailing window for absolute moves
	MoveThreshold   float64       // absolute price change that alerts
	PctWindow       time.Duration // trailing window for percent moves
	PctThreshold    float64       // percent change that alerts

	ErrorBackoff time.Duration // sleep after a recovered iteration failure

	SanctionedNames []string
	Headlines       []Headline
}

// DefaultConfig returns the demo cadences and rosters.
func DefaultConfig() Config {
	return Config{
		PriceInterval: time.Second,
		PriceInitMin:  50,
		PriceInitMax:  300,
		PriceStep:     0.5,
		PriceFloor:    1.0,

		NewsMinInterval: 10 * time.Second,
		NewsMaxInterval: 20 * time.Second,

		SanctionsInterval: 30 * time.Second,

		PaymentsInterval: 5 * time.Second,
		Customers:        []string{"cust_1", "cust_2", "cust_3"},
		CustomerSeedAvg:  8000,
		CustomerSeedN:    20,
		PaymentJitter:    0.1,
		Recipients:       []string{"John Doe", "CleanVendor", "Ivan Petrov", "GoodBiz"},
		SpikeTickCust2:   12,
		SpikeMultCust2:   40,
		SpikeTickCust3:   25,
		SpikeMultCust3:   50,

		WatcherInterval: 7 * time.Second,
		MoveWindow:      30 * time.Second,
		MoveThreshold:   2.0,
		PctWindow:       60 * time.Second,
		PctThreshold:    1.0,

		ErrorBackoff: 2 * time.Second,

		SanctionedNames: []string{"John Doe", "Acme Imports", "GlobalTrade Ltd", "Ivan Petrov"},
		Headlines: []Headline{
			{"TSLA", "Government announces EV subsidy boosting adoption"},
			{"AAPL", "Apple delays iPhone launch due to supply chain"},
			{"TSLA", "Tesla beats delivery record in Q3"},
			{"AAPL", "Analyst upgrades Apple on services growth"},
		},
	}
}
