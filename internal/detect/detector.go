// Package detect implements statistical anomaly classification for payment
// streams: ratio-to-baseline flagging, rolling z-score flagging, and severity
// tiering. Baselines learn incrementally from non-anomalous observations
// only, so a flagged spike can never poison the reference average.
package detect

import (
	"math"
	"sync"

	"github.com/finsense/feed-engine/internal/model"
)

// Classification thresholds. The 10x ratio flag is authoritative for the
// boolean outcome; the 15x/20x tiers only grade an already-flagged event.
const (
	RatioFlagThreshold     = 10.0
	RatioHighThreshold     = 15.0
	RatioCriticalThreshold = 20.0

	ZFlagThreshold     = 4.0
	ZHighThreshold     = 6.0
	ZCriticalThreshold = 8.0

	// MinZSamples gates the z-score: with fewer rolling samples the
	// z-score is unavailable, not zero.
	MinZSamples = 5

	// HistoryCap bounds the per-customer rolling window.
	HistoryCap = 100

	// Cold-start baseline for unseen customers. A deliberate heuristic:
	// early transactions for customers whose true spend differs a lot
	// from this will misclassify until the baseline converges.
	DefaultBaselineAvg   = 5000.0
	DefaultBaselineCount = 1
)

// Baseline is the per-customer running average used as the anomaly
// reference point.
type Baseline struct {
	Avg   float64 `json:"avg"`
	Count int     `json:"count"`
}

// Result is the classification of a single payment amount.
type Result struct {
	IsAnomaly bool
	Ratio     float64
	ZScore    *float64 // nil when history is insufficient or flat
	Severity  model.Severity
}

type customerState struct {
	baseline Baseline
	history  []float64 // rolling raw amounts, oldest first
}

// Detector holds per-customer baselines and rolling history. Safe for
// concurrent use; each Evaluate runs atomically per call so the whole
// ratio / z-score / baseline-update sequence cannot interleave.
type Detector struct {
	mu        sync.Mutex
	customers map[string]*customerState
}

// New creates an empty detector.
func New() *Detector {
	return &Detector{customers: make(map[string]*customerState)}
}

func (d *Detector) getOrCreate(customerID string) *customerState {
	st, ok := d.customers[customerID]
	if !ok {
		st = &customerState{
			baseline: Baseline{Avg: DefaultBaselineAvg, Count: DefaultBaselineCount},
		}
		d.customers[customerID] = st
	}
	return st
}

// SeedBaseline installs a known baseline for a customer, replacing any
// existing one. Used to bootstrap simulated customers and tests.
func (d *Detector) SeedBaseline(customerID string, avg float64, count int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	st := d.getOrCreate(customerID)
	st.baseline = Baseline{Avg: avg, Count: count}
}

// Baseline returns the current baseline for a customer, if one exists.
func (d *Detector) Baseline(customerID string) (Baseline, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ok := d.customers[customerID]
	if !ok {
		return Baseline{}, false
	}
	return st.baseline, true
}

// Evaluate classifies a new payment amount for a customer. It never fails:
// insufficient history degrades to ratio-only classification, and the
// cold-start default baseline covers unseen customers.
func (d *Detector) Evaluate(customerID string, amount float64) Result {
	d.mu.Lock()
	defer d.mu.Unlock()

	st := d.getOrCreate(customerID)

	st.history = append(st.history, amount)
	if len(st.history) > HistoryCap {
		st.history = st.history[len(st.history)-HistoryCap:]
	}

	var ratio float64
	ratioFlag := false
	if st.baseline.Avg > 0 {
		ratio = amount / st.baseline.Avg
		ratioFlag = ratio >= RatioFlagThreshold
	}

	zscore := rollingZScore(st.history, amount)

	res := Result{
		Ratio:     ratio,
		ZScore:    zscore,
		IsAnomaly: ratioFlag || (zscore != nil && *zscore >= ZFlagThreshold),
		Severity:  model.SeverityNormal,
	}

	if res.IsAnomaly {
		res.Severity = gradeSeverity(ratio, zscore)
	} else {
		// Only clean observations teach the baseline.
		b := &st.baseline
		b.Avg = (b.Avg*float64(b.Count) + amount) / float64(b.Count+1)
		b.Count++
	}

	return res
}

// Metrics returns the query snapshot for a customer: baseline state plus
// min/max/mean over the current rolling window.
func (d *Detector) Metrics(customerID string) (model.CustomerMetrics, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	st, ok := d.customers[customerID]
	if !ok {
		return model.CustomerMetrics{}, false
	}

	m := model.CustomerMetrics{
		CustomerID:    customerID,
		BaselineAvg:   st.baseline.Avg,
		BaselineCount: st.baseline.Count,
		HistoryCount:  len(st.history),
	}
	if len(st.history) == 0 {
		return m, true
	}

	m.Min, m.Max = st.history[0], st.history[0]
	var sum float64
	for _, v := range st.history {
		if v < m.Min {
			m.Min = v
		}
		if v > m.Max {
			m.Max = v
		}
		sum += v
	}
	m.Mean = sum / float64(len(st.history))
	return m, true
}

// rollingZScore computes (amount - mean) / stdev over the window, which
// already includes amount. Returns nil when the window is too small or the
// sample standard deviation is zero.
func rollingZScore(window []float64, amount float64) *float64 {
	n := len(window)
	if n < MinZSamples {
		return nil
	}

	var sum float64
	for _, v := range window {
		sum += v
	}
	mean := sum / float64(n)

	var m2 float64
	for _, v := range window {
		d := v - mean
		m2 += d * d
	}
	stdev := math.Sqrt(m2 / float64(n-1))
	if stdev == 0 {
		return nil
	}

	z := (amount - mean) / stdev
	return &z
}

func gradeSeverity(ratio float64, zscore *float64) model.Severity {
	switch {
	case ratio >= RatioCriticalThreshold || (zscore != nil && *zscore >= ZCriticalThreshold):
		return model.SeverityCritical
	case ratio >= RatioHighThreshold || (zscore != nil && *zscore >= ZHighThreshold):
		return model.SeverityHigh
	default:
		return model.SeverityMedium
	}
}
