package risk

import (
	"math"
	"time"

	"github.com/tradebot-labs/risk-engine/pkg/types"
)

// AnomalyAssessment is the detector's advisory output. Severity is in
// [0,1]; Flags name the patterns that contributed.
type AnomalyAssessment struct {
	Severity float64
	Flags    []string
}

// tradeSample is one observed entry used for pattern detection.
type tradeSample struct {
	side   types.TradeSide
	amount float64
	at     time.Time
}

// AnomalyDetector flags statistically abnormal trade patterns as
// advisory signals: rapid direction reversals and outlier sizes. The
// rolling buffer is owned by the risk manager and only touched from
// the sequential cycle path.
type AnomalyDetector struct {
	windowSize    int
	outlierZScore float64

	samples []tradeSample
}

// reversalWindow bounds how recent a flip-flop sequence must be to
// count as a rapid reversal.
const reversalWindow = 15 * time.Minute

// NewAnomalyDetector creates a detector with a bounded sample window.
func NewAnomalyDetector(windowSize int, outlierZScore float64) *AnomalyDetector {
	return &AnomalyDetector{
		windowSize:    windowSize,
		outlierZScore: outlierZScore,
	}
}

// Record observes an executed entry. Oldest samples are evicted once
// the window is full.
func (a *AnomalyDetector) Record(side types.TradeSide, amount float64, at time.Time) {
	a.samples = append(a.samples, tradeSample{side: side, amount: amount, at: at})
	if len(a.samples) > a.windowSize {
		a.samples = a.samples[1:]
	}
}

// Assess scores a proposed entry against the recent pattern window.
func (a *AnomalyDetector) Assess(side types.TradeSide, amount float64, now time.Time) AnomalyAssessment {
	assessment := AnomalyAssessment{}

	if a.isRapidReversal(side, now) {
		assessment.Severity += 0.5
		assessment.Flags = append(assessment.Flags, "rapid_reversal")
	}
	if a.isOutlierSize(amount) {
		assessment.Severity += 0.5
		assessment.Flags = append(assessment.Flags, "outlier_size")
	}
	if assessment.Severity > 1 {
		assessment.Severity = 1
	}
	return assessment
}

// isRapidReversal reports whether the proposed side would complete a
// second direction flip within the reversal window.
func (a *AnomalyDetector) isRapidReversal(side types.TradeSide, now time.Time) bool {
	flips := 0
	prev := side
	for i := len(a.samples) - 1; i >= 0; i-- {
		s := a.samples[i]
		if now.Sub(s.at) > reversalWindow {
			break
		}
		if s.side != prev {
			flips++
			prev = s.side
		}
	}
	return flips >= 2
}

// isOutlierSize reports whether the proposed amount deviates from the
// rolling mean by more than the configured z-score.
func (a *AnomalyDetector) isOutlierSize(amount float64) bool {
	if len(a.samples) < 3 {
		return false
	}
	var sum float64
	for _, s := range a.samples {
		sum += s.amount
	}
	mean := sum / float64(len(a.samples))

	var variance float64
	for _, s := range a.samples {
		variance += (s.amount - mean) * (s.amount - mean)
	}
	variance /= float64(len(a.samples))
	stddev := math.Sqrt(variance)
	if stddev == 0 {
		return amount != mean
	}
	return math.Abs(amount-mean)/stddev > a.outlierZScore
}
