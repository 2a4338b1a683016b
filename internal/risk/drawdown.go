package risk

import (
	"sync"
	"time"

	"github.com/tradebot-labs/risk-engine/pkg/types"
)

// BreakerState names the circuit-breaker phase.
type BreakerState string

const (
	BreakerNormal BreakerState = "normal"
	BreakerPaused BreakerState = "paused"
)

// DrawdownState is a read-only snapshot of the circuit breaker.
type DrawdownState struct {
	State                BreakerState
	ConsecutiveLosses    int
	CumulativeDrawdown   float64
	CooldownUntil        *time.Time
	SkipUsedThisCooldown bool
}

// DrawdownManager is the Normal -> Paused(cooldown) -> Normal circuit
// breaker. It pauses new entries after a loss streak or a realized
// drawdown breach, for a fixed configured duration. There is no manual
// override path; the only escape is the bounded trend-strength
// exception, one trade per cooldown window.
//
// State mutates only on trade settlement. Cycles are sequential, but
// the mutex keeps snapshots consistent for the observability surface.
type DrawdownManager struct {
	lossThreshold      int
	drawdownThreshold  float64
	cooldownDuration   time.Duration
	skipTrendThreshold float64

	mu                sync.Mutex
	consecutiveLosses int
	balanceHistory    []float64
	cooldownUntil     *time.Time
	skipUsed          bool
}

// NewDrawdownManager creates the circuit breaker. initialBalance seeds
// the realized-balance history so drawdown is measurable from the
// first settlement.
func NewDrawdownManager(lossThreshold int, drawdownThreshold float64, cooldown time.Duration, skipTrendThreshold float64, initialBalance float64) *DrawdownManager {
	return &DrawdownManager{
		lossThreshold:      lossThreshold,
		drawdownThreshold:  drawdownThreshold,
		cooldownDuration:   cooldown,
		skipTrendThreshold: skipTrendThreshold,
		balanceHistory:     []float64{initialBalance},
	}
}

// Allows reports whether a new entry may proceed at the given time.
// During cooldown a signal whose trend strength exceeds the configured
// skip threshold is permitted, at most once per cooldown window. The
// exception is not consumed here: ConsumeSkip burns it once the trade
// is actually approved, so a downstream rejection does not waste it.
func (d *DrawdownManager) Allows(now time.Time, trendStrength float64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cooldownUntil == nil {
		return true
	}
	if !now.Before(*d.cooldownUntil) {
		// Automatic Paused -> Normal transition.
		d.cooldownUntil = nil
		d.skipUsed = false
		return true
	}
	return !d.skipUsed && trendStrength >= d.skipTrendThreshold
}

// ConsumeSkip burns the single cooldown exception. No-op outside an
// active cooldown window.
func (d *DrawdownManager) ConsumeSkip(now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cooldownUntil != nil && now.Before(*d.cooldownUntil) {
		d.skipUsed = true
	}
}

// RecordSettlement feeds a settled trade and the resulting realized
// balance into the breaker, and opens the cooldown window when either
// trigger fires.
func (d *DrawdownManager) RecordSettlement(record types.TradeRecord, realizedBalance float64, now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if record.IsWin() {
		d.consecutiveLosses = 0
	} else {
		d.consecutiveLosses++
	}
	d.balanceHistory = append(d.balanceHistory, realizedBalance)

	if d.consecutiveLosses >= d.lossThreshold || d.currentDrawdown() >= d.drawdownThreshold {
		until := now.Add(d.cooldownDuration)
		d.cooldownUntil = &until
		d.skipUsed = false
	}
}

// currentDrawdown recomputes the peak-to-current ratio from the full
// realized-balance history. Full recomputation avoids incremental
// drift. Caller holds the lock.
func (d *DrawdownManager) currentDrawdown() float64 {
	peak := 0.0
	for _, b := range d.balanceHistory {
		if b > peak {
			peak = b
		}
	}
	if peak <= 0 {
		return 0
	}
	current := d.balanceHistory[len(d.balanceHistory)-1]
	dd := (peak - current) / peak
	if dd < 0 {
		return 0
	}
	return dd
}

// State returns a snapshot for logging and metrics.
func (d *DrawdownManager) State(now time.Time) DrawdownState {
	d.mu.Lock()
	defer d.mu.Unlock()

	state := BreakerNormal
	var until *time.Time
	if d.cooldownUntil != nil && now.Before(*d.cooldownUntil) {
		state = BreakerPaused
		u := *d.cooldownUntil
		until = &u
	}
	return DrawdownState{
		State:                state,
		ConsecutiveLosses:    d.consecutiveLosses,
		CumulativeDrawdown:   d.currentDrawdown(),
		CooldownUntil:        until,
		SkipUsedThisCooldown: d.skipUsed,
	}
}
