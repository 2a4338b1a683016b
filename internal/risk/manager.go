package risk

import (
	"fmt"
	"time"

	"github.com/tradebot-labs/risk-engine/internal/config"
	"github.com/tradebot-labs/risk-engine/internal/errors"
	"github.com/tradebot-labs/risk-engine/internal/logger"
	"github.com/tradebot-labs/risk-engine/internal/sizing"
	"github.com/tradebot-labs/risk-engine/pkg/types"
)

// Decision is the outcome of one trade-opportunity evaluation. Exactly
// one of Approved/Rejected holds; a rejection always carries a
// machine-readable reason code.
type Decision struct {
	Approved bool
	Size     *sizing.Estimate
	Side     types.TradeSide
	Reason   errors.ReasonCode
	Detail   string
}

// Approved builds an approval decision.
func approved(side types.TradeSide, size *sizing.Estimate) Decision {
	return Decision{Approved: true, Side: side, Size: size}
}

// rejected builds a rejection with its reason code.
func rejected(reason errors.ReasonCode, detail string) Decision {
	return Decision{Reason: reason, Detail: detail}
}

// Manager orchestrates the drawdown breaker, the anomaly detector and
// the size integrator into one evaluation call. It exclusively owns
// the drawdown state, the anomaly buffers and the Kelly trade-history
// window; all mutation is serialized through it.
type Manager struct {
	cfg        config.RiskConfig
	sizingCfg  config.SizingConfig
	integrator *sizing.Integrator
	drawdown   *DrawdownManager
	anomaly    *AnomalyDetector
	log        *logger.Logger

	history       []types.TradeRecord
	historyWindow int

	now func() time.Time
}

// NewManager wires the risk orchestrator from validated configuration.
// seedHistory is the persisted trade window loaded at startup.
func NewManager(cfg config.RiskConfig, sizingCfg config.SizingConfig, initialBalance float64, seedHistory []types.TradeRecord, log *logger.Logger) *Manager {
	m := &Manager{
		cfg:        cfg,
		sizingCfg:  sizingCfg,
		integrator: sizing.NewIntegrator(sizingCfg),
		drawdown: NewDrawdownManager(
			cfg.LossThreshold,
			cfg.DrawdownThreshold,
			cfg.CooldownDuration.Std(),
			cfg.SkipCooldownTrendStrength,
			initialBalance,
		),
		anomaly:       NewAnomalyDetector(cfg.AnomalyWindowSize, cfg.AnomalyOutlierZScore),
		log:           log,
		historyWindow: sizingCfg.KellyWindowSize,
		now:           time.Now,
	}
	for _, record := range seedHistory {
		m.appendHistory(record)
	}
	return m
}

// EvaluateTradeOpportunity turns a signal into an approved size or a
// coded rejection. Any internal failure during evaluation is a
// rejection with reason internal_error, never a silent approval.
func (m *Manager) EvaluateTradeOpportunity(signal types.TradeSignal, availableBalance float64, book types.OrderBookSnapshot) (decision Decision) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("risk evaluation panic: %v", r)
			decision = rejected(errors.ReasonInternalError, fmt.Sprintf("panic: %v", r))
		}
	}()

	now := m.now()

	if signal.Action == types.ActionHold {
		return rejected(errors.ReasonNoActionableSignal, "signal action is hold")
	}
	if signal.Action != types.ActionBuy && signal.Action != types.ActionSell {
		return rejected(errors.ReasonInvalidInput, fmt.Sprintf("unknown signal action %q", signal.Action))
	}
	if signal.Confidence < 0 || signal.Confidence > 1 {
		return rejected(errors.ReasonInvalidInput, fmt.Sprintf("confidence %.4f out of [0,1]", signal.Confidence))
	}

	// The breaker is the cheapest check; it short-circuits everything
	// else while the cooldown window holds.
	if !m.drawdown.Allows(now, signal.TrendStrength) {
		state := m.drawdown.State(now)
		return rejected(errors.ReasonCooldownActive,
			fmt.Sprintf("cooldown active until %s after %d consecutive losses", state.CooldownUntil.Format(time.RFC3339), state.ConsecutiveLosses))
	}

	side := sideForAction(signal.Action)
	refPrice := book.MidPrice()
	if refPrice <= 0 {
		return rejected(errors.ReasonInternalError, "order book snapshot has no usable mid price")
	}

	// Anomaly assessment is advisory below the hard threshold: it
	// shades confidence rather than vetoing the trade. The provisional
	// amount is the tier-cap quantity, the most this signal could
	// trade.
	provisionalQty := availableBalance * m.sizingCfg.MaxRatioFor(signal.Confidence) / refPrice
	assessment := m.anomaly.Assess(side, provisionalQty, now)
	if assessment.Severity >= m.cfg.AnomalyHardSeverity {
		return rejected(errors.ReasonAnomalyDetected,
			fmt.Sprintf("severity %.2f flags %v", assessment.Severity, assessment.Flags))
	}
	confidence := signal.Confidence * (1 - assessment.Severity)

	if confidence < m.cfg.MinConfidence {
		return rejected(errors.ReasonBelowMinConfidence,
			fmt.Sprintf("effective confidence %.4f below minimum %.4f", confidence, m.cfg.MinConfidence))
	}

	estimate, err := m.integrator.Compute(confidence, m.history, availableBalance, signal.ATRRatio, refPrice)
	if err != nil {
		m.log.LogError("sizing failed", err)
		return rejected(errors.ReasonInternalError, err.Error())
	}

	// An approval that passed through an active cooldown consumes the
	// single trend-strength exception; rejections above never reach
	// this point, so they leave it intact.
	m.drawdown.ConsumeSkip(now)

	return approved(side, estimate)
}

// RecordEntry feeds a confirmed fill into the anomaly pattern window.
// Only executed trades enter the reversal and outlier statistics;
// approvals whose entries were abandoned do not.
func (m *Manager) RecordEntry(side types.TradeSide, quantity float64) {
	m.anomaly.Record(side, quantity, m.now())
}

// RecordSettlement feeds a settled trade back into the history window
// and the drawdown breaker. This is the only mutation path for either.
func (m *Manager) RecordSettlement(record types.TradeRecord, realizedBalance float64) {
	m.appendHistory(record)
	m.drawdown.RecordSettlement(record, realizedBalance, m.now())
}

// DrawdownState exposes the breaker snapshot for logging and metrics.
func (m *Manager) DrawdownState() DrawdownState {
	return m.drawdown.State(m.now())
}

func (m *Manager) appendHistory(record types.TradeRecord) {
	m.history = append(m.history, record)
	if len(m.history) > m.historyWindow {
		m.history = m.history[1:]
	}
}

func sideForAction(action types.SignalAction) types.TradeSide {
	if action == types.ActionSell {
		return types.SideShort
	}
	return types.SideLong
}
