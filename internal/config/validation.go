package config

import (
	"fmt"
	"math"

	"github.com/tradebot-labs/risk-engine/internal/errors"
	"github.com/tradebot-labs/risk-engine/pkg/types"
)

const weightSumTolerance = 1e-9

// Validate checks every numeric threshold eagerly. The engine refuses
// to start on any violation rather than running with undefined numeric
// behavior.
func (c *Config) Validate() error {
	if err := c.Exchange.validate(); err != nil {
		return err
	}
	if err := c.Sizing.validate(); err != nil {
		return err
	}
	if err := c.Risk.validate(); err != nil {
		return err
	}
	if err := c.Execution.validate(); err != nil {
		return err
	}
	if err := c.Stops.validate(); err != nil {
		return err
	}
	if err := c.Fees.validate(); err != nil {
		return err
	}
	if c.Journal.DBPath == "" {
		return errors.NewConfiguration("journal", "db_path is required")
	}
	return nil
}

func (e *ExchangeConfig) validate() error {
	if e.Symbol == "" {
		return errors.NewConfiguration("exchange", "symbol is required")
	}
	if e.Category != "spot" && e.Category != "linear" {
		return errors.NewConfiguration("exchange", fmt.Sprintf("category must be spot or linear, got %q", e.Category))
	}
	return nil
}

func (s *SizingConfig) validate() error {
	sum := s.KellyWeight + s.DynamicWeight + s.CapWeight
	if math.Abs(sum-1.0) > weightSumTolerance {
		return errors.NewConfiguration("sizing", fmt.Sprintf("estimator weights must sum to 1.0, got %.6f", sum))
	}
	for name, w := range map[string]float64{
		"kelly_weight":   s.KellyWeight,
		"dynamic_weight": s.DynamicWeight,
		"cap_weight":     s.CapWeight,
	} {
		if w < 0 || w > 1 {
			return errors.NewConfiguration("sizing", fmt.Sprintf("%s must be in [0,1], got %.4f", name, w))
		}
	}
	if s.KellyWindowSize <= 0 {
		return errors.NewConfiguration("sizing", fmt.Sprintf("kelly_window_size must be positive, got %d", s.KellyWindowSize))
	}
	if s.KellyMinTrades <= 0 || s.KellyMinTrades > s.KellyWindowSize {
		return errors.NewConfiguration("sizing", fmt.Sprintf("kelly_min_trades must be in [1,%d], got %d", s.KellyWindowSize, s.KellyMinTrades))
	}
	if s.KellyFloorFraction <= 0 || s.KellyFloorFraction > s.MaxFraction {
		return errors.NewConfiguration("sizing", fmt.Sprintf("kelly_floor_fraction must be in (0,%.4f], got %.4f", s.MaxFraction, s.KellyFloorFraction))
	}
	if s.MaxFraction <= 0 || s.MaxFraction > 1 {
		return errors.NewConfiguration("sizing", fmt.Sprintf("max_fraction must be in (0,1], got %.4f", s.MaxFraction))
	}
	if s.DynamicBaseFraction <= 0 || s.DynamicBaseFraction > 1 {
		return errors.NewConfiguration("sizing", fmt.Sprintf("dynamic_base_fraction must be in (0,1], got %.4f", s.DynamicBaseFraction))
	}
	for name, r := range map[string]float64{
		"max_ratio_low_confidence":    s.MaxRatioLowConfidence,
		"max_ratio_medium_confidence": s.MaxRatioMediumConfidence,
		"max_ratio_high_confidence":   s.MaxRatioHighConfidence,
	} {
		if r <= 0 || r > 1 {
			return errors.NewConfiguration("sizing", fmt.Sprintf("%s must be in (0,1], got %.4f", name, r))
		}
	}
	if s.MediumConfidenceFloor <= 0 || s.MediumConfidenceFloor >= s.HighConfidenceFloor || s.HighConfidenceFloor >= 1 {
		return errors.NewConfiguration("sizing", fmt.Sprintf("confidence tiers must satisfy 0 < medium (%.2f) < high (%.2f) < 1", s.MediumConfidenceFloor, s.HighConfidenceFloor))
	}
	if s.MinLotSize <= 0 {
		return errors.NewConfiguration("sizing", fmt.Sprintf("min_lot_size must be positive, got %.8f", s.MinLotSize))
	}
	if s.LotStep <= 0 {
		return errors.NewConfiguration("sizing", fmt.Sprintf("lot_step must be positive, got %.8f", s.LotStep))
	}
	return nil
}

func (r *RiskConfig) validate() error {
	if r.MinConfidence < 0 || r.MinConfidence > 1 {
		return errors.NewConfiguration("risk", fmt.Sprintf("min_confidence must be in [0,1], got %.4f", r.MinConfidence))
	}
	if r.LossThreshold <= 0 {
		return errors.NewConfiguration("risk", fmt.Sprintf("loss_threshold must be positive, got %d", r.LossThreshold))
	}
	if r.DrawdownThreshold <= 0 || r.DrawdownThreshold >= 1 {
		return errors.NewConfiguration("risk", fmt.Sprintf("drawdown_threshold must be in (0,1), got %.4f", r.DrawdownThreshold))
	}
	if r.CooldownDuration.Std() <= 0 {
		return errors.NewConfiguration("risk", fmt.Sprintf("cooldown_duration must be positive, got %s", r.CooldownDuration))
	}
	if r.SkipCooldownTrendStrength <= 0 {
		return errors.NewConfiguration("risk", fmt.Sprintf("skip_cooldown_trend_strength must be positive, got %.2f", r.SkipCooldownTrendStrength))
	}
	if r.AnomalyWindowSize < 2 {
		return errors.NewConfiguration("risk", fmt.Sprintf("anomaly_window_size must be at least 2, got %d", r.AnomalyWindowSize))
	}
	if r.AnomalyOutlierZScore <= 0 {
		return errors.NewConfiguration("risk", fmt.Sprintf("anomaly_outlier_z_score must be positive, got %.2f", r.AnomalyOutlierZScore))
	}
	if r.AnomalyHardSeverity <= 0 || r.AnomalyHardSeverity > 1 {
		return errors.NewConfiguration("risk", fmt.Sprintf("anomaly_hard_severity must be in (0,1], got %.2f", r.AnomalyHardSeverity))
	}
	return nil
}

func (e *ExecutionConfig) validate() error {
	if e.MaxRetries <= 0 {
		return errors.NewConfiguration("execution", fmt.Sprintf("max_retries must be positive, got %d", e.MaxRetries))
	}
	if e.RetryInterval.Std() <= 0 {
		return errors.NewConfiguration("execution", fmt.Sprintf("retry_interval must be positive, got %s", e.RetryInterval))
	}
	if e.CycleTimeout.Std() <= 0 {
		return errors.NewConfiguration("execution", fmt.Sprintf("cycle_timeout must be positive, got %s", e.CycleTimeout))
	}
	return nil
}

func (s *StopsConfig) validate() error {
	if s.TPATRMultiplier <= 0 {
		return errors.NewConfiguration("stops", fmt.Sprintf("tp_atr_multiplier must be positive, got %.2f", s.TPATRMultiplier))
	}
	if s.SLATRMultiplier <= 0 {
		return errors.NewConfiguration("stops", fmt.Sprintf("sl_atr_multiplier must be positive, got %.2f", s.SLATRMultiplier))
	}
	for _, regime := range []types.Regime{types.RegimeTightRange, types.RegimeNormalRange, types.RegimeTrending} {
		m, ok := s.RegimeMultipliers[regime]
		if !ok {
			return errors.NewConfiguration("stops", fmt.Sprintf("regime_multipliers missing entry for %s", regime))
		}
		if m <= 0 {
			return errors.NewConfiguration("stops", fmt.Sprintf("regime multiplier for %s must be positive, got %.2f", regime, m))
		}
	}
	if s.MinDistanceRatio <= 0 || s.MinDistanceRatio >= 1 {
		return errors.NewConfiguration("stops", fmt.Sprintf("min_distance_ratio must be in (0,1), got %.4f", s.MinDistanceRatio))
	}
	if s.SlippageBufferRatio < 0 || s.SlippageBufferRatio >= 1 {
		return errors.NewConfiguration("stops", fmt.Sprintf("slippage_buffer_ratio must be in [0,1), got %.4f", s.SlippageBufferRatio))
	}
	if s.TPMaxRetries <= 0 {
		return errors.NewConfiguration("stops", fmt.Sprintf("tp_max_retries must be positive, got %d", s.TPMaxRetries))
	}
	if s.ProtectionRetryLimit <= 0 {
		return errors.NewConfiguration("stops", fmt.Sprintf("protection_retry_limit must be positive, got %d", s.ProtectionRetryLimit))
	}
	if s.ProtectionRetryInterval.Std() <= 0 {
		return errors.NewConfiguration("stops", fmt.Sprintf("protection_retry_interval must be positive, got %s", s.ProtectionRetryInterval))
	}
	return nil
}

func (f *FeesConfig) validate() error {
	// Maker rebates are expressed as a negative rate.
	if f.MakerFeeRate < -0.01 || f.MakerFeeRate > 0.01 {
		return errors.NewConfiguration("fees", fmt.Sprintf("maker_fee_rate out of sane range [-1%%,1%%], got %.4f", f.MakerFeeRate))
	}
	if f.TakerFeeRate < 0 || f.TakerFeeRate > 0.01 {
		return errors.NewConfiguration("fees", fmt.Sprintf("taker_fee_rate out of sane range [0,1%%], got %.4f", f.TakerFeeRate))
	}
	return nil
}

// MaxRatioFor returns the balance-ratio cap for a confidence level,
// using the static per-tier caps.
func (s *SizingConfig) MaxRatioFor(confidence float64) float64 {
	switch {
	case confidence >= s.HighConfidenceFloor:
		return s.MaxRatioHighConfidence
	case confidence >= s.MediumConfidenceFloor:
		return s.MaxRatioMediumConfidence
	default:
		return s.MaxRatioLowConfidence
	}
}
