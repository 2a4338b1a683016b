package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/tradebot-labs/risk-engine/pkg/types"
)

// Config is the full, exhaustively-fielded engine configuration. Every
// threshold the engine consults exists as a typed field here; there is
// no dynamic lookup and no point-of-use defaulting. The struct is
// loaded once at startup, validated eagerly, then passed by value to
// component constructors.
type Config struct {
	Exchange  ExchangeConfig  `json:"exchange"`
	Sizing    SizingConfig    `json:"sizing"`
	Risk      RiskConfig      `json:"risk"`
	Execution ExecutionConfig `json:"execution"`
	Stops     StopsConfig     `json:"stops"`
	Fees      FeesConfig      `json:"fees"`
	Journal   JournalConfig   `json:"journal"`
	Monitor   MonitorConfig   `json:"monitoring"`
	Notify    NotifyConfig    `json:"notifications"`
	LogDir    string          `json:"log_dir"`
}

// ExchangeConfig identifies the venue and instrument. Credentials come
// from the environment, never from the config file.
type ExchangeConfig struct {
	Name     string `json:"name"`
	Category string `json:"category"` // spot, linear
	Symbol   string `json:"symbol"`
	Demo     bool   `json:"demo"`

	APIKey    string `json:"-"`
	APISecret string `json:"-"`
}

// SizingConfig drives the three estimators and their blend.
type SizingConfig struct {
	// Weighted blend across estimators; must sum to 1.0.
	KellyWeight   float64 `json:"kelly_weight"`
	DynamicWeight float64 `json:"dynamic_weight"`
	CapWeight     float64 `json:"cap_weight"`

	// Kelly estimator.
	KellyWindowSize    int     `json:"kelly_window_size"`
	KellyMinTrades     int     `json:"kelly_min_trades"`
	KellyFloorFraction float64 `json:"kelly_floor_fraction"`
	MaxFraction        float64 `json:"max_fraction"`

	// Dynamic sizer.
	DynamicBaseFraction float64 `json:"dynamic_base_fraction"`

	// Balance-ratio caps per confidence tier.
	MaxRatioLowConfidence    float64 `json:"max_ratio_low_confidence"`
	MaxRatioMediumConfidence float64 `json:"max_ratio_medium_confidence"`
	MaxRatioHighConfidence   float64 `json:"max_ratio_high_confidence"`
	MediumConfidenceFloor    float64 `json:"medium_confidence_floor"`
	HighConfidenceFloor      float64 `json:"high_confidence_floor"`

	// Exchange lot constraints.
	MinLotSize float64 `json:"min_lot_size"`
	LotStep    float64 `json:"lot_step"`
}

// RiskConfig drives the drawdown circuit breaker and the anomaly
// detector.
type RiskConfig struct {
	MinConfidence float64 `json:"min_confidence"`

	LossThreshold     int           `json:"loss_threshold"`
	DrawdownThreshold float64       `json:"drawdown_threshold"`
	CooldownDuration  Duration `json:"cooldown_duration"`

	// Trend strength above which a single trade may pass through an
	// active cooldown.
	SkipCooldownTrendStrength float64 `json:"skip_cooldown_trend_strength"`

	AnomalyWindowSize    int     `json:"anomaly_window_size"`
	AnomalyOutlierZScore float64 `json:"anomaly_outlier_z_score"`
	AnomalyHardSeverity  float64 `json:"anomaly_hard_severity"`
}

// ExecutionConfig drives the maker-first entry state machine and the
// overall cycle deadline.
type ExecutionConfig struct {
	MaxRetries      int           `json:"max_retries"`
	RetryInterval   Duration `json:"retry_interval"`
	FallbackToTaker bool          `json:"fallback_to_taker"`
	CycleTimeout    Duration `json:"cycle_timeout"`
}

// StopsConfig drives protective-order placement.
type StopsConfig struct {
	TPATRMultiplier float64 `json:"tp_atr_multiplier"`
	SLATRMultiplier float64 `json:"sl_atr_multiplier"`

	// Regime scaling applied on top of the base multipliers.
	RegimeMultipliers map[types.Regime]float64 `json:"regime_multipliers"`

	// Floor on protective distance, as a ratio of entry price. Guards
	// against an underestimated ATR producing an unprotectable stop.
	MinDistanceRatio float64 `json:"min_distance_ratio"`

	SlippageBufferRatio float64 `json:"slippage_buffer_ratio"`

	// TP maker attempts before falling back to the native order type.
	TPMaxRetries int `json:"tp_max_retries"`

	// Extended out-of-cycle retry schedule for protection failures.
	ProtectionRetryLimit    int           `json:"protection_retry_limit"`
	ProtectionRetryInterval Duration `json:"protection_retry_interval"`
}

// FeesConfig holds the per-fill-type fee rates. The maker rate may be
// negative on venues that pay rebates.
type FeesConfig struct {
	MakerFeeRate float64 `json:"maker_fee_rate"`
	TakerFeeRate float64 `json:"taker_fee_rate"`
}

// JournalConfig locates the trade-history database.
type JournalConfig struct {
	DBPath string `json:"db_path"`
}

// MonitorConfig holds the observability HTTP ports.
type MonitorConfig struct {
	MetricsPort int `json:"metrics_port"`
	HealthPort  int `json:"health_port"`
}

// NotifyConfig holds alerting credentials, loaded from the environment.
type NotifyConfig struct {
	TelegramToken  string `json:"-"`
	TelegramChatID string `json:"-"`
}

// Load reads the JSON config file, overlays environment credentials
// (optionally from a .env file) and validates the result. Any missing
// or out-of-range field is a startup error.
func Load(path string) (*Config, error) {
	// A missing .env file is fine; exported variables still apply.
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(cfg); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}

	cfg.Exchange.APIKey = os.Getenv("EXCHANGE_API_KEY")
	cfg.Exchange.APISecret = os.Getenv("EXCHANGE_API_SECRET")
	cfg.Notify.TelegramToken = os.Getenv("TELEGRAM_TOKEN")
	cfg.Notify.TelegramChatID = os.Getenv("TELEGRAM_CHAT_ID")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
