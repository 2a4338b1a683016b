package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradebot-labs/risk-engine/pkg/types"
)

func validConfig() Config {
	return Config{
		Exchange: ExchangeConfig{Name: "bybit", Category: "linear", Symbol: "BTCUSDT", Demo: true},
		Sizing: SizingConfig{
			KellyWeight: 0.5, DynamicWeight: 0.3, CapWeight: 0.2,
			KellyWindowSize: 50, KellyMinTrades: 10, KellyFloorFraction: 0.01, MaxFraction: 0.25,
			DynamicBaseFraction: 0.02,
			MaxRatioLowConfidence: 0.05, MaxRatioMediumConfidence: 0.10, MaxRatioHighConfidence: 0.15,
			MediumConfidenceFloor: 0.5, HighConfidenceFloor: 0.75,
			MinLotSize: 0.001, LotStep: 0.001,
		},
		Risk: RiskConfig{
			MinConfidence: 0.3, LossThreshold: 3, DrawdownThreshold: 0.1,
			CooldownDuration:          Duration(45 * time.Minute),
			SkipCooldownTrendStrength: 60,
			AnomalyWindowSize:         20, AnomalyOutlierZScore: 3, AnomalyHardSeverity: 0.9,
		},
		Execution: ExecutionConfig{
			MaxRetries: 3, RetryInterval: Duration(2 * time.Second),
			FallbackToTaker: true, CycleTimeout: Duration(90 * time.Second),
		},
		Stops: StopsConfig{
			TPATRMultiplier: 2, SLATRMultiplier: 1.5,
			RegimeMultipliers: map[types.Regime]float64{
				types.RegimeTightRange: 0.8, types.RegimeNormalRange: 1.0, types.RegimeTrending: 1.3,
			},
			MinDistanceRatio: 0.005, SlippageBufferRatio: 0.002,
			TPMaxRetries: 3, ProtectionRetryLimit: 5, ProtectionRetryInterval: Duration(time.Minute),
		},
		Fees:    FeesConfig{MakerFeeRate: -0.0002, TakerFeeRate: 0.0012},
		Journal: JournalConfig{DBPath: "trades.db"},
		LogDir:  "logs",
	}
}

func TestValidate_AcceptsCompleteConfig(t *testing.T) {
	cfg := validConfig()
	assert.NoError(t, cfg.Validate())
}

func TestValidate_RejectsWeightSumDrift(t *testing.T) {
	cfg := validConfig()
	cfg.Sizing.KellyWeight = 0.6
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsMissingRegimeMultiplier(t *testing.T) {
	cfg := validConfig()
	delete(cfg.Stops.RegimeMultipliers, types.RegimeTrending)
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsInvertedConfidenceTiers(t *testing.T) {
	cfg := validConfig()
	cfg.Sizing.MediumConfidenceFloor = 0.8
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsInsaneFeeRates(t *testing.T) {
	cfg := validConfig()
	cfg.Fees.TakerFeeRate = 0.5
	assert.Error(t, cfg.Validate())
}

func TestDuration_UnmarshalForms(t *testing.T) {
	var d Duration
	require.NoError(t, json.Unmarshal([]byte(`"45m"`), &d))
	assert.Equal(t, 45*time.Minute, d.Std())

	require.NoError(t, json.Unmarshal([]byte(`90`), &d))
	assert.Equal(t, 90*time.Second, d.Std())

	assert.Error(t, json.Unmarshal([]byte(`"not-a-duration"`), &d))
	assert.Error(t, json.Unmarshal([]byte(`true`), &d))
}

func TestLoad_ReadsFileAndEnvironmentCredentials(t *testing.T) {
	cfg := validConfig()
	data, err := json.Marshal(&cfg)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, data, 0644))

	t.Setenv("EXCHANGE_API_KEY", "key-from-env")
	t.Setenv("EXCHANGE_API_SECRET", "secret-from-env")

	loaded, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "BTCUSDT", loaded.Exchange.Symbol)
	assert.Equal(t, "key-from-env", loaded.Exchange.APIKey)
	assert.Equal(t, "secret-from-env", loaded.Exchange.APISecret)
	assert.Equal(t, 45*time.Minute, loaded.Risk.CooldownDuration.Std())
}

func TestLoad_RejectsUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"no_such_section": {}}`), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestMaxRatioFor_SelectsTier(t *testing.T) {
	s := validConfig().Sizing

	assert.InDelta(t, 0.05, s.MaxRatioFor(0.2), 1e-12)
	assert.InDelta(t, 0.10, s.MaxRatioFor(0.5), 1e-12)
	assert.InDelta(t, 0.15, s.MaxRatioFor(0.75), 1e-12)
	assert.InDelta(t, 0.15, s.MaxRatioFor(1.0), 1e-12)
}
