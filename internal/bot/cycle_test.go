package bot

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradebot-labs/risk-engine/internal/config"
	"github.com/tradebot-labs/risk-engine/internal/exchange"
	"github.com/tradebot-labs/risk-engine/internal/execution"
	"github.com/tradebot-labs/risk-engine/internal/journal"
	"github.com/tradebot-labs/risk-engine/internal/logger"
	"github.com/tradebot-labs/risk-engine/internal/monitoring"
	"github.com/tradebot-labs/risk-engine/internal/pnl"
	"github.com/tradebot-labs/risk-engine/internal/risk"
	"github.com/tradebot-labs/risk-engine/pkg/types"
)

// scriptedClient drives the engine through a deterministic lifecycle:
// entry fills maker, the take-profit fills on the second poll, the
// stop-loss cancel confirms.
type scriptedClient struct {
	mu      sync.Mutex
	balance float64

	placed    []exchange.OrderIntent
	cancelled []string

	tpPolls int
}

func (c *scriptedClient) PlaceOrder(_ context.Context, intent exchange.OrderIntent) (*exchange.Order, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.placed = append(c.placed, intent)
	switch intent.Kind {
	case exchange.KindPostOnlyLimit:
		if intent.ReduceOnly {
			return &exchange.Order{OrderID: "tp", Status: exchange.StatusNew}, nil
		}
		return &exchange.Order{OrderID: "entry", Status: exchange.StatusNew}, nil
	case exchange.KindStopLimit:
		return &exchange.Order{OrderID: "sl", Status: exchange.StatusUntriggered}, nil
	}
	return &exchange.Order{OrderID: string(intent.Kind), Status: exchange.StatusNew}, nil
}

func (c *scriptedClient) GetOrder(_ context.Context, orderID string) (*exchange.Order, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch orderID {
	case "entry":
		return &exchange.Order{OrderID: "entry", Status: exchange.StatusFilled, AvgPrice: 49990, FilledQty: 0.1}, nil
	case "tp":
		c.tpPolls++
		if c.tpPolls >= 2 {
			return &exchange.Order{OrderID: "tp", Status: exchange.StatusFilled, AvgPrice: 50990, FilledQty: 0.1}, nil
		}
		return &exchange.Order{OrderID: "tp", Status: exchange.StatusNew}, nil
	case "sl":
		return &exchange.Order{OrderID: "sl", Status: exchange.StatusUntriggered}, nil
	}
	return &exchange.Order{OrderID: orderID, Status: exchange.StatusNew}, nil
}

func (c *scriptedClient) CancelOrder(_ context.Context, orderID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelled = append(c.cancelled, orderID)
	return true, nil
}

func (c *scriptedClient) GetBalance(_ context.Context) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.balance, nil
}

func (c *scriptedClient) GetOrderBook(_ context.Context) (types.OrderBookSnapshot, error) {
	return types.OrderBookSnapshot{BestBid: 49990, BestAsk: 50010, Timestamp: time.Now()}, nil
}

func testEngineConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Exchange: config.ExchangeConfig{Name: "bybit", Category: "spot", Symbol: "BTCUSDT"},
		Sizing: config.SizingConfig{
			KellyWeight: 0.5, DynamicWeight: 0.3, CapWeight: 0.2,
			KellyWindowSize: 50, KellyMinTrades: 10, KellyFloorFraction: 0.01, MaxFraction: 0.25,
			DynamicBaseFraction: 0.02,
			MaxRatioLowConfidence: 0.05, MaxRatioMediumConfidence: 0.10, MaxRatioHighConfidence: 0.15,
			MediumConfidenceFloor: 0.5, HighConfidenceFloor: 0.75,
			MinLotSize: 0.001, LotStep: 0.001,
		},
		Risk: config.RiskConfig{
			MinConfidence: 0.3, LossThreshold: 3, DrawdownThreshold: 0.1,
			CooldownDuration:          config.Duration(45 * time.Minute),
			SkipCooldownTrendStrength: 60,
			AnomalyWindowSize:         20, AnomalyOutlierZScore: 3, AnomalyHardSeverity: 0.9,
		},
		Execution: config.ExecutionConfig{
			MaxRetries: 2, RetryInterval: config.Duration(time.Millisecond),
			FallbackToTaker: true, CycleTimeout: config.Duration(30 * time.Second),
		},
		Stops: config.StopsConfig{
			TPATRMultiplier: 2, SLATRMultiplier: 1.5,
			RegimeMultipliers: map[types.Regime]float64{
				types.RegimeTightRange: 0.8, types.RegimeNormalRange: 1.0, types.RegimeTrending: 1.3,
			},
			MinDistanceRatio: 0.005, SlippageBufferRatio: 0.002,
			TPMaxRetries: 2, ProtectionRetryLimit: 1, ProtectionRetryInterval: config.Duration(time.Millisecond),
		},
		Fees:    config.FeesConfig{MakerFeeRate: -0.0002, TakerFeeRate: 0.0012},
		Journal: config.JournalConfig{DBPath: filepath.Join(t.TempDir(), "trades.db")},
		LogDir:  t.TempDir(),
	}
}

func newTestEngine(t *testing.T, client *scriptedClient) *Engine {
	t.Helper()
	cfg := testEngineConfig(t)
	require.NoError(t, cfg.Validate())

	log, err := logger.New(cfg.LogDir, cfg.Exchange.Symbol)
	require.NoError(t, err)

	db, err := journal.OpenSQLite(cfg.Journal.DBPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close(); log.Close() })

	calc := pnl.NewCalculator(cfg.Fees)
	return &Engine{
		cfg:      cfg,
		client:   client,
		risk:     risk.NewManager(cfg.Risk, cfg.Sizing, client.balance, nil, log),
		entry:    execution.NewEntryExecutor(client, calc, cfg.Execution, log),
		stops:    execution.NewStopManager(client, cfg.Stops, nil, log),
		reporter: pnl.NewReporter(calc, db, cfg.Exchange.Symbol),
		journal:  db,
		health:   monitoring.NewHealthChecker(),
		log:      log,
		stopChan: make(chan struct{}),
		exitPoll: time.Millisecond,
	}
}

func buySignal(atr float64) types.TradeSignal {
	return types.TradeSignal{
		Action:     types.ActionBuy,
		Confidence: 0.8,
		ATRCurrent: &atr,
		Timestamp:  time.Now(),
	}
}

func testInput(atr float64) CycleInput {
	return CycleInput{
		Signal: buySignal(atr),
		Book:   types.OrderBookSnapshot{BestBid: 49990, BestAsk: 50010, Timestamp: time.Now()},
		Regime: types.RegimeNormalRange,
	}
}

func TestRunCycle_FullLifecycleSettlesTrade(t *testing.T) {
	client := &scriptedClient{balance: 100000}
	engine := newTestEngine(t, client)

	engine.RunCycle(context.Background(), testInput(500))

	// Entry, stop-loss, take-profit were placed; the stop-loss was
	// cancelled after the take-profit filled.
	var kinds []exchange.OrderKind
	for _, intent := range client.placed {
		kinds = append(kinds, intent.Kind)
	}
	assert.Equal(t, []exchange.OrderKind{
		exchange.KindPostOnlyLimit,
		exchange.KindStopLimit,
		exchange.KindPostOnlyLimit,
	}, kinds)
	assert.Equal(t, []string{"sl"}, client.cancelled)

	// The trade settled and reached the journal.
	trades, err := engine.journal.RecentTrades(10)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, types.ExitTakeProfit, trades[0].ExitReason)
	assert.True(t, trades[0].IsWin())

	// Gross 100 on 0.1 @ +1000, maker rebate both legs.
	gross := (50990.0 - 49990.0) * 0.1
	entryFee := 49990.0 * 0.1 * -0.0002
	exitFee := 50990.0 * 0.1 * -0.0002
	assert.InDelta(t, gross-entryFee-exitFee, trades[0].NetPnL, 1e-6)
	assert.InDelta(t, trades[0].NetPnL, engine.sessionPnL, 1e-9)
}

func TestRunCycle_HoldSignalPlacesNothing(t *testing.T) {
	client := &scriptedClient{balance: 100000}
	engine := newTestEngine(t, client)

	input := testInput(500)
	input.Signal.Action = types.ActionHold
	engine.RunCycle(context.Background(), input)

	assert.Empty(t, client.placed)
}

func TestRunCycle_MissingATRSkipsEntry(t *testing.T) {
	client := &scriptedClient{balance: 100000}
	engine := newTestEngine(t, client)

	input := testInput(500)
	input.Signal.ATRCurrent = nil
	engine.RunCycle(context.Background(), input)

	assert.Empty(t, client.placed)
}

func TestRunCycle_NonPositiveATRSkipsEntry(t *testing.T) {
	client := &scriptedClient{balance: 100000}
	engine := newTestEngine(t, client)

	engine.RunCycle(context.Background(), testInput(-500))

	assert.Empty(t, client.placed)

	trades, err := engine.journal.RecentTrades(10)
	require.NoError(t, err)
	assert.Empty(t, trades)
}

func TestRunCycle_UnprotectableGeometryRaisesUnprotectedPosition(t *testing.T) {
	client := &scriptedClient{balance: 100000}
	engine := newTestEngine(t, client)

	// An ATR this large pushes the stop-limit price below zero: the
	// entry fills but no protective order can be built for it.
	engine.RunCycle(context.Background(), testInput(1e9))

	// Only the entry was placed; nothing was journaled or cancelled.
	require.Len(t, client.placed, 1)
	assert.Equal(t, exchange.KindPostOnlyLimit, client.placed[0].Kind)
	assert.Empty(t, client.cancelled)

	trades, err := engine.journal.RecentTrades(10)
	require.NoError(t, err)
	assert.Empty(t, trades)

	// The unprotected position reaches the health surface.
	rec := httptest.NewRecorder()
	engine.health.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var status monitoring.HealthStatus
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
	assert.Equal(t, "unhealthy", status.Status)
	assert.Contains(t, status.Errors, "unprotected position")
}

func TestRunCycle_ProtectiveOrdersAreReduceOnly(t *testing.T) {
	client := &scriptedClient{balance: 100000}
	engine := newTestEngine(t, client)

	engine.RunCycle(context.Background(), testInput(500))

	require.Len(t, client.placed, 3)
	assert.False(t, client.placed[0].ReduceOnly)
	assert.True(t, client.placed[1].ReduceOnly)
	assert.True(t, client.placed[2].ReduceOnly)
}
