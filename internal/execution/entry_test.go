package execution

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradebot-labs/risk-engine/internal/config"
	engerr "github.com/tradebot-labs/risk-engine/internal/errors"
	"github.com/tradebot-labs/risk-engine/internal/exchange"
	"github.com/tradebot-labs/risk-engine/internal/logger"
	"github.com/tradebot-labs/risk-engine/internal/pnl"
	"github.com/tradebot-labs/risk-engine/pkg/types"
)

// fakeClient is a scripted exchange.Client double. Each function field
// may be nil, in which case the call fails the test.
type fakeClient struct {
	t *testing.T

	placeOrder  func(intent exchange.OrderIntent) (*exchange.Order, error)
	getOrder    func(orderID string) (*exchange.Order, error)
	cancelOrder func(orderID string) (bool, error)
	getBalance  func() (float64, error)

	placed    []exchange.OrderIntent
	cancelled []string
}

func (f *fakeClient) PlaceOrder(_ context.Context, intent exchange.OrderIntent) (*exchange.Order, error) {
	if f.placeOrder == nil {
		f.t.Fatal("unexpected PlaceOrder call")
	}
	f.placed = append(f.placed, intent)
	return f.placeOrder(intent)
}

func (f *fakeClient) GetOrder(_ context.Context, orderID string) (*exchange.Order, error) {
	if f.getOrder == nil {
		f.t.Fatal("unexpected GetOrder call")
	}
	return f.getOrder(orderID)
}

func (f *fakeClient) CancelOrder(_ context.Context, orderID string) (bool, error) {
	if f.cancelOrder == nil {
		f.t.Fatal("unexpected CancelOrder call")
	}
	f.cancelled = append(f.cancelled, orderID)
	return f.cancelOrder(orderID)
}

func (f *fakeClient) GetBalance(_ context.Context) (float64, error) {
	if f.getBalance == nil {
		f.t.Fatal("unexpected GetBalance call")
	}
	return f.getBalance()
}

func (f *fakeClient) GetOrderBook(_ context.Context) (types.OrderBookSnapshot, error) {
	return testBook(), nil
}

func testExecutionConfig() config.ExecutionConfig {
	return config.ExecutionConfig{
		MaxRetries:      3,
		RetryInterval:   config.Duration(0),
		FallbackToTaker: true,
		CycleTimeout:    config.Duration(90 * time.Second),
	}
}

func testFees() *pnl.Calculator {
	return pnl.NewCalculator(config.FeesConfig{MakerFeeRate: -0.0002, TakerFeeRate: 0.0012})
}

func newTestEntryExecutor(t *testing.T, client *fakeClient, cfg config.ExecutionConfig) *EntryExecutor {
	t.Helper()
	log, err := logger.New(t.TempDir(), "BTCUSDT")
	require.NoError(t, err)
	t.Cleanup(func() { log.Close() })
	return NewEntryExecutor(client, testFees(), cfg, log)
}

func testBook() types.OrderBookSnapshot {
	return types.OrderBookSnapshot{BestBid: 49990, BestAsk: 50010, Timestamp: time.Now()}
}

func TestEntry_MakerFillsWithinWindow(t *testing.T) {
	client := &fakeClient{t: t}
	polls := 0
	client.placeOrder = func(intent exchange.OrderIntent) (*exchange.Order, error) {
		return &exchange.Order{OrderID: "m1", Status: exchange.StatusNew}, nil
	}
	client.getOrder = func(orderID string) (*exchange.Order, error) {
		polls++
		if polls < 2 {
			return &exchange.Order{OrderID: orderID, Status: exchange.StatusNew}, nil
		}
		return &exchange.Order{OrderID: orderID, Status: exchange.StatusFilled, AvgPrice: 49990, FilledQty: 0.1}, nil
	}

	exec := newTestEntryExecutor(t, client, testExecutionConfig())
	out, err := exec.Execute(context.Background(), types.SideLong, 0.1, testBook())
	require.NoError(t, err)

	assert.True(t, out.Filled)
	assert.False(t, out.FallbackUsed)
	assert.Equal(t, exchange.FillMaker, out.FillKind)
	assert.InDelta(t, -0.0002, out.FeeRateApplied, 1e-12)
	assert.InDelta(t, 49990.0, out.FillPrice, 1e-9)

	// The maker order was priced at the passive bid, post-only.
	require.Len(t, client.placed, 1)
	assert.Equal(t, exchange.KindPostOnlyLimit, client.placed[0].Kind)
	assert.InDelta(t, 49990.0, client.placed[0].LimitPrice, 1e-9)
	assert.Empty(t, client.cancelled)
}

func TestEntry_TimeoutCancelsBeforeTakerFallback(t *testing.T) {
	client := &fakeClient{t: t}
	cancelled := false
	client.placeOrder = func(intent exchange.OrderIntent) (*exchange.Order, error) {
		if intent.Kind == exchange.KindMarket {
			require.True(t, cancelled, "taker placed before cancel confirmed")
			return &exchange.Order{OrderID: "t1", Status: exchange.StatusFilled, AvgPrice: 50010, FilledQty: 0.1}, nil
		}
		return &exchange.Order{OrderID: "m1", Status: exchange.StatusNew}, nil
	}
	client.getOrder = func(orderID string) (*exchange.Order, error) {
		if cancelled {
			return &exchange.Order{OrderID: orderID, Status: exchange.StatusCancelled}, nil
		}
		return &exchange.Order{OrderID: orderID, Status: exchange.StatusNew}, nil
	}
	client.cancelOrder = func(orderID string) (bool, error) {
		cancelled = true
		return true, nil
	}

	exec := newTestEntryExecutor(t, client, testExecutionConfig())
	out, err := exec.Execute(context.Background(), types.SideLong, 0.1, testBook())
	require.NoError(t, err)

	assert.True(t, out.Filled)
	assert.True(t, out.FallbackUsed)
	assert.Equal(t, exchange.FillTaker, out.FillKind)
	assert.InDelta(t, 0.0012, out.FeeRateApplied, 1e-12)
	assert.Equal(t, []string{"m1"}, client.cancelled)
}

func TestEntry_MakerFillWinsRaceAgainstCancel(t *testing.T) {
	client := &fakeClient{t: t}
	cancelled := false
	client.placeOrder = func(intent exchange.OrderIntent) (*exchange.Order, error) {
		require.Equal(t, exchange.KindPostOnlyLimit, intent.Kind, "no second order may exist after a maker fill")
		return &exchange.Order{OrderID: "m1", Status: exchange.StatusNew}, nil
	}
	client.getOrder = func(orderID string) (*exchange.Order, error) {
		if cancelled {
			// The fill landed before the cancel took effect.
			return &exchange.Order{OrderID: orderID, Status: exchange.StatusFilled, AvgPrice: 49990, FilledQty: 0.1}, nil
		}
		return &exchange.Order{OrderID: orderID, Status: exchange.StatusNew}, nil
	}
	client.cancelOrder = func(orderID string) (bool, error) {
		cancelled = true
		return true, nil
	}

	exec := newTestEntryExecutor(t, client, testExecutionConfig())
	out, err := exec.Execute(context.Background(), types.SideLong, 0.1, testBook())
	require.NoError(t, err)

	assert.True(t, out.Filled)
	assert.False(t, out.FallbackUsed)
	assert.Equal(t, exchange.FillMaker, out.FillKind)
	require.Len(t, client.placed, 1)
}

func TestEntry_FallbackDisabledAbandons(t *testing.T) {
	client := &fakeClient{t: t}
	client.placeOrder = func(intent exchange.OrderIntent) (*exchange.Order, error) {
		require.NotEqual(t, exchange.KindMarket, intent.Kind)
		return &exchange.Order{OrderID: "m1", Status: exchange.StatusNew}, nil
	}
	client.getOrder = func(orderID string) (*exchange.Order, error) {
		return &exchange.Order{OrderID: orderID, Status: exchange.StatusNew}, nil
	}
	client.cancelOrder = func(orderID string) (bool, error) { return true, nil }

	cfg := testExecutionConfig()
	cfg.FallbackToTaker = false

	exec := newTestEntryExecutor(t, client, cfg)
	out, err := exec.Execute(context.Background(), types.SideLong, 0.1, testBook())
	require.Error(t, err)
	assert.False(t, out.Filled)
	assert.Equal(t, []string{"m1"}, client.cancelled)
}

func TestEntry_UnconfirmedCancelRefusesFallback(t *testing.T) {
	client := &fakeClient{t: t}
	client.placeOrder = func(intent exchange.OrderIntent) (*exchange.Order, error) {
		require.NotEqual(t, exchange.KindMarket, intent.Kind, "fallback placed with maker order possibly live")
		return &exchange.Order{OrderID: "m1", Status: exchange.StatusNew}, nil
	}
	client.getOrder = func(orderID string) (*exchange.Order, error) {
		return &exchange.Order{OrderID: orderID, Status: exchange.StatusNew}, nil
	}
	client.cancelOrder = func(orderID string) (bool, error) { return false, nil }

	exec := newTestEntryExecutor(t, client, testExecutionConfig())
	_, err := exec.Execute(context.Background(), types.SideLong, 0.1, testBook())
	require.Error(t, err)
	assert.Equal(t, engerr.CategoryTransientExchange, engerr.CategoryOf(err))
}

func TestEntry_PartialFillTakesRemainderOnFallback(t *testing.T) {
	client := &fakeClient{t: t}
	cancelled := false
	client.placeOrder = func(intent exchange.OrderIntent) (*exchange.Order, error) {
		if intent.Kind == exchange.KindMarket {
			assert.InDelta(t, 0.06, intent.Amount, 1e-9)
			return &exchange.Order{OrderID: "t1", Status: exchange.StatusFilled, AvgPrice: 50010, FilledQty: 0.06}, nil
		}
		return &exchange.Order{OrderID: "m1", Status: exchange.StatusNew}, nil
	}
	client.getOrder = func(orderID string) (*exchange.Order, error) {
		if cancelled {
			return &exchange.Order{OrderID: orderID, Status: exchange.StatusCancelled, AvgPrice: 49990, FilledQty: 0.04}, nil
		}
		return &exchange.Order{OrderID: orderID, Status: exchange.StatusPartiallyFilled, AvgPrice: 49990, FilledQty: 0.04}, nil
	}
	client.cancelOrder = func(orderID string) (bool, error) {
		cancelled = true
		return true, nil
	}

	exec := newTestEntryExecutor(t, client, testExecutionConfig())
	out, err := exec.Execute(context.Background(), types.SideLong, 0.1, testBook())
	require.NoError(t, err)

	assert.True(t, out.Filled)
	assert.True(t, out.FallbackUsed)
	assert.InDelta(t, 0.1, out.FilledQty, 1e-9)
	// Volume-weighted: 0.04@49990 + 0.06@50010.
	assert.InDelta(t, 50002.0, out.FillPrice, 1e-6)
	// The conservative taker rate applies to the blended outcome.
	assert.InDelta(t, 0.0012, out.FeeRateApplied, 1e-12)
}

func TestEntry_DeadlineExpiryCancelsRestingOrder(t *testing.T) {
	client := &fakeClient{t: t}
	client.placeOrder = func(intent exchange.OrderIntent) (*exchange.Order, error) {
		return &exchange.Order{OrderID: "m1", Status: exchange.StatusNew}, nil
	}
	client.getOrder = func(orderID string) (*exchange.Order, error) {
		return &exchange.Order{OrderID: orderID, Status: exchange.StatusCancelled}, nil
	}
	client.cancelOrder = func(orderID string) (bool, error) { return true, nil }

	exec := newTestEntryExecutor(t, client, testExecutionConfig())
	exec.sleep = func(ctx context.Context, d time.Duration) error { return context.DeadlineExceeded }

	_, err := exec.Execute(context.Background(), types.SideLong, 0.1, testBook())
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// The resting post-only order must not survive into the next cycle.
	assert.Equal(t, []string{"m1"}, client.cancelled)
}

func TestEntry_DeadlineExpiryKeepsFillFoundDuringReconcile(t *testing.T) {
	client := &fakeClient{t: t}
	client.placeOrder = func(intent exchange.OrderIntent) (*exchange.Order, error) {
		return &exchange.Order{OrderID: "m1", Status: exchange.StatusNew}, nil
	}
	client.getOrder = func(orderID string) (*exchange.Order, error) {
		// The order filled while the deadline was expiring.
		return &exchange.Order{OrderID: orderID, Status: exchange.StatusFilled, AvgPrice: 49990, FilledQty: 0.1}, nil
	}
	client.cancelOrder = func(orderID string) (bool, error) { return true, nil }

	exec := newTestEntryExecutor(t, client, testExecutionConfig())
	exec.sleep = func(ctx context.Context, d time.Duration) error { return context.DeadlineExceeded }

	out, err := exec.Execute(context.Background(), types.SideLong, 0.1, testBook())
	require.NoError(t, err)
	assert.True(t, out.Filled)
	assert.Equal(t, exchange.FillMaker, out.FillKind)
	assert.InDelta(t, 0.1, out.FilledQty, 1e-9)
}

func TestEntry_RejectsUnusableBookSnapshot(t *testing.T) {
	exec := newTestEntryExecutor(t, &fakeClient{t: t}, testExecutionConfig())

	_, err := exec.Execute(context.Background(), types.SideLong, 0.1, types.OrderBookSnapshot{BestBid: 50010, BestAsk: 49990})
	require.Error(t, err)
	assert.Equal(t, engerr.CategoryInvalidInput, engerr.CategoryOf(err))

	_, err = exec.Execute(context.Background(), types.SideLong, 0, testBook())
	require.Error(t, err)
	assert.Equal(t, engerr.CategoryInvalidInput, engerr.CategoryOf(err))
}
