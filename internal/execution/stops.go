package execution

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/tradebot-labs/risk-engine/internal/config"
	engerr "github.com/tradebot-labs/risk-engine/internal/errors"
	"github.com/tradebot-labs/risk-engine/internal/exchange"
	"github.com/tradebot-labs/risk-engine/internal/logger"
	"github.com/tradebot-labs/risk-engine/pkg/types"
)

// Alerter delivers out-of-band alerts for failures that must reach a
// human. Implemented by the notifications package.
type Alerter interface {
	SendCriticalAlert(title, message string) error
}

// StopDistances is the computed protective geometry for one position.
type StopDistances struct {
	TPPrice float64
	// SLTrigger is the stop trigger; SLLimit sits beyond it by the
	// slippage buffer so the resting limit survives a fast move
	// through the trigger.
	SLTrigger float64
	SLLimit   float64

	// Floored is set when the ATR-derived distance fell below the
	// minimum-distance floor and the floor was applied instead.
	Floored bool
}

// ProtectionResult reports the protective orders guarding a filled
// entry.
type ProtectionResult struct {
	TPOrderID   string
	SLOrderID   string
	Distances   StopDistances
	NativeTPUsed bool
}

// StopManager places the protective pair after an entry fills: a
// maker-first take-profit and a stop-limit stop-loss. A filled entry
// without a stop-loss is the one state this component refuses to
// leave quietly.
type StopManager struct {
	client exchange.Client
	cfg    config.StopsConfig
	alert  Alerter
	log    *logger.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// NewStopManager creates the protective-order manager. alert may be
// nil when no notification channel is configured.
func NewStopManager(client exchange.Client, cfg config.StopsConfig, alert Alerter, log *logger.Logger) *StopManager {
	return &StopManager{
		client: client,
		cfg:    cfg,
		alert:  alert,
		log:    log,
		sleep:  sleepCtx,
	}
}

// Distances computes the TP/SL geometry for a filled entry. The ATR
// distance is scaled by the regime multiplier, then floored at the
// configured minimum ratio of entry price so an underestimated ATR
// never produces a stop inside the noise band.
func (s *StopManager) Distances(side types.TradeSide, entryPrice, atr float64, regime types.Regime) (StopDistances, error) {
	if entryPrice <= 0 {
		return StopDistances{}, engerr.NewInvalidInput("stops", "distances", "non-positive entry price")
	}
	if atr <= 0 {
		return StopDistances{}, engerr.NewInvalidInput("stops", "distances", "non-positive ATR")
	}

	regimeMult, ok := s.cfg.RegimeMultipliers[regime]
	if !ok {
		regimeMult = s.cfg.RegimeMultipliers[types.RegimeNormalRange]
		if regimeMult == 0 {
			regimeMult = 1.0
		}
	}

	floor := entryPrice * s.cfg.MinDistanceRatio
	tpDist := atr * s.cfg.TPATRMultiplier * regimeMult
	slDist := atr * s.cfg.SLATRMultiplier * regimeMult

	floored := false
	if tpDist < floor {
		tpDist = floor
		floored = true
	}
	if slDist < floor {
		slDist = floor
		floored = true
	}

	buffer := entryPrice * s.cfg.SlippageBufferRatio

	d := StopDistances{Floored: floored}
	if side == types.SideLong {
		d.TPPrice = entryPrice + tpDist
		d.SLTrigger = entryPrice - slDist
		d.SLLimit = d.SLTrigger - buffer
	} else {
		d.TPPrice = entryPrice - tpDist
		d.SLTrigger = entryPrice + slDist
		d.SLLimit = d.SLTrigger + buffer
	}
	if d.SLLimit <= 0 || d.TPPrice <= 0 {
		return StopDistances{}, engerr.NewInvalidInput("stops", "distances",
			fmt.Sprintf("degenerate stop geometry at entry %.2f atr %.2f", entryPrice, atr))
	}
	return d, nil
}

// Protect places both protective orders for a filled entry. The
// stop-loss goes first: if only one order can exist, it is the one
// that bounds the loss. A stop-loss placement failure escalates as a
// protection failure and is never swallowed.
func (s *StopManager) Protect(ctx context.Context, side types.TradeSide, amount, entryPrice, atr float64, regime types.Regime) (*ProtectionResult, error) {
	d, err := s.Distances(side, entryPrice, atr, regime)
	if err != nil {
		return nil, err
	}
	if d.Floored {
		s.log.Warning("Stop distance floored to %.4f%% of entry price", s.cfg.MinDistanceRatio*100)
	}

	closeSide := exchange.SideFor(side).Opposite()

	slOrder, err := s.placeStopLoss(ctx, closeSide, amount, d)
	if err != nil {
		// The extended schedule must outlive the cycle deadline: a venue
		// outage longer than one cycle is exactly when the retries
		// matter most.
		slOrder, err = s.recoverStopLoss(context.WithoutCancel(ctx), closeSide, amount, d, err)
		if err != nil {
			return nil, err
		}
	}

	tpOrder, nativeTP, err := s.placeTakeProfit(ctx, closeSide, amount, d)
	if err != nil {
		// The position is loss-bounded; a missing TP costs opportunity,
		// not capital. Report it, keep the SL.
		s.log.Error("Take-profit placement failed, position protected by stop-loss only: %v", err)
		return &ProtectionResult{SLOrderID: slOrder.OrderID, Distances: d}, engerr.NewProtectionFailure("take_profit", err)
	}

	s.log.Order("Protection placed: TP %s @ %.2f (native=%v), SL %s trigger %.2f limit %.2f",
		tpOrder.OrderID, d.TPPrice, nativeTP, slOrder.OrderID, d.SLTrigger, d.SLLimit)

	return &ProtectionResult{
		TPOrderID:    tpOrder.OrderID,
		SLOrderID:    slOrder.OrderID,
		Distances:    d,
		NativeTPUsed: nativeTP,
	}, nil
}

// placeStopLoss places the reduce-only stop-limit order.
func (s *StopManager) placeStopLoss(ctx context.Context, closeSide exchange.OrderSide, amount float64, d StopDistances) (*exchange.Order, error) {
	return s.client.PlaceOrder(ctx, exchange.OrderIntent{
		LinkID:              uuid.NewString(),
		Side:                closeSide,
		Amount:              amount,
		ReferencePrice:      d.SLTrigger,
		Kind:                exchange.KindStopLimit,
		LimitPrice:          d.SLLimit,
		TriggerPrice:        d.SLTrigger,
		SlippageBufferRatio: s.cfg.SlippageBufferRatio,
		ReduceOnly:          true,
	})
}

// placeTakeProfit tries the maker-only TP up to the configured attempt
// budget, then falls back to the venue's native take-profit type. The
// bool result reports whether the native fallback was used.
func (s *StopManager) placeTakeProfit(ctx context.Context, closeSide exchange.OrderSide, amount float64, d StopDistances) (*exchange.Order, bool, error) {
	var lastErr error
	for attempt := 0; attempt < s.cfg.TPMaxRetries; attempt++ {
		order, err := s.client.PlaceOrder(ctx, exchange.OrderIntent{
			LinkID:         uuid.NewString(),
			Side:           closeSide,
			Amount:         amount,
			ReferencePrice: d.TPPrice,
			Kind:           exchange.KindPostOnlyLimit,
			LimitPrice:     d.TPPrice,
			ReduceOnly:     true,
		})
		if err == nil {
			return order, false, nil
		}
		lastErr = err
		if !engerr.IsTransient(err) {
			break
		}
		if serr := s.sleep(ctx, backoffDelay(attempt)); serr != nil {
			return nil, false, serr
		}
	}

	s.log.Warning("Maker take-profit failed after %d attempts, using native order type: %v", s.cfg.TPMaxRetries, lastErr)

	order, err := s.client.PlaceOrder(ctx, exchange.OrderIntent{
		LinkID:         uuid.NewString(),
		Side:           closeSide,
		Amount:         amount,
		ReferencePrice: d.TPPrice,
		Kind:           exchange.KindNativeTakeProfit,
		LimitPrice:     d.TPPrice,
		TriggerPrice:   d.TPPrice,
		ReduceOnly:     true,
	})
	if err != nil {
		return nil, false, err
	}
	return order, true, nil
}

// recoverStopLoss handles a stop-loss placement failure on a filled
// entry: critical log, alert, then the extended retry schedule.
// Returns the recovered order, or the protection-failure error when
// every retry fails.
func (s *StopManager) recoverStopLoss(ctx context.Context, closeSide exchange.OrderSide, amount float64, d StopDistances, cause error) (*exchange.Order, error) {
	s.log.Critical("UNPROTECTED POSITION: stop-loss placement failed: %v", cause)
	if s.alert != nil {
		if aerr := s.alert.SendCriticalAlert("Unprotected position",
			fmt.Sprintf("Stop-loss placement failed, retrying on extended schedule: %v", cause)); aerr != nil {
			s.log.Error("Critical alert delivery failed: %v", aerr)
		}
	}

	for attempt := 1; attempt <= s.cfg.ProtectionRetryLimit; attempt++ {
		if err := s.sleep(ctx, s.cfg.ProtectionRetryInterval.Std()); err != nil {
			return nil, engerr.NewProtectionFailure("stop_loss", err)
		}
		order, err := s.placeStopLoss(ctx, closeSide, amount, d)
		if err == nil {
			s.log.Order("Stop-loss recovered on extended retry %d: %s", attempt, order.OrderID)
			return order, nil
		}
		s.log.Error("Extended stop-loss retry %d/%d failed: %v", attempt, s.cfg.ProtectionRetryLimit, err)
	}

	if s.alert != nil {
		_ = s.alert.SendCriticalAlert("Unprotected position, manual intervention required",
			fmt.Sprintf("Stop-loss placement failed after %d extended retries.", s.cfg.ProtectionRetryLimit))
	}
	return nil, engerr.NewProtectionFailure("stop_loss", cause)
}

// backoffDelay is the maker-TP retry delay: 1s, 2s, 4s, capped at 10s.
func backoffDelay(attempt int) time.Duration {
	delay := time.Second * time.Duration(math.Pow(2, float64(attempt)))
	if delay > 10*time.Second {
		delay = 10 * time.Second
	}
	return delay
}
