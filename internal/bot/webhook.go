package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/tradebot-labs/risk-engine/internal/exchange"
	"github.com/tradebot-labs/risk-engine/internal/logger"
	"github.com/tradebot-labs/risk-engine/internal/regime"
	"github.com/tradebot-labs/risk-engine/pkg/types"
)

// signalPayload is the JSON body an alerting system (e.g. a
// TradingView alert) posts to the webhook.
type signalPayload struct {
	Action        string   `json:"action"`
	Confidence    float64  `json:"confidence"`
	ATR           *float64 `json:"atr"`
	ATRRatio      *float64 `json:"atr_ratio"`
	TrendStrength float64  `json:"trend_strength"`
	Regime        string   `json:"regime"`
}

// WebhookSource turns HTTP signal posts into cycle inputs. The order
// book is fetched fresh from the venue at delivery time, so a stale
// alert never trades against a stale book.
type WebhookSource struct {
	client   exchange.Client
	log      *logger.Logger
	classify *regime.Classifier
	inputs   chan CycleInput
	server   *http.Server
}

// NewWebhookSource creates the source and starts listening on port.
func NewWebhookSource(client exchange.Client, port int, log *logger.Logger) *WebhookSource {
	s := &WebhookSource{
		client:   client,
		log:      log,
		classify: regime.NewClassifier(),
		inputs:   make(chan CycleInput, 1),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/signal", s.handleSignal)
	s.server = &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Signal webhook server failed: %v", err)
		}
	}()
	return s
}

// Next blocks until a signal arrives or the context ends.
func (s *WebhookSource) Next(ctx context.Context) (CycleInput, error) {
	select {
	case <-ctx.Done():
		return CycleInput{}, ctx.Err()
	case input := <-s.inputs:
		return input, nil
	}
}

// Close shuts the webhook listener down.
func (s *WebhookSource) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *WebhookSource) handleSignal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}

	var payload signalPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "malformed signal body", http.StatusBadRequest)
		return
	}

	action, ok := parseAction(payload.Action)
	if !ok {
		http.Error(w, fmt.Sprintf("unknown action %q", payload.Action), http.StatusBadRequest)
		return
	}

	book, err := s.client.GetOrderBook(r.Context())
	if err != nil {
		s.log.LogError("order book fetch for webhook signal", err)
		http.Error(w, "order book unavailable", http.StatusBadGateway)
		return
	}

	input := CycleInput{
		Signal: types.TradeSignal{
			Action:        action,
			Confidence:    payload.Confidence,
			ATRCurrent:    payload.ATR,
			ATRRatio:      payload.ATRRatio,
			TrendStrength: payload.TrendStrength,
			Timestamp:     time.Now(),
		},
		Book:   book,
		Regime: s.regimeFor(payload),
	}

	// One pending signal at most; a newer signal replacing an unread
	// one is correct, acting on the stale one is not.
	select {
	case s.inputs <- input:
	default:
		select {
		case <-s.inputs:
			s.log.Warning("Unconsumed signal replaced by newer one")
		default:
		}
		select {
		case s.inputs <- input:
		default:
		}
	}

	w.WriteHeader(http.StatusAccepted)
}

func parseAction(v string) (types.SignalAction, bool) {
	switch v {
	case "buy", "Buy", "BUY":
		return types.ActionBuy, true
	case "sell", "Sell", "SELL":
		return types.ActionSell, true
	case "hold", "Hold", "HOLD":
		return types.ActionHold, true
	default:
		return "", false
	}
}

// regimeFor honors an explicit regime in the payload, otherwise
// classifies from the ATR ratio.
func (s *WebhookSource) regimeFor(payload signalPayload) types.Regime {
	switch r := types.Regime(payload.Regime); r {
	case types.RegimeTightRange, types.RegimeNormalRange, types.RegimeTrending:
		return r
	}
	return s.classify.Classify(payload.ATRRatio)
}
