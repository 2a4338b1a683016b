package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Decision metrics
	decisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "risk_engine_decisions_total",
			Help: "Trade decisions by outcome and rejection reason",
		},
		[]string{"symbol", "outcome", "reason"},
	)

	// Execution metrics
	ordersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "risk_engine_orders_total",
			Help: "Orders placed by kind and fill result",
		},
		[]string{"symbol", "kind", "result"},
	)

	takerFallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "risk_engine_taker_fallbacks_total",
			Help: "Entries that fell back from maker to taker",
		},
		[]string{"symbol"},
	)

	protectionFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "risk_engine_protection_failures_total",
			Help: "Protective order placements that exhausted retries",
		},
		[]string{"symbol", "order"},
	)

	// Account metrics
	netPnL = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "risk_engine_session_net_pnl",
			Help: "Cumulative session net PnL in quote currency",
		},
		[]string{"symbol"},
	)

	accountBalance = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "risk_engine_account_balance",
			Help: "Latest quote-currency account balance",
		},
		[]string{"symbol"},
	)

	drawdownRatio = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "risk_engine_drawdown_ratio",
			Help: "Current drawdown from the session balance peak",
		},
		[]string{"symbol"},
	)

	breakerPaused = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "risk_engine_breaker_paused",
			Help: "1 while the drawdown circuit breaker is in cooldown",
		},
		[]string{"symbol"},
	)

	// Error metrics
	errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "risk_engine_errors_total",
			Help: "Errors by category",
		},
		[]string{"category"},
	)
)

func init() {
	// Register metrics
	prometheus.MustRegister(decisionsTotal)
	prometheus.MustRegister(ordersTotal)
	prometheus.MustRegister(takerFallbacksTotal)
	prometheus.MustRegister(protectionFailuresTotal)
	prometheus.MustRegister(netPnL)
	prometheus.MustRegister(accountBalance)
	prometheus.MustRegister(drawdownRatio)
	prometheus.MustRegister(breakerPaused)
	prometheus.MustRegister(errorsTotal)
}

// MetricsHandler handles the Prometheus metrics endpoint
type MetricsHandler struct{}

// NewMetricsHandler creates a new metrics handler
func NewMetricsHandler() *MetricsHandler {
	return &MetricsHandler{}
}

// ServeHTTP serves the Prometheus metrics endpoint
func (m *MetricsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// RecordDecision records one trade decision. reason is empty for
// approvals.
func RecordDecision(symbol string, approved bool, reason string) {
	outcome := "approved"
	if !approved {
		outcome = "rejected"
	}
	decisionsTotal.WithLabelValues(symbol, outcome, reason).Inc()
}

// RecordOrder records a placed order and how it ended up.
func RecordOrder(symbol, kind, result string) {
	ordersTotal.WithLabelValues(symbol, kind, result).Inc()
}

// RecordTakerFallback records a maker entry that fell through to taker.
func RecordTakerFallback(symbol string) {
	takerFallbacksTotal.WithLabelValues(symbol).Inc()
}

// RecordProtectionFailure records a protective order that could not be
// placed. order is "take_profit" or "stop_loss".
func RecordProtectionFailure(symbol, order string) {
	protectionFailuresTotal.WithLabelValues(symbol, order).Inc()
}

// UpdateSessionPnL sets the cumulative session net PnL gauge.
func UpdateSessionPnL(symbol string, pnl float64) {
	netPnL.WithLabelValues(symbol).Set(pnl)
}

// UpdateBalance sets the latest account balance gauge.
func UpdateBalance(symbol string, balance float64) {
	accountBalance.WithLabelValues(symbol).Set(balance)
}

// UpdateDrawdown sets the drawdown gauge and the breaker pause flag.
func UpdateDrawdown(symbol string, ratio float64, paused bool) {
	drawdownRatio.WithLabelValues(symbol).Set(ratio)
	p := 0.0
	if paused {
		p = 1.0
	}
	breakerPaused.WithLabelValues(symbol).Set(p)
}

// RecordError records an error by engine category.
func RecordError(category string) {
	errorsTotal.WithLabelValues(category).Inc()
}
