package bot

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/tradebot-labs/risk-engine/internal/config"
	"github.com/tradebot-labs/risk-engine/internal/exchange"
	"github.com/tradebot-labs/risk-engine/internal/execution"
	"github.com/tradebot-labs/risk-engine/internal/journal"
	"github.com/tradebot-labs/risk-engine/internal/logger"
	"github.com/tradebot-labs/risk-engine/internal/monitoring"
	"github.com/tradebot-labs/risk-engine/internal/notifications"
	"github.com/tradebot-labs/risk-engine/internal/pnl"
	"github.com/tradebot-labs/risk-engine/internal/risk"
	"github.com/tradebot-labs/risk-engine/pkg/types"
)

// SignalSource delivers trade signals and the order book snapshot they
// were computed against. The strategy layer implements it; the engine
// only consumes.
type SignalSource interface {
	Next(ctx context.Context) (CycleInput, error)
}

// Engine runs the trade lifecycle: evaluate, execute, protect, settle.
// One engine trades one symbol.
type Engine struct {
	cfg      *config.Config
	client   exchange.Client
	risk     *risk.Manager
	entry    *execution.EntryExecutor
	stops    *execution.StopManager
	reporter *pnl.Reporter
	journal  *journal.SQLiteJournal
	health   *monitoring.HealthChecker
	notifier notifications.Notifier
	log      *logger.Logger

	mu         sync.Mutex
	running    bool
	stopChan   chan struct{}
	sessionPnL float64
	exitPoll   time.Duration

	servers []*http.Server
}

// NewEngine wires the full engine from validated configuration. The
// journal's recent window seeds the Kelly estimator so a restart does
// not reset position sizing to the floor.
func NewEngine(cfg *config.Config) (*Engine, error) {
	log, err := logger.New(cfg.LogDir, cfg.Exchange.Symbol)
	if err != nil {
		return nil, fmt.Errorf("create session logger: %w", err)
	}

	client := exchange.NewBybitClient(cfg.Exchange, "USDT")

	db, err := journal.OpenSQLite(cfg.Journal.DBPath)
	if err != nil {
		log.Close()
		return nil, fmt.Errorf("open trade journal: %w", err)
	}

	seed, err := db.RecentTrades(cfg.Sizing.KellyWindowSize)
	if err != nil {
		db.Close()
		log.Close()
		return nil, fmt.Errorf("load trade history: %w", err)
	}

	startCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	balance, err := client.GetBalance(startCtx)
	if err != nil {
		db.Close()
		log.Close()
		return nil, fmt.Errorf("fetch starting balance: %w", err)
	}

	var notifier notifications.Notifier
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		notifier = notifications.NewTelegramNotifier(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID)
	}

	calc := pnl.NewCalculator(cfg.Fees)

	e := &Engine{
		cfg:      cfg,
		client:   client,
		risk:     risk.NewManager(cfg.Risk, cfg.Sizing, balance, seed, log),
		entry:    execution.NewEntryExecutor(client, calc, cfg.Execution, log),
		stops:    execution.NewStopManager(client, cfg.Stops, notifier, log),
		reporter: pnl.NewReporter(calc, db, cfg.Exchange.Symbol),
		journal:  db,
		health:   monitoring.NewHealthChecker(),
		notifier: notifier,
		log:      log,
		stopChan: make(chan struct{}),
		exitPoll: exitPollInterval,
	}

	log.Info("Engine initialized: %s %s, balance %.2f, %d seed trades",
		cfg.Exchange.Name, cfg.Exchange.Symbol, balance, len(seed))
	monitoring.UpdateBalance(cfg.Exchange.Symbol, balance)
	e.health.SetConnected(true)
	return e, nil
}

// Run consumes signals until the context is cancelled or Stop is
// called. Each signal runs at most one full trade lifecycle.
func (e *Engine) Run(ctx context.Context, source SignalSource) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return fmt.Errorf("engine already running")
	}
	e.running = true
	e.mu.Unlock()

	e.startObservability()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.stopChan:
			return nil
		default:
		}

		input, err := source.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			e.log.LogError("signal source", err)
			e.health.ReportError(err.Error())
			continue
		}

		e.RunCycle(ctx, input)
	}
}

// Stop signals the run loop to exit and releases resources. Safe to
// call more than once.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return
	}
	e.running = false
	close(e.stopChan)

	for _, srv := range e.servers {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}

	e.journal.Close()
	e.log.Close()
}

// Exchange exposes the venue client for components wired outside the
// engine, such as the signal source.
func (e *Engine) Exchange() exchange.Client {
	return e.client
}

// SessionTrades returns the trades settled during this session.
func (e *Engine) SessionTrades() []types.TradeRecord {
	return e.reporter.SessionTrades()
}

// SessionLogger exposes the session log for components wired outside
// the engine.
func (e *Engine) SessionLogger() *logger.Logger {
	return e.log
}

// startObservability serves the metrics and health endpoints when
// ports are configured.
func (e *Engine) startObservability() {
	if e.cfg.Monitor.MetricsPort > 0 {
		e.serve(e.cfg.Monitor.MetricsPort, "/metrics", monitoring.NewMetricsHandler())
	}
	if e.cfg.Monitor.HealthPort > 0 {
		e.serve(e.cfg.Monitor.HealthPort, "/health", e.health)
	}
}

func (e *Engine) serve(port int, path string, handler http.Handler) {
	mux := http.NewServeMux()
	mux.Handle(path, handler)
	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	e.servers = append(e.servers, srv)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			e.log.Error("Observability server on %s failed: %v", srv.Addr, err)
		}
	}()
}
