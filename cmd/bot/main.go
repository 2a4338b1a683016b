package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/tradebot-labs/risk-engine/internal/bot"
	"github.com/tradebot-labs/risk-engine/internal/config"
	"github.com/tradebot-labs/risk-engine/pkg/reporting"
)

func main() {
	var (
		configFile = flag.String("config", "", "Configuration file (e.g., btc_linear.json)")
		envFile    = flag.String("env", ".env", "Environment file path (default: .env)")
		demo       = flag.Bool("demo", true, "Use demo trading environment - paper trading (default: true)")
		signalPort = flag.Int("signal-port", 8081, "Port for the signal webhook listener")
		report     = flag.Bool("report", true, "Write session reports on shutdown")
	)
	flag.Parse()

	if *configFile == "" {
		log.Fatal("Please specify a config file with -config flag")
	}

	// Load environment variables from .env file
	if err := godotenv.Load(*envFile); err != nil {
		log.Printf("Warning: Could not load %s (%v), checking environment variables...", *envFile, err)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *demo {
		cfg.Exchange.Demo = true
	}

	fmt.Println("🚀 Risk Engine Starting...")
	if cfg.Exchange.Demo {
		fmt.Println("🧪 DEMO MODE (Paper Trading)")
	} else {
		fmt.Println("💰 LIVE TRADING MODE (Real Money!)")
	}

	engine, err := bot.NewEngine(cfg)
	if err != nil {
		log.Fatalf("Failed to create engine: %v", err)
	}

	source := bot.NewWebhookSource(engine.Exchange(), *signalPort, engine.SessionLogger())
	fmt.Printf("📡 Signal webhook listening on :%d/signal\n", *signalPort)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runErr := make(chan error, 1)
	go func() {
		runErr <- engine.Run(ctx, source)
	}()

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		fmt.Println("\n🛑 Shutdown signal received...")
	case err := <-runErr:
		if err != nil && err != context.Canceled {
			log.Printf("Engine stopped: %v", err)
		}
	}

	cancel()
	_ = source.Close()

	trades := engine.SessionTrades()
	engine.Stop()

	if *report {
		reporting.OutputConsole(cfg.Exchange.Symbol, trades)
		reporter := reporting.NewReporter(reporting.ReportingConfig{
			CSVEnabled:   true,
			ExcelEnabled: true,
			JSONEnabled:  true,
		})
		if err := reporter.ReportSession(cfg.Exchange.Symbol, trades); err != nil {
			log.Printf("Failed to write session reports: %v", err)
		}
	}

	fmt.Println("✅ Shutdown complete")
}
