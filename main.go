package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"os"
	"os/signal"
	"syscall"
	"time"

	"emaOptionsBot/config"
	"emaOptionsBot/internal/adapters/fyersclient"
	"emaOptionsBot/internal/adapters/logger"
	"emaOptionsBot/internal/adapters/paper"
	"emaOptionsBot/internal/adapters/sqlite"
	"emaOptionsBot/internal/app"
	"emaOptionsBot/internal/indicators"
	"emaOptionsBot/internal/metrics"
	"emaOptionsBot/internal/ports"
	"emaOptionsBot/internal/risk"
	"emaOptionsBot/internal/strategy"
	"emaOptionsBot/internal/webhook"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	// 2. Initialize Logger
	appLogger, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize logger: %v", err)
	}
	defer appLogger.Sync()
	ctx := context.Background()
	appLogger.Info(ctx, "Logger initialized", map[string]interface{}{"level": cfg.LogLevel})

	// 3. Initialize Repository (journal)
	repo, err := sqlite.NewRepository(sqlite.Config{DBPath: cfg.DBPath, Logger: appLogger})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize journal repository")
		log.Fatalf("FATAL: Failed to initialize journal repository: %v", err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(ctx, err, "Error closing journal repository")
		}
	}()

	// 4. Initialize Broker Client (market data always, orders in LIVE)
	fyers, err := fyersclient.NewClient(fyersclient.Config{
		ClientID:    cfg.FyersClientID,
		AccessToken: cfg.FyersAccessToken,
		APIBaseURL:  cfg.FyersAPIURL,
		DataBaseURL: cfg.FyersDataURL,
		WSBaseURL:   cfg.FyersWSURL,
	}, appLogger)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize broker client")
		log.Fatalf("FATAL: Failed to initialize broker client: %v", err)
	}

	// 5. Select Order Gateway by mode. PAPER simulates fills against
	// real quotes; LIVE routes orders to the broker.
	var gateway ports.OrderGateway = fyers
	if cfg.Mode == "PAPER" {
		gateway, err = paper.New(fyers, appLogger)
		if err != nil {
			appLogger.Error(ctx, err, "FATAL: Failed to initialize paper gateway")
			log.Fatalf("FATAL: Failed to initialize paper gateway: %v", err)
		}
		appLogger.Info(ctx, "PAPER mode: orders are simulated")
	} else {
		appLogger.Warn(ctx, "LIVE mode: orders will be placed at the broker")
	}

	// 6. Core components
	session, err := strategy.NewSession(cfg.SessionOpen, cfg.SessionClose, cfg.SessionTimezone)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Invalid session configuration")
		log.Fatalf("FATAL: Invalid session configuration: %v", err)
	}
	riskMgr, err := risk.New(risk.Config{StopLossPct: cfg.StopLossPct, TargetPct: cfg.TargetPct})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Invalid risk configuration")
		log.Fatalf("FATAL: Invalid risk configuration: %v", err)
	}
	engine, err := indicators.NewEngine(indicators.Config{
		FastPeriod: cfg.FastEMAPeriod,
		SlowPeriod: cfg.SlowEMAPeriod,
		RSIPeriod:  cfg.RSIPeriod,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Invalid indicator configuration")
		log.Fatalf("FATAL: Invalid indicator configuration: %v", err)
	}
	machine, err := strategy.New(strategy.Config{
		Underlying:       cfg.Underlying,
		Quantity:         cfg.Quantity,
		OrderTimeout:     cfg.OrderTimeout,
		MaxEntryAttempts: cfg.MaxEntryAttempts,
	}, appLogger, gateway, riskMgr, repo, repo, session)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize strategy machine")
		log.Fatalf("FATAL: Failed to initialize strategy machine: %v", err)
	}

	m := metrics.New()

	// 7. Application Service
	tradingService, err := app.NewTradingService(cfg, appLogger, machine, engine, fyers, gateway, riskMgr, session, repo, m)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize trading service")
		log.Fatalf("FATAL: Failed to initialize trading service: %v", err)
	}

	// 8. Webhook/HTTP server
	server, err := webhook.NewServer(cfg.ListenAddr, cfg.WebhookToken, tradingService, appLogger, m)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize webhook server")
		log.Fatalf("FATAL: Failed to initialize webhook server: %v", err)
	}

	// 9. Run until signaled
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLogger.Info(runCtx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
		cancel()
	}()

	serverErr := make(chan error, 1)
	go func() { serverErr <- server.Start() }()

	go func() {
		select {
		case err := <-serverErr:
			if err != nil {
				appLogger.Error(runCtx, err, "Webhook server failed")
				cancel()
			}
		case <-runCtx.Done():
		}
	}()

	if err := tradingService.Start(runCtx); err != nil {
		appLogger.Error(ctx, err, "Trading service exited with error")
		log.Fatalf("FATAL: Trading service exited with error: %v", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		appLogger.Error(ctx, err, "Webhook server shutdown failed")
	}

	appLogger.Info(ctx, "Application finished gracefully.")
}
