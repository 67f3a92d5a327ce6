// Package app orchestrates the trading loop: candle intake, indicator
// updates, signal detection, risk evaluation, and webhook command
// execution. All position mutation is delegated to the strategy state
// machine; this package decides WHEN to call it, never HOW state moves.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"emaOptionsBot/config"
	"emaOptionsBot/internal/domain"
	"emaOptionsBot/internal/indicators"
	"emaOptionsBot/internal/metrics"
	"emaOptionsBot/internal/options"
	"emaOptionsBot/internal/ports"
	"emaOptionsBot/internal/risk"
	"emaOptionsBot/internal/signal"
	"emaOptionsBot/internal/strategy"
	"emaOptionsBot/internal/webhook"
)

// warmupExtra pads the history fetch so a few unusable rows (gaps,
// short sessions) still leave enough samples to define both EMAs.
const warmupExtra = 20

// TradingService orchestrates the bot.
type TradingService struct {
	cfg      *config.Config
	logger   ports.Logger
	machine  *strategy.Machine
	engine   *indicators.Engine
	data     ports.MarketDataProvider
	gateway  ports.OrderGateway
	riskMgr  *risk.Manager
	session  *strategy.Session
	posRepo  ports.PositionRepository
	metrics  *metrics.Metrics
	dataSym  string // normalized underlying data symbol
	lastSeen time.Time
}

// NewTradingService creates the application service.
func NewTradingService(
	cfg *config.Config,
	logger ports.Logger,
	machine *strategy.Machine,
	engine *indicators.Engine,
	data ports.MarketDataProvider,
	gateway ports.OrderGateway,
	riskMgr *risk.Manager,
	session *strategy.Session,
	posRepo ports.PositionRepository,
	m *metrics.Metrics,
) (*TradingService, error) {
	if cfg == nil || logger == nil || machine == nil || engine == nil || data == nil || gateway == nil || riskMgr == nil || session == nil || posRepo == nil {
		return nil, fmt.Errorf("missing required dependencies for TradingService")
	}
	return &TradingService{
		cfg:     cfg,
		logger:  logger,
		machine: machine,
		engine:  engine,
		data:    data,
		gateway: gateway,
		riskMgr: riskMgr,
		session: session,
		posRepo: posRepo,
		metrics: m,
		dataSym: options.FormatUnderlying(cfg.Underlying),
	}, nil
}

// Start restores state, warms up the indicators, and consumes candles
// until the context is canceled. When a websocket URL is configured the
// live stream drives the loop; otherwise it polls the history endpoint.
// It blocks.
func (s *TradingService) Start(ctx context.Context) error {
	s.logger.Info(ctx, "Starting trading service", map[string]interface{}{
		"mode": s.cfg.Mode, "underlying": s.dataSym, "timeframe": s.cfg.Timeframe,
	})

	if err := s.machine.Restore(ctx); err != nil {
		return fmt.Errorf("startup position reconciliation failed: %w", err)
	}
	s.restoreRealizedPNL(ctx)
	if err := s.warmup(ctx); err != nil {
		return fmt.Errorf("indicator warmup failed: %w", err)
	}

	candleCh, streamDone, streamStop := s.startStream(ctx)

	pollTicker := time.NewTicker(s.cfg.PollInterval)
	defer pollTicker.Stop()
	if streamStop != nil {
		// The stream replaces polling; a stopped ticker never fires.
		pollTicker.Stop()
	}
	watchdogTicker := time.NewTicker(s.cfg.WatchdogInterval)
	defer watchdogTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info(context.Background(), "Trading loop stopping")
			if streamStop != nil {
				close(streamStop)
				<-streamDone
			}
			s.shutdown()
			return nil
		case c := <-candleCh:
			if !c.Timestamp.After(s.lastSeen) || !s.isClosed(c) {
				continue
			}
			if err := s.onCandle(ctx, c); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error(ctx, err, "Candle processing failed")
			}
			s.lastSeen = c.Timestamp
		case <-pollTicker.C:
			if err := s.poll(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error(ctx, err, "Poll iteration failed")
			}
		case <-watchdogTicker.C:
			if err := s.machine.Reconcile(ctx); err != nil {
				s.logger.Error(ctx, err, "Watchdog reconciliation failed")
			}
			s.updateGauges()
		}
	}
}

// startStream opens the live candle stream when a websocket URL is
// configured. Stream callbacks run on the reader goroutine, so candles
// are handed to the loop through a channel to keep the indicator engine
// single-threaded. Returns a nil stop channel when the bot should poll
// instead.
func (s *TradingService) startStream(ctx context.Context) (chan *domain.Candle, chan struct{}, chan struct{}) {
	candleCh := make(chan *domain.Candle, 16)
	if s.cfg.FyersWSURL == "" {
		return candleCh, nil, nil
	}
	done, stop, err := s.data.StreamCandles(ctx, s.dataSym, s.cfg.Timeframe,
		func(c *domain.Candle) {
			select {
			case candleCh <- c:
			default:
				s.logger.Warn(ctx, "Candle buffer full, dropping sample", map[string]interface{}{
					"timestamp": c.Timestamp,
				})
			}
		},
		func(err error) {
			s.logger.Warn(ctx, "Candle stream interrupted, reconnecting", map[string]interface{}{
				"error": err.Error(),
			})
		})
	if err != nil {
		s.logger.Error(ctx, err, "Live stream unavailable, falling back to polling")
		return candleCh, nil, nil
	}
	s.logger.Info(ctx, "Live candle stream started", map[string]interface{}{
		"symbol": s.dataSym, "timeframe": s.cfg.Timeframe,
	})
	return candleCh, done, stop
}

// restoreRealizedPNL seeds the realized P&L gauge from the journal so
// the metric survives restarts.
func (s *TradingService) restoreRealizedPNL(ctx context.Context) {
	total, err := s.posRepo.GetTotalProfit(ctx)
	if err != nil {
		s.logger.Warn(ctx, "Could not load realized P&L from journal", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	s.logger.Info(ctx, "Journal loaded", map[string]interface{}{"totalRealizedPNL": total})
	if s.metrics != nil {
		s.metrics.RealizedPNL.Set(total)
	}
}

// shutdown stops the machine with a fresh context; the loop context is
// already canceled.
func (s *TradingService) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.machine.Stop(ctx, true); err != nil {
		s.logger.Error(ctx, err, "Shutdown liquidation failed, position may remain open at broker")
	}
	if total, err := s.posRepo.GetTotalProfit(ctx); err == nil {
		s.logger.Info(ctx, "Trading service stopped", map[string]interface{}{"totalRealizedPNL": total})
	}
}

// warmup seeds the indicator engine with recent history so crossover
// detection is live from the first polled candle.
func (s *TradingService) warmup(ctx context.Context) error {
	need := s.engine.WarmupSamples() + warmupExtra
	candles, err := s.data.GetCandles(ctx, s.dataSym, s.cfg.Timeframe, need)
	if err != nil {
		return fmt.Errorf("failed to fetch warmup history: %w", err)
	}
	for _, c := range candles {
		if !s.isClosed(c) {
			continue
		}
		if _, err := s.engine.Update(c); err != nil {
			s.logger.Warn(ctx, "Skipped warmup candle", map[string]interface{}{
				"timestamp": c.Timestamp, "error": err.Error(),
			})
			continue
		}
		s.lastSeen = c.Timestamp
	}
	s.logger.Info(ctx, "Indicator warmup complete", map[string]interface{}{
		"candles": len(candles), "lastCandle": s.lastSeen,
	})
	return nil
}

// poll fetches the most recent candles and processes any new closed
// ones exactly once.
func (s *TradingService) poll(ctx context.Context) error {
	candles, err := s.data.GetCandles(ctx, s.dataSym, s.cfg.Timeframe, 3)
	if err != nil {
		return fmt.Errorf("failed to fetch candles: %w", err)
	}
	for _, c := range candles {
		if !c.Timestamp.After(s.lastSeen) || !s.isClosed(c) {
			continue
		}
		if err := s.onCandle(ctx, c); err != nil {
			return err
		}
		s.lastSeen = c.Timestamp
	}
	return nil
}

// isClosed reports whether the candle's interval has fully elapsed.
// History endpoints include the still-forming bucket; acting on it
// would evaluate the crossover on a moving value.
func (s *TradingService) isClosed(c *domain.Candle) bool {
	minutes, err := time.ParseDuration(s.cfg.Timeframe + "m")
	if err != nil {
		return false
	}
	return !c.Timestamp.Add(minutes).After(time.Now())
}

// onCandle runs one strategy evaluation on a closed candle.
func (s *TradingService) onCandle(ctx context.Context, c *domain.Candle) error {
	snap, err := s.engine.Update(c)
	if err != nil {
		return fmt.Errorf("indicator update failed for candle %s: %w", c.Timestamp, err)
	}
	cross := signal.FromSnapshot(snap)

	if s.metrics != nil {
		s.metrics.CandlesProcessed.Inc()
		s.metrics.LastClose.Set(c.Close)
		if cross.Signal != domain.SignalNone {
			s.metrics.SignalsDetected.WithLabelValues(string(cross.Signal)).Inc()
		}
	}
	s.updateGauges()

	if cross.Signal != domain.SignalNone {
		s.logger.Info(ctx, "Crossover detected", map[string]interface{}{
			"signal": cross.Signal, "fast": cross.Fast, "slow": cross.Slow, "close": c.Close,
		})
	}

	pos := s.machine.Snapshot()
	if pos != nil && pos.Status == domain.StatusOpen {
		return s.evaluateOpenPosition(ctx, pos, cross.Signal)
	}
	if pos == nil && cross.Signal != domain.SignalNone {
		return s.enterFromSignal(ctx, cross.Signal, c.Close)
	}
	return nil
}

// evaluateOpenPosition applies risk rules and the end-of-day square-off
// to the open position.
func (s *TradingService) evaluateOpenPosition(ctx context.Context, pos *domain.Position, sig domain.Signal) error {
	if s.session.SquareOffDue(time.Now(), s.cfg.SquareOffLead) {
		return s.exit(ctx, domain.CloseReasonEndOfDay)
	}

	premium, err := s.gateway.GetQuote(ctx, pos.Symbol)
	if err != nil {
		s.logger.Warn(ctx, "Premium quote unavailable, skipping risk check", map[string]interface{}{
			"symbol": pos.Symbol, "error": err.Error(),
		})
		return nil
	}
	if should, reason := s.riskMgr.ShouldExit(premium, pos, sig); should {
		s.logger.Info(ctx, "Risk exit triggered", map[string]interface{}{
			"symbol": pos.Symbol, "premium": premium, "reason": reason,
		})
		return s.exit(ctx, reason)
	}
	return nil
}

func (s *TradingService) exit(ctx context.Context, reason domain.CloseReason) error {
	closed, err := s.machine.SubmitExit(ctx, reason, domain.OrderTypeMarket, 0)
	s.recordOrder("EXIT", err)
	if err != nil {
		return fmt.Errorf("exit failed: %w", err)
	}
	if s.metrics != nil && closed != nil {
		s.metrics.RealizedPNL.Add(closed.PNL)
	}
	return nil
}

// enterFromSignal buys the ATM option matching the crossover direction.
func (s *TradingService) enterFromSignal(ctx context.Context, sig domain.Signal, spot float64) error {
	dir := domain.LongCall
	if sig == domain.SignalBearish {
		dir = domain.LongPut
	}
	strike := options.NearestStrike(spot, s.cfg.StrikeInterval)
	contract := options.ContractSymbol(options.Root(s.dataSym), s.cfg.Expiry, strike, dir)

	intent := &domain.OrderIntent{
		Action:     domain.ActionEntry,
		Symbol:     contract,
		Underlying: s.dataSym,
		Direction:  dir,
		Quantity:   s.cfg.Quantity,
		OrderType:  domain.OrderTypeMarket,
		Reason:     fmt.Sprintf("crossover %s at %.2f", sig, spot),
	}
	_, err := s.machine.SubmitEntry(ctx, intent)
	s.recordOrder("ENTRY", err)
	if err != nil {
		// Defined rejections are normal operation, not faults.
		if errors.Is(err, ports.ErrMarketClosed) || errors.Is(err, ports.ErrInvariantViolation) || errors.Is(err, ports.ErrStrategyStopped) {
			s.logger.Info(ctx, "Entry refused", map[string]interface{}{"symbol": contract, "reason": err.Error()})
			return nil
		}
		return fmt.Errorf("entry failed: %w", err)
	}
	return nil
}

// ExecuteCommand implements webhook.Executor. BUY and SELL open a call
// or put respectively; EXIT closes whatever is active. Manual commands
// take precedence over signal state but obey the same acceptance rules.
func (s *TradingService) ExecuteCommand(ctx context.Context, cmd *webhook.Command) (*domain.Position, error) {
	orderType := domain.OrderType(cmd.OrderType)

	if cmd.Action == webhook.ActionExit {
		pos, err := s.machine.SubmitExit(ctx, domain.CloseReasonManual, orderType, cmd.Price)
		s.recordOrder("EXIT", err)
		if err == nil && s.metrics != nil && pos != nil {
			s.metrics.RealizedPNL.Add(pos.PNL)
		}
		return pos, err
	}

	dir := cmd.Direction()
	contract, err := s.resolveContract(ctx, cmd.Symbol, dir)
	if err != nil {
		return nil, err
	}
	intent := &domain.OrderIntent{
		Action:     domain.ActionEntry,
		Symbol:     contract,
		Underlying: s.dataSym,
		Direction:  dir,
		Quantity:   cmd.Quantity,
		OrderType:  orderType,
		LimitPrice: cmd.Price,
		Reason:     "webhook " + cmd.Action,
	}
	pos, err := s.machine.SubmitEntry(ctx, intent)
	s.recordOrder("ENTRY", err)
	return pos, err
}

// resolveContract accepts either a full option contract symbol or an
// underlying name; the latter is resolved to the ATM contract for the
// configured expiry.
func (s *TradingService) resolveContract(ctx context.Context, symbol string, dir domain.Direction) (string, error) {
	if strings.Contains(symbol, ":") {
		if _, err := options.Parse(symbol); err != nil {
			return "", fmt.Errorf("%v: %w", err, ports.ErrValidation)
		}
		return symbol, nil
	}
	underlying := options.FormatUnderlying(symbol)
	spot, err := s.data.GetQuote(ctx, underlying)
	if err != nil {
		return "", fmt.Errorf("cannot price underlying %s: %w", underlying, err)
	}
	strike := options.NearestStrike(spot, s.cfg.StrikeInterval)
	return options.ContractSymbol(options.Root(underlying), s.cfg.Expiry, strike, dir), nil
}

func (s *TradingService) recordOrder(action string, err error) {
	if s.metrics == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
		switch {
		case errors.Is(err, ports.ErrInvariantViolation):
			s.metrics.OrdersRejected.WithLabelValues("invariant").Inc()
		case errors.Is(err, ports.ErrMarketClosed):
			s.metrics.OrdersRejected.WithLabelValues("market_closed").Inc()
		case errors.Is(err, ports.ErrStrategyStopped):
			s.metrics.OrdersRejected.WithLabelValues("stopped").Inc()
		case errors.Is(err, ports.ErrOrderRejected):
			s.metrics.OrdersRejected.WithLabelValues("broker").Inc()
		}
	}
	s.metrics.OrdersSubmitted.WithLabelValues(action, outcome).Inc()
}

func (s *TradingService) updateGauges() {
	if s.metrics == nil {
		return
	}
	if s.session.IsOpen(time.Now()) {
		s.metrics.MarketOpen.Set(1)
	} else {
		s.metrics.MarketOpen.Set(0)
	}
	s.metrics.PositionState.Set(stateValue(s.machine.State()))
}

func stateValue(st domain.PositionStatus) float64 {
	switch st {
	case domain.StatusPendingEntry:
		return 1
	case domain.StatusOpen:
		return 2
	case domain.StatusPendingExit:
		return 3
	default:
		return 0
	}
}
