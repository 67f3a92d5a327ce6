package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"emaOptionsBot/config"
	"emaOptionsBot/internal/domain"
	"emaOptionsBot/internal/indicators"
	"emaOptionsBot/internal/metrics"
	"emaOptionsBot/internal/ports"
	"emaOptionsBot/internal/risk"
	"emaOptionsBot/internal/strategy"
	"emaOptionsBot/internal/webhook"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

// mockBroker serves as both gateway and market data provider.
type mockBroker struct {
	mu            sync.Mutex
	quote         float64
	fills         []*domain.OrderIntent
	holding       *domain.Position
	streamHandler func(*domain.Candle)
	streamStarted chan struct{}
}

func (b *mockBroker) Submit(ctx context.Context, intent *domain.OrderIntent) (*ports.FillResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fills = append(b.fills, intent)
	price := b.quote
	if intent.OrderType == domain.OrderTypeLimit {
		price = intent.LimitPrice
	}
	if intent.Action == domain.ActionEntry {
		b.holding = &domain.Position{Symbol: intent.Symbol, Quantity: intent.Quantity, EntryPrice: price, Status: domain.StatusOpen}
	} else {
		b.holding = nil
	}
	return &ports.FillResult{Filled: true, FillPrice: price, OrderID: "ord-1"}, nil
}

func (b *mockBroker) GetPosition(ctx context.Context, symbol string) (*domain.Position, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.holding == nil || b.holding.Symbol != symbol {
		return nil, nil
	}
	cp := *b.holding
	return &cp, nil
}

func (b *mockBroker) GetQuote(ctx context.Context, symbol string) (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.quote, nil
}

func (b *mockBroker) GetCandles(ctx context.Context, symbol, timeframe string, limit int) ([]*domain.Candle, error) {
	return nil, nil
}

func (b *mockBroker) StreamCandles(ctx context.Context, symbol, timeframe string, handler func(candle *domain.Candle), errHandler func(err error)) (chan struct{}, chan struct{}, error) {
	b.mu.Lock()
	b.streamHandler = handler
	b.mu.Unlock()
	if b.streamStarted != nil {
		close(b.streamStarted)
	}
	done := make(chan struct{})
	stop := make(chan struct{})
	go func() {
		select {
		case <-stop:
		case <-ctx.Done():
		}
		close(done)
	}()
	return done, stop, nil
}

func (b *mockBroker) pushCandle(c *domain.Candle) {
	b.mu.Lock()
	handler := b.streamHandler
	b.mu.Unlock()
	handler(c)
}

func (b *mockBroker) fillCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.fills)
}

func (b *mockBroker) fill(i int) *domain.OrderIntent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fills[i]
}

type mockPosRepo struct{}

func (r *mockPosRepo) Create(ctx context.Context, pos *domain.Position) (int64, error) { return 1, nil }
func (r *mockPosRepo) Update(ctx context.Context, pos *domain.Position) error          { return nil }
func (r *mockPosRepo) FindActiveByUnderlying(ctx context.Context, underlying string) (*domain.Position, error) {
	return nil, nil
}
func (r *mockPosRepo) GetTotalProfit(ctx context.Context) (float64, error) { return 0, nil }

type mockTradeRepo struct{}

func (r *mockTradeRepo) CreateTrade(ctx context.Context, trade *domain.Trade) (int64, error) {
	return 1, nil
}

type serviceParams struct {
	fastPeriod int
	slowPeriod int
	wsURL      string
}

func newTestService(t *testing.T, broker *mockBroker) *TradingService {
	return buildTestService(t, broker, serviceParams{fastPeriod: 9, slowPeriod: 21})
}

func buildTestService(t *testing.T, broker *mockBroker, p serviceParams) *TradingService {
	t.Helper()

	cfg := &config.Config{
		Mode:             "PAPER",
		Underlying:       "NIFTY",
		Timeframe:        "5",
		Quantity:         50,
		StopLossPct:      0.20,
		TargetPct:        0.40,
		StrikeInterval:   50,
		Expiry:           "25AUG",
		OrderTimeout:     time.Second,
		MaxEntryAttempts: 2,
		SquareOffLead:    10 * time.Minute,
		PollInterval:     time.Hour,
		WatchdogInterval: time.Hour,
		FyersWSURL:       p.wsURL,
	}

	session, err := strategy.NewSession("00:01", "23:59", "UTC")
	require.NoError(t, err)
	riskMgr, err := risk.New(risk.Config{StopLossPct: cfg.StopLossPct, TargetPct: cfg.TargetPct})
	require.NoError(t, err)
	engine, err := indicators.NewEngine(indicators.Config{FastPeriod: p.fastPeriod, SlowPeriod: p.slowPeriod})
	require.NoError(t, err)
	machine, err := strategy.New(strategy.Config{
		Underlying:       cfg.Underlying,
		Quantity:         cfg.Quantity,
		OrderTimeout:     cfg.OrderTimeout,
		MaxEntryAttempts: cfg.MaxEntryAttempts,
		// Pin the clock to a weekday inside the test session.
		Now: func() time.Time { return time.Date(2026, time.August, 21, 12, 0, 0, 0, time.UTC) },
	}, &mockLogger{}, broker, riskMgr, &mockPosRepo{}, &mockTradeRepo{}, session)
	require.NoError(t, err)

	svc, err := NewTradingService(cfg, &mockLogger{}, machine, engine, broker, broker, riskMgr, session, &mockPosRepo{}, metrics.New())
	require.NoError(t, err)
	return svc
}

func TestExecuteCommand_BuyResolvesATMContract(t *testing.T) {
	broker := &mockBroker{quote: 24013.35}
	svc := newTestService(t, broker)

	pos, err := svc.ExecuteCommand(context.Background(), &webhook.Command{
		Action: webhook.ActionBuy, Symbol: "NIFTY", Quantity: 50, OrderType: "MARKET",
	})
	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.Equal(t, "NSE:NIFTY25AUG24000CE", pos.Symbol, "spot 24013.35 rounds to the 24000 strike")
	assert.Equal(t, domain.LongCall, pos.Direction)
	assert.Equal(t, domain.StatusOpen, pos.Status)
}

func TestExecuteCommand_SellBuysPut(t *testing.T) {
	broker := &mockBroker{quote: 24030.0}
	svc := newTestService(t, broker)

	pos, err := svc.ExecuteCommand(context.Background(), &webhook.Command{
		Action: webhook.ActionSell, Symbol: "NIFTY", Quantity: 50, OrderType: "MARKET",
	})
	require.NoError(t, err)
	assert.Equal(t, "NSE:NIFTY25AUG24050PE", pos.Symbol, "SELL buys a put, never shorts")
	assert.Equal(t, domain.LongPut, pos.Direction)
}

func TestExecuteCommand_ExplicitContractSymbol(t *testing.T) {
	broker := &mockBroker{quote: 105.0}
	svc := newTestService(t, broker)

	pos, err := svc.ExecuteCommand(context.Background(), &webhook.Command{
		Action: webhook.ActionBuy, Symbol: "NSE:NIFTY25AUG24100CE", Quantity: 50, OrderType: "LIMIT", Price: 104.0,
	})
	require.NoError(t, err)
	assert.Equal(t, "NSE:NIFTY25AUG24100CE", pos.Symbol)
	assert.InDelta(t, 104.0, pos.EntryPrice, 1e-9, "limit orders fill at the limit price")
}

func TestExecuteCommand_MalformedContractSymbol(t *testing.T) {
	broker := &mockBroker{quote: 105.0}
	svc := newTestService(t, broker)

	_, err := svc.ExecuteCommand(context.Background(), &webhook.Command{
		Action: webhook.ActionBuy, Symbol: "NSE:NIFTY-GARBAGE", Quantity: 50, OrderType: "MARKET",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrValidation)
	assert.Empty(t, broker.fills)
}

func TestExecuteCommand_SecondBuyRefused(t *testing.T) {
	broker := &mockBroker{quote: 24000.0}
	svc := newTestService(t, broker)

	_, err := svc.ExecuteCommand(context.Background(), &webhook.Command{
		Action: webhook.ActionBuy, Symbol: "NIFTY", Quantity: 50, OrderType: "MARKET",
	})
	require.NoError(t, err)

	_, err = svc.ExecuteCommand(context.Background(), &webhook.Command{
		Action: webhook.ActionSell, Symbol: "NIFTY", Quantity: 50, OrderType: "MARKET",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrInvariantViolation)
}

func TestExecuteCommand_ExitRoundTrip(t *testing.T) {
	broker := &mockBroker{quote: 24000.0}
	svc := newTestService(t, broker)

	_, err := svc.ExecuteCommand(context.Background(), &webhook.Command{
		Action: webhook.ActionBuy, Symbol: "NSE:NIFTY25AUG24000CE", Quantity: 50, OrderType: "LIMIT", Price: 100.0,
	})
	require.NoError(t, err)

	broker.mu.Lock()
	broker.quote = 125.0
	broker.mu.Unlock()

	closed, err := svc.ExecuteCommand(context.Background(), &webhook.Command{
		Action: webhook.ActionExit, OrderType: "MARKET",
	})
	require.NoError(t, err)
	require.NotNil(t, closed)
	assert.Equal(t, domain.StatusClosed, closed.Status)
	assert.Equal(t, domain.CloseReasonManual, closed.CloseReason)
	assert.InDelta(t, 1250.0, closed.PNL, 1e-9, "(125-100)*50")
}

func TestExecuteCommand_LosingExitLowersRealizedPNL(t *testing.T) {
	broker := &mockBroker{quote: 100.0}
	svc := newTestService(t, broker)

	_, err := svc.ExecuteCommand(context.Background(), &webhook.Command{
		Action: webhook.ActionBuy, Symbol: "NSE:NIFTY25AUG24000CE", Quantity: 50, OrderType: "LIMIT", Price: 100.0,
	})
	require.NoError(t, err)

	broker.mu.Lock()
	broker.quote = 80.0
	broker.mu.Unlock()

	closed, err := svc.ExecuteCommand(context.Background(), &webhook.Command{
		Action: webhook.ActionExit, OrderType: "MARKET",
	})
	require.NoError(t, err)
	require.NotNil(t, closed)
	assert.Equal(t, domain.StatusClosed, closed.Status)
	assert.InDelta(t, -1000.0, closed.PNL, 1e-9, "(80-100)*50")
	assert.InDelta(t, -1000.0, testutil.ToFloat64(svc.metrics.RealizedPNL), 1e-9,
		"the gauge must absorb a negative realized P&L")
}

func TestStart_StreamDrivesTradingLoop(t *testing.T) {
	broker := &mockBroker{quote: 24013.35, streamStarted: make(chan struct{})}
	svc := buildTestService(t, broker, serviceParams{fastPeriod: 2, slowPeriod: 3, wsURL: "wss://stream.test"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- svc.Start(ctx) }()

	select {
	case <-broker.streamStarted:
	case <-time.After(2 * time.Second):
		t.Fatal("stream was never opened")
	}

	base := time.Now().Add(-2 * time.Hour).Truncate(5 * time.Minute)
	for i, px := range []float64{24010, 24011, 24012, 24009, 24008} {
		broker.pushCandle(&domain.Candle{
			Timestamp: base.Add(time.Duration(i*5) * time.Minute),
			Symbol:    "NSE:NIFTY50-INDEX",
			Timeframe: "5",
			Open:      px, High: px, Low: px, Close: px,
			Volume: 1000,
		})
	}

	require.Eventually(t, func() bool { return broker.fillCount() >= 1 }, 2*time.Second, 10*time.Millisecond,
		"fast EMA crossing under slow EMA must open a put")
	entry := broker.fill(0)
	assert.Equal(t, domain.ActionEntry, entry.Action)
	assert.Equal(t, domain.LongPut, entry.Direction)
	assert.Equal(t, "NSE:NIFTY25AUG24000PE", entry.Symbol)

	cancel()
	select {
	case err := <-runErr:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("service did not stop")
	}
	require.GreaterOrEqual(t, broker.fillCount(), 2, "shutdown must liquidate the open position")
	assert.Equal(t, domain.ActionExit, broker.fill(1).Action)
}

func TestExecuteCommand_ExitWithNothingOpen(t *testing.T) {
	broker := &mockBroker{quote: 24000.0}
	svc := newTestService(t, broker)

	_, err := svc.ExecuteCommand(context.Background(), &webhook.Command{
		Action: webhook.ActionExit, OrderType: "MARKET",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrInvariantViolation)
}
