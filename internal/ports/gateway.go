package ports

import (
	"context"

	"emaOptionsBot/internal/domain"
)

// FillResult reports the outcome of a submitted order intent.
type FillResult struct {
	Filled    bool    // Whether the order executed
	FillPrice float64 // Average fill price (0 when not filled)
	OrderID   string  // Broker-assigned order identifier
}

// OrderGateway executes order intents against a broker and reports
// fills. It is an at-least-once-reporting, possibly-slow dependency:
// callers reconcile via GetPosition rather than assume delivery.
// The PAPER implementation fills immediately without network calls;
// the LIVE implementation is a thin REST client.
type OrderGateway interface {
	// Submit executes an order intent and returns the fill outcome.
	Submit(ctx context.Context, intent *domain.OrderIntent) (*FillResult, error)

	// GetPosition retrieves the broker's view of the position for a
	// symbol. Returns nil, nil when the broker holds no exposure.
	GetPosition(ctx context.Context, symbol string) (*domain.Position, error)

	// GetQuote retrieves the latest traded price for a symbol.
	GetQuote(ctx context.Context, symbol string) (float64, error)
}

// MarketDataProvider supplies historical and live price samples for
// the underlying instrument the strategy trades options on.
type MarketDataProvider interface {
	// GetQuote retrieves the latest traded price for a symbol.
	GetQuote(ctx context.Context, symbol string) (float64, error)

	// GetCandles retrieves the most recent closed candles for the
	// given symbol and timeframe (resolution in minutes).
	GetCandles(ctx context.Context, symbol, timeframe string, limit int) ([]*domain.Candle, error)

	// StreamCandles starts a live candle stream. Handlers are invoked
	// from the stream's goroutine. Returns channels to observe (done)
	// and request (stop) stream shutdown.
	StreamCandles(ctx context.Context, symbol, timeframe string, handler func(candle *domain.Candle), errHandler func(err error)) (doneCh chan struct{}, stopCh chan struct{}, err error)
}
