// Package paper implements an OrderGateway that simulates fills
// locally. PAPER mode runs the identical strategy path as LIVE; only
// this adapter differs.
package paper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"emaOptionsBot/internal/domain"
	"emaOptionsBot/internal/ports"
)

// Gateway simulates a broker: market orders fill immediately at the
// latest quote, limit orders fill at the limit price.
type Gateway struct {
	data   ports.MarketDataProvider
	logger ports.Logger

	mu        sync.Mutex
	positions map[string]*domain.Position // symbol -> simulated holding
}

// New creates a paper gateway. Quotes come from the real market data
// provider so simulated fills track actual prices.
func New(data ports.MarketDataProvider, logger ports.Logger) (*Gateway, error) {
	if data == nil || logger == nil {
		return nil, fmt.Errorf("market data provider and logger are required")
	}
	return &Gateway{
		data:      data,
		logger:    logger,
		positions: make(map[string]*domain.Position),
	}, nil
}

// Submit fills the intent immediately and adjusts the simulated book.
func (g *Gateway) Submit(ctx context.Context, intent *domain.OrderIntent) (*ports.FillResult, error) {
	fillPrice := intent.LimitPrice
	if intent.OrderType == domain.OrderTypeMarket {
		q, err := g.data.GetQuote(ctx, intent.Symbol)
		if err != nil {
			return nil, fmt.Errorf("paper fill needs a quote for %s: %w", intent.Symbol, err)
		}
		fillPrice = q
	}
	if fillPrice <= 0 {
		return nil, fmt.Errorf("paper fill price for %s is not positive: %w", intent.Symbol, ports.ErrOrderRejected)
	}

	orderID := uuid.NewString()

	g.mu.Lock()
	defer g.mu.Unlock()
	switch intent.Action {
	case domain.ActionEntry:
		if _, held := g.positions[intent.Symbol]; held {
			return nil, fmt.Errorf("paper book already holds %s: %w", intent.Symbol, ports.ErrOrderRejected)
		}
		g.positions[intent.Symbol] = &domain.Position{
			Symbol:     intent.Symbol,
			Underlying: intent.Underlying,
			Direction:  intent.Direction,
			EntryPrice: fillPrice,
			Quantity:   intent.Quantity,
			Status:     domain.StatusOpen,
			EntryTime:  time.Now(),
			OrderID:    orderID,
		}
	case domain.ActionExit:
		if _, held := g.positions[intent.Symbol]; !held {
			return nil, fmt.Errorf("paper book holds no %s to exit: %w", intent.Symbol, ports.ErrPositionNotFound)
		}
		delete(g.positions, intent.Symbol)
	default:
		return nil, fmt.Errorf("unknown intent action %q: %w", intent.Action, ports.ErrInvalidRequest)
	}

	g.logger.Info(ctx, "Paper order filled", map[string]interface{}{
		"action": intent.Action, "symbol": intent.Symbol, "price": fillPrice, "quantity": intent.Quantity, "orderID": orderID,
	})
	return &ports.FillResult{Filled: true, FillPrice: fillPrice, OrderID: orderID}, nil
}

// GetPosition reports the simulated holding for a symbol, nil when flat.
func (g *Gateway) GetPosition(_ context.Context, symbol string) (*domain.Position, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	pos, ok := g.positions[symbol]
	if !ok {
		return nil, nil
	}
	cp := *pos
	return &cp, nil
}

// GetQuote proxies to the real market data provider.
func (g *Gateway) GetQuote(ctx context.Context, symbol string) (float64, error) {
	return g.data.GetQuote(ctx, symbol)
}
