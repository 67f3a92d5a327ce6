package ports

import (
	"context"

	"emaOptionsBot/internal/domain"
)

// PositionRepository stores and retrieves positions. The journal is
// the source of truth for restart reconciliation: an active row found
// at boot is re-checked against the gateway before trading resumes.
type PositionRepository interface {
	// Create saves a new position and returns its assigned ID.
	Create(ctx context.Context, pos *domain.Position) (int64, error)
	// Update modifies an existing position.
	Update(ctx context.Context, pos *domain.Position) error
	// FindActiveByUnderlying retrieves the non-CLOSED position for an
	// underlying, if any. Returns nil, nil when none exists.
	FindActiveByUnderlying(ctx context.Context, underlying string) (*domain.Position, error)
	// GetTotalProfit calculates the sum of PNL for all closed positions.
	GetTotalProfit(ctx context.Context) (float64, error)
}

// TradeRepository records completed round trips.
type TradeRepository interface {
	// CreateTrade saves a new trade record and returns its assigned ID.
	CreateTrade(ctx context.Context, trade *domain.Trade) (int64, error)
}
