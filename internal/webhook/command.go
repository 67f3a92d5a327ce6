// Package webhook receives authenticated trading commands over HTTP
// and translates them into state machine calls. It is an untrusted
// input surface: every request is token-checked and schema-validated
// before anything downstream sees it.
package webhook

import (
	"fmt"
	"strings"

	"emaOptionsBot/internal/domain"
	"emaOptionsBot/internal/ports"
)

// Command is the webhook request body.
type Command struct {
	Token     string  `json:"token"`
	Action    string  `json:"action"`     // BUY, SELL or EXIT
	Symbol    string  `json:"symbol"`     // underlying or option contract symbol
	Quantity  int     `json:"quantity"`   // required for BUY/SELL
	OrderType string  `json:"order_type"` // MARKET (default) or LIMIT
	Price     float64 `json:"price"`      // required when order_type is LIMIT
}

const (
	ActionBuy  = "BUY"
	ActionSell = "SELL"
	ActionExit = "EXIT"
)

// Normalize upper-cases the enum fields and applies defaults.
func (c *Command) Normalize() {
	c.Action = strings.ToUpper(strings.TrimSpace(c.Action))
	c.Symbol = strings.ToUpper(strings.TrimSpace(c.Symbol))
	c.OrderType = strings.ToUpper(strings.TrimSpace(c.OrderType))
	if c.OrderType == "" {
		c.OrderType = string(domain.OrderTypeMarket)
	}
}

// Validate checks the command schema. All failures wrap
// ports.ErrValidation so the HTTP layer maps them to 400.
func (c *Command) Validate() error {
	switch c.Action {
	case ActionBuy, ActionSell:
		if c.Symbol == "" {
			return fmt.Errorf("symbol is required for %s: %w", c.Action, ports.ErrValidation)
		}
		if c.Quantity <= 0 {
			return fmt.Errorf("quantity must be positive, got %d: %w", c.Quantity, ports.ErrValidation)
		}
	case ActionExit:
		// symbol and quantity come from the active position
	default:
		return fmt.Errorf("unknown action %q: %w", c.Action, ports.ErrValidation)
	}
	switch c.OrderType {
	case string(domain.OrderTypeMarket):
	case string(domain.OrderTypeLimit):
		if c.Price <= 0 {
			return fmt.Errorf("price is required for LIMIT orders: %w", ports.ErrValidation)
		}
	default:
		return fmt.Errorf("unknown order_type %q: %w", c.OrderType, ports.ErrValidation)
	}
	return nil
}

// Direction maps the command action to a position direction. A bearish
// command buys a put rather than shorting anything.
func (c *Command) Direction() domain.Direction {
	if c.Action == ActionSell {
		return domain.LongPut
	}
	return domain.LongCall
}
