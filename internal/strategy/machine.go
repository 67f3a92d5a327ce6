// Package strategy owns the single source of truth for position state.
// All mutation — from the polling loop and from webhook commands —
// goes through the acceptance functions SubmitEntry and SubmitExit,
// which perform the whole check-state-then-transition sequence inside
// one critical section. That single-writer rule is what guarantees
// at most one active position under concurrent triggers.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"emaOptionsBot/internal/domain"
	"emaOptionsBot/internal/ports"
	"emaOptionsBot/internal/risk"
)

// Config holds state machine parameters.
type Config struct {
	Underlying       string        // underlying data symbol the strategy trades options on
	Quantity         int           // units per order (lot size multiples)
	OrderTimeout     time.Duration // bound on a single gateway submission
	MaxEntryAttempts int           // total entry attempts (initial + retries), default 2

	// Now overrides the wall clock; nil means time.Now. Session checks
	// and position timestamps go through it.
	Now func() time.Time
}

// Machine is the strategy state machine:
// NONE -> PENDING_ENTRY -> OPEN -> PENDING_EXIT -> NONE.
type Machine struct {
	cfg       Config
	logger    ports.Logger
	gateway   ports.OrderGateway
	riskMgr   *risk.Manager
	posRepo   ports.PositionRepository
	tradeRepo ports.TradeRepository
	session   *Session
	now       func() time.Time

	mu       sync.Mutex
	position *domain.Position // nil means state NONE
	stopped  bool
}

// New creates a state machine. All dependencies are required.
func New(cfg Config, logger ports.Logger, gateway ports.OrderGateway, riskMgr *risk.Manager,
	posRepo ports.PositionRepository, tradeRepo ports.TradeRepository, session *Session) (*Machine, error) {

	if logger == nil || gateway == nil || riskMgr == nil || posRepo == nil || tradeRepo == nil || session == nil {
		return nil, fmt.Errorf("missing required dependencies for strategy machine")
	}
	if cfg.Underlying == "" {
		return nil, fmt.Errorf("underlying symbol is required")
	}
	if cfg.Quantity <= 0 {
		return nil, fmt.Errorf("quantity must be positive, got %d", cfg.Quantity)
	}
	if cfg.OrderTimeout <= 0 {
		cfg.OrderTimeout = 5 * time.Second
	}
	if cfg.MaxEntryAttempts <= 0 {
		cfg.MaxEntryAttempts = 2
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Machine{
		cfg:       cfg,
		logger:    logger,
		gateway:   gateway,
		riskMgr:   riskMgr,
		posRepo:   posRepo,
		tradeRepo: tradeRepo,
		session:   session,
		now:       now,
	}, nil
}

// State returns the current lifecycle state.
func (m *Machine) State() domain.PositionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.position == nil {
		return domain.StatusNone
	}
	return m.position.Status
}

// Snapshot returns a copy of the active position, or nil when state is
// NONE. Callers may inspect it freely; mutation stays with the machine.
func (m *Machine) Snapshot() *domain.Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.position == nil {
		return nil
	}
	cp := *m.position
	return &cp
}

// SubmitEntry is the acceptance function for ENTRY intents. It refuses
// (never queues) whenever state != NONE, the session is closed, or the
// strategy is stopping — all as defined rejection errors, never a
// crash. On success the returned position is OPEN with the actual fill
// price.
func (m *Machine) SubmitEntry(ctx context.Context, intent *domain.OrderIntent) (*domain.Position, error) {
	if err := validateEntryIntent(intent); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return nil, fmt.Errorf("entry %s: %w", intent.Symbol, ports.ErrStrategyStopped)
	}
	if m.position != nil {
		return nil, fmt.Errorf("entry %s while position state is %s: %w",
			intent.Symbol, m.position.Status, ports.ErrInvariantViolation)
	}
	if !m.session.IsOpen(m.now()) {
		return nil, fmt.Errorf("entry %s: %w", intent.Symbol, ports.ErrMarketClosed)
	}

	m.position = &domain.Position{
		Symbol:     intent.Symbol,
		Underlying: intent.Underlying,
		Direction:  intent.Direction,
		Quantity:   intent.Quantity,
		Status:     domain.StatusPendingEntry,
		EntryTime:  m.now(),
	}
	m.logger.Info(ctx, "Entry accepted, submitting order", map[string]interface{}{
		"symbol": intent.Symbol, "direction": intent.Direction, "quantity": intent.Quantity, "reason": intent.Reason,
	})

	var lastErr error
	for attempt := 1; attempt <= m.cfg.MaxEntryAttempts; attempt++ {
		res, err := m.submit(ctx, intent)
		if err == nil && res.Filled {
			return m.markOpenLocked(ctx, intent, res.FillPrice, res.OrderID)
		}
		if isTimeout(err) {
			m.logger.Warn(ctx, "Entry order unconfirmed within timeout, reconciling", map[string]interface{}{"symbol": intent.Symbol})
			pos, rerr := m.reconcileEntryLocked(ctx)
			if rerr != nil {
				// Leave the pending state for the watchdog to resolve.
				return nil, fmt.Errorf("entry unconfirmed and reconciliation failed: %w", errors.Join(ports.ErrTimeout, rerr))
			}
			if pos != nil {
				return pos, nil
			}
			return nil, fmt.Errorf("entry order for %s did not fill: %w", intent.Symbol, ports.ErrTimeout)
		}
		if err == nil {
			err = fmt.Errorf("order not filled: %w", ports.ErrOrderRejected)
		}
		lastErr = err
		m.logger.Warn(ctx, "Entry attempt failed", map[string]interface{}{
			"symbol": intent.Symbol, "attempt": attempt, "error": err.Error(),
		})
	}

	m.position = nil
	return nil, fmt.Errorf("entry failed after %d attempts: %w", m.cfg.MaxEntryAttempts, errors.Join(ports.ErrOrderRejected, lastErr))
}

// SubmitExit is the acceptance function for EXIT intents. It is
// accepted from OPEN and PENDING_ENTRY (after reconciling the pending
// entry) and refused otherwise. Manual/webhook exits use reason MANUAL
// and always take precedence over signal state.
func (m *Machine) SubmitExit(ctx context.Context, reason domain.CloseReason, orderType domain.OrderType, limitPrice float64) (*domain.Position, error) {
	if orderType == "" {
		orderType = domain.OrderTypeMarket
	}
	if orderType == domain.OrderTypeLimit && limitPrice <= 0 {
		return nil, fmt.Errorf("limit exit requires a positive price: %w", ports.ErrValidation)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.position == nil {
		return nil, fmt.Errorf("exit with no active position: %w", ports.ErrInvariantViolation)
	}

	switch m.position.Status {
	case domain.StatusPendingExit:
		return nil, fmt.Errorf("exit already in flight: %w", ports.ErrInvariantViolation)
	case domain.StatusPendingEntry:
		// Resolve the ambiguous entry before exiting it.
		pos, err := m.reconcileEntryLocked(ctx)
		if err != nil {
			return nil, fmt.Errorf("cannot exit, pending entry unresolved: %w", err)
		}
		if pos == nil {
			return nil, fmt.Errorf("pending entry never filled, nothing to exit: %w", ports.ErrPositionNotFound)
		}
	case domain.StatusOpen:
		// proceed
	default:
		return nil, fmt.Errorf("exit from state %s: %w", m.position.Status, ports.ErrInvariantViolation)
	}

	m.position.Status = domain.StatusPendingExit
	m.position.CloseReason = reason
	intent := &domain.OrderIntent{
		Action:     domain.ActionExit,
		Symbol:     m.position.Symbol,
		Underlying: m.position.Underlying,
		Quantity:   m.position.Quantity,
		OrderType:  orderType,
		LimitPrice: limitPrice,
		Reason:     string(reason),
	}
	m.logger.Info(ctx, "Exit accepted, submitting order", map[string]interface{}{
		"symbol": intent.Symbol, "reason": reason,
	})

	res, err := m.submit(ctx, intent)
	if err == nil && res.Filled {
		return m.finalizeCloseLocked(ctx, res.FillPrice, reason), nil
	}
	if isTimeout(err) {
		m.logger.Warn(ctx, "Exit order unconfirmed within timeout, reconciling", map[string]interface{}{"symbol": intent.Symbol})
		pos, rerr := m.reconcileExitLocked(ctx)
		if rerr != nil {
			return nil, fmt.Errorf("exit unconfirmed and reconciliation failed: %w", errors.Join(ports.ErrTimeout, rerr))
		}
		if pos != nil {
			return pos, nil
		}
		return nil, fmt.Errorf("exit order for %s did not fill, position remains open: %w", intent.Symbol, ports.ErrTimeout)
	}

	// Broker rejected the exit: revert to the prior stable state. The
	// next tick's risk evaluation (or the operator) retries.
	m.position.Status = domain.StatusOpen
	m.position.CloseReason = ""
	if err == nil {
		err = ports.ErrOrderRejected
	}
	return nil, fmt.Errorf("exit order rejected: %w", err)
}

// Reconcile resolves a stuck PENDING_ENTRY or PENDING_EXIT state by
// re-querying the gateway's authoritative position. It is called by
// the watchdog and on restart; it is a no-op in stable states.
func (m *Machine) Reconcile(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.position == nil {
		return nil
	}
	switch m.position.Status {
	case domain.StatusPendingEntry:
		pos, err := m.reconcileEntryLocked(ctx)
		if err != nil {
			return err
		}
		if pos == nil {
			m.logger.Info(ctx, "Reconciliation: pending entry never filled, state reverted to NONE")
		}
	case domain.StatusPendingExit:
		pos, err := m.reconcileExitLocked(ctx)
		if err != nil {
			return err
		}
		if pos == nil {
			m.logger.Info(ctx, "Reconciliation: pending exit not filled, position reverted to OPEN")
		}
	}
	return nil
}

// Restore loads any active position from the journal at startup and
// reconciles it against the gateway before trading resumes. A crash
// mid-transition is resolved here, never blindly retried.
func (m *Machine) Restore(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	row, err := m.posRepo.FindActiveByUnderlying(ctx, m.cfg.Underlying)
	if err != nil {
		return fmt.Errorf("failed to query active position: %w", err)
	}
	if row == nil {
		m.logger.Info(ctx, "No active position found in journal")
		return nil
	}

	gwPos, err := m.gateway.GetPosition(ctx, row.Symbol)
	if err != nil {
		return fmt.Errorf("failed to verify journaled position %d with gateway: %w", row.ID, err)
	}
	if gwPos != nil && gwPos.Quantity > 0 {
		if row.EntryPrice == 0 {
			row.EntryPrice = gwPos.EntryPrice
			row.StopLoss, row.Target = m.riskMgr.Levels(row.EntryPrice)
		}
		row.Status = domain.StatusOpen
		m.position = row
		m.logger.Info(ctx, "Restored open position from journal", map[string]interface{}{
			"positionID": row.ID, "symbol": row.Symbol, "entryPrice": row.EntryPrice,
		})
		if uerr := m.posRepo.Update(ctx, row); uerr != nil {
			m.logger.Error(ctx, uerr, "Failed to update restored position in journal")
		}
		return nil
	}

	// The broker holds no exposure: the position was closed out-of-band.
	exitPrice, qerr := m.gateway.GetQuote(ctx, row.Symbol)
	if qerr != nil {
		m.logger.Warn(ctx, "Quote unavailable for orphaned position, using entry price", map[string]interface{}{"symbol": row.Symbol})
		exitPrice = row.EntryPrice
	}
	m.position = row
	m.finalizeCloseLocked(ctx, exitPrice, domain.CloseReasonUnknown)
	m.logger.Warn(ctx, "Journaled position no longer held at gateway, marked closed", map[string]interface{}{"positionID": row.ID})
	return nil
}

// Stop blocks all further entries and optionally force-liquidates an
// open position. It is safe to call more than once.
func (m *Machine) Stop(ctx context.Context, liquidate bool) error {
	m.mu.Lock()
	m.stopped = true
	needExit := liquidate && m.position != nil && m.position.Status == domain.StatusOpen
	m.mu.Unlock()

	m.logger.Info(ctx, "Strategy stopping", map[string]interface{}{"liquidate": liquidate})
	if !needExit {
		return nil
	}
	_, err := m.SubmitExit(ctx, domain.CloseReasonShutdown, domain.OrderTypeMarket, 0)
	if err != nil {
		return fmt.Errorf("forced liquidation on stop failed: %w", err)
	}
	return nil
}

// --- internal helpers (callers hold m.mu) ---

// submit places one order with the configured bounded timeout.
func (m *Machine) submit(ctx context.Context, intent *domain.OrderIntent) (*ports.FillResult, error) {
	subCtx, cancel := context.WithTimeout(ctx, m.cfg.OrderTimeout)
	defer cancel()
	return m.gateway.Submit(subCtx, intent)
}

func (m *Machine) markOpenLocked(ctx context.Context, intent *domain.OrderIntent, fillPrice float64, orderID string) (*domain.Position, error) {
	if fillPrice == 0 {
		// Market fills should always report a price; fall back to the
		// latest quote rather than recording a zero-cost position.
		q, err := m.gateway.GetQuote(ctx, intent.Symbol)
		if err != nil {
			m.logger.Warn(ctx, "Fill price missing and quote unavailable", map[string]interface{}{"symbol": intent.Symbol})
		} else {
			fillPrice = q
		}
	}

	m.position.EntryPrice = fillPrice
	m.position.StopLoss, m.position.Target = m.riskMgr.Levels(fillPrice)
	m.position.Status = domain.StatusOpen
	m.position.OrderID = orderID
	m.position.EntryTime = m.now()

	if id, err := m.posRepo.Create(ctx, m.position); err != nil {
		// The broker holds the position regardless; keep trading on the
		// in-memory state and surface the journal failure in logs.
		m.logger.Error(ctx, err, "Failed to journal new position")
	} else {
		m.position.ID = id
	}

	m.logger.Info(ctx, "Position opened", map[string]interface{}{
		"positionID": m.position.ID, "symbol": m.position.Symbol,
		"entryPrice": fillPrice, "stopLoss": m.position.StopLoss, "target": m.position.Target,
	})
	cp := *m.position
	return &cp, nil
}

func (m *Machine) finalizeCloseLocked(ctx context.Context, exitPrice float64, reason domain.CloseReason) *domain.Position {
	pos := m.position
	pos.ExitPrice = exitPrice
	pos.ExitTime = m.now()
	pos.Status = domain.StatusClosed
	pos.CloseReason = reason
	pos.PNL = pos.RealizedPNL(exitPrice)

	if pos.ID != 0 {
		if err := m.posRepo.Update(ctx, pos); err != nil {
			m.logger.Error(ctx, err, "Failed to update closed position in journal", map[string]interface{}{"positionID": pos.ID})
		}
	}
	trade := &domain.Trade{
		PositionID:  pos.ID,
		Symbol:      pos.Symbol,
		Direction:   pos.Direction,
		EntryPrice:  pos.EntryPrice,
		ExitPrice:   pos.ExitPrice,
		Quantity:    pos.Quantity,
		PNL:         pos.PNL,
		EntryTime:   pos.EntryTime,
		ExitTime:    pos.ExitTime,
		CloseReason: reason,
	}
	if _, err := m.tradeRepo.CreateTrade(ctx, trade); err != nil {
		m.logger.Error(ctx, err, "Failed to journal closed trade", map[string]interface{}{"positionID": pos.ID})
	}

	m.logger.Info(ctx, "Position closed", map[string]interface{}{
		"positionID": pos.ID, "symbol": pos.Symbol, "exitPrice": exitPrice, "pnl": pos.PNL, "reason": reason,
	})
	cp := *pos
	m.position = nil
	return &cp
}

// reconcileEntryLocked resolves an ambiguous PENDING_ENTRY against the
// gateway. Returns the open position if the order in fact filled, or
// nil (with state reverted to NONE) if it did not.
func (m *Machine) reconcileEntryLocked(ctx context.Context) (*domain.Position, error) {
	gwPos, err := m.gateway.GetPosition(ctx, m.position.Symbol)
	if err != nil {
		return nil, fmt.Errorf("reconciliation query failed: %w", err)
	}
	if gwPos != nil && gwPos.Quantity > 0 {
		intent := &domain.OrderIntent{Symbol: m.position.Symbol}
		return m.markOpenLocked(ctx, intent, gwPos.EntryPrice, gwPos.OrderID)
	}
	m.position = nil
	return nil, nil
}

// reconcileExitLocked resolves an ambiguous PENDING_EXIT. Returns the
// closed position if the broker no longer holds exposure, or nil (with
// state reverted to OPEN) if the exit never executed.
func (m *Machine) reconcileExitLocked(ctx context.Context) (*domain.Position, error) {
	gwPos, err := m.gateway.GetPosition(ctx, m.position.Symbol)
	if err != nil {
		return nil, fmt.Errorf("reconciliation query failed: %w", err)
	}
	if gwPos == nil || gwPos.Quantity == 0 {
		reason := m.position.CloseReason
		if reason == "" {
			reason = domain.CloseReasonUnknown
		}
		exitPrice, qerr := m.gateway.GetQuote(ctx, m.position.Symbol)
		if qerr != nil {
			m.logger.Warn(ctx, "Quote unavailable during exit reconciliation, using entry price", map[string]interface{}{"symbol": m.position.Symbol})
			exitPrice = m.position.EntryPrice
		}
		return m.finalizeCloseLocked(ctx, exitPrice, reason), nil
	}
	m.position.Status = domain.StatusOpen
	m.position.CloseReason = ""
	return nil, nil
}

func validateEntryIntent(intent *domain.OrderIntent) error {
	if intent == nil {
		return fmt.Errorf("nil intent: %w", ports.ErrValidation)
	}
	if intent.Action != domain.ActionEntry {
		return fmt.Errorf("intent action %q is not ENTRY: %w", intent.Action, ports.ErrValidation)
	}
	if intent.Symbol == "" {
		return fmt.Errorf("intent symbol is empty: %w", ports.ErrValidation)
	}
	if intent.Quantity <= 0 {
		return fmt.Errorf("intent quantity must be positive: %w", ports.ErrValidation)
	}
	if intent.Direction != domain.LongCall && intent.Direction != domain.LongPut {
		return fmt.Errorf("intent direction %q is invalid: %w", intent.Direction, ports.ErrValidation)
	}
	if intent.OrderType == domain.OrderTypeLimit && intent.LimitPrice <= 0 {
		return fmt.Errorf("limit order requires a positive price: %w", ports.ErrValidation)
	}
	return nil
}

func isTimeout(err error) bool {
	return err != nil && (errors.Is(err, ports.ErrTimeout) || errors.Is(err, context.DeadlineExceeded))
}
