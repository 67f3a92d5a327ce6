package ports

import "errors"

// Standard application-level errors.
// Adapters and the state machine wrap underlying errors with these so
// callers can classify outcomes with errors.Is.
var (
	// General Errors
	ErrUnknown            = errors.New("unknown error occurred")
	ErrInvalidRequest     = errors.New("invalid request parameters or format")
	ErrNotFound           = errors.New("resource not found")
	ErrTimeout            = errors.New("operation timed out")
	ErrContextCanceled    = errors.New("operation canceled via context")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Acceptance Rejections (defined outcomes, never crashes)
	ErrInvariantViolation = errors.New("entry/exit refused: position state forbids it")
	ErrMarketClosed       = errors.New("entry refused: outside exchange session window")
	ErrStrategyStopped    = errors.New("entry refused: strategy is stopping")
	ErrValidation         = errors.New("command failed validation")
	ErrUnauthorized       = errors.New("command token is missing or invalid")

	// Gateway Specific Errors
	ErrGatewayUnavailable   = errors.New("broker API is unavailable")
	ErrConnectionFailed     = errors.New("failed to connect to the broker")
	ErrRateLimited          = errors.New("API rate limit exceeded")
	ErrAuthenticationFailed = errors.New("broker authentication failed (check access token)")
	ErrInsufficientFunds    = errors.New("insufficient funds for operation")
	ErrOrderRejected        = errors.New("broker rejected the order")
	ErrOrderNotFound        = errors.New("order not found at the broker")
	ErrPositionNotFound     = errors.New("position not found at the broker")

	// Database Specific Errors
	ErrDBConnection = errors.New("database connection error")
	ErrQueryFailed  = errors.New("database query failed")
	ErrUpdateFailed = errors.New("database update failed")
)
