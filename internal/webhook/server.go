package webhook

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"emaOptionsBot/internal/domain"
	"emaOptionsBot/internal/metrics"
	"emaOptionsBot/internal/ports"
)

// maxBodyBytes bounds webhook payload size.
const maxBodyBytes = 1 << 16

// Executor applies a validated command to the trading core. The app
// service implements it; the HTTP layer never touches the state
// machine directly.
type Executor interface {
	ExecuteCommand(ctx context.Context, cmd *Command) (*domain.Position, error)
}

// Server is the HTTP surface: POST /webhook for commands, GET /health
// for liveness, GET /metrics for Prometheus scrapes.
type Server struct {
	token    string
	executor Executor
	logger   ports.Logger
	metrics  *metrics.Metrics
	srv      *http.Server
}

// NewServer builds the server. The shared token must be non-empty; a
// tokenless webhook would accept orders from anyone on the network.
func NewServer(addr, token string, executor Executor, logger ports.Logger, m *metrics.Metrics) (*Server, error) {
	if token == "" {
		return nil, fmt.Errorf("webhook token must not be empty: %w", ports.ErrConfigurationError)
	}
	if executor == nil || logger == nil {
		return nil, fmt.Errorf("executor and logger are required")
	}
	s := &Server{token: token, executor: executor, logger: logger, metrics: m}

	mux := http.NewServeMux()
	mux.HandleFunc("/webhook", s.handleWebhook)
	mux.HandleFunc("/health", s.handleHealth)
	if m != nil {
		mux.Handle("/metrics", m.Handler())
	}
	s.srv = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s, nil
}

// Start runs the listener until Shutdown is called. It blocks.
func (s *Server) Start() error {
	s.logger.Info(context.Background(), "Webhook server listening", map[string]interface{}{"addr": s.srv.Addr})
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("webhook server failed: %w", err)
	}
	return nil
}

// Shutdown stops the listener gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()

	var cmd Command
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cmd); err != nil {
		s.count("", "bad_request")
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	cmd.Normalize()

	// Token check first, constant time, and before any validation so a
	// probing caller learns nothing about the schema.
	if subtle.ConstantTimeCompare([]byte(cmd.Token), []byte(s.token)) != 1 {
		s.count(cmd.Action, "unauthorized")
		s.logger.Warn(ctx, "Webhook rejected: bad token", map[string]interface{}{"remote": r.RemoteAddr})
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	cmd.Token = "" // never log or echo the secret

	if err := cmd.Validate(); err != nil {
		s.count(cmd.Action, "invalid")
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	pos, err := s.executor.ExecuteCommand(ctx, &cmd)
	if err != nil {
		status, result := classify(err)
		s.count(cmd.Action, result)
		s.logger.Warn(ctx, "Webhook command refused", map[string]interface{}{
			"action": cmd.Action, "symbol": cmd.Symbol, "error": err.Error(),
		})
		writeError(w, status, err.Error())
		return
	}

	s.count(cmd.Action, "accepted")
	s.logger.Info(ctx, "Webhook command executed", map[string]interface{}{
		"action": cmd.Action, "symbol": cmd.Symbol,
	})
	resp := map[string]interface{}{"status": "ok"}
	if pos != nil {
		resp["position"] = map[string]interface{}{
			"symbol":    pos.Symbol,
			"direction": pos.Direction,
			"state":     pos.Status,
			"quantity":  pos.Quantity,
			"price":     activePrice(pos),
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func activePrice(pos *domain.Position) float64 {
	if pos.Status == domain.StatusClosed {
		return pos.ExitPrice
	}
	return pos.EntryPrice
}

// classify maps core errors to HTTP status and a metrics label.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ports.ErrValidation), errors.Is(err, ports.ErrInvalidRequest):
		return http.StatusBadRequest, "invalid"
	case errors.Is(err, ports.ErrInvariantViolation),
		errors.Is(err, ports.ErrMarketClosed),
		errors.Is(err, ports.ErrStrategyStopped),
		errors.Is(err, ports.ErrPositionNotFound):
		return http.StatusConflict, "refused"
	case errors.Is(err, ports.ErrTimeout),
		errors.Is(err, ports.ErrGatewayUnavailable),
		errors.Is(err, ports.ErrConnectionFailed):
		return http.StatusBadGateway, "gateway_error"
	default:
		return http.StatusInternalServerError, "error"
	}
}

func (s *Server) count(action, result string) {
	if s.metrics == nil {
		return
	}
	if action == "" {
		action = "UNKNOWN"
	}
	s.metrics.WebhookRequests.WithLabelValues(action, result).Inc()
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"status": "error", "error": msg})
}
