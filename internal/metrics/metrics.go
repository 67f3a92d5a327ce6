// Package metrics exposes Prometheus instrumentation for the trading
// loop, the order path, and the webhook surface.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all collectors on a private registry so tests can
// create isolated instances.
type Metrics struct {
	registry *prometheus.Registry

	CandlesProcessed prometheus.Counter
	SignalsDetected  *prometheus.CounterVec
	OrdersSubmitted  *prometheus.CounterVec
	OrdersRejected   *prometheus.CounterVec
	WebhookRequests  *prometheus.CounterVec
	PositionState    prometheus.Gauge
	MarketOpen       prometheus.Gauge
	LastClose        prometheus.Gauge
	RealizedPNL      prometheus.Gauge
}

// New creates and registers all collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		CandlesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bot_candles_processed_total",
			Help: "Closed candles consumed by the indicator engine.",
		}),
		SignalsDetected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bot_signals_detected_total",
			Help: "Crossover signals detected, by direction.",
		}, []string{"signal"}),
		OrdersSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bot_orders_submitted_total",
			Help: "Orders submitted to the gateway, by action and outcome.",
		}, []string{"action", "outcome"}),
		OrdersRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bot_orders_rejected_total",
			Help: "Order intents refused before submission, by cause.",
		}, []string{"cause"}),
		WebhookRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bot_webhook_requests_total",
			Help: "Webhook commands received, by action and result.",
		}, []string{"action", "result"}),
		PositionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bot_position_state",
			Help: "Current position lifecycle state (0=NONE 1=PENDING_ENTRY 2=OPEN 3=PENDING_EXIT).",
		}),
		MarketOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bot_market_open",
			Help: "Whether the exchange session is currently open (1) or closed (0).",
		}),
		LastClose: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bot_last_close_price",
			Help: "Close price of the last processed candle.",
		}),
		// A gauge, not a counter: realized P&L moves down on every
		// losing exit.
		RealizedPNL: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bot_realized_pnl_points",
			Help: "Cumulative realized P&L in price points times quantity.",
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.CandlesProcessed,
		m.SignalsDetected,
		m.OrdersSubmitted,
		m.OrdersRejected,
		m.WebhookRequests,
		m.PositionState,
		m.MarketOpen,
		m.LastClose,
		m.RealizedPNL,
	)
	return m
}

// Handler returns the scrape endpoint handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
