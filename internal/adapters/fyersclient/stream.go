package fyersclient

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"

	"emaOptionsBot/internal/domain"
	"emaOptionsBot/internal/ports"
)

// tickMessage is a data socket update for a subscribed symbol.
type tickMessage struct {
	Type      string  `json:"type"`
	Symbol    string  `json:"symbol"`
	LTP       float64 `json:"ltp"`
	Volume    float64 `json:"vol_traded_today"`
	Timestamp int64   `json:"last_traded_time"`
}

type subscribeMessage struct {
	T       string   `json:"T"`
	Symbols []string `json:"symbol"`
	SubType int      `json:"SUB_T"`
}

// StreamCandles connects to the data socket, aggregates ticks into
// fixed-interval candles, and invokes handler once per closed candle.
// The connection is re-dialed with exponential backoff on failure;
// errHandler observes every disconnect. Only closing stopCh (or the
// context) ends the stream.
func (c *Client) StreamCandles(ctx context.Context, symbol, timeframe string, handler func(candle *domain.Candle), errHandler func(err error)) (chan struct{}, chan struct{}, error) {
	if c.wsBaseURL == "" {
		return nil, nil, fmt.Errorf("websocket URL is not configured: %w", ports.ErrConfigurationError)
	}
	minutes, err := strconv.Atoi(timeframe)
	if err != nil || minutes <= 0 {
		return nil, nil, fmt.Errorf("timeframe %q is not a minute resolution: %w", timeframe, ports.ErrInvalidRequest)
	}

	doneCh := make(chan struct{})
	stopCh := make(chan struct{})
	interval := time.Duration(minutes) * time.Minute

	go func() {
		defer close(doneCh)

		b := &backoff.Backoff{Min: time.Second, Max: 30 * time.Second, Jitter: true}
		agg := newCandleAggregator(symbol, timeframe, interval)

		for {
			select {
			case <-ctx.Done():
				return
			case <-stopCh:
				return
			default:
			}

			err := c.streamOnce(ctx, symbol, stopCh, b, agg, handler)
			if err != nil {
				errHandler(err)
			}
			select {
			case <-ctx.Done():
				return
			case <-stopCh:
				return
			case <-time.After(b.Duration()):
			}
		}
	}()

	return doneCh, stopCh, nil
}

// streamOnce runs a single connection lifetime: dial, subscribe, read
// until error or stop.
func (c *Client) streamOnce(ctx context.Context, symbol string, stopCh chan struct{}, b *backoff.Backoff, agg *candleAggregator, handler func(*domain.Candle)) error {
	header := map[string][]string{"Authorization": {c.clientID + ":" + c.accessToken}}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.wsBaseURL, header)
	if err != nil {
		return fmt.Errorf("data socket dial failed: %v: %w", err, ports.ErrConnectionFailed)
	}
	defer conn.Close()
	b.Reset()

	sub := subscribeMessage{T: "SUB_L2", Symbols: []string{symbol}, SubType: 1}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("data socket subscribe failed: %v: %w", err, ports.ErrConnectionFailed)
	}
	c.logger.Info(ctx, "Data socket connected", map[string]interface{}{"symbol": symbol})

	// Watch for shutdown while the read loop blocks.
	connDone := make(chan struct{})
	defer close(connDone)
	go func() {
		select {
		case <-stopCh:
		case <-ctx.Done():
		case <-connDone:
			return
		}
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-stopCh:
				return nil
			case <-ctx.Done():
				return nil
			default:
			}
			return fmt.Errorf("data socket read failed: %v: %w", err, ports.ErrConnectionFailed)
		}

		var tick tickMessage
		if err := json.Unmarshal(raw, &tick); err != nil || tick.Symbol != symbol || tick.LTP <= 0 {
			continue
		}
		if closed := agg.apply(&tick); closed != nil {
			handler(closed)
		}
	}
}

// candleAggregator buckets a tick stream into fixed-interval candles.
// A candle is emitted only when the first tick of the next bucket
// arrives, so handlers see closed candles only.
type candleAggregator struct {
	symbol    string
	timeframe string
	interval  time.Duration
	current   *domain.Candle
	lastVol   float64
}

func newCandleAggregator(symbol, timeframe string, interval time.Duration) *candleAggregator {
	return &candleAggregator{symbol: symbol, timeframe: timeframe, interval: interval}
}

func (a *candleAggregator) apply(tick *tickMessage) *domain.Candle {
	ts := time.Unix(tick.Timestamp, 0)
	bucket := ts.Truncate(a.interval)

	var closed *domain.Candle
	if a.current != nil && bucket.After(a.current.Timestamp) {
		closed = a.current
		a.current = nil
	}
	if a.current == nil {
		a.current = &domain.Candle{
			Timestamp: bucket,
			Symbol:    a.symbol,
			Timeframe: a.timeframe,
			Open:      tick.LTP,
			High:      tick.LTP,
			Low:       tick.LTP,
			Close:     tick.LTP,
		}
	}
	c := a.current
	if tick.LTP > c.High {
		c.High = tick.LTP
	}
	if tick.LTP < c.Low {
		c.Low = tick.LTP
	}
	c.Close = tick.LTP
	if tick.Volume > a.lastVol {
		c.Volume += tick.Volume - a.lastVol
		a.lastVol = tick.Volume
	}
	return closed
}
