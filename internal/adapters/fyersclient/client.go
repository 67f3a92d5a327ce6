// Package fyersclient is a thin REST/WebSocket client for the Fyers v3
// broker API, implementing ports.OrderGateway and
// ports.MarketDataProvider.
package fyersclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"emaOptionsBot/internal/domain"
	"emaOptionsBot/internal/ports"
)

const (
	defaultAPIBaseURL  = "https://api-t1.fyers.in/api/v3"
	defaultDataBaseURL = "https://api-t1.fyers.in/data"
	defaultHTTPTimeout = 10 * time.Second
)

// Client talks to the Fyers trading and data APIs. Authentication is a
// pre-generated access token; token refresh is an operator concern.
type Client struct {
	httpClient  *http.Client
	apiBaseURL  string
	dataBaseURL string
	wsBaseURL   string
	clientID    string
	accessToken string
	logger      ports.Logger
}

// Config holds client construction parameters. Empty URLs fall back to
// the production endpoints; tests point them at an httptest server.
type Config struct {
	ClientID    string
	AccessToken string
	APIBaseURL  string
	DataBaseURL string
	WSBaseURL   string
	Timeout     time.Duration
}

// NewClient validates credentials and builds the client.
func NewClient(cfg Config, logger ports.Logger) (*Client, error) {
	if cfg.ClientID == "" || cfg.AccessToken == "" {
		return nil, fmt.Errorf("fyers client ID and access token are required: %w", ports.ErrConfigurationError)
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = defaultAPIBaseURL
	}
	if cfg.DataBaseURL == "" {
		cfg.DataBaseURL = defaultDataBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultHTTPTimeout
	}
	return &Client{
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		apiBaseURL:  strings.TrimRight(cfg.APIBaseURL, "/"),
		dataBaseURL: strings.TrimRight(cfg.DataBaseURL, "/"),
		wsBaseURL:   cfg.WSBaseURL,
		clientID:    cfg.ClientID,
		accessToken: cfg.AccessToken,
		logger:      logger,
	}, nil
}

// --- wire types ---

type orderRequest struct {
	Symbol       string  `json:"symbol"`
	Qty          int     `json:"qty"`
	Type         int     `json:"type"` // 1=limit, 2=market
	Side         int     `json:"side"` // 1=buy, -1=sell
	ProductType  string  `json:"productType"`
	LimitPrice   float64 `json:"limitPrice"`
	StopPrice    float64 `json:"stopPrice"`
	Validity     string  `json:"validity"`
	DisclosedQty int     `json:"disclosedQty"`
	OfflineOrder bool    `json:"offlineOrder"`
}

type orderResponse struct {
	S       string `json:"s"`
	Code    int    `json:"code"`
	Message string `json:"message"`
	ID      string `json:"id"`
}

type positionsResponse struct {
	S            string `json:"s"`
	Message      string `json:"message"`
	NetPositions []struct {
		Symbol   string  `json:"symbol"`
		NetQty   int     `json:"netQty"`
		AvgPrice float64 `json:"avgPrice"`
		LTP      float64 `json:"ltp"`
	} `json:"netPositions"`
}

type quotesResponse struct {
	S string `json:"s"`
	D []struct {
		N string `json:"n"`
		S string `json:"s"`
		V struct {
			LP float64 `json:"lp"`
		} `json:"v"`
	} `json:"d"`
}

type historyResponse struct {
	S       string      `json:"s"`
	Message string      `json:"message"`
	Candles [][]float64 `json:"candles"` // [ts, o, h, l, c, v]
}

// --- OrderGateway ---

// Submit places an order and reports the fill. Long-only option
// trading maps ENTRY to buy and EXIT to sell.
func (c *Client) Submit(ctx context.Context, intent *domain.OrderIntent) (*ports.FillResult, error) {
	side := 1
	if intent.Action == domain.ActionExit {
		side = -1
	}
	orderType := 2
	if intent.OrderType == domain.OrderTypeLimit {
		orderType = 1
	}
	req := orderRequest{
		Symbol:      intent.Symbol,
		Qty:         intent.Quantity,
		Type:        orderType,
		Side:        side,
		ProductType: "INTRADAY",
		LimitPrice:  intent.LimitPrice,
		Validity:    "DAY",
	}

	var resp orderResponse
	if err := c.do(ctx, http.MethodPost, c.apiBaseURL+"/orders/sync", req, &resp); err != nil {
		return nil, err
	}
	if resp.S != "ok" {
		return nil, classifyOrderError(resp.Code, resp.Message)
	}

	// The sync order endpoint acknowledges placement; the fill price is
	// read back from the broker's net position (entry) or the last
	// traded price (exit).
	fillPrice, err := c.fillPrice(ctx, intent, side)
	if err != nil {
		c.logger.Warn(ctx, "Order placed but fill price lookup failed", map[string]interface{}{
			"orderID": resp.ID, "symbol": intent.Symbol, "error": err.Error(),
		})
	}
	return &ports.FillResult{Filled: true, FillPrice: fillPrice, OrderID: resp.ID}, nil
}

func (c *Client) fillPrice(ctx context.Context, intent *domain.OrderIntent, side int) (float64, error) {
	if side > 0 {
		pos, err := c.GetPosition(ctx, intent.Symbol)
		if err != nil {
			return 0, err
		}
		if pos != nil && pos.EntryPrice > 0 {
			return pos.EntryPrice, nil
		}
	}
	return c.GetQuote(ctx, intent.Symbol)
}

// GetPosition returns the broker's net position for a symbol, nil when
// flat.
func (c *Client) GetPosition(ctx context.Context, symbol string) (*domain.Position, error) {
	var resp positionsResponse
	if err := c.do(ctx, http.MethodGet, c.apiBaseURL+"/positions", nil, &resp); err != nil {
		return nil, err
	}
	if resp.S != "ok" {
		return nil, fmt.Errorf("positions query failed: %s: %w", resp.Message, ports.ErrGatewayUnavailable)
	}
	for _, p := range resp.NetPositions {
		if p.Symbol == symbol && p.NetQty != 0 {
			return &domain.Position{
				Symbol:     p.Symbol,
				Quantity:   p.NetQty,
				EntryPrice: p.AvgPrice,
				Status:     domain.StatusOpen,
			}, nil
		}
	}
	return nil, nil
}

// GetQuote returns the last traded price for a symbol.
func (c *Client) GetQuote(ctx context.Context, symbol string) (float64, error) {
	u := c.dataBaseURL + "/quotes?symbols=" + url.QueryEscape(symbol)
	var resp quotesResponse
	if err := c.do(ctx, http.MethodGet, u, nil, &resp); err != nil {
		return 0, err
	}
	if resp.S != "ok" || len(resp.D) == 0 || resp.D[0].S != "ok" {
		return 0, fmt.Errorf("no quote for %s: %w", symbol, ports.ErrNotFound)
	}
	return resp.D[0].V.LP, nil
}

// --- MarketDataProvider ---

// GetCandles fetches the most recent closed candles for a symbol at
// the given resolution (minutes, e.g. "5").
func (c *Client) GetCandles(ctx context.Context, symbol, timeframe string, limit int) ([]*domain.Candle, error) {
	minutes, err := strconv.Atoi(timeframe)
	if err != nil || minutes <= 0 {
		return nil, fmt.Errorf("timeframe %q is not a minute resolution: %w", timeframe, ports.ErrInvalidRequest)
	}
	now := time.Now()
	// Over-fetch across weekends and holidays, then trim to limit.
	from := now.Add(-time.Duration(limit*minutes*6) * time.Minute)

	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("resolution", timeframe)
	q.Set("date_format", "0")
	q.Set("range_from", strconv.FormatInt(from.Unix(), 10))
	q.Set("range_to", strconv.FormatInt(now.Unix(), 10))
	q.Set("cont_flag", "1")

	var resp historyResponse
	if err := c.do(ctx, http.MethodGet, c.dataBaseURL+"/history?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	if resp.S != "ok" {
		return nil, fmt.Errorf("history query failed: %s: %w", resp.Message, ports.ErrGatewayUnavailable)
	}

	candles := make([]*domain.Candle, 0, len(resp.Candles))
	for _, row := range resp.Candles {
		if len(row) < 6 {
			continue
		}
		candles = append(candles, &domain.Candle{
			Timestamp: time.Unix(int64(row[0]), 0),
			Symbol:    symbol,
			Timeframe: timeframe,
			Open:      row[1],
			High:      row[2],
			Low:       row[3],
			Close:     row[4],
			Volume:    row[5],
		})
	}
	if len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}
	return candles, nil
}

// --- transport ---

func (c *Client) do(ctx context.Context, method, rawURL string, body, out interface{}) error {
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", c.clientID+":"+c.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.transportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return classifyHTTPStatus(resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode broker response: %w", ports.ErrGatewayUnavailable)
	}
	return nil
}

func (c *Client) transportError(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("broker request timed out: %w", ports.ErrTimeout)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("broker request canceled: %w", ports.ErrContextCanceled)
	default:
		return fmt.Errorf("broker request failed: %v: %w", err, ports.ErrConnectionFailed)
	}
}

func classifyHTTPStatus(status int) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("broker returned HTTP %d: %w", status, ports.ErrAuthenticationFailed)
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("broker returned HTTP %d: %w", status, ports.ErrRateLimited)
	case status >= 500:
		return fmt.Errorf("broker returned HTTP %d: %w", status, ports.ErrGatewayUnavailable)
	default:
		return fmt.Errorf("broker returned HTTP %d: %w", status, ports.ErrInvalidRequest)
	}
}

func classifyOrderError(code int, message string) error {
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "margin") || strings.Contains(lower, "fund"):
		return fmt.Errorf("order refused (code %d): %s: %w", code, message, ports.ErrInsufficientFunds)
	case strings.Contains(lower, "token") || strings.Contains(lower, "auth"):
		return fmt.Errorf("order refused (code %d): %s: %w", code, message, ports.ErrAuthenticationFailed)
	default:
		return fmt.Errorf("order refused (code %d): %s: %w", code, message, ports.ErrOrderRejected)
	}
}
