package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/seojinpark/volumetrader/internal/config"
	"github.com/seojinpark/volumetrader/internal/market"
	"github.com/seojinpark/volumetrader/internal/observ"
)

// Client talks to the broker's REST API. A token-bucket limiter smooths the
// wire-level request rate on top of the caller's sliding-window limiter, and
// every request retries with exponential backoff up to MaxRetries.
type Client struct {
	baseURL    string
	appKey     string
	appSecret  string
	httpClient *http.Client
	limiter    *rate.Limiter
	cfg        config.Broker

	mu                sync.Mutex
	consecutiveErrors int
}

func NewClient(cfg config.Broker, rl config.RateLimit, appKey, appSecret string) (*Client, error) {
	if appKey == "" || appSecret == "" {
		return nil, fmt.Errorf("broker: app key and secret are required")
	}
	rps := float64(rl.Requests) / rl.WindowSeconds
	return &Client{
		baseURL:   cfg.BaseURL,
		appKey:    appKey,
		appSecret: appSecret,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(rps), rl.Requests),
		cfg:     cfg,
	}, nil
}

type snapshotItem struct {
	Symbol     string  `json:"symbol"`
	Name       string  `json:"name"`
	Price      float64 `json:"price"`
	Volume     int64   `json:"volume"`
	PrevVolume int64   `json:"prev_volume"`
	ChangeRate float64 `json:"change_rate"`
	TradeValue float64 `json:"trade_value"`
	Strength   float64 `json:"strength"`
}

func (it snapshotItem) toSnapshot(ts time.Time) market.Snapshot {
	return market.Snapshot{
		Symbol:        it.Symbol,
		Name:          it.Name,
		Price:         it.Price,
		TodayVolume:   it.Volume,
		PrevDayVolume: it.PrevVolume,
		PriceChange:   it.ChangeRate,
		TradeValue:    it.TradeValue,
		ExecStrength:  it.Strength,
		Timestamp:     ts,
	}
}

// RankedSnapshot fetches the volume-ranked board.
func (c *Client) RankedSnapshot(ctx context.Context, limit int) ([]market.Snapshot, error) {
	var resp struct {
		Items []snapshotItem `json:"items"`
	}
	q := url.Values{"count": {fmt.Sprint(limit)}}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/ranking/volume", q, nil, &resp); err != nil {
		return nil, fmt.Errorf("ranked snapshot: %w", err)
	}
	now := time.Now()
	out := make([]market.Snapshot, 0, len(resp.Items))
	for _, it := range resp.Items {
		out = append(out, it.toSnapshot(now))
	}
	return out, nil
}

func (c *Client) Quote(ctx context.Context, symbol string) (market.Snapshot, error) {
	var it snapshotItem
	if err := c.doJSON(ctx, http.MethodGet, "/v1/quote/"+url.PathEscape(symbol), nil, nil, &it); err != nil {
		return market.Snapshot{}, fmt.Errorf("quote %s: %w", symbol, err)
	}
	return it.toSnapshot(time.Now()), nil
}

func (c *Client) ExecutionStrength(ctx context.Context, symbol string) (float64, error) {
	var resp struct {
		Strength float64 `json:"strength"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/strength/"+url.PathEscape(symbol), nil, nil, &resp); err != nil {
		return 0, fmt.Errorf("execution strength %s: %w", symbol, err)
	}
	return resp.Strength, nil
}

func (c *Client) DailyCandles(ctx context.Context, symbol string, n int) ([]Candle, error) {
	var resp struct {
		Candles []struct {
			Date   string  `json:"date"` // YYYYMMDD
			Open   float64 `json:"open"`
			High   float64 `json:"high"`
			Low    float64 `json:"low"`
			Close  float64 `json:"close"`
			Volume int64   `json:"volume"`
		} `json:"candles"`
	}
	q := url.Values{"count": {fmt.Sprint(n)}}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/chart/daily/"+url.PathEscape(symbol), q, nil, &resp); err != nil {
		return nil, fmt.Errorf("daily candles %s: %w", symbol, err)
	}
	out := make([]Candle, 0, len(resp.Candles))
	for _, cd := range resp.Candles {
		d, err := time.Parse("20060102", cd.Date)
		if err != nil {
			continue
		}
		out = append(out, Candle{Date: d, Open: cd.Open, High: cd.High, Low: cd.Low, Close: cd.Close, Volume: cd.Volume})
	}
	return out, nil
}

func (c *Client) SubmitOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	body := map[string]any{
		"symbol":   req.Symbol,
		"side":     string(req.Side),
		"quantity": req.Quantity,
		"price":    req.Price,
	}
	var resp struct {
		OrderID     string  `json:"order_id"`
		FilledQty   int     `json:"filled_qty"`
		FilledPrice float64 `json:"filled_price"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/v1/orders", nil, body, &resp); err != nil {
		return OrderResult{}, fmt.Errorf("submit %s %s: %w", req.Side, req.Symbol, err)
	}
	return OrderResult{BrokerOrderID: resp.OrderID, FilledQty: resp.FilledQty, FilledPrice: resp.FilledPrice}, nil
}

func (c *Client) AccountBalance(ctx context.Context) (Balance, error) {
	var resp struct {
		Cash float64 `json:"cash"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/account/balance", nil, nil, &resp); err != nil {
		return Balance{}, fmt.Errorf("account balance: %w", err)
	}
	return Balance{Cash: resp.Cash, Timestamp: time.Now()}, nil
}

// doJSON performs one API call with rate limiting, retries and backoff.
// HTTP 429 and transport errors retry; other non-200 responses retry too
// since the broker intermittently returns 5xx during session open.
func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate wait: %w", err)
	}

	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(c.cfg.BackoffBaseMs*(1<<attempt)) * time.Millisecond
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		var reqBody io.Reader
		if body != nil {
			b, err := json.Marshal(body)
			if err != nil {
				return fmt.Errorf("encode body: %w", err)
			}
			reqBody = bytes.NewReader(b)
		}

		req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("appkey", c.appKey)
		req.Header.Set("appsecret", c.appSecret)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("request: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
			lastErr = fmt.Errorf("rate limited by broker")
			continue
		}
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			lastErr = fmt.Errorf("http %d: %s", resp.StatusCode, string(b))
			continue
		}

		err = json.NewDecoder(resp.Body).Decode(out)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("decode: %w", err)
			continue
		}
		c.recordSuccess()
		return nil
	}

	c.recordError(method, path, lastErr)
	return lastErr
}

func (c *Client) recordError(method, path string, err error) {
	c.mu.Lock()
	c.consecutiveErrors++
	n := c.consecutiveErrors
	c.mu.Unlock()
	observ.Error("broker_request_failed", err, map[string]any{
		"method": method, "path": path, "consecutive": n,
	})
}

func (c *Client) recordSuccess() {
	c.mu.Lock()
	c.consecutiveErrors = 0
	c.mu.Unlock()
}

// Healthy reports whether the last few requests succeeded.
func (c *Client) Healthy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.consecutiveErrors < 3
}
