// Package stream is the push-based alternative to polling: a websocket
// connection that logs in, subscribes to symbols and feeds ticks into the
// same handler path the scanner uses. Reconnects use exponential backoff up
// to a capped attempt count, then fail fatally to the caller.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/seojinpark/volumetrader/internal/config"
	"github.com/seojinpark/volumetrader/internal/market"
	"github.com/seojinpark/volumetrader/internal/metrics"
	"github.com/seojinpark/volumetrader/internal/observ"
)

// TickHandler receives every parsed tick from the stream.
type TickHandler func(snap market.Snapshot)

type frame struct {
	Type   string `json:"type"` // login | subscribe | unsubscribe | ping | tick
	AppKey string `json:"appkey,omitempty"`
	Symbol string `json:"symbol,omitempty"`
	Data   *tick  `json:"data,omitempty"`
}

type tick struct {
	Symbol     string  `json:"symbol"`
	Price      float64 `json:"price"`
	Volume     int64   `json:"volume"`
	PrevVolume int64   `json:"prev_volume"`
	ChangeRate float64 `json:"change_rate"`
	Strength   float64 `json:"strength"`
}

// Client owns one websocket connection and the subscription set. Subscribe
// and Unsubscribe may be called from any goroutine; the read loop runs in
// Run's goroutine.
type Client struct {
	cfg    config.Stream
	appKey string
	dialer *websocket.Dialer

	mu   sync.Mutex
	conn *websocket.Conn
	subs map[string]struct{}
}

func NewClient(cfg config.Stream, appKey string) *Client {
	return &Client{
		cfg:    cfg,
		appKey: appKey,
		dialer: websocket.DefaultDialer,
		subs:   make(map[string]struct{}),
	}
}

// Subscribe tracks the symbol and, when connected, sends the subscribe frame.
// Tracked symbols are re-subscribed automatically after a reconnect.
func (c *Client) Subscribe(symbol string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs[symbol] = struct{}{}
	if c.conn == nil {
		return nil
	}
	return c.conn.WriteJSON(frame{Type: "subscribe", Symbol: symbol})
}

// Unsubscribe stops tracking the symbol.
func (c *Client) Unsubscribe(symbol string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subs, symbol)
	if c.conn == nil {
		return nil
	}
	return c.conn.WriteJSON(frame{Type: "unsubscribe", Symbol: symbol})
}

// Run connects and pumps ticks into handler until ctx is cancelled. After
// MaxReconnects consecutive failed connection attempts it returns a fatal
// error so the caller can supervise a restart.
func (c *Client) Run(ctx context.Context, handler TickHandler) error {
	attempts := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		conn, err := c.connect(ctx)
		if err != nil {
			attempts++
			metrics.StreamReconnects.Inc()
			if attempts >= c.cfg.MaxReconnects {
				return fmt.Errorf("stream: giving up after %d connection attempts: %w", attempts, err)
			}
			backoff := c.backoff(attempts)
			observ.Error("stream_connect_failed", err, map[string]any{
				"attempt": attempts, "retry_in_ms": backoff.Milliseconds(),
			})
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			continue
		}
		attempts = 0

		err = c.pump(ctx, conn, handler)
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		observ.Error("stream_disconnected", err, nil)
	}
}

// connect dials, logs in and replays the subscription set.
func (c *Client) connect(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := c.dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.cfg.URL, err)
	}
	if err := conn.WriteJSON(frame{Type: "login", AppKey: c.appKey}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("login: %w", err)
	}

	// The replay and the conn publication stay under one lock: Subscribe
	// writes on c.conn under c.mu, and the websocket forbids concurrent
	// writers, so nothing may see the new conn until the replay is done.
	c.mu.Lock()
	for s := range c.subs {
		if err := conn.WriteJSON(frame{Type: "subscribe", Symbol: s}); err != nil {
			c.mu.Unlock()
			conn.Close()
			return nil, fmt.Errorf("resubscribe %s: %w", s, err)
		}
	}
	c.conn = conn
	n := len(c.subs)
	c.mu.Unlock()

	observ.Log("stream_connected", map[string]any{"subscriptions": n})
	return conn, nil
}

// pump reads frames until the connection breaks, with a parallel heartbeat.
func (c *Client) pump(ctx context.Context, conn *websocket.Conn, handler TickHandler) error {
	hbCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go c.heartbeat(hbCtx, conn)
	go func() {
		// ReadMessage only unblocks when the connection dies.
		<-hbCtx.Done()
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			// Malformed frames are dropped, not fatal.
			observ.Error("stream_bad_frame", err, nil)
			continue
		}
		if f.Type != "tick" || f.Data == nil {
			continue
		}
		handler(market.Snapshot{
			Symbol:        f.Data.Symbol,
			Price:         f.Data.Price,
			TodayVolume:   f.Data.Volume,
			PrevDayVolume: f.Data.PrevVolume,
			PriceChange:   f.Data.ChangeRate,
			ExecStrength:  f.Data.Strength,
			Timestamp:     time.Now(),
		})
	}
}

// heartbeat pings on the configured interval until the context ends.
func (c *Client) heartbeat(ctx context.Context, conn *websocket.Conn) {
	interval := time.Duration(c.cfg.HeartbeatSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deadline := time.Now().Add(5 * time.Second)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

// backoff doubles from the base per attempt, capped at the configured max.
func (c *Client) backoff(attempt int) time.Duration {
	d := time.Duration(c.cfg.ReconnectBaseMs*(1<<(attempt-1))) * time.Millisecond
	ceil := time.Duration(c.cfg.ReconnectMaxMs) * time.Millisecond
	if d > ceil {
		d = ceil
	}
	return d
}
