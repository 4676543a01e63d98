package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seojinpark/volumetrader/internal/config"
	"github.com/seojinpark/volumetrader/internal/market"
)

func testStreamCfg(url string) config.Stream {
	return config.Stream{
		Enabled:          true,
		URL:              url,
		HeartbeatSeconds: 30,
		ReconnectBaseMs:  1,
		ReconnectMaxMs:   5,
		MaxReconnects:    3,
	}
}

// wsServer upgrades one connection, records the frames it receives and sends
// the queued tick after seeing the login.
func wsServer(t *testing.T, send []frame) (*httptest.Server, chan frame) {
	t.Helper()
	received := make(chan frame, 1024)
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var f frame
			if json.Unmarshal(data, &f) != nil {
				continue
			}
			received <- f
			if f.Type == "login" {
				for _, out := range send {
					if err := conn.WriteJSON(out); err != nil {
						return
					}
				}
			}
		}
	}))
	return srv, received
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestRunLogsInSubscribesAndDeliversTicks(t *testing.T) {
	srv, received := wsServer(t, []frame{
		{Type: "tick", Data: &tick{Symbol: "005930", Price: 71_500, Volume: 1_000_000, PrevVolume: 900_000, Strength: 1.3}},
	})
	defer srv.Close()

	c := NewClient(testStreamCfg(wsURL(srv)), "key")
	require.NoError(t, c.Subscribe("005930"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ticks := make(chan market.Snapshot, 1)
	done := make(chan error, 1)
	go func() {
		done <- c.Run(ctx, func(s market.Snapshot) { ticks <- s })
	}()

	select {
	case snap := <-ticks:
		assert.Equal(t, "005930", snap.Symbol)
		assert.Equal(t, 71_500.0, snap.Price)
		assert.Equal(t, int64(1_000_000), snap.TodayVolume)
	case <-time.After(5 * time.Second):
		t.Fatal("no tick delivered")
	}

	// The server saw login first, then the replayed subscription.
	f := <-received
	assert.Equal(t, "login", f.Type)
	assert.Equal(t, "key", f.AppKey)
	f = <-received
	assert.Equal(t, "subscribe", f.Type)
	assert.Equal(t, "005930", f.Symbol)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunFatalAfterMaxReconnects(t *testing.T) {
	c := NewClient(testStreamCfg("ws://127.0.0.1:1"), "key")

	done := make(chan error, 1)
	go func() {
		done <- c.Run(context.Background(), func(market.Snapshot) {})
	}()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "giving up")
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not fail fatally")
	}
}

func TestConcurrentSubscribesDuringStream(t *testing.T) {
	ticks := make([]frame, 50)
	for i := range ticks {
		ticks[i] = frame{Type: "tick", Data: &tick{Symbol: "005930", Price: 71_000}}
	}
	srv, _ := wsServer(t, ticks)
	defer srv.Close()

	c := NewClient(testStreamCfg(wsURL(srv)), "key")
	require.NoError(t, c.Subscribe("005930"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first := make(chan struct{}, 1)
	done := make(chan error, 1)
	go func() {
		done <- c.Run(ctx, func(market.Snapshot) {
			select {
			case first <- struct{}{}:
			default:
			}
		})
	}()

	select {
	case <-first:
	case <-time.After(5 * time.Second):
		t.Fatal("stream never delivered a tick")
	}

	// Hammer the write path while the read loop is live; the subscribe
	// writes must serialize against the connection.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			sym := "00000" + string(rune('0'+n))
			for j := 0; j < 25; j++ {
				_ = c.Subscribe(sym)
				_ = c.Unsubscribe(sym)
			}
		}(i)
	}
	wg.Wait()

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestSubscribeWhileDisconnectedIsDeferred(t *testing.T) {
	c := NewClient(testStreamCfg("ws://example.invalid"), "key")
	assert.NoError(t, c.Subscribe("005930"))
	assert.NoError(t, c.Unsubscribe("005930"))
}
