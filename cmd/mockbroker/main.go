// Command mockbroker serves the broker REST API and tick stream from the
// in-process simulator, so live mode can run end to end against localhost:
//
//	mockbroker -addr :8391
//	trader -mode live   # with broker.base_url: http://127.0.0.1:8391
package main

import (
	"encoding/json"
	"flag"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/seojinpark/volumetrader/internal/broker"
	"github.com/seojinpark/volumetrader/internal/market"
	"github.com/seojinpark/volumetrader/internal/observ"
)

type server struct {
	sim      *broker.Sim
	upgrader websocket.Upgrader
}

func main() {
	var (
		addr = flag.String("addr", ":8391", "listen address")
		cash = flag.Float64("cash", 10_000_000, "simulated account cash")
	)
	flag.Parse()

	s := &server{sim: broker.NewSim(*cash)}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/ranking/volume", s.ranking)
	mux.HandleFunc("GET /v1/quote/{symbol}", s.quote)
	mux.HandleFunc("GET /v1/strength/{symbol}", s.strength)
	mux.HandleFunc("GET /v1/chart/daily/{symbol}", s.chart)
	mux.HandleFunc("POST /v1/orders", s.orders)
	mux.HandleFunc("GET /v1/account/balance", s.balance)
	mux.HandleFunc("GET /ws", s.ws)

	observ.Log("mockbroker_listening", map[string]any{"addr": *addr})
	if err := http.ListenAndServe(*addr, mux); err != nil {
		observ.Error("mockbroker_failed", err, nil)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func item(s market.Snapshot) map[string]any {
	return map[string]any{
		"symbol":      s.Symbol,
		"name":        s.Name,
		"price":       s.Price,
		"volume":      s.TodayVolume,
		"prev_volume": s.PrevDayVolume,
		"change_rate": s.PriceChange,
		"trade_value": s.TradeValue,
		"strength":    s.ExecStrength,
	}
}

func (s *server) ranking(w http.ResponseWriter, r *http.Request) {
	count, _ := strconv.Atoi(r.URL.Query().Get("count"))
	snaps, err := s.sim.RankedSnapshot(r.Context(), count)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	items := make([]map[string]any, 0, len(snaps))
	for _, snap := range snaps {
		items = append(items, item(snap))
	}
	writeJSON(w, map[string]any{"items": items})
}

func (s *server) quote(w http.ResponseWriter, r *http.Request) {
	snap, err := s.sim.Quote(r.Context(), r.PathValue("symbol"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, item(snap))
}

func (s *server) strength(w http.ResponseWriter, r *http.Request) {
	v, err := s.sim.ExecutionStrength(r.Context(), r.PathValue("symbol"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, map[string]any{"symbol": r.PathValue("symbol"), "strength": v})
}

func (s *server) chart(w http.ResponseWriter, r *http.Request) {
	count, _ := strconv.Atoi(r.URL.Query().Get("count"))
	if count <= 0 {
		count = 5
	}
	candles, err := s.sim.DailyCandles(r.Context(), r.PathValue("symbol"), count)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	out := make([]map[string]any, 0, len(candles))
	for _, c := range candles {
		out = append(out, map[string]any{
			"date": c.Date.Format("20060102"), "open": c.Open, "high": c.High,
			"low": c.Low, "close": c.Close, "volume": c.Volume,
		})
	}
	writeJSON(w, map[string]any{"candles": out})
}

func (s *server) orders(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Symbol   string  `json:"symbol"`
		Side     string  `json:"side"`
		Quantity int     `json:"quantity"`
		Price    float64 `json:"price"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	res, err := s.sim.SubmitOrder(r.Context(), broker.OrderRequest{
		Symbol: req.Symbol, Side: broker.Side(req.Side), Quantity: req.Quantity, Price: req.Price,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	writeJSON(w, map[string]any{
		"order_id": res.BrokerOrderID, "filled_qty": res.FilledQty, "filled_price": res.FilledPrice,
	})
}

func (s *server) balance(w http.ResponseWriter, r *http.Request) {
	bal, err := s.sim.AccountBalance(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"cash": bal.Cash})
}

// ws streams one tick per second for every subscribed symbol.
func (s *server) ws(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	var mu sync.Mutex
	subs := make(map[string]struct{})

	go func() {
		for {
			var f struct {
				Type   string `json:"type"`
				Symbol string `json:"symbol"`
			}
			if err := conn.ReadJSON(&f); err != nil {
				return
			}
			mu.Lock()
			switch f.Type {
			case "subscribe":
				subs[f.Symbol] = struct{}{}
			case "unsubscribe":
				delete(subs, f.Symbol)
			}
			mu.Unlock()
		}
	}()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for range ticker.C {
		mu.Lock()
		symbols := make([]string, 0, len(subs))
		for sym := range subs {
			symbols = append(symbols, sym)
		}
		mu.Unlock()

		for _, sym := range symbols {
			snap, err := s.sim.Quote(r.Context(), sym)
			if err != nil {
				continue
			}
			msg := map[string]any{"type": "tick", "data": map[string]any{
				"symbol":      snap.Symbol,
				"price":       snap.Price,
				"volume":      snap.TodayVolume,
				"prev_volume": snap.PrevDayVolume,
				"change_rate": snap.PriceChange,
				"strength":    snap.ExecStrength,
			}}
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		}
	}
}
