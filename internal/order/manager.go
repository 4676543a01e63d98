// Package order executes buy signals through the gateway under hard risk
// limits and monitors the resulting positions to exit. One Manager owns all
// position state; everything else reads it through accessors.
package order

import (
	"context"
	"sync"
	"time"

	"github.com/seojinpark/volumetrader/internal/broker"
	"github.com/seojinpark/volumetrader/internal/config"
	"github.com/seojinpark/volumetrader/internal/metrics"
	"github.com/seojinpark/volumetrader/internal/observ"
	"github.com/seojinpark/volumetrader/internal/signal"
)

// Exit reasons, in priority order. Exactly one fires per monitoring pass.
const (
	ReasonTakeProfit    = "take-profit"
	ReasonStopLoss      = "stop-loss"
	ReasonPartialProfit = "partial-profit"
	ReasonTimeout       = "timeout"
)

// Recorder persists orders fire-and-forget; implementations must not block.
type Recorder interface {
	SaveOrder(o Order)
}

// Manager is safe for concurrent use by the scan and monitor loops.
type Manager struct {
	cfg     config.Risk
	gateway broker.OrderGateway
	rec     Recorder // may be nil

	mu            sync.Mutex
	positions     map[string]*Position
	pending       map[string]string // symbol -> order ID awaiting a terminal state
	dailyRealized float64

	now func() time.Time
}

func NewManager(cfg config.Risk, gateway broker.OrderGateway, rec Recorder) *Manager {
	return &Manager{
		cfg:       cfg,
		gateway:   gateway,
		rec:       rec,
		positions: make(map[string]*Position),
		pending:   make(map[string]string),
		now:       time.Now,
	}
}

// ExecuteSignal runs the risk gates and, if they pass, submits a buy.
// A blocked signal returns (nil, nil): risk limits are no-ops, not errors.
// A gateway failure marks the order failed and is not retried.
func (m *Manager) ExecuteSignal(ctx context.Context, sig signal.Signal) (*Order, error) {
	now := m.now()
	o := newOrder(sig.Symbol, string(broker.Buy), sig.Quantity, sig.Price, now)

	// The gates and the pending claim share one critical section, so two
	// concurrent signals for a symbol cannot both pass.
	if reason := m.claimBuy(sig, o.ID); reason != "" {
		metrics.Signals.WithLabelValues("risk_blocked").Inc()
		observ.Log("signal_risk_blocked", map[string]any{
			"symbol": sig.Symbol, "reason": reason,
		})
		return nil, nil
	}
	defer m.release(sig.Symbol)

	o.transition(StatusSubmitted, m.now())
	res, err := m.gateway.SubmitOrder(ctx, broker.OrderRequest{
		Symbol: sig.Symbol, Side: broker.Buy, Quantity: sig.Quantity, Price: sig.Price,
	})
	if err != nil {
		o.transition(StatusFailed, m.now())
		m.record(o)
		metrics.Orders.WithLabelValues(o.Side, string(o.Status)).Inc()
		observ.Error("order_rejected", err, map[string]any{"symbol": sig.Symbol, "order_id": o.ID})
		return o, nil
	}

	o.BrokerOrderID = res.BrokerOrderID
	o.FilledQty = res.FilledQty
	o.FilledPrice = res.FilledPrice
	o.transition(StatusFilled, m.now())

	m.mu.Lock()
	if p, held := m.positions[sig.Symbol]; held {
		p.extend(res.FilledQty, res.FilledPrice)
	} else {
		m.positions[sig.Symbol] = &Position{
			Symbol:   sig.Symbol,
			Name:     sig.Name,
			Quantity: res.FilledQty,
			AvgPrice: res.FilledPrice,
			OpenedAt: now,
		}
	}
	open := len(m.positions)
	m.mu.Unlock()

	m.record(o)
	metrics.Orders.WithLabelValues(o.Side, string(o.Status)).Inc()
	metrics.OpenPositions.Set(float64(open))
	observ.Log("order_filled", map[string]any{
		"symbol": sig.Symbol, "order_id": o.ID, "qty": res.FilledQty, "price": res.FilledPrice,
	})
	return o, nil
}

// claimBuy runs the risk gates and, when they all pass, registers the
// pending order under the same lock. Returns a non-empty reason when the
// buy must not happen.
func (m *Manager) claimBuy(sig signal.Signal, orderID string) string {
	if sig.Price < m.cfg.MinStockPrice || sig.Price > m.cfg.MaxStockPrice {
		return "price_band"
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.pending[sig.Symbol]; exists {
		return "pending_order"
	}
	if _, held := m.positions[sig.Symbol]; !held && len(m.positions) >= m.cfg.MaxPositions {
		return "max_positions"
	}
	if m.dailyRealized <= -m.cfg.DailyLossLimit {
		return "daily_loss_limit"
	}
	m.pending[sig.Symbol] = orderID
	return ""
}

func (m *Manager) release(symbol string) {
	m.mu.Lock()
	delete(m.pending, symbol)
	m.mu.Unlock()
}

// OnTick checks one position's exit conditions at the given price. The first
// matching reason in priority order fires; at most one exit per call.
func (m *Manager) OnTick(ctx context.Context, symbol string, price float64) {
	m.mu.Lock()
	p, held := m.positions[symbol]
	if !held {
		m.mu.Unlock()
		return
	}
	if _, busy := m.pending[symbol]; busy {
		m.mu.Unlock()
		return
	}

	ret := p.unrealizedReturn(price)
	var reason string
	qty := p.Quantity
	switch {
	case ret >= m.cfg.TakeProfitPct:
		reason = ReasonTakeProfit
	case ret <= -m.cfg.StopLossPct:
		reason = ReasonStopLoss
	case m.cfg.PartialProfit && !p.PartialDone && ret >= m.cfg.TakeProfitPct/2 && p.Quantity/2 > 0:
		reason = ReasonPartialProfit
		qty = p.Quantity / 2
	case p.age(m.now()) >= time.Duration(m.cfg.MaxHoldSeconds)*time.Second:
		reason = ReasonTimeout
	}
	if reason == "" {
		m.mu.Unlock()
		return
	}
	// Claim the exit before releasing the lock: a concurrent tick for the
	// same symbol must see the pending entry and back off, or two full
	// sells go out for one position.
	o := newOrder(symbol, string(broker.Sell), qty, price, m.now())
	o.Reason = reason
	m.pending[symbol] = o.ID
	m.mu.Unlock()

	m.exit(ctx, o, p, qty, price, reason)
}

// exit sells qty of the position and settles realized P&L. The caller has
// already registered o in the pending map.
func (m *Manager) exit(ctx context.Context, o *Order, p *Position, qty int, price float64, reason string) {
	defer m.release(p.Symbol)

	o.transition(StatusSubmitted, m.now())
	res, err := m.gateway.SubmitOrder(ctx, broker.OrderRequest{
		Symbol: p.Symbol, Side: broker.Sell, Quantity: qty, Price: price,
	})
	if err != nil {
		o.transition(StatusFailed, m.now())
		m.record(o)
		metrics.Orders.WithLabelValues(o.Side, string(o.Status)).Inc()
		observ.Error("exit_order_rejected", err, map[string]any{
			"symbol": p.Symbol, "reason": reason, "order_id": o.ID,
		})
		return
	}

	o.BrokerOrderID = res.BrokerOrderID
	o.FilledQty = res.FilledQty
	o.FilledPrice = res.FilledPrice
	o.transition(StatusFilled, m.now())

	pnl := m.settle(p, res.FilledQty, res.FilledPrice, reason)

	m.record(o)
	metrics.Orders.WithLabelValues(o.Side, string(o.Status)).Inc()
	metrics.Exits.WithLabelValues(reason).Inc()
	observ.Log("position_exit", map[string]any{
		"symbol": p.Symbol, "reason": reason, "qty": res.FilledQty,
		"price": res.FilledPrice, "realized_pnl": pnl,
	})
}

// settle reduces or closes the position and accumulates realized P&L net of
// commission (both legs) and sell tax.
func (m *Manager) settle(p *Position, qty int, price float64, reason string) float64 {
	entryNotional := p.AvgPrice * float64(qty)
	exitNotional := price * float64(qty)
	costs := m.cfg.CommissionRate*(entryNotional+exitNotional) + m.cfg.SellTaxRate*exitNotional
	pnl := (price-p.AvgPrice)*float64(qty) - costs

	m.mu.Lock()
	p.Quantity -= qty
	if reason == ReasonPartialProfit {
		p.PartialDone = true
	}
	if p.Quantity <= 0 {
		delete(m.positions, p.Symbol)
	}
	m.dailyRealized += pnl
	open := len(m.positions)
	daily := m.dailyRealized
	m.mu.Unlock()

	metrics.OpenPositions.Set(float64(open))
	metrics.DailyRealizedPnL.Set(daily)
	return pnl
}

// ResetDaily clears the realized P&L counter at the session boundary.
func (m *Manager) ResetDaily() {
	m.mu.Lock()
	m.dailyRealized = 0
	m.mu.Unlock()
	metrics.DailyRealizedPnL.Set(0)
}

// OpenSymbols lists symbols with open positions, for the monitor loop.
func (m *Manager) OpenSymbols() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.positions))
	for s := range m.positions {
		out = append(out, s)
	}
	return out
}

// PositionFor returns a copy of the symbol's position, if open.
func (m *Manager) PositionFor(symbol string) (Position, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.positions[symbol]
	if !ok {
		return Position{}, false
	}
	return *p, true
}

// DailyRealized reports today's accumulated realized P&L.
func (m *Manager) DailyRealized() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dailyRealized
}

func (m *Manager) record(o *Order) {
	if m.rec != nil {
		m.rec.SaveOrder(*o)
	}
}
