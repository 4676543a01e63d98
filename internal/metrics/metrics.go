// Package metrics registers the Prometheus collectors the trading loop
// updates during operation, served at /metrics in text exposition format:
//
//   - trader_scan_cycles_total{result}        – scan loop iterations (ok|error|empty)
//   - trader_candidates_total{trend}          – candidates emitted by the scanner
//   - trader_breakouts_total                  – first-time volume breakouts detected
//   - trader_signals_total{outcome}           – signals (emitted|low_confidence|cooldown|sized_out|risk_blocked)
//   - trader_orders_total{side,status}        – orders submitted to the gateway
//   - trader_exits_total{reason}              – position exits split by reason
//   - trader_open_positions                   – currently open positions (gauge)
//   - trader_daily_realized_pnl               – realized P&L today (gauge)
//   - trader_api_wait_seconds                 – time spent blocked in the rate limiter
//   - trader_stream_reconnects_total          – websocket reconnect attempts
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	ScanCycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_scan_cycles_total",
			Help: "Scan loop iterations by result",
		},
		[]string{"result"},
	)

	Candidates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_candidates_total",
			Help: "Candidates emitted by the scanner, by trend label",
		},
		[]string{"trend"},
	)

	Breakouts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "trader_breakouts_total",
			Help: "First-time daily volume breakouts detected",
		},
	)

	Signals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_signals_total",
			Help: "Signal processing outcomes",
		},
		[]string{"outcome"},
	)

	Orders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_orders_total",
			Help: "Orders submitted to the gateway",
		},
		[]string{"side", "status"},
	)

	Exits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_exits_total",
			Help: "Position exits by reason",
		},
		[]string{"reason"},
	)

	OpenPositions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "trader_open_positions",
			Help: "Currently open positions",
		},
	)

	DailyRealizedPnL = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "trader_daily_realized_pnl",
			Help: "Realized P&L accumulated today",
		},
	)

	APIWaitSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "trader_api_wait_seconds",
			Help:    "Time spent blocked waiting for a rate-limit slot",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		},
	)

	StreamReconnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "trader_stream_reconnects_total",
			Help: "Websocket reconnect attempts",
		},
	)
)

func init() {
	prometheus.MustRegister(ScanCycles, Candidates, Breakouts, Signals)
	prometheus.MustRegister(Orders, Exits, OpenPositions, DailyRealizedPnL)
	prometheus.MustRegister(APIWaitSeconds, StreamReconnects)
}
