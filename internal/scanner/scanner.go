// Package scanner drives the polling decision loop: fetch the volume-ranked
// board, gate on first-time breakouts, apply the numeric filters, and emit
// scored candidates. Each cycle is fault-isolated; a failed cycle logs and
// waits for the next interval.
package scanner

import (
	"context"
	"sync"
	"time"

	"github.com/seojinpark/volumetrader/internal/broker"
	"github.com/seojinpark/volumetrader/internal/config"
	"github.com/seojinpark/volumetrader/internal/market"
	"github.com/seojinpark/volumetrader/internal/metrics"
	"github.com/seojinpark/volumetrader/internal/observ"
	"github.com/seojinpark/volumetrader/internal/ratelimit"
)

// rankLimit bounds how much of the ranked board one cycle inspects.
const rankLimit = 30

// chartLookback is how many daily bars the chart score uses.
const chartLookback = 5

// Recorder persists scan output fire-and-forget; implementations must not
// block the loop.
type Recorder interface {
	SaveCandidate(c market.Candidate)
	SaveBreakout(symbol string, snap market.Snapshot)
}

// Handler receives each emitted candidate with its condition results.
type Handler func(c market.Candidate, results map[string]market.ConditionResult)

type Scanner struct {
	cfg       config.Scanner
	limiter   *ratelimit.Limiter
	source    broker.QuoteSource
	breakout  *market.BreakoutTracker
	evaluator *market.Evaluator
	rec       Recorder // may be nil

	mu        sync.Mutex
	processed map[string]struct{} // symbols already emitted this session
}

func New(cfg config.Scanner, limiter *ratelimit.Limiter, source broker.QuoteSource, tracker *market.BreakoutTracker, eval *market.Evaluator, rec Recorder) *Scanner {
	return &Scanner{
		cfg:       cfg,
		limiter:   limiter,
		source:    source,
		breakout:  tracker,
		evaluator: eval,
		rec:       rec,
		processed: make(map[string]struct{}),
	}
}

// Run executes scan cycles every interval until ctx is cancelled.
func (s *Scanner) Run(ctx context.Context, handler Handler) {
	interval := time.Duration(s.cfg.IntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		s.Scan(ctx, handler)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Scan runs one cycle: ranked board, breakout gate, filters, candidate
// emission. Errors end the cycle, never the caller.
func (s *Scanner) Scan(ctx context.Context, handler Handler) {
	s.limiter.Acquire()
	snaps, err := s.source.RankedSnapshot(ctx, rankLimit)
	if err != nil {
		metrics.ScanCycles.WithLabelValues("error").Inc()
		observ.Error("scan_cycle_failed", err, nil)
		return
	}

	emitted := 0
	for _, snap := range snaps {
		if ctx.Err() != nil {
			return
		}
		// Histories grow on every tick, emitted or not, so the consecutive
		// conditions see the full picture.
		results := s.evaluator.Evaluate(snap.Symbol, snap)
		if cand, ok := s.inspect(ctx, snap); ok {
			emitted++
			if handler != nil {
				handler(cand, results)
			}
		}
	}

	if emitted == 0 {
		metrics.ScanCycles.WithLabelValues("empty").Inc()
	} else {
		metrics.ScanCycles.WithLabelValues("ok").Inc()
	}
}

// inspect applies the per-symbol pipeline and builds the candidate.
func (s *Scanner) inspect(ctx context.Context, snap market.Snapshot) (market.Candidate, bool) {
	s.mu.Lock()
	_, done := s.processed[snap.Symbol]
	s.mu.Unlock()
	if done {
		return market.Candidate{}, false
	}

	// Only the breakout moment passes; every tick after it is silence.
	if !s.breakout.Check(snap.Symbol, snap.TodayVolume, snap.PrevDayVolume) {
		return market.Candidate{}, false
	}
	metrics.Breakouts.Inc()
	if s.rec != nil {
		s.rec.SaveBreakout(snap.Symbol, snap)
	}

	ratio := snap.VolumeRatio()
	if s.cfg.MaxVolumeRatio > 0 && ratio > s.cfg.MaxVolumeRatio {
		// The move has already run too far to chase.
		return market.Candidate{}, false
	}
	if snap.PriceChange < s.cfg.MinPriceChange || snap.TradeValue < s.cfg.MinTradeValue {
		return market.Candidate{}, false
	}

	s.limiter.Acquire()
	strength, err := s.source.ExecutionStrength(ctx, snap.Symbol)
	if err != nil {
		observ.Error("strength_fetch_failed", err, map[string]any{"symbol": snap.Symbol})
		return market.Candidate{}, false
	}
	if strength < s.cfg.MinExecStrength {
		return market.Candidate{}, false
	}

	s.limiter.Acquire()
	candles, err := s.source.DailyCandles(ctx, snap.Symbol, chartLookback)
	if err != nil {
		// Chart quality is advisory; score zero on failure.
		observ.Error("chart_fetch_failed", err, map[string]any{"symbol": snap.Symbol})
		candles = nil
	}

	cand := market.Candidate{
		Symbol:       snap.Symbol,
		Name:         snap.Name,
		Price:        snap.Price,
		VolumeRatio:  ratio,
		PriceChange:  snap.PriceChange,
		TradeValue:   snap.TradeValue,
		ExecStrength: strength,
		Breakout:     true,
		ChartScore:   ChartScore(candles),
		Trend:        s.trendLabel(snap.PriceChange),
		Timestamp:    snap.Timestamp,
	}
	cand.Score = float64(cand.ChartScore) + strength

	s.mu.Lock()
	s.processed[snap.Symbol] = struct{}{}
	s.mu.Unlock()
	metrics.Candidates.WithLabelValues(cand.Trend).Inc()
	if s.rec != nil {
		s.rec.SaveCandidate(cand)
	}
	observ.Log("candidate_emitted", map[string]any{
		"symbol": cand.Symbol, "trend": cand.Trend, "volume_ratio": ratio,
		"price_change": snap.PriceChange, "strength": strength, "chart_score": cand.ChartScore,
	})
	return cand, true
}

// trendLabel buckets the price change into surge, rising or flat.
func (s *Scanner) trendLabel(change float64) string {
	switch {
	case change >= s.cfg.SurgeChange:
		return "surge"
	case change >= s.cfg.RisingChange:
		return "rising"
	default:
		return "flat"
	}
}

// ChartScore rates the daily chart 0-4: up candle, close above the period
// average, close near the period high, and volume above the period average.
// Missing or short history scores zero.
func ChartScore(candles []broker.Candle) int {
	if len(candles) < 2 {
		return 0
	}
	last := candles[len(candles)-1]

	score := 0
	if last.Close > last.Open {
		score++
	}

	var sumClose float64
	var sumVol int64
	var high float64
	for _, c := range candles {
		sumClose += c.Close
		sumVol += c.Volume
		if c.High > high {
			high = c.High
		}
	}
	if last.Close > sumClose/float64(len(candles)) {
		score++
	}
	if high > 0 && last.Close >= high*0.95 {
		score++
	}
	if last.Volume > sumVol/int64(len(candles)) {
		score++
	}
	return score
}

// ResetSession clears the per-session state at the day boundary: the
// breakout set, the processed set and the condition histories.
func (s *Scanner) ResetSession() {
	s.breakout.Reset()
	s.evaluator.Reset()
	s.mu.Lock()
	s.processed = make(map[string]struct{})
	s.mu.Unlock()
	observ.Log("session_reset", nil)
}
