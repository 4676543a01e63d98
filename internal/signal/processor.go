// Package signal turns scanner candidates into sized, deduplicated trading
// signals: a confidence score over the satisfied conditions, a per-symbol
// cooldown, and position sizing against available cash.
package signal

import (
	"math"
	"sync"
	"time"

	"github.com/seojinpark/volumetrader/internal/config"
	"github.com/seojinpark/volumetrader/internal/market"
	"github.com/seojinpark/volumetrader/internal/metrics"
	"github.com/seojinpark/volumetrader/internal/observ"
)

// Outcome says what happened to a candidate inside the processor.
type Outcome string

const (
	OutcomeEmitted       Outcome = "emitted"
	OutcomeLowConfidence Outcome = "low_confidence"
	OutcomeCooldown      Outcome = "cooldown"
	OutcomeSizedOut      Outcome = "sized_out"
)

// confidenceCaps bound each condition's observed/threshold ratio before it is
// scaled to [0,1]; a condition at its cap contributes a full point.
var confidenceCaps = map[string]float64{
	market.CondVolumeSpike:        3.0,
	market.CondExecutionStrength:  2.0,
	market.CondPriceBreakout:      2.0,
	market.CondPriceMomentum:      2.0,
	market.CondVolumePriceConfirm: 2.0,
}

// Signal is a buy decision ready for the order manager.
type Signal struct {
	Symbol     string                            `json:"symbol"`
	Name       string                            `json:"name"`
	Price      float64                           `json:"price"`
	Quantity   int                               `json:"quantity"`
	Confidence float64                           `json:"confidence"`
	Conditions map[string]market.ConditionResult `json:"conditions"`
	Timestamp  time.Time                         `json:"timestamp"`
}

// Processor is safe for concurrent use; the cooldown map is the only state.
type Processor struct {
	cfg    config.Signal
	sizing config.Sizing

	mu         sync.Mutex
	lastSignal map[string]time.Time

	now func() time.Time
}

func NewProcessor(cfg config.Signal, sizing config.Sizing) *Processor {
	return &Processor{
		cfg:        cfg,
		sizing:     sizing,
		lastSignal: make(map[string]time.Time),
		now:        time.Now,
	}
}

// Confidence is the mean normalized strength over satisfied conditions only.
// No satisfied conditions means zero confidence.
func Confidence(results map[string]market.ConditionResult) float64 {
	var sum float64
	var n int
	for name, r := range results {
		if !r.Satisfied {
			continue
		}
		capMul, ok := confidenceCaps[name]
		if !ok || r.Threshold <= 0 {
			continue
		}
		ratio := math.Min(r.Value/r.Threshold, capMul)
		sum += ratio / capMul
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// Quantity sizes a buy: min(cash*ratio, max_per_symbol)/price, clamped to the
// configured quantity range. Returns 0 when even the minimum does not fit.
func (p *Processor) Quantity(price, cash float64) int {
	if price <= 0 {
		return 0
	}
	notional := math.Min(cash*p.sizing.PositionRatio, p.sizing.MaxPerSymbol)
	qty := int(notional / price)
	if qty < p.sizing.MinQuantity {
		return 0
	}
	if qty > p.sizing.MaxQuantity {
		qty = p.sizing.MaxQuantity
	}
	return qty
}

// Process scores a candidate and either emits a signal or reports why not.
// Cooldown is checked before emission and stamped on emission only.
func (p *Processor) Process(cand market.Candidate, results map[string]market.ConditionResult, cash float64) (Signal, Outcome) {
	conf := Confidence(results)
	if conf < p.cfg.MinConfidence {
		metrics.Signals.WithLabelValues(string(OutcomeLowConfidence)).Inc()
		return Signal{}, OutcomeLowConfidence
	}

	now := p.now()
	cooldown := time.Duration(p.cfg.CooldownSeconds) * time.Second

	p.mu.Lock()
	last, seen := p.lastSignal[cand.Symbol]
	if seen && now.Sub(last) < cooldown {
		p.mu.Unlock()
		metrics.Signals.WithLabelValues(string(OutcomeCooldown)).Inc()
		observ.Log("signal_cooldown", map[string]any{
			"symbol": cand.Symbol, "since_last_s": now.Sub(last).Seconds(),
		})
		return Signal{}, OutcomeCooldown
	}
	p.mu.Unlock()

	qty := p.Quantity(cand.Price, cash)
	if qty == 0 {
		// Too small to trade; not an error.
		metrics.Signals.WithLabelValues(string(OutcomeSizedOut)).Inc()
		return Signal{}, OutcomeSizedOut
	}

	p.mu.Lock()
	p.lastSignal[cand.Symbol] = now
	p.mu.Unlock()

	metrics.Signals.WithLabelValues(string(OutcomeEmitted)).Inc()
	observ.Log("signal_emitted", map[string]any{
		"symbol": cand.Symbol, "confidence": conf, "qty": qty, "price": cand.Price,
	})
	return Signal{
		Symbol:     cand.Symbol,
		Name:       cand.Name,
		Price:      cand.Price,
		Quantity:   qty,
		Confidence: conf,
		Conditions: results,
		Timestamp:  now,
	}, OutcomeEmitted
}
