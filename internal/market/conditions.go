package market

import (
	"fmt"
	"sync"
	"time"

	"github.com/seojinpark/volumetrader/internal/config"
)

// Condition names form a closed set; configuration enables or disables each.
const (
	CondVolumeSpike        = "volume_spike"
	CondExecutionStrength  = "execution_strength"
	CondPriceBreakout      = "price_breakout"
	CondPriceMomentum      = "price_momentum"
	CondVolumePriceConfirm = "volume_price_confirm"
)

// maxHistory bounds the per-symbol snapshot window; oldest entries are
// evicted first.
const maxHistory = 100

type conditionFn func(e *Evaluator, hist []Snapshot, spec config.ConditionSpec) (satisfied bool, value, threshold float64, desc string)

type condition struct {
	name string
	spec func(c config.Conditions) config.ConditionSpec
	eval conditionFn
}

var conditions = []condition{
	{CondVolumeSpike, func(c config.Conditions) config.ConditionSpec { return c.VolumeSpike }, evalVolumeSpike},
	{CondExecutionStrength, func(c config.Conditions) config.ConditionSpec { return c.ExecutionStrength }, evalExecutionStrength},
	{CondPriceBreakout, func(c config.Conditions) config.ConditionSpec { return c.PriceBreakout }, evalPriceBreakout},
	{CondPriceMomentum, func(c config.Conditions) config.ConditionSpec { return c.PriceMomentum }, evalPriceMomentum},
	{CondVolumePriceConfirm, func(c config.Conditions) config.ConditionSpec { return c.VolumePriceConfirm }, evalVolumePriceConfirm},
}

// Evaluator keeps a bounded rolling snapshot history per symbol and scores
// the configured conditions against it. Safe for concurrent use.
type Evaluator struct {
	mu        sync.Mutex
	cfg       config.Conditions
	histories map[string][]Snapshot
}

func NewEvaluator(cfg config.Conditions) *Evaluator {
	return &Evaluator{cfg: cfg, histories: make(map[string][]Snapshot)}
}

// Evaluate appends the snapshot to the symbol's history and returns a result
// for every condition in the set. Disabled conditions report satisfied=false
// with zero values; AllSatisfied ignores them.
func (e *Evaluator) Evaluate(symbol string, snap Snapshot) map[string]ConditionResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	hist := append(e.histories[symbol], snap)
	if len(hist) > maxHistory {
		hist = hist[len(hist)-maxHistory:]
	}
	e.histories[symbol] = hist

	now := snap.Timestamp
	if now.IsZero() {
		now = time.Now()
	}

	out := make(map[string]ConditionResult, len(conditions))
	for _, c := range conditions {
		spec := c.spec(e.cfg)
		res := ConditionResult{Name: c.name, Timestamp: now}
		if !spec.Enabled {
			res.Description = "disabled"
			out[c.name] = res
			continue
		}
		res.Satisfied, res.Value, res.Threshold, res.Description = c.eval(e, hist, spec)
		out[c.name] = res
	}
	return out
}

// AllSatisfied reports whether every enabled condition in results is
// satisfied. Results for disabled conditions do not participate.
func (e *Evaluator) AllSatisfied(results map[string]ConditionResult) bool {
	enabled := 0
	for _, c := range conditions {
		if !c.spec(e.cfg).Enabled {
			continue
		}
		enabled++
		r, ok := results[c.name]
		if !ok || !r.Satisfied {
			return false
		}
	}
	return enabled > 0
}

// HistoryLen reports the number of buffered snapshots for a symbol.
func (e *Evaluator) HistoryLen(symbol string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.histories[symbol])
}

// Reset drops all per-symbol history, for session boundaries.
func (e *Evaluator) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.histories = make(map[string][]Snapshot)
}

// intervalVolumes converts cumulative session volumes into per-interval
// deltas; negative deltas (data resets) clamp to zero.
func intervalVolumes(hist []Snapshot) []int64 {
	if len(hist) < 2 {
		return nil
	}
	out := make([]int64, 0, len(hist)-1)
	for i := 1; i < len(hist); i++ {
		d := hist[i].TodayVolume - hist[i-1].TodayVolume
		if d < 0 {
			d = 0
		}
		out = append(out, d)
	}
	return out
}

// evalVolumeSpike compares the latest interval volume against the average of
// up to spec.Consecutive prior intervals.
func evalVolumeSpike(_ *Evaluator, hist []Snapshot, spec config.ConditionSpec) (bool, float64, float64, string) {
	iv := intervalVolumes(hist)
	if len(iv) < 2 {
		return false, 0, spec.Threshold, "insufficient history"
	}
	cur := iv[len(iv)-1]
	prior := iv[:len(iv)-1]
	if len(prior) > spec.Consecutive {
		prior = prior[len(prior)-spec.Consecutive:]
	}
	var sum int64
	for _, v := range prior {
		sum += v
	}
	avg := float64(sum) / float64(len(prior))
	if avg <= 0 {
		return false, 0, spec.Threshold, "no reference volume"
	}
	ratio := float64(cur) / avg
	return ratio >= spec.Threshold, ratio, spec.Threshold,
		fmt.Sprintf("interval volume %.2fx recent average", ratio)
}

// evalExecutionStrength requires the last spec.Consecutive snapshots to each
// meet the strength threshold.
func evalExecutionStrength(_ *Evaluator, hist []Snapshot, spec config.ConditionSpec) (bool, float64, float64, string) {
	k := spec.Consecutive
	if k < 1 {
		k = 1
	}
	latest := hist[len(hist)-1].ExecStrength
	if len(hist) < k {
		return false, latest, spec.Threshold, "insufficient history"
	}
	for _, s := range hist[len(hist)-k:] {
		if s.ExecStrength < spec.Threshold {
			return false, latest, spec.Threshold,
				fmt.Sprintf("strength below %.2f within last %d ticks", spec.Threshold, k)
		}
	}
	return true, latest, spec.Threshold,
		fmt.Sprintf("strength >= %.2f for %d ticks", spec.Threshold, k)
}

// evalPriceBreakout requires the current price to clear the max of the prior
// K-1 snapshots by the configured rise ratio.
func evalPriceBreakout(_ *Evaluator, hist []Snapshot, spec config.ConditionSpec) (bool, float64, float64, string) {
	k := spec.Consecutive
	if k < 2 {
		k = 2
	}
	if len(hist) < k {
		return false, 0, spec.Threshold, "insufficient history"
	}
	window := hist[len(hist)-k : len(hist)-1]
	var maxPrior float64
	for _, s := range window {
		if s.Price > maxPrior {
			maxPrior = s.Price
		}
	}
	if maxPrior <= 0 {
		return false, 0, spec.Threshold, "no reference price"
	}
	rise := hist[len(hist)-1].Price/maxPrior - 1
	return rise >= spec.Threshold, rise, spec.Threshold,
		fmt.Sprintf("price %.3f above prior %d-tick high", rise, k-1)
}

// evalPriceMomentum requires the tick-over-tick price change to clear the
// threshold for spec.Consecutive consecutive observations.
func evalPriceMomentum(_ *Evaluator, hist []Snapshot, spec config.ConditionSpec) (bool, float64, float64, string) {
	ok, latest := consecutiveChanges(hist, spec.Consecutive, spec.Threshold, func(s Snapshot) float64 { return s.Price })
	if !ok {
		return false, latest, spec.Threshold, "momentum not sustained"
	}
	return true, latest, spec.Threshold,
		fmt.Sprintf("price change >= %.4f for %d ticks", spec.Threshold, spec.Consecutive)
}

// evalVolumePriceConfirm is price momentum with a paired cumulative-volume
// growth requirement on every tick.
func evalVolumePriceConfirm(e *Evaluator, hist []Snapshot, spec config.ConditionSpec) (bool, float64, float64, string) {
	okPrice, latest := consecutiveChanges(hist, spec.Consecutive, spec.Threshold, func(s Snapshot) float64 { return s.Price })
	okVol, _ := consecutiveChanges(hist, spec.Consecutive, e.cfg.VolumeThreshold, func(s Snapshot) float64 { return float64(s.TodayVolume) })
	if !okPrice || !okVol {
		return false, latest, spec.Threshold, "price/volume not confirmed"
	}
	return true, latest, spec.Threshold,
		fmt.Sprintf("price and volume rising for %d ticks", spec.Consecutive)
}

// consecutiveChanges reports whether the relative change of field between
// successive snapshots cleared min for the last k pairs, and returns the most
// recent change.
func consecutiveChanges(hist []Snapshot, k int, min float64, field func(Snapshot) float64) (bool, float64) {
	if k < 1 {
		k = 1
	}
	if len(hist) < k+1 {
		return false, 0
	}
	var latest float64
	ok := true
	for i := len(hist) - k; i < len(hist); i++ {
		prev := field(hist[i-1])
		if prev <= 0 {
			return false, 0
		}
		change := field(hist[i])/prev - 1
		latest = change
		if change < min {
			ok = false
		}
	}
	return ok, latest
}
