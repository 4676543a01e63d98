package market

import "time"

// Snapshot is one observation of a symbol, as returned by the quote source.
// Snapshots are value types; nothing mutates them after creation.
type Snapshot struct {
	Symbol         string
	Name           string
	Price          float64
	TodayVolume    int64   // cumulative volume this session
	PrevDayVolume  int64   // total volume of the previous session
	PriceChange    float64 // ratio vs previous close, e.g. 0.025 = +2.5%
	TradeValue     float64 // one-period traded value (price * period volume)
	ExecStrength   float64 // buy-side vs sell-side pressure ratio
	Timestamp      time.Time
}

// VolumeRatio reports today's cumulative volume relative to the previous
// session total; 0 when the previous session volume is unknown.
func (s Snapshot) VolumeRatio() float64 {
	if s.PrevDayVolume <= 0 {
		return 0
	}
	return float64(s.TodayVolume) / float64(s.PrevDayVolume)
}

// ConditionResult is the outcome of evaluating a single named condition
// against a symbol's history. Created fresh on every evaluation.
type ConditionResult struct {
	Name        string    `json:"name"`
	Satisfied   bool      `json:"satisfied"`
	Value       float64   `json:"value"`
	Threshold   float64   `json:"threshold"`
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
}

// Candidate is a symbol the scanner proposes for trading, before confidence
// scoring. Consumed once by the signal processor or discarded.
type Candidate struct {
	Symbol       string    `json:"symbol"`
	Name         string    `json:"name"`
	Price        float64   `json:"price"`
	VolumeRatio  float64   `json:"volume_ratio"`
	PriceChange  float64   `json:"price_change"`
	TradeValue   float64   `json:"trade_value"`
	ExecStrength float64   `json:"execution_strength"`
	Breakout     bool      `json:"breakout"`
	ChartScore   int       `json:"chart_score"`
	Trend        string    `json:"trend"` // surge | rising | flat
	Score        float64   `json:"score"`
	Timestamp    time.Time `json:"timestamp"`
}
