package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seojinpark/volumetrader/internal/config"
)

func snap(price float64, volume int64, strength float64) Snapshot {
	return Snapshot{
		Symbol:       "005930",
		Price:        price,
		TodayVolume:  volume,
		ExecStrength: strength,
		Timestamp:    time.Now(),
	}
}

func onlyCondition(set func(c *config.Conditions)) config.Conditions {
	var c config.Conditions
	c.VolumeThreshold = 0.1
	set(&c)
	return c
}

func TestPriceBreakoutInsufficientHistory(t *testing.T) {
	cfg := onlyCondition(func(c *config.Conditions) {
		c.PriceBreakout = config.ConditionSpec{Enabled: true, Threshold: 0.005, Consecutive: 10}
	})
	e := NewEvaluator(cfg)

	res := e.Evaluate("005930", snap(10_000, 100, 1.0))
	r := res[CondPriceBreakout]
	assert.False(t, r.Satisfied)
	assert.Equal(t, "insufficient history", r.Description)
}

func TestPriceBreakoutClearsPriorHigh(t *testing.T) {
	cfg := onlyCondition(func(c *config.Conditions) {
		c.PriceBreakout = config.ConditionSpec{Enabled: true, Threshold: 0.005, Consecutive: 4}
	})
	e := NewEvaluator(cfg)

	for _, p := range []float64{10_000, 10_100, 10_050} {
		e.Evaluate("005930", snap(p, 100, 1.0))
	}
	// 10_200 is 0.99% above the prior high of 10_100.
	res := e.Evaluate("005930", snap(10_200, 100, 1.0))
	r := res[CondPriceBreakout]
	assert.True(t, r.Satisfied)
	assert.InDelta(t, 0.0099, r.Value, 0.0005)
}

func TestExecutionStrengthRequiresConsecutiveTicks(t *testing.T) {
	cfg := onlyCondition(func(c *config.Conditions) {
		c.ExecutionStrength = config.ConditionSpec{Enabled: true, Threshold: 1.2, Consecutive: 3}
	})
	e := NewEvaluator(cfg)

	e.Evaluate("005930", snap(10_000, 100, 1.3))
	e.Evaluate("005930", snap(10_000, 200, 1.1)) // dip breaks the run
	e.Evaluate("005930", snap(10_000, 300, 1.4))
	res := e.Evaluate("005930", snap(10_000, 400, 1.5))
	assert.False(t, res[CondExecutionStrength].Satisfied)

	res = e.Evaluate("005930", snap(10_000, 500, 1.3))
	assert.True(t, res[CondExecutionStrength].Satisfied)
	assert.Equal(t, 1.3, res[CondExecutionStrength].Value)
}

func TestVolumeSpikeAgainstRecentAverage(t *testing.T) {
	cfg := onlyCondition(func(c *config.Conditions) {
		c.VolumeSpike = config.ConditionSpec{Enabled: true, Threshold: 2.0, Consecutive: 10}
	})
	e := NewEvaluator(cfg)

	// Cumulative volumes give intervals 100, 100, then 300: 3x the average.
	for _, v := range []int64{100, 200, 300} {
		e.Evaluate("005930", snap(10_000, v, 1.0))
	}
	res := e.Evaluate("005930", snap(10_000, 600, 1.0))
	r := res[CondVolumeSpike]
	assert.True(t, r.Satisfied)
	assert.InDelta(t, 3.0, r.Value, 1e-9)
}

func TestPriceMomentumSustainedChange(t *testing.T) {
	cfg := onlyCondition(func(c *config.Conditions) {
		c.PriceMomentum = config.ConditionSpec{Enabled: true, Threshold: 0.002, Consecutive: 2}
	})
	e := NewEvaluator(cfg)

	e.Evaluate("005930", snap(10_000, 100, 1.0))
	e.Evaluate("005930", snap(10_050, 200, 1.0))
	res := e.Evaluate("005930", snap(10_110, 300, 1.0))
	assert.True(t, res[CondPriceMomentum].Satisfied)

	res = e.Evaluate("005930", snap(10_112, 400, 1.0)) // +0.02%, below threshold
	assert.False(t, res[CondPriceMomentum].Satisfied)
}

func TestVolumePriceConfirmNeedsBothLegs(t *testing.T) {
	cfg := onlyCondition(func(c *config.Conditions) {
		c.VolumePriceConfirm = config.ConditionSpec{Enabled: true, Threshold: 0.002, Consecutive: 2}
	})
	e := NewEvaluator(cfg)

	// Price rising on every tick; volume growth stalls on the last one.
	e.Evaluate("005930", snap(10_000, 100, 1.0))
	e.Evaluate("005930", snap(10_050, 120, 1.0))
	res := e.Evaluate("005930", snap(10_110, 122, 1.0))
	assert.False(t, res[CondVolumePriceConfirm].Satisfied)

	e2 := NewEvaluator(cfg)
	e2.Evaluate("005930", snap(10_000, 100, 1.0))
	e2.Evaluate("005930", snap(10_050, 120, 1.0))
	res = e2.Evaluate("005930", snap(10_110, 145, 1.0))
	assert.True(t, res[CondVolumePriceConfirm].Satisfied)
}

func TestDisabledConditionsExcludedFromAggregate(t *testing.T) {
	cfg := onlyCondition(func(c *config.Conditions) {
		c.ExecutionStrength = config.ConditionSpec{Enabled: true, Threshold: 1.2, Consecutive: 1}
	})
	e := NewEvaluator(cfg)

	res := e.Evaluate("005930", snap(10_000, 100, 1.5))
	require.Contains(t, res, CondVolumeSpike)
	assert.False(t, res[CondVolumeSpike].Satisfied)
	assert.Equal(t, "disabled", res[CondVolumeSpike].Description)

	// The only enabled condition is satisfied, so the aggregate holds even
	// though every disabled condition reports false.
	assert.True(t, e.AllSatisfied(res))
}

func TestAllSatisfiedFalseWithNoEnabledConditions(t *testing.T) {
	e := NewEvaluator(config.Conditions{})
	res := e.Evaluate("005930", snap(10_000, 100, 1.5))
	assert.False(t, e.AllSatisfied(res))
}

func TestHistoryBounded(t *testing.T) {
	e := NewEvaluator(config.Conditions{})
	for i := 0; i < 150; i++ {
		e.Evaluate("005930", snap(10_000, int64(i), 1.0))
	}
	assert.Equal(t, maxHistory, e.HistoryLen("005930"))

	e.Reset()
	assert.Equal(t, 0, e.HistoryLen("005930"))
}
