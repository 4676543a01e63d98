package signal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seojinpark/volumetrader/internal/config"
	"github.com/seojinpark/volumetrader/internal/market"
)

func testProcessor() (*Processor, *time.Time) {
	now := time.Unix(1_700_000_000, 0)
	p := NewProcessor(
		config.Signal{MinConfidence: 0.7, CooldownSeconds: 300},
		config.Sizing{PositionRatio: 0.1, MaxPerSymbol: 1_000_000, MinQuantity: 1, MaxQuantity: 1000},
	)
	p.now = func() time.Time { return now }
	return p, &now
}

func satisfied(name string, value, threshold float64) market.ConditionResult {
	return market.ConditionResult{Name: name, Satisfied: true, Value: value, Threshold: threshold}
}

func TestConfidenceMeanOfCappedRatios(t *testing.T) {
	results := map[string]market.ConditionResult{
		market.CondExecutionStrength: satisfied(market.CondExecutionStrength, 1.5, 1.2),
		market.CondPriceBreakout:     satisfied(market.CondPriceBreakout, 2.0, 1.5),
	}
	// mean(min(1.5/1.2,2)/2, min(2.0/1.5,2)/2)
	want := ((1.5/1.2)/2 + (2.0/1.5)/2) / 2
	assert.InDelta(t, want, Confidence(results), 1e-9)
}

func TestConfidenceIgnoresUnsatisfied(t *testing.T) {
	results := map[string]market.ConditionResult{
		market.CondVolumeSpike: satisfied(market.CondVolumeSpike, 6.0, 2.0), // capped at 3x
		market.CondPriceMomentum: {
			Name: market.CondPriceMomentum, Satisfied: false, Value: 0.0001, Threshold: 0.002,
		},
	}
	assert.InDelta(t, 1.0, Confidence(results), 1e-9)
}

func TestConfidenceZeroWithNoSatisfiedConditions(t *testing.T) {
	assert.Zero(t, Confidence(nil))
	assert.Zero(t, Confidence(map[string]market.ConditionResult{
		market.CondVolumeSpike: {Name: market.CondVolumeSpike},
	}))
}

func TestCooldownSuppressesSecondSignal(t *testing.T) {
	p, now := testProcessor()
	cand := market.Candidate{Symbol: "005930", Price: 10_000}
	results := map[string]market.ConditionResult{
		market.CondVolumeSpike: satisfied(market.CondVolumeSpike, 6.0, 2.0),
	}

	sig, outcome := p.Process(cand, results, 1_000_000)
	require.Equal(t, OutcomeEmitted, outcome)
	assert.Equal(t, 10, sig.Quantity) // min(1_000_000*0.1, 1_000_000)/10_000

	_, outcome = p.Process(cand, results, 1_000_000)
	assert.Equal(t, OutcomeCooldown, outcome)

	*now = now.Add(301 * time.Second)
	_, outcome = p.Process(cand, results, 1_000_000)
	assert.Equal(t, OutcomeEmitted, outcome)
}

func TestCooldownIsPerSymbol(t *testing.T) {
	p, _ := testProcessor()
	results := map[string]market.ConditionResult{
		market.CondVolumeSpike: satisfied(market.CondVolumeSpike, 6.0, 2.0),
	}
	_, outcome := p.Process(market.Candidate{Symbol: "005930", Price: 10_000}, results, 1_000_000)
	require.Equal(t, OutcomeEmitted, outcome)
	_, outcome = p.Process(market.Candidate{Symbol: "000660", Price: 10_000}, results, 1_000_000)
	assert.Equal(t, OutcomeEmitted, outcome)
}

func TestLowConfidenceRejected(t *testing.T) {
	p, _ := testProcessor()
	results := map[string]market.ConditionResult{
		market.CondExecutionStrength: satisfied(market.CondExecutionStrength, 1.21, 1.2),
	}
	_, outcome := p.Process(market.Candidate{Symbol: "005930", Price: 10_000}, results, 1_000_000)
	assert.Equal(t, OutcomeLowConfidence, outcome)
}

func TestQuantitySizing(t *testing.T) {
	p, _ := testProcessor()

	// min(1_000_000*0.1, 1_000_000) = 100_000 notional.
	assert.Equal(t, 10, p.Quantity(10_000, 1_000_000))

	// MaxPerSymbol caps the notional before dividing.
	assert.Equal(t, 100, p.Quantity(10_000, 100_000_000))

	// Below min quantity: silently nothing.
	assert.Equal(t, 0, p.Quantity(200_000, 1_000_000))
	assert.Equal(t, 0, p.Quantity(0, 1_000_000))
}

func TestSizedOutCandidateDoesNotStampCooldown(t *testing.T) {
	p, _ := testProcessor()
	results := map[string]market.ConditionResult{
		market.CondVolumeSpike: satisfied(market.CondVolumeSpike, 6.0, 2.0),
	}
	cand := market.Candidate{Symbol: "005930", Price: 10_000}

	_, outcome := p.Process(cand, results, 0) // no cash, sizes to zero
	require.Equal(t, OutcomeSizedOut, outcome)

	_, outcome = p.Process(cand, results, 1_000_000)
	assert.Equal(t, OutcomeEmitted, outcome)
}
