package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBreakoutFiresOncePerSession(t *testing.T) {
	tr := NewBreakoutTracker()

	assert.False(t, tr.Check("005930", 900_000, 1_000_000), "under prev volume")
	assert.True(t, tr.Check("005930", 1_200_000, 1_000_000), "first crossing fires")
	assert.False(t, tr.Check("005930", 1_500_000, 1_000_000), "second crossing is silent")
	assert.True(t, tr.Triggered("005930"))

	tr.Reset()
	assert.False(t, tr.Triggered("005930"))
	assert.True(t, tr.Check("005930", 1_200_000, 1_000_000), "fires again after reset")
}

func TestBreakoutRequiresPrevSessionVolume(t *testing.T) {
	tr := NewBreakoutTracker()
	assert.False(t, tr.Check("000660", 1_000_000, 0), "unknown prev volume never fires")
	assert.False(t, tr.Check("000660", 1_000_000, 1_000_000), "equal volume is not a breakout")
}

func TestBreakoutIndependentPerSymbol(t *testing.T) {
	tr := NewBreakoutTracker()
	assert.True(t, tr.Check("005930", 2, 1))
	assert.True(t, tr.Check("000660", 2, 1), "other symbols unaffected")
}
