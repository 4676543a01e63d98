package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	c, err := Load(writeConfig(t, "mode: sim\n"))
	require.NoError(t, err)

	assert.Equal(t, 5, c.Scanner.IntervalSeconds)
	assert.Equal(t, 5, c.RateLimit.Requests)
	assert.Equal(t, 1.0, c.RateLimit.WindowSeconds)
	assert.Equal(t, 0.7, c.Signal.MinConfidence)
	assert.Equal(t, 300, c.Signal.CooldownSeconds)
	assert.Equal(t, 10, c.Risk.MaxPositions)
	assert.Equal(t, 1000.0, c.Risk.MinStockPrice)
	assert.Equal(t, 50_000.0, c.Risk.MaxStockPrice)
	assert.Equal(t, "data/trader.db", c.Store.Path)
	assert.Equal(t, ":9109", c.MetricsAddr)

	assert.True(t, c.Conditions.VolumeSpike.Enabled)
	assert.Equal(t, 2.0, c.Conditions.VolumeSpike.Threshold)
	assert.False(t, c.Conditions.VolumePriceConfirm.Enabled)
}

func TestLoadOverridesSurvive(t *testing.T) {
	c, err := Load(writeConfig(t, `
mode: live
scanner:
  interval_seconds: 10
risk:
  max_positions: 3
conditions:
  volume_spike: { enabled: false, threshold: 2.5, consecutive: 5 }
`))
	require.NoError(t, err)

	assert.Equal(t, "live", c.Mode)
	assert.Equal(t, 10, c.Scanner.IntervalSeconds)
	assert.Equal(t, 3, c.Risk.MaxPositions)
	assert.False(t, c.Conditions.VolumeSpike.Enabled)
	assert.Equal(t, 2.5, c.Conditions.VolumeSpike.Threshold)
	// Untouched sections still pick up defaults.
	assert.Equal(t, 0.7, c.Signal.MinConfidence)
}

func TestLoadRejectsUnknownMode(t *testing.T) {
	_, err := Load(writeConfig(t, "mode: dryrun\n"))
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
