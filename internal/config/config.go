package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Scanner struct {
	IntervalSeconds int     `yaml:"interval_seconds"`
	MinPriceChange  float64 `yaml:"min_price_change"`
	MinTradeValue   float64 `yaml:"min_trade_value"`
	MinExecStrength float64 `yaml:"min_execution_strength"`
	MaxVolumeRatio  float64 `yaml:"max_volume_ratio"` // skip exhausted moves; 0 disables
	SurgeChange     float64 `yaml:"surge_change"`     // trend label boundary
	RisingChange    float64 `yaml:"rising_change"`
}

type RateLimit struct {
	Requests      int     `yaml:"requests"`
	WindowSeconds float64 `yaml:"window_seconds"`
}

// ConditionSpec configures one evaluator condition. Consecutive is the number
// of most-recent snapshots that must each clear the threshold; conditions that
// only look at the latest snapshot ignore it.
type ConditionSpec struct {
	Enabled     bool    `yaml:"enabled"`
	Threshold   float64 `yaml:"threshold"`
	Consecutive int     `yaml:"consecutive"`
}

type Conditions struct {
	VolumeSpike        ConditionSpec `yaml:"volume_spike"`
	ExecutionStrength  ConditionSpec `yaml:"execution_strength"`
	PriceBreakout      ConditionSpec `yaml:"price_breakout"`
	PriceMomentum      ConditionSpec `yaml:"price_momentum"`
	VolumePriceConfirm ConditionSpec `yaml:"volume_price_confirm"`
	// VolumeThreshold is the paired volume-change ratio for volume_price_confirm.
	VolumeThreshold float64 `yaml:"volume_threshold"`
}

type Signal struct {
	MinConfidence   float64 `yaml:"min_confidence"`
	CooldownSeconds int     `yaml:"cooldown_seconds"`
}

type Sizing struct {
	PositionRatio float64 `yaml:"position_ratio"` // fraction of available cash per entry
	MaxPerSymbol  float64 `yaml:"max_per_symbol"` // cap on notional per symbol
	MinQuantity   int     `yaml:"min_quantity"`
	MaxQuantity   int     `yaml:"max_quantity"`
}

type Risk struct {
	MaxPositions   int     `yaml:"max_positions"`
	DailyLossLimit float64 `yaml:"daily_loss_limit"` // realized, account currency
	StopLossPct    float64 `yaml:"stop_loss_pct"`
	TakeProfitPct  float64 `yaml:"take_profit_pct"`
	PartialProfit  bool    `yaml:"partial_profit"`
	MaxHoldSeconds int     `yaml:"max_hold_seconds"`
	MinStockPrice  float64 `yaml:"min_stock_price"`
	MaxStockPrice  float64 `yaml:"max_stock_price"`
	CommissionRate float64 `yaml:"commission_rate"`
	SellTaxRate    float64 `yaml:"sell_tax_rate"`
}

type Broker struct {
	BaseURL        string `yaml:"base_url"`
	APIKeyEnv      string `yaml:"api_key_env"`
	APISecretEnv   string `yaml:"api_secret_env"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxRetries     int    `yaml:"max_retries"`
	BackoffBaseMs  int    `yaml:"backoff_base_ms"`
}

type Stream struct {
	Enabled          bool   `yaml:"enabled"`
	URL              string `yaml:"url"`
	HeartbeatSeconds int    `yaml:"heartbeat_seconds"`
	ReconnectBaseMs  int    `yaml:"reconnect_base_ms"`
	ReconnectMaxMs   int    `yaml:"reconnect_max_ms"`
	MaxReconnects    int    `yaml:"max_reconnects"`
}

type Store struct {
	Path string `yaml:"path"`
}

type Root struct {
	Mode        string     `yaml:"mode"` // sim | live
	Scanner     Scanner    `yaml:"scanner"`
	RateLimit   RateLimit  `yaml:"rate_limit"`
	Conditions  Conditions `yaml:"conditions"`
	Signal      Signal     `yaml:"signal"`
	Sizing      Sizing     `yaml:"sizing"`
	Risk        Risk       `yaml:"risk"`
	Broker      Broker     `yaml:"broker"`
	Stream      Stream     `yaml:"stream"`
	Store       Store      `yaml:"store"`
	MetricsAddr string     `yaml:"metrics_addr"`
}

func Load(path string) (Root, error) {
	var c Root
	b, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return c, err
	}

	if c.Mode == "" {
		c.Mode = "sim"
	}
	if c.Mode != "sim" && c.Mode != "live" {
		return c, fmt.Errorf("config: unknown mode %q", c.Mode)
	}

	if c.Scanner.IntervalSeconds == 0 {
		c.Scanner.IntervalSeconds = 5
	}
	if c.Scanner.MinPriceChange == 0 {
		c.Scanner.MinPriceChange = 0.02
	}
	if c.Scanner.MinTradeValue == 0 {
		c.Scanner.MinTradeValue = 100_000_000
	}
	if c.Scanner.MinExecStrength == 0 {
		c.Scanner.MinExecStrength = 1.2
	}
	if c.Scanner.SurgeChange == 0 {
		c.Scanner.SurgeChange = 0.05
	}
	if c.Scanner.RisingChange == 0 {
		c.Scanner.RisingChange = 0.02
	}

	if c.RateLimit.Requests == 0 {
		c.RateLimit.Requests = 5
	}
	if c.RateLimit.WindowSeconds == 0 {
		c.RateLimit.WindowSeconds = 1.0
	}

	applyConditionDefaults(&c.Conditions)

	if c.Signal.MinConfidence == 0 {
		c.Signal.MinConfidence = 0.7
	}
	if c.Signal.CooldownSeconds == 0 {
		c.Signal.CooldownSeconds = 300
	}

	if c.Sizing.PositionRatio == 0 {
		c.Sizing.PositionRatio = 0.02
	}
	if c.Sizing.MaxPerSymbol == 0 {
		c.Sizing.MaxPerSymbol = 1_000_000
	}
	if c.Sizing.MinQuantity == 0 {
		c.Sizing.MinQuantity = 1
	}
	if c.Sizing.MaxQuantity == 0 {
		c.Sizing.MaxQuantity = 1000
	}

	if c.Risk.MaxPositions == 0 {
		c.Risk.MaxPositions = 10
	}
	if c.Risk.DailyLossLimit == 0 {
		c.Risk.DailyLossLimit = 300_000
	}
	if c.Risk.StopLossPct == 0 {
		c.Risk.StopLossPct = 0.02
	}
	if c.Risk.TakeProfitPct == 0 {
		c.Risk.TakeProfitPct = 0.04
	}
	if c.Risk.MaxHoldSeconds == 0 {
		c.Risk.MaxHoldSeconds = 3600
	}
	if c.Risk.MinStockPrice == 0 {
		c.Risk.MinStockPrice = 1000
	}
	if c.Risk.MaxStockPrice == 0 {
		c.Risk.MaxStockPrice = 50_000
	}

	if c.Broker.BaseURL == "" {
		c.Broker.BaseURL = "https://mockapi.kiwoom.com"
	}
	if c.Broker.APIKeyEnv == "" {
		c.Broker.APIKeyEnv = "BROKER_APP_KEY"
	}
	if c.Broker.APISecretEnv == "" {
		c.Broker.APISecretEnv = "BROKER_APP_SECRET"
	}
	if c.Broker.TimeoutSeconds == 0 {
		c.Broker.TimeoutSeconds = 10
	}
	if c.Broker.MaxRetries == 0 {
		c.Broker.MaxRetries = 3
	}
	if c.Broker.BackoffBaseMs == 0 {
		c.Broker.BackoffBaseMs = 200
	}

	if c.Stream.HeartbeatSeconds == 0 {
		c.Stream.HeartbeatSeconds = 30
	}
	if c.Stream.ReconnectBaseMs == 0 {
		c.Stream.ReconnectBaseMs = 1000
	}
	if c.Stream.ReconnectMaxMs == 0 {
		c.Stream.ReconnectMaxMs = 30_000
	}
	if c.Stream.MaxReconnects == 0 {
		c.Stream.MaxReconnects = 3
	}

	if c.Store.Path == "" {
		c.Store.Path = "data/trader.db"
	}
	if c.MetricsAddr == "" {
		c.MetricsAddr = ":9109"
	}

	return c, nil
}

func applyConditionDefaults(c *Conditions) {
	if c.VolumeSpike == (ConditionSpec{}) {
		c.VolumeSpike = ConditionSpec{Enabled: true, Threshold: 2.0, Consecutive: 10}
	}
	if c.ExecutionStrength == (ConditionSpec{}) {
		c.ExecutionStrength = ConditionSpec{Enabled: true, Threshold: 1.2, Consecutive: 3}
	}
	if c.PriceBreakout == (ConditionSpec{}) {
		c.PriceBreakout = ConditionSpec{Enabled: true, Threshold: 0.005, Consecutive: 10}
	}
	if c.PriceMomentum == (ConditionSpec{}) {
		c.PriceMomentum = ConditionSpec{Enabled: true, Threshold: 0.002, Consecutive: 3}
	}
	if c.VolumePriceConfirm == (ConditionSpec{}) {
		c.VolumePriceConfirm = ConditionSpec{Enabled: false, Threshold: 0.002, Consecutive: 3}
	}
	if c.VolumeThreshold == 0 {
		c.VolumeThreshold = 0.1
	}
}
