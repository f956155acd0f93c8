// Package catalog loads the static instrument, fund and binary-strategy
// tables the venue trades against.
package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"venue-core/internal/errs"
)

// Instrument describes a tradable symbol driven by the price feed.
type Instrument struct {
	Symbol     string  `yaml:"symbol"`
	BasePrice  float64 `yaml:"base_price"`
	Volatility float64 `yaml:"volatility"` // fractional per-tick stddev bound
}

// Fund describes an open-end pooled fund quoted by NAV.
type Fund struct {
	ID            string  `yaml:"id"`
	Name          string  `yaml:"name"`
	InitialNAV    float64 `yaml:"initial_nav"`
	DailyVol      float64 `yaml:"daily_vol"` // bound of the per-update NAV return
	MinInvestment float64 `yaml:"min_investment"`
	RedemptionFee float64 `yaml:"redemption_fee"` // fraction, e.g. 0.005
}

// BinaryStrategy describes a fixed-odds binary option product.
type BinaryStrategy struct {
	ID              string  `yaml:"id"`
	Symbol          string  `yaml:"symbol"`
	DurationSeconds int     `yaml:"duration_seconds"`
	PayoutRatio     float64 `yaml:"payout_ratio"`
	MinStake        float64 `yaml:"min_stake"`
	MaxStake        float64 `yaml:"max_stake"`
}

// Catalog bundles the static tables the engines are seeded from.
type Catalog struct {
	Instruments []Instrument     `yaml:"instruments"`
	Funds       []Fund           `yaml:"funds"`
	Strategies  []BinaryStrategy `yaml:"strategies"`
}

// Load reads and validates a catalog YAML file. Any failure is wrapped in an
// EngineInitializationError: the venue must not start with a partial catalog.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &errs.EngineInitializationError{Cause: fmt.Errorf("read catalog: %w", err)}
	}

	var cat Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, &errs.EngineInitializationError{Cause: fmt.Errorf("parse catalog: %w", err)}
	}

	if err := cat.validate(); err != nil {
		return nil, &errs.EngineInitializationError{Cause: err}
	}
	return &cat, nil
}

// Default returns the built-in catalog used when no file is configured.
func Default() *Catalog {
	return &Catalog{
		Instruments: []Instrument{
			{Symbol: "BTCUSD", BasePrice: 45000, Volatility: 0.01},
			{Symbol: "ETHUSD", BasePrice: 2500, Volatility: 0.015},
			{Symbol: "XAUUSD", BasePrice: 2300, Volatility: 0.004},
			{Symbol: "EURUSD", BasePrice: 1.08, Volatility: 0.002},
		},
		Funds: []Fund{
			{ID: "FUND_ALPHA", Name: "Alpha Growth", InitialNAV: 1.0, DailyVol: 0.02, MinInvestment: 100, RedemptionFee: 0.005},
			{ID: "FUND_K8", Name: "K8 Balanced", InitialNAV: 1.2345, DailyVol: 0.01, MinInvestment: 500, RedemptionFee: 0.01},
		},
		Strategies: []BinaryStrategy{
			{ID: "BTC_60S", Symbol: "BTCUSD", DurationSeconds: 60, PayoutRatio: 1.8, MinStake: 10, MaxStake: 10000},
			{ID: "BTC_5M", Symbol: "BTCUSD", DurationSeconds: 300, PayoutRatio: 1.85, MinStake: 10, MaxStake: 50000},
			{ID: "ETH_60S", Symbol: "ETHUSD", DurationSeconds: 60, PayoutRatio: 1.8, MinStake: 10, MaxStake: 10000},
		},
	}
}

func (c *Catalog) validate() error {
	if len(c.Instruments) == 0 {
		return fmt.Errorf("catalog has no instruments")
	}
	seen := make(map[string]bool, len(c.Instruments))
	for _, inst := range c.Instruments {
		if inst.Symbol == "" {
			return fmt.Errorf("instrument with empty symbol")
		}
		if seen[inst.Symbol] {
			return fmt.Errorf("duplicate instrument symbol %q", inst.Symbol)
		}
		seen[inst.Symbol] = true
		if inst.BasePrice <= 0 {
			return fmt.Errorf("instrument %s: base price must be positive, got %v", inst.Symbol, inst.BasePrice)
		}
		if inst.Volatility < 0 || inst.Volatility >= 1 {
			return fmt.Errorf("instrument %s: volatility out of range [0,1): %v", inst.Symbol, inst.Volatility)
		}
	}
	for _, f := range c.Funds {
		if f.ID == "" {
			return fmt.Errorf("fund with empty id")
		}
		if f.InitialNAV <= 0 {
			return fmt.Errorf("fund %s: initial NAV must be positive", f.ID)
		}
		if f.RedemptionFee < 0 || f.RedemptionFee >= 1 {
			return fmt.Errorf("fund %s: redemption fee out of range [0,1)", f.ID)
		}
	}
	for _, s := range c.Strategies {
		if s.ID == "" {
			return fmt.Errorf("strategy with empty id")
		}
		if !seen[s.Symbol] {
			return fmt.Errorf("strategy %s references unknown symbol %q", s.ID, s.Symbol)
		}
		if s.DurationSeconds <= 0 {
			return fmt.Errorf("strategy %s: duration must be positive", s.ID)
		}
		if s.PayoutRatio <= 1 {
			return fmt.Errorf("strategy %s: payout ratio must exceed 1, got %v", s.ID, s.PayoutRatio)
		}
	}
	return nil
}
