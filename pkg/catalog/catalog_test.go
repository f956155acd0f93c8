package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"venue-core/internal/errs"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().validate(); err != nil {
		t.Fatalf("default catalog invalid: %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	doc := `
instruments:
  - symbol: BTCUSD
    base_price: 45000
    volatility: 0.01
funds:
  - id: FUND_K8
    name: K8 Balanced
    initial_nav: 1.2345
    daily_vol: 0.01
    min_investment: 500
    redemption_fee: 0.01
strategies:
  - id: BTC_60S
    symbol: BTCUSD
    duration_seconds: 60
    payout_ratio: 1.8
    min_stake: 10
    max_stake: 10000
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	cat, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if len(cat.Instruments) != 1 || cat.Instruments[0].Symbol != "BTCUSD" {
		t.Fatalf("instruments = %+v", cat.Instruments)
	}
	if len(cat.Funds) != 1 || cat.Funds[0].RedemptionFee != 0.01 {
		t.Fatalf("funds = %+v", cat.Funds)
	}
	if len(cat.Strategies) != 1 || cat.Strategies[0].PayoutRatio != 1.8 {
		t.Fatalf("strategies = %+v", cat.Strategies)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	var initErr *errs.EngineInitializationError
	if !errors.As(err, &initErr) {
		t.Fatalf("error = %v, expected EngineInitializationError", err)
	}
}

func TestValidateRejections(t *testing.T) {
	base := func() *Catalog {
		return &Catalog{
			Instruments: []Instrument{{Symbol: "BTCUSD", BasePrice: 45000, Volatility: 0.01}},
			Funds:       []Fund{{ID: "FUND_K8", InitialNAV: 1.2, RedemptionFee: 0.01}},
			Strategies:  []BinaryStrategy{{ID: "BTC_60S", Symbol: "BTCUSD", DurationSeconds: 60, PayoutRatio: 1.8}},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Catalog)
	}{
		{"no instruments", func(c *Catalog) { c.Instruments = nil }},
		{"duplicate symbol", func(c *Catalog) { c.Instruments = append(c.Instruments, c.Instruments[0]) }},
		{"non-positive base price", func(c *Catalog) { c.Instruments[0].BasePrice = 0 }},
		{"volatility out of range", func(c *Catalog) { c.Instruments[0].Volatility = 1 }},
		{"non-positive NAV", func(c *Catalog) { c.Funds[0].InitialNAV = 0 }},
		{"redemption fee out of range", func(c *Catalog) { c.Funds[0].RedemptionFee = 1 }},
		{"strategy unknown symbol", func(c *Catalog) { c.Strategies[0].Symbol = "DOGEUSD" }},
		{"payout ratio not above 1", func(c *Catalog) { c.Strategies[0].PayoutRatio = 1 }},
		{"non-positive duration", func(c *Catalog) { c.Strategies[0].DurationSeconds = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cat := base()
			tt.mutate(cat)
			if err := cat.validate(); err == nil {
				t.Fatal("validate accepted a broken catalog")
			}
		})
	}
}

func TestLoadInvalidCatalogWrapsValidation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	doc := `
instruments:
  - symbol: BTCUSD
    base_price: 45000
    volatility: 0.01
strategies:
  - id: BTC_60S
    symbol: BTCUSD
    duration_seconds: 60
    payout_ratio: 0.9
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	_, err := Load(path)
	var initErr *errs.EngineInitializationError
	if !errors.As(err, &initErr) {
		t.Fatalf("error = %v, expected EngineInitializationError", err)
	}
}
