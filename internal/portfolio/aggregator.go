// Package portfolio composes a read-only cross-instrument view from the
// engines and the ledger. It owns no mutable state; any engine that is
// unavailable degrades the result instead of failing it.
package portfolio

import (
	"venue-core/internal/binary"
	"venue-core/internal/contract"
	"venue-core/internal/fund"
	"venue-core/internal/ledger"
)

// LedgerSource supplies account balances.
type LedgerSource interface {
	Account(userID string) ledger.Account
}

// ContractSource supplies derived positions with cached unrealized P&L.
type ContractSource interface {
	Positions(userID string) []contract.Position
}

// BinarySource supplies open binary orders.
type BinarySource interface {
	ActiveOrders(userID string) []binary.Order
}

// FundSource supplies holdings and NAVs.
type FundSource interface {
	Holdings(userID string) []fund.Holding
	NAV(fundID string) (float64, error)
}

// FundPosition is a fund holding priced at the current NAV.
type FundPosition struct {
	FundID string  `json:"fund_id"`
	Shares float64 `json:"shares"`
	NAV    float64 `json:"nav"`
	Value  float64 `json:"value"`
}

// Portfolio is the aggregated view for one user.
// Equity = cash + Σ unrealized P&L + Σ shares*NAV. Open binary stakes were
// debited at placement and are not counted as equity.
type Portfolio struct {
	UserID         string              `json:"user_id"`
	CashBalance    float64             `json:"cash_balance"`
	ReservedMargin float64             `json:"reserved_margin"`
	Positions      []contract.Position `json:"positions"`
	UnrealizedPnL  float64             `json:"unrealized_pnl"`
	FundPositions  []FundPosition      `json:"fund_positions"`
	BinaryOrders   []binary.Order      `json:"binary_orders"`
	Equity         float64             `json:"equity"`
	// Degraded is set when any source was unavailable; the remaining
	// fields then hold partial data.
	Degraded        bool     `json:"degraded"`
	MissingSources  []string `json:"missing_sources,omitempty"`
}

// Aggregator queries the engines on demand.
type Aggregator struct {
	ledger    LedgerSource
	contracts ContractSource
	binaries  BinarySource
	funds     FundSource
}

// NewAggregator builds an aggregator; any source may be nil, yielding
// degraded portfolios.
func NewAggregator(led LedgerSource, contracts ContractSource, binaries BinarySource, funds FundSource) *Aggregator {
	return &Aggregator{ledger: led, contracts: contracts, binaries: binaries, funds: funds}
}

// Portfolio assembles the user's cross-instrument view.
func (a *Aggregator) Portfolio(userID string) Portfolio {
	p := Portfolio{UserID: userID}

	if a.ledger != nil {
		acct := a.ledger.Account(userID)
		p.CashBalance = acct.CashBalance
		p.ReservedMargin = acct.ReservedMargin
	} else {
		p.markDegraded("ledger")
	}

	if a.contracts != nil {
		p.Positions = a.contracts.Positions(userID)
		for _, pos := range p.Positions {
			p.UnrealizedPnL += pos.UnrealizedPnL
		}
	} else {
		p.markDegraded("contracts")
	}

	if a.binaries != nil {
		p.BinaryOrders = a.binaries.ActiveOrders(userID)
	} else {
		p.markDegraded("binary")
	}

	var fundValue float64
	if a.funds != nil {
		for _, h := range a.funds.Holdings(userID) {
			nav, err := a.funds.NAV(h.FundID)
			if err != nil {
				p.markDegraded("funds")
				continue
			}
			fp := FundPosition{FundID: h.FundID, Shares: h.Shares, NAV: nav, Value: h.Shares * nav}
			p.FundPositions = append(p.FundPositions, fp)
			fundValue += fp.Value
		}
	} else {
		p.markDegraded("funds")
	}

	p.Equity = p.CashBalance + p.UnrealizedPnL + fundValue
	return p
}

func (p *Portfolio) markDegraded(source string) {
	p.Degraded = true
	for _, s := range p.MissingSources {
		if s == source {
			return
		}
	}
	p.MissingSources = append(p.MissingSources, source)
}
