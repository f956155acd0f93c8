package gateway

import (
	"context"
	"testing"

	"venue-core/internal/binary"
	"venue-core/internal/contract"
	"venue-core/internal/engine"
	"venue-core/internal/events"
	"venue-core/internal/fund"
	"venue-core/internal/ledger"
	"venue-core/internal/market"
	"venue-core/internal/monitor"
	"venue-core/internal/portfolio"
	"venue-core/pkg/catalog"
)

func newTestGateway() *Gateway {
	cat := &catalog.Catalog{
		Instruments: []catalog.Instrument{{Symbol: "BTCUSD", BasePrice: 45000, Volatility: 0.01}},
		Funds:       []catalog.Fund{{ID: "FUND_K8", Name: "K8", InitialNAV: 1.2345, DailyVol: 0.02, MinInvestment: 100, RedemptionFee: 0.005}},
		Strategies:  []catalog.BinaryStrategy{{ID: "BTC_60S", Symbol: "BTCUSD", DurationSeconds: 60, PayoutRatio: 1.8, MinStake: 10, MaxStake: 1000}},
	}

	bus := events.NewBus()
	feed := market.NewFeed(cat.Instruments, 100, bus)
	led := ledger.NewLedger(10000)
	contracts := contract.NewEngine(contract.DefaultConfig(), led, feed, bus)
	binaries := binary.NewEngine(cat.Strategies, led, feed, bus)
	funds := fund.NewEngine(cat.Funds, led, bus)
	agg := portfolio.NewAggregator(led, contracts, binaries, funds)

	svc := engine.NewImpl(engine.Config{
		Feed:       feed,
		Ledger:     led,
		Contracts:  contracts,
		Binaries:   binaries,
		Funds:      funds,
		Aggregator: agg,
		Metrics:    monitor.NewSystemMetrics(),
		Strategies: cat.Strategies,
	})

	return New(svc, bus, nil)
}

func TestPlaceContractTrade(t *testing.T) {
	gw := newTestGateway()

	frame := gw.HandleRequest(context.Background(), "u1", Request{
		Type: "place_trade", ID: "r1",
		Family: "contract", Symbol: "BTCUSD", Direction: "long", Quantity: 1, Leverage: 10,
	})

	if frame.Type != "result" || frame.ID != "r1" {
		t.Fatalf("frame = %+v, expected result for r1", frame)
	}
	o, ok := frame.Data.(contract.Order)
	if !ok {
		t.Fatalf("frame data type = %T, expected contract.Order", frame.Data)
	}
	if o.Margin != 450 {
		t.Fatalf("margin = %v, expected 450", o.Margin)
	}
}

func TestPlaceBinaryTrade(t *testing.T) {
	gw := newTestGateway()

	frame := gw.HandleRequest(context.Background(), "u1", Request{
		Type: "place_trade", ID: "r2",
		Family: "binary", StrategyID: "BTC_60S", Direction: "up", Stake: 100,
	})

	if frame.Type != "result" {
		t.Fatalf("frame = %+v, expected result", frame)
	}
	if _, ok := frame.Data.(binary.Order); !ok {
		t.Fatalf("frame data type = %T, expected binary.Order", frame.Data)
	}
}

func TestPlaceTradeUnknownFamily(t *testing.T) {
	gw := newTestGateway()

	frame := gw.HandleRequest(context.Background(), "u1", Request{
		Type: "place_trade", ID: "r3", Family: "lottery",
	})
	if frame.Type != "error" || frame.Code != "validation" {
		t.Fatalf("frame = %+v, expected validation error", frame)
	}
}

func TestCloseTradeRoundTrip(t *testing.T) {
	gw := newTestGateway()
	ctx := context.Background()

	placed := gw.HandleRequest(ctx, "u1", Request{
		Type: "place_trade", ID: "r1",
		Family: "contract", Symbol: "BTCUSD", Direction: "long", Quantity: 1, Leverage: 10,
	})
	o := placed.Data.(contract.Order)

	closed := gw.HandleRequest(ctx, "u1", Request{Type: "close_trade", ID: "r2", OrderID: o.ID})
	if closed.Type != "result" {
		t.Fatalf("frame = %+v, expected result", closed)
	}

	// Closing again conflicts with the order's settled state.
	again := gw.HandleRequest(ctx, "u1", Request{Type: "close_trade", ID: "r3", OrderID: o.ID})
	if again.Type != "error" || again.Code != "invalid_state" {
		t.Fatalf("frame = %+v, expected invalid_state error", again)
	}
}

func TestErrorCodes(t *testing.T) {
	gw := newTestGateway()
	ctx := context.Background()

	tests := []struct {
		name string
		req  Request
		code string
	}{
		{
			name: "unknown symbol",
			req:  Request{Type: "place_trade", Family: "contract", Symbol: "DOGEUSD", Direction: "long", Quantity: 1, Leverage: 10},
			code: "not_found",
		},
		{
			name: "bad leverage",
			req:  Request{Type: "place_trade", Family: "contract", Symbol: "BTCUSD", Direction: "long", Quantity: 1, Leverage: 9999},
			code: "validation",
		},
		{
			name: "stake beyond balance",
			req:  Request{Type: "place_trade", Family: "binary", StrategyID: "BTC_60S", Direction: "up", Stake: 999},
			code: "insufficient_balance",
		},
		{
			name: "unknown request type",
			req:  Request{Type: "telepathy"},
			code: "unknown_type",
		},
	}

	// Drain the balance so the stake case trips the ledger.
	if f := gw.HandleRequest(ctx, "broke", Request{Type: "fund_subscribe", FundID: "FUND_K8", Amount: 9500}); f.Type != "result" {
		t.Fatalf("setup subscribe failed: %+v", f)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame := gw.HandleRequest(ctx, "broke", tt.req)
			if frame.Type != "error" || frame.Code != tt.code {
				t.Fatalf("frame = %+v, expected code %s", frame, tt.code)
			}
		})
	}
}

func TestFundOperations(t *testing.T) {
	gw := newTestGateway()
	ctx := context.Background()

	sub := gw.HandleRequest(ctx, "u1", Request{Type: "fund_subscribe", ID: "r1", FundID: "FUND_K8", Amount: 1000})
	if sub.Type != "result" {
		t.Fatalf("subscribe frame = %+v", sub)
	}
	h := sub.Data.(fund.Holding)

	red := gw.HandleRequest(ctx, "u1", Request{Type: "fund_redeem", ID: "r2", FundID: "FUND_K8", Shares: h.Shares})
	if red.Type != "result" {
		t.Fatalf("redeem frame = %+v", red)
	}
	proceeds := red.Data.(map[string]float64)["proceeds"]
	if proceeds <= 0 {
		t.Fatalf("proceeds = %v, expected positive", proceeds)
	}
}

func TestPortfolioRequest(t *testing.T) {
	gw := newTestGateway()

	frame := gw.HandleRequest(context.Background(), "u1", Request{Type: "portfolio", ID: "r1"})
	if frame.Type != "result" {
		t.Fatalf("frame = %+v, expected result", frame)
	}
	p, ok := frame.Data.(portfolio.Portfolio)
	if !ok {
		t.Fatalf("frame data type = %T, expected portfolio.Portfolio", frame.Data)
	}
	if p.CashBalance != 10000 {
		t.Fatalf("cash = %v, expected fresh account 10000", p.CashBalance)
	}
}
