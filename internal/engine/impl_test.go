package engine

import (
	"context"
	"errors"
	"testing"

	"venue-core/internal/binary"
	"venue-core/internal/contract"
	"venue-core/internal/errs"
	"venue-core/internal/fund"
	"venue-core/internal/ledger"
	"venue-core/internal/market"
	"venue-core/internal/monitor"
	"venue-core/internal/portfolio"
	"venue-core/pkg/catalog"
)

func newTestService() *Impl {
	cat := &catalog.Catalog{
		Instruments: []catalog.Instrument{{Symbol: "BTCUSD", BasePrice: 45000, Volatility: 0.01}},
		Funds:       []catalog.Fund{{ID: "FUND_K8", Name: "K8", InitialNAV: 1.2345, DailyVol: 0.02, MinInvestment: 100, RedemptionFee: 0.005}},
		Strategies:  []catalog.BinaryStrategy{{ID: "BTC_60S", Symbol: "BTCUSD", DurationSeconds: 60, PayoutRatio: 1.8, MinStake: 10, MaxStake: 1000}},
	}

	feed := market.NewFeed(cat.Instruments, 100, nil)
	led := ledger.NewLedger(10000)
	contracts := contract.NewEngine(contract.DefaultConfig(), led, feed, nil)
	binaries := binary.NewEngine(cat.Strategies, led, feed, nil)
	funds := fund.NewEngine(cat.Funds, led, nil)
	agg := portfolio.NewAggregator(led, contracts, binaries, funds)

	return NewImpl(Config{
		Feed:       feed,
		Ledger:     led,
		Contracts:  contracts,
		Binaries:   binaries,
		Funds:      funds,
		Aggregator: agg,
		Metrics:    monitor.NewSystemMetrics(),
		Strategies: cat.Strategies,
		Meta:       SystemStatus{Venue: "venue-core", Symbols: feed.Symbols(), Version: "test"},
	})
}

func TestGetAllMarketData(t *testing.T) {
	svc := newTestService()

	data := svc.GetAllMarketData(context.Background())
	if len(data) != 1 {
		t.Fatalf("market data count = %d, expected 1", len(data))
	}
	if data[0].Symbol != "BTCUSD" || data[0].Price != 45000 {
		t.Fatalf("market data = %+v", data[0])
	}
}

func TestPlaceAndCloseContractOrder(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	o, err := svc.PlaceContractOrder(ctx, contract.OpenRequest{
		UserID: "u1", Symbol: "BTCUSD", Direction: contract.Long, Quantity: 1, Leverage: 10,
	})
	if err != nil {
		t.Fatalf("PlaceContractOrder returned error: %v", err)
	}
	if o.Margin != 450 {
		t.Fatalf("margin = %v, expected 450", o.Margin)
	}

	closed, err := svc.CloseContractPosition(ctx, "u1", o.ID)
	if err != nil {
		t.Fatalf("CloseContractPosition returned error: %v", err)
	}
	if closed.Status != contract.StatusClosed {
		t.Fatalf("status = %s, expected closed", closed.Status)
	}

	snap := svc.metrics.GetSnapshot()
	if snap.OrdersProcessed != 2 {
		t.Fatalf("orders processed = %d, expected 2", snap.OrdersProcessed)
	}
}

// Closing another user's order must look like an unknown order, so order ids
// cannot be probed across accounts.
func TestCloseForeignOrderNotFound(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	o, err := svc.PlaceContractOrder(ctx, contract.OpenRequest{
		UserID: "u1", Symbol: "BTCUSD", Direction: contract.Long, Quantity: 1, Leverage: 10,
	})
	if err != nil {
		t.Fatalf("PlaceContractOrder returned error: %v", err)
	}

	_, err = svc.CloseContractPosition(ctx, "u2", o.ID)
	var nf *errs.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("error = %v, expected NotFoundError", err)
	}

	// Still open and closable by the owner.
	if _, err := svc.CloseContractPosition(ctx, "u1", o.ID); err != nil {
		t.Fatalf("owner close failed: %v", err)
	}
}

func TestBinaryAndFundOperations(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	if _, err := svc.PlaceBinaryOrder(ctx, "u1", "BTC_60S", binary.Up, 100); err != nil {
		t.Fatalf("PlaceBinaryOrder returned error: %v", err)
	}
	if got := svc.GetBinaryActiveOrders(ctx, "u1"); len(got) != 1 {
		t.Fatalf("active binary orders = %d, expected 1", len(got))
	}

	h, err := svc.SubscribeFund(ctx, "u1", "FUND_K8", 1000)
	if err != nil {
		t.Fatalf("SubscribeFund returned error: %v", err)
	}
	if _, err := svc.RedeemFund(ctx, "u1", "FUND_K8", h.Shares); err != nil {
		t.Fatalf("RedeemFund returned error: %v", err)
	}
}

func TestGetUserPortfolio(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	if _, err := svc.PlaceContractOrder(ctx, contract.OpenRequest{
		UserID: "u1", Symbol: "BTCUSD", Direction: contract.Long, Quantity: 1, Leverage: 10,
	}); err != nil {
		t.Fatalf("PlaceContractOrder returned error: %v", err)
	}

	p := svc.GetUserPortfolio(ctx, "u1")
	if p.Degraded {
		t.Fatalf("portfolio degraded: %v", p.MissingSources)
	}
	if p.CashBalance != 9550 || p.ReservedMargin != 450 {
		t.Fatalf("portfolio balances = %v/%v, expected 9550/450", p.CashBalance, p.ReservedMargin)
	}
	if len(p.Positions) != 1 {
		t.Fatalf("positions = %d, expected 1", len(p.Positions))
	}
}

func TestListBinaryStrategies(t *testing.T) {
	svc := newTestService()

	strategies := svc.ListBinaryStrategies(context.Background())
	if len(strategies) != 1 || strategies[0].ID != "BTC_60S" {
		t.Fatalf("strategies = %+v", strategies)
	}
}

func TestSystemStatus(t *testing.T) {
	svc := newTestService()

	status := svc.GetSystemStatus(context.Background())
	if status.Venue != "venue-core" || len(status.Symbols) != 1 {
		t.Fatalf("status = %+v", status)
	}
	if status.ServerTime.IsZero() {
		t.Fatal("server time not set")
	}
}
