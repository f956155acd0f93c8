package engine

import (
	"context"
	"time"

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

// Impl implements the Service interface by composing the engines.
type Impl struct {
	feed       *market.Feed
	ledger     *ledger.Ledger
	contracts  *contract.Engine
	binaries   *binary.Engine
	funds      *fund.Engine
	aggregator *portfolio.Aggregator
	metrics    *monitor.SystemMetrics

	strategies []catalog.BinaryStrategy
	meta       SystemStatus
}

// Config holds the configuration for creating an engine implementation.
type Config struct {
	Feed       *market.Feed
	Ledger     *ledger.Ledger
	Contracts  *contract.Engine
	Binaries   *binary.Engine
	Funds      *fund.Engine
	Aggregator *portfolio.Aggregator
	Metrics    *monitor.SystemMetrics
	Strategies []catalog.BinaryStrategy
	Meta       SystemStatus
}

// NewImpl creates a new engine implementation.
func NewImpl(cfg Config) *Impl {
	return &Impl{
		feed:       cfg.Feed,
		ledger:     cfg.Ledger,
		contracts:  cfg.Contracts,
		binaries:   cfg.Binaries,
		funds:      cfg.Funds,
		aggregator: cfg.Aggregator,
		metrics:    cfg.Metrics,
		strategies: cfg.Strategies,
		meta:       cfg.Meta,
	}
}

// --- Market Queries ---

func (e *Impl) GetAllMarketData(ctx context.Context) []MarketData {
	snaps := e.feed.SnapshotAll()
	out := make([]MarketData, len(snaps))
	for i, s := range snaps {
		out[i] = MarketData{
			Symbol:     s.Symbol,
			Price:      s.Price,
			History:    s.History,
			LastUpdate: s.LastUpdate,
		}
	}
	return out
}

func (e *Impl) GetMarketData(ctx context.Context, symbol string) (MarketData, error) {
	snap, ok := e.feed.Snapshot(symbol)
	if !ok {
		return MarketData{}, errs.NotFound("symbol", symbol)
	}
	return MarketData{
		Symbol:     snap.Symbol,
		Price:      snap.Price,
		History:    snap.History,
		LastUpdate: snap.LastUpdate,
	}, nil
}

func (e *Impl) GetPriceHistory(ctx context.Context, symbol string, limit int) ([]market.Tick, error) {
	return e.feed.History(symbol, limit)
}

// --- Contract Orders ---

func (e *Impl) PlaceContractOrder(ctx context.Context, req contract.OpenRequest) (contract.Order, error) {
	timer := monitor.NewTimer(e.metrics.OrderLatency)
	defer timer.Stop()

	o, err := e.contracts.Open(req)
	if err != nil {
		e.countOrderErr(err)
		return contract.Order{}, err
	}
	e.metrics.IncrementOrders()
	return o, nil
}

// CloseContractPosition closes an order after verifying it belongs to the
// caller. A foreign order is reported as not found, not as forbidden, so
// order IDs cannot be probed.
func (e *Impl) CloseContractPosition(ctx context.Context, userID, orderID string) (contract.Order, error) {
	timer := monitor.NewTimer(e.metrics.OrderLatency)
	defer timer.Stop()

	o, err := e.contracts.Order(orderID)
	if err != nil {
		return contract.Order{}, err
	}
	if o.UserID != userID {
		return contract.Order{}, errs.NotFound("order", orderID)
	}

	closed, err := e.contracts.Close(orderID)
	if err != nil {
		e.countOrderErr(err)
		return contract.Order{}, err
	}
	e.metrics.IncrementOrders()
	return closed, nil
}

func (e *Impl) GetContractOrders(ctx context.Context, userID string) []contract.Order {
	return e.contracts.OpenOrders(userID)
}

// --- Binary Options ---

func (e *Impl) PlaceBinaryOrder(ctx context.Context, userID, strategyID string, dir binary.Direction, stake float64) (binary.Order, error) {
	timer := monitor.NewTimer(e.metrics.OrderLatency)
	defer timer.Stop()

	o, err := e.binaries.Place(userID, strategyID, dir, stake)
	if err != nil {
		e.countOrderErr(err)
		return binary.Order{}, err
	}
	e.metrics.IncrementOrders()
	return o, nil
}

func (e *Impl) GetBinaryActiveOrders(ctx context.Context, userID string) []binary.Order {
	return e.binaries.ActiveOrders(userID)
}

func (e *Impl) ListBinaryStrategies(ctx context.Context) []BinaryStrategyInfo {
	out := make([]BinaryStrategyInfo, len(e.strategies))
	for i, s := range e.strategies {
		out[i] = BinaryStrategyInfo{
			ID:              s.ID,
			Symbol:          s.Symbol,
			DurationSeconds: s.DurationSeconds,
			PayoutRatio:     s.PayoutRatio,
			MinStake:        s.MinStake,
			MaxStake:        s.MaxStake,
		}
	}
	return out
}

// --- Funds ---

func (e *Impl) ListFunds(ctx context.Context) []fund.Fund {
	return e.funds.Funds()
}

func (e *Impl) SubscribeFund(ctx context.Context, userID, fundID string, amount float64) (fund.Holding, error) {
	h, err := e.funds.Subscribe(userID, fundID, amount)
	if err != nil {
		e.countOrderErr(err)
		return fund.Holding{}, err
	}
	e.metrics.IncrementOrders()
	return h, nil
}

func (e *Impl) RedeemFund(ctx context.Context, userID, fundID string, shares float64) (float64, error) {
	proceeds, err := e.funds.Redeem(userID, fundID, shares)
	if err != nil {
		e.countOrderErr(err)
		return 0, err
	}
	e.metrics.IncrementOrders()
	return proceeds, nil
}

// --- Account & Portfolio ---

func (e *Impl) GetBalance(ctx context.Context, userID string) ledger.Account {
	return e.ledger.Account(userID)
}

func (e *Impl) GetUserPortfolio(ctx context.Context, userID string) portfolio.Portfolio {
	return e.aggregator.Portfolio(userID)
}

// --- System ---

func (e *Impl) GetSystemStatus(ctx context.Context) SystemStatus {
	status := e.meta
	status.ServerTime = time.Now().UTC()
	return status
}

// countOrderErr records only infrastructure failures; business rejections are
// an expected part of operation.
func (e *Impl) countOrderErr(err error) {
	if !errs.IsBusiness(err) {
		e.metrics.IncrementErrors()
	}
}
