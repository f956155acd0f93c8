// Package engine provides a unified interface for the venue core.
// This package abstracts the internal engines from the API/gateway layer,
// enabling future service separation.
package engine

import (
	"context"

	"venue-core/internal/binary"
	"venue-core/internal/contract"
	"venue-core/internal/fund"
	"venue-core/internal/ledger"
	"venue-core/internal/market"
	"venue-core/internal/portfolio"
)

// Service defines the interface for venue operations.
// The API and gateway layers should only interact with the engines through
// this interface.
type Service interface {
	// Market Queries
	GetAllMarketData(ctx context.Context) []MarketData
	GetMarketData(ctx context.Context, symbol string) (MarketData, error)
	GetPriceHistory(ctx context.Context, symbol string, limit int) ([]market.Tick, error)

	// Contract Orders
	PlaceContractOrder(ctx context.Context, req contract.OpenRequest) (contract.Order, error)
	CloseContractPosition(ctx context.Context, userID, orderID string) (contract.Order, error)
	GetContractOrders(ctx context.Context, userID string) []contract.Order

	// Binary Options
	PlaceBinaryOrder(ctx context.Context, userID, strategyID string, dir binary.Direction, stake float64) (binary.Order, error)
	GetBinaryActiveOrders(ctx context.Context, userID string) []binary.Order
	ListBinaryStrategies(ctx context.Context) []BinaryStrategyInfo

	// Funds
	ListFunds(ctx context.Context) []fund.Fund
	SubscribeFund(ctx context.Context, userID, fundID string, amount float64) (fund.Holding, error)
	RedeemFund(ctx context.Context, userID, fundID string, shares float64) (float64, error)

	// Account & Portfolio
	GetBalance(ctx context.Context, userID string) ledger.Account
	GetUserPortfolio(ctx context.Context, userID string) portfolio.Portfolio

	// System
	GetSystemStatus(ctx context.Context) SystemStatus
}
