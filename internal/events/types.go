package events

import "time"

// Topic is a pub/sub channel key. Engines publish to keyed topics so the
// gateway can relay per-symbol and per-user streams without knowing about
// any specific transport.
type Topic string

const (
	// TopicMarketAll carries every MarketUpdate regardless of symbol.
	TopicMarketAll Topic = "market"
	// TopicTradeAll carries every TradeUpdate regardless of user.
	TopicTradeAll Topic = "trades"
)

// Market returns the per-symbol market topic, e.g. "market.BTCUSD".
func Market(symbol string) Topic { return Topic("market." + symbol) }

// UserFills returns the per-user fill topic, e.g. "user.u1.fills".
func UserFills(userID string) Topic { return Topic("user." + userID + ".fills") }

// UserFunds returns the per-user fund topic, e.g. "user.u1.funds".
func UserFunds(userID string) Topic { return Topic("user." + userID + ".funds") }

// MarketUpdate is published on every price tick.
type MarketUpdate struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Change    float64   `json:"change"` // fractional change vs previous tick
	Timestamp time.Time `json:"timestamp"`
}

// TradeUpdate is published when an order changes status (open, closed,
// settled, liquidated). PnL is nil while the order is still open.
type TradeUpdate struct {
	OrderID string   `json:"order_id"`
	UserID  string   `json:"user_id"`
	Symbol  string   `json:"symbol"`
	Status  string   `json:"status"`
	PnL     *float64 `json:"pnl,omitempty"`
}

// FundUpdate is published when a user's fund holding changes.
type FundUpdate struct {
	UserID string  `json:"user_id"`
	FundID string  `json:"fund_id"`
	Shares float64 `json:"shares"`
	NAV    float64 `json:"nav"`
}
