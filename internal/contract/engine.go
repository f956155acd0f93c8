// Package contract implements leveraged long/short positions with margin
// reservation, mark-to-market, stop-loss/take-profit and forced liquidation.
package contract

import (
	"log"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"venue-core/internal/errs"
	"venue-core/internal/events"
	"venue-core/internal/ledger"
)

// Direction of a leveraged position.
type Direction string

const (
	Long  Direction = "long"
	Short Direction = "short"
)

// Order status values. Rejected orders are never stored; the rejection is
// returned to the caller as a typed error.
const (
	StatusOpen   = "open"
	StatusClosed = "closed"
)

// Close reasons recorded on the order.
const (
	ReasonManual      = "manual"
	ReasonStopLoss    = "stop_loss"
	ReasonTakeProfit  = "take_profit"
	ReasonLiquidation = "liquidation"
)

// Order is one leveraged contract order.
type Order struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Symbol      string     `json:"symbol"`
	Direction   Direction  `json:"direction"`
	Quantity    float64    `json:"quantity"`
	Leverage    float64    `json:"leverage"`
	EntryPrice  float64    `json:"entry_price"`
	Margin      float64    `json:"margin"`
	StopLoss    float64    `json:"stop_loss,omitempty"`
	TakeProfit  float64    `json:"take_profit,omitempty"`
	OpenedAt    time.Time  `json:"opened_at"`
	Status      string     `json:"status"`
	ClosedAt    *time.Time `json:"closed_at,omitempty"`
	ExitPrice   float64    `json:"exit_price,omitempty"`
	RealizedPnL float64    `json:"realized_pnl,omitempty"`
	CloseReason string     `json:"close_reason,omitempty"`
}

// Position is the derived net exposure of one (user, symbol) pair. It is
// recomputed from the constituent open orders on every open/close and never
// persisted independently.
type Position struct {
	UserID        string    `json:"user_id"`
	Symbol        string    `json:"symbol"`
	Quantity      float64   `json:"quantity"` // signed: >0 long, <0 short
	AvgEntryPrice float64   `json:"avg_entry_price"`
	Margin        float64   `json:"margin"`
	UnrealizedPnL float64   `json:"unrealized_pnl"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// PriceSource supplies the synthetic price all fills execute against.
type PriceSource interface {
	CurrentPrice(symbol string) (float64, error)
}

// Config holds the contract engine parameters.
type Config struct {
	MarginRate       float64 // fraction of notional reserved per unit leverage
	FeeRate          float64 // fee on closing notional
	MaxLeverage      float64
	LiquidationRatio float64 // unrealized loss / margin that forces a close
}

// DefaultConfig returns the venue defaults.
func DefaultConfig() Config {
	return Config{
		MarginRate:       0.1,
		FeeRate:          0.0004,
		MaxLeverage:      100,
		LiquidationRatio: 0.9,
	}
}

// Engine manages contract orders and derived positions.
type Engine struct {
	cfg    Config
	ledger *ledger.Ledger
	prices PriceSource
	bus    *events.Bus

	mu        sync.RWMutex
	orders    map[string]*Order
	positions map[string]*Position // key: userID + "|" + symbol
}

// NewEngine creates a contract engine.
func NewEngine(cfg Config, led *ledger.Ledger, prices PriceSource, bus *events.Bus) *Engine {
	if cfg.MaxLeverage <= 0 {
		cfg.MaxLeverage = 100
	}
	return &Engine{
		cfg:       cfg,
		ledger:    led,
		prices:    prices,
		bus:       bus,
		orders:    make(map[string]*Order),
		positions: make(map[string]*Position),
	}
}

func posKey(userID, symbol string) string { return userID + "|" + symbol }

func dirSign(d Direction) float64 {
	if d == Short {
		return -1
	}
	return 1
}

// OpenRequest carries optional protective levels for Open.
type OpenRequest struct {
	UserID     string
	Symbol     string
	Direction  Direction
	Quantity   float64
	Leverage   float64
	StopLoss   float64
	TakeProfit float64
}

// Open validates the request, reserves margin and creates an open order.
// margin = entryPrice * quantity * marginRate / leverage.
func (e *Engine) Open(req OpenRequest) (Order, error) {
	if req.Direction != Long && req.Direction != Short {
		return Order{}, errs.Validation("direction must be %q or %q, got %q", Long, Short, req.Direction)
	}
	if req.Quantity <= 0 {
		return Order{}, errs.Validation("quantity must be positive, got %v", req.Quantity)
	}
	if req.Leverage < 1 || req.Leverage > e.cfg.MaxLeverage {
		return Order{}, errs.Validation("leverage must be in [1, %v], got %v", e.cfg.MaxLeverage, req.Leverage)
	}

	price, err := e.prices.CurrentPrice(req.Symbol)
	if err != nil {
		return Order{}, err
	}

	margin := price * req.Quantity * e.cfg.MarginRate / req.Leverage
	if _, err := e.ledger.Reserve(req.UserID, margin); err != nil {
		return Order{}, err
	}

	o := &Order{
		ID:         uuid.NewString(),
		UserID:     req.UserID,
		Symbol:     req.Symbol,
		Direction:  req.Direction,
		Quantity:   req.Quantity,
		Leverage:   req.Leverage,
		EntryPrice: price,
		Margin:     margin,
		StopLoss:   req.StopLoss,
		TakeProfit: req.TakeProfit,
		OpenedAt:   time.Now(),
		Status:     StatusOpen,
	}

	e.mu.Lock()
	e.orders[o.ID] = o
	e.recomputePosition(req.UserID, req.Symbol)
	snapshot := *o
	e.mu.Unlock()

	e.publishTrade(snapshot, nil)
	log.Printf("contract: opened %s %s %s qty=%.4f lev=%.0f entry=%.4f margin=%.2f",
		o.ID, req.UserID, req.Symbol, req.Quantity, req.Leverage, price, margin)
	return snapshot, nil
}

// Close settles an open order at the current feed price.
func (e *Engine) Close(orderID string) (Order, error) {
	e.mu.RLock()
	o, ok := e.orders[orderID]
	var symbol string
	if ok {
		symbol = o.Symbol
	}
	e.mu.RUnlock()
	if !ok {
		return Order{}, errs.NotFound("order", orderID)
	}

	price, err := e.prices.CurrentPrice(symbol)
	if err != nil {
		return Order{}, err
	}
	return e.closeAt(orderID, price, ReasonManual)
}

// closeAt settles an order at the given price. Realized P&L is
// (exit - entry) * quantity * sign(direction) minus the closing fee; the
// margin is released and the net credited to cash. Losses are capped at
// account equity so the cash invariant holds.
func (e *Engine) closeAt(orderID string, exitPrice float64, reason string) (Order, error) {
	e.mu.Lock()
	o, ok := e.orders[orderID]
	if !ok {
		e.mu.Unlock()
		return Order{}, errs.NotFound("order", orderID)
	}
	if o.Status != StatusOpen {
		e.mu.Unlock()
		return Order{}, &errs.InvalidStateError{OrderID: orderID, Status: o.Status, Want: StatusOpen}
	}

	fee := exitPrice * o.Quantity * e.cfg.FeeRate
	pnl := (exitPrice-o.EntryPrice)*o.Quantity*dirSign(o.Direction) - fee

	now := time.Now()
	o.Status = StatusClosed
	o.ClosedAt = &now
	o.ExitPrice = exitPrice
	o.RealizedPnL = pnl
	o.CloseReason = reason
	snapshot := *o
	e.recomputePosition(o.UserID, o.Symbol)
	e.mu.Unlock()

	if _, err := e.ledger.Update(snapshot.UserID, func(a *ledger.Account) error {
		a.ReservedMargin -= snapshot.Margin
		a.CashBalance += snapshot.Margin + pnl
		if a.CashBalance < 0 {
			a.CashBalance = 0
		}
		return nil
	}); err != nil {
		// Release takes no business decision; a failure here is a fault.
		log.Printf("contract: ledger release failed for order %s: %v", orderID, err)
		return Order{}, err
	}

	e.publishTrade(snapshot, &pnl)
	log.Printf("contract: closed %s (%s) exit=%.4f pnl=%.2f", orderID, reason, exitPrice, pnl)
	return snapshot, nil
}

// OnTick marks all open positions on symbol to the new price, then applies
// stop-loss, take-profit and liquidation triggers. It mutates no ledger
// state directly; triggered orders go through the normal close path.
func (e *Engine) OnTick(symbol string, price float64) {
	type trigger struct {
		orderID string
		reason  string
	}
	var triggers []trigger

	e.mu.Lock()
	now := time.Now()
	unrealized := make(map[string]float64)
	for _, o := range e.orders {
		if o.Status != StatusOpen || o.Symbol != symbol {
			continue
		}
		pnl := (price - o.EntryPrice) * o.Quantity * dirSign(o.Direction)
		unrealized[posKey(o.UserID, o.Symbol)] += pnl

		switch {
		case o.Margin > 0 && pnl <= -e.cfg.LiquidationRatio*o.Margin:
			triggers = append(triggers, trigger{o.ID, ReasonLiquidation})
		case o.StopLoss > 0 && crossedStop(o.Direction, price, o.StopLoss):
			triggers = append(triggers, trigger{o.ID, ReasonStopLoss})
		case o.TakeProfit > 0 && crossedTarget(o.Direction, price, o.TakeProfit):
			triggers = append(triggers, trigger{o.ID, ReasonTakeProfit})
		}
	}
	for key, pnl := range unrealized {
		if pos, ok := e.positions[key]; ok {
			pos.UnrealizedPnL = pnl
			pos.UpdatedAt = now
		}
	}
	e.mu.Unlock()

	for _, tr := range triggers {
		if _, err := e.closeAt(tr.orderID, price, tr.reason); err != nil {
			// Racing a manual close is fine; anything else is logged.
			if !errs.IsBusiness(err) {
				log.Printf("contract: %s close of %s failed: %v", tr.reason, tr.orderID, err)
			}
		}
	}
}

func crossedStop(d Direction, price, stop float64) bool {
	if d == Long {
		return price <= stop
	}
	return price >= stop
}

func crossedTarget(d Direction, price, target float64) bool {
	if d == Long {
		return price >= target
	}
	return price <= target
}

// recomputePosition rebuilds the derived position from the open orders of
// (userID, symbol). Caller must hold e.mu.
func (e *Engine) recomputePosition(userID, symbol string) {
	key := posKey(userID, symbol)

	var qty, notional, margin float64
	for _, o := range e.orders {
		if o.Status != StatusOpen || o.UserID != userID || o.Symbol != symbol {
			continue
		}
		signed := o.Quantity * dirSign(o.Direction)
		qty += signed
		notional += o.EntryPrice * math.Abs(signed)
		margin += o.Margin
	}

	if margin == 0 && qty == 0 {
		delete(e.positions, key)
		return
	}

	var avg float64
	if g := gross(e.orders, userID, symbol); g > 0 {
		avg = notional / g
	}
	pos, ok := e.positions[key]
	if !ok {
		pos = &Position{UserID: userID, Symbol: symbol}
		e.positions[key] = pos
	}
	pos.Quantity = qty
	pos.AvgEntryPrice = avg
	pos.Margin = margin
	pos.UpdatedAt = time.Now()
}

// gross sums the unsigned open quantity for (userID, symbol).
func gross(orders map[string]*Order, userID, symbol string) float64 {
	var g float64
	for _, o := range orders {
		if o.Status == StatusOpen && o.UserID == userID && o.Symbol == symbol {
			g += o.Quantity
		}
	}
	return g
}

// Order returns a snapshot of one order.
func (e *Engine) Order(orderID string) (Order, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	o, ok := e.orders[orderID]
	if !ok {
		return Order{}, errs.NotFound("order", orderID)
	}
	return *o, nil
}

// OpenOrders returns the user's open orders.
func (e *Engine) OpenOrders(userID string) []Order {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []Order
	for _, o := range e.orders {
		if o.UserID == userID && o.Status == StatusOpen {
			out = append(out, *o)
		}
	}
	return out
}

// Positions returns the user's derived positions with cached unrealized P&L.
func (e *Engine) Positions(userID string) []Position {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []Position
	for _, p := range e.positions {
		if p.UserID == userID {
			out = append(out, *p)
		}
	}
	return out
}

func (e *Engine) publishTrade(o Order, pnl *float64) {
	if e.bus == nil {
		return
	}
	status := o.Status
	if o.CloseReason == ReasonLiquidation {
		status = ReasonLiquidation
	}
	update := events.TradeUpdate{
		OrderID: o.ID,
		UserID:  o.UserID,
		Symbol:  o.Symbol,
		Status:  status,
		PnL:     pnl,
	}
	e.bus.Publish(events.TopicTradeAll, update)
	e.bus.Publish(events.UserFills(o.UserID), update)
}
