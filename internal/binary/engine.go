// Package binary implements fixed-payout directional bets settled once at
// expiry against the price feed. The lifecycle is a two-state machine:
// open -> settled, with no cancellation path; bets are irrevocable once
// placed.
package binary

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"venue-core/internal/errs"
	"venue-core/internal/events"
	"venue-core/internal/ledger"
	"venue-core/pkg/catalog"
)

// Direction of the prediction.
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// Order status values.
const (
	StatusOpen    = "open"
	StatusSettled = "settled"
)

// Outcome values recorded at settlement.
const (
	OutcomeWon  = "won"
	OutcomeLost = "lost"
	// OutcomeVoid marks an order settled with zero payout after repeated
	// settlement failures; flagged for manual reconciliation.
	OutcomeVoid = "void"
)

// Order is one binary option bet. The stake is debited at placement, so a
// losing settlement moves no money.
type Order struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	StrategyID  string     `json:"strategy_id"`
	Symbol      string     `json:"symbol"`
	Direction   Direction  `json:"direction"`
	Stake       float64    `json:"stake"`
	PayoutRatio float64    `json:"payout_ratio"`
	EntryPrice  float64    `json:"entry_price"`
	PlacedAt    time.Time  `json:"placed_at"`
	ExpiresAt   time.Time  `json:"expires_at"`
	Status      string     `json:"status"`
	Outcome     string     `json:"outcome,omitempty"`
	ExitPrice   float64    `json:"exit_price,omitempty"`
	Payout      float64    `json:"payout,omitempty"`
	SettledAt   *time.Time `json:"settled_at,omitempty"`
	// NeedsReconciliation is set on void settlements for the (excluded)
	// operational follow-up.
	NeedsReconciliation bool `json:"needs_reconciliation,omitempty"`
}

// PriceSource supplies entry and settlement prices.
type PriceSource interface {
	CurrentPrice(symbol string) (float64, error)
}

// Engine manages binary option orders and their timer-driven settlement.
type Engine struct {
	ledger     *ledger.Ledger
	prices     PriceSource
	bus        *events.Bus
	strategies map[string]catalog.BinaryStrategy
	sched      *Scheduler

	mu     sync.RWMutex
	orders map[string]*Order
}

// NewEngine creates a binary option engine seeded with the strategy table.
func NewEngine(strategies []catalog.BinaryStrategy, led *ledger.Ledger, prices PriceSource, bus *events.Bus) *Engine {
	e := &Engine{
		ledger:     led,
		prices:     prices,
		bus:        bus,
		strategies: make(map[string]catalog.BinaryStrategy, len(strategies)),
		orders:     make(map[string]*Order),
	}
	for _, s := range strategies {
		e.strategies[s.ID] = s
	}
	e.sched = NewScheduler(e.settle, e.settleVoid)
	return e
}

// Start runs the settlement scheduler until the context is cancelled.
func (e *Engine) Start(ctx context.Context) {
	e.sched.Start(ctx)
}

// Place validates the stake, debits it immediately (binary risk is capped at
// the stake, so no margin reservation is needed), snapshots the entry price
// and schedules settlement at expiry.
func (e *Engine) Place(userID, strategyID string, dir Direction, stake float64) (Order, error) {
	if dir != Up && dir != Down {
		return Order{}, errs.Validation("direction must be %q or %q, got %q", Up, Down, dir)
	}
	strat, ok := e.strategies[strategyID]
	if !ok {
		return Order{}, errs.NotFound("strategy", strategyID)
	}
	if stake <= 0 {
		return Order{}, errs.Validation("stake must be positive, got %v", stake)
	}
	if stake < strat.MinStake || (strat.MaxStake > 0 && stake > strat.MaxStake) {
		return Order{}, errs.Validation("stake %v outside strategy bounds [%v, %v]", stake, strat.MinStake, strat.MaxStake)
	}

	entry, err := e.prices.CurrentPrice(strat.Symbol)
	if err != nil {
		return Order{}, err
	}
	if _, err := e.ledger.Debit(userID, stake); err != nil {
		return Order{}, err
	}

	now := time.Now()
	o := &Order{
		ID:          uuid.NewString(),
		UserID:      userID,
		StrategyID:  strategyID,
		Symbol:      strat.Symbol,
		Direction:   dir,
		Stake:       stake,
		PayoutRatio: strat.PayoutRatio,
		EntryPrice:  entry,
		PlacedAt:    now,
		ExpiresAt:   now.Add(time.Duration(strat.DurationSeconds) * time.Second),
		Status:      StatusOpen,
	}

	e.mu.Lock()
	e.orders[o.ID] = o
	snapshot := *o
	e.mu.Unlock()

	e.sched.Schedule(o.ID, o.ExpiresAt)
	e.publishTrade(snapshot, nil)
	log.Printf("binary: placed %s %s %s %s stake=%.2f entry=%.4f expires=%s",
		o.ID, userID, strategyID, dir, stake, entry, o.ExpiresAt.Format(time.RFC3339))
	return snapshot, nil
}

// settle resolves one order against the feed. Invoked only by the scheduler,
// never by a client. Idempotent: a non-open order is a no-op, not an error.
func (e *Engine) settle(orderID string) error {
	e.mu.RLock()
	o, ok := e.orders[orderID]
	var symbol string
	if ok {
		symbol = o.Symbol
	}
	e.mu.RUnlock()
	if !ok {
		return errs.NotFound("order", orderID)
	}

	exit, err := e.prices.CurrentPrice(symbol)
	if err != nil {
		return err
	}

	e.mu.Lock()
	if o.Status != StatusOpen {
		e.mu.Unlock()
		return nil
	}
	won := (o.Direction == Up && exit > o.EntryPrice) ||
		(o.Direction == Down && exit < o.EntryPrice)

	now := time.Now()
	o.Status = StatusSettled
	o.ExitPrice = exit
	o.SettledAt = &now
	if won {
		o.Outcome = OutcomeWon
		o.Payout = o.Stake * o.PayoutRatio
	} else {
		o.Outcome = OutcomeLost
	}
	snapshot := *o
	e.mu.Unlock()

	if snapshot.Payout > 0 {
		if _, err := e.ledger.Credit(snapshot.UserID, snapshot.Payout); err != nil {
			return err
		}
	}

	pnl := snapshot.Payout - snapshot.Stake
	e.publishTrade(snapshot, &pnl)
	log.Printf("binary: settled %s %s exit=%.4f payout=%.2f", orderID, snapshot.Outcome, exit, snapshot.Payout)
	return nil
}

// settleVoid marks an order settled with zero payout after settlement failed
// twice, flagging it for manual reconciliation.
func (e *Engine) settleVoid(orderID string) {
	e.mu.Lock()
	o, ok := e.orders[orderID]
	if !ok || o.Status != StatusOpen {
		e.mu.Unlock()
		return
	}
	now := time.Now()
	o.Status = StatusSettled
	o.Outcome = OutcomeVoid
	o.SettledAt = &now
	o.NeedsReconciliation = true
	snapshot := *o
	e.mu.Unlock()

	pnl := -snapshot.Stake
	e.publishTrade(snapshot, &pnl)
	log.Printf("binary: order %s voided, flagged for reconciliation", orderID)
}

// CancelExpiry removes a pending settlement callback. Intended for test
// harness teardown; in normal operation settlements run to completion.
func (e *Engine) CancelExpiry(orderID string) bool {
	return e.sched.Cancel(orderID)
}

// ActiveOrders returns the user's open (unexpired or awaiting settlement)
// orders.
func (e *Engine) ActiveOrders(userID string) []Order {
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

func (e *Engine) publishTrade(o Order, pnl *float64) {
	if e.bus == nil {
		return
	}
	update := events.TradeUpdate{
		OrderID: o.ID,
		UserID:  o.UserID,
		Symbol:  o.Symbol,
		Status:  o.Status,
		PnL:     pnl,
	}
	e.bus.Publish(events.TopicTradeAll, update)
	e.bus.Publish(events.UserFills(o.UserID), update)
}
