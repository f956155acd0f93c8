// Package fund implements NAV-based subscription and redemption of open-end
// pooled funds. NAV evolves on its own periodic schedule, independent of the
// tick feed: funds are NAV-quoted, not tick-quoted.
package fund

import (
	"context"
	"log"
	"math"
	"math/rand"
	"sync"
	"time"

	"venue-core/internal/errs"
	"venue-core/internal/events"
	"venue-core/internal/ledger"
	"venue-core/pkg/catalog"
)

// navFloor keeps NAV strictly positive through any sequence of draws.
const navFloor = 0.0001

// Fund is one open-end fund's live state.
type Fund struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	NAV           float64   `json:"nav"`
	MinInvestment float64   `json:"min_investment"`
	RedemptionFee float64   `json:"redemption_fee"`
	DailyVol      float64   `json:"-"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Holding is one user's share balance in one fund. Removed when shares reach
// zero.
type Holding struct {
	UserID string  `json:"user_id"`
	FundID string  `json:"fund_id"`
	Shares float64 `json:"shares"`
}

// Engine manages funds and share holdings.
type Engine struct {
	ledger *ledger.Ledger
	bus    *events.Bus

	mu       sync.RWMutex
	funds    map[string]*Fund
	holdings map[string]*Holding // key: userID + "|" + fundID
	rng      *rand.Rand
}

// NewEngine seeds the engine from the fund catalog.
func NewEngine(funds []catalog.Fund, led *ledger.Ledger, bus *events.Bus) *Engine {
	e := &Engine{
		ledger:   led,
		bus:      bus,
		funds:    make(map[string]*Fund, len(funds)),
		holdings: make(map[string]*Holding),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	now := time.Now()
	for _, cf := range funds {
		e.funds[cf.ID] = &Fund{
			ID:            cf.ID,
			Name:          cf.Name,
			NAV:           cf.InitialNAV,
			MinInvestment: cf.MinInvestment,
			RedemptionFee: cf.RedemptionFee,
			DailyVol:      cf.DailyVol,
			UpdatedAt:     now,
		}
	}
	return e
}

func holdingKey(userID, fundID string) string { return userID + "|" + fundID }

// Start advances NAV on its own schedule until the context is cancelled.
func (e *Engine) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				e.AdvanceNAV()
			}
		}
	}()
}

// AdvanceNAV draws one bounded random return per fund. Timestamps are
// strictly monotonic per fund.
func (e *Engine) AdvanceNAV() {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := time.Now()
	for _, f := range e.funds {
		r := (e.rng.Float64()*2 - 1) * f.DailyVol
		f.NAV = math.Max(f.NAV*(1+r), navFloor)
		if !now.After(f.UpdatedAt) {
			now = f.UpdatedAt.Add(time.Nanosecond)
		}
		f.UpdatedAt = now
	}
}

// NAV returns the current net asset value for fundID.
func (e *Engine) NAV(fundID string) (float64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	f, ok := e.funds[fundID]
	if !ok {
		return 0, errs.NotFound("fund", fundID)
	}
	return f.NAV, nil
}

// Funds returns a snapshot of every fund.
func (e *Engine) Funds() []Fund {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Fund, 0, len(e.funds))
	for _, f := range e.funds {
		out = append(out, *f)
	}
	return out
}

// Subscribe debits amount from the user's cash and issues
// amount / currentNAV shares.
func (e *Engine) Subscribe(userID, fundID string, amount float64) (Holding, error) {
	if amount <= 0 {
		return Holding{}, errs.Validation("amount must be positive, got %v", amount)
	}

	e.mu.RLock()
	f, ok := e.funds[fundID]
	var nav, minInv float64
	if ok {
		nav, minInv = f.NAV, f.MinInvestment
	}
	e.mu.RUnlock()
	if !ok {
		return Holding{}, errs.NotFound("fund", fundID)
	}
	if amount < minInv {
		return Holding{}, errs.Validation("amount %.2f below minimum investment %.2f", amount, minInv)
	}

	if _, err := e.ledger.Debit(userID, amount); err != nil {
		return Holding{}, err
	}

	shares := amount / nav

	e.mu.Lock()
	key := holdingKey(userID, fundID)
	h, ok := e.holdings[key]
	if !ok {
		h = &Holding{UserID: userID, FundID: fundID}
		e.holdings[key] = h
	}
	h.Shares += shares
	snapshot := *h
	e.mu.Unlock()

	e.publishFund(snapshot, nav)
	log.Printf("fund: %s subscribed %.2f to %s at nav=%.4f -> %.4f shares",
		userID, amount, fundID, nav, shares)
	return snapshot, nil
}

// Redeem converts shares back to cash at the current NAV, less the
// redemption fee. The holding is removed when its share count reaches zero.
func (e *Engine) Redeem(userID, fundID string, shares float64) (float64, error) {
	if shares <= 0 {
		return 0, errs.Validation("shares must be positive, got %v", shares)
	}

	e.mu.Lock()
	f, ok := e.funds[fundID]
	if !ok {
		e.mu.Unlock()
		return 0, errs.NotFound("fund", fundID)
	}
	key := holdingKey(userID, fundID)
	h, ok := e.holdings[key]
	if !ok || h.Shares < shares {
		held := 0.0
		if ok {
			held = h.Shares
		}
		e.mu.Unlock()
		return 0, errs.Validation("redeem %.4f shares exceeds holding %.4f", shares, held)
	}

	nav := f.NAV
	proceeds := shares * nav * (1 - f.RedemptionFee)
	h.Shares -= shares
	snapshot := *h
	if h.Shares <= 0 {
		delete(e.holdings, key)
		snapshot.Shares = 0
	}
	e.mu.Unlock()

	if _, err := e.ledger.Credit(userID, proceeds); err != nil {
		return 0, err
	}

	e.publishFund(snapshot, nav)
	log.Printf("fund: %s redeemed %.4f shares of %s at nav=%.4f -> %.2f", userID, shares, fundID, nav, proceeds)
	return proceeds, nil
}

// Holdings returns the user's fund holdings.
func (e *Engine) Holdings(userID string) []Holding {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []Holding
	for _, h := range e.holdings {
		if h.UserID == userID {
			out = append(out, *h)
		}
	}
	return out
}

func (e *Engine) publishFund(h Holding, nav float64) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(events.UserFunds(h.UserID), events.FundUpdate{
		UserID: h.UserID,
		FundID: h.FundID,
		Shares: h.Shares,
		NAV:    nav,
	})
}
