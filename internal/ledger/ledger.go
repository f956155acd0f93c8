// Package ledger is the single source of truth for per-user cash and
// reserved margin. Every balance-affecting operation for a given user is
// serialized on that user's mutex; operations on different users run in
// parallel.
package ledger

import (
	"log"
	"sync"
	"time"

	"venue-core/internal/errs"
)

// Account is a point-in-time view of one user's balances.
type Account struct {
	UserID         string    `json:"userId"`
	CashBalance    float64   `json:"cashBalance"`
	ReservedMargin float64   `json:"reservedMargin"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

type userAccount struct {
	mu       sync.Mutex
	cash     float64
	reserved float64
	updated  time.Time
}

// Ledger holds all user accounts. New users are provisioned with the
// configured starting balance on first touch.
type Ledger struct {
	mu             sync.RWMutex
	accounts       map[string]*userAccount
	initialBalance float64
	onChange       func(Account) // fired after the user lock is released
}

// NewLedger creates a ledger seeding new accounts with initialBalance.
func NewLedger(initialBalance float64) *Ledger {
	return &Ledger{
		accounts:       make(map[string]*userAccount),
		initialBalance: initialBalance,
	}
}

// OnChange registers a callback invoked with an account snapshot after each
// mutation. The callback runs outside the per-user lock so it may enqueue
// persistence work without blocking the hot path.
func (l *Ledger) OnChange(fn func(Account)) {
	l.onChange = fn
}

func (l *Ledger) get(userID string) *userAccount {
	l.mu.RLock()
	acct, ok := l.accounts[userID]
	l.mu.RUnlock()
	if ok {
		return acct
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if acct, ok := l.accounts[userID]; ok {
		return acct
	}
	acct = &userAccount{cash: l.initialBalance, updated: time.Now()}
	l.accounts[userID] = acct
	log.Printf("ledger: provisioned account %s with balance %.2f", userID, l.initialBalance)
	return acct
}

// Update runs fn with an exclusive view of the user's account. fn must check
// its business rules before mutating the view; if it returns an error no
// state changes. A post-condition driving cash or reserved margin negative is
// an integrity fault and panics.
func (l *Ledger) Update(userID string, fn func(a *Account) error) (Account, error) {
	acct := l.get(userID)

	acct.mu.Lock()
	view := Account{
		UserID:         userID,
		CashBalance:    acct.cash,
		ReservedMargin: acct.reserved,
		UpdatedAt:      acct.updated,
	}
	if err := fn(&view); err != nil {
		acct.mu.Unlock()
		return Account{}, err
	}
	if view.CashBalance < 0 || view.ReservedMargin < 0 {
		acct.mu.Unlock()
		log.Panicf("ledger: invariant violated for user %s: cash=%.4f reserved=%.4f",
			userID, view.CashBalance, view.ReservedMargin)
	}
	acct.cash = view.CashBalance
	acct.reserved = view.ReservedMargin
	acct.updated = time.Now()
	view.UpdatedAt = acct.updated
	acct.mu.Unlock()

	if l.onChange != nil {
		l.onChange(view)
	}
	return view, nil
}

// Account returns a snapshot of the user's balances, provisioning on first
// touch.
func (l *Ledger) Account(userID string) Account {
	acct := l.get(userID)
	acct.mu.Lock()
	defer acct.mu.Unlock()
	return Account{
		UserID:         userID,
		CashBalance:    acct.cash,
		ReservedMargin: acct.reserved,
		UpdatedAt:      acct.updated,
	}
}

// Credit adds amount to the user's cash balance.
func (l *Ledger) Credit(userID string, amount float64) (Account, error) {
	if amount < 0 {
		return Account{}, errs.Validation("credit amount must be non-negative, got %v", amount)
	}
	return l.Update(userID, func(a *Account) error {
		a.CashBalance += amount
		return nil
	})
}

// Debit removes amount from the user's cash balance, rejecting overdrafts
// before any mutation.
func (l *Ledger) Debit(userID string, amount float64) (Account, error) {
	if amount < 0 {
		return Account{}, errs.Validation("debit amount must be non-negative, got %v", amount)
	}
	return l.Update(userID, func(a *Account) error {
		if a.CashBalance < amount {
			return &errs.InsufficientBalanceError{UserID: userID, Need: amount, Have: a.CashBalance}
		}
		a.CashBalance -= amount
		return nil
	})
}

// Reserve moves amount from cash into reserved margin.
func (l *Ledger) Reserve(userID string, amount float64) (Account, error) {
	if amount < 0 {
		return Account{}, errs.Validation("reserve amount must be non-negative, got %v", amount)
	}
	return l.Update(userID, func(a *Account) error {
		if a.CashBalance < amount {
			return &errs.InsufficientMarginError{UserID: userID, Need: amount, Have: a.CashBalance}
		}
		a.CashBalance -= amount
		a.ReservedMargin += amount
		return nil
	})
}

// Release returns amount from reserved margin to cash.
func (l *Ledger) Release(userID string, amount float64) (Account, error) {
	if amount < 0 {
		return Account{}, errs.Validation("release amount must be non-negative, got %v", amount)
	}
	return l.Update(userID, func(a *Account) error {
		if a.ReservedMargin < amount {
			return errs.Validation("release %.2f exceeds reserved margin %.2f", amount, a.ReservedMargin)
		}
		a.ReservedMargin -= amount
		a.CashBalance += amount
		return nil
	})
}

// Restore seeds accounts from persisted snapshots. Existing in-memory state
// for a user is replaced.
func (l *Ledger) Restore(accounts []Account) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, a := range accounts {
		l.accounts[a.UserID] = &userAccount{
			cash:     a.CashBalance,
			reserved: a.ReservedMargin,
			updated:  a.UpdatedAt,
		}
	}
}

// Accounts returns snapshots for every known user.
func (l *Ledger) Accounts() []Account {
	l.mu.RLock()
	ids := make([]string, 0, len(l.accounts))
	for id := range l.accounts {
		ids = append(ids, id)
	}
	l.mu.RUnlock()

	out := make([]Account, 0, len(ids))
	for _, id := range ids {
		out = append(out, l.Account(id))
	}
	return out
}
