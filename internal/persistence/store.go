// Package persistence snapshots engine state to SQLite. All writes funnel
// through a single-writer batch queue so concurrent updates to different
// instruments or users never clobber each other, and no per-user ledger lock
// is ever held across disk IO.
package persistence

import (
	"context"
	"encoding/json"
	"fmt"

	"venue-core/internal/ledger"
	"venue-core/internal/market"
	"venue-core/pkg/db"
)

// Store reads persisted snapshots back at startup.
type Store struct {
	db *db.Database
}

// NewStore wraps an opened database.
func NewStore(database *db.Database) *Store {
	return &Store{db: database}
}

// LoadInstruments returns every persisted instrument snapshot.
func (s *Store) LoadInstruments(ctx context.Context) ([]market.InstrumentSnapshot, error) {
	rows, err := s.db.DB.QueryContext(ctx, `SELECT symbol, price, history, last_update FROM instruments`)
	if err != nil {
		return nil, fmt.Errorf("query instruments: %w", err)
	}
	defer rows.Close()

	var out []market.InstrumentSnapshot
	for rows.Next() {
		var snap market.InstrumentSnapshot
		var historyJSON string
		if err := rows.Scan(&snap.Symbol, &snap.Price, &historyJSON, &snap.LastUpdate); err != nil {
			return nil, fmt.Errorf("scan instrument: %w", err)
		}
		if err := json.Unmarshal([]byte(historyJSON), &snap.History); err != nil {
			return nil, fmt.Errorf("decode history for %s: %w", snap.Symbol, err)
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

// LoadAccounts returns every persisted account snapshot.
func (s *Store) LoadAccounts(ctx context.Context) ([]ledger.Account, error) {
	rows, err := s.db.DB.QueryContext(ctx, `SELECT user_id, cash_balance, reserved_margin, updated_at FROM accounts`)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	defer rows.Close()

	var out []ledger.Account
	for rows.Next() {
		var a ledger.Account
		if err := rows.Scan(&a.UserID, &a.CashBalance, &a.ReservedMargin, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// instrumentUpsert builds the write op for one instrument snapshot.
func instrumentUpsert(snap market.InstrumentSnapshot) (WriteOp, error) {
	history, err := json.Marshal(snap.History)
	if err != nil {
		return WriteOp{}, fmt.Errorf("encode history for %s: %w", snap.Symbol, err)
	}
	return WriteOp{
		Query: `INSERT INTO instruments (symbol, price, history, last_update) VALUES (?, ?, ?, ?)
			ON CONFLICT(symbol) DO UPDATE SET price = excluded.price, history = excluded.history, last_update = excluded.last_update`,
		Args: []any{snap.Symbol, snap.Price, string(history), snap.LastUpdate},
	}, nil
}

// accountUpsert builds the write op for one account snapshot.
func accountUpsert(a ledger.Account) WriteOp {
	return WriteOp{
		Query: `INSERT INTO accounts (user_id, cash_balance, reserved_margin, updated_at) VALUES (?, ?, ?, ?)
			ON CONFLICT(user_id) DO UPDATE SET cash_balance = excluded.cash_balance, reserved_margin = excluded.reserved_margin, updated_at = excluded.updated_at`,
		Args: []any{a.UserID, a.CashBalance, a.ReservedMargin, a.UpdatedAt},
	}
}
