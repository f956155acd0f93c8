package engine

import (
	"time"

	"venue-core/internal/market"
)

// MarketData is one instrument's current quote plus recent history.
type MarketData struct {
	Symbol     string        `json:"symbol"`
	Price      float64       `json:"price"`
	History    []market.Tick `json:"history"`
	LastUpdate time.Time     `json:"last_update"`
}

// BinaryStrategyInfo describes a placeable binary option strategy.
type BinaryStrategyInfo struct {
	ID              string  `json:"id"`
	Symbol          string  `json:"symbol"`
	DurationSeconds int     `json:"duration_seconds"`
	PayoutRatio     float64 `json:"payout_ratio"`
	MinStake        float64 `json:"min_stake"`
	MaxStake        float64 `json:"max_stake"`
}

// SystemStatus represents the venue runtime status.
type SystemStatus struct {
	Venue      string    `json:"venue"`
	Symbols    []string  `json:"symbols"`
	Version    string    `json:"version"`
	ServerTime time.Time `json:"server_time"`
}
