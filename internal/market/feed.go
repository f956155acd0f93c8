// Package market simulates the venue's price feed: a bounded random walk per
// instrument with a size-capped tick history.
package market

import (
	"context"
	"log"
	"math"
	"math/rand"
	"sync"
	"time"

	"venue-core/internal/errs"
	"venue-core/internal/events"
	"venue-core/pkg/catalog"
)

// priceFloor is the minimum simulated price; the walk never goes below it.
const priceFloor = 0.01

// Tick is one immutable price observation.
type Tick struct {
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
}

// InstrumentSnapshot is the persisted form of one instrument's state.
type InstrumentSnapshot struct {
	Symbol     string    `json:"symbol"`
	Price      float64   `json:"price"`
	History    []Tick    `json:"history"`
	LastUpdate time.Time `json:"lastUpdate"`
}

type instrument struct {
	symbol     string
	basePrice  float64
	volatility float64
	lastPrice  float64
	history    []Tick
	lastUpdate time.Time
}

// Feed owns all instrument price state. Advance is the sole writer; reads go
// through the same lock but ticks are immutable once appended.
type Feed struct {
	mu          sync.RWMutex
	instruments map[string]*instrument
	symbols     []string // stable iteration order
	historyCap  int
	bus         *events.Bus
	rng         *rand.Rand
}

// NewFeed seeds a feed from the instrument catalog.
func NewFeed(instruments []catalog.Instrument, historyCap int, bus *events.Bus) *Feed {
	if historyCap <= 0 {
		historyCap = 100
	}
	f := &Feed{
		instruments: make(map[string]*instrument, len(instruments)),
		historyCap:  historyCap,
		bus:         bus,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, ci := range instruments {
		f.instruments[ci.Symbol] = &instrument{
			symbol:     ci.Symbol,
			basePrice:  ci.BasePrice,
			volatility: ci.Volatility,
		}
		f.symbols = append(f.symbols, ci.Symbol)
	}
	return f
}

// Start runs Advance on a fixed period until the context is cancelled.
func (f *Feed) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				f.Advance()
			}
		}
	}()
}

// Advance draws one bounded random return per instrument, appends a tick and
// publishes a MarketUpdate. The first tick for a symbol seeds from the
// catalog base price.
func (f *Feed) Advance() {
	type update struct {
		topic events.Topic
		msg   events.MarketUpdate
	}
	var updates []update

	f.mu.Lock()
	now := time.Now()
	for _, sym := range f.symbols {
		inst := f.instruments[sym]
		prev := inst.lastPrice
		if prev == 0 {
			prev = inst.basePrice
		}

		r := (f.rng.Float64()*2 - 1) * inst.volatility
		price := math.Max(prev*(1+r), priceFloor)

		inst.lastPrice = price
		inst.lastUpdate = now
		inst.history = append(inst.history, Tick{Price: price, Timestamp: now})
		if len(inst.history) > f.historyCap {
			inst.history = inst.history[len(inst.history)-f.historyCap:]
		}

		updates = append(updates, update{
			topic: events.Market(sym),
			msg: events.MarketUpdate{
				Symbol:    sym,
				Price:     price,
				Change:    (price - prev) / prev,
				Timestamp: now,
			},
		})
	}
	f.mu.Unlock()

	if f.bus == nil {
		return
	}
	for _, u := range updates {
		f.bus.Publish(events.TopicMarketAll, u.msg)
		f.bus.Publish(u.topic, u.msg)
	}
}

// CurrentPrice returns the latest price for symbol, falling back to the
// catalog base price before the first tick.
func (f *Feed) CurrentPrice(symbol string) (float64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	inst, ok := f.instruments[symbol]
	if !ok {
		return 0, errs.NotFound("symbol", symbol)
	}
	if inst.lastPrice == 0 {
		return inst.basePrice, nil
	}
	return inst.lastPrice, nil
}

// History returns up to n most recent ticks for symbol (all if n <= 0).
func (f *Feed) History(symbol string, n int) ([]Tick, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	inst, ok := f.instruments[symbol]
	if !ok {
		return nil, errs.NotFound("symbol", symbol)
	}
	h := inst.history
	if n > 0 && len(h) > n {
		h = h[len(h)-n:]
	}
	out := make([]Tick, len(h))
	copy(out, h)
	return out, nil
}

// Symbols returns the catalog symbols in declaration order.
func (f *Feed) Symbols() []string {
	out := make([]string, len(f.symbols))
	copy(out, f.symbols)
	return out
}

// Snapshot returns the persisted form of one instrument.
func (f *Feed) Snapshot(symbol string) (InstrumentSnapshot, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	inst, ok := f.instruments[symbol]
	if !ok {
		return InstrumentSnapshot{}, false
	}
	return f.snapshotLocked(inst), true
}

// SnapshotAll returns snapshots for every instrument.
func (f *Feed) SnapshotAll() []InstrumentSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]InstrumentSnapshot, 0, len(f.symbols))
	for _, sym := range f.symbols {
		out = append(out, f.snapshotLocked(f.instruments[sym]))
	}
	return out
}

func (f *Feed) snapshotLocked(inst *instrument) InstrumentSnapshot {
	h := make([]Tick, len(inst.history))
	copy(h, inst.history)
	price := inst.lastPrice
	if price == 0 {
		price = inst.basePrice
	}
	return InstrumentSnapshot{
		Symbol:     inst.symbol,
		Price:      price,
		History:    h,
		LastUpdate: inst.lastUpdate,
	}
}

// Restore seeds prices and histories from persisted snapshots. Snapshots for
// symbols no longer in the catalog are skipped.
func (f *Feed) Restore(snaps []InstrumentSnapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range snaps {
		inst, ok := f.instruments[s.Symbol]
		if !ok {
			log.Printf("market: skipping snapshot for unknown symbol %s", s.Symbol)
			continue
		}
		if s.Price > 0 {
			inst.lastPrice = s.Price
		}
		if len(s.History) > f.historyCap {
			s.History = s.History[len(s.History)-f.historyCap:]
		}
		inst.history = append([]Tick(nil), s.History...)
		inst.lastUpdate = s.LastUpdate
	}
}
