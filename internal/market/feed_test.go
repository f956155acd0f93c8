package market

import (
	"errors"
	"testing"
	"time"

	"venue-core/internal/errs"
	"venue-core/internal/events"
	"venue-core/pkg/catalog"
)

func testInstruments() []catalog.Instrument {
	return []catalog.Instrument{
		{Symbol: "BTCUSD", BasePrice: 45000, Volatility: 0.01},
		{Symbol: "EURUSD", BasePrice: 1.08, Volatility: 0.002},
	}
}

func TestCurrentPriceSeedsFromBasePrice(t *testing.T) {
	feed := NewFeed(testInstruments(), 100, nil)

	price, err := feed.CurrentPrice("BTCUSD")
	if err != nil {
		t.Fatalf("CurrentPrice returned error: %v", err)
	}
	if price != 45000 {
		t.Fatalf("price before first tick = %v, expected base price 45000", price)
	}
}

func TestCurrentPriceUnknownSymbol(t *testing.T) {
	feed := NewFeed(testInstruments(), 100, nil)

	_, err := feed.CurrentPrice("DOGEUSD")
	var nf *errs.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("error = %v, expected NotFoundError", err)
	}
}

func TestAdvanceNeverBelowFloor(t *testing.T) {
	// Extreme volatility forces the walk toward zero quickly.
	feed := NewFeed([]catalog.Instrument{
		{Symbol: "CRASH", BasePrice: 0.02, Volatility: 0.99},
	}, 100, nil)

	for i := 0; i < 500; i++ {
		feed.Advance()
		price, err := feed.CurrentPrice("CRASH")
		if err != nil {
			t.Fatalf("CurrentPrice returned error: %v", err)
		}
		if price < 0.01 {
			t.Fatalf("price %v fell below floor 0.01 on tick %d", price, i)
		}
	}
}

func TestHistoryCapped(t *testing.T) {
	histCap := 10
	feed := NewFeed(testInstruments(), histCap, nil)

	for i := 0; i < 3*histCap; i++ {
		feed.Advance()
	}

	h, err := feed.History("BTCUSD", 0)
	if err != nil {
		t.Fatalf("History returned error: %v", err)
	}
	if len(h) != histCap {
		t.Fatalf("history length = %d, expected cap %d", len(h), histCap)
	}
	for i := 1; i < len(h); i++ {
		if h[i].Timestamp.Before(h[i-1].Timestamp) {
			t.Fatalf("history out of order at index %d", i)
		}
	}
}

func TestHistoryLimit(t *testing.T) {
	feed := NewFeed(testInstruments(), 100, nil)
	for i := 0; i < 20; i++ {
		feed.Advance()
	}

	h, err := feed.History("BTCUSD", 5)
	if err != nil {
		t.Fatalf("History returned error: %v", err)
	}
	if len(h) != 5 {
		t.Fatalf("limited history length = %d, expected 5", len(h))
	}
}

func TestAdvancePublishesUpdates(t *testing.T) {
	bus := events.NewBus()
	feed := NewFeed(testInstruments(), 100, bus)

	all, unsubAll := bus.Subscribe(events.TopicMarketAll, 16)
	defer unsubAll()
	btc, unsubBTC := bus.Subscribe(events.Market("BTCUSD"), 16)
	defer unsubBTC()

	feed.Advance()

	deadline := time.After(time.Second)
	seen := 0
	for seen < 2 {
		select {
		case <-all:
			seen++
		case <-deadline:
			t.Fatalf("firehose received %d updates, expected 2", seen)
		}
	}

	select {
	case msg := <-btc:
		update := msg.(events.MarketUpdate)
		if update.Symbol != "BTCUSD" {
			t.Fatalf("per-symbol topic carried %s", update.Symbol)
		}
		if update.Price < 0.01 {
			t.Fatalf("published price %v below floor", update.Price)
		}
	case <-time.After(time.Second):
		t.Fatal("no per-symbol update received")
	}
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	feed := NewFeed(testInstruments(), 100, nil)
	for i := 0; i < 7; i++ {
		feed.Advance()
	}

	snaps := feed.SnapshotAll()
	if len(snaps) != 2 {
		t.Fatalf("snapshot count = %d, expected 2", len(snaps))
	}

	restored := NewFeed(testInstruments(), 100, nil)
	restored.Restore(snaps)

	for _, s := range snaps {
		price, err := restored.CurrentPrice(s.Symbol)
		if err != nil {
			t.Fatalf("CurrentPrice(%s) returned error: %v", s.Symbol, err)
		}
		if price != s.Price {
			t.Fatalf("restored price for %s = %v, expected %v", s.Symbol, price, s.Price)
		}
		h, err := restored.History(s.Symbol, 0)
		if err != nil {
			t.Fatalf("History(%s) returned error: %v", s.Symbol, err)
		}
		if len(h) != len(s.History) {
			t.Fatalf("restored history length for %s = %d, expected %d", s.Symbol, len(h), len(s.History))
		}
	}
}

func TestRestoreSkipsUnknownSymbols(t *testing.T) {
	feed := NewFeed(testInstruments(), 100, nil)
	feed.Restore([]InstrumentSnapshot{{Symbol: "GONE", Price: 12}})

	if _, err := feed.CurrentPrice("GONE"); err == nil {
		t.Fatal("snapshot for unknown symbol was adopted")
	}
}
