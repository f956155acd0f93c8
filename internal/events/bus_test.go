package events

import (
	"testing"
	"time"
)

func TestSubscribePublish(t *testing.T) {
	bus := NewBus()
	ch, unsub := bus.Subscribe(Market("BTCUSD"), 4)
	defer unsub()

	want := MarketUpdate{Symbol: "BTCUSD", Price: 45000}
	bus.Publish(Market("BTCUSD"), want)

	select {
	case msg := <-ch:
		got, ok := msg.(MarketUpdate)
		if !ok {
			t.Fatalf("payload type = %T, expected MarketUpdate", msg)
		}
		if got.Symbol != want.Symbol || got.Price != want.Price {
			t.Fatalf("got %+v, expected %+v", got, want)
		}
	case <-time.After(time.Second):
		t.Fatal("no message received")
	}
}

func TestPublishDoesNotCrossTopics(t *testing.T) {
	bus := NewBus()
	btc, unsubBTC := bus.Subscribe(Market("BTCUSD"), 1)
	defer unsubBTC()
	eth, unsubETH := bus.Subscribe(Market("ETHUSD"), 1)
	defer unsubETH()

	bus.Publish(Market("BTCUSD"), MarketUpdate{Symbol: "BTCUSD"})

	select {
	case <-eth:
		t.Fatal("ETHUSD subscriber received a BTCUSD message")
	case <-time.After(50 * time.Millisecond):
	}
	select {
	case <-btc:
	case <-time.After(time.Second):
		t.Fatal("BTCUSD subscriber received nothing")
	}
}

func TestPublishDropsWhenSubscriberFull(t *testing.T) {
	bus := NewBus()
	ch, unsub := bus.Subscribe(TopicTradeAll, 1)
	defer unsub()

	// Second publish must not block even though the buffer is full.
	done := make(chan struct{})
	go func() {
		bus.Publish(TopicTradeAll, TradeUpdate{OrderID: "a"})
		bus.Publish(TopicTradeAll, TradeUpdate{OrderID: "b"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}

	got := (<-ch).(TradeUpdate)
	if got.OrderID != "a" {
		t.Fatalf("kept message = %s, expected a", got.OrderID)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus()
	ch, unsub := bus.Subscribe(TopicMarketAll, 1)
	unsub()

	if _, open := <-ch; open {
		t.Fatal("channel still open after unsubscribe")
	}

	// Publishing after unsubscribe must be a no-op, not a panic.
	bus.Publish(TopicMarketAll, MarketUpdate{Symbol: "BTCUSD"})
}

func TestUserTopicNames(t *testing.T) {
	tests := []struct {
		name string
		got  Topic
		want Topic
	}{
		{"market", Market("BTCUSD"), "market.BTCUSD"},
		{"fills", UserFills("u1"), "user.u1.fills"},
		{"funds", UserFunds("u1"), "user.u1.funds"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Fatalf("topic = %q, expected %q", tt.got, tt.want)
			}
		})
	}
}
