package gateway

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"venue-core/internal/events"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 128
)

// Session is one authenticated websocket connection. All writes go through
// the send channel so the write pump is the connection's only writer.
type Session struct {
	ID     string
	UserID string

	conn *websocket.Conn
	send chan []byte
	done chan struct{}

	mu     sync.Mutex
	unsubs map[events.Topic]func()
}

func newSession(id, userID string, conn *websocket.Conn) *Session {
	return &Session{
		ID:     id,
		UserID: userID,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
		unsubs: make(map[events.Topic]func()),
	}
}

// enqueue queues a frame for the write pump, dropping it if the session's
// buffer is full. A slow client loses frames rather than stalling the bus.
func (s *Session) enqueue(f Frame) {
	data, err := json.Marshal(f)
	if err != nil {
		log.Printf("gateway: marshal frame: %v", err)
		return
	}
	select {
	case s.send <- data:
	default:
	}
}

// subscribe attaches the session to a bus topic, starting a forwarding
// goroutine. Subscribing twice to the same topic is a no-op.
func (s *Session) subscribe(bus *events.Bus, topic events.Topic) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.unsubs[topic]; ok {
		return
	}
	ch, unsub := bus.Subscribe(topic, sendBuffer)
	s.unsubs[topic] = unsub
	go s.forward(ch)
}

// unsubscribe detaches the session from a bus topic.
func (s *Session) unsubscribe(topic events.Topic) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if unsub, ok := s.unsubs[topic]; ok {
		unsub()
		delete(s.unsubs, topic)
	}
}

func (s *Session) forward(ch <-chan any) {
	for msg := range ch {
		s.enqueue(eventFrame(msg))
	}
}

// eventFrame wraps a bus payload in its outbound frame type.
func eventFrame(msg any) Frame {
	switch msg.(type) {
	case events.MarketUpdate:
		return Frame{Type: "market_update", Data: msg}
	case events.TradeUpdate:
		return Frame{Type: "trade_update", Data: msg}
	case events.FundUpdate:
		return Frame{Type: "fund_update", Data: msg}
	default:
		return Frame{Type: "event", Data: msg}
	}
}

// close tears down every subscription and stops the write pump. Idempotent.
func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.done:
		return
	default:
	}
	for topic, unsub := range s.unsubs {
		unsub()
		delete(s.unsubs, topic)
	}
	close(s.done)
}

// writePump drains the send channel onto the connection and keeps the
// connection alive with periodic pings.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case <-s.done:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			s.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case data := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
