// Package gateway relays engine events to authenticated websocket sessions
// and routes inbound order requests to the engines. It holds no trading
// state, only the session registry.
package gateway

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"venue-core/internal/binary"
	"venue-core/internal/contract"
	"venue-core/internal/engine"
	"venue-core/internal/errs"
	"venue-core/internal/events"
)

// authTimeout bounds how long an unauthenticated connection may sit idle
// before the first message.
const authTimeout = 10 * time.Second

// Authenticator verifies a session token and resolves the user behind it.
type Authenticator interface {
	Authenticate(token string) (userID string, err error)
}

// Request is one inbound client message.
type Request struct {
	Type  string `json:"type"`
	ID    string `json:"id,omitempty"`
	Token string `json:"token,omitempty"`

	// place_trade routing
	Family     string  `json:"family,omitempty"` // "contract" or "binary"
	Symbol     string  `json:"symbol,omitempty"`
	Direction  string  `json:"direction,omitempty"`
	Quantity   float64 `json:"quantity,omitempty"`
	Leverage   float64 `json:"leverage,omitempty"`
	StopLoss   float64 `json:"stop_loss,omitempty"`
	TakeProfit float64 `json:"take_profit,omitempty"`
	StrategyID string  `json:"strategy_id,omitempty"`
	Stake      float64 `json:"stake,omitempty"`
	OrderID    string  `json:"order_id,omitempty"`

	// fund operations
	FundID string  `json:"fund_id,omitempty"`
	Amount float64 `json:"amount,omitempty"`
	Shares float64 `json:"shares,omitempty"`
}

// Frame is one outbound message.
type Frame struct {
	Type    string `json:"type"`
	ID      string `json:"id,omitempty"`
	Data    any    `json:"data,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// Gateway owns the websocket session registry.
type Gateway struct {
	svc  engine.Service
	bus  *events.Bus
	auth Authenticator

	mu       sync.RWMutex
	sessions map[string]*Session
}

// New creates a gateway.
func New(svc engine.Service, bus *events.Bus, auth Authenticator) *Gateway {
	return &Gateway{
		svc:      svc,
		bus:      bus,
		auth:     auth,
		sessions: make(map[string]*Session),
	}
}

// SessionCount returns the number of live sessions.
func (g *Gateway) SessionCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.sessions)
}

// HandleConn runs one connection to completion: authenticate, register,
// relay, then tear down. The first message must be an auth frame.
func (g *Gateway) HandleConn(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(authTimeout))

	var first Request
	if err := conn.ReadJSON(&first); err != nil {
		return
	}
	if first.Type != "auth" {
		writeDirect(conn, Frame{Type: "error", ID: first.ID, Code: "auth_required", Message: "first message must be auth"})
		return
	}
	userID, err := g.auth.Authenticate(first.Token)
	if err != nil {
		writeDirect(conn, Frame{Type: "error", ID: first.ID, Code: "auth_failed", Message: "invalid token"})
		return
	}

	sess := newSession(uuid.NewString(), userID, conn)
	g.register(sess)
	defer g.unregister(sess)

	go sess.writePump()

	// Every session gets the market firehose plus its own fill and fund
	// streams.
	sess.subscribe(g.bus, events.TopicMarketAll)
	sess.subscribe(g.bus, events.UserFills(userID))
	sess.subscribe(g.bus, events.UserFunds(userID))

	sess.enqueue(Frame{Type: "auth_ok", ID: first.ID, Data: map[string]string{"user_id": userID, "session_id": sess.ID}})
	log.Printf("gateway: session %s opened for user %s", sess.ID, userID)

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var req Request
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("gateway: session %s read error: %v", sess.ID, err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		switch req.Type {
		case "subscribe":
			sess.subscribe(g.bus, events.Market(req.Symbol))
			sess.enqueue(Frame{Type: "subscribed", ID: req.ID, Data: map[string]string{"symbol": req.Symbol}})
		case "unsubscribe":
			sess.unsubscribe(events.Market(req.Symbol))
			sess.enqueue(Frame{Type: "unsubscribed", ID: req.ID, Data: map[string]string{"symbol": req.Symbol}})
		case "ping":
			sess.enqueue(Frame{Type: "pong", ID: req.ID})
		default:
			sess.enqueue(g.HandleRequest(ctx, userID, req))
		}
	}
}

// HandleRequest routes one order request to the engine matching its
// instrument family and returns the result frame. Exposed without a
// connection so the routing logic is testable in isolation.
func (g *Gateway) HandleRequest(ctx context.Context, userID string, req Request) Frame {
	switch req.Type {
	case "place_trade":
		return g.placeTrade(ctx, userID, req)
	case "close_trade":
		o, err := g.svc.CloseContractPosition(ctx, userID, req.OrderID)
		if err != nil {
			return errorFrame(req.ID, err)
		}
		return Frame{Type: "result", ID: req.ID, Data: o}
	case "fund_subscribe":
		h, err := g.svc.SubscribeFund(ctx, userID, req.FundID, req.Amount)
		if err != nil {
			return errorFrame(req.ID, err)
		}
		return Frame{Type: "result", ID: req.ID, Data: h}
	case "fund_redeem":
		proceeds, err := g.svc.RedeemFund(ctx, userID, req.FundID, req.Shares)
		if err != nil {
			return errorFrame(req.ID, err)
		}
		return Frame{Type: "result", ID: req.ID, Data: map[string]float64{"proceeds": proceeds}}
	case "portfolio":
		return Frame{Type: "result", ID: req.ID, Data: g.svc.GetUserPortfolio(ctx, userID)}
	default:
		return Frame{Type: "error", ID: req.ID, Code: "unknown_type", Message: "unknown request type " + req.Type}
	}
}

func (g *Gateway) placeTrade(ctx context.Context, userID string, req Request) Frame {
	switch req.Family {
	case "contract":
		o, err := g.svc.PlaceContractOrder(ctx, contract.OpenRequest{
			UserID:     userID,
			Symbol:     req.Symbol,
			Direction:  contract.Direction(req.Direction),
			Quantity:   req.Quantity,
			Leverage:   req.Leverage,
			StopLoss:   req.StopLoss,
			TakeProfit: req.TakeProfit,
		})
		if err != nil {
			return errorFrame(req.ID, err)
		}
		return Frame{Type: "result", ID: req.ID, Data: o}
	case "binary":
		o, err := g.svc.PlaceBinaryOrder(ctx, userID, req.StrategyID, binary.Direction(req.Direction), req.Stake)
		if err != nil {
			return errorFrame(req.ID, err)
		}
		return Frame{Type: "result", ID: req.ID, Data: o}
	default:
		return Frame{Type: "error", ID: req.ID, Code: "validation", Message: "family must be contract or binary"}
	}
}

func (g *Gateway) register(s *Session) {
	g.mu.Lock()
	g.sessions[s.ID] = s
	g.mu.Unlock()
}

func (g *Gateway) unregister(s *Session) {
	g.mu.Lock()
	delete(g.sessions, s.ID)
	g.mu.Unlock()
	s.close()
	log.Printf("gateway: session %s closed", s.ID)
}

// Close tears down every live session.
func (g *Gateway) Close() {
	g.mu.Lock()
	sessions := make([]*Session, 0, len(g.sessions))
	for _, s := range g.sessions {
		sessions = append(sessions, s)
	}
	g.sessions = make(map[string]*Session)
	g.mu.Unlock()

	for _, s := range sessions {
		s.close()
	}
}

// errorFrame maps an engine error to its outbound code.
func errorFrame(id string, err error) Frame {
	return Frame{Type: "error", ID: id, Code: errCode(err), Message: err.Error()}
}

func errCode(err error) string {
	var (
		ve *errs.ValidationError
		nf *errs.NotFoundError
		ib *errs.InsufficientBalanceError
		im *errs.InsufficientMarginError
		is *errs.InvalidStateError
	)
	switch {
	case errors.As(err, &ve):
		return "validation"
	case errors.As(err, &nf):
		return "not_found"
	case errors.As(err, &ib):
		return "insufficient_balance"
	case errors.As(err, &im):
		return "insufficient_margin"
	case errors.As(err, &is):
		return "invalid_state"
	default:
		return "internal"
	}
}

// writeDirect writes a frame on a connection that has no write pump yet.
func writeDirect(conn *websocket.Conn, f Frame) {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = conn.WriteJSON(f)
}
