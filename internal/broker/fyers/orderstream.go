package fyers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"orderbridge/internal/model"
)

const orderStreamURL = "wss://socket.fyers.in/trade/v3"

// Orderbook status codes carried on the stream.
const (
	streamStatusCancelled = 1
	streamStatusFilled    = 2
	streamStatusRejected  = 5
)

// OrderUpdate is one order event from the stream, reduced to what the
// executor cares about.
type OrderUpdate struct {
	Key     string // "EXCH:SYMBOL"
	OrderID string
	Status  model.OrderStatus
}

// OrderStream follows the broker's order-update websocket so rejections
// and fills observed out-of-band can flag instruments for
// reconciliation before their next decision.
type OrderStream struct {
	session *Session

	// OnUpdate receives every terminal order event.
	OnUpdate func(OrderUpdate)
	// OnReconnect fires after a dropped connection is reestablished.
	OnReconnect func()
}

func NewOrderStream(session *Session) *OrderStream {
	return &OrderStream{session: session}
}

// Run connects and reads until ctx is cancelled, redialling with a
// fixed backoff on any failure.
func (s *OrderStream) Run(ctx context.Context) {
	const backoff = 5 * time.Second
	first := true
	for {
		if ctx.Err() != nil {
			return
		}
		if err := s.connectAndRead(ctx); err != nil && ctx.Err() == nil {
			log.Printf("[fyers] order stream: %v, redialling in %s", err, backoff)
		}
		if !first && s.OnReconnect != nil {
			s.OnReconnect()
		}
		first = false

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
	}
}

func (s *OrderStream) connectAndRead(ctx context.Context) error {
	token, err := s.session.Token(ctx)
	if err != nil {
		return fmt.Errorf("token: %w", err)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	header := map[string][]string{
		"Authorization": {s.session.creds.AppID + ":" + token},
	}
	conn, _, err := dialer.DialContext(ctx, orderStreamURL, header)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()
	log.Println("[fyers] order stream connected")

	sub := map[string]any{"T": "SUB_ORD", "SLIST": []string{"orderUpdate"}, "SUB_T": 1}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	// Close the socket when ctx ends so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		s.handle(raw)
	}
}

func (s *OrderStream) handle(raw []byte) {
	var msg struct {
		Orders struct {
			ID     string `json:"id"`
			Symbol string `json:"symbol"`
			Status int    `json:"status"`
		} `json:"orders"`
	}
	if err := json.Unmarshal(raw, &msg); err != nil || msg.Orders.Symbol == "" {
		return
	}

	var status model.OrderStatus
	switch msg.Orders.Status {
	case streamStatusFilled:
		status = model.StatusAccepted
	case streamStatusRejected, streamStatusCancelled:
		status = model.StatusRejected
	default:
		return
	}

	if s.OnUpdate != nil {
		s.OnUpdate(OrderUpdate{
			Key:     msg.Orders.Symbol,
			OrderID: msg.Orders.ID,
			Status:  status,
		})
	}
}
