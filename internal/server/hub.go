package server

import (
	"context"
	"encoding/json"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/wardenhq/warden/internal/errors"
	"github.com/wardenhq/warden/internal/logging"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Subscribers only listen; anything bigger is a protocol abuse.
	maxInboundMessageSize = 512

	// Per-subscriber send buffer. A subscriber that falls this far
	// behind is dropped rather than allowed to stall the hub.
	sendBufferSize = 64
)

type subscriber struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// connectedEvent is the first frame every subscriber receives.
type connectedEvent struct {
	Type         string `json:"type"`
	SubscriberID string `json:"subscriberId"`
}

type registration struct {
	sub   *subscriber
	reply chan error
}

// Hub fans broadcast payloads out to stream subscribers. Registration
// is capped; a slow or failed subscriber is dropped without affecting
// the rest.
type Hub struct {
	max    int
	logger logging.Logger

	register    chan registration
	unregister  chan *subscriber
	broadcast   chan []byte
	countReq    chan chan int
	subscribers map[string]*subscriber

	done chan struct{}
}

// NewHub creates a hub admitting at most max concurrent subscribers.
func NewHub(max int, logger logging.Logger) *Hub {
	if max < 1 {
		max = 1
	}

	return &Hub{
		max:         max,
		logger:      logger,
		register:    make(chan registration),
		unregister:  make(chan *subscriber),
		broadcast:   make(chan []byte, 64),
		countReq:    make(chan chan int),
		subscribers: make(map[string]*subscriber),
		done:        make(chan struct{}),
	}
}

// Run owns the subscriber table until ctx is canceled. All
// registration, removal and fan-out happens on this goroutine.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			for _, sub := range h.subscribers {
				close(sub.send)
				sub.conn.Close(websocket.StatusGoingAway, "shutting down")
			}
			h.subscribers = make(map[string]*subscriber)
			return

		case reg := <-h.register:
			// Capacity is enforced here, atomically with admission.
			if len(h.subscribers) >= h.max {
				reg.reply <- errors.NewTransportError(errors.CodeStreamCapacity,
					"stream subscriber limit reached", nil)
				continue
			}
			h.subscribers[reg.sub.id] = reg.sub
			reg.reply <- nil
			if h.logger != nil {
				h.logger.Debug(ctx, "stream subscriber registered",
					"subscriber", reg.sub.id, "total", len(h.subscribers))
			}

		case sub := <-h.unregister:
			h.drop(ctx, sub.id, websocket.StatusNormalClosure, "")

		case message := <-h.broadcast:
			for id, sub := range h.subscribers {
				select {
				case sub.send <- message:
				default:
					// Buffer full: this subscriber is too slow.
					h.drop(ctx, id, websocket.StatusPolicyViolation, "subscriber too slow")
				}
			}

		case reply := <-h.countReq:
			reply <- len(h.subscribers)
		}
	}
}

func (h *Hub) drop(ctx context.Context, id string, status websocket.StatusCode, reason string) {
	sub, ok := h.subscribers[id]
	if !ok {
		return
	}
	delete(h.subscribers, id)
	close(sub.send)
	sub.conn.Close(status, reason)

	if h.logger != nil {
		h.logger.Debug(ctx, "stream subscriber removed",
			"subscriber", id, "total", len(h.subscribers))
	}
}

// Subscribe admits a new connection, or reports a transport error when
// the hub is at capacity or stopped. The identification frame is queued
// before the subscriber is visible to broadcasts, so every subscriber
// sees it ahead of any fanned-out event.
func (h *Hub) Subscribe(conn *websocket.Conn) (*subscriber, error) {
	sub := &subscriber{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}
	frame, _ := json.Marshal(connectedEvent{Type: "connected", SubscriberID: sub.id})
	sub.send <- frame

	reg := registration{sub: sub, reply: make(chan error, 1)}

	select {
	case h.register <- reg:
		if err := <-reg.reply; err != nil {
			return nil, err
		}
		return sub, nil
	case <-h.done:
		return nil, errors.NewTransportError(errors.CodeStreamCapacity, "stream hub stopped", nil)
	}
}

// Unsubscribe removes a subscriber; safe to call after the hub dropped
// it already.
func (h *Hub) Unsubscribe(sub *subscriber) {
	select {
	case h.unregister <- sub:
	case <-h.done:
	}
}

// Count reports the current subscriber total.
func (h *Hub) Count() int {
	reply := make(chan int, 1)
	select {
	case h.countReq <- reply:
		return <-reply
	case <-h.done:
		return 0
	}
}

// Broadcast encodes payload as JSON and fans it out. Payloads that do
// not fit the queue are dropped; the stream is advisory, not durable.
func (h *Hub) Broadcast(payload any) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		if h.logger != nil {
			h.logger.Warn(context.Background(), err, "drop unencodable broadcast")
		}
		return
	}

	select {
	case h.broadcast <- encoded:
	default:
	}
}
