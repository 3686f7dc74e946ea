package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"messaging-client/internal/logging"
)

// Hub fans the latest engine state out to every connected client. New
// clients receive the most recent message as soon as they register.
type Hub struct {
	Register   chan *Client
	Unregister chan *Client

	logger  *zap.Logger
	now     func() time.Time
	clients map[string]*Client

	mu     sync.Mutex
	latest *Message
	notify chan struct{}
	done   chan struct{}
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		logger:     logging.OrNop(logger).Named("relay"),
		now:        time.Now,
		clients:    make(map[string]*Client),
		notify:     make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
}

// Publish replaces the latest message. Publishes that arrive faster than the
// hub can deliver them are coalesced; it never blocks.
func (h *Hub) Publish(msgType string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("relay publish: marshal payload: %w", err)
	}

	h.mu.Lock()
	h.latest = &Message{Type: msgType, Payload: raw, Timestamp: h.now().UnixMilli()}
	h.mu.Unlock()

	select {
	case h.notify <- struct{}{}:
	default:
	}
	return nil
}

func (h *Hub) Latest() *Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.latest
}

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Run serves registrations and deliveries until ctx is done, then
// disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	defer func() {
		for id, client := range h.clients {
			delete(h.clients, id)
			close(client.Message)
			decConnections()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("relay hub stopped")
			return

		case client := <-h.Register:
			h.clients[client.ID] = client
			incConnections()
			h.logger.Debug("client connected", zap.String("clientId", client.ID), zap.Int("clients", len(h.clients)))
			if msg := h.Latest(); msg != nil {
				h.deliver(client, msg)
			}

		case client := <-h.Unregister:
			if _, ok := h.clients[client.ID]; ok {
				delete(h.clients, client.ID)
				close(client.Message)
				decConnections()
				h.logger.Debug("client disconnected", zap.String("clientId", client.ID))
			}

		case <-h.notify:
			msg := h.Latest()
			if msg == nil {
				continue
			}
			delivered := 0
			for _, client := range h.clients {
				if h.deliver(client, msg) {
					delivered++
				}
			}
			if delivered > 0 {
				addDelivered(delivered)
			}
		}
	}
}

// deliver queues msg for client, dropping the client if its buffer is full.
func (h *Hub) deliver(client *Client, msg *Message) bool {
	select {
	case client.Message <- msg:
		return true
	default:
		h.logger.Warn("dropping slow client", zap.String("clientId", client.ID))
		delete(h.clients, client.ID)
		close(client.Message)
		decConnections()
		relayClientsDropped.Inc()
		return false
	}
}
