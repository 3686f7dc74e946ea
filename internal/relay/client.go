package relay

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	pingInterval  = 30 * time.Second
	writeTimeout  = 10 * time.Second
	readLimit     = 4 * 1024
	clientBacklog = 16
)

type Client struct {
	Conn    *websocket.Conn
	Message chan *Message
	ID      string

	logger   *zap.Logger
	done     chan struct{}
	mu       sync.Mutex
	isClosed bool
}

func newClient(conn *websocket.Conn, id string, logger *zap.Logger) *Client {
	return &Client{
		Conn:    conn,
		Message: make(chan *Message, clientBacklog),
		ID:      id,
		logger:  logger.With(zap.String("clientId", id)),
		done:    make(chan struct{}),
	}
}

// write runs fn with the connection lock held and a fresh write deadline.
func (cl *Client) write(fn func() error) error {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if cl.isClosed {
		return websocket.ErrCloseSent
	}
	if err := cl.Conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return fn()
}

func (cl *Client) keepAlive() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-cl.done:
			return
		case <-ticker.C:
			if err := cl.write(func() error { return cl.Conn.WriteMessage(websocket.PingMessage, nil) }); err != nil {
				cl.logger.Debug("ping failed", zap.Error(err))
				return
			}
		}
	}
}

func (cl *Client) writeMessage() {
	defer func() {
		cl.mu.Lock()
		cl.isClosed = true
		cl.Conn.Close()
		cl.mu.Unlock()
	}()

	for {
		select {
		case <-cl.done:
			return
		case msg, ok := <-cl.Message:
			if !ok {
				_ = cl.write(func() error {
					return cl.Conn.WriteMessage(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				})
				return
			}
			if err := cl.write(func() error { return cl.Conn.WriteJSON(msg) }); err != nil {
				cl.logger.Warn("failed to write message", zap.Error(err))
				return
			}
		}
	}
}

// readMessage discards inbound frames; it only watches for the peer going
// away.
func (cl *Client) readMessage(hub *Hub) {
	defer func() {
		if r := recover(); r != nil {
			cl.logger.Error("recovered from panic in readMessage", zap.Any("panic", r))
		}
		close(cl.done)

		select {
		case hub.Unregister <- cl:
		case <-hub.Done():
		}
	}()

	cl.Conn.SetReadLimit(readLimit)
	for {
		if _, _, err := cl.Conn.ReadMessage(); err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) && (closeErr.Code == websocket.CloseNormalClosure ||
				closeErr.Code == websocket.CloseGoingAway ||
				closeErr.Code == websocket.CloseNoStatusReceived) {
				return
			}
			cl.logger.Debug("read failed", zap.Error(err))
			return
		}
	}
}
