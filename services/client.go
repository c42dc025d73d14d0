package services

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bellapacxx/bingo-live/utils/logger"
)

const (
	sendBuffer   = 32
	writeTimeout = 10 * time.Second
)

// wsSubscriber adapts one websocket connection to the Deliverer interface.
// Writes go through a buffered channel drained by the write pump; a closed
// or stalled connection reports ErrSubscriberGone so the hub prunes it.
// The mutex keeps Deliver's send and Close's close(send) mutually
// exclusive, otherwise a fanout racing a disconnect could hit the closed
// channel.
type wsSubscriber struct {
	connID   string
	conn     *websocket.Conn
	registry *ConnectionRegistry
	send     chan []byte
	mu       sync.Mutex
	closed   bool
}

func newWSSubscriber(connID string, conn *websocket.Conn, registry *ConnectionRegistry) *wsSubscriber {
	return &wsSubscriber{
		connID:   connID,
		conn:     conn,
		registry: registry,
		send:     make(chan []byte, sendBuffer),
	}
}

func (c *wsSubscriber) Deliver(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrSubscriberGone
	}
	select {
	case c.send <- payload:
		return nil
	default:
		// A client that cannot drain its buffer is treated as gone rather
		// than allowed to stall everyone else's fanout.
		return ErrSubscriberGone
	}
}

func (c *wsSubscriber) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	c.mu.Unlock()
	c.conn.Close()
}

// readPump discards inbound frames (commands arrive over REST) and tears
// the connection down on the first read error.
func (c *wsSubscriber) readPump() {
	defer c.registry.Unregister(c.connID)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Infof("connection %s closed", c.connID)
			} else {
				logger.Infof("connection %s read error: %v", c.connID, err)
			}
			return
		}
	}
}

func (c *wsSubscriber) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			logger.Infof("connection %s write error: %v", c.connID, err)
			c.registry.Unregister(c.connID)
			return
		}
	}
}
