package hub

import (
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 64
)

// Client is one WebSocket connection. Send is never closed; the hub
// signals shutdown through done so that concurrent senders (read pump,
// welcome snapshot) can never hit a closed channel.
type Client struct {
	ID   string
	Send chan []byte

	hub      *Hub
	conn     *websocket.Conn
	done     chan struct{}
	mutedAll bool
}

// NewClient wraps an upgraded connection. The caller registers it on the
// hub and starts both pumps.
func NewClient(h *Hub, conn *websocket.Conn, id string) *Client {
	return &Client{
		ID:   id,
		Send: make(chan []byte, sendBufferSize),
		hub:  h,
		conn: conn,
		done: make(chan struct{}),
	}
}

// TrySend offers a payload to the write pump without blocking. It reports
// false when the client has been dropped or its buffer is full.
func (c *Client) TrySend(payload []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.Send <- payload:
		return true
	default:
		return false
	}
}

// clientCommand is what observers send us: topic management and pings.
type clientCommand struct {
	Type   string   `json:"type"`
	Topic  string   `json:"topic"`
	Topics []string `json:"topics"`
}

// ReadPump consumes client commands until the connection drops, then
// unregisters the client.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[Hub] client %s read error: %v", c.ID, err)
			}
			return
		}

		var cmd clientCommand
		if err := json.Unmarshal(raw, &cmd); err != nil {
			continue
		}
		c.handleCommand(cmd)
	}
}

func (c *Client) handleCommand(cmd clientCommand) {
	topics := cmd.Topics
	if cmd.Topic != "" {
		topics = append(topics, cmd.Topic)
	}

	switch cmd.Type {
	case "subscribe":
		for _, topic := range topics {
			c.hub.Subscribe(c, topic)
		}
	case "unsubscribe":
		for _, topic := range topics {
			c.hub.Unsubscribe(c, topic)
		}
	case "ping":
		payload, _ := json.Marshal(map[string]interface{}{"type": "pong"})
		c.TrySend(payload)
	}
}

// WritePump flushes the send channel to the connection and keeps it alive
// with periodic pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload := <-c.Send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
