package websocket

import (
	"sync"
	"time"

	"collab-service/internal/events"
	"collab-service/internal/metrics"
	"collab-service/internal/room"
	"collab-service/pkg/logger"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024

	// Sustained limiter violations past this count terminate the connection.
	maxRateViolations = 1000
)

// Client is one participant's connection: a read pump feeding decoded events
// into the room and a write pump draining the bounded send channel.
type Client struct {
	conn      *websocket.Conn
	send      chan []byte
	userID    string
	sessionID string
	roomID    string
	room      *room.Room
	limiter   *rate.Limiter
	closeOnce sync.Once
}

func NewClient(conn *websocket.Conn, userID string, inboundRate, inboundBurst int) *Client {
	return &Client{
		conn:    conn,
		send:    make(chan []byte, 256),
		userID:  userID,
		limiter: rate.NewLimiter(rate.Limit(inboundRate), inboundBurst),
	}
}

// Bind attaches the client to its room after a successful join.
func (c *Client) Bind(rm *room.Room, sessionID string) {
	c.room = rm
	c.roomID = rm.ID()
	c.sessionID = sessionID
}

// Send enqueues a message for delivery. A slow client with a full buffer
// drops the message; the next presence update resyncs it.
func (c *Client) Send(data []byte) error {
	select {
	case c.send <- data:
		return nil
	default:
		return errTransientDispatch
	}
}

// Close terminates the connection. Safe to call multiple times.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "room closed"),
			time.Now().Add(writeWait))
		_ = c.conn.Close()
	})
}

var _ room.Sender = (*Client)(nil)

func (c *Client) ReadPump() {
	defer func() {
		c.room.Disconnect(c.userID, c.sessionID)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	rateViolations := 0

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Error("WebSocket error for user %s: %v", c.userID, err)
			}
			break
		}

		if !c.limiter.Allow() {
			rateViolations++
			if rateViolations%100 == 1 {
				logger.Warn("Rate limit exceeded for user %s in room %s (violation #%d)", c.userID, c.roomID, rateViolations)
			}
			if rateViolations > maxRateViolations {
				logger.Warn("Disconnecting user %s for excessive rate limit violations", c.userID)
				return
			}
			continue
		}

		ev, err := events.Decode(message)
		if err != nil {
			// Malformed events are rejected locally and never broadcast.
			metrics.ValidationErrorsTotal.Inc()
			logger.Debug("Invalid event from user %s: %v", c.userID, err)
			ack := events.InvalidAck(err.Error())
			if data, merr := events.Marshal(events.TypeError, ack); merr == nil {
				_ = c.Send(data)
			}
			continue
		}

		if ev.Type == events.TypeLeaveRoom {
			c.room.Leave(c.userID)
			return
		}

		c.room.HandleEvent(c.userID, c.sessionID, ev)
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
