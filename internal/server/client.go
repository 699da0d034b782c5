package server

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/voclara/roomkit/internal/signaling"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Send pings to peer with this period unless the server config says
	// otherwise. The pong deadline is derived from it.
	defaultPingPeriod = 54 * time.Second

	// Maximum message size allowed from peer. 64 KB covers relayed SDP.
	defaultReadLimit = 64 * 1024
)

// Client wraps a single websocket connection to one room participant.
type Client struct {
	Hub  *Hub
	Conn *websocket.Conn

	// RoomID and UserID are set once the client announces a join.
	RoomID string
	UserID string

	// ReadLimit and PingPeriod come from server config; zero values fall
	// back to the package defaults.
	ReadLimit  int64
	PingPeriod time.Duration

	// Send is the buffered outbound queue drained by WritePump.
	Send chan *signaling.Message
}

func (c *Client) readLimit() int64 {
	if c.ReadLimit > 0 {
		return c.ReadLimit
	}
	return defaultReadLimit
}

func (c *Client) pingPeriod() time.Duration {
	if c.PingPeriod > 0 {
		return c.PingPeriod
	}
	return defaultPingPeriod
}

// pongWait leaves slack for one late pong past the ping period.
func (c *Client) pongWait() time.Duration {
	return c.pingPeriod() * 10 / 9
}

// queue drops the message if the client's outbound buffer is full; a
// stalled participant must not block the hub loop.
func (c *Client) queue(msg *signaling.Message) {
	select {
	case c.Send <- msg:
	default:
		log.Warn().Str("user_id", c.UserID).Msg("outbound buffer full, dropping message")
	}
}

// ReadPump pumps messages from the websocket connection to the hub. The
// hub goroutine is the only place room state is touched; this goroutine
// only parses frames and forwards them.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.readLimit())
	c.Conn.SetReadDeadline(time.Now().Add(c.pongWait()))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.pongWait()))
		return nil
	})

	for {
		var msg signaling.Message
		if err := c.Conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Msg("websocket read error")
			}
			break
		}
		c.Hub.Inbound <- inbound{client: c, msg: &msg}
	}
}

// WritePump pumps messages from the hub to the websocket connection and
// keeps it alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.pingPeriod())

	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteJSON(msg); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
