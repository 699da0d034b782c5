package signaling

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voclara/roomkit/internal/netutil"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// ErrUnauthorized is returned by Dial when the server refuses the upgrade
// because the bearer credential is missing or rejected.
var ErrUnauthorized = errors.New("signaling server rejected credentials")

// Client manages the websocket connection to the signaling server for one
// room session. It owns the read and write pumps; callers interact only
// through Send and Incoming.
type Client struct {
	serverURL string
	conn      *websocket.Conn
	incoming  chan *Message
	outgoing  chan *Message
	done      chan struct{}

	mu     sync.Mutex
	closed bool
}

func NewClient(serverURL string) *Client {
	return &Client{
		serverURL: serverURL,
		incoming:  make(chan *Message, 32),
		outgoing:  make(chan *Message, 32),
		done:      make(chan struct{}),
	}
}

// Dial establishes the websocket connection. The bearer credential travels
// in the upgrade request header; a 401 or 403 response maps to
// ErrUnauthorized.
func (c *Client) Dial(ctx context.Context, header http.Header) error {
	u, err := url.Parse(c.serverURL)
	if err != nil {
		return fmt.Errorf("invalid server URL: %w", err)
	}

	dialer := *websocket.DefaultDialer
	dialer.NetDialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, err
		}
		resolved, err := netutil.Resolve(host)
		if err != nil {
			return nil, fmt.Errorf("dns lookup failed: %w", err)
		}
		d := net.Dialer{}
		return d.DialContext(ctx, network, net.JoinHostPort(resolved, port))
	}

	conn, resp, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
				return ErrUnauthorized
			}
		}
		return fmt.Errorf("failed to connect: %w", err)
	}

	c.conn = conn
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go c.readPump()
	go c.writePump()

	return nil
}

// readPump reads frames until the connection drops, then closes the
// incoming channel so the session observes the disconnect.
func (c *Client) readPump() {
	defer func() {
		c.conn.Close()
		close(c.incoming)
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		select {
		case c.incoming <- &msg:
		case <-c.done:
			return
		}
	}
}

// writePump writes queued frames and keeps the connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.outgoing:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// Send queues a message for the write pump. It fails once the client is
// closed instead of blocking forever.
func (c *Client) Send(msg *Message) error {
	select {
	case <-c.done:
		return errors.New("signaling client closed")
	case c.outgoing <- msg:
		return nil
	}
}

// Incoming returns the channel of inbound messages. The channel closes
// when the transport drops.
func (c *Client) Incoming() <-chan *Message {
	return c.incoming
}

// Close shuts the connection down. Safe to call more than once.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
}
