package ws

import (
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/notify-relay/internal/protocol"
	"golang.org/x/time/rate"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 4 * 1024

	// Inbound frames per second per connection; excess frames are dropped.
	inboundRate  = 20
	inboundBurst = 40
)

// Client is one live-channel connection. It is Connecting until the auth
// frame arrives, Authenticated while registered, and Closed after serve
// returns.
type Client struct {
	conn     *websocket.Conn
	send     chan []byte
	registry *Registry
	limiter  *rate.Limiter
	log      *slog.Logger

	// verifiedUserID is the identity bound to the upgrade request. Empty
	// when the server runs without token verification.
	verifiedUserID   string
	handshakeTimeout time.Duration
	userID           string

	// done is closed by Close; send itself is never closed.
	done      chan struct{}
	closeOnce sync.Once
}

func newClient(conn *websocket.Conn, reg *Registry, verifiedUserID string, opts HandlerOptions) *Client {
	return &Client{
		conn:             conn,
		send:             make(chan []byte, opts.SendBuffer),
		done:             make(chan struct{}),
		registry:         reg,
		limiter:          rate.NewLimiter(inboundRate, inboundBurst),
		log:              opts.Logger,
		verifiedUserID:   verifiedUserID,
		handshakeTimeout: opts.HandshakeTimeout,
	}
}

// Send enqueues frame for the write pump. It never blocks: a full buffer or
// a closed client drops the frame.
func (c *Client) Send(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// Close marks the client done once; the write pump flushes what is queued,
// sends a close frame and closes the connection.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// serve runs the connection to completion on the calling goroutine.
func (c *Client) serve() {
	defer func() {
		if c.userID != "" && c.registry.UnregisterIfCurrent(c.userID, c) {
			c.log.Debug("live connection unregistered", "user_id", c.userID)
		}
		c.Close()
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	userID, ok := c.handshake()
	if !ok {
		return
	}
	c.userID = userID
	c.registry.Register(userID, c)
	c.log.Debug("live connection registered", "user_id", userID)

	// Frames queued by the registry wait in send until the pump starts, so
	// auth_ok is always the first frame the peer sees.
	if err := c.write(websocket.TextMessage, protocol.EncodeAuthOK()); err != nil {
		return
	}
	go c.writePump()
	c.readPump()
}

// handshake waits for the auth frame. Malformed and unknown frames are
// ignored until the deadline.
func (c *Client) handshake() (string, bool) {
	if c.handshakeTimeout > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(c.handshakeTimeout))
	}
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				c.log.Debug("live handshake timed out", "remote", c.conn.RemoteAddr().String())
				c.closeWith(websocket.ClosePolicyViolation, "handshake timeout")
			}
			return "", false
		}
		if !c.limiter.Allow() {
			continue
		}
		msg, err := protocol.DecodeInbound(data)
		if err != nil {
			c.log.Debug("malformed frame ignored", "err", err)
			continue
		}
		auth, ok := msg.(protocol.Auth)
		if !ok {
			continue
		}

		switch {
		case c.verifiedUserID == "":
			c.log.Warn("live connection trusts declared user id; token verification is disabled", "user_id", auth.UserID)
		case auth.UserID != c.verifiedUserID:
			c.log.Warn("live handshake user mismatch", "declared", auth.UserID, "token", c.verifiedUserID)
			if frame, err := protocol.EncodeError("user mismatch"); err == nil {
				_ = c.write(websocket.TextMessage, frame)
			}
			c.closeWith(websocket.ClosePolicyViolation, "user mismatch")
			return "", false
		}
		return auth.UserID, true
	}
}

func (c *Client) readPump() {
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug("live connection read error", "user_id", c.userID, "err", err)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		if !c.limiter.Allow() {
			continue
		}

		msg, err := protocol.DecodeInbound(data)
		if err != nil {
			c.log.Debug("malformed frame ignored", "user_id", c.userID, "err", err)
			continue
		}
		switch m := msg.(type) {
		case protocol.Ping:
			c.Send(protocol.EncodePong())
		case protocol.Auth:
			c.log.Debug("repeated auth frame ignored", "user_id", c.userID)
		case protocol.Unknown:
			c.log.Debug("unknown frame ignored", "user_id", c.userID, "type", m.Type)
		}
	}
}

// writePump is the only writer once the connection is registered, which
// keeps frames in the order they were enqueued.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			if err := c.write(websocket.TextMessage, message); err != nil {
				return
			}
		case <-c.done:
			c.flush()
			c.closeWith(websocket.CloseGoingAway, "")
			return
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// flush writes frames still queued when the client was closed.
func (c *Client) flush() {
	for {
		select {
		case message := <-c.send:
			if err := c.write(websocket.TextMessage, message); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Client) write(messageType int, data []byte) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(messageType, data)
}

func (c *Client) closeWith(code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
