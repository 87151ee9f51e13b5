package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"

	"github.com/notify-relay/internal/protocol"
)

var (
	// ErrUnauthorized means the server refused the upgrade request.
	ErrUnauthorized = errors.New("live channel unauthorized")
	// ErrRejected means the server answered the auth frame with an error.
	ErrRejected = errors.New("live channel auth rejected")
)

const (
	liveWriteWait = 10 * time.Second
	// Server pings every ~54s; allow a missed one before giving up.
	liveReadWait = 2 * time.Minute
)

type LiveOptions struct {
	// BaseURL is the API root (http or https); the socket lives at /v1/ws.
	BaseURL          string
	Token            string
	UserID           string
	HandshakeTimeout time.Duration
	ReconnectDelay   time.Duration
	ReconnectMax     time.Duration
	Dialer           *websocket.Dialer
	Logger           *slog.Logger
}

// LiveChannel keeps one authenticated socket open and reconnects with
// exponential backoff until its context ends or auth is refused.
type LiveChannel struct {
	url  string
	opts LiveOptions
	log  *slog.Logger
}

func NewLiveChannel(opts LiveOptions) (*LiveChannel, error) {
	u, err := liveURL(opts.BaseURL)
	if err != nil {
		return nil, err
	}
	if opts.UserID == "" {
		return nil, errors.New("live channel: user id is required")
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = 10 * time.Second
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = time.Second
	}
	if opts.ReconnectMax <= 0 {
		opts.ReconnectMax = 30 * time.Second
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &LiveChannel{url: u, opts: opts, log: opts.Logger}, nil
}

func liveURL(base string) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported base url scheme %q", u.Scheme)
	}
	u.Path += "/v1/ws"
	return u.String(), nil
}

// Run delivers every decoded server event to handle. It returns nil when ctx
// ends and an error only when the server refuses the user.
func (c *LiveChannel) Run(ctx context.Context, handle func(protocol.Event)) error {
	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = c.opts.ReconnectDelay
	retry.MaxInterval = c.opts.ReconnectMax
	retry.Reset()

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := c.session(ctx, handle, retry.Reset)
		if ctx.Err() != nil {
			return struct{}{}, backoff.Permanent(ctx.Err())
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(retry),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.log.Warn("live channel disconnected, retrying", "err", err, "next_retry", next.String())
		}),
	)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// session runs one connection from dial to disconnect. It never returns nil.
func (c *LiveChannel) session(ctx context.Context, handle func(protocol.Event), connected func()) error {
	header := http.Header{}
	if c.opts.Token != "" {
		header.Set("Authorization", "Bearer "+c.opts.Token)
	}
	conn, resp, err := c.opts.Dialer.DialContext(ctx, c.url, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return backoff.Permanent(fmt.Errorf("%w: status %d", ErrUnauthorized, resp.StatusCode))
		}
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if err := c.authenticate(conn); err != nil {
		return err
	}
	connected()
	c.log.Info("live channel connected", "user_id", c.opts.UserID)

	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(liveReadWait))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(liveWriteWait))
	})
	for {
		_ = conn.SetReadDeadline(time.Now().Add(liveReadWait))
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		ev, err := protocol.DecodeEvent(data)
		if err != nil {
			c.log.Debug("malformed live frame ignored", "err", err)
			continue
		}
		handle(ev)
	}
}

// authenticate sends the auth frame and waits for auth_ok.
func (c *LiveChannel) authenticate(conn *websocket.Conn) error {
	frame, err := protocol.EncodeAuth(c.opts.UserID)
	if err != nil {
		return backoff.Permanent(err)
	}
	_ = conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("send auth: %w", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(c.opts.HandshakeTimeout))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("await auth_ok: %w", err)
		}
		ev, err := protocol.DecodeEvent(data)
		if err != nil {
			continue
		}
		switch e := ev.(type) {
		case protocol.AuthOK:
			return nil
		case protocol.Error:
			return backoff.Permanent(fmt.Errorf("%w: %s", ErrRejected, e.Message))
		}
	}
}
