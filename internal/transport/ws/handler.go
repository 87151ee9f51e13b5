package ws

import (
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"
)

// HandlerOptions configures the live-channel endpoint.
type HandlerOptions struct {
	// HandshakeTimeout bounds how long a connection may stay unauthenticated.
	HandshakeTimeout time.Duration
	// SendBuffer is the per-connection outbound queue length.
	SendBuffer int
	// AllowedOrigins lists browser origins allowed to connect; "*" allows all.
	AllowedOrigins []string
	// Identity returns the verified user id of the upgrade request. When it
	// is nil or reports false, the id declared in the auth frame is trusted.
	Identity func(r *http.Request) (string, bool)
	Logger   *slog.Logger
}

// Handler upgrades requests to live-channel connections.
type Handler struct {
	registry *Registry
	upgrader websocket.Upgrader
	opts     HandlerOptions
}

func NewHandler(reg *Registry, opts HandlerOptions) *Handler {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 32
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	h := &Handler{registry: reg, opts: opts}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var verified string
	if h.opts.Identity != nil {
		if id, ok := h.opts.Identity(r); ok {
			verified = id
		}
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.opts.Logger.Debug("live upgrade failed", "err", err)
		return
	}
	newClient(conn, h.registry, verified, h.opts).serve()
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.opts.AllowedOrigins) == 0 {
		return true
	}
	return slices.Contains(h.opts.AllowedOrigins, "*") || slices.Contains(h.opts.AllowedOrigins, origin)
}
