// Package ws serves the live channel: one authenticated WebSocket connection
// per user, kept in a Registry that the notifier writes to.
package ws

import (
	"log/slog"
	"sync"
)

// Peer is a registered connection.
type Peer interface {
	// Send enqueues frame without blocking. It reports false when the frame
	// was dropped.
	Send(frame []byte) bool
	// Close stops the peer's writer and closes the connection.
	Close()
}

// Registry maps a user id to its current connection. The last connection to
// register for a user wins; the one it replaces is left open but no longer
// receives events.
type Registry struct {
	mu    sync.RWMutex
	peers map[string]Peer
	log   *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{peers: make(map[string]Peer), log: logger}
}

// Register makes p the connection for userID and reports whether it replaced
// another one.
func (r *Registry) Register(userID string, p Peer) bool {
	r.mu.Lock()
	prev, replaced := r.peers[userID]
	r.peers[userID] = p
	r.mu.Unlock()

	if replaced && prev != p {
		r.log.Debug("live connection replaced", "user_id", userID)
	}
	return replaced
}

// UnregisterIfCurrent removes userID's entry only while it still points at p,
// so a late close of a replaced connection leaves the newer one in place.
func (r *Registry) UnregisterIfCurrent(userID string, p Peer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.peers[userID]; ok && cur == p {
		delete(r.peers, userID)
		return true
	}
	return false
}

// SendToUser enqueues frame on userID's connection. A user without a
// connection is not an error; it reports false.
func (r *Registry) SendToUser(userID string, frame []byte) bool {
	r.mu.RLock()
	p, ok := r.peers[userID]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if !p.Send(frame) {
		r.log.Warn("live frame dropped", "user_id", userID)
		return false
	}
	return true
}

// Len returns the number of registered users.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

// CloseAll empties the registry and closes every connection. Used on shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	peers := make([]Peer, 0, len(r.peers))
	for userID, p := range r.peers {
		peers = append(peers, p)
		delete(r.peers, userID)
	}
	r.mu.Unlock()

	for _, p := range peers {
		p.Close()
	}
}
