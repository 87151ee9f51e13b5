package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/notify-relay/internal/domain"
)

// Unread is the authoritative unread state as last fetched from the server.
type Unread struct {
	Count         int
	Notifications []domain.Notification
}

// DefaultFetchTimeout bounds each unread fetch when no client is supplied.
const DefaultFetchTimeout = 10 * time.Second

// UnreadState caches the unread list and count. Invalidate only marks the
// cache stale and wakes Run, which refetches in the background, so callers on
// the alert path never wait on the network.
type UnreadState struct {
	baseURL string
	token   string
	http    *http.Client
	wake    chan struct{}

	mu    sync.Mutex
	stale bool
	gen   uint64
	last  Unread
}

// NewUnreadState reads from the API at baseURL (e.g. http://localhost:3000).
// A nil client is replaced by one with DefaultFetchTimeout.
func NewUnreadState(baseURL, token string, client *http.Client) *UnreadState {
	if client == nil {
		client = &http.Client{Timeout: DefaultFetchTimeout}
	}
	s := &UnreadState{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    client,
		wake:    make(chan struct{}, 1),
		stale:   true,
	}
	s.wake <- struct{}{}
	return s
}

// Invalidate marks the state stale and wakes the refresher. It never blocks;
// invalidations that arrive while a refresh is pending collapse into it.
func (s *UnreadState) Invalidate() {
	s.mu.Lock()
	s.stale = true
	s.gen++
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Stale reports whether the next Snapshot will refetch.
func (s *UnreadState) Stale() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stale
}

// Snapshot returns the cached state, refetching it first when stale. The lock
// is not held during the fetch. An Invalidate that lands mid-fetch keeps the
// state stale so the next Snapshot fetches again.
func (s *UnreadState) Snapshot(ctx context.Context) (Unread, error) {
	s.mu.Lock()
	if !s.stale {
		defer s.mu.Unlock()
		return s.last, nil
	}
	gen := s.gen
	s.mu.Unlock()

	u, err := s.fetch(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		return s.last, err
	}
	s.last = u
	if s.gen == gen {
		s.stale = false
	}
	return s.last, nil
}

// Run refreshes the state each time it is invalidated until ctx is done.
// onRefresh, when set, receives the outcome of every refresh.
func (s *UnreadState) Run(ctx context.Context, onRefresh func(Unread, error)) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.wake:
		}
		u, err := s.Snapshot(ctx)
		if ctx.Err() != nil {
			return
		}
		if onRefresh != nil {
			onRefresh(u, err)
		}
	}
}

func (s *UnreadState) fetch(ctx context.Context) (Unread, error) {
	var list []domain.Notification
	if err := s.get(ctx, "/v1/notifications", &list); err != nil {
		return Unread{}, err
	}
	var count struct {
		Count int `json:"count"`
	}
	if err := s.get(ctx, "/v1/notifications/count", &count); err != nil {
		return Unread{}, err
	}
	return Unread{Count: count.Count, Notifications: list}, nil
}

func (s *UnreadState) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		return err
	}
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch %s: status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
