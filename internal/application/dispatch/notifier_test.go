package dispatch

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/notify-relay/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingLive struct {
	mu     sync.Mutex
	frames map[string][][]byte
	online map[string]bool
}

func (r *recordingLive) SendToUser(userID string, frame []byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.online[userID] {
		return false
	}
	if r.frames == nil {
		r.frames = map[string][][]byte{}
	}
	r.frames[userID] = append(r.frames[userID], frame)
	return true
}

func TestNotify_BothChannelsFireIndependently(t *testing.T) {
	store := newStore(t)
	save(t, store, "u1", "e1")
	tr := &fakeTransport{}
	live := &recordingLive{online: map[string]bool{"u1": true}}
	n := NewNotifier(live, NewDispatcher(store, tr, Options{Logger: quietLogger()}), quietLogger())

	report, err := n.Notify(context.Background(), "u1", domain.NotificationEvent{Title: "X"})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Delivered)
	assert.Len(t, tr.calls, 1)
	require.Len(t, live.frames["u1"], 1)

	var frame domain.NotificationEvent
	require.NoError(t, json.Unmarshal(live.frames["u1"][0], &frame))
	assert.Equal(t, domain.KindNotification, frame.Kind)
	assert.Equal(t, "X", frame.Title)
	assert.NotEmpty(t, frame.ID)
	assert.Equal(t, frame.ID, tr.payloads[0].Data["event_id"])
}

func TestNotify_OfflineUserStillGetsPush(t *testing.T) {
	store := newStore(t)
	save(t, store, "u1", "e1")
	tr := &fakeTransport{}
	live := &recordingLive{}
	n := NewNotifier(live, NewDispatcher(store, tr, Options{Logger: quietLogger()}), quietLogger())

	_, err := n.Notify(context.Background(), "u1", domain.NotificationEvent{Title: "X"})
	require.NoError(t, err)
	assert.Len(t, tr.calls, 1)
	assert.Empty(t, live.frames)
}

func TestNotify_KeepsCallerEventID(t *testing.T) {
	store := newStore(t)
	live := &recordingLive{online: map[string]bool{"u1": true}}
	n := NewNotifier(live, NewDispatcher(store, &fakeTransport{}, Options{Logger: quietLogger()}), quietLogger())

	_, err := n.Notify(context.Background(), "u1", domain.NotificationEvent{ID: "evt-1", Title: "X"})
	require.NoError(t, err)
	assert.Contains(t, string(live.frames["u1"][0]), `"id":"evt-1"`)
}
