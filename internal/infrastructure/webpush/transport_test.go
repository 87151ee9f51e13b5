package webpush

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/notify-relay/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newClientKeys returns a p256dh/auth pair shaped like a browser's.
func newClientKeys(t *testing.T) (p256dh, auth string) {
	t.Helper()
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)
	secret := make([]byte, 16)
	_, err = rand.Read(secret)
	require.NoError(t, err)
	enc := base64.RawURLEncoding
	return enc.EncodeToString(priv.PublicKey().Bytes()), enc.EncodeToString(secret)
}

// newRelay starts a fake push relay answering every request with status.
func newRelay(t *testing.T, status int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func newTestTransport(t *testing.T) *Transport {
	t.Helper()
	tr, err := New(Options{
		Subject: "mailto:ops@example.com",
		TTL:     60,
		Timeout: 2 * time.Second,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	return tr
}

func subFor(t *testing.T, endpoint string) domain.PushSubscription {
	p256dh, auth := newClientKeys(t)
	return *domain.NewPushSubscription("u1", endpoint, p256dh, auth, time.Now().UTC())
}

func TestSend_Accepted(t *testing.T) {
	relay, hits := newRelay(t, http.StatusCreated)
	tr := newTestTransport(t)

	status := tr.Send(context.Background(), subFor(t, relay.URL+"/e1"), domain.PushPayload{Title: "X"})
	assert.Equal(t, domain.Delivered, status)
	assert.Equal(t, int32(1), hits.Load())
}

func TestSend_GoneAndNotFound(t *testing.T) {
	for _, code := range []int{http.StatusGone, http.StatusNotFound} {
		relay, _ := newRelay(t, code)
		tr := newTestTransport(t)
		status := tr.Send(context.Background(), subFor(t, relay.URL+"/e1"), domain.PushPayload{Title: "X"})
		assert.Equal(t, domain.Gone, status, "status %d", code)
	}
}

func TestSend_RelayServerError_IsFailedNotGone(t *testing.T) {
	relay, _ := newRelay(t, http.StatusServiceUnavailable)
	tr := newTestTransport(t)

	status := tr.Send(context.Background(), subFor(t, relay.URL+"/e1"), domain.PushPayload{Title: "X"})
	assert.Equal(t, domain.Failed, status)
}

func TestSend_MalformedKey_IsFailed(t *testing.T) {
	relay, hits := newRelay(t, http.StatusCreated)
	tr := newTestTransport(t)
	sub := *domain.NewPushSubscription("u1", relay.URL+"/e1", "not-a-key", "x", time.Now().UTC())

	status := tr.Send(context.Background(), sub, domain.PushPayload{Title: "X"})
	assert.Equal(t, domain.Failed, status)
	assert.Equal(t, int32(0), hits.Load())
}

func TestSend_NetworkError_IsFailed(t *testing.T) {
	relay, _ := newRelay(t, http.StatusCreated)
	endpoint := relay.URL + "/e1"
	relay.Close()
	tr := newTestTransport(t)

	status := tr.Send(context.Background(), subFor(t, endpoint), domain.PushPayload{Title: "X"})
	assert.Equal(t, domain.Failed, status)
}

func TestNew_GeneratesEphemeralKeys(t *testing.T) {
	tr := newTestTransport(t)
	assert.NotEmpty(t, tr.PublicKey())
}

func TestClassify(t *testing.T) {
	assert.Equal(t, domain.Delivered, classify(200))
	assert.Equal(t, domain.Delivered, classify(201))
	assert.Equal(t, domain.Gone, classify(404))
	assert.Equal(t, domain.Gone, classify(410))
	assert.Equal(t, domain.Failed, classify(400))
	assert.Equal(t, domain.Failed, classify(413))
	assert.Equal(t, domain.Failed, classify(429))
	assert.Equal(t, domain.Failed, classify(502))
}
