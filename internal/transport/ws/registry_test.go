package ws

import (
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakePeer struct {
	mu     sync.Mutex
	frames [][]byte
	full   bool
	closed bool
}

func (p *fakePeer) Send(frame []byte) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.full || p.closed {
		return false
	}
	p.frames = append(p.frames, frame)
	return true
}

func (p *fakePeer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRegistry_SendToAbsentUserIsNoop(t *testing.T) {
	r := NewRegistry(quietLogger())
	assert.False(t, r.SendToUser("nobody", []byte(`{}`)))
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_SendToRegisteredUser(t *testing.T) {
	r := NewRegistry(quietLogger())
	p := &fakePeer{}
	r.Register("u1", p)

	assert.True(t, r.SendToUser("u1", []byte(`a`)))
	assert.Equal(t, [][]byte{[]byte(`a`)}, p.frames)
}

func TestRegistry_LastWriterWins(t *testing.T) {
	r := NewRegistry(quietLogger())
	first, second := &fakePeer{}, &fakePeer{}

	assert.False(t, r.Register("u1", first))
	assert.True(t, r.Register("u1", second))
	r.SendToUser("u1", []byte(`x`))

	assert.Empty(t, first.frames)
	assert.Len(t, second.frames, 1)
	assert.False(t, first.closed, "replaced peer is not force-closed")
}

func TestRegistry_LateCloseKeepsNewerEntry(t *testing.T) {
	r := NewRegistry(quietLogger())
	first, second := &fakePeer{}, &fakePeer{}
	r.Register("u1", first)
	r.Register("u1", second)

	assert.False(t, r.UnregisterIfCurrent("u1", first))
	assert.Equal(t, 1, r.Len())
	assert.True(t, r.SendToUser("u1", []byte(`x`)))
	assert.Len(t, second.frames, 1)

	assert.True(t, r.UnregisterIfCurrent("u1", second))
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_FullPeerDrops(t *testing.T) {
	r := NewRegistry(quietLogger())
	r.Register("u1", &fakePeer{full: true})
	assert.False(t, r.SendToUser("u1", []byte(`x`)))
}

func TestRegistry_CloseAll(t *testing.T) {
	r := NewRegistry(quietLogger())
	a, b := &fakePeer{}, &fakePeer{}
	r.Register("a", a)
	r.Register("b", b)

	r.CloseAll()
	assert.Equal(t, 0, r.Len())
	assert.True(t, a.closed)
	assert.True(t, b.closed)
}

func TestRegistry_ConcurrentRegisterAndClose(t *testing.T) {
	r := NewRegistry(quietLogger())
	var wg sync.WaitGroup
	peers := make([]*fakePeer, 50)
	for i := range peers {
		peers[i] = &fakePeer{}
	}
	for _, p := range peers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Register("u1", p)
			r.SendToUser("u1", []byte(`x`))
			r.UnregisterIfCurrent("u1", p)
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, r.Len(), 1)
}
