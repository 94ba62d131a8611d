package transport

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryHubDelivers(t *testing.T) {
	hub := NewMemoryHub()
	a, err := hub.Join("a", 4)
	require.NoError(t, err)
	b, err := hub.Join("b", 4)
	require.NoError(t, err)
	defer a.Close()
	defer b.Close()

	_, err = hub.Join("a", 4)
	assert.Error(t, err, "addresses are unique")

	ctx := context.Background()
	payload := []byte{1, 2, 3}
	require.NoError(t, a.Send(ctx, "b", payload))
	payload[0] = 9

	got, err := b.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, got, "receiver gets its own copy")

	assert.ErrorIs(t, a.Send(ctx, "nobody", payload), ErrUnknownPeer)
	assert.ErrorIs(t, a.Send(ctx, "b", nil), ErrEmptyPayload)
}

func TestMemoryTransportBackPressure(t *testing.T) {
	hub := NewMemoryHub()
	a, _ := hub.Join("a", 1)
	b, _ := hub.Join("b", 1)
	ctx := context.Background()

	require.NoError(t, a.Send(ctx, "b", []byte{1}))
	assert.ErrorIs(t, a.Send(ctx, "b", []byte{2}), ErrQueueFull)

	require.NoError(t, b.Close())
	assert.ErrorIs(t, a.Send(ctx, "b", []byte{3}), ErrUnknownPeer)
	_, err := b.Receive(ctx)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestMemoryReceiveHonorsContext(t *testing.T) {
	hub := NewMemoryHub()
	a, _ := hub.Join("a", 1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := a.Receive(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func newWebsocketPeer(t *testing.T, queueSize int) (*WebsocketTransport, string) {
	t.Helper()
	wt := NewWebsocketTransport(WebsocketConfig{QueueSize: queueSize, SendTimeout: 2 * time.Second, Logger: zerolog.Nop()})
	srv := httptest.NewServer(wt)
	t.Cleanup(func() {
		wt.Close()
		srv.Close()
	})
	return wt, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWebsocketSendReceive(t *testing.T) {
	receiver, url := newWebsocketPeer(t, 4)
	sender := NewWebsocketTransport(WebsocketConfig{Logger: zerolog.Nop()})
	defer sender.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, sender.Send(ctx, url, []byte("first")))
	require.NoError(t, sender.Send(ctx, url, []byte("second")))

	got, err := receiver.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), got)
	got, err = receiver.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), got)
}

func TestWebsocketQueueFull(t *testing.T) {
	_, url := newWebsocketPeer(t, 1)
	sender := NewWebsocketTransport(WebsocketConfig{Logger: zerolog.Nop()})
	defer sender.Close()
	ctx := context.Background()

	require.NoError(t, sender.Send(ctx, url, []byte("one")))
	assert.ErrorIs(t, sender.Send(ctx, url, []byte("two")), ErrQueueFull)
}

func TestWebsocketSendErrors(t *testing.T) {
	sender := NewWebsocketTransport(WebsocketConfig{SendTimeout: time.Second, Logger: zerolog.Nop()})
	ctx := context.Background()

	assert.ErrorIs(t, sender.Send(ctx, "ws://127.0.0.1:1/", nil), ErrEmptyPayload)
	assert.Error(t, sender.Send(ctx, "ws://127.0.0.1:1/", []byte("x")))

	require.NoError(t, sender.Close())
	assert.ErrorIs(t, sender.Send(ctx, "ws://127.0.0.1:1/", []byte("x")), ErrClosed)
	_, err := sender.Receive(ctx)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestParseAck(t *testing.T) {
	assert.NoError(t, parseAck(ackOK, "p"))
	assert.ErrorIs(t, parseAck(ackRejected+ErrQueueFull.Error(), "p"), ErrQueueFull)
	err := parseAck(ackRejected+"expected binary message", "p")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected binary message")
}
