package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	ackOK          = "ok"
	ackRejected    = "rejected: "
	defaultTimeout = 10 * time.Second
)

type WebsocketConfig struct {
	// Addr is the ws:// URL peers dial to reach this worker.
	Addr string
	// QueueSize bounds the receive queue.
	QueueSize int
	// SendTimeout caps one Send when ctx carries no deadline.
	SendTimeout time.Duration
	// MaxMessageBytes caps an incoming message; zero means no limit.
	MaxMessageBytes int64
	Logger          zerolog.Logger
}

// WebsocketTransport receives envelopes on an http.Handler and sends them by
// dialing the peer's URL. Every binary message is acknowledged with a text
// message once it is queued (or refused), so Send reports back-pressure.
type WebsocketTransport struct {
	cfg      WebsocketConfig
	in       *inbox
	upgrader websocket.Upgrader
	dialer   *websocket.Dialer
	logger   zerolog.Logger

	mu     sync.Mutex
	conns  map[*websocket.Conn]struct{}
	closed bool
}

func NewWebsocketTransport(cfg WebsocketConfig) *WebsocketTransport {
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = defaultTimeout
	}
	return &WebsocketTransport{
		cfg: cfg,
		in:  newInbox(cfg.QueueSize),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.SendTimeout,
			ReadBufferSize:   1024,
			WriteBufferSize:  4096,
		},
		logger: cfg.Logger.With().Str("component", "transport").Logger(),
		conns:  make(map[*websocket.Conn]struct{}),
	}
}

func (t *WebsocketTransport) Addr() string { return t.cfg.Addr }

// ServeHTTP accepts a peer connection and queues every binary message it sends.
func (t *WebsocketTransport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		t.logger.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("upgrade failed")
		return
	}
	if !t.track(conn) {
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		conn.Close()
		return
	}
	defer t.untrack(conn)
	if t.cfg.MaxMessageBytes > 0 {
		conn.SetReadLimit(t.cfg.MaxMessageBytes)
	}

	for {
		kind, payload, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				t.logger.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("peer connection ended")
			}
			return
		}

		ack := ackOK
		switch {
		case kind != websocket.BinaryMessage:
			ack = ackRejected + "expected binary message"
		case len(payload) == 0:
			ack = ackRejected + ErrEmptyPayload.Error()
		default:
			if err := t.in.push(payload); err != nil {
				ack = ackRejected + err.Error()
			}
		}
		if ack != ackOK {
			t.logger.Warn().Str("remote", r.RemoteAddr).Str("reason", strings.TrimPrefix(ack, ackRejected)).Msg("message refused")
		}
		if err := conn.WriteMessage(websocket.TextMessage, []byte(ack)); err != nil {
			return
		}
	}
}

// Send dials dest, writes payload as one binary message and waits for the
// peer's acknowledgement.
func (t *WebsocketTransport) Send(ctx context.Context, dest string, payload []byte) error {
	if t.isClosed() {
		return ErrClosed
	}
	if len(payload) == 0 {
		return ErrEmptyPayload
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.cfg.SendTimeout)
		defer cancel()
	}

	conn, resp, err := t.dialer.DialContext(ctx, dest, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("dial %s: %w", dest, err)
	}
	defer conn.Close()

	deadline, _ := ctx.Deadline()
	conn.SetWriteDeadline(deadline)
	conn.SetReadDeadline(deadline)

	if err := conn.WriteMessage(websocket.BinaryMessage, payload); err != nil {
		return fmt.Errorf("send to %s: %w", dest, err)
	}
	_, ack, err := conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("await ack from %s: %w", dest, err)
	}
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))

	return parseAck(string(ack), dest)
}

func parseAck(ack, dest string) error {
	if ack == ackOK {
		return nil
	}
	reason := strings.TrimPrefix(ack, ackRejected)
	for _, known := range []error{ErrQueueFull, ErrClosed, ErrEmptyPayload} {
		if reason == known.Error() {
			return fmt.Errorf("peer %s: %w", dest, known)
		}
	}
	return fmt.Errorf("peer %s refused message: %s", dest, reason)
}

func (t *WebsocketTransport) Receive(ctx context.Context) ([]byte, error) {
	return t.in.pop(ctx)
}

// Close stops accepting messages and drops open peer connections.
func (t *WebsocketTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	conns := t.conns
	t.conns = nil
	t.mu.Unlock()

	t.in.close()
	var errs []error
	for conn := range conns {
		// WriteControl may run alongside the handler's ack writes.
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(time.Second))
		if err := conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t *WebsocketTransport) track(conn *websocket.Conn) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}
	t.conns[conn] = struct{}{}
	return true
}

func (t *WebsocketTransport) untrack(conn *websocket.Conn) {
	t.mu.Lock()
	if t.conns != nil {
		delete(t.conns, conn)
	}
	t.mu.Unlock()
	conn.Close()
}

func (t *WebsocketTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}
