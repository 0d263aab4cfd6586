package transport

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vinayprograms/agentgrid/envelope"
)

// WebSocketTransport implements Transport over a WebSocket connection.
// It serves both ends: the gateway wraps accepted connections, the worker
// wraps dialed ones.
type WebSocketTransport struct {
	conn   *websocket.Conn
	config WebSocketConfig

	recv chan *envelope.Envelope
	send chan *envelope.Envelope
	done chan struct{}

	mu         sync.Mutex
	closed     bool // no new sends accepted
	connClosed bool // no more writes to the connection
}

// WebSocketConfig holds WebSocket transport configuration.
type WebSocketConfig struct {
	Config // Embed base config

	// WriteTimeout for write operations.
	WriteTimeout time.Duration

	// MaxMessageSize limits incoming message size.
	MaxMessageSize int64

	// PingInterval for keepalive pings (0 = disabled). Pings keep the TCP
	// path warm; application-level liveness uses heartbeat envelopes.
	PingInterval time.Duration
}

// DefaultWebSocketConfig returns configuration with sensible defaults.
func DefaultWebSocketConfig() WebSocketConfig {
	return WebSocketConfig{
		Config:         DefaultConfig(),
		WriteTimeout:   10 * time.Second,
		MaxMessageSize: 1024 * 1024, // 1MB
		PingInterval:   30 * time.Second,
	}
}

// NewWebSocketTransport creates a transport from an existing connection.
func NewWebSocketTransport(conn *websocket.Conn, cfg WebSocketConfig) *WebSocketTransport {
	if cfg.RecvBufferSize <= 0 {
		cfg.RecvBufferSize = DefaultConfig().RecvBufferSize
	}
	if cfg.SendBufferSize <= 0 {
		cfg.SendBufferSize = DefaultConfig().SendBufferSize
	}

	conn.SetReadLimit(cfg.MaxMessageSize)

	return &WebSocketTransport{
		conn:   conn,
		config: cfg,
		recv:   make(chan *envelope.Envelope, cfg.RecvBufferSize),
		send:   make(chan *envelope.Envelope, cfg.SendBufferSize),
		done:   make(chan struct{}),
	}
}

// Dial connects to a gateway WebSocket endpoint and returns the transport.
func Dial(ctx context.Context, url string, cfg WebSocketConfig) (*WebSocketTransport, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return NewWebSocketTransport(conn, cfg), nil
}

// NewWebSocketUpgrader creates an upgrader for accepting worker connections.
func NewWebSocketUpgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(r *http.Request) bool { return true }, // Override in production
	}
}

// Recv returns the channel for incoming envelopes.
func (t *WebSocketTransport) Recv() <-chan *envelope.Envelope {
	return t.recv
}

// Send queues an envelope for delivery.
func (t *WebSocketTransport) Send(env *envelope.Envelope) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	t.mu.Unlock()

	select {
	case t.send <- env:
		return nil
	case <-t.done:
		return ErrClosed
	}
}

// Run starts the transport, blocking until shutdown.
func (t *WebSocketTransport) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		t.readLoop(ctx)
	}()

	go func() {
		defer wg.Done()
		t.writeLoop(ctx)
	}()

	select {
	case <-ctx.Done():
	case <-t.done:
	}

	t.Close()
	wg.Wait()

	return nil
}

// Close initiates graceful shutdown: new sends are rejected, envelopes
// already queued are flushed, then the connection closes.
func (t *WebSocketTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	close(t.done)
	t.mu.Unlock()

	t.drainSendQueue()

	t.mu.Lock()
	t.connClosed = true
	t.mu.Unlock()

	t.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)

	return t.conn.Close()
}

// readLoop reads frames, decodes envelopes and feeds the recv channel.
// Undecodable frames are dropped: error envelopes correlate to request ids,
// and a frame that cannot be parsed has none.
func (t *WebSocketTransport) readLoop(ctx context.Context) {
	defer close(t.recv)

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.done:
			return
		default:
		}

		_, data, err := t.conn.ReadMessage()
		if err != nil {
			return
		}

		env, err := envelope.Unmarshal(data)
		if err != nil {
			continue
		}

		select {
		case t.recv <- env:
		case <-ctx.Done():
			return
		case <-t.done:
			return
		}
	}
}

// writeLoop drains the send channel onto the connection.
func (t *WebSocketTransport) writeLoop(ctx context.Context) {
	ticker := t.createPingTicker()
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.drainSendQueue()
			return
		case <-t.done:
			t.drainSendQueue()
			return
		case <-ticker.C:
			t.writePing()
		case env, ok := <-t.send:
			if !ok {
				return
			}
			t.writeEnvelope(env)
		}
	}
}

// createPingTicker creates a ticker for keepalive pings.
func (t *WebSocketTransport) createPingTicker() *time.Ticker {
	if t.config.PingInterval > 0 {
		return time.NewTicker(t.config.PingInterval)
	}
	// Return a ticker that never fires
	ticker := time.NewTicker(time.Hour)
	ticker.Stop()
	return ticker
}

// writePing sends a WebSocket ping frame.
func (t *WebSocketTransport) writePing() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.connClosed {
		return
	}

	t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second))
}

// drainSendQueue writes remaining envelopes before shutdown.
func (t *WebSocketTransport) drainSendQueue() {
	for {
		select {
		case env, ok := <-t.send:
			if !ok {
				return
			}
			t.writeEnvelope(env)
		default:
			return
		}
	}
}

// writeEnvelope serializes and writes a single envelope.
func (t *WebSocketTransport) writeEnvelope(env *envelope.Envelope) {
	data, err := envelope.Marshal(env)
	if err != nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.connClosed {
		return
	}

	if t.config.WriteTimeout > 0 {
		t.conn.SetWriteDeadline(time.Now().Add(t.config.WriteTimeout))
	}

	t.conn.WriteMessage(websocket.TextMessage, data)
}
