// ABOUTME: Client owns the one transport connection to the agent stream.
// ABOUTME: Handshake, heartbeat, reconnection with fixed backoff, and the send path.

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/quill-labs/quill-agent/internal/protocol"
)

// ErrNotConnected indicates a send was attempted with no open connection.
// The caller gets this immediately rather than having the frame queued.
var ErrNotConnected = errors.New("not connected to agent")

const (
	defaultHeartbeatInterval = 30 * time.Second
	defaultReconnectDelay    = 3 * time.Second
	writeTimeout             = 10 * time.Second
)

// Conn is the minimal duplex transport the client needs. Satisfied by the
// coder/websocket adapter and by fakes in tests.
type Conn interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Close(code websocket.StatusCode, reason string) error
}

// Dialer opens a transport connection to the agent stream endpoint.
type Dialer func(ctx context.Context, url string) (Conn, error)

// wsConn adapts a websocket connection to the Conn interface.
type wsConn struct {
	c *websocket.Conn
}

func (w *wsConn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := w.c.Read(ctx)
	return data, err
}

func (w *wsConn) Write(ctx context.Context, data []byte) error {
	return w.c.Write(ctx, websocket.MessageText, data)
}

func (w *wsConn) Close(code websocket.StatusCode, reason string) error {
	return w.c.Close(code, reason)
}

// DialWebSocket is the default Dialer.
func DialWebSocket(ctx context.Context, url string) (Conn, error) {
	c, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return &wsConn{c: c}, nil
}

// ContextProvider supplies the notebook snapshot attached to each chat
// request. Injected so the send path never reaches for global state.
type ContextProvider interface {
	NotebookContext() *protocol.NotebookContext
}

// Options configures a Client.
type Options struct {
	// URL of the agent stream endpoint, e.g. ws://host/api/agent/stream.
	URL string
	// Config is the initial agent config sent in the handshake.
	Config protocol.AgentConfig
	// ContextProvider supplies the notebook snapshot for chat requests. Optional.
	ContextProvider ContextProvider
	// Logger defaults to slog.Default.
	Logger *slog.Logger
	// HeartbeatInterval between pings; defaults to 30s.
	HeartbeatInterval time.Duration
	// ReconnectDelay before the single scheduled reconnect attempt; defaults to 3s.
	ReconnectDelay time.Duration
	// Dialer defaults to DialWebSocket. Tests inject fakes here.
	Dialer Dialer
}

// Client holds one logical conversation with the remote agent across at most
// one transport connection at a time. All inbound frames are processed in
// arrival order by a single read loop.
type Client struct {
	url             string
	store           *Store
	dial            Dialer
	logger          *slog.Logger
	heartbeat       time.Duration
	reconnectDelay  time.Duration
	contextProvider ContextProvider

	mu             sync.Mutex
	conn           Conn
	gen            int // connection generation; stale close events are ignored
	closing        bool
	reconnectTimer *time.Timer
	stopHeartbeat  chan struct{}
}

// NewClient creates a session client. The returned client is disconnected;
// call Connect to establish the transport.
func NewClient(opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	heartbeat := opts.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}
	reconnect := opts.ReconnectDelay
	if reconnect <= 0 {
		reconnect = defaultReconnectDelay
	}
	dial := opts.Dialer
	if dial == nil {
		dial = DialWebSocket
	}
	return &Client{
		url:             opts.URL,
		store:           NewStore(opts.Config, logger),
		dial:            dial,
		logger:          logger.With("component", "session"),
		heartbeat:       heartbeat,
		reconnectDelay:  reconnect,
		contextProvider: opts.ContextProvider,
	}
}

// Store exposes the conversation state store for consumers to snapshot.
func (c *Client) Store() *Store {
	return c.store
}

// Connect establishes the transport if not already open or connecting — a
// no-op otherwise. On success it sends the init handshake; the session is not
// ready until the init_complete acknowledgement arrives with the session id.
// Any pending scheduled reconnect is cancelled so only one attempt can be in
// flight.
func (c *Client) Connect(ctx context.Context) error {
	return c.connect(ctx, false)
}

// connect is the shared dial path. Only consumer-initiated connects clear the
// closing flag; automatic reconnects re-check it so a Disconnect that races
// an in-flight dial still wins.
func (c *Client) connect(ctx context.Context, reconnect bool) error {
	c.mu.Lock()
	if reconnect && c.closing {
		c.mu.Unlock()
		return nil
	}
	switch c.store.State() {
	case StateConnected, StateConnecting:
		c.mu.Unlock()
		return nil
	}
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	if !reconnect {
		c.closing = false
	}
	c.store.SetState(StateConnecting)
	c.mu.Unlock()

	conn, err := c.dial(ctx, c.url)
	if err != nil {
		c.mu.Lock()
		closing := c.closing
		c.mu.Unlock()
		if closing {
			return fmt.Errorf("dialing agent stream: %w", err)
		}
		c.store.SetState(StateError)
		c.store.SetError(fmt.Sprintf("connect failed: %v", err))
		c.scheduleReconnect()
		return fmt.Errorf("dialing agent stream: %w", err)
	}

	c.mu.Lock()
	if c.closing {
		// Disconnect was requested while the dial was in flight; discard
		// the connection instead of installing it.
		c.mu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "client disconnect")
		c.store.SetState(StateDisconnected)
		return nil
	}
	c.conn = conn
	c.gen++
	gen := c.gen
	stop := make(chan struct{})
	c.stopHeartbeat = stop
	c.mu.Unlock()

	c.store.SetState(StateConnected)
	c.store.ClearError()
	c.logger.Info("connected to agent stream", "url", c.url)

	if err := c.send(protocol.NewInit(c.store.Config())); err != nil {
		c.logger.Error("handshake send failed", "error", err)
		_ = conn.Close(websocket.StatusInternalError, "handshake failed")
		c.handleClose(gen, err)
		return fmt.Errorf("sending init: %w", err)
	}

	go c.readLoop(gen, conn)
	go c.heartbeatLoop(stop)

	return nil
}

// Disconnect tears the session down on request: pending reconnect and
// heartbeat timers are cancelled, the transport is closed with a normal
// closure, and the session id is dropped. No reconnection is attempted.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	c.closing = true
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	if c.stopHeartbeat != nil {
		close(c.stopHeartbeat)
		c.stopHeartbeat = nil
	}
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	var err error
	if conn != nil {
		err = conn.Close(websocket.StatusNormalClosure, "client disconnect")
	}
	c.store.ClearSessionID()
	c.store.SetState(StateDisconnected)
	c.logger.Info("disconnected from agent stream")
	return err
}

// SendChat submits one user turn. The user message is appended to the
// history first, then the chat envelope goes out with the effective model and
// the configured streaming flag; the reply arrives later via the dispatcher.
func (c *Client) SendChat(text string) error {
	if c.store.State() != StateConnected {
		return ErrNotConnected
	}

	cfg := c.store.Config()
	var nbCtx *protocol.NotebookContext
	if c.contextProvider != nil {
		nbCtx = c.contextProvider.NotebookContext()
	}

	// Record first, then act — the turn is visible even if the send fails.
	c.store.AppendMessage(protocol.RoleUser, text, nil)

	return c.send(protocol.NewChat(text, nbCtx, cfg.EffectiveModel(), cfg.StreamResponses))
}

// RequestExecute asks the remote agent to apply a suggestion server-side.
// This is the remote counterpart of the local suggestion engine; the caller
// picks one path or the other.
func (c *Client) RequestExecute(s protocol.Suggestion) error {
	if c.store.State() != StateConnected {
		return ErrNotConnected
	}
	return c.send(protocol.NewExecute(s))
}

// ClearHistory requests a history reset. Local history is cleared when the
// cleared acknowledgement arrives.
func (c *Client) ClearHistory() error {
	if c.store.State() != StateConnected {
		return ErrNotConnected
	}
	return c.send(protocol.NewClear())
}

// UpdateConfig replaces the agent config. When connected the handshake is
// re-sent so the server picks up the new policy; the session id is preserved.
func (c *Client) UpdateConfig(cfg protocol.AgentConfig) error {
	c.store.SetConfig(cfg)
	if c.store.State() != StateConnected {
		return nil
	}
	c.logger.Info("re-sending init with updated config")
	return c.send(protocol.NewInit(cfg))
}

// send encodes and writes one outbound envelope on the current connection.
func (c *Client) send(msg protocol.Outbound) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return conn.Write(ctx, data)
}

// readLoop processes inbound frames one at a time until the transport fails.
func (c *Client) readLoop(gen int, conn Conn) {
	for {
		data, err := conn.Read(context.Background())
		if err != nil {
			c.handleClose(gen, err)
			return
		}
		c.handleFrame(data)
	}
}

// heartbeatLoop sends a ping each interval until the connection goes away.
// Pong receipt updates the store's last-seen timestamp; liveness is
// observability only, missed pongs do not force a disconnect.
func (c *Client) heartbeatLoop(stop chan struct{}) {
	ticker := time.NewTicker(c.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := c.send(protocol.NewPing()); err != nil {
				c.logger.Debug("heartbeat send failed", "error", err)
			}
		}
	}
}

// handleClose reacts to a transport closure. Requested closures (Disconnect)
// have already invalidated the connection and schedule nothing; an
// unrequested closure schedules exactly one reconnect attempt, even if
// multiple close events fire in quick succession.
func (c *Client) handleClose(gen int, err error) {
	c.mu.Lock()
	if gen != c.gen || c.conn == nil {
		// Stale event from a connection that was already torn down.
		c.mu.Unlock()
		return
	}
	c.conn = nil
	if c.stopHeartbeat != nil {
		close(c.stopHeartbeat)
		c.stopHeartbeat = nil
	}
	requested := c.closing
	c.mu.Unlock()

	if requested {
		c.store.SetState(StateDisconnected)
		return
	}

	c.logger.Warn("connection lost", "error", err)
	c.store.SetState(StateError)
	c.store.SetError(fmt.Sprintf("connection lost: %v", err))
	c.scheduleReconnect()
}

// scheduleReconnect arms the single reconnect timer unless one is already
// pending or the closure was requested. Session id and history are preserved
// so the conversation survives the reconnect.
func (c *Client) scheduleReconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closing || c.reconnectTimer != nil {
		return
	}

	c.logger.Info("scheduling reconnect", "delay", c.reconnectDelay)
	c.reconnectTimer = time.AfterFunc(c.reconnectDelay, func() {
		c.mu.Lock()
		c.reconnectTimer = nil
		c.mu.Unlock()

		if err := c.connect(context.Background(), true); err != nil {
			c.logger.Warn("reconnect attempt failed", "error", err)
		}
	})
}
