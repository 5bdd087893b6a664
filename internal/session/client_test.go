// ABOUTME: Tests for the session client using an injected fake transport.
// ABOUTME: Covers handshake, dispatch, reconnect policy, and the send path.

package session

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quill-labs/quill-agent/internal/protocol"
)

// fakeConn is an in-memory duplex transport. Frames queued on in are
// delivered to the client's read loop; frames the client writes land on out.
type fakeConn struct {
	in     chan []byte
	out    chan []byte
	closed chan struct{}
	once   sync.Once

	mu        sync.Mutex
	closeCode websocket.StatusCode
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan []byte, 16),
		out:    make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (f *fakeConn) Read(ctx context.Context) ([]byte, error) {
	select {
	case data := <-f.in:
		return data, nil
	case <-f.closed:
		return nil, errors.New("connection closed")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeConn) Write(ctx context.Context, data []byte) error {
	select {
	case <-f.closed:
		return errors.New("connection closed")
	case f.out <- data:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeConn) Close(code websocket.StatusCode, reason string) error {
	f.mu.Lock()
	f.closeCode = code
	f.mu.Unlock()
	f.once.Do(func() { close(f.closed) })
	return nil
}

// drop simulates the server side going away.
func (f *fakeConn) drop() {
	f.once.Do(func() { close(f.closed) })
}

func (f *fakeConn) deliver(t *testing.T, frame string) {
	t.Helper()
	select {
	case f.in <- []byte(frame):
	case <-time.After(time.Second):
		t.Fatal("read loop not draining frames")
	}
}

func (f *fakeConn) nextFrame(t *testing.T) map[string]any {
	t.Helper()
	select {
	case data := <-f.out:
		var m map[string]any
		require.NoError(t, json.Unmarshal(data, &m))
		return m
	case <-time.After(time.Second):
		t.Fatal("no frame written")
		return nil
	}
}

// fakeDialer hands out queued connections in order and counts dials.
type fakeDialer struct {
	mu    sync.Mutex
	queue []*fakeConn
	calls int
}

func (d *fakeDialer) dial(_ context.Context, _ string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if len(d.queue) == 0 {
		return nil, errors.New("dial refused")
	}
	conn := d.queue[0]
	d.queue = d.queue[1:]
	return conn, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, dialer *fakeDialer) *Client {
	t.Helper()
	c := NewClient(Options{
		URL:            "ws://test/api/agent/stream",
		Config:         protocol.DefaultAgentConfig(),
		Logger:         quietLogger(),
		ReconnectDelay: 20 * time.Millisecond,
		Dialer:         dialer.dial,
	})
	t.Cleanup(func() { _ = c.Disconnect() })
	return c
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond, msg)
}

func TestClient_ConnectSendsHandshake(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{queue: []*fakeConn{conn}}
	c := newTestClient(t, dialer)

	require.NoError(t, c.Connect(context.Background()))
	assert.Equal(t, StateConnected, c.Store().State())

	frame := conn.nextFrame(t)
	assert.Equal(t, "init", frame["type"])
	require.Contains(t, frame, "config")

	conn.deliver(t, `{"type":"init_complete","session_id":"sess-42"}`)
	eventually(t, func() bool { return c.Store().SessionID() == "sess-42" },
		"session id not recorded")
}

func TestClient_ConnectIsIdempotentWhileConnected(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{queue: []*fakeConn{conn}}
	c := newTestClient(t, dialer)

	require.NoError(t, c.Connect(context.Background()))
	require.NoError(t, c.Connect(context.Background()))
	assert.Equal(t, 1, dialer.dialCount())
}

func TestClient_SendChatWhileDisconnected(t *testing.T) {
	c := newTestClient(t, &fakeDialer{})

	err := c.SendChat("hello")
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Empty(t, c.Store().Snapshot().Messages)
}

func TestClient_SendChatRecordsAndSends(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{queue: []*fakeConn{conn}}
	c := newTestClient(t, dialer)
	require.NoError(t, c.Connect(context.Background()))
	conn.nextFrame(t) // init

	require.NoError(t, c.SendChat("plot y over time"))

	snap := c.Store().Snapshot()
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, protocol.RoleUser, snap.Messages[0].Role)
	assert.Equal(t, "plot y over time", snap.Messages[0].Content)

	frame := conn.nextFrame(t)
	assert.Equal(t, "chat", frame["type"])
	assert.Equal(t, "plot y over time", frame["message"])
	assert.Equal(t, protocol.DefaultAgentConfig().DefaultModel, frame["model"])
}

func TestClient_StreamedReply(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{queue: []*fakeConn{conn}}
	c := newTestClient(t, dialer)
	require.NoError(t, c.Connect(context.Background()))
	conn.nextFrame(t) // init
	require.NoError(t, c.SendChat("plot y over time"))
	conn.nextFrame(t) // chat

	conn.deliver(t, `{"type":"stream_chunk","message_id":"m1","accumulated":"Here"}`)
	eventually(t, func() bool {
		s := c.Store().Snapshot()
		return s.Streaming != nil && s.Streaming.Content == "Here"
	}, "first chunk not visible")

	conn.deliver(t, `{"type":"stream_chunk","message_id":"m1","accumulated":"Here is"}`)
	eventually(t, func() bool {
		s := c.Store().Snapshot()
		return s.Streaming != nil && s.Streaming.Content == "Here is"
	}, "second chunk did not replace content")

	conn.deliver(t, `{"type":"stream_complete","message_id":"m1","final_message":"Here is a plot."}`)
	eventually(t, func() bool {
		s := c.Store().Snapshot()
		return s.Streaming == nil && len(s.Messages) == 2 &&
			s.Messages[1].Content == "Here is a plot."
	}, "stream not finalized")
}

func TestClient_ResponseWithPlanAndResults(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{queue: []*fakeConn{conn}}
	c := newTestClient(t, dialer)
	require.NoError(t, c.Connect(context.Background()))
	conn.nextFrame(t) // init

	conn.deliver(t, `{
		"type": "response",
		"message": "I'll create and run a cell.",
		"suggestions": [{"id":"sg1","type":"new_cell","code":"plt.plot(y)"}],
		"execution_plan": [
			{"step_id":"s1","description":"create cell","status":"pending"},
			{"step_id":"s2","description":"run cell","status":"pending"}
		]
	}`)
	eventually(t, func() bool { return len(c.Store().Snapshot().Plan) == 2 },
		"plan not installed")

	conn.deliver(t, `{
		"type": "execution_result",
		"step_id": "s1",
		"result": {"status":"success","cell_id":"c9"}
	}`)
	eventually(t, func() bool {
		return c.Store().Snapshot().Plan[0].Status == protocol.StepComplete
	}, "step result not applied")

	conn.deliver(t, `{
		"type": "execution_result",
		"step_id": "s2",
		"result": {"status":"error","error":"name 'plt' is not defined"}
	}`)
	eventually(t, func() bool {
		p := c.Store().Snapshot().Plan
		return p[1].Status == protocol.StepError && p[1].Error != ""
	}, "step error not applied")

	snap := c.Store().Snapshot()
	require.Len(t, snap.Messages, 1)
	require.Len(t, snap.Messages[0].Suggestions, 1)
	assert.Equal(t, protocol.KindNewCell, snap.Messages[0].Suggestions[0].Kind)
}

func TestClient_ServerErrorRecorded(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{queue: []*fakeConn{conn}}
	c := newTestClient(t, dialer)
	require.NoError(t, c.Connect(context.Background()))
	conn.nextFrame(t)

	conn.deliver(t, `{"type":"error","message":"model unavailable"}`)
	eventually(t, func() bool {
		s := c.Store().Snapshot()
		return s.LastError == "model unavailable" && len(s.Messages) == 1 &&
			s.Messages[0].Role == protocol.RoleAssistant
	}, "server error not surfaced")
	// Errors from the agent do not close the connection.
	assert.Equal(t, StateConnected, c.Store().State())
}

func TestClient_ClearedAckClearsHistory(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{queue: []*fakeConn{conn}}
	c := newTestClient(t, dialer)
	require.NoError(t, c.Connect(context.Background()))
	conn.nextFrame(t)

	require.NoError(t, c.SendChat("hello"))
	conn.nextFrame(t)
	require.Len(t, c.Store().Snapshot().Messages, 1)

	// Local history survives until the acknowledgement arrives.
	require.NoError(t, c.ClearHistory())
	frame := conn.nextFrame(t)
	assert.Equal(t, "clear", frame["type"])
	assert.Len(t, c.Store().Snapshot().Messages, 1)

	conn.deliver(t, `{"type":"cleared"}`)
	eventually(t, func() bool { return len(c.Store().Snapshot().Messages) == 0 },
		"history not cleared on ack")
}

func TestClient_MalformedFramesIgnored(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{queue: []*fakeConn{conn}}
	c := newTestClient(t, dialer)
	require.NoError(t, c.Connect(context.Background()))
	conn.nextFrame(t)

	conn.deliver(t, `{not json`)
	conn.deliver(t, `{"type":"totally_new_thing","payload":1}`)
	conn.deliver(t, `{"type":"init_complete","session_id":"after-garbage"}`)

	eventually(t, func() bool { return c.Store().SessionID() == "after-garbage" },
		"read loop died on bad frame")
	assert.Equal(t, StateConnected, c.Store().State())
}

func TestClient_DisconnectDoesNotReconnect(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{queue: []*fakeConn{conn, newFakeConn()}}
	c := newTestClient(t, dialer)
	require.NoError(t, c.Connect(context.Background()))

	require.NoError(t, c.Disconnect())
	assert.Equal(t, StateDisconnected, c.Store().State())
	assert.Empty(t, c.Store().SessionID())

	conn.mu.Lock()
	code := conn.closeCode
	conn.mu.Unlock()
	assert.Equal(t, websocket.StatusNormalClosure, code)

	// Well past the reconnect delay: still exactly one dial.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, dialer.dialCount())
}

func TestClient_DisconnectWinsOverInflightReconnectDial(t *testing.T) {
	conn1 := newFakeConn()
	conn2 := newFakeConn()
	release := make(chan struct{})

	var mu sync.Mutex
	dials := 0
	dialer := func(_ context.Context, _ string) (Conn, error) {
		mu.Lock()
		dials++
		n := dials
		mu.Unlock()
		if n == 1 {
			return conn1, nil
		}
		// The reconnect dial blocks here so Disconnect can race it.
		<-release
		return conn2, nil
	}

	c := NewClient(Options{
		URL:            "ws://test/api/agent/stream",
		Config:         protocol.DefaultAgentConfig(),
		Logger:         quietLogger(),
		ReconnectDelay: 10 * time.Millisecond,
		Dialer:         dialer,
	})
	t.Cleanup(func() { _ = c.Disconnect() })
	require.NoError(t, c.Connect(context.Background()))
	conn1.nextFrame(t) // init

	conn1.drop()
	eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return dials == 2
	}, "reconnect dial not started")

	require.NoError(t, c.Disconnect())
	close(release)

	// The late dial result is discarded, never installed.
	eventually(t, func() bool {
		conn2.mu.Lock()
		defer conn2.mu.Unlock()
		return conn2.closeCode == websocket.StatusNormalClosure
	}, "stale connection left open")
	assert.Equal(t, StateDisconnected, c.Store().State())
	assert.Error(t, c.SendChat("hello"))
}

func TestClient_UnrequestedCloseReconnectsOnce(t *testing.T) {
	conn1 := newFakeConn()
	conn2 := newFakeConn()
	dialer := &fakeDialer{queue: []*fakeConn{conn1, conn2}}
	c := newTestClient(t, dialer)
	require.NoError(t, c.Connect(context.Background()))
	conn1.nextFrame(t) // init

	conn1.drop()
	eventually(t, func() bool { return c.Store().State() == StateError },
		"drop not observed")

	// One reconnect attempt fires after the fixed delay and re-handshakes.
	eventually(t, func() bool { return c.Store().State() == StateConnected },
		"reconnect did not happen")
	assert.Equal(t, 2, dialer.dialCount())
	frame := conn2.nextFrame(t)
	assert.Equal(t, "init", frame["type"])

	// No further attempts pile up while the new connection is healthy.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 2, dialer.dialCount())
}

func TestClient_DialFailureSchedulesRetry(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{} // first dial refused
	c := newTestClient(t, dialer)

	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateError, c.Store().State())
	assert.NotEmpty(t, c.Store().Snapshot().LastError)

	dialer.mu.Lock()
	dialer.queue = append(dialer.queue, conn)
	dialer.mu.Unlock()

	eventually(t, func() bool { return c.Store().State() == StateConnected },
		"retry did not connect")
	assert.Equal(t, 2, dialer.dialCount())
}

func TestClient_HeartbeatPingsAndRecordsPong(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{queue: []*fakeConn{conn}}
	c := NewClient(Options{
		URL:               "ws://test/api/agent/stream",
		Config:            protocol.DefaultAgentConfig(),
		Logger:            quietLogger(),
		HeartbeatInterval: 10 * time.Millisecond,
		ReconnectDelay:    20 * time.Millisecond,
		Dialer:            dialer.dial,
	})
	t.Cleanup(func() { _ = c.Disconnect() })
	require.NoError(t, c.Connect(context.Background()))
	conn.nextFrame(t) // init

	frame := conn.nextFrame(t)
	assert.Equal(t, "ping", frame["type"])

	conn.deliver(t, `{"type":"pong"}`)
	eventually(t, func() bool { return !c.Store().Snapshot().LastPong.IsZero() },
		"pong not recorded")
}

func TestClient_UpdateConfigResendsInit(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{queue: []*fakeConn{conn}}
	c := newTestClient(t, dialer)
	require.NoError(t, c.Connect(context.Background()))
	conn.nextFrame(t) // first init

	cfg := c.Store().Config()
	cfg.AutoExecute = true
	require.NoError(t, c.UpdateConfig(cfg))

	frame := conn.nextFrame(t)
	assert.Equal(t, "init", frame["type"])
	assert.True(t, c.Store().Config().AutoExecute)
}

func TestClient_RequestExecuteSendsSuggestion(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{queue: []*fakeConn{conn}}
	c := newTestClient(t, dialer)
	require.NoError(t, c.Connect(context.Background()))
	conn.nextFrame(t)

	require.NoError(t, c.RequestExecute(protocol.Suggestion{
		ID:   "sg1",
		Kind: protocol.KindNewCell,
		Code: "x = 1",
	}))

	frame := conn.nextFrame(t)
	assert.Equal(t, "execute", frame["type"])
	sug, ok := frame["suggestion"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "new_cell", sug["type"])
}
