// Package session holds a long-lived conversational session with the remote
// notebook agent: connection lifecycle, message dispatch, streaming-reply
// reconciliation, and execution plan tracking.
//
// # Client
//
// Client owns at most one transport connection at a time:
//
//	client := session.NewClient(session.Options{
//	    URL:    "ws://localhost:8765/api/agent/stream",
//	    Config: protocol.DefaultAgentConfig(),
//	})
//	if err := client.Connect(ctx); err != nil { ... }
//
// Key operations:
//
//   - Connect(ctx): dial, handshake, start heartbeat; no-op when already open
//   - Disconnect(): requested teardown, cancels timers, no reconnect
//   - SendChat(text): submit a user turn; the reply arrives asynchronously
//   - RequestExecute(s): apply a suggestion server-side
//   - ClearHistory(): request a history reset
//
// # Connection state machine
//
// One authoritative transition function moves the session between
// disconnected, connecting, connected, and error. An unrequested transport
// closure schedules exactly one reconnect attempt after a fixed delay; each
// Connect cancels any pending attempt, so duplicates never race. The session
// id and conversation history survive automatic reconnects and are reset only
// by Disconnect.
//
// # Dispatch
//
// A single read loop processes inbound frames in arrival order — no two
// frames are handled concurrently. Malformed or unknown frames are logged and
// dropped.
//
// # Store
//
// Store is the only mutable shared resource. Every other part of the package
// owns private timer and handle state and writes through the store's narrow
// operations; consumers read immutable snapshots via Snapshot().
package session
