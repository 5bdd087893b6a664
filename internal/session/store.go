// ABOUTME: Conversation state store — the single mutable aggregate for one session.
// ABOUTME: Connection state, message history, streaming target, plan, and config.

package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quill-labs/quill-agent/internal/protocol"
)

// ConnState is the connection lifecycle state of the session.
type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
	StateError        ConnState = "error"
)

// defaultMaxHistory bounds the in-memory conversation; the oldest messages are
// dropped once the bound is reached.
const defaultMaxHistory = 100

// now is swapped out in tests that assert on timestamps.
var now = time.Now

// Message is one turn in the visible dialogue. Content is mutable only while
// the message is the active streaming target.
type Message struct {
	ID          string
	Role        protocol.Role
	Content     string
	Suggestions []protocol.Suggestion
	CreatedAt   time.Time
}

// Snapshot is an immutable view of the session state handed to consumers.
type Snapshot struct {
	State         ConnState
	SessionID     string
	LastError     string
	LastPong      time.Time
	Messages      []Message
	Streaming     *Message // open streaming message, nil when none
	Plan          []protocol.Step
	ExecutingStep string
	Config        protocol.AgentConfig
}

// Store is the single source of truth for one conversational session. All
// mutations funnel through its narrow operations; consumers read snapshots.
type Store struct {
	mu sync.Mutex

	state     ConnState
	sessionID string
	lastErr   string
	lastPong  time.Time

	messages   []Message
	maxHistory int

	// Streaming target: index of the open message in messages, -1 when none,
	// keyed by the server's correlation id.
	openIdx  int
	openCorr string

	plan          []protocol.Step
	executingStep string

	config protocol.AgentConfig
	logger *slog.Logger
}

// NewStore creates a session store with the given config. Pass nil logger for
// the default.
func NewStore(cfg protocol.AgentConfig, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		state:      StateDisconnected,
		maxHistory: defaultMaxHistory,
		openIdx:    -1,
		config:     cfg,
		logger:     logger.With("component", "store"),
	}
}

// Snapshot returns a deep-copied, immutable view of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		State:         s.state,
		SessionID:     s.sessionID,
		LastError:     s.lastErr,
		LastPong:      s.lastPong,
		Messages:      copyMessages(s.messages),
		Plan:          copySteps(s.plan),
		ExecutingStep: s.executingStep,
		Config:        s.config,
	}
	if s.openIdx >= 0 {
		open := copyMessage(s.messages[s.openIdx])
		snap.Streaming = &open
	}
	return snap
}

// SetState records a connection state transition.
func (s *Store) SetState(state ConnState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == state {
		return
	}
	s.logger.Debug("connection state changed", "from", s.state, "to", state)
	s.state = state
}

// State returns the current connection state.
func (s *Store) State() ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetSessionID stores the server-assigned session id from the handshake ack.
func (s *Store) SetSessionID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionID = id
}

// SessionID returns the server-assigned session id, empty before handshake.
func (s *Store) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// ClearSessionID drops the session id on manual disconnect.
func (s *Store) ClearSessionID() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionID = ""
}

// SetError records a connection-level error message.
func (s *Store) SetError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = msg
}

// ClearError resets the connection-level error flag.
func (s *Store) ClearError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = ""
}

// SetLastPong records a heartbeat acknowledgement for liveness observability.
func (s *Store) SetLastPong(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastPong = t
}

// Config returns the current agent config.
func (s *Store) Config() protocol.AgentConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config
}

// SetConfig replaces the agent config (live reload path).
func (s *Store) SetConfig(cfg protocol.AgentConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config = cfg
}

// AppendMessage adds a finalized message to the history and returns it.
// Suggestions are attached as-is; the oldest message is dropped once the
// history bound is reached.
func (s *Store) AppendMessage(role protocol.Role, content string, suggestions []protocol.Suggestion) Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(Message{
		ID:          uuid.New().String(),
		Role:        role,
		Content:     content,
		Suggestions: suggestions,
		CreatedAt:   now(),
	})
}

// ClearMessages empties the history and closes any open streaming message.
// Connection state and plan are unaffected.
func (s *Store) ClearMessages() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
	s.openIdx = -1
	s.openCorr = ""
}

// appendLocked inserts a message enforcing the history bound. Caller holds mu.
func (s *Store) appendLocked(msg Message) Message {
	s.messages = append(s.messages, msg)
	if len(s.messages) > s.maxHistory {
		drop := len(s.messages) - s.maxHistory
		s.messages = s.messages[drop:]
		if s.openIdx >= 0 {
			s.openIdx -= drop
			if s.openIdx < 0 {
				// The open message itself aged out.
				s.openIdx = -1
				s.openCorr = ""
			}
		}
	}
	return msg
}

func copyMessage(m Message) Message {
	out := m
	if m.Suggestions != nil {
		out.Suggestions = make([]protocol.Suggestion, len(m.Suggestions))
		copy(out.Suggestions, m.Suggestions)
	}
	return out
}

func copyMessages(in []Message) []Message {
	if in == nil {
		return nil
	}
	out := make([]Message, len(in))
	for i, m := range in {
		out[i] = copyMessage(m)
	}
	return out
}

func copySteps(in []protocol.Step) []protocol.Step {
	if in == nil {
		return nil
	}
	out := make([]protocol.Step, len(in))
	for i, st := range in {
		out[i] = st
		if st.Suggestion != nil {
			sug := *st.Suggestion
			out[i].Suggestion = &sug
		}
	}
	return out
}
