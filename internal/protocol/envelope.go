// ABOUTME: Envelope codec for the agent stream: typed decode of inbound frames
// ABOUTME: by their "type" discriminator, and constructors for outbound frames.

package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownType marks an inbound frame whose type discriminator is not
// recognized. Callers drop these frames for forward compatibility.
var ErrUnknownType = errors.New("unknown envelope type")

// Inbound envelope type discriminators (server → client).
const (
	TypeInitComplete    = "init_complete"
	TypeStreamChunk     = "stream_chunk"
	TypeStreamComplete  = "stream_complete"
	TypeResponse        = "response"
	TypeExecutionResult = "execution_result"
	TypeError           = "error"
	TypeCleared         = "cleared"
	TypePong            = "pong"
)

// Outbound envelope type discriminators (client → server).
const (
	TypeInit    = "init"
	TypeChat    = "chat"
	TypeExecute = "execute"
	TypeClear   = "clear"
	TypePing    = "ping"
)

// Inbound is a parsed server→client envelope. The concrete type is one of
// InitComplete, StreamChunk, StreamComplete, Response, ExecutionResult,
// ServerError, Cleared, or Pong.
type Inbound interface {
	// EnvelopeType returns the wire discriminator of the envelope.
	EnvelopeType() string
}

// InitComplete acknowledges the handshake and assigns the session id.
type InitComplete struct {
	SessionID string `json:"session_id"`
}

// StreamChunk carries the cumulative text of an in-flight assistant reply.
type StreamChunk struct {
	Accumulated string `json:"accumulated"`
	MessageID   string `json:"message_id"`
}

// StreamComplete finalizes a streamed reply with its authoritative full text.
type StreamComplete struct {
	FinalMessage string `json:"final_message"`
	MessageID    string `json:"message_id,omitempty"`
}

// Response is a complete non-streamed assistant reply, optionally carrying
// suggestions and a fresh execution plan.
type Response struct {
	Message          string       `json:"message"`
	Suggestions      []Suggestion `json:"suggestions,omitempty"`
	ExecutionPlan    []Step       `json:"execution_plan,omitempty"`
	RequiresApproval bool         `json:"requires_approval,omitempty"`
}

// ExecutionResult reports the outcome of one plan step.
type ExecutionResult struct {
	StepID string     `json:"step_id"`
	Result StepResult `json:"result"`
}

// ServerError is an agent-reported error; it does not close the connection.
type ServerError struct {
	Message string `json:"message"`
}

// Cleared acknowledges a history-clear request.
type Cleared struct{}

// Pong is the liveness acknowledgement for a ping.
type Pong struct{}

func (InitComplete) EnvelopeType() string    { return TypeInitComplete }
func (StreamChunk) EnvelopeType() string     { return TypeStreamChunk }
func (StreamComplete) EnvelopeType() string  { return TypeStreamComplete }
func (Response) EnvelopeType() string        { return TypeResponse }
func (ExecutionResult) EnvelopeType() string { return TypeExecutionResult }
func (ServerError) EnvelopeType() string     { return TypeError }
func (Cleared) EnvelopeType() string         { return TypeCleared }
func (Pong) EnvelopeType() string            { return TypePong }

// Decode parses a raw inbound frame into its typed envelope. Frames with an
// unrecognized discriminator return ErrUnknownType (wrapped with the type
// name); malformed JSON returns a parse error. Neither is fatal to the
// connection — the dispatcher logs and drops them.
func Decode(data []byte) (Inbound, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("parsing envelope: %w", err)
	}
	if head.Type == "" {
		return nil, fmt.Errorf("envelope has no type discriminator")
	}

	unmarshal := func(v Inbound) (Inbound, error) {
		if err := json.Unmarshal(data, v); err != nil {
			return nil, fmt.Errorf("parsing %s envelope: %w", head.Type, err)
		}
		return v, nil
	}

	switch head.Type {
	case TypeInitComplete:
		return unmarshal(&InitComplete{})
	case TypeStreamChunk:
		return unmarshal(&StreamChunk{})
	case TypeStreamComplete:
		return unmarshal(&StreamComplete{})
	case TypeResponse:
		return unmarshal(&Response{})
	case TypeExecutionResult:
		return unmarshal(&ExecutionResult{})
	case TypeError:
		return unmarshal(&ServerError{})
	case TypeCleared:
		return &Cleared{}, nil
	case TypePong:
		return &Pong{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, head.Type)
	}
}

// Outbound is a client→server envelope ready for encoding. Message and
// Stream are pointers so chat frames always carry both keys (stream false
// included) while the other envelope types stay minimal.
type Outbound struct {
	Type       string           `json:"type"`
	Config     *AgentConfig     `json:"config,omitempty"`
	Message    *string          `json:"message,omitempty"`
	Context    *NotebookContext `json:"context,omitempty"`
	Model      string           `json:"model,omitempty"`
	Stream     *bool            `json:"stream,omitempty"`
	Suggestion *Suggestion      `json:"suggestion,omitempty"`
}

// NewInit builds the handshake envelope carrying the client config.
func NewInit(cfg AgentConfig) Outbound {
	return Outbound{Type: TypeInit, Config: &cfg}
}

// NewChat builds a chat envelope for one user turn.
func NewChat(message string, ctx *NotebookContext, model string, stream bool) Outbound {
	return Outbound{Type: TypeChat, Message: &message, Context: ctx, Model: model, Stream: &stream}
}

// NewExecute builds an envelope asking the agent to apply a suggestion
// server-side.
func NewExecute(s Suggestion) Outbound {
	return Outbound{Type: TypeExecute, Suggestion: &s}
}

// NewClear builds a history-reset request.
func NewClear() Outbound {
	return Outbound{Type: TypeClear}
}

// NewPing builds a liveness probe.
func NewPing() Outbound {
	return Outbound{Type: TypePing}
}

// Encode serializes an outbound envelope for the transport.
func Encode(msg Outbound) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encoding %s envelope: %w", msg.Type, err)
	}
	return data, nil
}
