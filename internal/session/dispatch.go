// ABOUTME: Inbound frame dispatcher — decodes each envelope and routes it to
// ABOUTME: the store operation it drives. Bad frames are logged, never fatal.

package session

import (
	"errors"

	"github.com/quill-labs/quill-agent/internal/protocol"
)

// handleFrame decodes one inbound frame and applies its effect. Malformed or
// unrecognized frames are dropped with a diagnostic; they never tear down the
// connection or desynchronize state.
func (c *Client) handleFrame(data []byte) {
	msg, err := protocol.Decode(data)
	if err != nil {
		if errors.Is(err, protocol.ErrUnknownType) {
			c.logger.Debug("ignoring unrecognized envelope", "error", err)
		} else {
			c.logger.Warn("dropping malformed frame", "error", err)
		}
		return
	}

	switch m := msg.(type) {
	case *protocol.InitComplete:
		c.store.SetSessionID(m.SessionID)
		c.logger.Info("session established", "session_id", m.SessionID)

	case *protocol.StreamChunk:
		c.store.ApplyChunk(m.MessageID, m.Accumulated)

	case *protocol.StreamComplete:
		c.store.FinalizeStream(m.MessageID, m.FinalMessage)

	case *protocol.Response:
		c.store.AppendMessage(protocol.RoleAssistant, m.Message, m.Suggestions)
		if m.ExecutionPlan != nil {
			c.store.SetPlan(m.ExecutionPlan)
		}

	case *protocol.ExecutionResult:
		status := protocol.StepComplete
		if !m.Result.Success() {
			status = protocol.StepError
		}
		c.store.UpdateStep(m.StepID, status, m.Result, m.Result.Error)

	case *protocol.ServerError:
		c.logger.Warn("agent reported error", "message", m.Message)
		c.store.SetError(m.Message)
		c.store.AppendMessage(protocol.RoleAssistant, "Agent error: "+m.Message, nil)

	case *protocol.Cleared:
		c.store.ClearMessages()
		c.logger.Debug("history cleared by agent")

	case *protocol.Pong:
		c.store.SetLastPong(now())
	}
}
