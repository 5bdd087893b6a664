// ABOUTME: WebSocket stream handler for the fake agent server.
// ABOUTME: Speaks the client protocol: init/chat/execute/clear/ping in, scripted frames out.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/quill-labs/quill-agent/internal/protocol"
)

// StreamHandler upgrades each request to a WebSocket and runs one scripted
// agent session over it.
type StreamHandler struct {
	Script *Script
	Logger *slog.Logger
}

func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.Logger.Error("failed to accept websocket", "error", err)
		return
	}

	sess := &fakeSession{
		ws:     ws,
		script: h.Script,
		logger: h.Logger.With("remote", r.RemoteAddr),
	}
	sess.run(r.Context())
}

// fakeSession is one connected client's scripted conversation.
type fakeSession struct {
	ws        *websocket.Conn
	script    *Script
	logger    *slog.Logger
	sessionID string
	config    protocol.AgentConfig
}

func (s *fakeSession) run(ctx context.Context) {
	defer func() {
		_ = s.ws.Close(websocket.StatusNormalClosure, "session ended")
	}()

	for {
		_, data, err := s.ws.Read(ctx)
		if err != nil {
			s.logger.Debug("client gone", "error", err)
			return
		}

		var msg protocol.Outbound
		if err := json.Unmarshal(data, &msg); err != nil {
			s.sendError(ctx, fmt.Sprintf("malformed frame: %v", err))
			continue
		}

		switch msg.Type {
		case protocol.TypeInit:
			if msg.Config != nil {
				s.config = *msg.Config
			}
			if s.sessionID == "" {
				s.sessionID = uuid.New().String()
			}
			s.send(ctx, map[string]any{
				"type":       protocol.TypeInitComplete,
				"session_id": s.sessionID,
			})
			s.logger.Info("session initialized", "session_id", s.sessionID)

		case protocol.TypeChat:
			if s.sessionID == "" {
				s.sendError(ctx, "session not initialized")
				continue
			}
			s.chat(ctx, msg)

		case protocol.TypeExecute:
			if s.sessionID == "" {
				s.sendError(ctx, "session not initialized")
				continue
			}
			s.execute(ctx, msg.Suggestion)

		case protocol.TypeClear:
			s.send(ctx, map[string]any{"type": protocol.TypeCleared})

		case protocol.TypePing:
			s.send(ctx, map[string]any{"type": protocol.TypePong})

		default:
			s.sendError(ctx, fmt.Sprintf("unknown message type %q", msg.Type))
		}
	}
}

// chat answers one user turn from the script, streaming when both the client
// and the reply ask for it.
func (s *fakeSession) chat(ctx context.Context, msg protocol.Outbound) {
	var text string
	if msg.Message != nil {
		text = *msg.Message
	}
	reply := s.script.Lookup(text)
	messageID := uuid.New().String()

	// Replies carrying suggestions or a plan go out as one response frame;
	// plain text streams when both sides ask for it.
	streamed := reply.Stream && msg.Stream != nil && *msg.Stream &&
		len(reply.Suggestions) == 0 && len(reply.Plan) == 0

	if streamed {
		words := strings.Fields(reply.Message)
		var acc strings.Builder
		for _, word := range words {
			if acc.Len() > 0 {
				acc.WriteByte(' ')
			}
			acc.WriteString(word)
			s.send(ctx, map[string]any{
				"type":        protocol.TypeStreamChunk,
				"message_id":  messageID,
				"accumulated": acc.String(),
			})
			time.Sleep(s.script.ChunkDelay)
		}
		s.send(ctx, map[string]any{
			"type":          protocol.TypeStreamComplete,
			"message_id":    messageID,
			"final_message": reply.Message,
		})
	}

	suggestions := make([]protocol.Suggestion, 0, len(reply.Suggestions))
	for _, sg := range reply.Suggestions {
		suggestions = append(suggestions, protocol.Suggestion{
			ID:          uuid.New().String(),
			Kind:        protocol.SuggestionKind(sg.Kind),
			Code:        sg.Code,
			TargetID:    sg.CellID,
			Placement:   protocol.Placement(sg.Position),
			Description: sg.Description,
			AutoExecute: sg.AutoExecute,
		})
	}

	var plan []protocol.Step
	for i, step := range reply.Plan {
		plan = append(plan, protocol.Step{
			StepID:      fmt.Sprintf("step-%d", i+1),
			Description: step.Description,
			Status:      protocol.StepPending,
		})
	}

	if !streamed {
		frame := map[string]any{
			"type":    protocol.TypeResponse,
			"message": reply.Message,
		}
		if len(suggestions) > 0 {
			frame["suggestions"] = suggestions
		}
		if len(plan) > 0 {
			frame["execution_plan"] = plan
		}
		if reply.RequiresApproval {
			frame["requires_approval"] = true
		}
		s.send(ctx, frame)
	}

	// Report scripted step outcomes after the plan lands.
	for i, step := range reply.Plan {
		time.Sleep(s.script.ChunkDelay)
		result := map[string]any{"status": "success", "cell_id": uuid.New().String()}
		if step.Fail {
			errMsg := step.Error
			if errMsg == "" {
				errMsg = "scripted failure"
			}
			result = map[string]any{"status": "error", "error": errMsg}
		}
		s.send(ctx, map[string]any{
			"type":    protocol.TypeExecutionResult,
			"step_id": fmt.Sprintf("step-%d", i+1),
			"result":  result,
		})
	}
}

// execute acknowledges a server-side suggestion application.
func (s *fakeSession) execute(ctx context.Context, sug *protocol.Suggestion) {
	if sug == nil {
		s.sendError(ctx, "execute frame has no suggestion")
		return
	}
	cellID := sug.TargetID
	if cellID == "" {
		cellID = uuid.New().String()
	}
	s.send(ctx, map[string]any{
		"type":    protocol.TypeExecutionResult,
		"step_id": sug.ID,
		"result":  map[string]any{"status": "success", "cell_id": cellID},
	})
}

func (s *fakeSession) sendError(ctx context.Context, message string) {
	s.send(ctx, map[string]any{
		"type":    protocol.TypeError,
		"message": message,
	})
}

func (s *fakeSession) send(ctx context.Context, frame map[string]any) {
	data, err := json.Marshal(frame)
	if err != nil {
		s.logger.Error("encoding frame", "error", err)
		return
	}
	if err := s.ws.Write(ctx, websocket.MessageText, data); err != nil {
		s.logger.Debug("write failed", "error", err)
	}
}
