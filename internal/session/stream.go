// ABOUTME: Streaming accumulator — reconciles cumulative stream_chunk frames
// ABOUTME: into one open assistant message and finalizes it on completion.

package session

import (
	"github.com/google/uuid"

	"github.com/quill-labs/quill-agent/internal/protocol"
)

// ApplyChunk reconciles one cumulative chunk for the reply identified by
// corrID. The first chunk opens a new assistant message; later chunks replace
// its visible content with the accumulated payload (latest chunk wins).
// Chunks for a correlation id other than the open one are dropped: this layer
// never holds two open messages.
func (s *Store) ApplyChunk(corrID, accumulated string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.openIdx < 0 {
		msg := Message{
			ID:        messageID(corrID),
			Role:      protocol.RoleAssistant,
			Content:   accumulated,
			CreatedAt: now(),
		}
		s.appendLocked(msg)
		s.openIdx = len(s.messages) - 1
		s.openCorr = corrID
		return
	}

	if corrID != s.openCorr {
		s.logger.Warn("dropping stream chunk for unexpected message",
			"message_id", corrID,
			"open_message_id", s.openCorr,
		)
		return
	}

	s.messages[s.openIdx].Content = accumulated
}

// FinalizeStream closes the open streaming message with the authoritative
// final text. A completion with no prior chunk (a reply the server chose not
// to stream) opens and immediately finalizes the message so the payload is
// never lost. An empty corrID matches whatever message is open.
func (s *Store) FinalizeStream(corrID, final string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.openIdx < 0 {
		s.appendLocked(Message{
			ID:        messageID(corrID),
			Role:      protocol.RoleAssistant,
			Content:   final,
			CreatedAt: now(),
		})
		return
	}

	if corrID != "" && corrID != s.openCorr {
		s.logger.Warn("dropping stream completion for unexpected message",
			"message_id", corrID,
			"open_message_id", s.openCorr,
		)
		return
	}

	s.messages[s.openIdx].Content = final
	s.openIdx = -1
	s.openCorr = ""
}

// StreamOpen reports whether a reply is currently being streamed.
func (s *Store) StreamOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openIdx >= 0
}

// messageID uses the server-supplied correlation id as the message id when
// present, so the finalized message keeps a stable identity across chunks.
func messageID(corrID string) string {
	if corrID != "" {
		return corrID
	}
	return uuid.New().String()
}
