// ABOUTME: TOML reply script for the fake agent server.
// ABOUTME: Keyword-matched canned replies with optional suggestions, plans, and streaming.

package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/quill-labs/quill-agent/internal/protocol"
)

// Script drives the fake server's replies. The first reply whose match
// keyword appears in the chat message wins; otherwise the default echoes.
type Script struct {
	ChunkDelay time.Duration `toml:"-"`
	Replies    []Reply       `toml:"reply"`

	// Raw string value for TOML unmarshaling
	ChunkDelayRaw string `toml:"chunk_delay"`
}

// Reply is one canned agent turn.
type Reply struct {
	Match            string         `toml:"match"`
	Message          string         `toml:"message"`
	Stream           bool           `toml:"stream"`
	RequiresApproval bool           `toml:"requires_approval"`
	Suggestions      []ScriptedSug  `toml:"suggestions"`
	Plan             []ScriptedStep `toml:"plan"`
}

// ScriptedSug is a suggestion attached to a canned reply.
type ScriptedSug struct {
	Kind        string `toml:"kind"`
	Code        string `toml:"code"`
	CellID      string `toml:"cell_id"`
	Position    string `toml:"position"`
	Description string `toml:"description"`
	AutoExecute bool   `toml:"auto_execute"`
}

// ScriptedStep is an execution plan step attached to a canned reply. Steps
// marked fail report an error in their execution_result.
type ScriptedStep struct {
	Description string `toml:"description"`
	Fail        bool   `toml:"fail"`
	Error       string `toml:"error"`
}

// LoadScript reads and validates a TOML reply script.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading script file: %w", err)
	}

	script := DefaultScript()
	if _, err := toml.Decode(string(data), script); err != nil {
		return nil, fmt.Errorf("parsing script: %w", err)
	}

	if script.ChunkDelayRaw != "" {
		script.ChunkDelay, err = time.ParseDuration(script.ChunkDelayRaw)
		if err != nil {
			return nil, fmt.Errorf("parsing chunk_delay %q: %w", script.ChunkDelayRaw, err)
		}
	}

	for i, r := range script.Replies {
		if r.Message == "" {
			return nil, fmt.Errorf("reply %d has no message", i)
		}
		for _, s := range r.Suggestions {
			switch protocol.SuggestionKind(s.Kind) {
			case protocol.KindNewCell, protocol.KindModifyCell,
				protocol.KindDeleteCell, protocol.KindExecuteCell:
			default:
				return nil, fmt.Errorf("reply %d has unknown suggestion kind %q", i, s.Kind)
			}
		}
	}

	return script, nil
}

// DefaultScript echoes every message back with light markdown.
func DefaultScript() *Script {
	return &Script{ChunkDelay: 40 * time.Millisecond}
}

// Lookup returns the reply for one chat message, falling back to an echo.
func (s *Script) Lookup(message string) Reply {
	lower := strings.ToLower(message)
	for _, r := range s.Replies {
		if r.Match != "" && strings.Contains(lower, strings.ToLower(r.Match)) {
			return r
		}
	}
	return Reply{
		Message: fmt.Sprintf("Echo: **%s**\n\nI received your message and am responding with some *formatted* text.", message),
		Stream:  true,
	}
}
