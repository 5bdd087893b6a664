// ABOUTME: Tests for the envelope codec.
// ABOUTME: Verifies typed decode per discriminator and outbound wire shapes.

package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_InitComplete(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"init_complete","session_id":"abc-123"}`))
	require.NoError(t, err)

	init, ok := msg.(*InitComplete)
	require.True(t, ok)
	assert.Equal(t, "abc-123", init.SessionID)
}

func TestDecode_StreamChunk(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"stream_chunk","accumulated":"Here is","message_id":"m1"}`))
	require.NoError(t, err)

	chunk, ok := msg.(*StreamChunk)
	require.True(t, ok)
	assert.Equal(t, "Here is", chunk.Accumulated)
	assert.Equal(t, "m1", chunk.MessageID)
}

func TestDecode_StreamComplete_MessageIDOptional(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"stream_complete","final_message":"done."}`))
	require.NoError(t, err)

	fin, ok := msg.(*StreamComplete)
	require.True(t, ok)
	assert.Equal(t, "done.", fin.FinalMessage)
	assert.Empty(t, fin.MessageID)
}

func TestDecode_Response_WithPlanAndSuggestions(t *testing.T) {
	raw := `{
		"type": "response",
		"message": "I made a plan.",
		"suggestions": [
			{"type":"new_cell","code":"x = 1","position":"after","auto_execute":true}
		],
		"execution_plan": [
			{"step_id":"s1","description":"create x","status":"pending"},
			{"step_id":"s2","description":"plot x","status":"pending"}
		],
		"requires_approval": true
	}`
	msg, err := Decode([]byte(raw))
	require.NoError(t, err)

	resp, ok := msg.(*Response)
	require.True(t, ok)
	assert.Equal(t, "I made a plan.", resp.Message)
	require.Len(t, resp.Suggestions, 1)
	assert.Equal(t, KindNewCell, resp.Suggestions[0].Kind)
	assert.True(t, resp.Suggestions[0].AutoExecute)
	require.Len(t, resp.ExecutionPlan, 2)
	assert.Equal(t, StepPending, resp.ExecutionPlan[0].Status)
	assert.True(t, resp.RequiresApproval)
}

func TestDecode_ExecutionResult(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"execution_result","step_id":"s2","result":{"status":"success","cell_id":"c9"}}`))
	require.NoError(t, err)

	res, ok := msg.(*ExecutionResult)
	require.True(t, ok)
	assert.Equal(t, "s2", res.StepID)
	assert.True(t, res.Result.Success())
	assert.Equal(t, "c9", res.Result.CellID)
}

func TestDecode_ErrorAndAcks(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"error","message":"model unavailable"}`))
	require.NoError(t, err)
	srvErr, ok := msg.(*ServerError)
	require.True(t, ok)
	assert.Equal(t, "model unavailable", srvErr.Message)

	msg, err = Decode([]byte(`{"type":"cleared"}`))
	require.NoError(t, err)
	assert.IsType(t, &Cleared{}, msg)

	msg, err = Decode([]byte(`{"type":"pong"}`))
	require.NoError(t, err)
	assert.IsType(t, &Pong{}, msg)
}

func TestDecode_UnknownTypeIsSentinel(t *testing.T) {
	_, err := Decode([]byte(`{"type":"shiny_new_thing","payload":1}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestDecode_Malformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `{{{`},
		{"missing type", `{"session_id":"abc"}`},
		{"type wrong kind", `{"type":42}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.raw))
			require.Error(t, err)
			assert.NotErrorIs(t, err, ErrUnknownType)
		})
	}
}

func TestEncode_Chat(t *testing.T) {
	ctx := &NotebookContext{
		ActiveCellID: "c1",
		CellCodes:    map[string]string{"c1": "import pandas as pd"},
		Variables:    map[string]any{"df": "DataFrame"},
	}
	data, err := Encode(NewChat("plot y", ctx, "openai/gpt-4", true))
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "chat", decoded["type"])
	assert.Equal(t, "plot y", decoded["message"])
	assert.Equal(t, "openai/gpt-4", decoded["model"])
	assert.Equal(t, true, decoded["stream"])
	assert.Contains(t, decoded, "context")
}

func TestEncode_Chat_StreamFalseStaysOnWire(t *testing.T) {
	data, err := Encode(NewChat("plot y", nil, "openai/gpt-4", false))
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Contains(t, decoded, "message")
	require.Contains(t, decoded, "stream")
	assert.Equal(t, false, decoded["stream"])
}

func TestEncode_Init_CarriesConfig(t *testing.T) {
	cfg := DefaultAgentConfig()
	cfg.CustomModel = "anthropic/claude"
	data, err := Encode(NewInit(cfg))
	require.NoError(t, err)

	var decoded struct {
		Type   string      `json:"type"`
		Config AgentConfig `json:"config"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "init", decoded.Type)
	assert.Equal(t, "anthropic/claude", decoded.Config.CustomModel)
	assert.True(t, decoded.Config.RequireApproval)
}

func TestEncode_BareEnvelopes(t *testing.T) {
	for _, build := range []func() Outbound{NewClear, NewPing} {
		data, err := Encode(build())
		require.NoError(t, err)

		var decoded map[string]any
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.Len(t, decoded, 1, "bare envelope should carry only its type")
	}
}

func TestAgentConfig_EffectiveModel(t *testing.T) {
	cfg := AgentConfig{DefaultModel: "openai/gpt-4"}
	assert.Equal(t, "openai/gpt-4", cfg.EffectiveModel())

	cfg.CustomModel = "google/gemini-pro"
	assert.Equal(t, "google/gemini-pro", cfg.EffectiveModel())
}

func TestStepStatus_Terminal(t *testing.T) {
	assert.False(t, StepPending.Terminal())
	assert.False(t, StepExecuting.Terminal())
	assert.True(t, StepComplete.Terminal())
	assert.True(t, StepError.Terminal())
	assert.True(t, StepCancelled.Terminal())
}
