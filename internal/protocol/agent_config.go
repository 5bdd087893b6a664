// ABOUTME: AgentConfig is the client-held policy sent to the agent in the init handshake.
// ABOUTME: Carries both wire (json) and config-file (yaml) representations.

package protocol

// AgentConfig is the client policy and model selection. It is owned by the
// consumer, sent verbatim in the init envelope, and read by the session layer
// for the auto-execute and approval gates.
type AgentConfig struct {
	Enabled         bool    `json:"enabled" yaml:"enabled"`
	DefaultModel    string  `json:"default_model" yaml:"default_model"`
	CustomModel     string  `json:"custom_model,omitempty" yaml:"custom_model"`
	AutoExecute     bool    `json:"auto_execute" yaml:"auto_execute"`
	RequireApproval bool    `json:"require_approval" yaml:"require_approval"`
	MaxSteps        int     `json:"max_steps" yaml:"max_steps"`
	StreamResponses bool    `json:"stream_responses" yaml:"stream_responses"`
	SafetyMode      string  `json:"safety_mode" yaml:"safety_mode"`
	MaxContextCells int     `json:"max_context_cells,omitempty" yaml:"max_context_cells"`
	Temperature     float64 `json:"temperature,omitempty" yaml:"temperature"`
	MaxTokens       int     `json:"max_tokens,omitempty" yaml:"max_tokens"`
}

// DefaultAgentConfig mirrors the server's defaults for an unconfigured client.
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		Enabled:         true,
		DefaultModel:    "openai/gpt-4",
		AutoExecute:     false,
		RequireApproval: true,
		MaxSteps:        10,
		StreamResponses: true,
		SafetyMode:      "balanced",
		MaxContextCells: 20,
		Temperature:     0.7,
		MaxTokens:       4096,
	}
}

// EffectiveModel resolves the model identifier actually sent with a chat
// request: the custom override when set, the default otherwise.
func (c AgentConfig) EffectiveModel() string {
	if c.CustomModel != "" {
		return c.CustomModel
	}
	return c.DefaultModel
}
