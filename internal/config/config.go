// ABOUTME: Configuration loading and parsing for quill-agent
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/quill-labs/quill-agent/internal/protocol"
	"github.com/quill-labs/quill-agent/internal/safety"
)

// Config represents the complete quill-agent client configuration
type Config struct {
	Server     ServerConfig         `yaml:"server"`
	Session    SessionConfig        `yaml:"session"`
	Agent      protocol.AgentConfig `yaml:"agent"`
	Logging    LoggingConfig        `yaml:"logging"`
	Transcript TranscriptConfig     `yaml:"transcript"`
}

// ServerConfig holds the agent stream endpoint configuration
type ServerConfig struct {
	// URL of the agent stream endpoint, e.g. ws://localhost:2718/api/agent/stream
	URL string `yaml:"url"`
}

// SessionConfig holds session-level timing configuration
type SessionConfig struct {
	HeartbeatInterval time.Duration `yaml:"-"`
	ReconnectDelay    time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	HeartbeatIntervalRaw string `yaml:"heartbeat_interval"`
	ReconnectDelayRaw    string `yaml:"reconnect_delay"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TranscriptConfig holds transcript export configuration
type TranscriptConfig struct {
	// OutputDir is where /export writes HTML transcripts. Defaults to the
	// current directory.
	OutputDir string `yaml:"output_dir"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{URL: "ws://localhost:2718/api/agent/stream"},
		Session: SessionConfig{
			HeartbeatInterval: 30 * time.Second,
			ReconnectDelay:    3 * time.Second,
		},
		Agent:   protocol.DefaultAgentConfig(),
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
// Fields absent from the file keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expandedData), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Locate resolves the config file path: the QUILL_CONFIG environment
// variable, then ./quill.yaml, then ~/.config/quill/agent.yaml. An empty
// string means no file was found and defaults apply.
func Locate() string {
	if p := os.Getenv("QUILL_CONFIG"); p != "" {
		return p
	}
	if _, err := os.Stat("quill.yaml"); err == nil {
		return "quill.yaml"
	}
	if home, err := os.UserHomeDir(); err == nil {
		p := filepath.Join(home, ".config", "quill", "agent.yaml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.URL == "" {
		return fmt.Errorf("server.url is required")
	}
	if !strings.HasPrefix(c.Server.URL, "ws://") && !strings.HasPrefix(c.Server.URL, "wss://") {
		return fmt.Errorf("server.url must be a ws:// or wss:// URL, got %q", c.Server.URL)
	}

	if c.Agent.DefaultModel == "" {
		return fmt.Errorf("agent.default_model is required")
	}
	if c.Agent.MaxSteps <= 0 {
		return fmt.Errorf("agent.max_steps must be positive, got %d", c.Agent.MaxSteps)
	}
	if _, err := safety.ParseMode(c.Agent.SafetyMode); err != nil {
		return fmt.Errorf("agent.safety_mode: %w", err)
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Session.HeartbeatIntervalRaw != "" {
		cfg.Session.HeartbeatInterval, err = time.ParseDuration(cfg.Session.HeartbeatIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing heartbeat_interval %q: %w", cfg.Session.HeartbeatIntervalRaw, err)
		}
	}

	if cfg.Session.ReconnectDelayRaw != "" {
		cfg.Session.ReconnectDelay, err = time.ParseDuration(cfg.Session.ReconnectDelayRaw)
		if err != nil {
			return fmt.Errorf("parsing reconnect_delay %q: %w", cfg.Session.ReconnectDelayRaw, err)
		}
	}

	return nil
}
