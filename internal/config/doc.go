// Package config handles configuration loading for the quill-agent client.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults; a missing file means
// defaults apply.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from QUILL_CONFIG environment variable
//  2. ./quill.yaml (current directory)
//  3. ~/.config/quill/agent.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	server:
//	  url: "${QUILL_AGENT_URL}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	session:
//	  heartbeat_interval: "30s"
//	  reconnect_delay: "3s"
//
// Supported units: ns, us, ms, s, m, h
//
// # Live Reload
//
// Watch re-reads the file on change and hands validated configs to the
// consumer; the session layer re-sends its handshake so the server picks up
// the new policy without dropping the conversation.
package config
