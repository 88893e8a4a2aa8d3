// Package config loads agent configuration from YAML.
package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// BackendConfig selects and tunes a model backend.
type BackendConfig struct {
	// Provider is "openai" or "anthropic".
	Provider string `yaml:"provider"`
	// Model is the provider-specific model id. Empty uses the adapter default.
	Model string `yaml:"model,omitempty"`
	// Temperature applies when non-nil.
	Temperature *float64 `yaml:"temperature,omitempty"`
	// MaxTokens bounds completion length when positive.
	MaxTokens int64 `yaml:"max_tokens,omitempty"`
	// APIKey overrides the environment credential when set.
	APIKey string `yaml:"api_key,omitempty"`
}

// MCPServerConfig describes one Model Context Protocol server.
type MCPServerConfig struct {
	Name string `yaml:"name"`
	// Transport is a transport spec: stdio://<cmd>, sse://<url>,
	// http(s)://<url> or a bare command line.
	Transport string `yaml:"transport"`
}

// LoggingConfig tunes structured logging output.
type LoggingConfig struct {
	// Level is debug, info, warn or error. Default info.
	Level string `yaml:"level,omitempty"`
	// Format is json or text. Default json.
	Format string `yaml:"format,omitempty"`
}

// Config is the root configuration document.
type Config struct {
	// SystemPrompt opens every new conversation.
	SystemPrompt string `yaml:"system_prompt,omitempty"`
	// MaxRounds bounds model rounds per turn. Zero uses the engine default.
	MaxRounds int `yaml:"max_rounds,omitempty"`
	// SessionDir enables file persistence when set.
	SessionDir string `yaml:"session_dir,omitempty"`

	Backend    BackendConfig     `yaml:"backend"`
	MCPServers []MCPServerConfig `yaml:"mcp_servers,omitempty"`
	Logging    LoggingConfig     `yaml:"logging,omitempty"`
}

// Default returns a configuration usable without a file.
func Default() Config {
	return Config{
		Backend: BackendConfig{Provider: "openai"},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}

// Load reads and validates a YAML configuration file. Unknown fields are
// rejected so typos fail loudly.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates configuration from raw YAML.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	switch c.Backend.Provider {
	case "openai", "anthropic":
	case "":
		return fmt.Errorf("config: backend.provider is required")
	default:
		return fmt.Errorf("config: unsupported backend provider %q", c.Backend.Provider)
	}
	if c.MaxRounds < 0 {
		return fmt.Errorf("config: max_rounds must not be negative")
	}
	seen := make(map[string]struct{}, len(c.MCPServers))
	for _, server := range c.MCPServers {
		if server.Name == "" {
			return fmt.Errorf("config: mcp server without name")
		}
		if server.Transport == "" {
			return fmt.Errorf("config: mcp server %q without transport", server.Name)
		}
		if _, dup := seen[server.Name]; dup {
			return fmt.Errorf("config: duplicate mcp server %q", server.Name)
		}
		seen[server.Name] = struct{}{}
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unsupported log level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "", "json", "text":
	default:
		return fmt.Errorf("config: unsupported log format %q", c.Logging.Format)
	}
	return nil
}
