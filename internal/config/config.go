// Package config loads the agent-server configuration: a JSON file at a
// path given by an environment variable, overlaid field-by-field with
// UPPER_SNAKE environment variables, in the explicit (non-reflective) style
// the rest of this module's ambient stack follows.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/haasonsaas/nexus/internal/webhook"
)

// ConfigPathEnv names the environment variable holding the config file path.
const ConfigPathEnv = "AGENTCORED_CONFIG"

// Config is the agent server's full configuration, per spec.md §6.6. Yaml
// tags mirror the json ones so the same struct decodes either the primary
// json5 file or a $include'd yaml overlay (see loader.go).
type Config struct {
	SessionAPIKeys    []string       `json:"session_api_keys,omitempty" yaml:"session_api_keys,omitempty"`
	AllowCORSOrigins  []string       `json:"allow_cors_origins,omitempty" yaml:"allow_cors_origins,omitempty"`
	ConversationsPath string         `json:"conversations_path" yaml:"conversations_path"`
	WorkspacePath     string         `json:"workspace_path" yaml:"workspace_path"`
	BashEventsDir     string         `json:"bash_events_dir,omitempty" yaml:"bash_events_dir,omitempty"`
	StaticFilesPath   string         `json:"static_files_path,omitempty" yaml:"static_files_path,omitempty"`
	Webhooks          []webhook.Spec `json:"webhooks,omitempty" yaml:"webhooks,omitempty"`
	EnableVSCode      bool           `json:"enable_vscode,omitempty" yaml:"enable_vscode,omitempty"`
	EnableVNC         bool           `json:"enable_vnc,omitempty" yaml:"enable_vnc,omitempty"`
	// CockroachIndexDSN, when set, mirrors conversation metadata into a
	// CockroachDB/Postgres table via internal/store.CockroachIndex, as a
	// secondary search index for deployments too large for Service.List's
	// in-memory scan. Empty disables it.
	CockroachIndexDSN string `json:"cockroach_index_dsn,omitempty" yaml:"cockroach_index_dsn,omitempty"`

	Server  ServerConfig  `json:"server,omitempty" yaml:"server,omitempty"`
	LLM     LLMConfig     `json:"llm,omitempty" yaml:"llm,omitempty"`
	Logging LoggingConfig `json:"logging,omitempty" yaml:"logging,omitempty"`
}

// ServerConfig holds HTTP/WS listener settings.
type ServerConfig struct {
	Addr string `json:"addr,omitempty" yaml:"addr,omitempty"`
}

// LLMConfig holds the default provider settings for new conversations.
type LLMConfig struct {
	Provider     string `json:"provider,omitempty" yaml:"provider,omitempty"` // currently only "anthropic"
	APIKey       string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	BaseURL      string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	DefaultModel string `json:"default_model,omitempty" yaml:"default_model,omitempty"`
	MaxTokens    int    `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
}

// LoggingConfig configures the process-wide slog handler.
type LoggingConfig struct {
	Level  string `json:"level,omitempty" yaml:"level,omitempty"`   // debug|info|warn|error
	Format string `json:"format,omitempty" yaml:"format,omitempty"` // text|json
}

// Default returns a Config with the defaults the server falls back to when
// a field is omitted from both the file and the environment.
func Default() Config {
	return Config{
		ConversationsPath: "./data/conversations",
		WorkspacePath:     "./data/workspaces",
		BashEventsDir:     "./data/bash_events",
		Server:            ServerConfig{Addr: ":3000"},
		LLM:               LLMConfig{Provider: "anthropic", DefaultModel: "claude-sonnet-4-20250514", MaxTokens: 4096},
		Logging:           LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads path (JSON, tolerant of trailing commas/comments via json5) and
// overlays environment variables on top. Fields absent from both start from
// Default(). path may $include one or more sibling files; an included file
// with a non-json5 extension (e.g. a webhooks.yaml overlay listing
// WebhookSpec entries) is parsed as YAML and deep-merged in before decoding.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		raw, err := LoadRaw(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := decodeRawConfigInto(&cfg, raw); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFromEnvPath is the composition root's entry point: it reads
// ConfigPathEnv and calls Load, tolerating an unset path (defaults +
// env-only configuration, useful for container deployments with no mounted
// config file).
func LoadFromEnvPath() (Config, error) {
	return Load(os.Getenv(ConfigPathEnv))
}

// applyEnvOverrides mirrors each field against an explicit UPPER_SNAKE
// environment variable name, matching the original implementation's
// env-var-wins-outright semantics. No reflection: each field is named once,
// here, so the override surface stays auditable at the call site.
func applyEnvOverrides(cfg *Config) {
	if v, ok := envList("SESSION_API_KEYS"); ok {
		cfg.SessionAPIKeys = v
	}
	if v, ok := envList("ALLOW_CORS_ORIGINS"); ok {
		cfg.AllowCORSOrigins = v
	}
	if v, ok := envStr("CONVERSATIONS_PATH"); ok {
		cfg.ConversationsPath = v
	}
	if v, ok := envStr("WORKSPACE_PATH"); ok {
		cfg.WorkspacePath = v
	}
	if v, ok := envStr("BASH_EVENTS_DIR"); ok {
		cfg.BashEventsDir = v
	}
	if v, ok := envStr("STATIC_FILES_PATH"); ok {
		cfg.StaticFilesPath = v
	}
	if v, ok := envStr("COCKROACH_INDEX_DSN"); ok {
		cfg.CockroachIndexDSN = v
	}
	if v, ok := envBool("ENABLE_VSCODE"); ok {
		cfg.EnableVSCode = v
	}
	if v, ok := envBool("ENABLE_VNC"); ok {
		cfg.EnableVNC = v
	}
	if v, ok := envStr("SERVER_ADDR"); ok {
		cfg.Server.Addr = v
	}
	if v, ok := envStr("LLM_PROVIDER"); ok {
		cfg.LLM.Provider = v
	}
	if v, ok := envStr("LLM_API_KEY"); ok {
		cfg.LLM.APIKey = v
	}
	if v, ok := envStr("LLM_BASE_URL"); ok {
		cfg.LLM.BaseURL = v
	}
	if v, ok := envStr("LLM_DEFAULT_MODEL"); ok {
		cfg.LLM.DefaultModel = v
	}
	if v, ok := envInt("LLM_MAX_TOKENS"); ok {
		cfg.LLM.MaxTokens = v
	}
	if v, ok := envStr("LOG_LEVEL"); ok {
		cfg.Logging.Level = v
	}
	if v, ok := envStr("LOG_FORMAT"); ok {
		cfg.Logging.Format = v
	}
}

func envStr(name string) (string, bool) {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func envBool(name string) (bool, bool) {
	v, ok := envStr(name)
	if !ok {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}

func envInt(name string) (int, bool) {
	v, ok := envStr(name)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envList(name string) ([]string, bool) {
	v, ok := envStr(name)
	if !ok {
		return nil, false
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out, true
}

func validate(cfg Config) error {
	if cfg.ConversationsPath == "" {
		return fmt.Errorf("config: conversations_path is required")
	}
	if cfg.WorkspacePath == "" {
		return fmt.Errorf("config: workspace_path is required")
	}
	return nil
}
