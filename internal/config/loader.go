package config

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/dinh2350/lunar/pkg/models"
	"gopkg.in/yaml.v3"
)

// Load reads, expands, decodes, overrides, defaults, and validates the
// configuration at path, in that order (§10.2).
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("config: %s must contain a single YAML document", path)
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

// applyEnvOverrides applies the environment variables named in spec.md
// §6, each overriding only a still-zero-valued field so precedence is
// file > env > default.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LUNAR_PORT"); v != "" && cfg.Gateway.Port == 0 {
		fmt.Sscanf(v, "%d", &cfg.Gateway.Port)
	}
	if v := os.Getenv("LUNAR_AGENT"); v != "" && cfg.Server.AgentName == "" {
		cfg.Server.AgentName = v
	}
	if v := os.Getenv("LUNAR_MODEL"); v != "" && cfg.LLM.Model == "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("OLLAMA_URL"); v != "" && cfg.LLM.OllamaURL == "" {
		cfg.LLM.OllamaURL = v
	}
	if v := os.Getenv("LUNAR_WORKSPACE"); v != "" && cfg.Server.Workspace == "" {
		cfg.Server.Workspace = v
	}
	if v := os.Getenv("LUNAR_DATA"); v != "" && cfg.Server.DataDir == "" {
		cfg.Server.DataDir = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" && cfg.Channels.Telegram.Token == "" {
		cfg.Channels.Telegram.Token = v
	}
}

func applyDefaults(cfg *Config) {
	applyServerDefaults(&cfg.Server)
	applyGatewayDefaults(&cfg.Gateway)
	applyLLMDefaults(&cfg.LLM)
	applyRAGDefaults(&cfg.RAG)
	applyObservabilityDefaults(&cfg.Observability)
	applyToolsDefaults(&cfg.Tools)
}

func applyServerDefaults(s *ServerConfig) {
	if s.AgentName == "" {
		s.AgentName = "lunar"
	}
	if s.Workspace == "" {
		s.Workspace = "."
	}
	if s.DataDir == "" {
		s.DataDir = s.Workspace
	}
}

func applyGatewayDefaults(g *GatewayConfig) {
	if g.Port == 0 {
		g.Port = 8080
	}
}

func applyLLMDefaults(l *LLMConfig) {
	if l.Provider == "" {
		l.Provider = "anthropic"
	}
	if l.MaxIterations == 0 {
		l.MaxIterations = 12
	}
}

func applyRAGDefaults(r *RAGConfig) {
	if r.IndexPath == "" {
		r.IndexPath = "index.db"
	}
	if r.ChunkSize == 0 {
		r.ChunkSize = 400
	}
	if r.ChunkOverlap == 0 {
		r.ChunkOverlap = 80
	}
	if r.VectorWeight == 0 && r.LexicalWeight == 0 {
		r.VectorWeight, r.LexicalWeight = 0.7, 0.3
	}
	if r.MaxResults == 0 {
		r.MaxResults = 5
	}
}

func applyObservabilityDefaults(o *ObservabilityConfig) {
	if o.LogLevel == "" {
		o.LogLevel = "info"
	}
	if o.LogFormat == "" {
		o.LogFormat = "text"
	}
}

func applyToolsDefaults(t *ToolsConfig) {
	if t.AutoApproveUpTo == "" {
		t.AutoApproveUpTo = string(models.RiskLow)
	}
}

// validate rejects a negative port, negative RAG weights, an enabled
// Telegram channel missing its token, an unrecognized llm.provider, and an
// out-of-range tools.auto_approve_up_to (§10.2 step 5).
func (c *Config) validate() error {
	if c.Gateway.Port < 0 {
		return fmt.Errorf("gateway.port must be >= 0")
	}
	if c.RAG.VectorWeight < 0 || c.RAG.LexicalWeight < 0 {
		return fmt.Errorf("rag.vector_weight and rag.lexical_weight must be >= 0")
	}
	if c.Channels.Telegram.Enabled && c.Channels.Telegram.Token == "" {
		return fmt.Errorf("channels.telegram.token is required when channels.telegram.enabled is true")
	}
	switch c.LLM.Provider {
	case "anthropic", "openai":
	default:
		return fmt.Errorf("llm.provider must be \"anthropic\" or \"openai\", got %q", c.LLM.Provider)
	}
	switch models.RiskLevel(c.Tools.AutoApproveUpTo) {
	case models.RiskLow, models.RiskMedium, models.RiskHigh:
	default:
		return fmt.Errorf("tools.auto_approve_up_to must be low, medium, or high, got %q", c.Tools.AutoApproveUpTo)
	}
	return nil
}
