// Package config loads the lunar runtime's single YAML configuration
// document into a typed Config (§10.2): one root struct composed of
// yaml-tagged sub-structs, environment-variable placeholders resolved
// against the process environment, explicit LUNAR_*/TELEGRAM_* overrides
// applied on top, then per-section defaults and validation.
package config

import (
	"github.com/dinh2350/lunar/internal/mcp"
	"github.com/dinh2350/lunar/internal/memory/embeddings"
	"github.com/dinh2350/lunar/pkg/models"
)

// Config is the root configuration document.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Gateway       GatewayConfig       `yaml:"gateway"`
	Channels      ChannelsConfig      `yaml:"channels"`
	LLM           LLMConfig           `yaml:"llm"`
	RAG           RAGConfig           `yaml:"rag"`
	Safety        SafetyConfig        `yaml:"safety"`
	MCP           mcp.Config          `yaml:"mcp"`
	Observability ObservabilityConfig `yaml:"observability"`
	Tools         ToolsConfig         `yaml:"tools"`
}

// ServerConfig names the agent and the filesystem roots its persistent
// state lives under (§6's "persistent state layout under an agent
// workspace root").
type ServerConfig struct {
	AgentName string `yaml:"agent_name"`
	Model     string `yaml:"model"`
	Workspace string `yaml:"workspace"`
	DataDir   string `yaml:"data_dir"`
}

// GatewayConfig configures the HTTP/WebSocket listener (§4.I, §6).
type GatewayConfig struct {
	Port int `yaml:"port"`
}

// ChannelsConfig configures the channel connectors §4.H/§6 names.
type ChannelsConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig configures the Telegram long-polling connector.
type TelegramConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
}

// LLMConfig selects the chat completion provider (§4.G's abstract chat
// contract) and its credentials.
type LLMConfig struct {
	Provider      string `yaml:"provider"` // "anthropic" | "openai"
	Model         string `yaml:"model"`
	AnthropicKey  string `yaml:"anthropic_api_key"`
	OpenAIKey     string `yaml:"openai_api_key"`
	OllamaURL     string `yaml:"ollama_url"`
	MaxIterations int    `yaml:"max_iterations"`
}

// RAGConfig configures the hybrid memory index and indexer (§4.B, §4.C).
type RAGConfig struct {
	IndexPath     string            `yaml:"index_path"`
	ChunkSize     int               `yaml:"chunk_size"`
	ChunkOverlap  int               `yaml:"chunk_overlap"`
	VectorWeight  float64           `yaml:"vector_weight"`
	LexicalWeight float64           `yaml:"lexical_weight"`
	MaxResults    int               `yaml:"max_results"`
	Embeddings    embeddings.Config `yaml:"embeddings"`
}

// SafetyConfig is the safety section of the document (§4.D). The guard
// catalog itself is fixed. Enabled is decoded but not read by any other
// package: the gateway and the channel fan-in always run the input/output
// guard pipelines, whatever its value.
type SafetyConfig struct {
	Enabled bool `yaml:"enabled"`
}

// ObservabilityConfig holds the logging settings (§4.J, §10.1). Load
// decodes and defaults both fields, but no other package reads them: the
// CLI always logs through a text handler on stderr.
type ObservabilityConfig struct {
	LogLevel  string `yaml:"log_level"`  // debug, info, warn, error
	LogFormat string `yaml:"log_format"` // text, json
}

// ToolsConfig carries the permission table the router enforces (§4.E) and
// the approval auto-approve threshold.
type ToolsConfig struct {
	Permissions     []models.Permission `yaml:"permissions"`
	AutoApproveUpTo string              `yaml:"auto_approve_up_to"` // low, medium, high
}
