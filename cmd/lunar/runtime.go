package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/dinh2350/lunar/internal/agent"
	"github.com/dinh2350/lunar/internal/agent/builtins"
	"github.com/dinh2350/lunar/internal/agent/providers"
	"github.com/dinh2350/lunar/internal/config"
	"github.com/dinh2350/lunar/internal/mcp"
	"github.com/dinh2350/lunar/internal/memory"
	"github.com/dinh2350/lunar/internal/memory/backend/sqlitevec"
	"github.com/dinh2350/lunar/internal/memory/embeddings"
	embeddollama "github.com/dinh2350/lunar/internal/memory/embeddings/ollama"
	embedopenai "github.com/dinh2350/lunar/internal/memory/embeddings/openai"
	"github.com/dinh2350/lunar/internal/observability"
	"github.com/dinh2350/lunar/internal/sessions"
	"github.com/dinh2350/lunar/pkg/models"
)

// runtime holds every leaves-first-constructed component shared by the
// serve, chat, and index subcommands (§4.I/§9's construction order:
// index -> indexer -> tools -> router -> agent -> channels).
type runtime struct {
	cfg         *config.Config
	logger      *slog.Logger
	backend     *sqlitevec.Backend
	index       *memory.Index
	indexer     *memory.Indexer
	sessions    *sessions.Store
	router      *agent.Router
	loop        *agent.Loop
	mcp         *mcp.Manager
	metrics     *observability.SampleStore
	audit       *observability.AuditLog
	promMetrics *observability.Metrics
}

func newRuntime(ctx context.Context, cfgPath string) (*runtime, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	logger := slog.Default()

	embedder, err := buildEmbedder(cfg.RAG.Embeddings)
	if err != nil {
		return nil, fmt.Errorf("embeddings: %w", err)
	}

	backend, err := sqlitevec.New(sqlitevec.Config{
		Path:      cfg.RAG.IndexPath,
		Dimension: embedder.Dimension(),
	})
	if err != nil {
		return nil, fmt.Errorf("index backend: %w", err)
	}
	index := memory.NewIndex(backend, embedder, cfg.RAG.VectorWeight, cfg.RAG.LexicalWeight)
	indexer := memory.NewIndexer(cfg.Server.Workspace, index, memory.ChunkConfig{
		WordBudget:   cfg.RAG.ChunkSize,
		OverlapWords: cfg.RAG.ChunkOverlap,
	})

	store, err := sessions.NewStore(filepath.Join(cfg.Server.DataDir, "sessions"), logger)
	if err != nil {
		return nil, fmt.Errorf("session store: %w", err)
	}

	metrics := observability.NewSampleStore()
	audit := observability.NewAuditLog()
	promMetrics := observability.NewMetrics()
	perms := agent.NewPermissionManager(mergePermissions(
		agent.DefaultBuiltinPermissions(cfg.Server.Workspace),
		cfg.Tools.Permissions,
	))
	approval := agent.AutoApproveUpTo(riskLevelFromString(cfg.Tools.AutoApproveUpTo))
	router := agent.NewRouter(perms, approval, metrics, audit)
	registerBuiltins(router, cfg, index, indexer)

	var mcpMgr *mcp.Manager
	if cfg.MCP.Enabled {
		mcpMgr = mcp.NewManager(&cfg.MCP, logger)
		if err := mcpMgr.Start(ctx); err != nil {
			logger.Warn("starting MCP manager", "error", err)
		}
		registerRemoteTools(router, perms, mcpMgr, logger)
	}

	provider, err := buildProvider(cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("llm provider: %w", err)
	}

	loop := agent.NewLoop(provider, router, store)
	loop.Model = cfg.LLM.Model
	if loop.Model == "" {
		loop.Model = cfg.Server.Model
	}

	return &runtime{
		cfg:         cfg,
		logger:      logger,
		backend:     backend,
		index:       index,
		indexer:     indexer,
		sessions:    store,
		router:      router,
		loop:        loop,
		mcp:         mcpMgr,
		metrics:     metrics,
		audit:       audit,
		promMetrics: promMetrics,
	}, nil
}

func (rt *runtime) Close() error {
	if rt.mcp != nil {
		if err := rt.mcp.Stop(); err != nil {
			rt.logger.Warn("stopping MCP manager", "error", err)
		}
	}
	return rt.backend.Close()
}

// mergePermissions overlays configured permissions onto the policy
// defaults, by tool name, so an operator's explicit tools.permissions
// entry always wins over the builtin default for that tool.
func mergePermissions(defaults, configured []models.Permission) []models.Permission {
	table := make(map[string]models.Permission, len(defaults)+len(configured))
	order := make([]string, 0, len(defaults)+len(configured))
	for _, p := range defaults {
		table[p.ToolName] = p
		order = append(order, p.ToolName)
	}
	for _, p := range configured {
		if _, exists := table[p.ToolName]; !exists {
			order = append(order, p.ToolName)
		}
		table[p.ToolName] = p
	}
	merged := make([]models.Permission, 0, len(order))
	for _, name := range order {
		merged = append(merged, table[name])
	}
	return merged
}

// registerRemoteTools wraps every connected MCP server's tools and
// registers them with the router, applying the remote-tool half of the
// policy defaults (§policy defaults) to any tool without an explicit
// configured permission. A destructive-pattern tool is left unregistered
// with no permission entry at all, so the router denies it outright.
func registerRemoteTools(router *agent.Router, perms *agent.PermissionManager, mgr *mcp.Manager, logger *slog.Logger) {
	for _, t := range mcp.RemoteTools(mgr) {
		if _, configured := perms.Lookup(t.Name()); !configured {
			perm, ok := agent.ClassifyRemoteToolPermission(t.Name())
			if !ok {
				logger.Warn("mcp tool denied by destructive-verb policy default", "tool", t.Name())
				continue
			}
			perm.Description = "mcp"
			perms.Set(perm)
		}
		router.Register(t)
	}
}

func registerBuiltins(router *agent.Router, cfg *config.Config, index *memory.Index, indexer *memory.Indexer) {
	router.Register(&builtins.TimeTool{})
	router.Register(&builtins.CalculatorTool{})
	router.Register(builtins.NewReadFileTool(cfg.Server.Workspace, 0))
	router.Register(builtins.NewListDirectoryTool(cfg.Server.Workspace))
	router.Register(builtins.NewMemorySearchTool(index, cfg.RAG.MaxResults))
	router.Register(builtins.NewMemoryWriteTool(cfg.Server.Workspace, indexer))
}

func buildEmbedder(cfg embeddings.Config) (embeddings.Provider, error) {
	switch cfg.Provider {
	case "", "ollama":
		return embeddollama.New(embeddollama.Config{BaseURL: cfg.OllamaURL, Model: cfg.Model})
	case "openai":
		return embedopenai.New(embedopenai.Config{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL, Model: cfg.Model})
	default:
		return nil, fmt.Errorf("unrecognized embeddings provider %q", cfg.Provider)
	}
}

func buildProvider(cfg config.LLMConfig) (agent.Provider, error) {
	switch cfg.Provider {
	case "openai":
		return providers.NewOpenAI(providers.OpenAIConfig{
			APIKey:       cfg.OpenAIKey,
			BaseURL:      cfg.OllamaURL,
			DefaultModel: cfg.Model,
		})
	default:
		return providers.NewAnthropic(providers.AnthropicConfig{
			APIKey:       cfg.AnthropicKey,
			DefaultModel: cfg.Model,
		})
	}
}

func riskLevelFromString(s string) models.RiskLevel { return models.RiskLevel(s) }
