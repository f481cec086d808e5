package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/arclight-labs/maker/common/arangodb"
	"github.com/arclight-labs/maker/common/id"
	"github.com/arclight-labs/maker/common/llm"
	"github.com/arclight-labs/maker/common/logger"
	"github.com/arclight-labs/maker/common/otel"
	"github.com/arclight-labs/maker/core/config"
	"github.com/arclight-labs/maker/internal/astparse"
	"github.com/arclight-labs/maker/internal/checkpoint"
	"github.com/arclight-labs/maker/internal/codeservice"
	"github.com/arclight-labs/maker/internal/hmn"
	"github.com/arclight-labs/maker/internal/http/workflowapi"
	"github.com/arclight-labs/maker/internal/kv"
	"github.com/arclight-labs/maker/internal/llmclient"
	"github.com/arclight-labs/maker/internal/maker"
	"github.com/arclight-labs/maker/internal/mcp"
	"github.com/arclight-labs/maker/internal/orchestrator"
	"github.com/arclight-labs/maker/internal/progress"
	"github.com/arclight-labs/maker/internal/skillstore"
	"github.com/arclight-labs/maker/internal/worker"
)

func main() {
	fmt.Printf("%s\n", banner)
	ctx := context.Background()

	_ = godotenv.Load() // best-effort: fine if .env doesn't exist

	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	// OTel must init before logger (logger uses OTel provider in production)
	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)

	if telemetry != nil {
		slog.InfoContext(ctx, "otel initialized", "endpoint", cfg.OTel.Endpoint)
	} else {
		slog.InfoContext(ctx, "otel disabled (no endpoint configured)")
	}

	slog.InfoContext(ctx, "maker starting", "env", cfg.Env)
	if err := id.Init(1); err != nil {
		slog.ErrorContext(ctx, "failed to initialize snowflake id generator", "error", err)
		os.Exit(1)
	}

	store, err := kv.New(ctx, kv.Config{Addr: cfg.KV.Addr, Password: cfg.KV.Password, DB: cfg.KV.DB})
	if err != nil {
		slog.ErrorContext(ctx, "failed to connect to kv store", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	slog.InfoContext(ctx, "kv store connected", "addr", cfg.KV.Addr)

	registry, err := buildAgentRegistry(cfg.Agents)
	if err != nil {
		slog.ErrorContext(ctx, "failed to build agent registry", "error", err)
		os.Exit(1)
	}

	parser := astparse.New()
	runner := worker.ExecCommandRunner{}
	codeSvc := codeservice.New(cfg.CodebaseRoot, parser, runner, nil)

	var graph *hmn.Network
	if cfg.Arango.Enabled {
		arangoClient, err := arangodb.New(ctx, arangodb.Config{
			URL:      cfg.Arango.URL,
			Username: cfg.Arango.Username,
			Password: cfg.Arango.Password,
			Database: cfg.Arango.Database,
		})
		if err != nil {
			slog.ErrorContext(ctx, "failed to connect to arangodb", "error", err)
			os.Exit(1)
		}
		hmnCfg := hmn.DefaultConfig()
		hmnCfg.MaxFiles = cfg.HMN.MaxFiles
		hmnCfg.MinPatternSize = cfg.HMN.MinPatternSize
		hmnCfg.PageRankDamping = cfg.HMN.PageRankDamping
		hmnCfg.PageRankTolerance = cfg.HMN.PageRankTolerance
		hmnCfg.PageRankMaxIterations = cfg.HMN.PageRankMaxIterations
		graph = hmn.New(cfg.CodebaseRoot, parser, store, arangoClient, hmnCfg)
		codeSvc.SetGraph(graph)
		slog.InfoContext(ctx, "hierarchical memory network connected", "url", cfg.Arango.URL)
	} else {
		slog.InfoContext(ctx, "hierarchical memory network disabled (ARANGO_ENABLED=false)")
	}

	skills, err := skillstore.New(cfg.SkillsDir)
	if err != nil {
		slog.ErrorContext(ctx, "failed to open skill store", "error", err)
		os.Exit(1)
	}
	skillRegistry := skillstore.NewRegistry(store)

	tracker, err := progress.New(cfg.CodebaseRoot)
	if err != nil {
		slog.ErrorContext(ctx, "failed to open progress tracker", "error", err)
		os.Exit(1)
	}

	checkpoints := checkpoint.New(runner, tracker, store, cfg.CodebaseRoot)
	makerEngine := maker.New(registry)

	orchCfg := orchestrator.Config{
		MaxIterations:          cfg.Orchestrator.MaxIterations,
		NumCandidates:          cfg.Orchestrator.NumCandidates,
		VoteK:                  cfg.Orchestrator.VoteK,
		ReviewMode:             orchestrator.ReviewMode(cfg.Orchestrator.ReviewMode),
		EnableEEPlanner:        cfg.Orchestrator.EnableEEPlanner,
		SkillAnnounceThreshold: cfg.Orchestrator.SkillAnnounceThreshold,
		HMNTopK:                cfg.Orchestrator.HMNTopK,
		MaxContextTokens:       cfg.Orchestrator.MaxContextTokens,
		RecentWindow:           cfg.Orchestrator.RecentWindow,
		SummaryChunkSize:       cfg.Orchestrator.SummaryChunkSize,
	}
	orch := orchestrator.New(orchCfg, orchestrator.Deps{
		KV:            store,
		Agents:        registry,
		Code:          codeSvc,
		Graph:         graph,
		Skills:        skills,
		SkillRegistry: skillRegistry,
		Progress:      tracker,
		Checkpoints:   checkpoints,
		Maker:         makerEngine,
	})

	dispatcher := mcp.NewDispatcher(codeSvc, mcp.LoadPermissions(cfg.CodebaseRoot))
	mcpServer := mcp.NewServer(dispatcher, "maker", "0.1.0")
	_ = mcpServer // mounted over stdio/other transports by deployment tooling; HTTP facade below reaches the same dispatcher

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := setupRouter(cfg, orch, dispatcher)
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      5 * time.Minute, // streamed workflow responses can run long
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.InfoContext(ctx, "http server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.ErrorContext(ctx, "http server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "http server shutdown error", "error", err)
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(shutdownCtx, "shutdown complete")
}

func buildAgentRegistry(agents map[string]config.AgentEndpoint) (*llmclient.Registry, error) {
	roleFor := map[string]llmclient.Role{
		"preprocessor": llmclient.RolePreprocessor,
		"planner":      llmclient.RolePlanner,
		"coder":        llmclient.RoleCoder,
		"reviewer":     llmclient.RoleReviewer,
		"voter":        llmclient.RoleVoter,
	}

	endpoints := make(map[llmclient.Role]llmclient.EndpointConfig, len(agents))
	for name, ep := range agents {
		role, ok := roleFor[name]
		if !ok {
			continue
		}
		client, err := newAgentClient(ep)
		if err != nil {
			return nil, fmt.Errorf("building agent client for role %q: %w", name, err)
		}
		endpoints[role] = llmclient.EndpointConfig{
			Client:        client,
			SemaphoreSize: ep.SemaphoreSize,
			CallTimeout:   ep.CallTimeout,
		}
	}
	return llmclient.NewRegistry(endpoints), nil
}

func newAgentClient(ep config.AgentEndpoint) (llm.AgentClient, error) {
	llmCfg := llm.Config{APIKey: ep.APIKey, BaseURL: ep.BaseURL, Model: ep.Model}
	if ep.Provider == "openai" {
		return llm.NewAgentClient(llmCfg)
	}
	return llm.NewAnthropicClient(llmCfg)
}

func setupRouter(cfg config.Config, orch *orchestrator.Orchestrator, dispatcher *mcp.Dispatcher) *gin.Engine {
	router := gin.New()

	if cfg.OTel.Enabled() {
		router.Use(otelgin.Middleware(cfg.OTel.ServiceName))
	}
	router.Use(gin.Recovery())
	router.Use(gin.Logger())

	workflowapi.RegisterRoutes(router, workflowapi.New(orch, cfg.Agents["coder"].Model))
	mcp.NewHandler(dispatcher).RegisterRoutes(router)

	return router
}

const banner = `
 __  __    _    _  _______ ____
|  \/  |  / \  | |/ / ____|  _ \
| |\/| | / _ \ | ' /|  _| | |_) |
| |  | |/ ___ \| . \| |___|  _ <
|_|  |_/_/   \_\_|\_\_____|_| \_\
`
