// Command forged is the daemon entry point: it loads server-default
// configuration, wires every component (LLM Adapter, Lineage Recorder,
// Agent Runtime, Orchestrator, Workflow Store), and serves the three
// HTTP routes until SIGINT/SIGTERM.
//
// Usage:
//
//	forged serve --config config.yaml
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/alecthomas/kong"

	"github.com/forgeai/forge/internal/agentrt"
	"github.com/forgeai/forge/internal/collab"
	"github.com/forgeai/forge/internal/config"
	"github.com/forgeai/forge/internal/configtree"
	"github.com/forgeai/forge/internal/httpapi"
	"github.com/forgeai/forge/internal/lineage"
	"github.com/forgeai/forge/internal/llm"
	"github.com/forgeai/forge/internal/orchestrator"
	"github.com/forgeai/forge/internal/ratelimit"
	"github.com/forgeai/forge/internal/store"
	"github.com/forgeai/forge/pkg/logger"
)

// CLI defines forged's command-line interface.
type CLI struct {
	Serve   ServeCmd   `cmd:"" help:"Start the workflow orchestration server."`
	Schema  SchemaCmd  `cmd:"" help:"Generate JSON Schema for the work order request body."`
	Version VersionCmd `cmd:"" help:"Show version information."`

	Config    string `short:"c" help:"Path to server-default config file." type:"path"`
	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFile   string `help:"Log file path (empty = stderr)."`
	LogFormat string `help:"Log format (simple or verbose)." default:"simple"`
}

// VersionCmd prints build version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Println("forged version dev")
	return nil
}

// SchemaCmd generates the JSON Schema for config.WorkOrder, the shape the
// HTTP boundary's POST /api/v1/workflow body must satisfy, for consumption
// by client-side form builders.
type SchemaCmd struct {
	Compact bool `short:"c" help:"Compact JSON output (no indentation)."`
}

func (c *SchemaCmd) Run(cli *CLI) error {
	schema := config.WorkOrderSchema()
	encoder := json.NewEncoder(os.Stdout)
	if !c.Compact {
		encoder.SetIndent("", "  ")
	}
	if err := encoder.Encode(schema); err != nil {
		return fmt.Errorf("encode schema: %w", err)
	}
	return nil
}

// ServeCmd starts the HTTP server.
type ServeCmd struct {
	Addr                   string `help:"Address to listen on." default:":8080"`
	StorageRoot            string `name:"storage-root" help:"Root directory for lineage events and workflow artifacts." default:".forge/storage"`
	WorkflowDB             string `name:"workflow-db" help:"SQLite DSN for the Workflow Store's durable mirror." default:".forge/workflow.db"`
	MaxConcurrentWorkflows int64  `name:"max-concurrent-workflows" help:"Max workflows executing at once." default:"10"`

	AnthropicAPIKey string `name:"anthropic-api-key" help:"Anthropic API key (defaults to ANTHROPIC_API_KEY)."`
	AnthropicHost   string `name:"anthropic-host" help:"Custom Anthropic API base URL."`
	OpenAIAPIKey    string `name:"openai-api-key" help:"OpenAI API key (defaults to OPENAI_API_KEY)."`
	OpenAIHost      string `name:"openai-host" help:"Custom OpenAI API base URL."`
	OllamaHost      string `name:"ollama-host" help:"Ollama server base URL."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	log, cleanup, err := newLogger(cli.LogLevel, cli.LogFile, cli.LogFormat)
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	if cleanup != nil {
		defer cleanup()
	}

	_ = config.LoadEnvFiles()

	serverDefaults, err := c.loadServerDefaults(cli.Config)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(c.StorageRoot, 0o755); err != nil {
		return fmt.Errorf("create storage root %s: %w", c.StorageRoot, err)
	}
	if c.WorkflowDB != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(c.WorkflowDB), 0o755); err != nil {
			return fmt.Errorf("create workflow db directory: %w", err)
		}
	}

	registry := llm.NewRegistry()
	registry.Register("anthropic", llm.NewAnthropicProvider(firstNonEmpty(c.AnthropicAPIKey, os.Getenv("ANTHROPIC_API_KEY")), c.AnthropicHost))
	registry.Register("openai", llm.NewOpenAIProvider(firstNonEmpty(c.OpenAIAPIKey, os.Getenv("OPENAI_API_KEY")), c.OpenAIHost))
	registry.Register("ollama", llm.NewOllamaProvider(c.OllamaHost))

	limiter := ratelimit.NewLimiter()
	configureRateLimits(limiter, serverDefaults)
	adapter := llm.NewAdapter(registry, limiter)

	recorder := lineage.NewRecorder(c.StorageRoot, nil, log)

	agents := agentrt.NewRegistry()
	agents.Register(agentrt.NewDiscoveryAgent())
	agents.Register(agentrt.NewSolutionDesignerAgent())
	agents.Register(agentrt.NewCoderAgent())
	agents.Register(agentrt.NewFallbackCoderAgent())

	deps := agentrt.Deps{
		Adapter: adapter,
		Scanner: collab.NewFilesystemScanner(),
		Merger:  collab.NewTextMerger(),
		Writer:  collab.NewFilesystemAssetWriter(c.StorageRoot + "/backups"),
	}
	runtime := agentrt.NewRuntime(agents, recorder, deps)

	orch := orchestrator.New(agents, deps, c.MaxConcurrentWorkflows, log)

	wfStore, err := store.Open(c.WorkflowDB)
	if err != nil {
		return fmt.Errorf("open workflow store: %w", err)
	}
	defer wfStore.Close()

	srv := httpapi.New(orch, runtime, recorder, wfStore, serverDefaults, c.StorageRoot, log)

	log.Info("forged: ready", "addr", c.Addr, "storage_root", c.StorageRoot, "workflow_db", c.WorkflowDB)
	fmt.Printf("forged listening on %s\n", c.Addr)
	fmt.Printf("  submit:  POST http://%s/api/v1/workflow\n", c.Addr)
	fmt.Printf("  status:  GET  http://%s/api/v1/workflow/{workflow_id}\n", c.Addr)
	fmt.Printf("  health:  GET  http://%s/health\n", c.Addr)

	return srv.Start(context.Background(), c.Addr)
}

// loadServerDefaults loads the server-default configuration tree, falling
// back to an empty tree (zero-config mode, teams must then come entirely
// from per-request overlays) when no --config is given. A scheme prefix
// (consul://, etcd://, zk://) routes to the matching remote config.Source
// instead of the local filesystem.
func (c *ServeCmd) loadServerDefaults(path string) (configtree.Node, error) {
	if path == "" {
		return configtree.Absent, nil
	}

	if src, ok, err := remoteSourceFor(path); ok || err != nil {
		if err != nil {
			return configtree.Absent, err
		}
		defer src.Close()
		n, err := config.LoadFromSource(context.Background(), src)
		if err != nil {
			return configtree.Absent, fmt.Errorf("load server config from %s: %w", path, err)
		}
		return n, nil
	}

	n, err := config.LoadYAMLFile(path)
	if err != nil {
		return configtree.Absent, fmt.Errorf("load server config %s: %w", path, err)
	}
	return n, nil
}

// remoteSourceFor resolves a scheme-prefixed server-default config location
// ("consul://addr/key", "etcd://host:port/key", "zk://host:port/path") to
// the matching config.Source. ok is false (no error) for a plain local path.
func remoteSourceFor(path string) (config.Source, bool, error) {
	scheme, rest, hasScheme := strings.Cut(path, "://")
	if !hasScheme {
		return nil, false, nil
	}
	host, key, _ := strings.Cut(rest, "/")
	switch scheme {
	case "consul":
		src, err := config.NewConsulSource(host, key)
		return src, true, err
	case "etcd":
		src, err := config.NewEtcdSource([]string{host}, "/"+key)
		return src, true, err
	case "zk":
		src, err := config.NewZookeeperSource([]string{host}, "/"+key)
		return src, true, err
	default:
		return nil, false, nil
	}
}

// configureRateLimits wires llm_config.providers.<name>.rate_limit into the
// shared Limiter, so provider-level backpressure takes effect from startup.
func configureRateLimits(limiter *ratelimit.Limiter, serverDefaults configtree.Node) {
	providers := serverDefaults.Get("llm_config.providers")
	if !providers.IsMap() {
		return
	}
	for _, name := range providers.Fields() {
		rl := providers.Get(name + ".rate_limit")
		if !rl.IsMap() {
			continue
		}
		tokens, _ := rl.Get("tokens").Int()
		requests, _ := rl.Get("requests").Int()
		periodSeconds, _ := rl.Get("period_seconds").Int()
		if periodSeconds == 0 {
			periodSeconds = 60
		}
		limiter.Configure(name, ratelimit.Limits{
			Tokens:   int64(tokens),
			Requests: int64(requests),
			Period:   time.Duration(periodSeconds) * time.Second,
		})
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func newLogger(levelStr, file, format string) (*slog.Logger, func(), error) {
	level, err := logger.ParseLevel(levelStr)
	if err != nil {
		return nil, nil, err
	}
	output := os.Stderr
	var cleanup func()
	if file != "" {
		f, c, err := logger.OpenLogFile(file)
		if err != nil {
			return nil, nil, err
		}
		output, cleanup = f, c
	}
	logger.Init(level, output, format)
	return logger.GetLogger(), cleanup, nil
}

func main() {
	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("forged"),
		kong.Description("forged - LLM-driven refactoring workflow orchestrator"),
		kong.UsageOnError(),
	)
	err := ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
