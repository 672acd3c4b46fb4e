// cmd/deepchat/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"deepchat/bridge"
	"deepchat/chat"
	"deepchat/config"
	"deepchat/llm"
	"deepchat/logging"
	"deepchat/mcpserver"
	"deepchat/session"
	"deepchat/tools"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "deepchat: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  = flag.String("config", "", "path to config file (default ~/.config/deepchat/config.yaml)")
		provider    = flag.String("provider", "", "provider preset: deepseek, openai, grok, groq")
		endpoint    = flag.String("endpoint", "", "override the provider base URL")
		model       = flag.String("model", "", "model name")
		apiKey      = flag.String("api-key", "", "API key (overrides environment and config)")
		system      = flag.String("system", "", "system prompt")
		temperature = flag.Float64("temperature", -1, "sampling temperature")
		noStream    = flag.Bool("no-stream", false, "disable streaming output")
		serve       = flag.Bool("serve", false, "expose the built-in tools as an MCP stdio server")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *serve {
		// Stdout carries the protocol in serve mode; the logger already
		// writes to stderr.
		logger := logging.New("info", "text")
		return mcpserver.New(tools.DefaultRegistry(), logger).Serve()
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	if *provider != "" {
		cfg.LLM.Provider = *provider
	}
	if *endpoint != "" {
		cfg.LLM.Endpoint = *endpoint
	}
	if *model != "" {
		cfg.LLM.Model = *model
	}
	if *system != "" {
		cfg.LLM.SystemPrompt = *system
	}
	if *temperature >= 0 {
		cfg.LLM.Temperature = *temperature
	}

	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)

	baseURL := cfg.LLM.Endpoint
	key := *apiKey
	if cfg.LLM.Provider != "" {
		preset, err := llm.LookupProvider(cfg.LLM.Provider)
		if err != nil {
			return err
		}
		if baseURL == "" {
			baseURL = preset.BaseURL
		}
		if key == "" {
			key = os.Getenv(preset.KeyEnv)
		}
	}
	if key == "" {
		key = cfg.LLM.APIKey
	}
	if key == "" {
		return fmt.Errorf("no API key: pass -api-key, set the provider's key environment variable, or add llm.api_key to the config")
	}

	client := llm.New(baseURL, key, cfg.LLM.Model, logger)

	registry := tools.DefaultRegistry()
	for _, serverCfg := range cfg.MCPServers {
		mcpClient, err := bridge.Connect(ctx, serverCfg.Name, serverCfg.Command, serverCfg.Arguments, serverCfg.Env, logger)
		if err != nil {
			// One bad tool server should not take the session down.
			logger.Warn().Str("server", serverCfg.Name).Err(err).Msg("failed to connect tool server")
			continue
		}
		defer mcpClient.Close()
		count, err := bridge.RegisterTools(ctx, registry, mcpClient)
		if err != nil {
			logger.Warn().Str("server", serverCfg.Name).Err(err).Msg("failed to list tools")
			continue
		}
		logger.Info().Str("server", serverCfg.Name).Int("tools", count).Msg("tool server attached")
	}

	var store chat.ResumableStore
	if s, err := session.Open(cfg.Session.Path); err != nil {
		logger.Warn().Str("path", cfg.Session.Path).Err(err).Msg("session persistence disabled")
	} else {
		defer s.Close()
		store = s
	}

	orch := chat.NewOrchestrator(client, registry, store, logger)
	orch.SetTemperature(cfg.LLM.Temperature)

	if message := strings.Join(flag.Args(), " "); message != "" {
		return oneShot(ctx, orch, cfg.LLM.SystemPrompt, message, !*noStream)
	}

	return chat.NewInteractive(client, orch, store, !*noStream, logger).Run(ctx, cfg.LLM.SystemPrompt)
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	cfg, created, err := config.LoadOrCreate()
	if err != nil {
		return nil, err
	}
	if created {
		if p, err := config.Path(); err == nil {
			fmt.Fprintf(os.Stderr, "created default config at %s\n", p)
		}
	}
	return cfg, nil
}

func oneShot(ctx context.Context, orch *chat.Orchestrator, systemPrompt, message string, stream bool) error {
	if systemPrompt != "" {
		orch.SetSystemPrompt(systemPrompt)
	}
	result, err := orch.ProcessTurn(ctx, message, stream)
	if err != nil {
		return err
	}
	if result.Streamed {
		fmt.Println()
		return nil
	}
	fmt.Println(result.Content)
	return nil
}
