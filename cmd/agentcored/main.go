// Package main provides the CLI entry point for agentcored, the local
// AI-agent service runtime.
//
// agentcored brokers conversational requests between HTTP/WebSocket
// clients and a configured LLM backend, executing model-requested tools
// defined by on-disk skill bundles.
//
// # Basic Usage
//
// Start the server:
//
//	agentcored serve --config agentcored.yaml
//
// List discovered skills:
//
//	agentcored skills list
//
// Validate configuration and provider auth:
//
//	agentcored doctor
//
// # Environment Variables
//
// Configuration values may reference environment variables with
// ${VAR} or $VAR syntax; they are expanded before the YAML is parsed
// (internal/config.Load).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"github.com/agentcore/runtime/internal/agent"
	"github.com/agentcore/runtime/internal/config"
	"github.com/agentcore/runtime/internal/eventbus"
	"github.com/agentcore/runtime/internal/gateway"
	"github.com/agentcore/runtime/internal/metrics"
	"github.com/agentcore/runtime/internal/providers"
	"github.com/agentcore/runtime/internal/sessions"
	"github.com/agentcore/runtime/internal/skills"
	"github.com/agentcore/runtime/pkg/models"
)

// Build information, populated by ldflags during build.
//
//	go build -ldflags "-X main.version=v1.0.0 -X main.commit=$(git rev-parse HEAD) -X main.date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// defaultConfigPath is used when --config is not given.
const defaultConfigPath = "agentcored.yaml"

// sessionRetentionTTL and sessionRetentionSchedule bound how long an
// idle session survives before the background sweeper deletes it, per
// spec.md §4.7. The config schema (spec.md §6.4) does not expose a
// retention knob, so these are fixed rather than configurable.
const (
	sessionRetentionTTL      = 24 * time.Hour
	sessionRetentionSchedule = "@every 1h"
	sessionCacheCapacity     = 256
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
// Separated from main() to facilitate testing.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "agentcored",
		Short: "agentcored - local AI-agent service runtime",
		Long: `agentcored brokers conversational requests between HTTP and
WebSocket clients and a configured LLM backend, executing
model-requested tools defined by on-disk skill bundles.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildSkillsCmd(),
		buildDoctorCmd(),
	)

	return rootCmd
}

// buildServeCmd creates the "serve" command.
func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the agentcored server",
		Long: `Start the agentcored HTTP and WebSocket server.

The server will:
1. Load and validate configuration from the specified file
2. Discover skills and start the hot-reload watcher
3. Build the configured LLM provider and its authenticator
4. Start the agent runtime, session store, and event bus
5. Serve HTTP (chat, history, config CRUD) and WebSocket (if enabled)

Graceful shutdown is handled on SIGINT/SIGTERM.`,
		Example: `  # Start with default config
  agentcored serve

  # Start with a custom config file
  agentcored serve --config /etc/agentcored/production.yaml

  # Start with debug logging
  agentcored serve --debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to YAML configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")

	return cmd
}

// runServe implements the serve command: it wires every dependency
// spec.md §2's dependency order names (Transformer -> Auth -> Provider
// -> Tool Registry -> Tool Executor -> Skill Manager -> Event Bus ->
// Session Store -> Agent Loop -> HTTP/WS surface) and blocks until a
// shutdown signal arrives.
func runServe(ctx context.Context, configPath string, debug bool) error {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)

	log.Info("starting agentcored", "version", version, "commit", commit, "config", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	provider, err := buildProvider(cfg)
	if err != nil {
		return fmt.Errorf("build provider: %w", err)
	}

	registry := skills.NewRegistry()
	var skillMgrs []*skills.Manager
	if cfg.Skills.Enabled {
		for _, dir := range cfg.Skills.Directories {
			mgr := skills.NewManager(dir, registry, log)
			if err := mgr.Discover(); err != nil {
				log.Warn("skill discovery failed", "dir", dir, "error", err)
				continue
			}
			if cfg.Skills.AutoReload {
				if err := mgr.StartWatching(); err != nil {
					log.Warn("skill watch failed", "dir", dir, "error", err)
				}
			}
			skillMgrs = append(skillMgrs, mgr)
		}
	}

	executor := agent.NewExecutor(agent.DefaultExecutorConfig())

	store, err := sessions.NewFileStore(cfg.Storage.Path, sessionCacheCapacity)
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}

	sweeper := sessions.NewRetentionSweeper(store, sessionRetentionTTL, log)
	if err := sweeper.Start(sessionRetentionSchedule); err != nil {
		log.Warn("retention sweeper not started", "error", err)
	}
	defer sweeper.Stop()

	runtime := agent.NewRuntime(provider, registry, executor, store)
	runtime.BasePrompt = cfg.Agent.SystemPrompt
	runtime.Compaction = agent.DefaultCompactionConfig()
	runtime.ConcurrentRunPolicy = cfg.Agent.ConcurrentRunPolicy
	if len(skillMgrs) > 0 {
		runtime.SkillPrompts = combinedSkillPrompts(skillMgrs)
	}

	bus := eventbus.New(eventbus.DefaultSubscriberCapacity)
	router := eventbus.NewRouter(bus)

	reg := prometheus.DefaultRegisterer
	m := metrics.New(reg)

	srv := gateway.NewServer(cfg, configPath, store, runtime, bus, router, m, log)
	if cfg.Server.AdminToken != "" {
		srv.AdminAuth = gateway.NewStaticAdminAuth(cfg.Server.AdminToken)
	}
	if cfg.Gateway.AuthToken != "" {
		srv.GatewayAuth = gateway.NewStaticAdminAuth(cfg.Gateway.AuthToken)
	}

	runCtx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := srv.Start(runCtx); err != nil {
		return fmt.Errorf("start server: %w", err)
	}

	log.Info("agentcored started", "addr", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port))

	<-runCtx.Done()
	log.Info("shutdown signal received, draining")

	for _, mgr := range skillMgrs {
		_ = mgr.Close()
	}

	log.Info("agentcored stopped")
	return nil
}

// combinedSkillPrompts concatenates the system-prompt text of every
// configured skill directory's manager into one agent.SkillPrompts
// closure, since the agent runtime is built around a single prompt
// source but serve may watch more than one skills directory.
func combinedSkillPrompts(mgrs []*skills.Manager) agent.SkillPrompts {
	return func() string {
		out := ""
		for _, mgr := range mgrs {
			p := mgr.SystemPrompts()
			if p == "" {
				continue
			}
			if out != "" {
				out += "\n\n"
			}
			out += p
		}
		return out
	}
}

// buildProvider constructs the default LLM provider named by
// llm.default_provider, wiring its Transformer and Authenticator per
// spec.md §4.2-§4.3. Only the default provider is bound to the agent
// runtime: spec.md §4.1 describes "a single generic HTTP provider"
// parameterized per call, not a multi-backend router, so the other
// entries in llm.providers are validated (see buildDoctorCmd) but not
// constructed here.
func buildProvider(cfg *config.Config) (*providers.Provider, error) {
	id := cfg.LLM.DefaultProvider
	pc, ok := cfg.LLM.Providers[id]
	if !ok {
		return nil, fmt.Errorf("default_provider %q not present in llm.providers", id)
	}
	if !pc.Enabled {
		return nil, fmt.Errorf("default_provider %q is not enabled", id)
	}

	authn, err := buildAuthenticator(pc.Auth)
	if err != nil {
		return nil, fmt.Errorf("provider %q auth: %w", id, err)
	}

	providerCfg := providers.Config{
		ID:             id,
		Name:           id,
		BaseURL:        pc.BaseURL,
		Headers:        pc.Headers,
		TimeoutSeconds: pc.TimeoutSeconds,
		Capabilities:   providers.Capabilities{Streaming: true, ToolCalling: true},
	}
	return providers.New(providerCfg, providers.OpenAITransformer{}, authn, nil), nil
}

// buildSkillsCmd creates the "skills" command group.
func buildSkillsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "skills",
		Short: "Inspect discovered skills",
		Long: `Inspect skills discovered from the directories named by
skills.directories in the configuration file.

Each skill is a directory containing a SKILL.md manifest with YAML
frontmatter declaring the tools it contributes.`,
	}
	cmd.AddCommand(buildSkillsListCmd(), buildSkillsShowCmd())
	return cmd
}

func buildSkillsListCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List discovered skills",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			skillsList, err := discoverSkills(cfg)
			if err != nil {
				return err
			}
			if len(skillsList) == 0 {
				fmt.Fprintln(out, "No skills found.")
				return nil
			}
			for _, sk := range skillsList {
				fmt.Fprintf(out, "  %s (%s) - %d tool(s)\n", sk.Name, sk.Dir, len(sk.Tools))
				if sk.Description != "" {
					fmt.Fprintf(out, "    %s\n", sk.Description)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to YAML configuration file")
	return cmd
}

func buildSkillsShowCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "show <name>",
		Short: "Show one skill's manifest and tools",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			skillsList, err := discoverSkills(cfg)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, sk := range skillsList {
				if sk.Name != args[0] {
					continue
				}
				fmt.Fprintf(out, "Name: %s\n", sk.Name)
				fmt.Fprintf(out, "Dir: %s\n", sk.Dir)
				fmt.Fprintf(out, "Description: %s\n", sk.Description)
				fmt.Fprintf(out, "Version: %s\n", sk.Version)
				fmt.Fprintln(out, "Tools:")
				for _, t := range sk.Tools {
					fmt.Fprintf(out, "  - %s: %s\n", t.Name, t.Description)
				}
				return nil
			}
			return fmt.Errorf("skill %q not found", args[0])
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to YAML configuration file")
	return cmd
}

// discoverSkills runs a one-shot discovery pass (no watcher) across
// every configured skills directory, for CLI inspection commands.
func discoverSkills(cfg *config.Config) ([]*models.Skill, error) {
	registry := skills.NewRegistry()
	var out []*models.Skill
	for _, dir := range cfg.Skills.Directories {
		mgr := skills.NewManager(dir, registry, slog.Default())
		if err := mgr.Discover(); err != nil {
			return nil, fmt.Errorf("discover %s: %w", dir, err)
		}
		out = append(out, mgr.List()...)
	}
	return out, nil
}

// buildDoctorCmd creates the "doctor" command for config and
// provider-auth validation.
func buildDoctorCmd() *cobra.Command {
	var configPath string
	var probe bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Validate configuration and provider authentication",
		Long: `Validate the configuration file, check that the default LLM
provider is configured and enabled, and optionally probe its
authenticator for a usable credential.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("config validation failed: %w", err)
			}
			fmt.Fprintln(out, "Config: OK")

			for id, pc := range cfg.LLM.Providers {
				status := "disabled"
				if pc.Enabled {
					status = "enabled"
				}
				fmt.Fprintf(out, "  provider %s: %s, auth=%s\n", id, status, pc.Auth.Type)
			}

			if _, ok := cfg.LLM.Providers[cfg.LLM.DefaultProvider]; !ok {
				return fmt.Errorf("default_provider %q has no matching entry in llm.providers", cfg.LLM.DefaultProvider)
			}

			if cfg.Skills.Enabled {
				skillsList, err := discoverSkills(cfg)
				if err != nil {
					fmt.Fprintf(out, "Skills: discovery error: %v\n", err)
				} else {
					fmt.Fprintf(out, "Skills: %d discovered\n", len(skillsList))
				}
			}

			if probe {
				provider, err := buildProvider(cfg)
				if err != nil {
					return fmt.Errorf("default provider probe failed: %w", err)
				}
				authn := provider.Authenticator
				if authn.NeedsRefresh() {
					if err := authn.Refresh(cmd.Context()); err != nil {
						return fmt.Errorf("authenticator refresh failed: %w", err)
					}
				}
				if _, _, err := authn.AuthHeader(cmd.Context()); err != nil {
					return fmt.Errorf("authenticator probe failed: %w", err)
				}
				fmt.Fprintln(out, "Auth probe: OK")
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to YAML configuration file")
	cmd.Flags().BoolVar(&probe, "probe", false, "Also probe the default provider's authenticator")

	return cmd
}

// buildAuthenticator maps one provider's auth config onto the
// providers.Authenticator variant spec.md §4.2 and §6.4 name.
func buildAuthenticator(a config.AuthConfig) (providers.Authenticator, error) {
	switch a.Type {
	case "", "none":
		return providers.NoneAuth{}, nil
	case "api_key":
		return providers.StaticKeyAuth{HeaderName: a.HeaderName, Key: a.Key}, nil
	case "bearer":
		return providers.StaticBearerAuth{Token: a.Token}, nil
	case "device_code":
		oauthCfg := oauth2.Config{
			ClientID:     a.ClientID,
			ClientSecret: a.ClientSecret,
			Scopes:       a.Scopes,
			Endpoint: oauth2.Endpoint{
				TokenURL:      a.TokenURL,
				DeviceAuthURL: a.DeviceAuthURL,
			},
		}
		prompt := func(userCode, verificationURI string) {
			fmt.Fprintf(os.Stderr, "To authenticate, visit %s and enter code %s\n", verificationURI, userCode)
		}
		return providers.NewDeviceCodeAuth(oauthCfg, a.CachePath, prompt), nil
	default:
		return nil, fmt.Errorf("unknown auth type %q", a.Type)
	}
}
