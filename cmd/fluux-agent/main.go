// Fluux-agent is a conversational LLM agent reachable over XMPP.
//
// It attaches to an XMPP server either as an external component
// (XEP-0114) or as a regular client (RFC 6120), routes inbound chat
// and MUC traffic through an LLM with tool use, and persists
// per-contact conversation memory. Configuration is loaded from a
// single YAML file discovered automatically (see
// [config.DefaultSearchPaths]).
//
// Usage:
//
//	fluux-agent                     Run the agent
//	fluux-agent -config <path>      Run with an explicit config file
//	fluux-agent -version            Print version and build information
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/processone/fluux-agent-sub000/internal/agent"
	"github.com/processone/fluux-agent-sub000/internal/backoff"
	"github.com/processone/fluux-agent-sub000/internal/buildinfo"
	"github.com/processone/fluux-agent-sub000/internal/config"
	"github.com/processone/fluux-agent-sub000/internal/download"
	"github.com/processone/fluux-agent-sub000/internal/fetch"
	"github.com/processone/fluux-agent-sub000/internal/llm"
	"github.com/processone/fluux-agent-sub000/internal/memory"
	"github.com/processone/fluux-agent-sub000/internal/search"
	"github.com/processone/fluux-agent-sub000/internal/skills"
	"github.com/processone/fluux-agent-sub000/internal/xmpp"
)

// Reconnection policy. The supervisor retries transient failures with
// exponential backoff and gives up after maxReconnectAttempts
// consecutive failures. A session that stays up for stabilityThreshold
// resets the schedule.
const (
	initialReconnectDelay = 2 * time.Second
	maxReconnectDelay     = 60 * time.Second
	backoffMultiplier     = 2
	maxReconnectAttempts  = 20
	stabilityThreshold    = 60 * time.Second
)

// main is intentionally minimal. It constructs the OS-level
// environment (context, stdio, argv) and delegates immediately to
// [run] so the full lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run parses arguments and starts the agent. Arguments are parsed by
// hand: the flag package relies on package-level globals, which makes
// it impossible to call run concurrently from tests, and the argument
// surface here is tiny.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case args[i] == "-version" || args[i] == "--version":
			fmt.Fprintln(stdout, buildinfo.String())
			return nil
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		default:
			return fmt.Errorf("unknown flag: %s", args[i])
		}
	}

	return serve(ctx, stdout, configPath)
}

// printUsage writes the help text to w.
func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Fluux-agent - Conversational LLM agent over XMPP")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: fluux-agent [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>  Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -version        Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./fluux-agent.yaml, ~/.config/fluux-agent/config.yaml,")
	fmt.Fprintln(w, "  /etc/fluux-agent/config.yaml")
	return nil
}

// serve loads the configuration, assembles the runtime, and supervises
// the connection until shutdown or a fatal error.
func serve(ctx context.Context, stdout io.Writer, configPath string) error {
	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	level, err := config.ParseLogLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	logger := newLogger(stdout, level, cfg.Logging.Format)
	slog.SetDefault(logger)

	logger.Info("starting", "build", buildinfo.String(), "config", cfgPath)

	store, err := memory.Open(cfg.Memory.Backend, cfg.Memory.Path)
	if err != nil {
		return fmt.Errorf("open memory store: %w", err)
	}
	defer store.Close()
	logger.Info("memory store ready", "backend", cfg.Memory.Backend, "path", cfg.Memory.Path)

	client, err := newLLMClient(cfg, logger)
	if err != nil {
		return err
	}
	logger.Info("llm backend ready", "backend", client.Description())

	registry := buildSkills(cfg, store, logger)
	runtime := agent.New(cfg, client, store, download.New(logger), registry, logger)

	// SIGINT/SIGTERM cancellation flows through the same ctx used by
	// the runtime and the reconnect sleeps.
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return supervise(ctx, cfg, runtime, logger)
}

// supervise runs connect/serve cycles until the context is cancelled
// or a non-retriable failure occurs.
func supervise(ctx context.Context, cfg *config.Config, runtime *agent.Runtime, logger *slog.Logger) error {
	b := backoff.New(initialReconnectDelay, maxReconnectDelay, backoffMultiplier)

	for {
		if ctx.Err() != nil {
			logger.Info("shutdown complete")
			return nil
		}

		conn, err := dial(cfg, logger)
		if err != nil {
			var xErr *xmpp.Error
			if errors.As(err, &xErr) && !xErr.Retriable() {
				return fmt.Errorf("connect: %w", err)
			}
			if b.ExceededMaxAttempts(maxReconnectAttempts) {
				return fmt.Errorf("giving up after %d reconnect attempts: %w", b.Attempt, err)
			}
			delay := b.NextDelay()
			logger.Warn("connect failed", "error", err, "attempt", b.Attempt, "retry_in", delay)
			if err := backoff.Sleep(ctx, delay); err != nil {
				logger.Info("shutdown complete")
				return nil
			}
			continue
		}

		sessionStart := time.Now()
		reason := runtime.Run(ctx, conn)
		conn.Close()

		if ctx.Err() != nil {
			logger.Info("shutdown complete")
			return nil
		}

		if reason.Conflict {
			return fmt.Errorf("another session replaced this connection (stream conflict), not reconnecting")
		}

		if time.Since(sessionStart) >= stabilityThreshold {
			b.Reset()
		}
		if b.ExceededMaxAttempts(maxReconnectAttempts) {
			return fmt.Errorf("giving up after %d reconnect attempts (last disconnect: %s)", b.Attempt, reason)
		}
		delay := b.NextDelay()
		logger.Warn("disconnected", "reason", reason.String(), "retry_in", delay)
		if err := backoff.Sleep(ctx, delay); err != nil {
			logger.Info("shutdown complete")
			return nil
		}
	}
}

// dial attaches to the XMPP server in the configured mode.
func dial(cfg *config.Config, logger *slog.Logger) (*xmpp.Conn, error) {
	readTimeout := time.Duration(0)
	if cfg.Keepalive.KeepaliveEnabled() {
		readTimeout = time.Duration(cfg.Keepalive.ReadTimeoutSecs) * time.Second
	}

	if cfg.Server.Mode == config.ModeComponent {
		return xmpp.DialComponent(xmpp.ComponentOptions{
			Host:        cfg.Server.Host,
			Port:        cfg.Server.Port,
			Domain:      cfg.Server.ComponentDomain,
			Secret:      cfg.Server.ComponentSecret,
			ReadTimeout: readTimeout,
			Logger:      logger,
		})
	}
	return xmpp.DialClient(xmpp.ClientOptions{
		Host:        cfg.Server.Host,
		Port:        cfg.Server.Port,
		JID:         cfg.Server.JID,
		Password:    cfg.Server.Password,
		Resource:    cfg.Server.Resource,
		TLSVerify:   cfg.Server.TLSVerifyEnabled(),
		AllowedJIDs: cfg.Agent.AllowedJIDs,
		ReadTimeout: readTimeout,
		Logger:      logger,
	})
}

// newLLMClient builds the configured LLM backend.
func newLLMClient(cfg *config.Config, logger *slog.Logger) (llm.Client, error) {
	switch cfg.LLM.Provider {
	case "anthropic":
		if cfg.LLM.APIKey == "" {
			return nil, fmt.Errorf("llm.api_key is required for the anthropic provider")
		}
		return llm.NewAnthropic(cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.MaxTokens, logger), nil
	case "ollama":
		return llm.NewOllama(cfg.LLM.Host, cfg.LLM.Model, cfg.LLM.MaxTokens, logger), nil
	default:
		return nil, fmt.Errorf("unknown llm.provider %q", cfg.LLM.Provider)
	}
}

// buildSkills registers the enabled builtin skills.
func buildSkills(cfg *config.Config, store memory.Store, logger *slog.Logger) *skills.Registry {
	registry := skills.NewRegistry()

	if ws := cfg.Skills.WebSearch; ws != nil && ws.APIKey != "" {
		provider := ws.Provider
		if provider == "" {
			provider = "tavily"
		}
		mgr := search.NewManager(provider)
		switch provider {
		case "tavily":
			mgr.Register(search.NewTavily(ws.APIKey))
		case "brave":
			mgr.Register(search.NewBrave(ws.APIKey))
		default:
			logger.Warn("unknown search provider, web_search disabled", "provider", provider)
		}
		if mgr.Configured() {
			registry.Register(skills.NewWebSearch(mgr))
		}
	}

	if uf := cfg.Skills.URLFetch; uf != nil && uf.Enabled {
		registry.Register(skills.NewURLFetch(fetch.New()))
	}

	if ms := cfg.Skills.Memory; ms != nil && ms.Enabled {
		registry.Register(skills.NewMemoryNotes(store))
	}

	if n := registry.Len(); n > 0 {
		logger.Info("skills registered", "skills", registry.Names())
	} else {
		logger.Info("no skills enabled")
	}
	return registry
}

// newLogger builds a slog logger writing to w.
func newLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// loadConfig locates and parses the YAML configuration file.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	return cfg, cfgPath, nil
}
