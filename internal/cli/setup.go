// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// setup.go - Wires config, logging, tracing, usage, gateway and the chat
// orchestrator for the commands that need them.

package cli

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/jeranaias/rigchat/internal/chat"
	"github.com/jeranaias/rigchat/internal/config"
	"github.com/jeranaias/rigchat/internal/gateway"
	"github.com/jeranaias/rigchat/internal/telemetry"
	"github.com/jeranaias/rigchat/internal/tools"
)

// Runtime holds the services a chat command runs on.
type Runtime struct {
	Config     *config.Config
	ConfigPath string
	Gateway    gateway.Gateway
	Usage      *telemetry.UsageTracker
	Chat       *chat.Orchestrator

	store   telemetry.Store
	tracer  *telemetry.TracerProvider
	closers []io.Closer
}

// NewRuntime loads configuration and builds every service. interactive is
// set for the full-screen UI, where log output must stay off the terminal.
func NewRuntime(ctx context.Context, args Args, interactive bool) (*Runtime, error) {
	cfg, path, err := loadConfig(args)
	if err != nil {
		return nil, err
	}

	rt := &Runtime{Config: cfg, ConfigPath: path}
	if err := rt.configureLogging(args, interactive); err != nil {
		return nil, err
	}

	if cfg.Tracing.Enabled {
		if err := rt.enableTracing(args, interactive); err != nil {
			rt.Close()
			return nil, err
		}
	}

	store, err := telemetry.OpenStore(ctx, telemetry.StoreOptions{
		Backend:     cfg.Usage.Backend,
		Path:        cfg.Usage.Path,
		RedisURL:    cfg.Usage.RedisURL,
		RedisPrefix: cfg.Usage.RedisPrefix,
	})
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("open usage store: %w", err)
	}
	rt.store = store
	rt.Usage = telemetry.NewUsageTracker(store)

	gw, err := gateway.New(GatewayOptions(cfg))
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.Gateway = gw

	rt.Chat = chat.New(gw,
		chat.WithTools(tools.NewExecutor(tools.NewRegistry())),
		chat.WithUsage(rt.Usage),
		chat.WithClipboard(chat.SystemClipboard{}),
		chat.WithModel(cfg.Chat.DefaultModel),
		chat.WithSystemPrompt(cfg.Chat.SystemPrompt),
	)
	rt.Chat.SetEnableStreaming(cfg.Chat.EnableStreaming)
	rt.Chat.SetEnableFunctions(cfg.Chat.EnableFunctions)

	log.Printf("RUNTIME_READY | provider=%s model=%s usage=%s signed_in=%t",
		cfg.Gateway.Provider, cfg.Chat.DefaultModel, cfg.Usage.Backend, gw.IsSignedIn(ctx))
	return rt, nil
}

// GatewayOptions maps the [gateway] config section to gateway options.
func GatewayOptions(cfg *config.Config) gateway.Options {
	return gateway.Options{
		Provider:          cfg.Gateway.Provider,
		BaseURL:           cfg.Gateway.BaseURL,
		APIKey:            cfg.Gateway.APIKey,
		GeminiAPIKey:      cfg.Gateway.GeminiAPIKey,
		Timeout:           time.Duration(cfg.Gateway.TimeoutSecs) * time.Second,
		MaxRetries:        cfg.Gateway.MaxRetries,
		RequestsPerSecond: cfg.Gateway.RequestsPerSecond,
		CredentialsPath:   cfg.Gateway.CredentialsPath,
	}
}

// Close flushes traces and releases the usage store and log file.
func (rt *Runtime) Close() {
	if rt.tracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := rt.tracer.Shutdown(ctx); err != nil {
			log.Printf("TRACING_SHUTDOWN_FAILED | error=%v", err)
		}
		cancel()
	}
	if rt.store != nil {
		if err := rt.store.Close(); err != nil {
			log.Printf("USAGE_STORE_CLOSE_FAILED | error=%v", err)
		}
	}
	if len(rt.closers) > 0 {
		log.SetOutput(io.Discard)
	}
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i].Close()
	}
	rt.closers = nil
}

// =============================================================================
// CONFIG
// =============================================================================

// loadConfig loads --config or the default location and applies the global
// flag overrides. It also returns the file path to watch, if any.
func loadConfig(args Args) (*config.Config, string, error) {
	var (
		cfg *config.Config
		err error
	)
	path := args.ConfigPath
	if path != "" {
		cfg, err = config.LoadFromPath(path)
	} else {
		cfg, err = config.Load()
		path = existingConfigPath()
	}
	if err != nil {
		return nil, "", err
	}

	if args.Model != "" {
		cfg.Chat.DefaultModel = args.Model
	}
	if args.Debug {
		cfg.Logging.Debug = true
	}
	config.SetGlobal(cfg)
	return cfg, path, nil
}

// existingConfigPath returns the default config file that exists, or "".
func existingConfigPath() string {
	for _, pathFn := range []func() (string, error){config.ConfigPathTOML, config.ConfigPathJSON} {
		p, err := pathFn()
		if err != nil {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// =============================================================================
// LOGGING AND TRACING
// =============================================================================

// configureLogging sends the standard logger to logging.file when set.
// Without a file, logs go to stderr in debug mode and are dropped
// otherwise. The full-screen UI never logs to the terminal, so debug
// output there goes to ~/.rigchat/rigchat.log.
func (rt *Runtime) configureLogging(args Args, interactive bool) error {
	lc := rt.Config.Logging
	path := lc.File
	if path == "" && lc.Debug && interactive {
		dir, err := config.ConfigDir()
		if err != nil {
			return err
		}
		path = filepath.Join(dir, "rigchat.log")
	}

	switch {
	case path != "":
		f, err := openLogFile(path)
		if err != nil {
			return err
		}
		rt.closers = append(rt.closers, f)
		log.SetOutput(f)
	case lc.Debug:
		log.SetOutput(args.Stderr)
	default:
		log.SetOutput(io.Discard)
	}
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	return nil
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}

// enableTracing exports spans next to the logs: to logging.file when set,
// to ~/.rigchat/traces.log for the full-screen UI, else to stderr.
func (rt *Runtime) enableTracing(args Args, interactive bool) error {
	var w io.Writer = args.Stderr
	switch {
	case rt.Config.Logging.File != "":
		w = log.Writer()
	case interactive:
		dir, err := config.ConfigDir()
		if err != nil {
			return err
		}
		f, err := openLogFile(filepath.Join(dir, "traces.log"))
		if err != nil {
			return err
		}
		rt.closers = append(rt.closers, f)
		w = f
	}

	tp, err := telemetry.EnableTracing(w)
	if err != nil {
		return err
	}
	rt.tracer = tp
	return nil
}
