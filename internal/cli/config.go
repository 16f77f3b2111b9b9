// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// config.go - Config command.
//
// Subcommands:
//
//	show (default)      Display the effective configuration
//	path                Show the config file path
//	get <key>           Print one value
//	set <key> <value>   Change one value in the config file
//	reset               Write the defaults to the config file
//
// Keys use dot notation, for example chat.default_model or
// server.cors_origins (comma-separated for lists).

package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/jeranaias/rigchat/internal/config"
	"github.com/jeranaias/rigchat/internal/gateway"
)

// HandleConfig dispatches the config subcommands.
func HandleConfig(args Args) error {
	p := NewArgParser(args.Raw)

	switch sub := p.Subcommand(); sub {
	case "", "show", "list":
		cfg, _, err := loadConfig(args)
		if err != nil {
			return err
		}
		if args.JSON {
			return NewJSONResponse("config", redacted(cfg)).Write(args.Stdout)
		}
		fmt.Fprint(args.Stdout, renderConfig(cfg, configFilePath(args)))
		return nil

	case "path":
		path := configFilePath(args)
		if args.JSON {
			return NewJSONResponse("config path", map[string]string{"path": path}).Write(args.Stdout)
		}
		fmt.Fprintln(args.Stdout, path)
		return nil

	case "get":
		key := p.Positional(1)
		if key == "" {
			return ErrMissingArgument("key", "rigchat config get chat.default_model")
		}
		cfg, _, err := loadConfig(args)
		if err != nil {
			return err
		}
		val, err := cfg.Get(key)
		if err != nil {
			return NewValidationError("key", key, err.Error())
		}
		out := formatValue(val)
		if config.IsSecret(key) {
			out = maskSecret(out)
		}
		if args.JSON {
			return NewJSONResponse("config get", map[string]string{"key": key, "value": out}).Write(args.Stdout)
		}
		fmt.Fprintln(args.Stdout, out)
		return nil

	case "set":
		key, value := p.Positional(1), JoinPositionalArgs(p, 2)
		if key == "" || p.PositionalCount() < 3 {
			return ErrMissingArgument("key and value", "rigchat config set chat.default_model gpt-5")
		}
		path := configFilePath(args)
		cfg, err := loadFileOnly(path)
		if err != nil {
			return err
		}
		if err := cfg.Set(key, value); err != nil {
			return NewValidationError("key", key, err.Error())
		}
		if err := cfg.Validate(); err != nil {
			return NewValidationError(key, value, err.Error())
		}
		if err := save(cfg, path); err != nil {
			return NewCommandError("config", "set", err)
		}
		shown := value
		if config.IsSecret(key) {
			shown = maskSecret(value)
		}
		fmt.Fprintf(args.Stdout, "%s %s = %s\n", SuccessStyle.Render("Saved"), key, shown)
		return nil

	case "reset":
		path := configFilePath(args)
		if err := save(config.Default(), path); err != nil {
			return NewCommandError("config", "reset", err)
		}
		fmt.Fprintf(args.Stdout, "%s %s\n", SuccessStyle.Render("Wrote defaults to"), path)
		return nil

	default:
		return ErrUnknownSubcommand("config", sub, "show", "path", "get", "set", "reset")
	}
}

// configFilePath returns --config, the existing default file, or the
// default TOML path where a new file would go.
func configFilePath(args Args) string {
	if args.ConfigPath != "" {
		return args.ConfigPath
	}
	if p := existingConfigPath(); p != "" {
		return p
	}
	p, err := config.ConfigPathTOML()
	if err != nil {
		return "config.toml"
	}
	return p
}

// loadFileOnly reads path over the defaults without environment overrides,
// so "set" never persists values that came from the environment.
func loadFileOnly(path string) (*config.Config, error) {
	cfg := config.Default()
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	var err error
	if strings.HasSuffix(path, ".json") {
		err = config.LoadJSON(cfg, path)
	} else {
		err = config.LoadTOML(cfg, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}
	return cfg, nil
}

func save(cfg *config.Config, path string) error {
	if strings.HasSuffix(path, ".json") {
		return config.SaveJSON(cfg, path)
	}
	return config.SaveTOML(cfg, path)
}

// =============================================================================
// RENDERING
// =============================================================================

// renderConfig prints every key grouped by section, secrets masked.
func renderConfig(cfg *config.Config, path string) string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render("rigchat configuration") + "\n")

	section := ""
	for _, key := range config.GetAllKeys() {
		sec, name, _ := strings.Cut(key, ".")
		if sec != section {
			section = sec
			b.WriteString("\n" + SectionStyle.UnsetMarginTop().Render("["+sec+"]") + "\n")
		}
		val, err := cfg.Get(key)
		if err != nil {
			continue
		}
		out := formatValue(val)
		if config.IsSecret(key) {
			out = maskSecret(out)
		}
		b.WriteString("  " + LabelStyle.Width(22).Render(name) + ValueStyle.Render(out) + "\n")
	}

	b.WriteString("\n" + DimStyle.Render("Config file: "+path) + "\n")
	return b.String()
}

func formatValue(v interface{}) string {
	switch t := v.(type) {
	case []string:
		return strings.Join(t, ",")
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

// maskSecret shows only whether a secret is set and a short fingerprint.
func maskSecret(v string) string {
	if v == "" {
		return "(not set)"
	}
	return "sha256:" + gateway.Fingerprint(v) + "..."
}

// redacted returns cfg with secrets masked for JSON output.
func redacted(cfg *config.Config) *config.Config {
	safe := cfg.Clone()
	safe.Gateway.APIKey = maskIfSet(safe.Gateway.APIKey)
	safe.Gateway.GeminiAPIKey = maskIfSet(safe.Gateway.GeminiAPIKey)
	safe.Usage.RedisURL = maskIfSet(safe.Usage.RedisURL)
	return safe
}

func maskIfSet(v string) string {
	if v == "" {
		return ""
	}
	return maskSecret(v)
}
